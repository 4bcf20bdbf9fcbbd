package pipeline

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mesflow/mesflow/internal/extract"
	"github.com/mesflow/mesflow/internal/table"
)

// OutputColumns is the merged table handed to the output stage. The columns
// are always present, even when empty, so downstream loading never has to
// guess the shape.
var OutputColumns = []string{
	"Master Template Name", "Lot Number", "Product ID", "Unit", "Operation",
	"Phase", "Data Capture Time", "Production Record Status",
	"Structure Label", "Description", "Input Data Value", "Performed By",
	"Action Performed", "Captured Data Type",
}

// Rows captured by automated validation accounts are operational noise, not
// production data.
const excludedUserPrefix = "VOD_"

// merge combines detail rows, resolved metadata and structure lookups into
// the final per-lot table.
func merge(detail table.Table, meta extract.Metadata, structure extract.Structure) table.Table {
	out := table.New(OutputColumns...)

	for _, row := range detail.Rows {
		performedBy := strings.TrimSpace(row["userName"])
		if strings.HasPrefix(performedBy, excludedUserPrefix) {
			continue
		}

		mt, up := row["masterTemplateId"], row["unitProcedureId"]
		merged := map[string]string{
			"Master Template Name":     meta.MasterTemplateName,
			"Lot Number":               meta.LotNumber,
			"Product ID":               meta.ProductID,
			"Unit":                     structure.Unit(mt, up),
			"Operation":                structure.Operation(mt, up, row["operationId"]),
			"Phase":                    structure.Phase(mt, up, row["operationId"], row["phaseId"]),
			"Data Capture Time":        reformatCaptureTime(strings.TrimSpace(row["dateTime"])),
			"Production Record Status": meta.ProductionRecordStatus,
			"Structure Label":          strings.TrimSpace(row["orderLabel"]),
			"Description":              strings.TrimSpace(row["title"]),
			"Input Data Value":         strings.TrimSpace(row["value"]),
			"Performed By":             performedBy,
			"Action Performed":         strings.TrimSpace(row["actionTaken"]),
			"Captured Data Type":       strings.TrimSpace(row["dataCaptureName"]),
		}
		out.Rows = append(out.Rows, merged)
	}
	return out
}

var captureTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

var (
	easternOnce sync.Once
	easternLoc  *time.Location
)

func eastern() *time.Location {
	easternOnce.Do(func() {
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			loc = time.UTC
		}
		easternLoc = loc
	})
	return easternLoc
}

// reformatCaptureTime converts a UTC capture timestamp to Eastern time as
// "M/D/YYYY H:MM" without leading zeros on the date or hour. Unparseable
// values pass through unchanged.
func reformatCaptureTime(s string) string {
	if s == "" {
		return s
	}
	var t time.Time
	var err error
	for _, layout := range captureTimeLayouts {
		if t, err = time.Parse(layout, s); err == nil {
			break
		}
	}
	if err != nil {
		return s
	}
	et := t.In(eastern())
	return fmt.Sprintf("%d/%d/%d %d:%02d",
		int(et.Month()), et.Day(), et.Year(), et.Hour(), et.Minute())
}
