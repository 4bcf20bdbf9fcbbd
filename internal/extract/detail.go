package extract

import (
	"context"
	"net/url"
	"strconv"

	"github.com/mesflow/mesflow/internal/mes"
	"github.com/mesflow/mesflow/internal/table"
)

// lotCreationCapture tags the data-capture row whose title carries the lot
// number assigned at batch-record creation.
const lotCreationCapture = "BATCH_RECORD_CREATION"

// DetailColumns is the column set every detail table hands downstream.
var DetailColumns = []string{
	"orderLabel", "productionRecordId", "masterTemplateId", "unitProcedureId",
	"operationId", "phaseId", "title", "value", "userName", "dateTime",
	"actionTaken", "dataCaptureName",
}

// Detail fetches the data captures for a production record and derives its
// lot number. Only rows marked current are kept; iteration numbers are
// folded into the order label. An empty table means the record has no usable
// detail data; an empty lot means none could be derived. Neither is an
// error.
func (e *Extractor) Detail(ctx context.Context, recordID int64) (string, table.Table, error) {
	params := url.Values{}
	params.Set("productionRecordId", strconv.FormatInt(recordID, 10))

	t, err := e.api.FetchAll(ctx, mes.EndpointDataCaptures, params)
	if err != nil {
		return "", table.Table{}, err
	}
	if t.Empty() {
		return "", table.Table{}, nil
	}

	t.EnsureColumns(DetailColumns...)
	t.EnsureColumns("current", "iterationNumber")

	t = t.Filter(func(row map[string]string) bool {
		return row["current"] == "true"
	})

	for _, row := range t.Rows {
		if iter := row["iterationNumber"]; iter != "" && row["orderLabel"] != "0" {
			row["orderLabel"] = row["orderLabel"] + " - " + iter
		}
	}

	detail := t.Select(DetailColumns...)

	var lots []string
	for _, row := range t.Rows {
		if row["dataCaptureName"] == lotCreationCapture && row["title"] != "" {
			lots = append(lots, row["title"])
		}
	}
	if len(lots) > 1 {
		e.logger.Info("multiple lot numbers found", "record_id", recordID, "lots", lots)
	}
	if len(lots) == 0 {
		return "", detail, nil
	}
	return lots[0], detail, nil
}

// ModifiedRecordIDs queries the detail endpoint with a modified-in-window
// filter and returns the deduplicated production record ids, in first-seen
// order.
func (e *Extractor) ModifiedRecordIDs(ctx context.Context, startEpoch, endEpoch int64) ([]int64, error) {
	params := url.Values{}
	params.Set("start", strconv.FormatInt(startEpoch, 10))
	params.Set("end", strconv.FormatInt(endEpoch, 10))

	t, err := e.api.FetchAll(ctx, mes.EndpointDataCaptures, params)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool)
	var ids []int64
	for _, row := range t.Rows {
		id, err := strconv.ParseInt(row["productionRecordId"], 10, 64)
		if err != nil {
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}
