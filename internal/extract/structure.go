package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mesflow/mesflow/internal/mes"
	"github.com/mesflow/mesflow/internal/table"
)

// Structure level tags in the upstream listing.
const (
	levelUnitProcedure = "UNIT_PROCEDURE"
	levelOperation     = "OPERATION"
	levelPhase         = "PHASE"
)

// Structure resolves unit/operation/phase titles by their structure ids.
// Every level is optional; unknown ids resolve to "".
type Structure struct {
	units      map[string]string
	operations map[string]string
	phases     map[string]string
}

// Unit returns the unit-procedure title for the given ids.
func (s Structure) Unit(masterTemplateID, unitProcedureID string) string {
	return s.units[structKey(masterTemplateID, unitProcedureID)]
}

// Operation returns the operation title for the given ids.
func (s Structure) Operation(masterTemplateID, unitProcedureID, operationID string) string {
	return s.operations[structKey(masterTemplateID, unitProcedureID, operationID)]
}

// Phase returns the phase title for the given ids.
func (s Structure) Phase(masterTemplateID, unitProcedureID, operationID, phaseID string) string {
	return s.phases[structKey(masterTemplateID, unitProcedureID, operationID, phaseID)]
}

// Structure fetches the structure listing for a production record and splits
// it into per-level lookup maps. Rows pass through the same normalization as
// the detail table so the join ids line up.
func (e *Extractor) Structure(ctx context.Context, recordID int64) (Structure, error) {
	path := mes.EndpointStructures + "/" + strconv.FormatInt(recordID, 10) + "/structures"
	body, err := e.api.Get(ctx, path, nil)
	if err != nil {
		return Structure{}, err
	}

	var records []map[string]any
	if err := json.Unmarshal(body, &records); err != nil {
		return Structure{}, fmt.Errorf("decoding structures for record %d: %w", recordID, err)
	}

	t := table.FromRecords(records)
	t.EnsureColumns("title", "level", "masterTemplateId", "unitProcedureId", "operationId", "phaseId")

	s := Structure{
		units:      make(map[string]string),
		operations: make(map[string]string),
		phases:     make(map[string]string),
	}
	for _, row := range t.Rows {
		mt, up := row["masterTemplateId"], row["unitProcedureId"]
		switch row["level"] {
		case levelUnitProcedure:
			s.units[structKey(mt, up)] = row["title"]
		case levelOperation:
			s.operations[structKey(mt, up, row["operationId"])] = row["title"]
		case levelPhase:
			s.phases[structKey(mt, up, row["operationId"], row["phaseId"])] = row["title"]
		}
	}
	return s, nil
}

func structKey(parts ...string) string {
	key := ""
	for i, p := range parts {
		if i > 0 {
			key += "\x1f"
		}
		key += p
	}
	return key
}
