package extract

import (
	"context"
	"net/url"

	"github.com/mesflow/mesflow/internal/mes"
	"github.com/mesflow/mesflow/internal/table"
)

// Metadata is the batch-level metadata for one lot, identical in meaning
// regardless of which source resolved it.
type Metadata struct {
	LotNumber              string
	ProductID              string
	MasterTemplateName     string
	ProductionRecordStatus string
}

// ResolveMetadata obtains batch metadata for a lot: the primary batch-record
// listing first, then the structurally different data-captures-by-lot
// endpoint when the primary returns zero rows. ok is false when both
// sources are empty, a normal terminal outcome rather than an error. An endpoint
// error from either source escalates as an error and never counts as empty.
func (e *Extractor) ResolveMetadata(ctx context.Context, lotNumber string) (Metadata, bool, error) {
	meta, found, err := e.primaryMetadata(ctx, lotNumber)
	if err != nil {
		return Metadata{}, false, err
	}
	if found {
		return meta, true, nil
	}

	meta, found, err = e.secondaryMetadata(ctx, lotNumber)
	if err != nil {
		return Metadata{}, false, err
	}
	if !found {
		return Metadata{}, false, nil
	}
	return meta, true, nil
}

// primaryMetadata queries the batch-records listing. Its fields are named
// productName/status and are remapped to the uniform shape.
func (e *Extractor) primaryMetadata(ctx context.Context, lotNumber string) (Metadata, bool, error) {
	params := url.Values{}
	params.Set("sortColumn", "create_date")
	params.Set("sortDirection", "desc")
	params.Set("productName", "")
	params.Set("productId", "")
	params.Set("lotNumber", lotNumber)

	t, err := e.api.FetchAll(ctx, mes.EndpointBatchRecordsList, params)
	if err != nil {
		return Metadata{}, false, err
	}
	if t.Empty() {
		return Metadata{}, false, nil
	}

	t.EnsureColumns("lotNumber", "productId", "productName", "status")
	e.warnMultipleStatuses(lotNumber, t, "status")

	row := t.Rows[0]
	return Metadata{
		LotNumber:              row["lotNumber"],
		ProductID:              row["productId"],
		MasterTemplateName:     row["productName"],
		ProductionRecordStatus: row["status"],
	}, true, nil
}

// secondaryMetadata queries the data-captures-by-lot endpoint, whose field
// names already match the uniform shape.
func (e *Extractor) secondaryMetadata(ctx context.Context, lotNumber string) (Metadata, bool, error) {
	params := url.Values{}
	params.Set("lotNumbers", lotNumber)

	t, err := e.api.FetchAll(ctx, mes.EndpointDataCapturesByLot, params)
	if err != nil {
		return Metadata{}, false, err
	}
	if t.Empty() {
		return Metadata{}, false, nil
	}

	t.EnsureColumns("lotNumber", "productId", "masterTemplateName", "productionRecordStatus")
	e.warnMultipleStatuses(lotNumber, t, "productionRecordStatus")

	row := t.Rows[0]
	return Metadata{
		LotNumber:              row["lotNumber"],
		ProductID:              row["productId"],
		MasterTemplateName:     row["masterTemplateName"],
		ProductionRecordStatus: row["productionRecordStatus"],
	}, true, nil
}

func (e *Extractor) warnMultipleStatuses(lotNumber string, t table.Table, statusCol string) {
	statuses := make(map[string]bool)
	for _, row := range t.Rows {
		statuses[row[statusCol]] = true
	}
	if len(statuses) > 1 {
		distinct := make([]string, 0, len(statuses))
		for s := range statuses {
			distinct = append(distinct, s)
		}
		e.logger.Info("multiple statuses found for lot", "lot", lotNumber, "statuses", distinct)
	}
}
