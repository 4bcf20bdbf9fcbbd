package mes

// The four read-only endpoints the pipeline depends on.
const (
	// EndpointDataCaptures lists production-record data captures; filterable
	// by productionRecordId or by a modified-in-window epoch range.
	EndpointDataCaptures = "/manufacturing/execution/production-record-data-captures"

	// EndpointBatchRecordsList is the primary batch-metadata source.
	EndpointBatchRecordsList = "/manufacturing/execution/batch-records/production-records-list"

	// EndpointDataCapturesByLot is the secondary (fallback) metadata source.
	EndpointDataCapturesByLot = "/manufacturing/execution/data-captures"

	// EndpointStructures serves the per-record structure listing under
	// /{id}/structures.
	EndpointStructures = "/manufacturing/execution/production-records"
)
