package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mesflow/mesflow/internal/mes"
)

// fakeAPI routes MES endpoints to canned page responses. Handlers receive
// the request and return the rows for that endpoint; a nil handler yields
// zero rows. Registering a status code instead makes the endpoint fail.
type fakeAPI struct {
	rows     map[string]func(r *http.Request) []map[string]any
	statuses map[string]int
	calls    map[string]int
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	return &fakeAPI{
		rows:     make(map[string]func(r *http.Request) []map[string]any),
		statuses: make(map[string]int),
		calls:    make(map[string]int),
	}
}

func (f *fakeAPI) respond(path string, rows ...map[string]any) {
	f.rows[path] = func(*http.Request) []map[string]any { return rows }
}

func (f *fakeAPI) fail(path string, status int) {
	f.statuses[path] = status
}

func (f *fakeAPI) start() (*mes.Client, func()) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls[r.URL.Path]++
		if status, ok := f.statuses[r.URL.Path]; ok {
			http.Error(w, "error", status)
			return
		}

		fn := f.rows[r.URL.Path]
		var rows []map[string]any
		if fn != nil {
			rows = fn(r)
		}

		// Structure listings are plain arrays; everything else is paginated.
		if strings.HasSuffix(r.URL.Path, "/structures") {
			json.NewEncoder(w).Encode(rows)
			return
		}
		if rows == nil {
			rows = []map[string]any{}
		}
		json.NewEncoder(w).Encode(map[string]any{"content": rows, "last": true})
	}))
	return mes.NewClient(srv.URL, "", ""), srv.Close
}

func detailRow(capture, title string, current bool) map[string]any {
	return map[string]any{
		"dataCaptureName":    capture,
		"title":              title,
		"current":            current,
		"orderLabel":         "1.2",
		"productionRecordId": float64(5),
		"masterTemplateId":   "mt-1",
		"unitProcedureId":    "up-1",
		"operationId":        "op-1",
		"phaseId":            "ph-1",
		"value":              "10.5",
		"userName":           "jdoe",
		"dateTime":           "2025-03-10T14:30:00Z",
		"actionTaken":        "RECORDED",
	}
}

func TestDetail_DerivesLotNumber(t *testing.T) {
	api := newFakeAPI(t)
	api.respond(mes.EndpointDataCaptures,
		detailRow("BATCH_RECORD_CREATION", "LOT-42", true),
		detailRow("WEIGHT_CHECK", "Net weight", true),
		detailRow("WEIGHT_CHECK", "Old version", false),
	)
	client, stop := api.start()
	defer stop()

	lot, detail, err := New(client).Detail(context.Background(), 5)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if lot != "LOT-42" {
		t.Errorf("lot = %q, want LOT-42", lot)
	}
	// The non-current row must be filtered out.
	if detail.Len() != 2 {
		t.Errorf("detail rows = %d, want 2", detail.Len())
	}
	for _, col := range DetailColumns {
		if !detail.HasColumn(col) {
			t.Errorf("missing column %q", col)
		}
	}
}

func TestDetail_NoLotNumber(t *testing.T) {
	api := newFakeAPI(t)
	api.respond(mes.EndpointDataCaptures,
		detailRow("WEIGHT_CHECK", "Net weight", true),
	)
	client, stop := api.start()
	defer stop()

	lot, detail, err := New(client).Detail(context.Background(), 5)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if lot != "" {
		t.Errorf("lot = %q, want empty", lot)
	}
	if detail.Empty() {
		t.Error("detail is empty, want rows even without a lot")
	}
}

func TestDetail_EmptyResponse(t *testing.T) {
	api := newFakeAPI(t)
	client, stop := api.start()
	defer stop()

	lot, detail, err := New(client).Detail(context.Background(), 5)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if lot != "" || !detail.Empty() {
		t.Errorf("lot = %q, rows = %d; want empty result", lot, detail.Len())
	}
}

func TestDetail_FoldsIterationIntoOrderLabel(t *testing.T) {
	row := detailRow("BATCH_RECORD_CREATION", "LOT-1", true)
	row["iterationNumber"] = float64(3)

	api := newFakeAPI(t)
	api.respond(mes.EndpointDataCaptures, row)
	client, stop := api.start()
	defer stop()

	_, detail, err := New(client).Detail(context.Background(), 5)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if got := detail.Rows[0]["orderLabel"]; got != "1.2 - 3" {
		t.Errorf("orderLabel = %q, want %q", got, "1.2 - 3")
	}
}

func TestModifiedRecordIDs_Dedupes(t *testing.T) {
	api := newFakeAPI(t)
	api.respond(mes.EndpointDataCaptures,
		map[string]any{"productionRecordId": float64(7)},
		map[string]any{"productionRecordId": float64(9)},
		map[string]any{"productionRecordId": float64(7)},
	)
	client, stop := api.start()
	defer stop()

	ids, err := New(client).ModifiedRecordIDs(context.Background(), 0, 100)
	if err != nil {
		t.Fatalf("ModifiedRecordIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != 7 || ids[1] != 9 {
		t.Errorf("ids = %v, want [7 9]", ids)
	}
}

func TestResolveMetadata_PrimaryWins(t *testing.T) {
	api := newFakeAPI(t)
	api.respond(mes.EndpointBatchRecordsList, map[string]any{
		"lotNumber":   "LOT-1",
		"productId":   "P-9",
		"productName": "Penicillin 500",
		"status":      "COMPLETED",
	})
	client, stop := api.start()
	defer stop()

	meta, ok, err := New(client).ResolveMetadata(context.Background(), "LOT-1")
	if err != nil {
		t.Fatalf("ResolveMetadata: %v", err)
	}
	if !ok {
		t.Fatal("resolved = false, want true")
	}
	if meta.MasterTemplateName != "Penicillin 500" {
		t.Errorf("MasterTemplateName = %q", meta.MasterTemplateName)
	}
	if meta.ProductionRecordStatus != "COMPLETED" {
		t.Errorf("ProductionRecordStatus = %q", meta.ProductionRecordStatus)
	}
	if api.calls[mes.EndpointDataCapturesByLot] != 0 {
		t.Error("secondary endpoint was called although primary resolved")
	}
}

func TestResolveMetadata_FallsBackToSecondary(t *testing.T) {
	api := newFakeAPI(t)
	// Primary returns zero rows; secondary has the answer under its own
	// field names.
	api.respond(mes.EndpointBatchRecordsList)
	api.respond(mes.EndpointDataCapturesByLot, map[string]any{
		"lotNumber":              "LOT-1",
		"productId":              "P-9",
		"masterTemplateName":     "X",
		"productionRecordStatus": "IN_PROGRESS",
	})
	client, stop := api.start()
	defer stop()

	meta, ok, err := New(client).ResolveMetadata(context.Background(), "LOT-1")
	if err != nil {
		t.Fatalf("ResolveMetadata: %v", err)
	}
	if !ok {
		t.Fatal("resolved = false, want true via secondary")
	}
	if meta.MasterTemplateName != "X" {
		t.Errorf("MasterTemplateName = %q, want X", meta.MasterTemplateName)
	}
}

func TestResolveMetadata_BothEmpty(t *testing.T) {
	api := newFakeAPI(t)
	client, stop := api.start()
	defer stop()

	_, ok, err := New(client).ResolveMetadata(context.Background(), "LOT-1")
	if err != nil {
		t.Fatalf("ResolveMetadata: %v", err)
	}
	if ok {
		t.Error("resolved = true, want false when both sources are empty")
	}
}

func TestResolveMetadata_PrimaryErrorEscalates(t *testing.T) {
	api := newFakeAPI(t)
	api.fail(mes.EndpointBatchRecordsList, http.StatusBadRequest)
	client, stop := api.start()
	defer stop()

	_, _, err := New(client).ResolveMetadata(context.Background(), "LOT-1")
	if err == nil {
		t.Fatal("err = nil, want escalated request error")
	}
	// An erroring primary must not be treated as empty.
	if api.calls[mes.EndpointDataCapturesByLot] != 0 {
		t.Error("secondary endpoint was called after a primary error")
	}
}

func TestResolveMetadata_SecondaryErrorEscalates(t *testing.T) {
	api := newFakeAPI(t)
	// Primary is empty; the fallback endpoint errors. That must surface as
	// an error, never as "both sources empty".
	api.respond(mes.EndpointBatchRecordsList)
	api.fail(mes.EndpointDataCapturesByLot, http.StatusBadRequest)
	client, stop := api.start()
	defer stop()

	_, ok, err := New(client).ResolveMetadata(context.Background(), "LOT-1")
	if err == nil {
		t.Fatal("err = nil, want escalated request error from the secondary endpoint")
	}
	if ok {
		t.Error("resolved = true despite a secondary-endpoint error")
	}
	if api.calls[mes.EndpointBatchRecordsList] == 0 {
		t.Error("primary endpoint was never consulted")
	}
}

func TestStructure_SplitsByLevel(t *testing.T) {
	api := newFakeAPI(t)
	api.respond(mes.EndpointStructures+"/5/structures",
		map[string]any{"title": "Blending", "level": "UNIT_PROCEDURE", "masterTemplateId": "mt", "unitProcedureId": "up"},
		map[string]any{"title": "Charge", "level": "OPERATION", "masterTemplateId": "mt", "unitProcedureId": "up", "operationId": "op"},
		map[string]any{"title": "Mix", "level": "PHASE", "masterTemplateId": "mt", "unitProcedureId": "up", "operationId": "op", "phaseId": "ph"},
		map[string]any{"title": "Template", "level": "MASTER_TEMPLATE"},
	)
	client, stop := api.start()
	defer stop()

	s, err := New(client).Structure(context.Background(), 5)
	if err != nil {
		t.Fatalf("Structure: %v", err)
	}
	if got := s.Unit("mt", "up"); got != "Blending" {
		t.Errorf("Unit = %q, want Blending", got)
	}
	if got := s.Operation("mt", "up", "op"); got != "Charge" {
		t.Errorf("Operation = %q, want Charge", got)
	}
	if got := s.Phase("mt", "up", "op", "ph"); got != "Mix" {
		t.Errorf("Phase = %q, want Mix", got)
	}
	if got := s.Unit("mt", "unknown"); got != "" {
		t.Errorf("unknown Unit = %q, want empty", got)
	}
}
