package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"github.com/zulandar/reactoryard/internal/db"
	"github.com/zulandar/reactoryard/internal/importer"
	"github.com/zulandar/reactoryard/internal/metrics"
	"github.com/zulandar/reactoryard/internal/models"
	"github.com/zulandar/reactoryard/internal/pkt"
	"github.com/zulandar/reactoryard/internal/store"
)

type testServer struct {
	router  *gin.Engine
	engine  *pkt.Engine
	reactor models.Reactor
	product models.Product
	reason  models.DelayReason
	now     time.Time
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.ConnectSQLite(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	ts := &testServer{
		reactor: models.Reactor{Name: "R1", Active: true},
		product: models.Product{Code: "P1", Name: "Resin A", StandardDuration: 4 * time.Hour},
		reason:  models.DelayReason{Name: "Raw material late"},
		now:     time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC),
	}
	for _, v := range []any{&ts.reactor, &models.Reactor{Name: "R2", Active: true}, &ts.product, &ts.reason} {
		if err := gdb.Create(v).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	m := metrics.New()
	ts.engine = pkt.New(store.New(gdb, 5*time.Second),
		pkt.WithClock(func() time.Time { return ts.now }),
		pkt.WithMetrics(m),
	)
	ts.router = NewRouter(StartOpts{
		Engine:   ts.engine,
		Importer: importer.New(ts.engine, importer.Opts{Metrics: m}),
		Metrics:  m,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func (ts *testServer) createTx(t *testing.T) transactionView {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/transactions", map[string]any{
		"reactor_id":    ts.reactor.ID,
		"product_id":    ts.product.ID,
		"work_order_no": "WO-1",
		"lot_no":        "L-1",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	return decode[transactionView](t, w)
}

func TestStart_NilEngine(t *testing.T) {
	err := Start(context.Background(), StartOpts{})
	if err == nil || !strings.Contains(err.Error(), "engine is required") {
		t.Errorf("err = %v, want engine is required", err)
	}
}

func TestHealthz(t *testing.T) {
	ts := setupServer(t)
	w := ts.do(t, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestLifecycleOverHTTP(t *testing.T) {
	ts := setupServer(t)
	created := ts.createTx(t)
	if created.Status != models.StatusPlanned || created.Version != 1 {
		t.Fatalf("created = %+v", created)
	}
	base := "/api/transactions/" + itoa(created.ID)

	steps := []struct {
		path    string
		body    any
		advance time.Duration
		want    models.Status
	}{
		{"/start", nil, time.Hour, models.StatusInProgress},
		{"/complete-production", map[string]any{"delay_reason_id": ts.reason.ID, "delay_duration": "30m"}, 5 * time.Hour, models.StatusProductionCompleted},
		{"/start-washing", map[string]any{"caustic_amount_kg": 5.0}, time.Hour, models.StatusWashing},
		{"/complete-washing", nil, time.Hour, models.StatusWashingCompleted},
		{"/finish", nil, time.Hour, models.StatusCompleted},
	}
	var last transactionView
	for _, s := range steps {
		ts.now = ts.now.Add(s.advance)
		w := ts.do(t, http.MethodPost, base+s.path, s.body)
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d, body = %s", s.path, w.Code, w.Body.String())
		}
		last = decode[transactionView](t, w)
		if last.Status != s.want {
			t.Fatalf("%s status = %q, want %q", s.path, last.Status, s.want)
		}
	}

	if last.ActualProductionDuration == nil || *last.ActualProductionDuration != "5h0m0s" {
		t.Errorf("actual_production_duration = %v, want 5h0m0s", last.ActualProductionDuration)
	}
	if last.DelayDuration == nil || *last.DelayDuration != "30m0s" {
		t.Errorf("delay_duration = %v, want 30m0s", last.DelayDuration)
	}
	if last.WashingDuration == nil || *last.WashingDuration != "1h0m0s" {
		t.Errorf("washing_duration = %v, want 1h0m0s", last.WashingDuration)
	}
	if last.CausticAmountKg == nil || *last.CausticAmountKg != 5.0 {
		t.Errorf("caustic_amount_kg = %v, want 5", last.CausticAmountKg)
	}

	w := ts.do(t, http.MethodGet, base+"/history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d", w.Code)
	}
	if history := decode[[]eventView](t, w); len(history) != 6 {
		t.Errorf("history = %d events, want 6", len(history))
	}
}

func TestErrorMapping(t *testing.T) {
	ts := setupServer(t)
	created := ts.createTx(t)
	base := "/api/transactions/" + itoa(created.ID)

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		wantCode int
		wantKind string
	}{
		{"unknown transaction", http.MethodGet, "/api/transactions/999", nil, http.StatusNotFound, "not_found"},
		{"invalid transition", http.MethodPost, base + "/finish", nil, http.StatusConflict, "invalid_transition"},
		{"reactor busy", http.MethodPost, "/api/transactions", map[string]any{
			"reactor_id": ts.reactor.ID, "product_id": ts.product.ID, "work_order_no": "WO-2",
		}, http.StatusConflict, "conflict"},
		{"missing work order", http.MethodPost, "/api/transactions", map[string]any{
			"reactor_id": ts.reactor.ID, "product_id": ts.product.ID,
		}, http.StatusUnprocessableEntity, "validation"},
		{"unknown product", http.MethodPost, "/api/transactions", map[string]any{
			"reactor_id": ts.reactor.ID, "product_id": 99, "work_order_no": "WO-3",
		}, http.StatusNotFound, "not_found"},
		{"bad id", http.MethodGet, "/api/transactions/abc", nil, http.StatusBadRequest, "bad_request"},
		{"bad status filter", http.MethodGet, "/api/transactions?status=bogus", nil, http.StatusUnprocessableEntity, "validation"},
		{"bad delay duration", http.MethodPost, base + "/complete-production", map[string]any{"delay_duration": "soon"}, http.StatusUnprocessableEntity, "validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, tt.method, tt.path, tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d; body = %s", w.Code, tt.wantCode, w.Body.String())
			}
			got := decode[map[string]string](t, w)
			if got["kind"] != tt.wantKind {
				t.Errorf("kind = %q, want %q", got["kind"], tt.wantKind)
			}
			if got["error"] == "" {
				t.Error("error message is empty")
			}
		})
	}
}

func TestCancelWithReason(t *testing.T) {
	ts := setupServer(t)
	created := ts.createTx(t)

	w := ts.do(t, http.MethodPost, "/api/transactions/"+itoa(created.ID)+"/cancel", map[string]string{"reason": "pump failure"})
	if w.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, body = %s", w.Code, w.Body.String())
	}
	got := decode[transactionView](t, w)
	if got.Status != models.StatusCancelled || !strings.Contains(got.Description, "cancelled: pump failure") {
		t.Errorf("cancelled = %+v", got)
	}

	// The reactor is free again.
	ts.createTx(t)
}

func TestListAndReactorBoard(t *testing.T) {
	ts := setupServer(t)
	created := ts.createTx(t)

	w := ts.do(t, http.MethodGet, "/api/transactions?active=true&reactor_id="+itoa(ts.reactor.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	if list := decode[[]transactionView](t, w); len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("list = %+v", list)
	}

	w = ts.do(t, http.MethodGet, "/api/reactors", nil)
	board := decode[[]ReactorRow](t, w)
	if len(board) != 2 {
		t.Fatalf("board = %+v, want 2 reactors", board)
	}
	if !board[0].Busy || board[0].TransactionID != created.ID || board[0].Status != models.StatusPlanned {
		t.Errorf("R1 row = %+v", board[0])
	}
	if board[1].Busy {
		t.Errorf("R2 row = %+v, want idle", board[1])
	}

	w = ts.do(t, http.MethodGet, "/api/summary", nil)
	counts := decode[map[models.Status]int](t, w)
	if counts[models.StatusPlanned] != 1 || counts[models.StatusCompleted] != 0 {
		t.Errorf("summary = %v", counts)
	}
}

func TestImportCSV(t *testing.T) {
	ts := setupServer(t)
	body := "reactor,product,work order,lot,start,end,caustic,washing\n" +
		"R1,P1,WO-1,L-1,2026-01-10 06:00,2026-01-10 12:00,4,1h\n" +
		"R9,P1,WO-2,L-2,,,,\n" +
		"R2,P1,WO-3,L-3,2026-01-10 07:00,,,\n"
	req := httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/csv")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	res := decode[importer.Result](t, w)
	if res.Total != 3 || res.SuccessCount != 2 || res.FailureCount != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Errors) != 1 || res.Errors[0] != "row 2: reactor not found" {
		t.Errorf("errors = %q", res.Errors)
	}
}

func TestImportXLSX(t *testing.T) {
	ts := setupServer(t)
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	f.SetSheetRow(sheet, "A1", &[]any{"reactor", "product", "work order"})
	f.SetSheetRow(sheet, "A2", &[]any{"R2", "P1", "WO-9"})
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/import", buf)
	req.Header.Set("Content-Type", xlsxContentType)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if res := decode[importer.Result](t, w); res.SuccessCount != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestImport_UnreadableBody(t *testing.T) {
	ts := setupServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader("colour,size\nred,1\n"))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setupServer(t)
	ts.createTx(t)
	w := ts.do(t, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "pkt_transitions_total") {
		t.Error("metrics output missing pkt_transitions_total")
	}
}

func TestSSE_StreamsTransitions(t *testing.T) {
	ts := setupServer(t)
	ssePollInterval = 10 * time.Millisecond
	t.Cleanup(func() { ssePollInterval = 2 * time.Second })

	created := ts.createTx(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events?after=0", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "event: connected") {
		t.Errorf("missing connected event: %q", body)
	}
	if !strings.Contains(body, "event: transition") || !strings.Contains(body, `"to":"planned"`) {
		t.Errorf("missing transition event: %q", body)
	}
	if !strings.Contains(body, `"transaction_id":`+itoa(created.ID)) {
		t.Errorf("missing transaction id: %q", body)
	}
}

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer
	writeSSE(&buf, "heartbeat", map[string]string{"a": "b"})
	if got, want := buf.String(), "event: heartbeat\ndata: {\"a\":\"b\"}\n\n"; got != want {
		t.Errorf("writeSSE = %q, want %q", got, want)
	}
}

func itoa(n uint) string {
	return strconv.FormatUint(uint64(n), 10)
}
