package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"stock-assistant/internal/backend"
	"stock-assistant/internal/domain"
)

// gatedBackend retiene cada PredictAll hasta que el test libera su compuerta con un payload.
type gatedBackend struct {
	backend.MockBackend
	entered chan int

	mu    sync.Mutex
	gates []chan json.RawMessage
}

func newGatedBackend() *gatedBackend {
	return &gatedBackend{entered: make(chan int, 4)}
}

func (g *gatedBackend) PredictAll(_ context.Context, _ domain.AllRequest) (json.RawMessage, error) {
	gate := make(chan json.RawMessage)
	g.mu.Lock()
	g.gates = append(g.gates, gate)
	idx := len(g.gates) - 1
	g.mu.Unlock()
	g.entered <- idx
	return <-gate, nil
}

func (g *gatedBackend) release(idx int, payload string) {
	g.mu.Lock()
	gate := g.gates[idx]
	g.mu.Unlock()
	gate <- json.RawMessage(payload)
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for call to finish")
	}
}

func newTestDashboard(mock *backend.MockBackend) *Dashboard {
	return NewDashboard(mock, zap.NewNop())
}

func TestDashboardPredictProductStock_RequiresProductAndDate(t *testing.T) {
	mock := &backend.MockBackend{}
	d := newTestDashboard(mock)
	d.SetDate("2024-05-01")

	state := d.PredictProductStock(context.Background())

	if state.Error != MsgProductAndDateRequired {
		t.Fatalf("expected validation error, got %q", state.Error)
	}
	if mock.CallCount() != 0 {
		t.Fatalf("expected no network call, got %d", mock.CallCount())
	}
	if state.Loading {
		t.Fatalf("expected not loading after validation failure")
	}
}

func TestDashboardPredictProductStock_InvalidDate(t *testing.T) {
	mock := &backend.MockBackend{}
	d := newTestDashboard(mock)
	d.SetProduct("leche")
	d.SetDate("01/05/2024")

	state := d.PredictProductStock(context.Background())
	if state.Error != MsgInvalidDate || mock.CallCount() != 0 {
		t.Fatalf("expected invalid date error without call, got %q calls=%d", state.Error, mock.CallCount())
	}
}

func TestDashboardPredictProductStock_Success(t *testing.T) {
	mock := &backend.MockBackend{Payload: json.RawMessage(`{"product_name":"leche","predicted_stock":7}`)}
	d := newTestDashboard(mock)
	d.SetForm(DashboardForm{Product: " leche ", Date: "2024-05-01", Advanced: true})

	state := d.PredictProductStock(context.Background())

	req, ok := mock.LastPayload.(domain.ProductDateRequest)
	if !ok {
		t.Fatalf("expected ProductDateRequest, got %#v", mock.LastPayload)
	}
	if req.Name != " leche " || req.Date != "2024-05-01" || !req.LLM {
		t.Fatalf("unexpected request %+v", req)
	}
	if state.Error != "" {
		t.Fatalf("expected no error, got %q", state.Error)
	}
	if state.Result == nil || state.Result.Kind != domain.KindProductDate {
		t.Fatalf("expected product-date result, got %+v", state.Result)
	}
	if !strings.Contains(state.Response, "\"product_name\": \"leche\"") {
		t.Fatalf("expected indented response, got %q", state.Response)
	}
	if len(state.Predictions) != 0 {
		t.Fatalf("expected no table rows for single prediction")
	}
}

func TestDashboardPredictFullDate_DateWithSpacesIsInvalid(t *testing.T) {
	mock := &backend.MockBackend{}
	d := newTestDashboard(mock)
	d.SetDate(" 2024-05-01")

	state := d.PredictFullDate(context.Background())
	if state.Error != MsgInvalidDate || mock.CallCount() != 0 {
		t.Fatalf("expected invalid date without call, got %q calls=%d", state.Error, mock.CallCount())
	}
}

func TestDashboardPredictFullDate_ServerErrorSetsError(t *testing.T) {
	mock := &backend.MockBackend{Err: &backend.StatusError{StatusCode: 500}}
	d := newTestDashboard(mock)
	d.SetDate("2024-05-01")

	state := d.PredictFullDate(context.Background())

	if state.Error != MsgServerError {
		t.Fatalf("expected server error, got %q", state.Error)
	}
	if len(state.Predictions) != 0 || state.Result != nil || state.Response != "" {
		t.Fatalf("expected cleared results, got %+v", state)
	}
	if state.Loading {
		t.Fatalf("expected loading cleared")
	}
}

func TestDashboardPredictFullDate_RowsFromList(t *testing.T) {
	mock := &backend.MockBackend{Payload: json.RawMessage(`[
		{"product_name":"leche","predicted_stock":12},
		{"product_name":"pan","predicted_stock":"3.5"}
	]`)}
	d := newTestDashboard(mock)
	d.SetDate("2024-05-01")

	state := d.PredictFullDate(context.Background())

	if len(state.Predictions) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(state.Predictions))
	}
	if state.Predictions[0].ProductName != "leche" || state.Predictions[0].StockText() != "12" {
		t.Fatalf("unexpected first row %+v", state.Predictions[0])
	}
	if state.Predictions[1].StockText() != "3.5" {
		t.Fatalf("unexpected second row %+v", state.Predictions[1])
	}
	if req, ok := mock.LastPayload.(domain.DateRequest); !ok || req.LLM {
		t.Fatalf("expected basic date request, got %#v", mock.LastPayload)
	}
}

func TestDashboardPredictFullDate_RequiresDate(t *testing.T) {
	mock := &backend.MockBackend{}
	d := newTestDashboard(mock)

	state := d.PredictFullDate(context.Background())
	if state.Error != MsgDateRequired || mock.CallCount() != 0 {
		t.Fatalf("expected date required without call, got %q calls=%d", state.Error, mock.CallCount())
	}
}

func TestDashboardAtRiskProducts_NoValidation(t *testing.T) {
	mock := &backend.MockBackend{Payload: json.RawMessage(`[{"product_name":"arroz","predicted_stock":0}]`)}
	d := newTestDashboard(mock)
	d.ToggleAdvanced()

	state := d.AtRiskProducts(context.Background())

	if req, ok := mock.LastPayload.(domain.AllRequest); !ok || !req.LLM {
		t.Fatalf("expected advanced all request, got %#v", mock.LastPayload)
	}
	if len(state.Predictions) != 1 || state.Predictions[0].ProductName != "arroz" {
		t.Fatalf("unexpected rows %+v", state.Predictions)
	}
}

func TestDashboardPredictDepletion_RequiresProduct(t *testing.T) {
	mock := &backend.MockBackend{}
	d := newTestDashboard(mock)

	state := d.PredictDepletion(context.Background())
	if state.Error != MsgProductRequired || mock.CallCount() != 0 {
		t.Fatalf("expected product required without call, got %q calls=%d", state.Error, mock.CallCount())
	}
}

func TestDashboardPredictDepletion_ObjectPayloadHasNoRows(t *testing.T) {
	mock := &backend.MockBackend{Payload: json.RawMessage(`{"product_name":"pan","depletion_date":"2024-06-01"}`)}
	d := newTestDashboard(mock)
	d.SetProduct("pan")

	state := d.PredictDepletion(context.Background())
	if state.Error != "" || state.Result == nil {
		t.Fatalf("expected success, got %+v", state)
	}
	if len(state.Predictions) != 0 {
		t.Fatalf("expected no rows for object payload")
	}
}

func TestDashboard_NewCallClearsPreviousRowsAndError(t *testing.T) {
	mock := &backend.MockBackend{Payload: json.RawMessage(`[{"product_name":"a","predicted_stock":1}]`)}
	d := newTestDashboard(mock)
	d.SetDate("2024-05-01")
	d.PredictFullDate(context.Background())

	mock.Err = errors.New("down")
	state := d.AtRiskProducts(context.Background())
	if len(state.Predictions) != 0 {
		t.Fatalf("expected rows cleared at call start")
	}
	if state.Error != MsgServerError {
		t.Fatalf("expected server error, got %q", state.Error)
	}

	mock.Err = nil
	state = d.AtRiskProducts(context.Background())
	if state.Error != "" || len(state.Predictions) != 1 {
		t.Fatalf("expected error reset and rows restored, got %+v", state)
	}
}

func TestDashboard_ValidationKeepsPreviousResponse(t *testing.T) {
	mock := &backend.MockBackend{Payload: json.RawMessage(`[{"product_name":"a","predicted_stock":1}]`)}
	d := newTestDashboard(mock)
	d.AtRiskProducts(context.Background())

	state := d.PredictDepletion(context.Background())
	if state.Error != MsgProductRequired {
		t.Fatalf("expected validation error, got %q", state.Error)
	}
	if state.Response == "" {
		t.Fatalf("expected previous response kept on validation error")
	}
	if len(state.Predictions) != 0 {
		t.Fatalf("expected rows cleared")
	}
}

func TestDashboardUploadCSV_NoFileIsNoop(t *testing.T) {
	mock := &backend.MockBackend{Payload: json.RawMessage(`[{"product_name":"a","predicted_stock":1}]`)}
	d := newTestDashboard(mock)
	before := d.AtRiskProducts(context.Background())

	after := d.UploadCSV(context.Background(), nil)

	if mock.CallCount() != 1 {
		t.Fatalf("expected no upload call, got %d calls", mock.CallCount())
	}
	if len(after.Predictions) != len(before.Predictions) || after.Response != before.Response || !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("expected unchanged state")
	}
}

func TestDashboardUploadCSV_Success(t *testing.T) {
	mock := &backend.MockBackend{Payload: json.RawMessage(`{"status":"retrained"}`)}
	d := newTestDashboard(mock)

	state := d.UploadCSV(context.Background(), &domain.Upload{Filename: "ventas.csv", Content: strings.NewReader("a,b\n")})

	if state.Response != MsgRetrained {
		t.Fatalf("expected retrained message, got %q", state.Response)
	}
	if state.Result == nil || state.Result.Kind != domain.KindRetrain {
		t.Fatalf("expected retrain result, got %+v", state.Result)
	}
	if string(mock.LastUpload) != "a,b\n" {
		t.Fatalf("unexpected uploaded content %q", mock.LastUpload)
	}
}

func TestDashboardUploadCSV_Failure(t *testing.T) {
	mock := &backend.MockBackend{Err: errors.New("413")}
	d := newTestDashboard(mock)

	state := d.UploadCSV(context.Background(), &domain.Upload{Filename: "x.csv", Content: strings.NewReader("x")})
	if state.Error != MsgUploadError || state.Response != "" {
		t.Fatalf("expected upload error, got %+v", state)
	}
}

func TestDecodeRows_IgnoresNonObjectElements(t *testing.T) {
	if rows := decodeRows(json.RawMessage(`[1,2,3]`)); len(rows) != 0 {
		t.Fatalf("expected no rows for numeric list, got %+v", rows)
	}
	if rows := decodeRows(json.RawMessage(`{"a":1}`)); rows != nil {
		t.Fatalf("expected nil rows for object")
	}
	if rows := decodeRows(json.RawMessage(` []`)); rows == nil || len(rows) != 0 {
		t.Fatalf("expected empty rows for empty list, got %#v", rows)
	}
	rows := decodeRows(json.RawMessage(`[{"product_name":"a","predicted_stock":1},"basura",{"product_name":"b","predicted_stock":2}]`))
	if len(rows) != 2 || rows[1].ProductName != "b" {
		t.Fatalf("expected object rows kept, got %+v", rows)
	}
}

func TestDashboardPredictFullDate_MixedStockValuesKeepTable(t *testing.T) {
	mock := &backend.MockBackend{Payload: json.RawMessage(`[
		{"product_name":"leche","predicted_stock":12.5},
		{"product_name":"pan","predicted_stock":"N/A"},
		{"product_name":"arroz"}
	]`)}
	d := newTestDashboard(mock)
	d.SetDate("2024-05-01")

	state := d.PredictFullDate(context.Background())

	if state.Error != "" {
		t.Fatalf("expected no error, got %q", state.Error)
	}
	if len(state.Predictions) != 3 {
		t.Fatalf("expected 3 rows, got %+v", state.Predictions)
	}
	if got := state.Predictions[0].StockText(); got != "12.5" {
		t.Fatalf("expected 12.5, got %q", got)
	}
	if got := state.Predictions[1].StockText(); got != "N/A" {
		t.Fatalf("expected stock text kept as sent, got %q", got)
	}
	if state.Predictions[1].Stock().Valid {
		t.Fatalf("expected non-numeric stock to be invalid as decimal")
	}
	if got := state.Predictions[2].StockText(); got != "" || state.Predictions[2].Stock().Valid {
		t.Fatalf("expected missing stock to stay missing, got %q", got)
	}

	out, err := json.Marshal(state.Predictions)
	if err != nil {
		t.Fatalf("marshal rows: %v", err)
	}
	want := `[{"product_name":"leche","predicted_stock":12.5},{"product_name":"pan","predicted_stock":"N/A"},{"product_name":"arroz"}]`
	if string(out) != want {
		t.Fatalf("expected rows re-encoded as received\n got %s\nwant %s", out, want)
	}
}

func TestDashboard_OverlappingCallsLastResolvedWins(t *testing.T) {
	gated := newGatedBackend()
	d := NewDashboard(gated, zap.NewNop())

	start := func() <-chan struct{} {
		done := make(chan struct{})
		go func() {
			d.AtRiskProducts(context.Background())
			close(done)
		}()
		return done
	}

	firstDone := start()
	first := <-gated.entered
	secondDone := start()
	second := <-gated.entered

	if !d.Snapshot().Loading {
		t.Fatalf("expected loading with two calls in flight")
	}

	gated.release(second, `[{"product_name":"segunda","predicted_stock":2}]`)
	waitDone(t, secondDone)

	state := d.Snapshot()
	if !state.Loading {
		t.Fatalf("expected loading while the first call is still pending")
	}
	if len(state.Predictions) != 1 || state.Predictions[0].ProductName != "segunda" {
		t.Fatalf("expected second response shown meanwhile, got %+v", state.Predictions)
	}

	gated.release(first, `[{"product_name":"primera","predicted_stock":1}]`)
	waitDone(t, firstDone)

	state = d.Snapshot()
	if state.Loading {
		t.Fatalf("expected loading cleared once every call returned")
	}
	if len(state.Predictions) != 1 || state.Predictions[0].ProductName != "primera" {
		t.Fatalf("expected last resolved response to win, got %+v", state.Predictions)
	}
	if state.Result == nil || !strings.Contains(string(state.Result.Raw), "primera") {
		t.Fatalf("expected result from last resolved call, got %+v", state.Result)
	}
}
