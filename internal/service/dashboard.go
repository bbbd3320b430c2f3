package service

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"stock-assistant/internal/backend"
	"stock-assistant/internal/domain"
)

// Textos que ve el usuario en el panel.
const (
	MsgProductAndDateRequired = "Producto y fecha son obligatorios"
	MsgDateRequired           = "La fecha es obligatoria"
	MsgProductRequired        = "Escribe un producto"
	MsgInvalidDate            = "Fecha invalida, usa AAAA-MM-DD"
	MsgServerError            = "Error conectando al servidor"
	MsgUploadError            = "Error subiendo CSV"
	MsgRetrained              = "Modelo reentrenado."
)

const dateLayout = "2006-01-02"

// DashboardForm es el formulario del panel.
type DashboardForm struct {
	Product  string `json:"producto"`
	Date     string `json:"fecha"`
	Advanced bool   `json:"modo_avanzado"`
}

// DashboardState es una foto del estado visible del panel.
type DashboardState struct {
	Form        DashboardForm            `json:"form"`
	Response    string                   `json:"respuesta"`
	Result      *domain.PredictionResult `json:"respuesta_modelo"`
	Error       string                   `json:"error"`
	Predictions []domain.PredictionRow   `json:"predicciones"`
	Loading     bool                     `json:"loading"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

// Dashboard despacha las acciones del panel contra el backend y guarda el ultimo resultado.
// Las llamadas no se serializan entre si: la ultima respuesta en llegar gana.
type Dashboard struct {
	backend backend.Backend
	logger  *zap.Logger
	now     func() time.Time

	mu          sync.Mutex
	form        DashboardForm
	response    string
	result      *domain.PredictionResult
	errMsg      string
	predictions []domain.PredictionRow
	inFlight    int
	updatedAt   time.Time
}

func NewDashboard(b backend.Backend, logger *zap.Logger) *Dashboard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dashboard{
		backend: b,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (d *Dashboard) SetProduct(product string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.form.Product = product
}

func (d *Dashboard) SetDate(date string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.form.Date = date
}

func (d *Dashboard) SetAdvanced(advanced bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.form.Advanced = advanced
}

// ToggleAdvanced invierte el modo avanzado y devuelve el valor nuevo.
func (d *Dashboard) ToggleAdvanced() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.form.Advanced = !d.form.Advanced
	return d.form.Advanced
}

func (d *Dashboard) SetForm(form DashboardForm) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.form = form
}

func (d *Dashboard) Snapshot() DashboardState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

// PredictProductStock pide la prediccion de un producto para una fecha.
func (d *Dashboard) PredictProductStock(ctx context.Context) DashboardState {
	form, ok := d.begin(func(f DashboardForm) string {
		if strings.TrimSpace(f.Product) == "" || strings.TrimSpace(f.Date) == "" {
			return MsgProductAndDateRequired
		}
		return validDate(f.Date)
	})
	if !ok {
		return d.Snapshot()
	}
	return d.dispatch(ctx, domain.KindProductDate, false, func(ctx context.Context) (json.RawMessage, error) {
		return d.backend.PredictProductDate(ctx, domain.ProductDateRequest{
			Name: form.Product,
			Date: form.Date,
			LLM:  form.Advanced,
		})
	})
}

// PredictFullDate pide la prediccion de todos los productos para una fecha.
func (d *Dashboard) PredictFullDate(ctx context.Context) DashboardState {
	form, ok := d.begin(func(f DashboardForm) string {
		if strings.TrimSpace(f.Date) == "" {
			return MsgDateRequired
		}
		return validDate(f.Date)
	})
	if !ok {
		return d.Snapshot()
	}
	return d.dispatch(ctx, domain.KindDate, true, func(ctx context.Context) (json.RawMessage, error) {
		return d.backend.PredictDate(ctx, domain.DateRequest{
			Date: form.Date,
			LLM:  form.Advanced,
		})
	})
}

// AtRiskProducts pide los productos en riesgo de agotarse.
func (d *Dashboard) AtRiskProducts(ctx context.Context) DashboardState {
	form, _ := d.begin(nil)
	return d.dispatch(ctx, domain.KindAll, true, func(ctx context.Context) (json.RawMessage, error) {
		return d.backend.PredictAll(ctx, domain.AllRequest{LLM: form.Advanced})
	})
}

// PredictDepletion pide la fecha de agotamiento de un producto.
func (d *Dashboard) PredictDepletion(ctx context.Context) DashboardState {
	form, ok := d.begin(func(f DashboardForm) string {
		if strings.TrimSpace(f.Product) == "" {
			return MsgProductRequired
		}
		return ""
	})
	if !ok {
		return d.Snapshot()
	}
	return d.dispatch(ctx, domain.KindProduct, true, func(ctx context.Context) (json.RawMessage, error) {
		return d.backend.PredictProduct(ctx, domain.ProductRequest{
			Name: form.Product,
			LLM:  form.Advanced,
		})
	})
}

// UploadCSV sube el archivo para reentrenar el modelo. Sin archivo no hace nada.
func (d *Dashboard) UploadCSV(ctx context.Context, upload *domain.Upload) DashboardState {
	if upload == nil || upload.Content == nil {
		return d.Snapshot()
	}

	d.mu.Lock()
	d.predictions = nil
	d.resetLocked()
	d.inFlight++
	d.mu.Unlock()

	raw, err := d.backend.UploadRetrain(ctx, *upload)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.inFlight--
	d.updatedAt = d.now()
	if err != nil {
		d.logger.Warn("csv upload failed", zap.String("filename", upload.Filename), zap.Error(err))
		d.errMsg = MsgUploadError
		return d.snapshotLocked()
	}
	d.response = MsgRetrained
	d.result = &domain.PredictionResult{Kind: domain.KindRetrain, Raw: raw}
	d.logger.Info("model retrained", zap.String("filename", upload.Filename))
	return d.snapshotLocked()
}

// begin limpia las filas, valida el formulario y, si es valido, resetea la respuesta anterior.
func (d *Dashboard) begin(validate func(DashboardForm) string) (DashboardForm, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.predictions = nil
	if validate != nil {
		if msg := validate(d.form); msg != "" {
			d.errMsg = msg
			d.updatedAt = d.now()
			return d.form, false
		}
	}
	d.resetLocked()
	d.inFlight++
	return d.form, true
}

func (d *Dashboard) dispatch(ctx context.Context, kind domain.PredictionKind, listShaped bool, call func(context.Context) (json.RawMessage, error)) DashboardState {
	start := time.Now()
	raw, err := call(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.inFlight--
	d.updatedAt = d.now()
	if err != nil {
		d.logger.Warn("prediction request failed", zap.String("kind", string(kind)), zap.Error(err))
		d.errMsg = MsgServerError
		return d.snapshotLocked()
	}

	result := &domain.PredictionResult{Kind: kind, Raw: raw}
	if listShaped {
		result.Rows = decodeRows(raw)
		d.predictions = result.Rows
	}
	d.result = result
	d.response = prettyJSON(raw)
	d.logger.Info("prediction received",
		zap.String("kind", string(kind)),
		zap.Int("rows", len(result.Rows)),
		zap.Duration("latency", time.Since(start)),
	)
	return d.snapshotLocked()
}

func (d *Dashboard) resetLocked() {
	d.response = ""
	d.result = nil
	d.errMsg = ""
}

func (d *Dashboard) snapshotLocked() DashboardState {
	rows := make([]domain.PredictionRow, len(d.predictions))
	copy(rows, d.predictions)
	return DashboardState{
		Form:        d.form,
		Response:    d.response,
		Result:      d.result,
		Error:       d.errMsg,
		Predictions: rows,
		Loading:     d.inFlight > 0,
		UpdatedAt:   d.updatedAt,
	}
}

func validDate(date string) string {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return MsgInvalidDate
	}
	return ""
}

// decodeRows interpreta el payload como lista de filas, una por una: un elemento que no es un
// objeto se descarta sin perder el resto. Si el payload no es una lista devuelve nil.
func decodeRows(raw json.RawMessage) []domain.PredictionRow {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil
	}
	rows := make([]domain.PredictionRow, 0, len(items))
	for _, item := range items {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
			continue
		}
		row := domain.PredictionRow{PredictedStock: fields["predicted_stock"]}
		if name, ok := fields["product_name"]; ok {
			if err := json.Unmarshal(name, &row.ProductName); err != nil {
				row.ProductName = string(name)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func prettyJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
