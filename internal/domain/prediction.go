package domain

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/shopspring/decimal"
)

// PredictionKind identifica la accion del panel que produjo un resultado.
type PredictionKind string

const (
	KindProductDate PredictionKind = "product-date"
	KindDate        PredictionKind = "date"
	KindAll         PredictionKind = "all"
	KindProduct     PredictionKind = "product"
	KindRetrain     PredictionKind = "retrain"
)

// PredictionRow es una fila de la tabla de predicciones. PredictedStock guarda el valor tal como
// lo envio el backend: numero, texto o ausente.
type PredictionRow struct {
	ProductName    string          `json:"product_name"`
	PredictedStock json.RawMessage `json:"predicted_stock,omitempty"`
}

// Stock interpreta predicted_stock como decimal. Invalido si falta o no es numerico.
func (r PredictionRow) Stock() decimal.NullDecimal {
	raw := bytes.TrimSpace(r.PredictedStock)
	if len(raw) == 0 || string(raw) == "null" {
		return decimal.NullDecimal{}
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return decimal.NullDecimal{}
		}
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// StockText es el valor a mostrar: el decimal si es numerico, el texto recibido si no, y vacio
// si el backend no lo envio.
func (r PredictionRow) StockText() string {
	if d := r.Stock(); d.Valid {
		return d.Decimal.String()
	}
	raw := bytes.TrimSpace(r.PredictedStock)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return string(raw)
}

// PredictionResult guarda la respuesta opaca del backend y, si era una lista, su vista en filas.
type PredictionResult struct {
	Kind PredictionKind  `json:"kind"`
	Raw  json.RawMessage `json:"raw"`
	Rows []PredictionRow `json:"rows,omitempty"`
}

type ProductDateRequest struct {
	Name string `json:"name"`
	Date string `json:"date"`
	LLM  bool   `json:"llm"`
}

type DateRequest struct {
	Date string `json:"date"`
	LLM  bool   `json:"llm"`
}

type AllRequest struct {
	LLM bool `json:"llm"`
}

type ProductRequest struct {
	Name string `json:"name"`
	LLM  bool   `json:"llm"`
}

// Upload es el archivo CSV que se envia para reentrenar el modelo.
type Upload struct {
	Filename string
	Content  io.Reader
}
