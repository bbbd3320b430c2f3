package backend

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"stock-assistant/internal/domain"
)

// MockBackend permite tests sin llamar al backend real. Registra cada llamada.
type MockBackend struct {
	mu sync.Mutex

	ChatReply ChatReply
	Payload   json.RawMessage
	Err       error

	Calls       []string
	LastPayload any
	LastUpload  []byte
}

func (m *MockBackend) record(call string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
	m.LastPayload = payload
}

// CallCount devuelve cuantas llamadas se hicieron al backend.
func (m *MockBackend) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

func (m *MockBackend) Chat(_ context.Context, text string) (ChatReply, error) {
	m.record(pathChat, domain.ChatRequest{Message: text})
	return m.ChatReply, m.Err
}

func (m *MockBackend) PredictProductDate(_ context.Context, req domain.ProductDateRequest) (json.RawMessage, error) {
	m.record(pathProductDate, req)
	return m.Payload, m.Err
}

func (m *MockBackend) PredictDate(_ context.Context, req domain.DateRequest) (json.RawMessage, error) {
	m.record(pathDate, req)
	return m.Payload, m.Err
}

func (m *MockBackend) PredictAll(_ context.Context, req domain.AllRequest) (json.RawMessage, error) {
	m.record(pathAll, req)
	return m.Payload, m.Err
}

func (m *MockBackend) PredictProduct(_ context.Context, req domain.ProductRequest) (json.RawMessage, error) {
	m.record(pathProduct, req)
	return m.Payload, m.Err
}

func (m *MockBackend) UploadRetrain(_ context.Context, upload domain.Upload) (json.RawMessage, error) {
	var data []byte
	if upload.Content != nil {
		data, _ = io.ReadAll(upload.Content)
	}
	m.record(pathRetrain, upload.Filename)
	m.mu.Lock()
	m.LastUpload = data
	m.mu.Unlock()
	return m.Payload, m.Err
}
