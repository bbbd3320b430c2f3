package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"stock-assistant/internal/domain"
)

const (
	DefaultBaseURL = "http://localhost:8000"

	pathChat        = "/api/chat"
	pathProductDate = "/api/predict/product-date"
	pathDate        = "/api/predict/date"
	pathAll         = "/api/predict/all"
	pathProduct     = "/api/predict/product"
	pathRetrain     = "/api/upload/retrain"
)

// Backend define las llamadas al servicio de prediccion y chat.
type Backend interface {
	Chat(ctx context.Context, text string) (ChatReply, error)
	PredictProductDate(ctx context.Context, req domain.ProductDateRequest) (json.RawMessage, error)
	PredictDate(ctx context.Context, req domain.DateRequest) (json.RawMessage, error)
	PredictAll(ctx context.Context, req domain.AllRequest) (json.RawMessage, error)
	PredictProduct(ctx context.Context, req domain.ProductRequest) (json.RawMessage, error)
	UploadRetrain(ctx context.Context, upload domain.Upload) (json.RawMessage, error)
}

// StatusError se devuelve cuando el backend responde con un status fuera de 2xx.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend http error: status=%d", e.StatusCode)
}

// HTTPClient implementa Backend contra la API REST.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient construye un cliente HTTP apuntando al backend de predicciones.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *HTTPClient) Chat(ctx context.Context, text string) (ChatReply, error) {
	body, err := c.postJSON(ctx, pathChat, domain.ChatRequest{Message: text})
	if err != nil {
		return ChatReply{}, err
	}
	return ParseChatReply(body)
}

func (c *HTTPClient) PredictProductDate(ctx context.Context, req domain.ProductDateRequest) (json.RawMessage, error) {
	return c.postPayload(ctx, pathProductDate, req)
}

func (c *HTTPClient) PredictDate(ctx context.Context, req domain.DateRequest) (json.RawMessage, error) {
	return c.postPayload(ctx, pathDate, req)
}

func (c *HTTPClient) PredictAll(ctx context.Context, req domain.AllRequest) (json.RawMessage, error) {
	return c.postPayload(ctx, pathAll, req)
}

func (c *HTTPClient) PredictProduct(ctx context.Context, req domain.ProductRequest) (json.RawMessage, error) {
	return c.postPayload(ctx, pathProduct, req)
}

// UploadRetrain envia el CSV como multipart en el campo "file".
func (c *HTTPClient) UploadRetrain(ctx context.Context, upload domain.Upload) (json.RawMessage, error) {
	if upload.Content == nil {
		return nil, fmt.Errorf("upload sin contenido")
	}
	filename := strings.TrimSpace(upload.Filename)
	if filename == "" {
		filename = "upload.csv"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, upload.Content); err != nil {
		return nil, fmt.Errorf("copy upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathRetrain, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return toRaw(body)
}

func (c *HTTPClient) postPayload(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	body, err := c.postJSON(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	return toRaw(body)
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *HTTPClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("backend error status",
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(respBody), 512)),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

func toRaw(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		return nil, ErrInvalidJSON
	}
	return json.RawMessage(trimmed), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
