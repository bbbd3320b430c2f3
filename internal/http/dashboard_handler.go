package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stock-assistant/internal/domain"
	"stock-assistant/internal/service"
)

// DashboardHandler expone el panel de predicciones de cada sesion. Las acciones siempre
// responden 200 con el estado: los errores del backend son parte del estado visible.
type DashboardHandler struct {
	logger   *zap.Logger
	sessions *service.SessionRegistry
}

func NewDashboardHandler(logger *zap.Logger, sessions *service.SessionRegistry) *DashboardHandler {
	return &DashboardHandler{logger: logger, sessions: sessions}
}

// GetState maneja GET /sessions/:id/dashboard.
func (h *DashboardHandler) GetState(c *gin.Context) {
	s, ok := lookupSession(c, h.sessions)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": s.Dashboard.Snapshot()})
}

// UpdateForm maneja PUT /sessions/:id/dashboard/form. Solo cambia los campos enviados.
func (h *DashboardHandler) UpdateForm(c *gin.Context) {
	s, ok := lookupSession(c, h.sessions)
	if !ok {
		return
	}
	var req struct {
		Product  *string `json:"producto"`
		Date     *string `json:"fecha"`
		Advanced *bool   `json:"modo_avanzado"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid dashboard form", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if req.Product != nil {
		s.Dashboard.SetProduct(*req.Product)
	}
	if req.Date != nil {
		s.Dashboard.SetDate(*req.Date)
	}
	if req.Advanced != nil {
		s.Dashboard.SetAdvanced(*req.Advanced)
	}
	c.JSON(http.StatusOK, gin.H{"state": s.Dashboard.Snapshot()})
}

func (h *DashboardHandler) PredictProductDate(c *gin.Context) {
	h.run(c, (*service.Dashboard).PredictProductStock)
}

func (h *DashboardHandler) PredictDate(c *gin.Context) {
	h.run(c, (*service.Dashboard).PredictFullDate)
}

func (h *DashboardHandler) PredictAll(c *gin.Context) {
	h.run(c, (*service.Dashboard).AtRiskProducts)
}

func (h *DashboardHandler) PredictProduct(c *gin.Context) {
	h.run(c, (*service.Dashboard).PredictDepletion)
}

// UploadCSV maneja POST /sessions/:id/dashboard/upload (multipart, campo "file"). Sin archivo
// no se hace nada y se devuelve el estado actual.
func (h *DashboardHandler) UploadCSV(c *gin.Context) {
	s, ok := lookupSession(c, h.sessions)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			c.JSON(http.StatusOK, gin.H{"state": s.Dashboard.Snapshot()})
			return
		}
		h.logger.Warn("invalid upload request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	file, err := fh.Open()
	if err != nil {
		h.logger.Error("open uploaded file failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read file"})
		return
	}
	defer file.Close()

	state := s.Dashboard.UploadCSV(c.Request.Context(), &domain.Upload{Filename: fh.Filename, Content: file})
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *DashboardHandler) run(c *gin.Context, action func(*service.Dashboard, context.Context) service.DashboardState) {
	s, ok := lookupSession(c, h.sessions)
	if !ok {
		return
	}
	state := action(s.Dashboard, c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"state": state})
}
