package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stock-assistant/internal/service"
)

// SessionHandler crea y destruye sesiones de UI.
type SessionHandler struct {
	logger   *zap.Logger
	sessions *service.SessionRegistry
}

func NewSessionHandler(logger *zap.Logger, sessions *service.SessionRegistry) *SessionHandler {
	return &SessionHandler{logger: logger, sessions: sessions}
}

// CreateSession maneja POST /sessions.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	s := h.sessions.Create()
	c.JSON(http.StatusCreated, gin.H{"session": s})
}

// CloseSession maneja DELETE /sessions/:id.
func (h *SessionHandler) CloseSession(c *gin.Context) {
	if err := h.sessions.Close(c.Param("id")); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		h.logger.Error("close session failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not close session"})
		return
	}
	c.Status(http.StatusNoContent)
}

// lookupSession resuelve :id o responde 404.
func lookupSession(c *gin.Context, sessions *service.SessionRegistry) (*service.Session, bool) {
	s, err := sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return s, true
}
