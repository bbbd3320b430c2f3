package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stock-assistant/internal/domain"
	"stock-assistant/internal/service"
)

// ChatHandler expone el puente de chat de cada sesion.
type ChatHandler struct {
	logger   *zap.Logger
	sessions *service.SessionRegistry
}

func NewChatHandler(logger *zap.Logger, sessions *service.SessionRegistry) *ChatHandler {
	return &ChatHandler{logger: logger, sessions: sessions}
}

type activeMessageResponse struct {
	Message *domain.ChatMessage `json:"message"`
	Pending int                 `json:"pending"`
	Loading bool                `json:"loading"`
}

func activeMessage(b *service.ChatBridge) activeMessageResponse {
	resp := activeMessageResponse{Pending: len(b.Pending()), Loading: b.Loading()}
	if msg, ok := b.Message(); ok {
		resp.Message = &msg
	}
	return resp
}

// PostChat maneja POST /sessions/:id/chat. Los fallos del backend no son errores HTTP: el
// puente los registra y la respuesta muestra el estado resultante.
func (h *ChatHandler) PostChat(c *gin.Context) {
	s, ok := lookupSession(c, h.sessions)
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid chat request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	s.Bridge.Chat(c.Request.Context(), req.Message)
	c.JSON(http.StatusOK, activeMessage(s.Bridge))
}

// GetMessage maneja GET /sessions/:id/chat/message.
func (h *ChatHandler) GetMessage(c *gin.Context) {
	s, ok := lookupSession(c, h.sessions)
	if !ok {
		return
	}
	resp := activeMessage(s.Bridge)
	if resp.Message == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// MessagePlayed maneja POST /sessions/:id/chat/played.
func (h *ChatHandler) MessagePlayed(c *gin.Context) {
	s, ok := lookupSession(c, h.sessions)
	if !ok {
		return
	}
	s.Bridge.OnMessagePlayed()
	c.JSON(http.StatusOK, activeMessage(s.Bridge))
}
