package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tmaxmax/go-sse"
	"go.uber.org/zap"

	"stock-assistant/internal/domain"
	"stock-assistant/internal/service"
)

var (
	messageSSEType = sse.Type("message")
	closeSSEType   = sse.Type("close")
)

// EventsHandler publica por SSE cada cambio del mensaje activo de una sesion.
type EventsHandler struct {
	logger   *zap.Logger
	sessions *service.SessionRegistry
	sseSrv   *sse.Server
}

func NewEventsHandler(logger *zap.Logger, sessions *service.SessionRegistry) *EventsHandler {
	h := &EventsHandler{
		logger:   logger,
		sessions: sessions,
	}
	h.sseSrv = &sse.Server{OnSession: h.onSession}
	return h
}

func sessionTopic(sessionID string) string {
	return "session-" + sessionID
}

type activeMessageEvent struct {
	SessionID string              `json:"session_id"`
	Message   *domain.ChatMessage `json:"message"`
}

func newActiveMessageEvent(sessionID string, active service.ActiveMessage) activeMessageEvent {
	ev := activeMessageEvent{SessionID: sessionID}
	if active.Present {
		msg := active.Message
		ev.Message = &msg
	}
	return ev
}

func (ev activeMessageEvent) message() (*sse.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	msg := &sse.Message{Type: messageSSEType}
	msg.AppendData(string(data))
	return msg, nil
}

// onSession suscribe al cliente al topic de su sesion y le envia el valor actual
// antes de cualquier publicacion.
func (h *EventsHandler) onSession(s *sse.Session) (sse.Subscription, bool) {
	sessionID := s.Req.URL.Query().Get("session_id")
	session, err := h.sessions.Get(sessionID)
	if err != nil {
		return sse.Subscription{}, false
	}

	msg, err := newActiveMessageEvent(session.ID, session.Bridge.Current()).message()
	if err != nil {
		return sse.Subscription{}, false
	}
	if err := s.Send(msg); err != nil {
		h.logger.Debug("send initial event failed", zap.String("session_id", session.ID), zap.Error(err))
		return sse.Subscription{}, false
	}
	if err := s.Flush(); err != nil {
		return sse.Subscription{}, false
	}

	return sse.Subscription{
		Client:      s,
		LastEventID: s.LastEventID,
		Topics:      []string{sse.DefaultTopic, sessionTopic(session.ID)},
	}, true
}

// Forward se suscribe al puente de la sesion y publica cada valor hasta que la sesion se cierra.
// Se registra como SessionRegistry.OnCreate.
func (h *EventsHandler) Forward(s *service.Session) {
	ch, _ := s.Bridge.Subscribe()
	go func() {
		for active := range ch {
			if err := h.publish(newActiveMessageEvent(s.ID, active)); err != nil {
				h.logger.Warn("publish active message failed", zap.String("session_id", s.ID), zap.Error(err))
			}
		}
		h.logger.Debug("event forwarder stopped", zap.String("session_id", s.ID))
	}()
}

// Closed avisa a los clientes de la sesion que ya no recibiran eventos.
// Se registra como SessionRegistry.OnClose.
func (h *EventsHandler) Closed(s *service.Session) {
	e := &sse.Message{Type: closeSSEType}
	e.AppendData(s.ID)
	if err := h.sseSrv.Publish(e, sessionTopic(s.ID)); err != nil {
		h.logger.Debug("publish close event failed", zap.String("session_id", s.ID), zap.Error(err))
	}
}

func (h *EventsHandler) publish(ev activeMessageEvent) error {
	msg, err := ev.message()
	if err != nil {
		return err
	}
	return h.sseSrv.Publish(msg, sessionTopic(ev.SessionID))
}

// Stream maneja GET /events?session_id=. El stream termina cuando el cliente se
// desconecta o cuando la sesion se cierra.
func (h *EventsHandler) Stream(c *gin.Context) {
	session, err := h.sessions.Get(c.Query("session_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	release := session.Hold()
	defer release()

	ch, unsubscribe := session.Bridge.Subscribe()
	defer unsubscribe()

	ctx, stop := context.WithCancel(c.Request.Context())
	defer stop()
	go func() {
		for range ch {
		}
		stop()
	}()

	h.sseSrv.ServeHTTP(c.Writer, c.Request.WithContext(ctx))
}

// Shutdown avisa a los clientes conectados y cierra el servidor SSE.
func (h *EventsHandler) Shutdown(ctx context.Context) error {
	e := &sse.Message{Type: closeSSEType}
	e.AppendData("bye")
	_ = h.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return h.sseSrv.Shutdown(ctx)
}
