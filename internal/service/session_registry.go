package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stock-assistant/internal/backend"
)

var ErrSessionNotFound = errors.New("session not found")

// Session agrupa el estado de una sesion de UI: su puente de chat y su panel.
type Session struct {
	ID        string      `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	Policy    QueuePolicy `json:"queue_policy"`

	Bridge    *ChatBridge `json:"-"`
	Dashboard *Dashboard  `json:"-"`

	lastSeen atomic.Int64
	holds    atomic.Int32
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// LastSeen es el ultimo acceso a la sesion a traves del registro.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load()).UTC()
}

// Hold marca la sesion en uso (por ejemplo, un stream abierto) hasta llamar a la funcion devuelta.
// Una sesion retenida no expira por inactividad.
func (s *Session) Hold() func() {
	s.holds.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { s.holds.Add(-1) })
	}
}

// SessionRegistry crea y destruye sesiones. Cada sesion tiene estado propio; nada se comparte
// entre sesiones salvo el cliente del backend.
type SessionRegistry struct {
	backend backend.Backend
	logger  *zap.Logger
	policy  QueuePolicy
	now     func() time.Time

	// OnCreate se invoca fuera del lock con cada sesion nueva.
	OnCreate func(*Session)
	// OnClose se invoca fuera del lock antes de cerrar el puente de la sesion.
	OnClose func(*Session)

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionRegistry(b backend.Backend, logger *zap.Logger, policy QueuePolicy) *SessionRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionRegistry{
		backend:  b,
		logger:   logger,
		policy:   policy,
		now:      func() time.Time { return time.Now().UTC() },
		sessions: make(map[string]*Session),
	}
}

func (r *SessionRegistry) Create() *Session {
	now := r.now()
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		Policy:    r.policy,
		Bridge:    NewChatBridge(r.backend, r.logger, r.policy),
		Dashboard: NewDashboard(r.backend, r.logger),
	}
	s.touch(now)

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.logger.Info("session created", zap.String("session_id", s.ID))
	if r.OnCreate != nil {
		r.OnCreate(s)
	}
	return s
}

// Get devuelve la sesion y renueva su ultimo acceso.
func (r *SessionRegistry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[strings.TrimSpace(id)]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch(r.now())
	return s, nil
}

// Close destruye la sesion y cierra su puente.
func (r *SessionRegistry) Close(id string) error {
	id = strings.TrimSpace(id)
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	r.teardown(s)
	r.logger.Info("session closed", zap.String("session_id", id))
	return nil
}

func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range sessions {
		r.teardown(s)
	}
}

// ExpireIdle cierra las sesiones sin acceso desde hace mas de maxIdle y sin retenciones.
// Devuelve los ids cerrados.
func (r *SessionRegistry) ExpireIdle(maxIdle time.Duration) []string {
	if maxIdle <= 0 {
		return nil
	}
	cutoff := r.now().Add(-maxIdle)

	var expired []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.holds.Load() > 0 || !s.LastSeen().Before(cutoff) {
			continue
		}
		delete(r.sessions, id)
		expired = append(expired, s)
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, s := range expired {
		r.teardown(s)
		ids = append(ids, s.ID)
		r.logger.Info("session expired", zap.String("session_id", s.ID))
	}
	return ids
}

// RunJanitor expira sesiones inactivas cada interval hasta que ctx termina.
func (r *SessionRegistry) RunJanitor(ctx context.Context, interval, maxIdle time.Duration) {
	if interval <= 0 || maxIdle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ExpireIdle(maxIdle)
		}
	}
}

func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *SessionRegistry) teardown(s *Session) {
	if r.OnClose != nil {
		r.OnClose(s)
	}
	s.Bridge.Close()
}
