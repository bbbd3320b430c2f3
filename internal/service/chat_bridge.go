package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"stock-assistant/internal/backend"
	"stock-assistant/internal/domain"
)

// QueuePolicy decide que hace Chat con la cola cuando llega una respuesta.
type QueuePolicy string

const (
	// QueueReplace deja en la cola solo el mensaje nuevo.
	QueueReplace QueuePolicy = "replace"
	// QueueAppend encola el mensaje nuevo detras de los pendientes.
	QueueAppend QueuePolicy = "append"
)

// ParseQueuePolicy acepta "replace" o "append"; vacio equivale a replace.
func ParseQueuePolicy(s string) (QueuePolicy, error) {
	switch QueuePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", QueueReplace:
		return QueueReplace, nil
	case QueueAppend:
		return QueueAppend, nil
	default:
		return "", fmt.Errorf("politica de cola desconocida: %q", s)
	}
}

// ActiveMessage es el valor observable del puente: la cabeza de la cola o ausente.
type ActiveMessage struct {
	Message domain.ChatMessage
	Present bool
}

// ChatBridge mantiene la cola de respuestas del chat de una sesion de UI y expone el mensaje
// activo a cualquier numero de consumidores.
type ChatBridge struct {
	backend backend.Backend
	logger  *zap.Logger
	policy  QueuePolicy

	mu          sync.Mutex
	queue       []domain.ChatMessage
	inFlight    int
	closed      bool
	subscribers map[int]chan ActiveMessage
	nextSubID   int
}

func NewChatBridge(b backend.Backend, logger *zap.Logger, policy QueuePolicy) *ChatBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == "" {
		policy = QueueReplace
	}
	return &ChatBridge{
		backend:     b,
		logger:      logger,
		policy:      policy,
		subscribers: make(map[int]chan ActiveMessage),
	}
}

// Chat envia el texto tal cual al endpoint de chat y encola la respuesta normalizada. Un texto en
// blanco no se envia. Los errores se registran y se descartan; Loading vuelve a false en todos
// los caminos.
func (b *ChatBridge) Chat(ctx context.Context, text string) {
	if b == nil || b.backend == nil {
		return
	}
	if strings.TrimSpace(text) == "" {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.inFlight++
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.inFlight--
		b.mu.Unlock()
	}()

	reply, err := b.backend.Chat(ctx, text)
	if err != nil {
		b.logger.Error("chat request failed", zap.Error(err))
		return
	}
	msg, err := reply.Normalize()
	if err != nil {
		b.logger.Error("chat reply not recognized", zap.Error(err))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	switch b.policy {
	case QueueAppend:
		b.queue = append(b.queue, msg)
	default:
		b.queue = []domain.ChatMessage{msg}
	}
	b.publishLocked()
	b.logger.Debug("chat message queued", zap.Int("pending", len(b.queue)), zap.String("policy", string(b.policy)))
}

// OnMessagePlayed descarta la cabeza de la cola. Con la cola vacia no hace nada.
func (b *ChatBridge) OnMessagePlayed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return
	}
	b.queue[0] = domain.ChatMessage{}
	b.queue = b.queue[1:]
	b.publishLocked()
}

// Message devuelve el mensaje activo, si existe.
func (b *ChatBridge) Message() (domain.ChatMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a := b.activeLocked()
	return a.Message, a.Present
}

// Current devuelve el mensaje activo con la misma forma que reciben los suscriptores.
func (b *ChatBridge) Current() ActiveMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeLocked()
}

func (b *ChatBridge) Loading() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight > 0
}

// Pending devuelve una copia de la cola.
func (b *ChatBridge) Pending() []domain.ChatMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.ChatMessage, len(b.queue))
	copy(out, b.queue)
	return out
}

func (b *ChatBridge) Policy() QueuePolicy {
	return b.policy
}

// Subscribe entrega el mensaje activo actual y cada cambio posterior. El canal guarda solo el
// ultimo valor: un consumidor lento nunca ve un estado viejo. cancel cierra el canal.
func (b *ChatBridge) Subscribe() (<-chan ActiveMessage, func()) {
	ch := make(chan ActiveMessage, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextSubID
	b.nextSubID++
	b.subscribers[id] = ch
	ch <- b.activeLocked()
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Close termina la sesion del puente: cierra los suscriptores y vacia la cola.
func (b *ChatBridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.queue = nil
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}

func (b *ChatBridge) activeLocked() ActiveMessage {
	if len(b.queue) == 0 {
		return ActiveMessage{}
	}
	return ActiveMessage{Message: b.queue[0], Present: true}
}

// publishLocked reemplaza el valor pendiente de cada suscriptor por el activo actual.
func (b *ChatBridge) publishLocked() {
	active := b.activeLocked()
	for _, ch := range b.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- active
	}
}
