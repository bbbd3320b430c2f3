package backend

import (
	"encoding/json"
	"errors"
	"fmt"

	"stock-assistant/internal/domain"
)

var (
	ErrInvalidJSON       = errors.New("backend respondio JSON invalido")
	ErrUnrecognizedReply = errors.New("forma de respuesta de chat no reconocida")
)

// ReplyShape distingue las dos formas que devuelve /api/chat.
type ReplyShape int

const (
	ShapeMessages ReplyShape = iota + 1 // {"messages":[{"text":...}], ...}
	ShapeText                           // {"text": ...}
)

func (s ReplyShape) String() string {
	switch s {
	case ShapeMessages:
		return "messages"
	case ShapeText:
		return "text"
	default:
		return "unknown"
	}
}

// ChatReply es la respuesta de chat ya clasificada en una de sus formas conocidas.
type ChatReply struct {
	Shape    ReplyShape
	Messages []domain.ChatMessage
	Text     string
}

// ParseChatReply clasifica el cuerpo de /api/chat. Si trae "messages" se exige que el primero tenga
// texto; si no, se usa "text". Cualquier otra cosa es ErrUnrecognizedReply.
func ParseChatReply(body []byte) (ChatReply, error) {
	if !json.Valid(body) {
		return ChatReply{}, ErrInvalidJSON
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return ChatReply{}, fmt.Errorf("%w: se esperaba un objeto", ErrUnrecognizedReply)
	}

	if raw, ok := fields["messages"]; ok && !isNull(raw) {
		var items []struct {
			Text *string `json:"text"`
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			return ChatReply{}, fmt.Errorf("%w: messages no es una lista de mensajes", ErrUnrecognizedReply)
		}
		if len(items) == 0 || items[0].Text == nil {
			return ChatReply{}, fmt.Errorf("%w: messages sin texto", ErrUnrecognizedReply)
		}
		msgs := make([]domain.ChatMessage, 0, len(items))
		for _, it := range items {
			if it.Text == nil {
				continue
			}
			msgs = append(msgs, domain.ChatMessage{Text: *it.Text})
		}
		return ChatReply{Shape: ShapeMessages, Messages: msgs}, nil
	}

	if raw, ok := fields["text"]; ok {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return ChatReply{}, fmt.Errorf("%w: text no es un string", ErrUnrecognizedReply)
		}
		return ChatReply{Shape: ShapeText, Text: text}, nil
	}

	return ChatReply{}, fmt.Errorf("%w: faltan messages y text", ErrUnrecognizedReply)
}

// Normalize devuelve el mensaje a presentar: el primero de la lista o el texto suelto.
func (r ChatReply) Normalize() (domain.ChatMessage, error) {
	switch r.Shape {
	case ShapeMessages:
		if len(r.Messages) == 0 {
			return domain.ChatMessage{}, ErrUnrecognizedReply
		}
		return r.Messages[0], nil
	case ShapeText:
		return domain.ChatMessage{Text: r.Text}, nil
	default:
		return domain.ChatMessage{}, ErrUnrecognizedReply
	}
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}
