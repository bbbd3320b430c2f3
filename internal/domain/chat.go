package domain

// ChatMessage es un mensaje de respuesta del endpoint de chat listo para presentarse.
type ChatMessage struct {
	Text string `json:"text"`
}

// ChatRequest es el cuerpo de POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
}
