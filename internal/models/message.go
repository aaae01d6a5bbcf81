package models

import (
	"time"

	"github.com/quells-bot/unified-chat/llm"
)

// Message is one persisted turn of a principal's conversation.
type Message struct {
	ID        string    `json:"id"`
	Principal string    `json:"principal"`
	Role      llm.Role  `json:"role"`
	Content   string    `json:"content"`
	Position  int64     `json:"position"` // strictly increasing per principal, starting at 0
	CreatedAt time.Time `json:"created_at"`
}

// ErrorRecord is the last dispatch failure of a principal. At most one exists
// per principal; it is cleared on the next success, on acknowledgement, or
// when the principal's provider settings change.
type ErrorRecord struct {
	Kind       llm.ErrorKind `json:"kind"`
	Message    string        `json:"message"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// LLMMessages converts stored history to the provider-independent form.
func LLMMessages(history []Message) []llm.Message {
	out := make([]llm.Message, len(history))
	for i, m := range history {
		out[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
