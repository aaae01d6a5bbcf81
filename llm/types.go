package llm

import "fmt"

// Role represents a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole validates a stored role string.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleSystem, RoleUser, RoleAssistant:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Message is a single text turn of a conversation.
type Message struct {
	Role    Role
	Content string
}

// SystemMessage creates a system message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage creates a user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// Request is the provider-independent input of one dispatch.
//
// History must already be in conversation order; adapters never reorder it.
// Utterance is always sent last with RoleUser.
type Request struct {
	Model       string // overrides the adapter default when set
	Endpoint    string // overrides the adapter base URL when set
	System      string
	History     []Message
	Utterance   string
	MaxTokens   *int
	Temperature *float64
}

func (r *Request) maxTokens() int {
	if r.MaxTokens != nil {
		return *r.MaxTokens
	}
	return DefaultMaxTokens
}

// DefaultMaxTokens caps replies when the request does not say otherwise.
const DefaultMaxTokens = 1000

// ProviderConfig selects an adapter and carries its credential.
type ProviderConfig struct {
	Provider   string
	Credential string
	Endpoint   string // optional base URL override
	Model      string // optional model override
}

// Redacted returns a copy safe for logging.
func (c ProviderConfig) Redacted() ProviderConfig {
	if c.Credential != "" {
		c.Credential = "***"
	}
	return c
}
