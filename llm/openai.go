package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	openaiProvider     = "openai"
	OpenAIDefaultURL   = "https://api.openai.com/v1"
	OpenAIDefaultModel = "gpt-4o"
)

// OpenAIAdapter talks to the OpenAI Chat Completions API.
type OpenAIAdapter struct {
	http httpCaller
}

// NewOpenAIAdapter creates a new OpenAIAdapter. A nil doer uses an
// *http.Client with DefaultTimeout.
func NewOpenAIAdapter(doer HTTPDoer) *OpenAIAdapter {
	return &OpenAIAdapter{http: newHTTPCaller(doer)}
}

func (a *OpenAIAdapter) Provider() string { return openaiProvider }

func (a *OpenAIAdapter) RequiresCredential() bool { return true }

// --- Chat Completions wire types, shared with LocalAdapter ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatRespMsg `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatRespMsg struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

type openaiErrorBody struct {
	Error *struct {
		Message string     `json:"message"`
		Type    flexString `json:"type"`
		Code    flexString `json:"code"`
	} `json:"error"`
}

func buildChatRequest(req *Request, defaultModel string) chatRequest {
	cr := chatRequest{
		Model:       defaultModel,
		MaxTokens:   req.maxTokens(),
		Temperature: req.Temperature,
	}
	if req.Model != "" {
		cr.Model = req.Model
	}

	cr.Messages = make([]chatMessage, 0, len(req.History)+2)
	if req.System != "" {
		cr.Messages = append(cr.Messages, chatMessage{Role: string(RoleSystem), Content: req.System})
	}
	for _, m := range req.History {
		cr.Messages = append(cr.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	cr.Messages = append(cr.Messages, chatMessage{Role: string(RoleUser), Content: req.Utterance})
	return cr
}

func parseChatResponse(raw *RawResponse) (string, error) {
	if !raw.OK() {
		return "", fmt.Errorf("unexpected status %d", raw.StatusCode)
	}
	var cr chatResponse
	if err := json.Unmarshal(raw.Body, &cr); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("response has no choices")
	}
	content := cr.Choices[0].Message.Content
	if content == nil || *content == "" {
		return "", fmt.Errorf("response has no choices[0].message.content")
	}
	return *content, nil
}

func (a *OpenAIAdapter) BuildRequest(req *Request, credential string) (*WireRequest, error) {
	if credential == "" {
		return nil, &Error{Kind: ErrValidation, Provider: openaiProvider, Message: "credential required"}
	}

	body, err := json.Marshal(buildChatRequest(req, OpenAIDefaultModel))
	if err != nil {
		return nil, &Error{Kind: ErrProvider, Provider: openaiProvider, Message: "failed to marshal request", Cause: err}
	}

	base := OpenAIDefaultURL
	if req.Endpoint != "" {
		base = req.Endpoint
	}
	header := jsonHeader()
	header.Set("Authorization", "Bearer "+credential)

	return &WireRequest{
		Method: http.MethodPost,
		URL:    joinURL(base, "/chat/completions"),
		Header: header,
		Body:   body,
	}, nil
}

func (a *OpenAIAdapter) Call(ctx context.Context, wire *WireRequest) (*RawResponse, error) {
	return a.http.call(ctx, wire)
}

func (a *OpenAIAdapter) ParseResponse(raw *RawResponse) (string, error) {
	return parseChatResponse(raw)
}

func (a *OpenAIAdapter) ClassifyError(raw *RawResponse, cause error) *Error {
	if cause != nil {
		return networkError(openaiProvider, cause)
	}

	var eb openaiErrorBody
	if err := json.Unmarshal(raw.Body, &eb); err != nil || eb.Error == nil {
		switch raw.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &Error{Kind: ErrAuth, Provider: openaiProvider, Message: fmt.Sprintf("status %d", raw.StatusCode), Raw: raw.Body}
		}
		return malformed(openaiProvider, fmt.Sprintf("unexpected response (status %d)", raw.StatusCode), raw)
	}

	msg := eb.Error.Message
	if msg == "" {
		msg = string(eb.Error.Code)
	}
	kind := ErrProvider
	switch {
	case eb.Error.Code == "invalid_api_key" || eb.Error.Type == "invalid_api_key":
		kind = ErrAuth
	case eb.Error.Code == "insufficient_quota" || eb.Error.Type == "insufficient_quota":
		kind = ErrQuota
	case raw.StatusCode == http.StatusUnauthorized:
		kind = ErrAuth
	}
	return &Error{Kind: kind, Provider: openaiProvider, Message: msg, Raw: raw.Body}
}
