package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const (
	geminiProvider           = "gemini"
	GeminiDefaultURL         = "https://generativelanguage.googleapis.com/v1beta"
	GeminiDefaultModel       = "gemini-1.5-pro"
	GeminiDefaultTemperature = 0.4
)

// GeminiAdapter talks to the Gemini generateContent API. The credential is
// sent as the "key" query parameter, so wire URLs must never be logged.
type GeminiAdapter struct {
	http httpCaller
}

// NewGeminiAdapter creates a new GeminiAdapter.
func NewGeminiAdapter(doer HTTPDoer) *GeminiAdapter {
	return &GeminiAdapter{http: newHTTPCaller(doer)}
}

func (a *GeminiAdapter) Provider() string { return geminiProvider }

func (a *GeminiAdapter) RequiresCredential() bool { return true }

// --- Gemini wire types ---

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

type geminiErrorBody struct {
	Error *struct {
		Code    flexString `json:"code"`
		Message string     `json:"message"`
		Status  string     `json:"status"`
		Details []struct {
			Reason string `json:"reason"`
		} `json:"details"`
	} `json:"error"`
}

// geminiRole maps unified roles onto Gemini's user/model pair. Gemini has no
// system turn inside contents, so stray system history is sent as user text.
func geminiRole(r Role) string {
	if r == RoleAssistant {
		return "model"
	}
	return "user"
}

func (a *GeminiAdapter) BuildRequest(req *Request, credential string) (*WireRequest, error) {
	if credential == "" {
		return nil, &Error{Kind: ErrValidation, Provider: geminiProvider, Message: "credential required"}
	}

	gr := geminiRequest{
		Contents: make([]geminiContent, 0, len(req.History)+1),
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: req.maxTokens(),
			Temperature:     GeminiDefaultTemperature,
		},
	}
	if req.Temperature != nil {
		gr.GenerationConfig.Temperature = *req.Temperature
	}
	if req.System != "" {
		gr.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	for _, m := range req.History {
		gr.Contents = append(gr.Contents, geminiContent{Role: geminiRole(m.Role), Parts: []geminiPart{{Text: m.Content}}})
	}
	gr.Contents = append(gr.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: req.Utterance}}})

	body, err := json.Marshal(gr)
	if err != nil {
		return nil, &Error{Kind: ErrProvider, Provider: geminiProvider, Message: "failed to marshal request", Cause: err}
	}

	base := GeminiDefaultURL
	if req.Endpoint != "" {
		base = req.Endpoint
	}
	model := GeminiDefaultModel
	if req.Model != "" {
		model = req.Model
	}
	u := joinURL(base, "/models/"+url.PathEscape(model)+":generateContent") + "?key=" + url.QueryEscape(credential)

	return &WireRequest{
		Method: http.MethodPost,
		URL:    u,
		Header: jsonHeader(),
		Body:   body,
	}, nil
}

func (a *GeminiAdapter) Call(ctx context.Context, wire *WireRequest) (*RawResponse, error) {
	return a.http.call(ctx, wire)
}

func (a *GeminiAdapter) ParseResponse(raw *RawResponse) (string, error) {
	if !raw.OK() {
		return "", fmt.Errorf("unexpected status %d", raw.StatusCode)
	}
	var gr geminiResponse
	if err := json.Unmarshal(raw.Body, &gr); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 || gr.Candidates[0].Content.Parts[0].Text == "" {
		return "", fmt.Errorf("response has no candidates[0].content.parts[0].text")
	}
	return gr.Candidates[0].Content.Parts[0].Text, nil
}

func (a *GeminiAdapter) ClassifyError(raw *RawResponse, cause error) *Error {
	if cause != nil {
		return networkError(geminiProvider, cause)
	}

	var eb geminiErrorBody
	if err := json.Unmarshal(raw.Body, &eb); err != nil || eb.Error == nil {
		return malformed(geminiProvider, fmt.Sprintf("unexpected response (status %d)", raw.StatusCode), raw)
	}

	codes := []string{string(eb.Error.Code), eb.Error.Status}
	for _, d := range eb.Error.Details {
		codes = append(codes, d.Reason)
	}

	msg := eb.Error.Message
	if msg == "" {
		msg = string(eb.Error.Code)
	}
	return &Error{Kind: classifyGeminiCodes(codes), Provider: geminiProvider, Message: msg, Raw: raw.Body}
}

func classifyGeminiCodes(codes []string) ErrorKind {
	// Auth reasons win: an invalid key arrives with status INVALID_ARGUMENT.
	for _, c := range codes {
		switch c {
		case "API_KEY_INVALID", "PERMISSION_DENIED", "UNAUTHENTICATED":
			return ErrAuth
		}
	}
	for _, c := range codes {
		if c == "RESOURCE_EXHAUSTED" {
			return ErrQuota
		}
	}
	return ErrProvider
}
