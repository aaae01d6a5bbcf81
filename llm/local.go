package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	localProvider     = "local"
	LocalDefaultURL   = "http://localhost:1234/v1"
	LocalDefaultModel = "mistral-7b-instruct-v0.1"
)

// LocalAdapter talks to an OpenAI-compatible server on the local network
// (LM Studio and friends). It never sends a credential and has no error code
// convention: a missing reply is the only failure signal.
type LocalAdapter struct {
	http httpCaller
}

// NewLocalAdapter creates a new LocalAdapter.
func NewLocalAdapter(doer HTTPDoer) *LocalAdapter {
	return &LocalAdapter{http: newHTTPCaller(doer)}
}

func (a *LocalAdapter) Provider() string { return localProvider }

func (a *LocalAdapter) RequiresCredential() bool { return false }

func (a *LocalAdapter) BuildRequest(req *Request, _ string) (*WireRequest, error) {
	body, err := json.Marshal(buildChatRequest(req, LocalDefaultModel))
	if err != nil {
		return nil, &Error{Kind: ErrProvider, Provider: localProvider, Message: "failed to marshal request", Cause: err}
	}

	base := LocalDefaultURL
	if req.Endpoint != "" {
		base = req.Endpoint
	}
	return &WireRequest{
		Method: http.MethodPost,
		URL:    joinURL(base, "/chat/completions"),
		Header: jsonHeader(),
		Body:   body,
	}, nil
}

func (a *LocalAdapter) Call(ctx context.Context, wire *WireRequest) (*RawResponse, error) {
	return a.http.call(ctx, wire)
}

func (a *LocalAdapter) ParseResponse(raw *RawResponse) (string, error) {
	return parseChatResponse(raw)
}

func (a *LocalAdapter) ClassifyError(raw *RawResponse, cause error) *Error {
	if cause != nil {
		return networkError(localProvider, cause)
	}
	return malformed(localProvider, fmt.Sprintf("unexpected response (status %d)", raw.StatusCode), raw)
}
