package llm

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// Adapter translates between unified types and one provider's native format.
type Adapter interface {
	// Provider returns the provider name (e.g., "openai", "gemini").
	Provider() string

	// RequiresCredential reports whether dispatch must be refused when no
	// credential is configured.
	RequiresCredential() bool

	// BuildRequest translates a unified Request into the provider's wire request.
	BuildRequest(req *Request, credential string) (*WireRequest, error)

	// Call performs exactly one exchange. Transport failures are returned as
	// errors; provider error responses are returned as a RawResponse.
	Call(ctx context.Context, wire *WireRequest) (*RawResponse, error)

	// ParseResponse extracts the assistant reply from a raw response.
	ParseResponse(raw *RawResponse) (string, error)

	// ClassifyError maps a failed exchange onto an ErrorKind. Exactly one of
	// raw and cause is non-nil.
	ClassifyError(raw *RawResponse, cause error) *Error
}

// WireRequest is a fully built provider request.
type WireRequest struct {
	Method  string
	URL     string
	Header  http.Header
	ModelID string // Bedrock model ID; empty for HTTP providers
	Body    []byte // serialized JSON in the provider's native format
}

// RawResponse is what came back from the provider, before interpretation.
type RawResponse struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the exchange succeeded at the transport level.
func (r *RawResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// HTTPDoer abstracts the HTTP round trip for testing. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// BedrockInvoker abstracts the Bedrock InvokeModel call for testing.
type BedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}
