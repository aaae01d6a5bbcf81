package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
)

const (
	bedrockProvider     = "bedrock"
	BedrockDefaultModel = "us.anthropic.claude-haiku-4-5-20251001-v1:0"
)

// BedrockAdapter sends Anthropic Messages requests through Bedrock
// InvokeModel. Credentials come from the AWS default chain, never from
// ProviderConfig.
type BedrockAdapter struct {
	invoker BedrockInvoker
}

// NewBedrockAdapter creates a new BedrockAdapter.
func NewBedrockAdapter(invoker BedrockInvoker) *BedrockAdapter {
	return &BedrockAdapter{invoker: invoker}
}

// NewBedrockInvoker builds a Bedrock runtime client from the default AWS
// configuration. An empty region defers to the environment.
func NewBedrockInvoker(ctx context.Context, region string) (*bedrockruntime.Client, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	conf, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return bedrockruntime.NewFromConfig(conf), nil
}

func (a *BedrockAdapter) Provider() string { return bedrockProvider }

func (a *BedrockAdapter) RequiresCredential() bool { return false }

// --- Anthropic-on-Bedrock wire types ---

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
	Temperature      *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Model      string             `json:"model"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
}

func (a *BedrockAdapter) BuildRequest(req *Request, _ string) (*WireRequest, error) {
	ar := anthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        req.maxTokens(),
		System:           req.System,
		Temperature:      req.Temperature,
	}

	turns := make([]Message, 0, len(req.History)+1)
	for _, m := range req.History {
		if m.Role == RoleSystem {
			if ar.System != "" {
				ar.System += "\n\n"
			}
			ar.System += m.Content
			continue
		}
		turns = append(turns, m)
	}
	turns = append(turns, UserMessage(req.Utterance))

	for _, m := range turns {
		am := anthropicMessage{
			Role:    string(m.Role),
			Content: []anthropicContent{{Type: "text", Text: m.Content}},
		}
		// Enforce strict user/assistant alternation: merge consecutive same-role messages.
		// A failed send leaves two user turns in a row.
		if n := len(ar.Messages); n > 0 && ar.Messages[n-1].Role == am.Role {
			ar.Messages[n-1].Content = append(ar.Messages[n-1].Content, am.Content...)
		} else {
			ar.Messages = append(ar.Messages, am)
		}
	}

	body, err := json.Marshal(ar)
	if err != nil {
		return nil, &Error{Kind: ErrProvider, Provider: bedrockProvider, Message: "failed to marshal request", Cause: err}
	}

	model := BedrockDefaultModel
	if req.Model != "" {
		model = req.Model
	}
	return &WireRequest{ModelID: model, Body: body}, nil
}

func (a *BedrockAdapter) Call(ctx context.Context, wire *WireRequest) (*RawResponse, error) {
	if a.invoker == nil {
		return nil, errors.New("bedrock invoker not configured")
	}
	out, err := a.invoker.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(wire.ModelID),
		Body:        wire.Body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, err
	}
	return &RawResponse{StatusCode: 200, Body: out.Body}, nil
}

func (a *BedrockAdapter) ParseResponse(raw *RawResponse) (string, error) {
	var ar anthropicResponse
	if err := json.Unmarshal(raw.Body, &ar); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	var b strings.Builder
	for _, c := range ar.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("response has no text content")
	}
	return b.String(), nil
}

func (a *BedrockAdapter) ClassifyError(raw *RawResponse, cause error) *Error {
	if cause == nil {
		return malformed(bedrockProvider, "unexpected response shape", raw)
	}
	return classifyBedrockError(cause)
}

func classifyBedrockError(err error) *Error {
	var kind ErrorKind
	msg := err.Error()

	// Check for specific Bedrock exception types
	var accessDenied *types.AccessDeniedException
	var throttling *types.ThrottlingException
	var quota *types.ServiceQuotaExceededException
	var timeout *types.ModelTimeoutException
	var validation *types.ValidationException
	var notFound *types.ResourceNotFoundException
	var internal *types.InternalServerException
	var modelErr *types.ModelErrorException
	var apiErr smithy.APIError

	// Throttling is a rate limit, not exhausted quota, and stays a provider error.
	switch {
	case errors.As(err, &accessDenied):
		kind = ErrAuth
	case errors.As(err, &quota):
		kind = ErrQuota
	case errors.As(err, &timeout):
		kind = ErrNetwork
	case errors.As(err, &validation), errors.As(err, &notFound), errors.As(err, &internal), errors.As(err, &modelErr), errors.As(err, &throttling):
		kind = ErrProvider
	case errors.As(err, &apiErr):
		// Any other modeled exception means the service answered.
		kind = ErrProvider
	default:
		// Untyped failures: credential problems surface only in the message,
		// everything else never reached the service.
		lower := strings.ToLower(msg)
		switch {
		case strings.Contains(lower, "security token") || strings.Contains(lower, "unrecognizedclient") ||
			strings.Contains(lower, "no valid credential") || strings.Contains(lower, "failed to retrieve credentials"):
			kind = ErrAuth
		case strings.Contains(lower, "quota") || strings.Contains(lower, "billing") || strings.Contains(lower, "credit balance"):
			kind = ErrQuota
		default:
			kind = ErrNetwork
		}
	}

	return &Error{
		Kind:     kind,
		Provider: bedrockProvider,
		Message:  msg,
		Cause:    err,
	}
}
