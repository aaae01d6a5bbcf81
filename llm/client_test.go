package llm

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"reflect"
	"testing"
)

const (
	openaiReply = `{"choices":[{"index":0,"message":{"role":"assistant","content":"Paris."},"finish_reason":"stop"}]}`
	geminiReply = `{"candidates":[{"content":{"role":"model","parts":[{"text":"Paris."}]}}]}`
	bedrockBody = `{"content":[{"type":"text","text":"Paris."}]}`
)

func TestClientComplete_ProviderSwitch(t *testing.T) {
	openaiDoer := &fakeDoer{body: openaiReply}
	geminiDoer := &fakeDoer{body: geminiReply}
	localDoer := &fakeDoer{body: openaiReply}
	invoker := &mockInvoker{body: []byte(bedrockBody)}

	client := NewClient(
		WithAdapter(NewOpenAIAdapter(openaiDoer)),
		WithAdapter(NewGeminiAdapter(geminiDoer)),
		WithAdapter(NewLocalAdapter(localDoer)),
		WithAdapter(NewBedrockAdapter(invoker)),
	)

	configs := []ProviderConfig{
		{Provider: "openai", Credential: "sk-test"},
		{Provider: "gemini", Credential: "AIza-test"},
		{Provider: "local"},
		{Provider: "bedrock"},
	}
	for _, cfg := range configs {
		text, err := client.Complete(context.Background(), cfg, historyRequest())
		if err != nil {
			t.Fatalf("%s: %v", cfg.Provider, err)
		}
		if text != "Paris." {
			t.Errorf("%s: text = %q", cfg.Provider, text)
		}
	}

	bodies := map[string][]byte{
		"openai":  openaiDoer.bodies[0],
		"gemini":  geminiDoer.bodies[0],
		"local":   localDoer.bodies[0],
		"bedrock": invoker.input.Body,
	}
	for a, ab := range bodies {
		for b, bb := range bodies {
			if a != b && bytes.Equal(ab, bb) {
				t.Errorf("%s and %s produced identical wire bodies", a, b)
			}
		}
	}
}

func TestClientComplete_MissingCredentialMakesNoCall(t *testing.T) {
	for _, provider := range []string{"openai", "gemini"} {
		t.Run(provider, func(t *testing.T) {
			doer := &fakeDoer{body: openaiReply}
			client := NewClient(
				WithAdapter(NewOpenAIAdapter(doer)),
				WithAdapter(NewGeminiAdapter(doer)),
			)
			_, err := client.Complete(context.Background(), ProviderConfig{Provider: provider}, historyRequest())
			if KindOf(err) != ErrValidation {
				t.Fatalf("err = %v, want validation error", err)
			}
			if len(doer.reqs) != 0 {
				t.Errorf("made %d network calls, want 0", len(doer.reqs))
			}
		})
	}
}

func TestClientComplete_LocalWithoutCredential(t *testing.T) {
	doer := &fakeDoer{body: openaiReply}
	client := NewClient(WithAdapter(NewLocalAdapter(doer)))
	text, err := client.Complete(context.Background(), ProviderConfig{Provider: "local"}, historyRequest())
	if err != nil {
		t.Fatal(err)
	}
	if text != "Paris." {
		t.Errorf("text = %q", text)
	}
}

func TestClientComplete_UnknownProvider(t *testing.T) {
	client := NewClient(WithAdapter(NewLocalAdapter(&fakeDoer{})))
	for _, provider := range []string{"", "anthropic"} {
		_, err := client.Complete(context.Background(), ProviderConfig{Provider: provider}, historyRequest())
		if KindOf(err) != ErrValidation {
			t.Errorf("provider %q: err = %v, want validation error", provider, err)
		}
	}
}

func TestClientProviders(t *testing.T) {
	client := NewClient(
		WithAdapter(NewLocalAdapter(&fakeDoer{})),
		WithAdapter(NewOpenAIAdapter(&fakeDoer{})),
	)
	want := []string{"local", "openai"}
	if got := client.Providers(); !reflect.DeepEqual(got, want) {
		t.Errorf("Providers() = %v, want %v", got, want)
	}
	if _, ok := client.Adapter("opneai"); ok {
		t.Error("Adapter(\"opneai\") found an adapter")
	}
}

func TestClientComplete_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(nil)
	endpoint := srv.URL
	srv.Close()

	client := NewClient(
		WithAdapter(NewOpenAIAdapter(NewHTTPClient(0))),
		WithAdapter(NewGeminiAdapter(NewHTTPClient(0))),
		WithAdapter(NewLocalAdapter(NewHTTPClient(0))),
	)
	for _, cfg := range []ProviderConfig{
		{Provider: "openai", Credential: "sk-test", Endpoint: endpoint},
		{Provider: "gemini", Credential: "AIza-test", Endpoint: endpoint},
		{Provider: "local", Endpoint: endpoint},
	} {
		_, err := client.Complete(context.Background(), cfg, historyRequest())
		if KindOf(err) != ErrNetwork {
			t.Errorf("%s: err = %v, want network error", cfg.Provider, err)
		}
	}
}

func TestClientComplete_MissingContentField(t *testing.T) {
	client := NewClient(
		WithAdapter(NewOpenAIAdapter(&fakeDoer{body: `{"choices":[{"message":{"role":"assistant"}}]}`})),
		WithAdapter(NewGeminiAdapter(&fakeDoer{body: `{"candidates":[]}`})),
		WithAdapter(NewLocalAdapter(&fakeDoer{body: `{"object":"chat.completion"}`})),
		WithAdapter(NewBedrockAdapter(&mockInvoker{body: []byte(`{"content":[]}`)})),
	)
	for _, cfg := range []ProviderConfig{
		{Provider: "openai", Credential: "sk-test"},
		{Provider: "gemini", Credential: "AIza-test"},
		{Provider: "local"},
		{Provider: "bedrock"},
	} {
		_, err := client.Complete(context.Background(), cfg, historyRequest())
		var llmErr *Error
		if !errors.As(err, &llmErr) {
			t.Fatalf("%s: expected *Error, got %T", cfg.Provider, err)
		}
		if llmErr.Kind != ErrProvider {
			t.Errorf("%s: Kind = %v, want ErrProvider", cfg.Provider, llmErr.Kind)
		}
		if llmErr.Cause == nil {
			t.Errorf("%s: parse failure should be kept as Cause", cfg.Provider)
		}
	}
}

func TestClientComplete_ClassifiedProviderError(t *testing.T) {
	client := NewClient(WithAdapter(NewOpenAIAdapter(&fakeDoer{status: 401, body: `{"error":{"code":"invalid_api_key"}}`})))
	_, err := client.Complete(context.Background(), ProviderConfig{Provider: "openai", Credential: "sk-bad"}, historyRequest())
	if KindOf(err) != ErrAuth {
		t.Errorf("err = %v, want auth error", err)
	}
}

func TestClientComplete_ConfigOverrides(t *testing.T) {
	doer := &fakeDoer{body: openaiReply}
	client := NewClient(WithAdapter(NewLocalAdapter(doer)))
	cfg := ProviderConfig{Provider: "local", Endpoint: "http://192.168.10.12:1234/v1", Model: "qwen2"}

	req := historyRequest()
	if _, err := client.Complete(context.Background(), cfg, req); err != nil {
		t.Fatal(err)
	}
	if got := doer.reqs[0].URL.String(); got != "http://192.168.10.12:1234/v1/chat/completions" {
		t.Errorf("URL = %q", got)
	}
	if !bytes.Contains(doer.bodies[0], []byte(`"model":"qwen2"`)) {
		t.Errorf("model override missing from %s", doer.bodies[0])
	}
	if req.Model != "" || req.Endpoint != "" {
		t.Error("caller's request must not be mutated")
	}
}

func TestClientComplete_MiddlewareOrder(t *testing.T) {
	var order []string
	mw1 := func(ctx context.Context, cfg ProviderConfig, req *Request, next CompleteFunc) (string, error) {
		order = append(order, "mw1-before")
		text, err := next(ctx, cfg, req)
		order = append(order, "mw1-after")
		return text, err
	}
	mw2 := func(ctx context.Context, cfg ProviderConfig, req *Request, next CompleteFunc) (string, error) {
		order = append(order, "mw2-before")
		text, err := next(ctx, cfg, req)
		order = append(order, "mw2-after")
		return text, err
	}

	client := NewClient(
		WithAdapter(NewLocalAdapter(&fakeDoer{body: openaiReply})),
		WithMiddleware(mw1, mw2),
	)
	_, err := client.Complete(context.Background(), ProviderConfig{Provider: "local"}, historyRequest())
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"mw1-before", "mw2-before", "mw2-after", "mw1-after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}
