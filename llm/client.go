package llm

import (
	"context"
	"errors"
	"sort"
)

// CompleteFunc is the signature for the core completion call and middleware next functions.
type CompleteFunc func(ctx context.Context, cfg ProviderConfig, req *Request) (string, error)

// Middleware wraps a Complete call.
type Middleware func(ctx context.Context, cfg ProviderConfig, req *Request, next CompleteFunc) (string, error)

// Client routes requests to adapters by ProviderConfig.Provider.
type Client struct {
	adapters   map[string]Adapter
	middleware []Middleware
}

type clientConfig struct {
	adapters   []Adapter
	middleware []Middleware
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

// WithAdapter registers an adapter with the client.
func WithAdapter(a Adapter) ClientOption {
	return func(c *clientConfig) {
		c.adapters = append(c.adapters, a)
	}
}

// WithMiddleware adds middleware to the client.
func WithMiddleware(m ...Middleware) ClientOption {
	return func(c *clientConfig) {
		c.middleware = append(c.middleware, m...)
	}
}

// NewClient creates a new Client with the given options.
func NewClient(opts ...ClientOption) *Client {
	cfg := &clientConfig{}
	for _, o := range opts {
		o(cfg)
	}

	adapters := make(map[string]Adapter, len(cfg.adapters))
	for _, a := range cfg.adapters {
		adapters[a.Provider()] = a
	}

	return &Client{
		adapters:   adapters,
		middleware: cfg.middleware,
	}
}

// Adapter returns the adapter registered for provider.
func (c *Client) Adapter(provider string) (Adapter, bool) {
	a, ok := c.adapters[provider]
	return a, ok
}

// Providers returns the registered provider names in sorted order.
func (c *Client) Providers() []string {
	names := make([]string, 0, len(c.adapters))
	for name := range c.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate rejects configs that cannot be dispatched: empty or unknown
// provider, or a missing credential for an adapter that requires one.
func (c *Client) Validate(cfg ProviderConfig) error {
	if cfg.Provider == "" {
		return &Error{Kind: ErrValidation, Message: "no provider configured"}
	}
	adapter, ok := c.adapters[cfg.Provider]
	if !ok {
		return &Error{Kind: ErrValidation, Provider: cfg.Provider, Message: "no adapter registered for provider"}
	}
	if adapter.RequiresCredential() && cfg.Credential == "" {
		return &Error{Kind: ErrValidation, Provider: cfg.Provider, Message: "credential required"}
	}
	return nil
}

// Complete performs one exchange and returns the reply text. Every non-nil
// error is an *Error. No retries are attempted.
func (c *Client) Complete(ctx context.Context, cfg ProviderConfig, req *Request) (string, error) {
	if err := c.Validate(cfg); err != nil {
		return "", err
	}
	adapter := c.adapters[cfg.Provider]

	// Build the core function
	core := func(ctx context.Context, cfg ProviderConfig, req *Request) (string, error) {
		if cfg.Endpoint != "" || cfg.Model != "" {
			override := *req
			if cfg.Endpoint != "" {
				override.Endpoint = cfg.Endpoint
			}
			if cfg.Model != "" {
				override.Model = cfg.Model
			}
			req = &override
		}

		wire, err := adapter.BuildRequest(req, cfg.Credential)
		if err != nil {
			return "", asError(cfg.Provider, err)
		}

		raw, err := adapter.Call(ctx, wire)
		if err != nil {
			return "", adapter.ClassifyError(nil, err)
		}

		text, perr := adapter.ParseResponse(raw)
		if perr == nil {
			return text, nil
		}
		cerr := adapter.ClassifyError(raw, nil)
		if cerr.Kind == ErrProvider && cerr.Cause == nil {
			cerr.Cause = perr
		}
		return "", cerr
	}

	// Wrap with middleware (first registered = outermost)
	fn := core
	for i := len(c.middleware) - 1; i >= 0; i-- {
		mw := c.middleware[i]
		next := fn
		fn = func(ctx context.Context, cfg ProviderConfig, req *Request) (string, error) {
			return mw(ctx, cfg, req, next)
		}
	}

	text, err := fn(ctx, cfg, req)
	if err != nil {
		return "", asError(cfg.Provider, err)
	}
	return text, nil
}

func asError(provider string, err error) *Error {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}
	return &Error{Kind: ErrProvider, Provider: provider, Message: err.Error(), Cause: err}
}
