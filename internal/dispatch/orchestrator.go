// Package dispatch runs one send at a time per principal: it persists the
// user's message, calls the configured provider, and records either the
// reply or the failure.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quells-bot/unified-chat/internal/models"
	"github.com/quells-bot/unified-chat/internal/store"
	"github.com/quells-bot/unified-chat/llm"
)

var (
	// ErrBusy rejects a send while another send for the same principal is in
	// flight. Rejected sends are not queued.
	ErrBusy = errors.New("a message is already being sent")

	// ErrEmptyMessage rejects blank input.
	ErrEmptyMessage = errors.New("message is empty")
)

// ConfigSource resolves the provider configuration for a principal. It is
// consulted on every send.
type ConfigSource interface {
	ProviderConfig(ctx context.Context, principal string) (llm.ProviderConfig, error)
}

// ConfigSourceFunc adapts a function to ConfigSource.
type ConfigSourceFunc func(ctx context.Context, principal string) (llm.ProviderConfig, error)

func (f ConfigSourceFunc) ProviderConfig(ctx context.Context, principal string) (llm.ProviderConfig, error) {
	return f(ctx, principal)
}

// Completer performs provider exchanges. *llm.Client implements it.
type Completer interface {
	Validate(cfg llm.ProviderConfig) error
	Complete(ctx context.Context, cfg llm.ProviderConfig, req *llm.Request) (string, error)
}

// Result is the outcome of a Send. Reply is zero when the provider call
// failed.
type Result struct {
	User  models.Message
	Reply models.Message
}

// Snapshot is what a principal sees when opening a session.
type Snapshot struct {
	History []models.Message
	Error   *models.ErrorRecord // pending failure from an earlier session, if any
}

// Orchestrator is the only writer to the conversation store.
type Orchestrator struct {
	store        store.Store
	client       Completer
	configs      ConfigSource
	systemPrompt string
	maxTokens    int
	logger       *slog.Logger
	observer     func(Transition)

	mu       sync.Mutex
	sessions map[string]*atomic.Int32
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSystemPrompt sets the instruction sent with every request.
func WithSystemPrompt(prompt string) Option {
	return func(o *Orchestrator) { o.systemPrompt = prompt }
}

// WithMaxTokens caps reply length.
func WithMaxTokens(n int) Option {
	return func(o *Orchestrator) { o.maxTokens = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithObserver registers a callback for state transitions. It runs on the
// sending goroutine and must not block.
func WithObserver(fn func(Transition)) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// New creates an Orchestrator.
func New(st store.Store, client Completer, configs ConfigSource, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     st,
		client:    client,
		configs:   configs,
		maxTokens: llm.DefaultMaxTokens,
		logger:    slog.Default(),
		sessions:  make(map[string]*atomic.Int32),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) session(principal string) *atomic.Int32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[principal]
	if !ok {
		s = new(atomic.Int32)
		o.sessions[principal] = s
	}
	return s
}

// State reports the current state for principal.
func (o *Orchestrator) State(principal string) State {
	return State(o.session(principal).Load())
}

func (o *Orchestrator) transition(principal string, s *atomic.Int32, from, to State) {
	s.Store(int32(to))
	if o.observer != nil {
		o.observer(Transition{Principal: principal, From: from, To: to})
	}
}

// Send appends text as the principal's next message and dispatches it to the
// configured provider.
//
// The user message is persisted before the provider is contacted and is kept
// on failure. Provider and configuration failures are returned as *llm.Error
// and recorded as the principal's ErrorRecord; storage failures are returned
// wrapped with store.ErrStorage and are not recorded.
func (o *Orchestrator) Send(ctx context.Context, principal, text string) (res *Result, err error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	s := o.session(principal)
	if !s.CompareAndSwap(int32(Idle), int32(Sending)) {
		return nil, ErrBusy
	}
	if o.observer != nil {
		o.observer(Transition{Principal: principal, From: Idle, To: Sending})
	}

	completed := false
	defer func() {
		final := Succeeded
		if err != nil || !completed {
			final = Failed
		}
		o.transition(principal, s, Sending, final)
		o.transition(principal, s, final, Idle)
	}()

	res, err = o.send(ctx, principal, text)
	completed = true
	return res, err
}

func (o *Orchestrator) send(ctx context.Context, principal, text string) (*Result, error) {
	log := o.logger.With("principal", principal)

	// History is read before the append so the utterance is not sent twice.
	history, err := o.store.LoadHistory(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	user, err := o.store.Append(ctx, principal, llm.RoleUser, text)
	if err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	res := &Result{User: user}

	cfg, err := o.configs.ProviderConfig(ctx, principal)
	if err != nil {
		return res, o.fail(ctx, log, principal, &llm.Error{
			Kind:    llm.ErrValidation,
			Message: err.Error(),
			Cause:   err,
		})
	}
	if err := o.client.Validate(cfg); err != nil {
		return res, o.fail(ctx, log, principal, err)
	}

	maxTokens := o.maxTokens
	req := &llm.Request{
		System:    o.systemPrompt,
		History:   models.LLMMessages(history),
		Utterance: text,
		MaxTokens: &maxTokens,
	}
	reply, err := o.client.Complete(ctx, cfg, req)
	if err != nil {
		return res, o.fail(ctx, log, principal, err)
	}

	res.Reply, err = o.store.Append(ctx, principal, llm.RoleAssistant, reply)
	if err != nil {
		return res, fmt.Errorf("send: %w", err)
	}
	if err := o.store.ClearError(context.WithoutCancel(ctx), principal); err != nil {
		log.Warn("failed to clear error record", "error", err)
	}
	log.Debug("send complete", "provider", cfg.Provider, "position", res.Reply.Position)
	return res, nil
}

// fail persists the ErrorRecord for err and returns err as an *llm.Error.
func (o *Orchestrator) fail(ctx context.Context, log *slog.Logger, principal string, err error) error {
	var llmErr *llm.Error
	if !errors.As(err, &llmErr) {
		llmErr = &llm.Error{Kind: llm.ErrProvider, Message: err.Error(), Cause: err}
	}

	rec := models.ErrorRecord{
		Kind:       llmErr.Kind,
		Message:    llmErr.Error(),
		RecordedAt: time.Now().UTC(),
	}
	// The record must outlive a cancelled send.
	if rerr := o.store.RecordError(context.WithoutCancel(ctx), principal, rec); rerr != nil {
		log.Error("failed to record dispatch error", "error", rerr, "kind", llmErr.Kind.String())
	}
	log.Warn("send failed", "kind", llmErr.Kind.String(), "provider", llmErr.Provider, "error", llmErr.Message)
	return llmErr
}

// Open returns the principal's history and any pending ErrorRecord.
func (o *Orchestrator) Open(ctx context.Context, principal string) (*Snapshot, error) {
	history, err := o.store.LoadHistory(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	rec, err := o.store.LoadError(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return &Snapshot{History: history, Error: rec}, nil
}

// History returns the principal's conversation in order.
func (o *Orchestrator) History(ctx context.Context, principal string) ([]models.Message, error) {
	return o.store.LoadHistory(ctx, principal)
}

// Acknowledge dismisses the pending ErrorRecord.
func (o *Orchestrator) Acknowledge(ctx context.Context, principal string) error {
	return o.store.ClearError(ctx, principal)
}

// Reconfigured is called after the principal's provider settings change. A
// pending error no longer applies to the new configuration.
func (o *Orchestrator) Reconfigured(ctx context.Context, principal string) error {
	o.logger.Info("provider settings changed", "principal", principal)
	return o.store.ClearError(ctx, principal)
}
