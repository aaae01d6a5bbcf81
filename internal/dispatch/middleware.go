package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/quells-bot/unified-chat/llm"
)

// LogCalls returns middleware that logs every provider exchange. Credentials
// are never logged.
func LogCalls(logger *slog.Logger) llm.Middleware {
	return func(ctx context.Context, cfg llm.ProviderConfig, req *llm.Request, next llm.CompleteFunc) (string, error) {
		start := time.Now()
		text, err := next(ctx, cfg, req)

		attrs := []any{
			"provider", cfg.Provider,
			"model", cfg.Model,
			"history_len", len(req.History),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if err != nil {
			logger.Warn("provider call failed", append(attrs, "kind", llm.KindOf(err).String(), "error", err)...)
			return "", err
		}
		logger.Info("provider call complete", append(attrs, "reply_len", len(text))...)
		return text, nil
	}
}
