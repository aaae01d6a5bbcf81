// Package cli provides the command-line interface for unified-chat.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/quells-bot/unified-chat/internal/config"
	"github.com/quells-bot/unified-chat/internal/dispatch"
	"github.com/quells-bot/unified-chat/internal/settings"
	"github.com/quells-bot/unified-chat/internal/store"
	"github.com/quells-bot/unified-chat/llm"
)

// Version is set at build time.
var Version = "0.1.0"

// app holds what every subcommand needs once PersistentPreRunE has run.
type app struct {
	cfg       config.Config
	principal string
	logger    *slog.Logger
	closeLog  func() error
	store     store.Store
	settings  *settings.File
	client    *llm.Client
	orch      *dispatch.Orchestrator
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "unified-chat",
		Short: "Chat with OpenAI, Gemini, Bedrock or a local model through one history",
		Long: `unified-chat keeps one durable conversation per user and sends each new
message, together with the full history, to whichever provider is configured.

Provider settings live in a YAML file (CHAT_SETTINGS_FILE). The conversation is
stored in SQLite by default, or in bbolt (CHAT_STORE=bolt) or SurrealDB
(CHAT_STORE=surrealdb).`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			return a.init(cmd.Context())
		},
	}

	root.PersistentFlags().StringVarP(&a.principal, "principal", "p", "", "conversation owner (default $CHAT_PRINCIPAL)")

	root.AddCommand(newSendCmd(a))
	root.AddCommand(newChatCmd(a))
	root.AddCommand(newHistoryCmd(a))
	root.AddCommand(newErrorsCmd(a))
	root.AddCommand(newSettingsCmd(a))
	return root
}

func (a *app) init(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.cfg = config.Load()
	if a.principal == "" {
		a.principal = a.cfg.Principal
	}

	a.logger, a.closeLog = config.SetupLogger(a.cfg.LogFile, a.cfg.LogLevel)
	slog.SetDefault(a.logger)

	st, err := openStore(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	a.store = st
	a.settings = settings.Open(a.cfg.SettingsFile)

	a.client = llm.NewClient(append(adapters(ctx, a.cfg, a.logger), llm.WithMiddleware(dispatch.LogCalls(a.logger)))...)
	a.orch = dispatch.New(a.store, a.client, a.settings,
		dispatch.WithSystemPrompt(a.cfg.SystemPrompt),
		dispatch.WithMaxTokens(a.cfg.MaxTokens),
		dispatch.WithLogger(a.logger),
	)
	return nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
		}
		a.store = nil
	}
	if a.closeLog != nil {
		_ = a.closeLog()
		a.closeLog = nil
	}
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		st, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil
	case config.StoreBolt:
		st, err := store.NewBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("open bolt store: %w", err)
		}
		return st, nil
	case config.StoreSurrealDB:
		st, err := store.NewSurrealStore(ctx, store.SurrealConfig{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown CHAT_STORE %q (want %s, %s or %s)", cfg.Store, config.StoreSQLite, config.StoreBolt, config.StoreSurrealDB)
	}
}

// adapters registers every provider. Bedrock is skipped when the AWS
// configuration cannot be loaded.
func adapters(ctx context.Context, cfg config.Config, logger *slog.Logger) []llm.ClientOption {
	httpClient := llm.NewHTTPClient(cfg.ProviderTimeout)
	opts := []llm.ClientOption{
		llm.WithAdapter(llm.NewOpenAIAdapter(httpClient)),
		llm.WithAdapter(llm.NewGeminiAdapter(httpClient)),
		llm.WithAdapter(llm.NewLocalAdapter(httpClient)),
	}

	invoker, err := llm.NewBedrockInvoker(ctx, cfg.AWSRegion)
	if err != nil {
		logger.Warn("bedrock unavailable", "error", err)
		return opts
	}
	return append(opts, llm.WithAdapter(llm.NewBedrockAdapter(invoker)))
}

// Execute runs the root command.
func Execute() error {
	return run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := &app{}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}
