package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/quells-bot/unified-chat/internal/dispatch"
	"github.com/quells-bot/unified-chat/llm"
)

func newChatCmd(a *app) *cobra.Command {
	var last int

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long: `Start an interactive conversation.

The recent history is shown first, followed by any failure left over from an
earlier session. Each line you type is sent as one message. Edits to the
settings file take effect on the next message.

Commands:
  /history   print the whole conversation
  /ack       dismiss the pending failure
  /quit      leave`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.chat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), last)
		},
	}
	cmd.Flags().IntVarP(&last, "last", "n", 10, "messages of history to show on start")
	return cmd
}

func (a *app) chat(ctx context.Context, in io.Reader, out io.Writer, last int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var outMu sync.Mutex
	say := func(format string, args ...any) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	snap, err := a.orch.Open(ctx, a.principal)
	if err != nil {
		return err
	}
	history := snap.History
	if last >= 0 && len(history) > last {
		history = history[len(history)-last:]
	}
	for _, m := range history {
		say("%s: %s\n", speaker(m.Role), m.Content)
	}
	if snap.Error != nil {
		outMu.Lock()
		printErrorRecord(out, snap.Error)
		outMu.Unlock()
		say("(type /ack to dismiss)\n")
	}

	err = a.settings.Watch(ctx, func() {
		if err := a.orch.Reconfigured(ctx, a.principal); err != nil {
			a.logger.Warn("failed to clear error after settings change", "error", err)
			return
		}
		say("\n(settings changed)\n")
	})
	if err != nil {
		a.logger.Warn("settings watcher unavailable", "error", err)
	}

	scanner := bufio.NewScanner(in)
	for {
		say("> ")
		if !scanner.Scan() {
			say("\n")
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/ack":
			if err := a.orch.Acknowledge(ctx, a.principal); err != nil {
				return err
			}
			say("Acknowledged.\n")
			continue
		case "/history":
			all, err := a.orch.History(ctx, a.principal)
			if err != nil {
				return err
			}
			for _, m := range all {
				say("%s: %s\n", speaker(m.Role), m.Content)
			}
			continue
		}

		res, err := a.orch.Send(ctx, a.principal, line)
		switch {
		case err == nil:
			say("assistant: %s\n", res.Reply.Content)
		case errors.Is(err, dispatch.ErrBusy):
			say("(still waiting for the previous reply)\n")
		default:
			var llmErr *llm.Error
			if !errors.As(err, &llmErr) {
				return err
			}
			say("error [%s]: %s\n", llmErr.Kind, llmErr.Message)
		}
	}
}
