package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message and print the reply",
		Long: `Send one message to the configured provider and print the reply.

The message is stored before the provider is contacted, so it stays in the
history even when the send fails. The failure is kept until acknowledged with
"unified-chat errors ack" or until the settings change.

Examples:
  unified-chat send "What is the capital of France?"
  unified-chat send -p alice Summarize our conversation`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.orch.Send(cmd.Context(), a.principal, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Reply.Content)
			return nil
		},
	}
}
