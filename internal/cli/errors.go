package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newErrorsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Inspect or dismiss the last failed send",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the pending failure, if any",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := a.orch.Open(cmd.Context(), a.principal)
			if err != nil {
				return err
			}
			if snap.Error == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending error.")
				return nil
			}
			printErrorRecord(cmd.OutOrStdout(), snap.Error)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "ack",
		Short: "Dismiss the pending failure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.orch.Acknowledge(cmd.Context(), a.principal); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Acknowledged.")
			return nil
		},
	})
	return cmd
}
