package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quells-bot/unified-chat/internal/settings"
)

func newSettingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change provider settings",
	}
	cmd.AddCommand(newSettingsShowCmd(a), newSettingsSetCmd(a), newSettingsClearCmd(a))
	return cmd
}

func newSettingsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the provider used for this principal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.settings.ProviderConfig(cmd.Context(), a.principal)
			if errors.Is(err, settings.ErrNotConfigured) {
				fmt.Fprintf(cmd.OutOrStdout(), "No provider configured for %s. Edit %s or run \"unified-chat settings set\".\n",
					a.principal, a.settings.Path())
				return nil
			}
			if err != nil {
				return err
			}

			cfg = cfg.Redacted()
			fmt.Fprintf(cmd.OutOrStdout(), "principal:  %s\n", a.principal)
			fmt.Fprintf(cmd.OutOrStdout(), "provider:   %s\n", cfg.Provider)
			fmt.Fprintf(cmd.OutOrStdout(), "credential: %s\n", orNone(cfg.Credential))
			fmt.Fprintf(cmd.OutOrStdout(), "endpoint:   %s\n", orNone(cfg.Endpoint))
			fmt.Fprintf(cmd.OutOrStdout(), "model:      %s\n", orNone(cfg.Model))
			return nil
		},
	}
}

func newSettingsSetCmd(a *app) *cobra.Command {
	var (
		entry     settings.Entry
		asDefault bool
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Choose the provider for this principal",
		Long: `Choose the provider for this principal, or for everyone with --default.

Providers: openai, gemini, local, bedrock. openai and gemini need a credential;
a credential that is exactly $NAME or ${NAME} is read from that environment
variable, anything else is stored as given.

With --default the entry applies to every principal that has no entry of its
own. Only this principal's pending error is cleared; others clear theirs on
their next successful send or acknowledgement.

Examples:
  unified-chat settings set --provider openai --credential '${OPENAI_API_KEY}'
  unified-chat settings set --provider local --endpoint http://192.168.1.20:1234/v1
  unified-chat settings set --default --provider bedrock`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entry.Provider = strings.TrimSpace(entry.Provider)
			if _, ok := a.client.Adapter(entry.Provider); !ok {
				return fmt.Errorf("unknown provider %q (available: %s)", entry.Provider, strings.Join(a.client.Providers(), ", "))
			}
			principal := a.principal
			if asDefault {
				principal = ""
			}
			if err := a.settings.Save(principal, entry); err != nil {
				return err
			}
			if err := a.orch.Reconfigured(cmd.Context(), a.principal); err != nil {
				return fmt.Errorf("clear pending error: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s settings to %s.\n", entry.Provider, a.settings.Path())
			return nil
		},
	}
	cmd.Flags().StringVar(&entry.Provider, "provider", "", "openai, gemini, local or bedrock")
	cmd.Flags().StringVar(&entry.Credential, "credential", "", "API key")
	cmd.Flags().StringVar(&entry.Endpoint, "endpoint", "", "base URL override")
	cmd.Flags().StringVar(&entry.Model, "model", "", "model override")
	cmd.Flags().BoolVar(&asDefault, "default", false, "apply to every principal without its own settings")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

func newSettingsClearCmd(a *app) *cobra.Command {
	var asDefault bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the provider settings for this principal",
		Long: `Remove this principal's provider entry so it falls back to the default, or
remove the default itself with --default. Only this principal's pending error
is cleared.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			principal, label := a.principal, a.principal
			if asDefault {
				principal, label = "", "default"
			}
			err := a.settings.Clear(principal)
			if errors.Is(err, settings.ErrNotConfigured) {
				fmt.Fprintf(cmd.OutOrStdout(), "No %s settings to clear.\n", label)
				return nil
			}
			if err != nil {
				return err
			}
			if err := a.orch.Reconfigured(cmd.Context(), a.principal); err != nil {
				return fmt.Errorf("clear pending error: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s settings in %s.\n", label, a.settings.Path())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asDefault, "default", false, "remove the default entry instead")
	return cmd
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
