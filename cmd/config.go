// File: cmd/config.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// newConfigCmd creates the `config` command group.
func newConfigCmd(state *rootState) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the resolved configuration",
	}
	configCmd.AddCommand(newConfigShowCmd(state))
	return configCmd
}

// newConfigShowCmd renders the fully resolved settings, after defaults,
// files, environment and flags have been layered.
func newConfigShowCmd(state *rootState) *cobra.Command {
	var redact bool

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved settings as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := state.resolver.Settings()
			if err != nil {
				return err
			}

			view := *cfg
			if redact {
				view = cfg.Redacted()
			}
			rendered, err := yaml.Marshal(view)
			if err != nil {
				return fmt.Errorf("failed to render settings: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(rendered))
			return nil
		},
	}

	showCmd.Flags().BoolVar(&redact, "redact", true, "mask credential secrets in the output")
	return showCmd
}
