// -- cmd/root.go --
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gauntlet-cli/internal/config"
	"github.com/xkilldash9x/gauntlet-cli/internal/observability"
)

// rootState carries what the persistent setup resolves for one invocation:
// the global flag values and the layered config resolver. Subcommands bind
// their override flags against the resolver and materialize Settings only
// after binding, so flag > env > file > default precedence holds everywhere.
type rootState struct {
	coreConfigPath string
	dataConfigPath string
	logLevel       string
	debug          bool

	resolver *config.Resolver
}

// initialize loads the configuration layers and starts logging. It runs once
// per invocation, before any subcommand logic.
func (s *rootState) initialize() error {
	resolver := config.NewResolver()
	if err := resolver.LoadFiles(s.coreConfigPath, s.dataConfigPath); err != nil {
		return err
	}
	if s.logLevel != "" {
		resolver.Core.Set("logging.level", s.logLevel)
	}
	if s.debug {
		resolver.Core.Set("debug", true)
	}
	s.resolver = resolver

	var logCfg config.LoggingConfig
	if err := resolver.Core.UnmarshalKey("logging", &logCfg); err != nil {
		// Fall back to a plain console logger so the error itself is visible.
		observability.InitializeLogger(config.LoggingConfig{Level: "info"}, s.debug)
		return fmt.Errorf("failed to read logging config: %w", err)
	}
	observability.InitializeLogger(logCfg, resolver.Core.GetBool("debug"))
	return nil
}

// NewRootCommand builds a fresh command tree. Every invocation gets its own
// instance so flag state never leaks between executions.
func NewRootCommand() *cobra.Command {
	state := &rootState{}

	rootCmd := &cobra.Command{
		Use:   "gauntlet",
		Short: "Gauntlet drives UI, API and mobile test suites from one binary.",
		Long: `Gauntlet is a test-automation harness. It runs registered scenarios
against a web UI (playwright or the Chrome DevTools protocol), a mobile app
(Appium) and an HTTP API, collects failure artifacts, and writes an
allure-results directory for report generation.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.initialize()
		},
	}

	rootCmd.PersistentFlags().StringVar(&state.coreConfigPath, "core-config", "", "path to core_config.yml (discovered when unset)")
	rootCmd.PersistentFlags().StringVar(&state.dataConfigPath, "data-config", "", "path to data_config.yml (discovered when unset)")
	rootCmd.PersistentFlags().StringVar(&state.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&state.debug, "debug", false, "enable debug logging with caller annotations")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newRunCmd(state),
		newDoctorCmd(state),
		newConfigCmd(state),
		newHistoryCmd(state),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the CLI under the given signal-aware context and exits the
// process with a non-zero status when the command fails.
func Execute(ctx context.Context) {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		observability.GetLogger().Error("Command failed.", zap.Error(err))
		observability.Sync()
		os.Exit(1)
	}
	observability.Sync()
}
