// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gauntlet-cli/internal/config"
	"github.com/xkilldash9x/gauntlet-cli/internal/harness"
	"github.com/xkilldash9x/gauntlet-cli/internal/observability"
	"github.com/xkilldash9x/gauntlet-cli/internal/reporting"
	"github.com/xkilldash9x/gauntlet-cli/internal/results"

	// Registers the built-in scenario suites.
	_ "github.com/xkilldash9x/gauntlet-cli/internal/suites"
)

// closeTimeout bounds harness teardown after a run, so a wedged browser or
// device session cannot hold the process open.
const closeTimeout = 30 * time.Second

// newRunCmd creates and configures the `run` command.
func newRunCmd(state *rootState) *cobra.Command {
	var (
		suite string
		grep  string
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Execute registered scenarios and write allure results",
		Long: `Runs every registered scenario matching the --suite and --grep selectors,
sequentially, against the configured environment. Each scenario gets its own
resource scope; failure artifacts and an allure-results directory are written
as the run progresses. The exit code is non-zero when any scenario failed or
broke.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind the override flags to their config keys. Bound flags only
			// take effect when changed, so the flag defaults here never
			// shadow file or environment values.
			return bindRunFlags(state.resolver, cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := state.resolver.Settings()
			if err != nil {
				return err
			}

			scenarios, err := harness.Scenarios(suite, grep)
			if err != nil {
				return err
			}
			if len(scenarios) == 0 {
				return fmt.Errorf("no scenarios matched suite %q and grep %q", suite, grep)
			}

			logger.Info("Starting gauntlet.",
				zap.String("version", Version),
				zap.Int("scenarios", len(scenarios)),
				zap.String("environment", cfg.Core.Environment),
				zap.String("engine", cfg.Core.Browser.Engine),
			)

			reporter, err := reporting.New("allure", cfg.Core.Allure.ResultsDir, cfg.Core.Allure.CleanResults)
			if err != nil {
				return fmt.Errorf("failed to initialize the reporter: %w", err)
			}

			h, err := harness.New(cfg, logger, reporter)
			if err != nil {
				if cerr := reporter.Close(); cerr != nil {
					logger.Warn("Failed to close the reporter.", zap.Error(cerr))
				}
				return err
			}

			run := harness.NewRunner(h).Run(ctx, scenarios)

			// Teardown gets a fresh deadline so a cancelled run still
			// releases browsers and device sessions.
			closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if err := h.Close(closeCtx); err != nil {
				logger.Warn("Harness teardown reported errors.", zap.Error(err))
			}
			if err := reporter.Close(); err != nil {
				logger.Warn("Failed to close the reporter.", zap.Error(err))
			}

			printRunSummary(cmd.OutOrStdout(), run)

			if run.HasFailures() {
				return fmt.Errorf("%d of %d scenarios did not pass", run.Failed()+run.Broken(), run.Total())
			}
			return nil
		},
	}

	runCmd.Flags().StringVar(&suite, "suite", "", "only run scenarios in this suite (ui, api, mobile)")
	runCmd.Flags().StringVar(&grep, "grep", "", "only run scenarios whose name matches this regular expression")
	runCmd.Flags().String("engine", "", "browser automation engine, playwright or cdp. (Overrides config/env)")
	runCmd.Flags().String("browser-type", "", "browser to launch: chromium, firefox or webkit. (Overrides config/env)")
	runCmd.Flags().Bool("headed", false, "run the browser with a visible window")
	runCmd.Flags().Int("slow-mo", 0, "milliseconds to pause between browser actions. (Overrides config/env)")
	runCmd.Flags().String("mobile-platform", "", "mobile platform, android or ios. (Overrides config/env)")
	runCmd.Flags().String("device-name", "", "device or emulator name for the mobile session. (Overrides config/env)")
	runCmd.Flags().String("app-path", "", "path to the app package driven by mobile scenarios. (Overrides config/env)")
	runCmd.Flags().String("udid", "", "UDID of the physical iOS device. (Overrides config/env)")
	runCmd.Flags().Bool("no-reset", false, "keep app state between mobile sessions. (Overrides config/env)")
	runCmd.Flags().Bool("capture-network", false, "route browser traffic through the recording proxy")

	return runCmd
}

// bindRunFlags wires the run command's override flags into the two config
// layers. The headed flag is the exception: it inverts browser.headless, so
// a changed value lands as an explicit Set instead of a binding.
func bindRunFlags(resolver *config.Resolver, flags *pflag.FlagSet) error {
	coreKeys := map[string]string{
		"browser.engine":  "engine",
		"browser.type":    "browser-type",
		"browser.slow_mo": "slow-mo",
		"mobile.platform": "mobile-platform",
		"mobile.no_reset": "no-reset",
		"capture.enabled": "capture-network",
	}
	for key, name := range coreKeys {
		if err := resolver.Core.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}

	// A single device override applies to whichever platform the session
	// ends up targeting, so these flags feed both subtrees.
	dataKeys := map[string]string{
		"mobile_app.android.device_name": "device-name",
		"mobile_app.ios.device_name":     "device-name",
		"mobile_app.android.app_path":    "app-path",
		"mobile_app.ios.app_path":        "app-path",
		"mobile_app.ios.udid":            "udid",
	}
	for key, name := range dataKeys {
		if err := resolver.Data.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}

	if flags.Changed("headed") {
		headed, err := flags.GetBool("headed")
		if err != nil {
			return err
		}
		resolver.Core.Set("browser.headless", !headed)
	}
	return nil
}

// printRunSummary renders the per-scenario table and the final counts.
func printRunSummary(out io.Writer, run *results.RunResult) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SUITE\tSCENARIO\tSTATUS\tDURATION\tERROR")
	for _, sc := range run.Scenarios {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			sc.Suite, sc.Name, sc.Status, sc.Duration.Round(time.Millisecond), firstLine(sc.Error))
	}
	w.Flush()

	fmt.Fprintf(out, "\n%d scenarios: %d passed, %d failed, %d broken, %d skipped in %s\n",
		run.Total(), run.Passed(), run.Failed(), run.Broken(), run.Skipped(),
		run.Duration().Round(time.Millisecond))
}

// firstLine truncates multi-line error text so the table stays one row per
// scenario.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
