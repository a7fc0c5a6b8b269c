// File: cmd/doctor.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/gauntlet-cli/internal/apiclient"
	"github.com/xkilldash9x/gauntlet-cli/internal/browser"
	"github.com/xkilldash9x/gauntlet-cli/internal/config"
	"github.com/xkilldash9x/gauntlet-cli/internal/mobile"
	"github.com/xkilldash9x/gauntlet-cli/internal/mobile/wire"
	"github.com/xkilldash9x/gauntlet-cli/internal/network"
	"github.com/xkilldash9x/gauntlet-cli/internal/observability"
	"github.com/xkilldash9x/gauntlet-cli/internal/store"
)

// doctorCheck probes one aspect of the environment. Soft checks report their
// failures without failing the command; everything else is a hard failure.
type doctorCheck struct {
	name  string
	soft  bool
	probe func(ctx context.Context) (string, error)
}

// checkOutcome is the recorded result of one probe.
type checkOutcome struct {
	name string
	soft bool
	note string
	err  error
}

// newDoctorCmd creates and configures the `doctor` command.
func newDoctorCmd(state *rootState) *cobra.Command {
	var timeout time.Duration

	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the environment is ready for a run",
		Long: `Probes every external dependency of the configured environment: the API
health endpoint, the web application, the Appium server, the results
directory, the history store, and the playwright driver when that engine is
selected. Checks run in parallel and each one is reported on its own line.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := state.resolver.Settings()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			outcomes := runChecks(ctx, buildChecks(cfg))
			printCheckReport(cmd.OutOrStdout(), outcomes)

			hard := 0
			for _, o := range outcomes {
				if o.err != nil && !o.soft {
					hard++
				}
			}
			if hard > 0 {
				return fmt.Errorf("environment is not ready: %d check(s) failed", hard)
			}
			return nil
		},
	}

	doctorCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall budget for all checks")
	return doctorCmd
}

// buildChecks assembles the probe list for the resolved configuration.
func buildChecks(cfg *config.Settings) []doctorCheck {
	logger := observability.GetLogger().Named("doctor")

	checks := []doctorCheck{
		{
			name: "api health",
			probe: func(ctx context.Context) (string, error) {
				client, err := apiclient.NewClient(cfg, logger)
				if err != nil {
					return "", err
				}
				defer client.Close()
				if err := client.HealthCheck(ctx); err != nil {
					return "", err
				}
				return cfg.Data.API.BaseURL, nil
			},
		},
		{
			name: "ui reachable",
			probe: func(ctx context.Context) (string, error) {
				return probeURL(ctx, cfg.Data.UI.BaseURL)
			},
		},
		{
			// Without a configured app the mobile suite skips, so an
			// unreachable Appium server is a warning rather than a failure.
			name: "appium server",
			soft: !mobileConfigured(cfg),
			probe: func(ctx context.Context) (string, error) {
				client, err := wire.NewClient(cfg.Core.Mobile.AppiumServer, 10*time.Second, logger)
				if err != nil {
					return "", err
				}
				status, err := client.Status(ctx)
				if err != nil {
					return "", err
				}
				if !status.Ready {
					return "", fmt.Errorf("server at %s reports not ready: %s", cfg.Core.Mobile.AppiumServer, status.Message)
				}
				if err := mobile.CheckServerVersion(status.Build.Version, cfg.Core.Mobile.MinServerVersion); err != nil {
					return "", err
				}
				return fmt.Sprintf("ready, version %s", status.Build.Version), nil
			},
		},
		{
			name: "results directory",
			probe: func(ctx context.Context) (string, error) {
				return probeWritable(cfg.Core.Allure.ResultsDir)
			},
		},
		{
			name: "history store",
			probe: func(ctx context.Context) (string, error) {
				if !cfg.Core.History.Enabled {
					return "disabled", nil
				}
				h, err := store.Open(cfg.Core.History.Path, logger)
				if err != nil {
					return "", err
				}
				defer func() {
					if cerr := h.Close(); cerr != nil {
						logger.Warn("Failed to close the history store.", zap.Error(cerr))
					}
				}()
				return cfg.Core.History.Path, nil
			},
		},
	}

	if cfg.Core.Browser.Engine == config.EnginePlaywright {
		checks = append(checks, doctorCheck{
			name: "playwright driver",
			probe: func(ctx context.Context) (string, error) {
				if err := browser.EnsureDriver(ctx, cfg.Core.Browser.Type); err != nil {
					return "", err
				}
				return fmt.Sprintf("driver and %s present", cfg.Core.Browser.Type), nil
			},
		})
	}
	return checks
}

// runChecks probes everything in parallel. Probe errors land in the outcome
// table rather than the group, so one failing check never cancels the rest.
func runChecks(ctx context.Context, checks []doctorCheck) []checkOutcome {
	outcomes := make([]checkOutcome, len(checks))
	g, checkCtx := errgroup.WithContext(ctx)
	for i, check := range checks {
		g.Go(func() error {
			note, err := check.probe(checkCtx)
			outcomes[i] = checkOutcome{name: check.name, soft: check.soft, note: note, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// printCheckReport renders one line per check.
func printCheckReport(out io.Writer, outcomes []checkOutcome) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATUS\tDETAIL")
	for _, o := range outcomes {
		status, detail := "ok", o.note
		if o.err != nil {
			detail = o.err.Error()
			if o.soft {
				status = "warn"
			} else {
				status = "FAIL"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", o.name, status, detail)
	}
	w.Flush()
}

// probeURL confirms the web application answers at all. Any status below 500
// counts as reachable; a 5xx means the server is up but broken.
func probeURL(ctx context.Context, rawURL string) (string, error) {
	client := network.NewClient(nil)
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return "", fmt.Errorf("%s answered with status %d", rawURL, resp.StatusCode)
	}
	return fmt.Sprintf("%s answered %d", rawURL, resp.StatusCode), nil
}

// probeWritable confirms the directory exists, creating it if needed, and
// accepts writes.
func probeWritable(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return "", fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return dir, nil
}

// mobileConfigured reports whether the data document names an app to drive.
func mobileConfigured(cfg *config.Settings) bool {
	if cfg.Core.Mobile.Platform == config.PlatformIOS {
		return cfg.Data.MobileApp.IOS.BundleID != "" || cfg.Data.MobileApp.IOS.AppPath != ""
	}
	return cfg.Data.MobileApp.Android.AppPackage != "" || cfg.Data.MobileApp.Android.AppPath != ""
}
