// File: cmd/history.go
package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/gauntlet-cli/internal/observability"
	"github.com/xkilldash9x/gauntlet-cli/internal/store"
)

// newHistoryCmd creates the `history` command group.
func newHistoryCmd(state *rootState) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past runs recorded in the local history store",
	}
	historyCmd.AddCommand(newHistoryListCmd(state), newHistoryStatsCmd(state))
	return historyCmd
}

// openHistory opens the store at the configured path. The caller closes it.
func openHistory(state *rootState) (*store.History, error) {
	cfg, err := state.resolver.Settings()
	if err != nil {
		return nil, err
	}
	h, err := store.Open(cfg.Core.History.Path, observability.GetLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to open the history store: %w", err)
	}
	return h, nil
}

// newHistoryListCmd creates the `history list` command.
func newHistoryListCmd(state *rootState) *cobra.Command {
	var limit int

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openHistory(state)
			if err != nil {
				return err
			}
			defer h.Close()

			runs, err := h.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tENV\tENGINE\tPASSED\tFAILED\tBROKEN\tTOTAL\tRUN ID")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
					run.StartedAt.Local().Format(time.RFC3339), run.Environment, run.Engine,
					run.Passed, run.Failed, run.Broken, run.Total, run.ID)
			}
			return w.Flush()
		},
	}

	listCmd.Flags().IntVar(&limit, "limit", 10, "maximum number of runs to list")
	return listCmd
}

// newHistoryStatsCmd creates the `history stats` command.
func newHistoryStatsCmd(state *rootState) *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate statistics across all recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openHistory(state)
			if err != nil {
				return err
			}
			defer h.Close()

			stats, err := h.Stats(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Runs\t%d\n", stats.Runs)
			fmt.Fprintf(w, "Scenarios\t%d\n", stats.Scenarios)
			fmt.Fprintf(w, "Passed\t%d\n", stats.Passed)
			fmt.Fprintf(w, "Failed\t%d\n", stats.Failed)
			fmt.Fprintf(w, "Broken\t%d\n", stats.Broken)
			fmt.Fprintf(w, "Skipped\t%d\n", stats.Skipped)
			fmt.Fprintf(w, "Pass rate\t%.1f%%\n", stats.PassRate*100)
			fmt.Fprintf(w, "Avg scenario\t%s\n", stats.AvgDuration.Round(time.Millisecond))
			return w.Flush()
		},
	}
	return statsCmd
}
