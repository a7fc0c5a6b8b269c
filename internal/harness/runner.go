// File: internal/harness/runner.go
package harness

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gauntlet-cli/internal/reporting"
	"github.com/xkilldash9x/gauntlet-cli/internal/results"
)

// teardownTimeout bounds failure capture and resource release for one
// scenario. These run on their own context so a cancelled run still collects
// evidence and closes its page.
const teardownTimeout = 30 * time.Second

// Runner executes scenarios one at a time against a harness. Sequential
// execution is the concurrency model: one browser, one device session, one
// open report result.
type Runner struct {
	h *Harness
}

// NewRunner creates a runner bound to the harness.
func NewRunner(h *Harness) *Runner {
	return &Runner{h: h}
}

// Run executes the scenarios and aggregates their outcomes. The run is
// written to the report sink and, when enabled, the history store.
// Cancelling ctx marks the remaining scenarios skipped.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) *results.RunResult {
	cfg := r.h.settings
	run := &results.RunResult{
		ID:          uuid.NewString(),
		StartedAt:   time.Now(),
		Environment: cfg.Core.Environment,
		Engine:      cfg.Core.Browser.Engine,
		Browser:     cfg.Core.Browser.Type,
		Platform:    cfg.Core.Mobile.Platform,
	}
	if branch, commit, ok := reporting.GitMetadata("."); ok {
		run.GitBranch = branch
		run.GitCommit = commit
	}

	r.h.logger.Info("Run starting.",
		zap.String("run_id", run.ID),
		zap.Int("scenarios", len(scenarios)),
		zap.String("environment", run.Environment),
	)

	for _, sc := range scenarios {
		if err := ctx.Err(); err != nil {
			run.Scenarios = append(run.Scenarios, r.skipScenario(sc, err))
			continue
		}
		run.Scenarios = append(run.Scenarios, r.runScenario(ctx, sc))
	}
	run.FinishedAt = time.Now()

	if err := r.h.reporter.WriteEnvironment(reporting.BuildEnvironment(cfg)); err != nil {
		r.h.logger.Warn("Failed to write report environment metadata.", zap.Error(err))
	}
	if r.h.history != nil {
		recordCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		if err := r.h.history.RecordRun(recordCtx, run); err != nil {
			r.h.logger.Warn("Failed to record the run in history.", zap.Error(err))
		}
		cancel()
	}

	r.h.logger.Info("Run finished.",
		zap.String("run_id", run.ID),
		zap.Int("passed", run.Passed()),
		zap.Int("failed", run.Failed()),
		zap.Int("broken", run.Broken()),
		zap.Int("skipped", run.Skipped()),
		zap.Duration("duration", run.Duration()),
	)
	return run
}

// runScenario executes one scenario through its full lifecycle: open the
// result, run with panic protection, capture artifacts on failure, flush API
// snapshots, finalize the result, release scenario resources. A capture or
// teardown error never masks the scenario's own outcome.
func (r *Runner) runScenario(ctx context.Context, sc Scenario) results.ScenarioResult {
	log := r.h.logger.With(zap.String("suite", sc.Suite), zap.String("scenario", sc.Name))
	scope := newScope(r.h, log)
	r.h.reporter.StartResult(sc.Name, fullName(sc), scenarioLabels(sc))

	log.Info("Scenario starting.")
	started := time.Now()
	err := runProtected(ctx, sc, scope)
	duration := time.Since(started)

	status, details := classify(err)

	teardownCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	switch status {
	case results.StatusPassed:
		log.Info("Scenario passed.", zap.Duration("duration", duration))
	case results.StatusSkipped:
		log.Info("Scenario skipped.", zap.String("reason", details.Message))
	default:
		log.Error("Scenario did not pass.",
			zap.String("status", string(status)),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		r.h.collector.OnFailure(teardownCtx, sc.Name, scope.Handles())
	}

	scope.flushAttachments()
	if endErr := r.h.reporter.EndResult(status, details); endErr != nil {
		log.Warn("Failed to finalize the scenario result.", zap.Error(endErr))
	}
	scope.Close(teardownCtx)

	return results.ScenarioResult{
		Name:      sc.Name,
		Suite:     sc.Suite,
		Status:    status,
		Error:     details.Message,
		StartedAt: started,
		Duration:  duration,
	}
}

// skipScenario records a scenario that never ran because the run context was
// cancelled. It still passes through the reporter so the report shows it.
func (r *Runner) skipScenario(sc Scenario, cause error) results.ScenarioResult {
	details := reporting.StatusDetails{Message: fmt.Sprintf("run cancelled: %v", cause)}
	r.h.reporter.StartResult(sc.Name, fullName(sc), scenarioLabels(sc))
	if err := r.h.reporter.EndResult(results.StatusSkipped, details); err != nil {
		r.h.logger.Warn("Failed to finalize a skipped result.", zap.Error(err))
	}
	return results.ScenarioResult{
		Name:      sc.Name,
		Suite:     sc.Suite,
		Status:    results.StatusSkipped,
		Error:     details.Message,
		StartedAt: time.Now(),
	}
}

func fullName(sc Scenario) string {
	return sc.Suite + "/" + sc.Name
}

func scenarioLabels(sc Scenario) reporting.Labels {
	labels := sc.Labels
	if labels.Suite == "" {
		labels.Suite = sc.Suite
	}
	return labels
}

// classify maps a scenario error to its terminal status: nil passes, ErrSkip
// skips, panics and setup failures are broken, everything else failed.
func classify(err error) (results.Status, reporting.StatusDetails) {
	if err == nil {
		return results.StatusPassed, reporting.StatusDetails{}
	}
	details := reporting.StatusDetails{Message: err.Error()}

	var pErr *panicError
	var sErr *SetupError
	switch {
	case errors.Is(err, ErrSkip):
		return results.StatusSkipped, details
	case errors.As(err, &pErr):
		details.Trace = pErr.stack
		return results.StatusBroken, details
	case errors.As(err, &sErr):
		return results.StatusBroken, details
	}
	return results.StatusFailed, details
}

// runProtected invokes the scenario body and converts a panic into an error
// carrying the stack, so one bad scenario cannot take down the run.
func runProtected(ctx context.Context, sc Scenario, scope *Scope) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &panicError{value: rec, stack: string(debug.Stack())}
		}
	}()
	return sc.Run(ctx, scope)
}

// panicError preserves the panic value and stack for the report.
type panicError struct {
	value any
	stack string
}

func (e *panicError) Error() string { return fmt.Sprintf("scenario panicked: %v", e.value) }
