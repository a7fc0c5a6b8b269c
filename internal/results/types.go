// File: internal/results/types.go
package results

import (
	"time"
)

// Status is the terminal state of one scenario, using the conventional
// reporting vocabulary: failed means an assertion did not hold, broken means
// the scenario could not run to a verdict (setup error, panic).
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusBroken  Status = "broken"
	StatusSkipped Status = "skipped"
)

// ScenarioResult records the outcome of a single scenario execution.
type ScenarioResult struct {
	Name      string
	Suite     string
	Status    Status
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// RunResult aggregates one full invocation of the runner.
type RunResult struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	Environment string
	Engine      string
	Browser     string
	Platform    string
	GitBranch   string
	GitCommit   string
	Scenarios   []ScenarioResult
}

// Total returns the number of executed scenarios.
func (r *RunResult) Total() int { return len(r.Scenarios) }

// CountByStatus returns the number of scenarios that ended in the given status.
func (r *RunResult) CountByStatus(s Status) int {
	n := 0
	for _, sc := range r.Scenarios {
		if sc.Status == s {
			n++
		}
	}
	return n
}

// Passed returns the number of passing scenarios.
func (r *RunResult) Passed() int { return r.CountByStatus(StatusPassed) }

// Failed returns the number of scenarios with assertion failures.
func (r *RunResult) Failed() int { return r.CountByStatus(StatusFailed) }

// Broken returns the number of scenarios that never reached a verdict.
func (r *RunResult) Broken() int { return r.CountByStatus(StatusBroken) }

// Skipped returns the number of skipped scenarios.
func (r *RunResult) Skipped() int { return r.CountByStatus(StatusSkipped) }

// HasFailures reports whether any scenario failed or broke. It drives the
// process exit code.
func (r *RunResult) HasFailures() bool {
	return r.Failed() > 0 || r.Broken() > 0
}

// Duration returns the wall-clock span of the run.
func (r *RunResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
