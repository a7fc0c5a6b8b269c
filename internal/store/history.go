// File: internal/store/history.go

// Package store persists run history in a local SQLite database so pass
// rates and durations can be compared across invocations.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/xkilldash9x/gauntlet-cli/internal/results"
)

// Timestamps are stored as RFC 3339 text; SQLite has no native time type and
// text round-trips identically on every driver.
const timeFormat = time.RFC3339Nano

// History is the run-history store backed by a single SQLite file.
type History struct {
	db  *sql.DB
	log *zap.Logger
}

// RunSummary is one row of the runs table.
type RunSummary struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	Environment string
	Engine      string
	Browser     string
	Platform    string
	GitBranch   string
	GitCommit   string
	Total       int
	Passed      int
	Failed      int
	Broken      int
}

// Stats aggregates everything the history file has seen.
type Stats struct {
	Runs        int64
	Scenarios   int64
	Passed      int64
	Failed      int64
	Broken      int64
	Skipped     int64
	PassRate    float64
	AvgDuration time.Duration
}

// Open opens or creates the history database at path and ensures the schema,
// creating parent directories as needed.
func Open(path string, logger *zap.Logger) (*History, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	h := &History{db: db, log: logger.Named("history")}
	if err := h.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare history schema: %w", err)
	}
	return h, nil
}

func (h *History) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		environment TEXT,
		engine TEXT,
		browser TEXT,
		platform TEXT,
		git_branch TEXT,
		git_commit TEXT,
		total INTEGER NOT NULL,
		passed INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		broken INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS scenarios (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		name TEXT NOT NULL,
		suite TEXT,
		status TEXT NOT NULL,
		error TEXT,
		duration_ms INTEGER,
		started_at TEXT,
		FOREIGN KEY(run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_scenarios_run_id ON scenarios(run_id);
	CREATE INDEX IF NOT EXISTS idx_scenarios_status ON scenarios(status);
	`
	_, err := h.db.Exec(schema)
	return err
}

// RecordRun writes the run and all its scenario rows in one transaction.
func (h *History) RecordRun(ctx context.Context, run *results.RunResult) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin history transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			h.log.Error("Failed to roll back history transaction.", zap.Error(rollbackErr))
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, started_at, finished_at, environment, engine, browser, platform, git_branch, git_commit, total, passed, failed, broken)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.StartedAt.UTC().Format(timeFormat),
		run.FinishedAt.UTC().Format(timeFormat),
		run.Environment,
		run.Engine,
		run.Browser,
		run.Platform,
		run.GitBranch,
		run.GitCommit,
		run.Total(),
		run.Passed(),
		run.Failed(),
		run.Broken(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scenarios (run_id, name, suite, status, error, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare scenario insert: %w", err)
	}
	defer stmt.Close()

	for _, scenario := range run.Scenarios {
		_, err := stmt.ExecContext(ctx,
			run.ID,
			scenario.Name,
			scenario.Suite,
			string(scenario.Status),
			scenario.Error,
			scenario.Duration.Milliseconds(),
			scenario.StartedAt.UTC().Format(timeFormat),
		)
		if err != nil {
			return fmt.Errorf("failed to insert scenario %q: %w", scenario.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history transaction: %w", err)
	}
	h.log.Debug("Run recorded.", zap.String("run_id", run.ID), zap.Int("scenarios", run.Total()))
	return nil
}

// RecentRuns returns run summaries, newest first. A non-positive limit
// returns ten.
func (h *History) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, environment, engine, browser, platform, git_branch, git_commit, total, passed, failed, broken
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var summary RunSummary
		var startedAt, finishedAt string
		err := rows.Scan(
			&summary.ID,
			&startedAt,
			&finishedAt,
			&summary.Environment,
			&summary.Engine,
			&summary.Browser,
			&summary.Platform,
			&summary.GitBranch,
			&summary.GitCommit,
			&summary.Total,
			&summary.Passed,
			&summary.Failed,
			&summary.Broken,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		summary.StartedAt = parseTime(startedAt)
		summary.FinishedAt = parseTime(finishedAt)
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// RunScenarios returns the scenario rows of one run in execution order.
func (h *History) RunScenarios(ctx context.Context, runID string) ([]results.ScenarioResult, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT name, suite, status, error, duration_ms, started_at
		FROM scenarios
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenarios: %w", err)
	}
	defer rows.Close()

	var scenarios []results.ScenarioResult
	for rows.Next() {
		var scenario results.ScenarioResult
		var status, startedAt string
		var durationMS int64
		if err := rows.Scan(&scenario.Name, &scenario.Suite, &status, &scenario.Error, &durationMS, &startedAt); err != nil {
			return nil, fmt.Errorf("failed to scan scenario row: %w", err)
		}
		scenario.Status = results.Status(status)
		scenario.Duration = time.Duration(durationMS) * time.Millisecond
		scenario.StartedAt = parseTime(startedAt)
		scenarios = append(scenarios, scenario)
	}
	return scenarios, rows.Err()
}

// Stats aggregates the whole history file.
func (h *History) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	if err := h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&stats.Runs); err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	var avgMS float64
	err := h.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'passed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'broken' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'skipped' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(duration_ms), 0.0)
		FROM scenarios
	`).Scan(
		&stats.Scenarios,
		&stats.Passed,
		&stats.Failed,
		&stats.Broken,
		&stats.Skipped,
		&avgMS,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate scenarios: %w", err)
	}

	if stats.Scenarios > 0 {
		stats.PassRate = float64(stats.Passed) / float64(stats.Scenarios)
	}
	stats.AvgDuration = time.Duration(avgMS * float64(time.Millisecond))
	return stats, nil
}

// Close closes the underlying database.
func (h *History) Close() error {
	return h.db.Close()
}

func parseTime(value string) time.Time {
	parsed, err := time.Parse(timeFormat, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
