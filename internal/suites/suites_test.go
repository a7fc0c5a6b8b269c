// File: internal/suites/suites_test.go
package suites

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/gauntlet-cli/internal/config"
	"github.com/xkilldash9x/gauntlet-cli/internal/harness"
	"github.com/xkilldash9x/gauntlet-cli/internal/reporting"
	"github.com/xkilldash9x/gauntlet-cli/internal/results"
)

func newSuiteHarness(t *testing.T, mutate func(*config.Settings)) *harness.Harness {
	t.Helper()
	cfg := config.NewDefaultSettings()
	cfg.Core.History.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}
	h, err := harness.New(cfg, zaptest.NewLogger(t), reporting.NewNopReporter())
	require.NoError(t, err)
	t.Cleanup(func() { h.Close(context.Background()) })
	return h
}

func selectScenarios(t *testing.T, suite, grep string) []harness.Scenario {
	t.Helper()
	scenarios, err := harness.Scenarios(suite, grep)
	require.NoError(t, err)
	require.NotEmpty(t, scenarios, "no scenario matched suite=%q grep=%q", suite, grep)
	return scenarios
}

func TestRegisteredScenarios(t *testing.T) {
	names := func(scenarios []harness.Scenario) []string {
		var out []string
		for _, sc := range scenarios {
			out = append(out, sc.Name)
		}
		return out
	}

	ui, err := harness.Scenarios("ui", "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"dashboard loads and shows the search box",
		"invalid credentials show a login error",
	}, names(ui))

	api, err := harness.Scenarios("api", "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"api health endpoint responds",
		"valid user can authenticate and fetch their profile",
	}, names(api))

	mobile, err := harness.Scenarios("mobile", "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"app launches to an interactive screen",
	}, names(mobile))
}

func TestAPIHealthScenarioPasses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"status":"healthy"}`)
	}))
	defer server.Close()

	h := newSuiteHarness(t, func(cfg *config.Settings) {
		cfg.Data.API.BaseURL = server.URL
	})
	runner := harness.NewRunner(h)
	scenarios := selectScenarios(t, "api", "health")

	run := runner.Run(context.Background(), scenarios)
	assert.Equal(t, 1, run.Passed())
}

func TestAPIHealthScenarioFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	h := newSuiteHarness(t, func(cfg *config.Settings) {
		cfg.Data.API.BaseURL = server.URL
	})
	runner := harness.NewRunner(h)
	scenarios := selectScenarios(t, "api", "health")

	run := runner.Run(context.Background(), scenarios)
	require.Equal(t, 1, run.Failed())
	assert.Contains(t, run.Scenarios[0].Error, "503")
}

func TestAuthScenario(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/auth/login":
			fmt.Fprint(w, `{"access_token":"opaque-session-token","token_type":"bearer"}`)
		case "/users/me":
			if r.Header.Get("Authorization") != "Bearer opaque-session-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			fmt.Fprint(w, `{"id":"u1","username":"amy","email":"amy@example.com","created_at":"2026-08-25T10:00:00Z"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	h := newSuiteHarness(t, func(cfg *config.Settings) {
		cfg.Data.API.BaseURL = server.URL
		cfg.Data.Credentials.ValidUser = config.UserCredentials{Username: "amy", Password: "secret"}
	})
	runner := harness.NewRunner(h)
	scenarios := selectScenarios(t, "api", "authenticate")

	run := runner.Run(context.Background(), scenarios)
	require.Equal(t, 1, run.Passed(), "scenario error: %s", run.Scenarios[0].Error)
}

func TestAuthScenarioSkipsWithoutCredentials(t *testing.T) {
	h := newSuiteHarness(t, nil)
	runner := harness.NewRunner(h)
	scenarios := selectScenarios(t, "api", "authenticate")

	run := runner.Run(context.Background(), scenarios)
	require.Equal(t, 1, run.Skipped())
	assert.Equal(t, results.StatusSkipped, run.Scenarios[0].Status)
	assert.Contains(t, run.Scenarios[0].Error, "credentials.valid_user")
}

func TestLoginScenarioSkipsWithoutCredentials(t *testing.T) {
	h := newSuiteHarness(t, nil)
	runner := harness.NewRunner(h)
	scenarios := selectScenarios(t, "ui", "invalid credentials")

	run := runner.Run(context.Background(), scenarios)
	assert.Equal(t, 1, run.Skipped())
}

func TestMobileScenarioSkipsWithoutApp(t *testing.T) {
	h := newSuiteHarness(t, nil)
	runner := harness.NewRunner(h)
	scenarios := selectScenarios(t, "mobile", "")

	run := runner.Run(context.Background(), scenarios)
	require.Equal(t, 1, run.Skipped())
	assert.Contains(t, run.Scenarios[0].Error, "no app configured")
}
