// File: cmd/run_test.go
package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/gauntlet-cli/internal/config"
	"github.com/xkilldash9x/gauntlet-cli/internal/results"
)

func TestBindRunFlagsOverrides(t *testing.T) {
	state := &rootState{resolver: config.NewResolver()}
	runCmd := newRunCmd(state)

	flags := runCmd.Flags()
	require.NoError(t, flags.Set("engine", "cdp"))
	require.NoError(t, flags.Set("browser-type", "chromium"))
	require.NoError(t, flags.Set("headed", "true"))
	require.NoError(t, flags.Set("slow-mo", "250"))
	require.NoError(t, flags.Set("mobile-platform", "ios"))
	require.NoError(t, flags.Set("device-name", "Pixel 9"))
	require.NoError(t, flags.Set("app-path", "/apps/demo.apk"))
	require.NoError(t, flags.Set("udid", "00008110-000A2D923C0A801E"))
	require.NoError(t, flags.Set("no-reset", "true"))
	require.NoError(t, flags.Set("capture-network", "true"))

	require.NoError(t, bindRunFlags(state.resolver, flags))

	cfg, err := state.resolver.Settings()
	require.NoError(t, err)
	assert.Equal(t, "cdp", cfg.Core.Browser.Engine)
	assert.Equal(t, "chromium", cfg.Core.Browser.Type)
	assert.False(t, cfg.Core.Browser.Headless)
	assert.Equal(t, 250, cfg.Core.Browser.SlowMo)
	assert.Equal(t, "ios", cfg.Core.Mobile.Platform)
	assert.True(t, cfg.Core.Mobile.NoReset)
	assert.True(t, cfg.Core.Capture.Enabled)

	// The device override feeds both platform subtrees.
	assert.Equal(t, "Pixel 9", cfg.Data.MobileApp.Android.DeviceName)
	assert.Equal(t, "Pixel 9", cfg.Data.MobileApp.IOS.DeviceName)
	assert.Equal(t, "/apps/demo.apk", cfg.Data.MobileApp.Android.AppPath)
	assert.Equal(t, "/apps/demo.apk", cfg.Data.MobileApp.IOS.AppPath)
	assert.Equal(t, "00008110-000A2D923C0A801E", cfg.Data.MobileApp.IOS.UDID)
}

func TestBindRunFlagsUnchangedKeepsDefaults(t *testing.T) {
	state := &rootState{resolver: config.NewResolver()}
	runCmd := newRunCmd(state)

	require.NoError(t, bindRunFlags(state.resolver, runCmd.Flags()))

	cfg, err := state.resolver.Settings()
	require.NoError(t, err)
	assert.Equal(t, "playwright", cfg.Core.Browser.Engine)
	assert.Equal(t, "chromium", cfg.Core.Browser.Type)
	assert.True(t, cfg.Core.Browser.Headless)
	assert.False(t, cfg.Core.Capture.Enabled)
	assert.Equal(t, "emulator-5554", cfg.Data.MobileApp.Android.DeviceName)
}

func TestHeadedFalseOverridesEnvironment(t *testing.T) {
	// An explicit --headed=false demands a headless run even when the
	// environment says otherwise.
	t.Setenv("BROWSER_HEADLESS", "false")

	state := &rootState{resolver: config.NewResolver()}
	runCmd := newRunCmd(state)
	require.NoError(t, runCmd.Flags().Set("headed", "false"))

	require.NoError(t, bindRunFlags(state.resolver, runCmd.Flags()))

	cfg, err := state.resolver.Settings()
	require.NoError(t, err)
	assert.True(t, cfg.Core.Browser.Headless)
}

func TestRunCommandNoMatches(t *testing.T) {
	_, err := executeCommand(t, "run", "--suite", "no-such-suite")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scenarios matched")
}

func TestRunCommandRejectsBadGrep(t *testing.T) {
	_, err := executeCommand(t, "run", "--grep", "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid grep pattern")
}

func TestPrintRunSummary(t *testing.T) {
	started := time.Now()
	run := &results.RunResult{
		ID:         "run-1",
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Scenarios: []results.ScenarioResult{
			{Name: "login works", Suite: "ui", Status: results.StatusPassed, Duration: 1200 * time.Millisecond},
			{Name: "profile update", Suite: "api", Status: results.StatusFailed,
				Error: "expected status code 200, got 500\nsecond line of detail", Duration: 400 * time.Millisecond},
		},
	}

	var buf bytes.Buffer
	printRunSummary(&buf, run)

	out := buf.String()
	assert.Contains(t, out, "SUITE")
	assert.Contains(t, out, "login works")
	assert.Contains(t, out, "expected status code 200, got 500")
	assert.NotContains(t, out, "second line of detail")
	assert.Contains(t, out, "2 scenarios: 1 passed, 1 failed, 0 broken, 0 skipped")
}
