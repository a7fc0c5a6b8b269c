// internal/reporting/allure_reporter_test.go
package reporting

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/gauntlet-cli/internal/reporting/allure"
	"github.com/xkilldash9x/gauntlet-cli/internal/results"
)

// readSingleResult finds and decodes the only result document in dir.
func readSingleResult(t *testing.T, dir string) allure.Result {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*-result.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "exactly one result document expected")

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)

	var res allure.Result
	require.NoError(t, json.Unmarshal(data, &res))
	return res
}

func labelValue(res allure.Result, name string) string {
	for _, l := range res.Labels {
		if l.Name == name {
			return l.Value
		}
	}
	return ""
}

func TestAllureReporterLifecycle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "allure-results")
	rep, err := NewAllureReporter(dir, false)
	require.NoError(t, err)

	fullName := "suites/ui.Dashboard loads"
	rep.StartResult("Dashboard loads", fullName, Labels{Suite: "ui", Feature: "dashboard"})

	require.NoError(t, rep.Attach("Screenshot - Dashboard loads", "image/png", []byte("png-bytes")))
	require.NoError(t, rep.Attach("Page URL", "text/plain", []byte("https://app.example.com/")))

	require.NoError(t, rep.EndResult(results.StatusFailed, StatusDetails{
		Message: "search box not visible",
		Trace:   "goroutine 1 [running]: ...",
	}))
	require.NoError(t, rep.Close())

	res := readSingleResult(t, dir)

	assert.NotEmpty(t, res.UUID)
	wantHistory := md5.Sum([]byte(fullName))
	assert.Equal(t, hex.EncodeToString(wantHistory[:]), res.HistoryID)
	assert.Equal(t, "Dashboard loads", res.Name)
	assert.Equal(t, fullName, res.FullName)
	assert.Equal(t, string(results.StatusFailed), res.Status)
	require.NotNil(t, res.StatusDetails)
	assert.Equal(t, "search box not visible", res.StatusDetails.Message)
	assert.Equal(t, allure.StageFinished, res.Stage)
	assert.LessOrEqual(t, res.Start, res.Stop)

	assert.Equal(t, "ui", labelValue(res, "suite"))
	assert.Equal(t, "dashboard", labelValue(res, "feature"))
	assert.Equal(t, "go", labelValue(res, "language"))
	assert.NotEmpty(t, labelValue(res, "host"))

	require.Len(t, res.Attachments, 2)
	assert.Equal(t, "Screenshot - Dashboard loads", res.Attachments[0].Name)
	assert.True(t, strings.HasSuffix(res.Attachments[0].Source, ".png"))
	assert.Equal(t, "image/png", res.Attachments[0].Type)
	assert.True(t, strings.HasSuffix(res.Attachments[1].Source, ".txt"))

	for i, att := range res.Attachments {
		body, err := os.ReadFile(filepath.Join(dir, att.Source))
		require.NoError(t, err, "attachment %d should exist on disk", i)
		assert.NotEmpty(t, body)
	}
}

func TestAllureReporterPassedResultHasNoDetails(t *testing.T) {
	dir := t.TempDir()
	rep, err := NewAllureReporter(dir, false)
	require.NoError(t, err)

	rep.StartResult("Health check", "suites/api.Health check", Labels{Suite: "api"})
	require.NoError(t, rep.EndResult(results.StatusPassed, StatusDetails{}))

	res := readSingleResult(t, dir)
	assert.Equal(t, string(results.StatusPassed), res.Status)
	assert.Nil(t, res.StatusDetails)
	assert.Empty(t, res.Attachments)
}

func TestAllureReporterAttachWithoutOpenResult(t *testing.T) {
	rep, err := NewAllureReporter(t.TempDir(), false)
	require.NoError(t, err)

	err = rep.Attach("Screenshot", "image/png", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no open result")
}

func TestAllureReporterEndWithoutOpenResult(t *testing.T) {
	rep, err := NewAllureReporter(t.TempDir(), false)
	require.NoError(t, err)

	err = rep.EndResult(results.StatusPassed, StatusDetails{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no open result")
}

func TestAllureReporterCleanResults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "allure-results")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	stale := filepath.Join(dir, "stale-result.json")
	require.NoError(t, os.WriteFile(stale, []byte("{}"), 0o644))

	_, err := NewAllureReporter(dir, true)
	require.NoError(t, err)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err), "stale results should be removed when cleaning")

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir(), "results directory should be recreated")
}

func TestAllureReporterKeepResultsWithoutClean(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "allure-results")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	stale := filepath.Join(dir, "stale-result.json")
	require.NoError(t, os.WriteFile(stale, []byte("{}"), 0o644))

	_, err := NewAllureReporter(dir, false)
	require.NoError(t, err)

	_, err = os.Stat(stale)
	assert.NoError(t, err, "existing results should survive when clean is off")
}

func TestAllureReporterWriteEnvironment(t *testing.T) {
	dir := t.TempDir()
	rep, err := NewAllureReporter(dir, false)
	require.NoError(t, err)

	require.NoError(t, rep.WriteEnvironment(map[string]string{
		"browser.type": "chromium",
		"api.base_url": "http://localhost:8000/api",
	}))

	content, err := os.ReadFile(filepath.Join(dir, EnvironmentFileName))
	require.NoError(t, err)
	assert.Equal(t, "api.base_url=http://localhost:8000/api\nbrowser.type=chromium\n", string(content))
}

func TestAllureReporterCloseFinalizesDanglingResult(t *testing.T) {
	dir := t.TempDir()
	rep, err := NewAllureReporter(dir, false)
	require.NoError(t, err)

	rep.StartResult("Interrupted", "suites/ui.Interrupted", Labels{Suite: "ui"})
	require.NoError(t, rep.Close())

	res := readSingleResult(t, dir)
	assert.Equal(t, string(results.StatusBroken), res.Status)
	require.NotNil(t, res.StatusDetails)
	assert.Contains(t, res.StatusDetails.Message, "never finalized")
}

func TestNewReporterFormats(t *testing.T) {
	rep, err := New("allure", t.TempDir(), false)
	require.NoError(t, err)
	assert.IsType(t, &AllureReporter{}, rep)

	rep, err = New("noop", "", false)
	require.NoError(t, err)
	assert.IsType(t, &NopReporter{}, rep)

	_, err = New("junit", "", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported report format")
}
