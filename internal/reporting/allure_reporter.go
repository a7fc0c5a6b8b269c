// internal/reporting/allure_reporter.go
package reporting

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gauntlet-cli/internal/observability"
	"github.com/xkilldash9x/gauntlet-cli/internal/reporting/allure"
	"github.com/xkilldash9x/gauntlet-cli/internal/results"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EnvironmentFileName is the properties file the report generator reads for
// the Environment widget.
const EnvironmentFileName = "environment.properties"

// AllureReporter writes one result document per scenario into the results
// directory, with attachments stored as sibling files. It is thread safe,
// but only one result can be open at a time; the runner's sequential
// execution model guarantees that.
type AllureReporter struct {
	dir    string
	logger *zap.Logger

	// mu protects the open result.
	mu   sync.Mutex
	open *allure.Result
}

// NewAllureReporter prepares the results directory. With clean set, stale
// results from previous runs are removed first.
func NewAllureReporter(dir string, clean bool) (*AllureReporter, error) {
	logger := observability.GetLogger().Named("allure_reporter")

	if clean {
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("failed to clean results directory %s: %w", dir, err)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results directory %s: %w", dir, err)
	}

	return &AllureReporter{
		dir:    dir,
		logger: logger,
	}, nil
}

// StartResult opens a result document for the named scenario.
func (r *AllureReporter) StartResult(name, fullName string, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.open != nil {
		r.logger.Warn("StartResult called while a result is still open; dropping the unfinished result",
			zap.String("unfinished", r.open.Name),
			zap.String("starting", name),
		)
	}

	historyID := md5.Sum([]byte(fullName))
	host, _ := os.Hostname()

	resultLabels := []allure.Label{
		{Name: "suite", Value: labels.Suite},
	}
	if labels.Feature != "" {
		resultLabels = append(resultLabels, allure.Label{Name: "feature", Value: labels.Feature})
	}
	resultLabels = append(resultLabels,
		allure.Label{Name: "host", Value: host},
		allure.Label{Name: "language", Value: "go"},
	)

	r.open = &allure.Result{
		UUID:        uuid.NewString(),
		HistoryID:   hex.EncodeToString(historyID[:]),
		Name:        name,
		FullName:    fullName,
		Stage:       allure.StageFinished,
		Start:       time.Now().UnixMilli(),
		Labels:      resultLabels,
		Attachments: []allure.Attachment{},
	}
}

// Attach stores an artifact file and references it from the open result.
func (r *AllureReporter) Attach(name, mediaType string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.open == nil {
		return fmt.Errorf("no open result to attach %q to", name)
	}

	source := uuid.NewString() + "-attachment" + allure.ExtensionFor(mediaType)
	if err := os.WriteFile(filepath.Join(r.dir, source), body, 0o644); err != nil {
		return fmt.Errorf("failed to write attachment %q: %w", name, err)
	}

	r.open.Attachments = append(r.open.Attachments, allure.Attachment{
		Name:   name,
		Source: source,
		Type:   mediaType,
	})
	r.logger.Debug("Attached artifact",
		zap.String("name", name),
		zap.String("media_type", mediaType),
		zap.Int("bytes", len(body)),
	)
	return nil
}

// EndResult finalizes and persists the open result document.
func (r *AllureReporter) EndResult(status results.Status, details StatusDetails) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.open == nil {
		return fmt.Errorf("no open result to end")
	}
	res := r.open
	r.open = nil

	res.Status = string(status)
	res.Stop = time.Now().UnixMilli()
	if details.Message != "" || details.Trace != "" {
		res.StatusDetails = &allure.StatusDetails{Message: details.Message, Trace: details.Trace}
	}

	return r.writeResult(res)
}

// WriteEnvironment persists the key=value properties file read by the
// report's Environment widget. Keys are sorted for stable output.
func (r *AllureReporter) WriteEnvironment(props map[string]string) error {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, props[k])
	}

	path := filepath.Join(r.dir, EnvironmentFileName)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", EnvironmentFileName, err)
	}
	return nil
}

// Close finalizes the report. A result left open (runner crash mid-scenario)
// is persisted as broken rather than silently lost.
func (r *AllureReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.open == nil {
		return nil
	}
	res := r.open
	r.open = nil

	res.Status = string(results.StatusBroken)
	res.Stop = time.Now().UnixMilli()
	res.StatusDetails = &allure.StatusDetails{Message: "result was never finalized"}
	return r.writeResult(res)
}

// writeResult marshals and stores one result document.
func (r *AllureReporter) writeResult(res *allure.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal result %s: %w", res.Name, err)
	}

	path := filepath.Join(r.dir, res.UUID+"-result.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write result %s: %w", res.Name, err)
	}

	r.logger.Debug("Wrote scenario result",
		zap.String("name", res.Name),
		zap.String("status", res.Status),
		zap.Int("attachments", len(res.Attachments)),
	)
	return nil
}
