// -- internal/reporting/reporter.go --
package reporting

import (
	"fmt"

	"github.com/xkilldash9x/gauntlet-cli/internal/results"
)

// Sink receives named artifacts captured on scenario failure. Implementations
// must tolerate being called at any point between StartResult and EndResult.
type Sink interface {
	Attach(name, mediaType string, body []byte) error
}

// Labels categorize a result for report grouping.
type Labels struct {
	Suite   string
	Feature string
}

// StatusDetails carries the failure message and stack trace for a result.
type StatusDetails struct {
	Message string
	Trace   string
}

// Reporter extends Sink with the per-scenario result lifecycle.
type Reporter interface {
	Sink
	// StartResult opens a result document for the named scenario.
	StartResult(name, fullName string, labels Labels)
	// EndResult finalizes and persists the open result.
	EndResult(status results.Status, details StatusDetails) error
	// WriteEnvironment persists run-wide environment metadata.
	WriteEnvironment(props map[string]string) error
	// Close finalizes the report and releases any underlying resources.
	Close() error
}

// New creates a reporter for the requested format. The allure format writes
// a results directory for the external report generator; noop discards
// everything and backs tests and diagnostic commands.
func New(format, dir string, clean bool) (Reporter, error) {
	switch format {
	case "allure":
		return NewAllureReporter(dir, clean)
	case "noop":
		return NewNopReporter(), nil
	default:
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
}

// NopReporter discards all results and attachments.
type NopReporter struct{}

// NewNopReporter returns a reporter that accepts and drops everything.
func NewNopReporter() *NopReporter { return &NopReporter{} }

func (*NopReporter) Attach(string, string, []byte) error            { return nil }
func (*NopReporter) StartResult(string, string, Labels)             {}
func (*NopReporter) EndResult(results.Status, StatusDetails) error  { return nil }
func (*NopReporter) WriteEnvironment(map[string]string) error       { return nil }
func (*NopReporter) Close() error                                   { return nil }
