// internal/mocks/mocks_test.go
package mocks_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/gauntlet-cli/internal/mocks"
	"github.com/xkilldash9x/gauntlet-cli/internal/reporting"
	"github.com/xkilldash9x/gauntlet-cli/internal/results"
)

// Compile-time checks that the mocks track their interfaces.
var (
	_ reporting.Sink     = (*mocks.MockSink)(nil)
	_ reporting.Reporter = (*mocks.MockReporter)(nil)
)

func TestMockSinkRecordsCalls(t *testing.T) {
	sink := &mocks.MockSink{}
	sink.On("Attach", "Page URL", "text/plain", []byte("http://x")).Return(nil)

	err := sink.Attach("Page URL", "text/plain", []byte("http://x"))
	assert.NoError(t, err)
	sink.AssertExpectations(t)
}

func TestMockReporterLifecycle(t *testing.T) {
	rep := &mocks.MockReporter{}
	rep.On("StartResult", "s", "full/s", reporting.Labels{Suite: "ui"}).Return()
	rep.On("EndResult", results.StatusPassed, reporting.StatusDetails{}).Return(nil)
	rep.On("Close").Return(nil)

	rep.StartResult("s", "full/s", reporting.Labels{Suite: "ui"})
	assert.NoError(t, rep.EndResult(results.StatusPassed, reporting.StatusDetails{}))
	assert.NoError(t, rep.Close())
	rep.AssertExpectations(t)
}
