// File: internal/mocks/mocks.go
package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/gauntlet-cli/internal/reporting"
	"github.com/xkilldash9x/gauntlet-cli/internal/results"
)

// -- Sink Mock --

// MockSink mocks reporting.Sink. Attachment calls are recorded by testify,
// so tests can assert on order and content via m.Calls.
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Attach(name, mediaType string, body []byte) error {
	args := m.Called(name, mediaType, body)
	return args.Error(0)
}

// -- Reporter Mock --

// MockReporter mocks the full reporting.Reporter lifecycle.
type MockReporter struct {
	mock.Mock
}

func (m *MockReporter) Attach(name, mediaType string, body []byte) error {
	args := m.Called(name, mediaType, body)
	return args.Error(0)
}

func (m *MockReporter) StartResult(name, fullName string, labels reporting.Labels) {
	m.Called(name, fullName, labels)
}

func (m *MockReporter) EndResult(status results.Status, details reporting.StatusDetails) error {
	args := m.Called(status, details)
	return args.Error(0)
}

func (m *MockReporter) WriteEnvironment(props map[string]string) error {
	args := m.Called(props)
	return args.Error(0)
}

func (m *MockReporter) Close() error {
	args := m.Called()
	return args.Error(0)
}
