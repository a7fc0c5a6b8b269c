// File: internal/harness/scope.go
package harness

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gauntlet-cli/internal/apiclient"
	"github.com/xkilldash9x/gauntlet-cli/internal/artifacts"
	"github.com/xkilldash9x/gauntlet-cli/internal/browser"
	"github.com/xkilldash9x/gauntlet-cli/internal/config"
	"github.com/xkilldash9x/gauntlet-cli/internal/mobile"
)

// SetupError wraps a failure to construct a scenario resource. A setup
// failure means the scenario never reached a verdict, so the runner reports
// it as broken rather than failed.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string { return fmt.Sprintf("scenario setup failed: %v", e.Err) }

func (e *SetupError) Unwrap() error { return e.Err }

// Scope hands a scenario its resources. Everything is lazy: the browser
// page, the device session, and the API client cost nothing until the
// scenario asks for them, and each accessor registers the matching
// diagnostic handles for failure capture as a side effect. One scope serves
// exactly one scenario execution.
type Scope struct {
	h      *Harness
	logger *zap.Logger

	mu         sync.Mutex
	handles    artifacts.Handles
	browserCtx browser.Context
	page       browser.Page
	device     *mobile.Session
}

func newScope(h *Harness, logger *zap.Logger) *Scope {
	s := &Scope{h: h, logger: logger}
	if h.recorder != nil {
		s.handles.Network = h.recorder
	}
	return s
}

// Settings returns the resolved configuration for the run.
func (s *Scope) Settings() *config.Settings { return s.h.settings }

// Logger returns the scenario-scoped logger.
func (s *Scope) Logger() *zap.Logger { return s.logger }

// Attach adds a custom artifact to the scenario's open report result.
func (s *Scope) Attach(name, mediaType string, body []byte) error {
	return s.h.reporter.Attach(name, mediaType, body)
}

// UI returns the scenario's browser page, creating an isolated browsing
// context and page on first call. The page and context close with the scope;
// the browser itself survives for the next scenario. Visual and trace
// handles register here, gated by the matching on-failure settings.
func (s *Scope) UI(ctx context.Context) (browser.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page != nil {
		return s.page, nil
	}

	bctx, err := s.h.browsers.NewContext(ctx)
	if err != nil {
		return nil, &SetupError{Err: err}
	}
	// Kept even if the page fails below; Close releases it either way.
	s.browserCtx = bctx

	page, err := s.h.browsers.NewPage(ctx)
	if err != nil {
		return nil, &SetupError{Err: err}
	}
	s.page = page

	b := s.h.settings.Core.Browser
	if b.ScreenshotOnFailure || b.VideoOnFailure {
		s.handles.Visual = page
	}
	if b.TraceOnFailure {
		s.handles.Trace = bctx
	}
	return page, nil
}

// Mobile returns the run's device session, creating it on first use. The
// session belongs to the factory and survives across scenarios; the scope
// only registers its diagnostic handles.
func (s *Scope) Mobile(ctx context.Context) (*mobile.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device != nil {
		return s.device, nil
	}

	session, err := s.h.mobiles.Session(ctx)
	if err != nil {
		return nil, &SetupError{Err: err}
	}
	s.device = session
	s.handles.Device = session
	if tailer := s.h.mobiles.ServerLog(); tailer != nil {
		s.handles.ServerLog = tailer
	}
	return session, nil
}

// API returns the API client. Requests and responses it makes are recorded
// by its session and flushed into the scenario's report result.
func (s *Scope) API() *apiclient.Client {
	return s.h.api
}

// Handles returns the diagnostic handles registered so far.
func (s *Scope) Handles() artifacts.Handles {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles
}

// flushAttachments drains the API snapshots recorded during the scenario
// into its still-open report result.
func (s *Scope) flushAttachments() {
	for _, snap := range s.h.api.Session().DrainSnapshots() {
		if err := s.h.reporter.Attach(snap.Name, snap.MediaType, snap.Body); err != nil {
			s.logger.Warn("Failed to attach an API snapshot.",
				zap.String("name", snap.Name), zap.Error(err))
		}
	}
}

// Close releases the scenario's page and browsing context and clears the
// capture log for the next scenario. The device session stays; it belongs to
// the run.
func (s *Scope) Close(ctx context.Context) {
	s.mu.Lock()
	page := s.page
	bctx := s.browserCtx
	s.page = nil
	s.browserCtx = nil
	s.device = nil
	s.handles = artifacts.Handles{}
	s.mu.Unlock()

	if page != nil {
		s.h.browsers.ClosePage(ctx, page)
	}
	if bctx != nil {
		s.h.browsers.CloseContext(ctx, bctx)
	}
	if s.h.recorder != nil {
		s.h.recorder.Reset()
	}
}
