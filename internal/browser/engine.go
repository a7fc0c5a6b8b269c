// File: internal/browser/engine.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gauntlet-cli/internal/config"
)

// ErrTracingUnsupported is returned by engines that cannot produce trace
// archives. The factory treats it as a soft condition, not a failure.
var ErrTracingUnsupported = errors.New("tracing is not supported by this engine")

// Engine abstracts a browser automation backend. An engine owns the driver
// process (the playwright node driver or the chromium exec allocator); the
// Browser/Context/Page handles it produces own everything below that.
type Engine interface {
	// Name identifies the engine ("playwright" or "cdp").
	Name() string
	// Start brings up the driver. Idempotent; the handles created by Launch
	// stay valid until Stop.
	Start(ctx context.Context) error
	// Launch starts a browser instance on a started engine.
	Launch(ctx context.Context) (Browser, error)
	// Stop tears the driver down. Launched browsers must be closed first.
	Stop(ctx context.Context) error
}

// Browser is a running browser instance.
type Browser interface {
	NewContext(ctx context.Context, opts ContextOptions) (Context, error)
	IsConnected() bool
	Close(ctx context.Context) error
}

// Context is an isolated browsing profile (cookies, storage, cache) within a
// browser instance.
type Context interface {
	NewPage(ctx context.Context) (Page, error)
	StartTracing(ctx context.Context) error
	// StopTracing ends tracing and returns the trace archive (zip).
	StopTracing(ctx context.Context) ([]byte, error)
	Close(ctx context.Context) error
}

// Page is a single tab. Selector-based operations address elements with CSS
// selectors; waits respect the configured default timeouts unless the call
// carries its own.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	Text(ctx context.Context, selector string) (string, error)
	IsVisible(ctx context.Context, selector string) (bool, error)
	WaitForVisible(ctx context.Context, selector string, timeout time.Duration) error
	Screenshot(ctx context.Context) ([]byte, error)
	Content(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	SelectOption(ctx context.Context, selector, value string) error
	Attribute(ctx context.Context, selector, name string) (string, error)
	Hover(ctx context.Context, selector string) error
	Press(ctx context.Context, selector, key string) error
	Evaluate(ctx context.Context, script string, result any) error
	ElementCount(ctx context.Context, selector string) (int, error)
	// VideoPath returns the recording file for the page, or "" when video
	// recording is not active.
	VideoPath(ctx context.Context) (string, error)
	SetDefaultTimeouts(action, navigation time.Duration)
	Close(ctx context.Context) error
}

// ContextOptions carries per-context settings derived from configuration.
type ContextOptions struct {
	ViewportWidth     int
	ViewportHeight    int
	IgnoreHTTPSErrors bool
	// VideoDir enables video recording into the directory when non-empty.
	// Only the playwright engine records video.
	VideoDir string
}

// newEngine selects the engine implementation for the configured backend.
func newEngine(cfg config.BrowserConfig, logger *zap.Logger, proxyAddr string) (Engine, error) {
	switch cfg.Engine {
	case config.EnginePlaywright:
		return newPlaywrightEngine(cfg, logger, proxyAddr), nil
	case config.EngineCDP:
		return newCDPEngine(cfg, logger, proxyAddr), nil
	default:
		return nil, fmt.Errorf("unsupported browser engine: %q", cfg.Engine)
	}
}
