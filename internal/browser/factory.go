// File: internal/browser/factory.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gauntlet-cli/internal/config"
	"github.com/xkilldash9x/gauntlet-cli/internal/lifecycle"
)

// Factory owns the UI automation resources for one session: the engine
// process, the launched browser, and the live contexts and pages. Resources
// are created lazily and memoized; Close releases everything that exists, in
// reverse order of creation.
type Factory struct {
	cfg    *config.Settings
	logger *zap.Logger
	proxy  string

	engine Engine

	mu       sync.Mutex
	started  bool
	closed   bool
	browser  Browser
	contexts *lifecycle.Tracked[Context]
	pages    *lifecycle.Tracked[Page]
}

// Option configures a Factory.
type Option func(*Factory)

// WithProxyAddress routes all browser traffic through the given proxy,
// typically the network capture recorder.
func WithProxyAddress(addr string) Option {
	return func(f *Factory) { f.proxy = addr }
}

// NewFactory creates a browser factory for the configured engine. Nothing is
// launched until the first Launch, NewContext, or NewPage call.
func NewFactory(cfg *config.Settings, logger *zap.Logger, opts ...Option) (*Factory, error) {
	f := &Factory{
		cfg:      cfg,
		logger:   logger.Named("browser"),
		contexts: lifecycle.NewTracked[Context](),
		pages:    lifecycle.NewTracked[Page](),
	}
	for _, opt := range opts {
		opt(f)
	}
	engine, err := newEngine(cfg.Core.Browser, f.logger, f.proxy)
	if err != nil {
		return nil, err
	}
	f.engine = engine
	return f, nil
}

// Launch returns the live browser, starting the engine and launching one if
// needed. Safe to call repeatedly; a lost connection triggers a relaunch.
func (f *Factory) Launch(ctx context.Context) (Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.launchLocked(ctx)
}

func (f *Factory) launchLocked(ctx context.Context) (Browser, error) {
	if f.closed {
		return nil, fmt.Errorf("browser factory is closed")
	}
	if f.browser != nil {
		if f.browser.IsConnected() {
			return f.browser, nil
		}
		f.logger.Warn("Browser connection lost; relaunching.")
		f.browser = nil
	}
	if !f.started {
		if err := f.engine.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start %s engine: %w", f.engine.Name(), err)
		}
		f.started = true
	}
	b, err := f.engine.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	f.browser = b
	return b, nil
}

// NewContext creates an isolated browsing context with options derived from
// Settings and tracks it for teardown. Tracing starts here when
// trace_on_failure is enabled.
func (f *Factory) NewContext(ctx context.Context) (Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.newContextLocked(ctx)
}

func (f *Factory) newContextLocked(ctx context.Context) (Context, error) {
	b, err := f.launchLocked(ctx)
	if err != nil {
		return nil, err
	}
	c, err := b.NewContext(ctx, f.contextOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	if f.cfg.Core.Browser.TraceOnFailure {
		if err := c.StartTracing(ctx); err != nil {
			if errors.Is(err, ErrTracingUnsupported) {
				f.logger.Debug("Tracing is not supported by the engine; continuing without it.",
					zap.String("engine", f.engine.Name()))
			} else {
				f.logger.Warn("Could not start tracing for new context.", zap.Error(err))
			}
		}
	}
	f.contexts.Add(c)
	f.logger.Debug("Browser context created.", zap.Int("live_contexts", f.contexts.Len()))
	return c, nil
}

func (f *Factory) contextOptions() ContextOptions {
	b := f.cfg.Core.Browser
	opts := ContextOptions{
		ViewportWidth:  b.Viewport.Width,
		ViewportHeight: b.Viewport.Height,
		// MITM capture requires tolerating the proxy's certificates.
		IgnoreHTTPSErrors: b.IgnoreHTTPSErrors || f.proxy != "",
	}
	if b.VideoOnFailure {
		opts.VideoDir = b.VideoDir
	}
	return opts
}

// NewPage creates a page in the most recently created live context, creating
// a context first if none exists. Default and navigation timeouts from
// Settings are applied before the page is handed out.
func (f *Factory) NewPage(ctx context.Context) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, fmt.Errorf("browser factory is closed")
	}

	c, ok := f.contexts.Last()
	if !ok {
		var err error
		c, err = f.newContextLocked(ctx)
		if err != nil {
			return nil, err
		}
	}
	p, err := c.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	p.SetDefaultTimeouts(
		time.Duration(f.cfg.Core.Browser.Timeout)*time.Millisecond,
		time.Duration(f.cfg.Data.Timeouts.PageLoad)*time.Second,
	)
	f.pages.Add(p)
	f.logger.Debug("Page created.", zap.Int("live_pages", f.pages.Len()))
	return p, nil
}

// ClosePage releases a page and forgets it. Release failures are logged,
// never raised; a failed close must not fail the scenario that triggered it.
func (f *Factory) ClosePage(ctx context.Context, p Page) {
	if p == nil {
		return
	}
	f.mu.Lock()
	tracked := f.pages.Remove(p)
	f.mu.Unlock()
	if !tracked {
		f.logger.Debug("Closing a page that was not tracked.")
	}
	if err := p.Close(ctx); err != nil {
		f.logger.Warn("Failed to close page.", zap.Error(err))
	}
}

// CloseContext releases a context and forgets it. Pages belonging to it
// should be closed first.
func (f *Factory) CloseContext(ctx context.Context, c Context) {
	if c == nil {
		return
	}
	f.mu.Lock()
	tracked := f.contexts.Remove(c)
	f.mu.Unlock()
	if !tracked {
		f.logger.Debug("Closing a context that was not tracked.")
	}
	if err := c.Close(ctx); err != nil {
		f.logger.Warn("Failed to close browser context.", zap.Error(err))
	}
}

// Close tears down all live resources: pages, then contexts, then the
// browser, then the engine. Every step is independently guarded so one
// failure cannot strand the resources below it. Idempotent.
func (f *Factory) Close(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	pages := f.pages.Drain()
	contexts := f.contexts.Drain()
	b := f.browser
	f.browser = nil
	started := f.started
	f.mu.Unlock()

	f.logger.Debug("Closing browser factory.",
		zap.Int("pages", len(pages)),
		zap.Int("contexts", len(contexts)),
	)

	for _, p := range pages {
		if err := p.Close(ctx); err != nil {
			f.logger.Warn("Failed to close page during shutdown.", zap.Error(err))
		}
	}
	for _, c := range contexts {
		if err := c.Close(ctx); err != nil {
			f.logger.Warn("Failed to close browser context during shutdown.", zap.Error(err))
		}
	}

	var closeErr error
	if b != nil {
		if err := b.Close(ctx); err != nil {
			f.logger.Error("Failed to close browser.", zap.Error(err))
			closeErr = fmt.Errorf("failed to close browser: %w", err)
		}
	}
	if started {
		if err := f.engine.Stop(ctx); err != nil {
			f.logger.Error("Failed to stop browser engine.", zap.Error(err))
			if closeErr == nil {
				closeErr = fmt.Errorf("failed to stop browser engine: %w", err)
			}
		}
	}
	return closeErr
}
