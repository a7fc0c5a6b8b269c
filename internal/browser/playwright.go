// File: internal/browser/playwright.go
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gauntlet-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	driverInstallTimeout = 5 * time.Minute
	launchTimeoutMs      = 60000
)

// EnsureDriver verifies that the playwright driver and the given browser are
// installed, downloading them if necessary. The install blocks, so it runs
// under a bounded timeout.
func EnsureDriver(ctx context.Context, browserType string) error {
	installCtx, cancel := context.WithTimeout(ctx, driverInstallTimeout)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- playwright.Install(&playwright.RunOptions{Browsers: []string{browserType}})
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("failed to install playwright driver: %w", err)
		}
		return nil
	case <-installCtx.Done():
		return fmt.Errorf("timeout waiting for playwright driver installation: %w", installCtx.Err())
	}
}

type playwrightEngine struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
	proxy  string
	pw     *playwright.Playwright
}

func newPlaywrightEngine(cfg config.BrowserConfig, logger *zap.Logger, proxyAddr string) *playwrightEngine {
	return &playwrightEngine{
		cfg:    cfg,
		logger: logger.Named("playwright"),
		proxy:  proxyAddr,
	}
}

func (e *playwrightEngine) Name() string { return config.EnginePlaywright }

func (e *playwrightEngine) Start(ctx context.Context) error {
	if e.pw != nil {
		return nil
	}
	if err := EnsureDriver(ctx, e.cfg.Type); err != nil {
		return err
	}
	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright driver: %w", err)
	}
	e.pw = pw
	e.logger.Debug("Playwright driver started.")
	return nil
}

func (e *playwrightEngine) Launch(ctx context.Context) (Browser, error) {
	if e.pw == nil {
		return nil, fmt.Errorf("playwright engine is not started")
	}
	bt, err := e.browserType()
	if err != nil {
		return nil, err
	}
	b, err := bt.Launch(e.launchOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to launch %s: %w", e.cfg.Type, err)
	}
	e.logger.Info("Browser launched.",
		zap.String("type", e.cfg.Type),
		zap.String("version", b.Version()),
		zap.Bool("headless", e.cfg.Headless),
	)
	return &playwrightBrowser{browser: b, logger: e.logger}, nil
}

func (e *playwrightEngine) Stop(ctx context.Context) error {
	if e.pw == nil {
		return nil
	}
	err := e.pw.Stop()
	e.pw = nil
	if err != nil {
		return fmt.Errorf("failed to stop playwright driver: %w", err)
	}
	e.logger.Debug("Playwright driver stopped.")
	return nil
}

func (e *playwrightEngine) browserType() (playwright.BrowserType, error) {
	switch e.cfg.Type {
	case config.BrowserChromium:
		return e.pw.Chromium, nil
	case config.BrowserFirefox:
		return e.pw.Firefox, nil
	case config.BrowserWebKit:
		return e.pw.WebKit, nil
	default:
		return nil, fmt.Errorf("unsupported browser type: %q", e.cfg.Type)
	}
}

func (e *playwrightEngine) launchOptions() playwright.BrowserTypeLaunchOptions {
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(e.cfg.Headless),
		Timeout:  playwright.Float(launchTimeoutMs),
	}
	if e.cfg.SlowMo > 0 {
		opts.SlowMo = playwright.Float(float64(e.cfg.SlowMo))
	}
	if e.proxy != "" {
		opts.Proxy = &playwright.Proxy{Server: e.proxy}
	}
	if e.cfg.Type == config.BrowserChromium {
		// Stability arguments for containerized environments.
		opts.Args = append([]string{
			"--disable-gpu",
			"--no-sandbox",
			"--disable-dev-shm-usage",
		}, e.cfg.Args...)
	} else {
		opts.Args = e.cfg.Args
	}
	return opts
}

type playwrightBrowser struct {
	browser playwright.Browser
	logger  *zap.Logger
}

func (b *playwrightBrowser) NewContext(ctx context.Context, opts ContextOptions) (Context, error) {
	ctxOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: opts.ViewportWidth, Height: opts.ViewportHeight},
	}
	if opts.IgnoreHTTPSErrors {
		ctxOpts.IgnoreHttpsErrors = playwright.Bool(true)
	}
	if opts.VideoDir != "" {
		if err := os.MkdirAll(opts.VideoDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create video directory %s: %w", opts.VideoDir, err)
		}
		ctxOpts.RecordVideo = &playwright.RecordVideo{Dir: opts.VideoDir}
	}
	bc, err := b.browser.NewContext(ctxOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	return &playwrightContext{ctx: bc, logger: b.logger}, nil
}

func (b *playwrightBrowser) IsConnected() bool { return b.browser.IsConnected() }

func (b *playwrightBrowser) Close(ctx context.Context) error {
	if err := b.browser.Close(); err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

type playwrightContext struct {
	ctx     playwright.BrowserContext
	logger  *zap.Logger
	tracing bool
}

func (c *playwrightContext) NewPage(ctx context.Context) (Page, error) {
	p, err := c.ctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return &playwrightPage{page: p}, nil
}

func (c *playwrightContext) StartTracing(ctx context.Context) error {
	err := c.ctx.Tracing().Start(playwright.TracingStartOptions{
		Screenshots: playwright.Bool(true),
		Snapshots:   playwright.Bool(true),
		Sources:     playwright.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to start tracing: %w", err)
	}
	c.tracing = true
	return nil
}

func (c *playwrightContext) StopTracing(ctx context.Context) ([]byte, error) {
	if !c.tracing {
		return nil, fmt.Errorf("tracing was not started on this context")
	}
	c.tracing = false

	// The driver only writes traces to disk, so stop into a scratch file and
	// read it back.
	dir, err := os.MkdirTemp("", "gauntlet-trace-")
	if err != nil {
		return nil, fmt.Errorf("failed to create trace scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "trace.zip")
	if err := c.ctx.Tracing().Stop(path); err != nil {
		return nil, fmt.Errorf("failed to stop tracing: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace archive: %w", err)
	}
	return data, nil
}

func (c *playwrightContext) Close(ctx context.Context) error {
	if c.tracing {
		// Discard an unconsumed trace so the context can shut down cleanly.
		if err := c.ctx.Tracing().Stop(); err != nil {
			c.logger.Debug("Could not stop tracing during context close.", zap.Error(err))
		}
		c.tracing = false
	}
	if err := c.ctx.Close(); err != nil {
		return fmt.Errorf("failed to close browser context: %w", err)
	}
	return nil
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Navigate(ctx context.Context, url string) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (p *playwrightPage) Click(ctx context.Context, selector string) error {
	if err := p.page.Locator(selector).Click(); err != nil {
		return fmt.Errorf("failed to click %q: %w", selector, err)
	}
	return nil
}

func (p *playwrightPage) Fill(ctx context.Context, selector, value string) error {
	if err := p.page.Locator(selector).Fill(value); err != nil {
		return fmt.Errorf("failed to fill %q: %w", selector, err)
	}
	return nil
}

func (p *playwrightPage) Text(ctx context.Context, selector string) (string, error) {
	text, err := p.page.Locator(selector).TextContent()
	if err != nil {
		return "", fmt.Errorf("failed to read text of %q: %w", selector, err)
	}
	return text, nil
}

func (p *playwrightPage) IsVisible(ctx context.Context, selector string) (bool, error) {
	visible, err := p.page.Locator(selector).IsVisible()
	if err != nil {
		return false, fmt.Errorf("failed to check visibility of %q: %w", selector, err)
	}
	return visible, nil
}

func (p *playwrightPage) WaitForVisible(ctx context.Context, selector string, timeout time.Duration) error {
	opts := playwright.LocatorWaitForOptions{State: playwright.WaitForSelectorStateVisible}
	if timeout > 0 {
		opts.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}
	if err := p.page.Locator(selector).WaitFor(opts); err != nil {
		return fmt.Errorf("timed out waiting for %q to become visible: %w", selector, err)
	}
	return nil
}

func (p *playwrightPage) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}
	return data, nil
}

func (p *playwrightPage) Content(ctx context.Context) (string, error) {
	content, err := p.page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return content, nil
}

func (p *playwrightPage) URL(ctx context.Context) (string, error) {
	return p.page.URL(), nil
}

func (p *playwrightPage) Title(ctx context.Context) (string, error) {
	title, err := p.page.Title()
	if err != nil {
		return "", fmt.Errorf("failed to read page title: %w", err)
	}
	return title, nil
}

func (p *playwrightPage) SelectOption(ctx context.Context, selector, value string) error {
	_, err := p.page.Locator(selector).SelectOption(playwright.SelectOptionValues{
		Values: &[]string{value},
	})
	if err != nil {
		return fmt.Errorf("failed to select option %q in %q: %w", value, selector, err)
	}
	return nil
}

func (p *playwrightPage) Attribute(ctx context.Context, selector, name string) (string, error) {
	value, err := p.page.Locator(selector).GetAttribute(name)
	if err != nil {
		return "", fmt.Errorf("failed to read attribute %q of %q: %w", name, selector, err)
	}
	return value, nil
}

func (p *playwrightPage) Hover(ctx context.Context, selector string) error {
	if err := p.page.Locator(selector).Hover(); err != nil {
		return fmt.Errorf("failed to hover over %q: %w", selector, err)
	}
	return nil
}

func (p *playwrightPage) Press(ctx context.Context, selector, key string) error {
	if err := p.page.Locator(selector).Press(key); err != nil {
		return fmt.Errorf("failed to press %q on %q: %w", key, selector, err)
	}
	return nil
}

func (p *playwrightPage) Evaluate(ctx context.Context, script string, result any) error {
	value, err := p.page.Evaluate(script)
	if err != nil {
		return fmt.Errorf("failed to evaluate script: %w", err)
	}
	if result == nil {
		return nil
	}
	// The driver returns loosely typed values; round-trip through JSON to
	// land them in the caller's type.
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode evaluation result: %w", err)
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("failed to decode evaluation result: %w", err)
	}
	return nil
}

func (p *playwrightPage) ElementCount(ctx context.Context, selector string) (int, error) {
	count, err := p.page.Locator(selector).Count()
	if err != nil {
		return 0, fmt.Errorf("failed to count elements matching %q: %w", selector, err)
	}
	return count, nil
}

func (p *playwrightPage) VideoPath(ctx context.Context) (string, error) {
	video := p.page.Video()
	if video == nil {
		return "", nil
	}
	path, err := video.Path()
	if err != nil {
		return "", fmt.Errorf("failed to resolve video path: %w", err)
	}
	return path, nil
}

func (p *playwrightPage) SetDefaultTimeouts(action, navigation time.Duration) {
	p.page.SetDefaultTimeout(float64(action.Milliseconds()))
	p.page.SetDefaultNavigationTimeout(float64(navigation.Milliseconds()))
}

func (p *playwrightPage) Close(ctx context.Context) error {
	if err := p.page.Close(); err != nil {
		return fmt.Errorf("failed to close page: %w", err)
	}
	return nil
}
