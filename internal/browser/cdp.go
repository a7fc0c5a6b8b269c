// File: internal/browser/cdp.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/gauntlet-cli/internal/config"
)

const pageCloseTimeout = 5 * time.Second

// cdpEngine drives chromium directly over the DevTools protocol. It has no
// driver process of its own; Start builds the exec allocator and Launch
// establishes the browser connection.
type cdpEngine struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
	proxy  string

	allocCtx    context.Context
	allocCancel context.CancelFunc
	limiter     *rate.Limiter
}

func newCDPEngine(cfg config.BrowserConfig, logger *zap.Logger, proxyAddr string) *cdpEngine {
	return &cdpEngine{
		cfg:    cfg,
		logger: logger.Named("cdp"),
		proxy:  proxyAddr,
	}
}

func (e *cdpEngine) Name() string { return config.EngineCDP }

func (e *cdpEngine) Start(ctx context.Context) error {
	if e.allocCtx != nil {
		return nil
	}

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.WindowSize(e.cfg.Viewport.Width, e.cfg.Viewport.Height))
	if !e.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if e.proxy != "" {
		opts = append(opts, chromedp.ProxyServer(e.proxy))
	}
	if e.cfg.IgnoreHTTPSErrors || e.proxy != "" {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	for _, arg := range e.cfg.Args {
		name, value := splitChromiumArg(arg)
		opts = append(opts, chromedp.Flag(name, value))
	}

	// The allocator must outlive the call that started it; it is torn down
	// by Stop, not by the caller's context.
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	e.allocCtx = allocCtx
	e.allocCancel = cancel

	if e.cfg.SlowMo > 0 {
		e.limiter = rate.NewLimiter(rate.Every(time.Duration(e.cfg.SlowMo)*time.Millisecond), 1)
	}
	e.logger.Debug("Chromium exec allocator ready.")
	return nil
}

func (e *cdpEngine) Launch(ctx context.Context) (Browser, error) {
	if e.allocCtx == nil {
		return nil, fmt.Errorf("cdp engine is not started")
	}
	browserCtx, cancel := chromedp.NewContext(e.allocCtx)

	// Running an empty task forces the browser process to launch and the
	// DevTools connection to come up.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to launch chromium: %w", err)
	}
	e.logger.Info("Browser launched.", zap.Bool("headless", e.cfg.Headless))
	return &cdpBrowser{
		ctx:     browserCtx,
		cancel:  cancel,
		logger:  e.logger,
		limiter: e.limiter,
	}, nil
}

func (e *cdpEngine) Stop(ctx context.Context) error {
	if e.allocCancel != nil {
		e.allocCancel()
	}
	e.allocCtx = nil
	e.allocCancel = nil
	return nil
}

// splitChromiumArg turns a command-line style argument into a flag name and
// value. "--lang=en-US" becomes ("lang", "en-US"); "--disable-gpu" becomes
// ("disable-gpu", true).
func splitChromiumArg(arg string) (string, any) {
	arg = strings.TrimLeft(arg, "-")
	if name, value, found := strings.Cut(arg, "="); found {
		return name, value
	}
	return arg, true
}

type cdpBrowser struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
	limiter *rate.Limiter
}

// executor returns a context that routes cdproto commands to the browser-level
// session, which is where target and browser-context commands must go.
func (b *cdpBrowser) executor() (context.Context, error) {
	c := chromedp.FromContext(b.ctx)
	if c == nil || c.Browser == nil {
		return nil, fmt.Errorf("browser connection is not established")
	}
	return cdp.WithExecutor(b.ctx, c.Browser), nil
}

func (b *cdpBrowser) NewContext(ctx context.Context, opts ContextOptions) (Context, error) {
	exec, err := b.executor()
	if err != nil {
		return nil, err
	}
	id, err := target.CreateBrowserContext().Do(exec)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	if opts.VideoDir != "" {
		b.logger.Debug("Video recording is not supported by the cdp engine; skipping.")
	}
	return &cdpContext{browser: b, id: id}, nil
}

func (b *cdpBrowser) IsConnected() bool { return b.ctx.Err() == nil }

func (b *cdpBrowser) Close(ctx context.Context) error {
	defer b.cancel()
	if b.ctx.Err() != nil {
		return nil
	}
	if err := chromedp.Cancel(b.ctx); err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

// cdpContext is an isolated chromium browser context. Its pages are targets
// created inside it.
type cdpContext struct {
	browser *cdpBrowser
	id      cdp.BrowserContextID
}

func (c *cdpContext) NewPage(ctx context.Context) (Page, error) {
	exec, err := c.browser.executor()
	if err != nil {
		return nil, err
	}
	targetID, err := target.CreateTarget("about:blank").
		WithBrowserContextID(c.id).
		Do(exec)
	if err != nil {
		return nil, fmt.Errorf("failed to create target: %w", err)
	}

	tabCtx, cancel := chromedp.NewContext(c.browser.ctx, chromedp.WithTargetID(targetID))
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to attach to target: %w", err)
	}
	return &cdpPage{ctx: tabCtx, cancel: cancel, limiter: c.browser.limiter}, nil
}

func (c *cdpContext) StartTracing(ctx context.Context) error {
	return ErrTracingUnsupported
}

func (c *cdpContext) StopTracing(ctx context.Context) ([]byte, error) {
	return nil, ErrTracingUnsupported
}

func (c *cdpContext) Close(ctx context.Context) error {
	if c.browser.ctx.Err() != nil {
		return nil
	}
	exec, err := c.browser.executor()
	if err != nil {
		return err
	}
	if err := target.DisposeBrowserContext(c.id).Do(exec); err != nil {
		return fmt.Errorf("failed to dispose browser context: %w", err)
	}
	return nil
}

// cdpPage wraps a single chromium target. Actions run against the combined
// lifetime of the tab and the caller's context, paced by the engine's slow-mo
// limiter when one is configured.
type cdpPage struct {
	ctx     context.Context
	cancel  context.CancelFunc
	limiter *rate.Limiter

	actionWait time.Duration
	navWait    time.Duration
}

// combineContext derives a context from the page lifetime that is also
// cancelled when the caller's context is.
func combineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(primary)
	if secondary == nil {
		return ctx, cancel
	}
	stop := context.AfterFunc(secondary, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (p *cdpPage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	runCtx, cancel := combineContext(p.ctx, ctx)
	defer cancel()
	if timeout > 0 {
		var tcancel context.CancelFunc
		runCtx, tcancel = context.WithTimeout(runCtx, timeout)
		defer tcancel()
	}
	return chromedp.Run(runCtx, actions...)
}

func (p *cdpPage) Navigate(ctx context.Context, url string) error {
	err := p.run(ctx, p.navWait,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (p *cdpPage) Click(ctx context.Context, selector string) error {
	if err := p.run(ctx, p.actionWait, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to click %q: %w", selector, err)
	}
	return nil
}

func (p *cdpPage) Fill(ctx context.Context, selector, value string) error {
	err := p.run(ctx, p.actionWait,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to fill %q: %w", selector, err)
	}
	return nil
}

func (p *cdpPage) Text(ctx context.Context, selector string) (string, error) {
	var text string
	if err := p.run(ctx, p.actionWait, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read text of %q: %w", selector, err)
	}
	return text, nil
}

func (p *cdpPage) IsVisible(ctx context.Context, selector string) (bool, error) {
	script := fmt.Sprintf(`(function(sel) {
		const el = document.querySelector(sel);
		if (!el) return false;
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden') return false;
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	})(%q)`, selector)

	var visible bool
	if err := p.run(ctx, p.actionWait, chromedp.Evaluate(script, &visible)); err != nil {
		return false, fmt.Errorf("failed to check visibility of %q: %w", selector, err)
	}
	return visible, nil
}

func (p *cdpPage) WaitForVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = p.actionWait
	}
	if err := p.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("timed out waiting for %q to become visible: %w", selector, err)
	}
	return nil
}

func (p *cdpPage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, p.actionWait, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}
	return buf, nil
}

func (p *cdpPage) Content(ctx context.Context) (string, error) {
	var content string
	if err := p.run(ctx, p.actionWait, chromedp.OuterHTML("html", &content, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return content, nil
}

func (p *cdpPage) URL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, p.actionWait, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read page url: %w", err)
	}
	return url, nil
}

func (p *cdpPage) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.run(ctx, p.actionWait, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read page title: %w", err)
	}
	return title, nil
}

func (p *cdpPage) SelectOption(ctx context.Context, selector, value string) error {
	script := fmt.Sprintf(`(function(sel, value) {
		const el = document.querySelector(sel);
		if (!el) return false;
		el.value = value;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	})(%q, %q)`, selector, value)

	var ok bool
	if err := p.run(ctx, p.actionWait, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("failed to select option %q in %q: %w", value, selector, err)
	}
	if !ok {
		return fmt.Errorf("no element matches selector %q", selector)
	}
	return nil
}

func (p *cdpPage) Attribute(ctx context.Context, selector, name string) (string, error) {
	var value string
	var ok bool
	if err := p.run(ctx, p.actionWait, chromedp.AttributeValue(selector, name, &value, &ok, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read attribute %q of %q: %w", name, selector, err)
	}
	if !ok {
		return "", nil
	}
	return value, nil
}

func (p *cdpPage) Hover(ctx context.Context, selector string) error {
	action := chromedp.QueryAfter(selector, func(qctx context.Context, _ runtime.ExecutionContextID, nodes ...*cdp.Node) error {
		if len(nodes) == 0 {
			return fmt.Errorf("no nodes found")
		}
		box, err := dom.GetBoxModel().WithNodeID(nodes[0].NodeID).Do(qctx)
		if err != nil {
			return err
		}
		if len(box.Content) < 8 {
			return fmt.Errorf("element has no content box")
		}
		x := (box.Content[0] + box.Content[4]) / 2
		y := (box.Content[1] + box.Content[5]) / 2
		return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(qctx)
	}, chromedp.ByQuery, chromedp.NodeVisible)

	if err := p.run(ctx, p.actionWait, action); err != nil {
		return fmt.Errorf("failed to hover over %q: %w", selector, err)
	}
	return nil
}

// keySequences maps W3C key names to the control sequences the DevTools
// keyboard layer understands. Unmapped names are sent as literal characters.
var keySequences = map[string]string{
	"Enter":      kb.Enter,
	"Tab":        kb.Tab,
	"Escape":     kb.Escape,
	"Backspace":  kb.Backspace,
	"Delete":     kb.Delete,
	"ArrowUp":    kb.ArrowUp,
	"ArrowDown":  kb.ArrowDown,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowRight": kb.ArrowRight,
	"Home":       kb.Home,
	"End":        kb.End,
	"PageUp":     kb.PageUp,
	"PageDown":   kb.PageDown,
}

func keySequence(key string) string {
	if seq, ok := keySequences[key]; ok {
		return seq
	}
	return key
}

func (p *cdpPage) Press(ctx context.Context, selector, key string) error {
	err := p.run(ctx, p.actionWait,
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.KeyEvent(keySequence(key)),
	)
	if err != nil {
		return fmt.Errorf("failed to press %q on %q: %w", key, selector, err)
	}
	return nil
}

func (p *cdpPage) Evaluate(ctx context.Context, script string, result any) error {
	if err := p.run(ctx, p.actionWait, chromedp.Evaluate(script, result)); err != nil {
		return fmt.Errorf("failed to evaluate script: %w", err)
	}
	return nil
}

func (p *cdpPage) ElementCount(ctx context.Context, selector string) (int, error) {
	script := fmt.Sprintf(`document.querySelectorAll(%q).length`, selector)
	var count int
	if err := p.run(ctx, p.actionWait, chromedp.Evaluate(script, &count)); err != nil {
		return 0, fmt.Errorf("failed to count elements matching %q: %w", selector, err)
	}
	return count, nil
}

// VideoPath always reports no recording; the cdp engine does not record.
func (p *cdpPage) VideoPath(ctx context.Context) (string, error) {
	return "", nil
}

func (p *cdpPage) SetDefaultTimeouts(action, navigation time.Duration) {
	p.actionWait = action
	p.navWait = navigation
}

func (p *cdpPage) Close(ctx context.Context) error {
	defer p.cancel()
	if p.ctx.Err() != nil {
		return nil
	}
	closeCtx, cancel := context.WithTimeout(p.ctx, pageCloseTimeout)
	defer cancel()
	if err := chromedp.Run(closeCtx, page.Close()); err != nil && closeCtx.Err() == nil {
		return fmt.Errorf("failed to close page: %w", err)
	}
	return nil
}
