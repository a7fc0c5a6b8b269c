// File: internal/mobile/session.go
package mobile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gauntlet-cli/internal/artifacts"
	"github.com/xkilldash9x/gauntlet-cli/internal/config"
	"github.com/xkilldash9x/gauntlet-cli/internal/mobile/wire"
)

const (
	pollInterval      = 500 * time.Millisecond
	maxScrollAttempts = 10

	defaultSwipeDuration     = 500 * time.Millisecond
	defaultLongPressDuration = time.Second
)

// Session drives one live Appium session with locator-based actions. Every
// locator goes through ParseLocator, so the prefix syntax from page objects
// and test data works everywhere.
type Session struct {
	client *wire.Client
	id     string
	caps   map[string]any
	logger *zap.Logger

	defaultWait time.Duration
}

var _ artifacts.DeviceHandle = (*Session)(nil)

func newSession(client *wire.Client, info *wire.SessionInfo, cfg *config.Settings, logger *zap.Logger) *Session {
	return &Session{
		client:      client,
		id:          info.ID,
		caps:        info.Capabilities,
		logger:      logger.Named("session"),
		defaultWait: cfg.Data.Timeouts.ElementWaitDuration(),
	}
}

// ID returns the server-side session identifier.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) find(ctx context.Context, locator string) (string, error) {
	using, value := ParseLocator(locator)
	id, err := s.client.FindElement(ctx, s.id, using, value)
	if err != nil {
		return "", fmt.Errorf("failed to find element %q: %w", locator, err)
	}
	return id, nil
}

// Tap clicks the element the locator resolves to.
func (s *Session) Tap(ctx context.Context, locator string) error {
	s.logger.Debug("Tapping element.", zap.String("locator", locator))
	id, err := s.find(ctx, locator)
	if err != nil {
		return err
	}
	return s.client.Click(ctx, s.id, id)
}

// SendKeys clears the element and types the text into it. The text itself is
// never logged; credentials flow through here.
func (s *Session) SendKeys(ctx context.Context, locator, text string) error {
	s.logger.Debug("Typing into element.", zap.String("locator", locator))
	id, err := s.find(ctx, locator)
	if err != nil {
		return err
	}
	if err := s.client.Clear(ctx, s.id, id); err != nil {
		return fmt.Errorf("failed to clear element %q: %w", locator, err)
	}
	return s.client.SendKeys(ctx, s.id, id, text)
}

// Text returns the element's visible text. Some Android widgets expose their
// label only through the text attribute, so an empty result falls back to it.
func (s *Session) Text(ctx context.Context, locator string) (string, error) {
	id, err := s.find(ctx, locator)
	if err != nil {
		return "", err
	}
	text, err := s.client.Text(ctx, s.id, id)
	if err != nil {
		return "", err
	}
	if text != "" {
		return text, nil
	}
	return s.client.Attribute(ctx, s.id, id, "text")
}

// Attribute reads a named attribute from the element.
func (s *Session) Attribute(ctx context.Context, locator, name string) (string, error) {
	id, err := s.find(ctx, locator)
	if err != nil {
		return "", err
	}
	return s.client.Attribute(ctx, s.id, id, name)
}

// IsDisplayed reports whether the element exists and is visible. An element
// that is not in the tree at all is simply not displayed, not an error.
func (s *Session) IsDisplayed(ctx context.Context, locator string) (bool, error) {
	id, err := s.find(ctx, locator)
	if err != nil {
		if wire.IsNoSuchElement(err) {
			return false, nil
		}
		return false, err
	}
	displayed, err := s.client.Displayed(ctx, s.id, id)
	if err != nil {
		if wire.IsNoSuchElement(err) {
			return false, nil
		}
		return false, err
	}
	return displayed, nil
}

// Swipe performs a touch gesture from the start to the end coordinates over
// the given duration.
func (s *Session) Swipe(ctx context.Context, startX, startY, endX, endY int, duration time.Duration) error {
	if duration <= 0 {
		duration = defaultSwipeDuration
	}
	sequence := wire.TouchSequence(
		wire.PointerMove(startX, startY, 0),
		wire.PointerDown(),
		wire.PointerMove(endX, endY, int(duration.Milliseconds())),
		wire.PointerUp(),
	)
	return s.client.PerformActions(ctx, s.id, sequence)
}

// LongPress holds a touch on the element's center for the given duration,
// defaulting to one second.
func (s *Session) LongPress(ctx context.Context, locator string, duration time.Duration) error {
	if duration <= 0 {
		duration = defaultLongPressDuration
	}
	id, err := s.find(ctx, locator)
	if err != nil {
		return err
	}
	rect, err := s.client.ElementRect(ctx, s.id, id)
	if err != nil {
		return fmt.Errorf("failed to measure element %q: %w", locator, err)
	}
	sequence := wire.TouchSequence(
		wire.PointerMove(rect.X+rect.Width/2, rect.Y+rect.Height/2, 0),
		wire.PointerDown(),
		wire.Pause(int(duration.Milliseconds())),
		wire.PointerUp(),
	)
	return s.client.PerformActions(ctx, s.id, sequence)
}

// ScrollToElement swipes up through the view until the element is displayed,
// giving up after a fixed number of swipes.
func (s *Session) ScrollToElement(ctx context.Context, locator string) error {
	window, err := s.client.WindowRect(ctx, s.id)
	if err != nil {
		return fmt.Errorf("failed to read window size: %w", err)
	}
	startX := window.Width / 2
	startY := int(float64(window.Height) * 0.8)
	endY := int(float64(window.Height) * 0.2)

	for i := 0; i < maxScrollAttempts; i++ {
		visible, err := s.IsDisplayed(ctx, locator)
		if err != nil {
			return err
		}
		if visible {
			s.logger.Debug("Element reached by scrolling.",
				zap.String("locator", locator), zap.Int("swipes", i))
			return nil
		}
		if err := s.Swipe(ctx, startX, startY, startX, endY, defaultSwipeDuration); err != nil {
			return err
		}
	}
	return fmt.Errorf("element %q not found after %d swipes", locator, maxScrollAttempts)
}

// WaitForElement polls until the element is present. A non-positive timeout
// uses the configured element wait.
func (s *Session) WaitForElement(ctx context.Context, locator string, timeout time.Duration) error {
	return s.waitFor(ctx, timeout, fmt.Sprintf("element %q", locator), func(ctx context.Context) (bool, error) {
		_, err := s.find(ctx, locator)
		return err == nil, err
	})
}

// WaitForVisible polls until the element is present and displayed.
func (s *Session) WaitForVisible(ctx context.Context, locator string, timeout time.Duration) error {
	return s.waitFor(ctx, timeout, fmt.Sprintf("element %q to be visible", locator), func(ctx context.Context) (bool, error) {
		id, err := s.find(ctx, locator)
		if err != nil {
			return false, err
		}
		return s.client.Displayed(ctx, s.id, id)
	})
}

// waitFor polls the probe until it succeeds or the timeout passes. A probe
// error that is not "no such element" aborts the wait immediately.
func (s *Session) waitFor(ctx context.Context, timeout time.Duration, what string, probe func(context.Context) (bool, error)) error {
	if timeout <= 0 {
		timeout = s.defaultWait
	}
	deadline := time.Now().Add(timeout)
	for {
		ok, err := probe(ctx)
		if err == nil && ok {
			return nil
		}
		if err != nil && !wire.IsNoSuchElement(err) {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out after %s waiting for %s", timeout, what)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Screenshot captures the device screen as PNG bytes.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	return s.client.Screenshot(ctx, s.id)
}

// Source returns the current view hierarchy as XML.
func (s *Session) Source(ctx context.Context) (string, error) {
	return s.client.Source(ctx, s.id)
}

// Hierarchy renders a compact JSON summary of the current view tree.
func (s *Session) Hierarchy(ctx context.Context) ([]byte, error) {
	source, err := s.Source(ctx)
	if err != nil {
		return nil, err
	}
	summary, err := SummarizeSource(source)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("failed to encode view hierarchy summary: %w", err)
	}
	return data, nil
}

// DeviceInfo reports the device identity from the session capabilities.
func (s *Session) DeviceInfo(_ context.Context) (map[string]string, error) {
	info := make(map[string]string)
	for capName, key := range map[string]string{
		"platformName":    "platform_name",
		"platformVersion": "platform_version",
		"deviceName":      "device_name",
		"automationName":  "automation_name",
		"udid":            "udid",
	} {
		if value := s.capString(capName); value != "" {
			info[key] = value
		}
	}
	return info, nil
}

// HideKeyboard dismisses the soft keyboard. Best effort; drivers report an
// error when no keyboard is showing, which is not worth failing a step over.
func (s *Session) HideKeyboard(ctx context.Context) error {
	if err := s.client.HideKeyboard(ctx, s.id); err != nil {
		s.logger.Warn("Could not hide the keyboard.", zap.Error(err))
	}
	return nil
}

// Back navigates backwards, which on Android presses the hardware back
// button.
func (s *Session) Back(ctx context.Context) error {
	return s.client.Back(ctx, s.id)
}

// TerminateApp force-stops the app under test.
func (s *Session) TerminateApp(ctx context.Context) error {
	appID, err := s.appID()
	if err != nil {
		return err
	}
	return s.client.TerminateApp(ctx, s.id, appID)
}

// ActivateApp foregrounds the app under test.
func (s *Session) ActivateApp(ctx context.Context) error {
	appID, err := s.appID()
	if err != nil {
		return err
	}
	return s.client.ActivateApp(ctx, s.id, appID)
}

// ResetApp restarts the app under test by terminating and activating it.
func (s *Session) ResetApp(ctx context.Context) error {
	if err := s.TerminateApp(ctx); err != nil {
		return err
	}
	if err := s.ActivateApp(ctx); err != nil {
		return err
	}
	s.logger.Debug("App reset complete.")
	return nil
}

// Contexts lists the automation contexts the session can drive.
func (s *Session) Contexts(ctx context.Context) ([]string, error) {
	return s.client.Contexts(ctx, s.id)
}

// CurrentContext returns the active automation context.
func (s *Session) CurrentContext(ctx context.Context) (string, error) {
	return s.client.CurrentContext(ctx, s.id)
}

// SwitchContext activates the named automation context, switching between
// the native app and its webviews.
func (s *Session) SwitchContext(ctx context.Context, name string) error {
	s.logger.Debug("Switching automation context.", zap.String("context", name))
	return s.client.SwitchContext(ctx, s.id, name)
}

// appID returns the app package or bundle id the session was created with.
func (s *Session) appID() (string, error) {
	for _, key := range []string{"appPackage", "bundleId"} {
		if value := s.capString(key); value != "" {
			return value, nil
		}
	}
	return "", fmt.Errorf("no app package or bundle id in session capabilities")
}

// capString reads a string capability, accepting both the bare and the
// appium: prefixed form the server may return.
func (s *Session) capString(key string) string {
	if value, ok := s.caps[key].(string); ok && value != "" {
		return value
	}
	if value, ok := s.caps["appium:"+key].(string); ok {
		return value
	}
	return ""
}
