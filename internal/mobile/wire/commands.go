// File: internal/mobile/wire/commands.go

package wire

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
)

// w3cElementKey is the element identifier key mandated by the W3C spec.
// Older servers answer with the legacy "ELEMENT" key instead; both are
// accepted.
const w3cElementKey = "element-6066-11e4-a52e-4f735466cecf"

// SessionInfo is the server's answer to a new-session request.
type SessionInfo struct {
	ID           string         `json:"sessionId"`
	Capabilities map[string]any `json:"capabilities"`
}

// Status describes server readiness as reported by GET /status.
type Status struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message"`
	Build   struct {
		Version string `json:"version"`
	} `json:"build"`
}

// Rect is a window or element rectangle in pixels.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type emptyBody struct{}

// NewSession starts a WebDriver session with the given alwaysMatch
// capabilities.
func (c *Client) NewSession(ctx context.Context, caps map[string]any) (*SessionInfo, error) {
	payload := map[string]any{
		"capabilities": map[string]any{
			"alwaysMatch": caps,
			"firstMatch":  []map[string]any{{}},
		},
	}
	var info SessionInfo
	if err := c.Do(ctx, http.MethodPost, "/session", payload, &info); err != nil {
		return nil, err
	}
	if info.ID == "" {
		return nil, fmt.Errorf("server accepted the session but returned no session id")
	}
	return &info, nil
}

// DeleteSession ends the session on the server.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.Do(ctx, http.MethodDelete, "/session/"+sessionID, nil, nil)
}

// Status fetches server readiness. It works without a session and is the
// probe used to wait for Appium to come up.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var status Status
	if err := c.Do(ctx, http.MethodGet, "/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// SetTimeouts configures the session's implicit wait in milliseconds.
func (c *Client) SetTimeouts(ctx context.Context, sessionID string, implicitMillis int) error {
	payload := map[string]any{"implicit": implicitMillis}
	return c.Do(ctx, http.MethodPost, "/session/"+sessionID+"/timeouts", payload, nil)
}

// FindElement locates a single element and returns its server-side ID.
func (c *Client) FindElement(ctx context.Context, sessionID, using, value string) (string, error) {
	payload := map[string]any{"using": using, "value": value}
	var raw map[string]any
	if err := c.Do(ctx, http.MethodPost, "/session/"+sessionID+"/element", payload, &raw); err != nil {
		return "", err
	}
	id := elementIDFromValue(raw)
	if id == "" {
		return "", fmt.Errorf("element response carried no element id")
	}
	return id, nil
}

// FindElements locates every matching element. No matches is an empty slice,
// not an error.
func (c *Client) FindElements(ctx context.Context, sessionID, using, value string) ([]string, error) {
	payload := map[string]any{"using": using, "value": value}
	var raw []map[string]any
	if err := c.Do(ctx, http.MethodPost, "/session/"+sessionID+"/elements", payload, &raw); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(raw))
	for _, entry := range raw {
		if id := elementIDFromValue(entry); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// elementIDFromValue digs the element ID out of a find response, accepting
// the W3C key and the legacy one.
func elementIDFromValue(value map[string]any) string {
	if id, ok := value[w3cElementKey].(string); ok {
		return id
	}
	if id, ok := value["ELEMENT"].(string); ok {
		return id
	}
	return ""
}

func elementPath(sessionID, elementID, tail string) string {
	return "/session/" + sessionID + "/element/" + elementID + tail
}

// Click taps the element.
func (c *Client) Click(ctx context.Context, sessionID, elementID string) error {
	return c.Do(ctx, http.MethodPost, elementPath(sessionID, elementID, "/click"), emptyBody{}, nil)
}

// Clear empties an input element.
func (c *Client) Clear(ctx context.Context, sessionID, elementID string) error {
	return c.Do(ctx, http.MethodPost, elementPath(sessionID, elementID, "/clear"), emptyBody{}, nil)
}

// SendKeys types text into the element.
func (c *Client) SendKeys(ctx context.Context, sessionID, elementID, text string) error {
	payload := map[string]any{"text": text}
	return c.Do(ctx, http.MethodPost, elementPath(sessionID, elementID, "/value"), payload, nil)
}

// Text returns the element's visible text.
func (c *Client) Text(ctx context.Context, sessionID, elementID string) (string, error) {
	var text string
	if err := c.Do(ctx, http.MethodGet, elementPath(sessionID, elementID, "/text"), nil, &text); err != nil {
		return "", err
	}
	return text, nil
}

// Attribute reads a named attribute. Attributes the element does not have
// come back as the empty string.
func (c *Client) Attribute(ctx context.Context, sessionID, elementID, name string) (string, error) {
	var value *string
	path := elementPath(sessionID, elementID, "/attribute/"+url.PathEscape(name))
	if err := c.Do(ctx, http.MethodGet, path, nil, &value); err != nil {
		return "", err
	}
	if value == nil {
		return "", nil
	}
	return *value, nil
}

// Displayed reports element visibility.
func (c *Client) Displayed(ctx context.Context, sessionID, elementID string) (bool, error) {
	var displayed bool
	if err := c.Do(ctx, http.MethodGet, elementPath(sessionID, elementID, "/displayed"), nil, &displayed); err != nil {
		return false, err
	}
	return displayed, nil
}

// ElementRect returns the element's position and size.
func (c *Client) ElementRect(ctx context.Context, sessionID, elementID string) (*Rect, error) {
	var rect Rect
	if err := c.Do(ctx, http.MethodGet, elementPath(sessionID, elementID, "/rect"), nil, &rect); err != nil {
		return nil, err
	}
	return &rect, nil
}

// Source returns the current UI hierarchy as XML.
func (c *Client) Source(ctx context.Context, sessionID string) (string, error) {
	var source string
	if err := c.Do(ctx, http.MethodGet, "/session/"+sessionID+"/source", nil, &source); err != nil {
		return "", err
	}
	return source, nil
}

// Screenshot captures the screen and returns decoded PNG bytes.
func (c *Client) Screenshot(ctx context.Context, sessionID string) ([]byte, error) {
	var encoded string
	if err := c.Do(ctx, http.MethodGet, "/session/"+sessionID+"/screenshot", nil, &encoded); err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return data, nil
}

// WindowRect returns the dimensions of the device window.
func (c *Client) WindowRect(ctx context.Context, sessionID string) (*Rect, error) {
	var rect Rect
	if err := c.Do(ctx, http.MethodGet, "/session/"+sessionID+"/window/rect", nil, &rect); err != nil {
		return nil, err
	}
	return &rect, nil
}

// Back navigates backwards, which on Android presses the hardware back
// button.
func (c *Client) Back(ctx context.Context, sessionID string) error {
	return c.Do(ctx, http.MethodPost, "/session/"+sessionID+"/back", emptyBody{}, nil)
}

// Contexts lists the automation contexts the session can drive, such as
// NATIVE_APP and any webviews.
func (c *Client) Contexts(ctx context.Context, sessionID string) ([]string, error) {
	var contexts []string
	if err := c.Do(ctx, http.MethodGet, "/session/"+sessionID+"/contexts", nil, &contexts); err != nil {
		return nil, err
	}
	return contexts, nil
}

// CurrentContext returns the active automation context.
func (c *Client) CurrentContext(ctx context.Context, sessionID string) (string, error) {
	var name string
	if err := c.Do(ctx, http.MethodGet, "/session/"+sessionID+"/context", nil, &name); err != nil {
		return "", err
	}
	return name, nil
}

// SwitchContext activates the named automation context.
func (c *Client) SwitchContext(ctx context.Context, sessionID, name string) error {
	payload := map[string]any{"name": name}
	return c.Do(ctx, http.MethodPost, "/session/"+sessionID+"/context", payload, nil)
}

// PerformActions runs W3C action sequences, the primitive behind swipes and
// long presses.
func (c *Client) PerformActions(ctx context.Context, sessionID string, sequences []ActionSequence) error {
	payload := map[string]any{"actions": sequences}
	return c.Do(ctx, http.MethodPost, "/session/"+sessionID+"/actions", payload, nil)
}

// ReleaseActions clears any depressed virtual input state.
func (c *Client) ReleaseActions(ctx context.Context, sessionID string) error {
	return c.Do(ctx, http.MethodDelete, "/session/"+sessionID+"/actions", nil, nil)
}

// HideKeyboard dismisses the soft keyboard if one is showing.
func (c *Client) HideKeyboard(ctx context.Context, sessionID string) error {
	return c.Do(ctx, http.MethodPost, "/session/"+sessionID+"/appium/device/hide_keyboard", emptyBody{}, nil)
}

// TerminateApp force-stops the app identified by its package or bundle id.
func (c *Client) TerminateApp(ctx context.Context, sessionID, appID string) error {
	payload := map[string]any{"appId": appID, "bundleId": appID}
	return c.Do(ctx, http.MethodPost, "/session/"+sessionID+"/appium/device/terminate_app", payload, nil)
}

// ActivateApp foregrounds the app identified by its package or bundle id.
func (c *Client) ActivateApp(ctx context.Context, sessionID, appID string) error {
	payload := map[string]any{"appId": appID, "bundleId": appID}
	return c.Do(ctx, http.MethodPost, "/session/"+sessionID+"/appium/device/activate_app", payload, nil)
}
