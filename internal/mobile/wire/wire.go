// File: internal/mobile/wire/wire.go

// Package wire speaks the W3C WebDriver protocol as served by Appium. It is
// deliberately thin: plain JSON over HTTP with a typed error envelope and no
// session state of its own.
package wire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Well-known WebDriver error codes this package inspects.
const (
	CodeNoSuchElement  = "no such element"
	CodeStaleElement   = "stale element reference"
	CodeInvalidSession = "invalid session id"
	CodeUnknownError   = "unknown error"
)

// Error is the WebDriver error payload delivered with non-2xx responses.
type Error struct {
	Code       string `json:"error"`
	Message    string `json:"message"`
	Stacktrace string `json:"stacktrace,omitempty"`

	// HTTPStatus is the transport status the envelope arrived with.
	HTTPStatus int `json:"-"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("webdriver: %s", e.Code)
	}
	return fmt.Sprintf("webdriver: %s: %s", e.Code, e.Message)
}

// IsNoSuchElement reports whether err is the server saying an element is not
// there right now. Polling waits treat this as retryable rather than fatal.
func IsNoSuchElement(err error) bool {
	var werr *Error
	if !errors.As(err, &werr) {
		return false
	}
	return werr.Code == CodeNoSuchElement || werr.Code == CodeStaleElement
}

// Client executes WebDriver commands against a single Appium server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient validates the server URL and builds a client around it.
func NewClient(serverURL string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	parsed, err := url.Parse(serverURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid appium server url %q", serverURL)
	}
	return &Client{
		baseURL:    strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("webdriver"),
	}, nil
}

// Do executes one command: payload (when non-nil) is sent as the JSON body,
// and the response envelope's "value" field is decoded into result (when
// non-nil). Protocol failures come back as *Error.
func (c *Client) Do(ctx context.Context, method, path string, payload, result any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s %s payload: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create %s %s request: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s %s response: %w", method, path, err)
	}

	c.logger.Debug("WebDriver command executed.",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, respBody)
	}
	if result == nil {
		return nil
	}

	var envelope struct {
		Value jsoniter.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	if len(envelope.Value) == 0 || bytes.Equal(envelope.Value, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(envelope.Value, result); err != nil {
		return fmt.Errorf("failed to decode %s %s value: %w", method, path, err)
	}
	return nil
}

// decodeError maps the server's error envelope to a typed *Error. Bodies
// that do not parse still produce a usable error carrying the raw text.
func decodeError(status int, body []byte) error {
	var envelope struct {
		Value Error `json:"value"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && (envelope.Value.Code != "" || envelope.Value.Message != "") {
		werr := envelope.Value
		werr.HTTPStatus = status
		if werr.Code == "" {
			werr.Code = CodeUnknownError
		}
		return &werr
	}
	return &Error{
		Code:       CodeUnknownError,
		Message:    fmt.Sprintf("status %d: %s", status, strings.TrimSpace(string(body))),
		HTTPStatus: status,
	}
}
