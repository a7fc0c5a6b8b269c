// File: internal/apiclient/session.go

// Package apiclient exercises the application's REST API: a session wrapper
// that keeps default headers, auth state, and redacted request/response
// snapshots for the report, plus a high-level client for the auth and
// resource flows the suites lean on.
package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gauntlet-cli/internal/artifacts"
	"github.com/xkilldash9x/gauntlet-cli/internal/network"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Response is one completed API exchange. The body has already been read and
// decompressed.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// JSON parses the body for gjson queries. A nil response or a non-JSON body
// yields a zero Result whose Exists() is false.
func (r *Response) JSON() gjson.Result {
	if r == nil || !gjson.ValidBytes(r.Body) {
		return gjson.Result{}
	}
	return gjson.ParseBytes(r.Body)
}

// Snapshot is a redacted record of one request or response, kept for the
// scenario report.
type Snapshot struct {
	Name      string
	MediaType string
	Body      []byte
}

// Session issues HTTP calls against the API base URL with browser-like
// behavior: a shared cookie jar, followed redirects, and sticky headers.
// It is safe for concurrent use.
type Session struct {
	baseURL    string
	httpClient *network.Client
	logger     *zap.Logger

	mu        sync.Mutex
	headers   http.Header
	basicUser string
	basicPass string
	last      *Response
	snapshots []Snapshot
}

// NewSession builds a session for the given base URL. A non-positive timeout
// keeps the transport default.
func NewSession(baseURL string, timeout time.Duration, log *zap.Logger) (*Session, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", baseURL)
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("api")

	clientCfg := network.NewDefaultClientConfig()
	clientCfg.EnableCookieJar = true
	clientCfg.Logger = log
	if timeout > 0 {
		clientCfg.RequestTimeout = timeout
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Accept", "application/json")

	return &Session{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: network.NewClient(clientCfg),
		logger:     log,
		headers:    headers,
	}, nil
}

// BaseURL returns the base URL the session was built with.
func (s *Session) BaseURL() string {
	return s.baseURL
}

// Get issues a GET request. Params are merged into the endpoint's query
// string.
func (s *Session) Get(ctx context.Context, endpoint string, params url.Values) (*Response, error) {
	return s.do(ctx, http.MethodGet, endpoint, params, nil)
}

// Post issues a POST request with a JSON body.
func (s *Session) Post(ctx context.Context, endpoint string, body any) (*Response, error) {
	return s.do(ctx, http.MethodPost, endpoint, nil, body)
}

// Put issues a PUT request with a JSON body.
func (s *Session) Put(ctx context.Context, endpoint string, body any) (*Response, error) {
	return s.do(ctx, http.MethodPut, endpoint, nil, body)
}

// Patch issues a PATCH request with a JSON body.
func (s *Session) Patch(ctx context.Context, endpoint string, body any) (*Response, error) {
	return s.do(ctx, http.MethodPatch, endpoint, nil, body)
}

// Delete issues a DELETE request.
func (s *Session) Delete(ctx context.Context, endpoint string) (*Response, error) {
	return s.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// UploadFile posts a file as multipart form data under the given field name,
// defaulting to "file", with any extra fields alongside it.
func (s *Session) UploadFile(ctx context.Context, endpoint, filePath, fieldName string, extra map[string]string) (*Response, error) {
	if fieldName == "" {
		fieldName = "file"
	}
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload file: %w", err)
	}
	defer file.Close()

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	part, err := writer.CreateFormFile(fieldName, filepath.Base(filePath))
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read upload file: %w", err)
	}
	for key, value := range extra {
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("failed to build multipart form: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.buildURL(endpoint), &form)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	s.applyHeaders(req)
	return s.roundTrip(req, nil)
}

func (s *Session) do(ctx context.Context, method, endpoint string, params url.Values, body any) (*Response, error) {
	target, err := url.Parse(s.buildURL(endpoint))
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if len(params) > 0 {
		query := target.Query()
		for key, values := range params {
			for _, value := range values {
				query.Add(key, value)
			}
		}
		target.RawQuery = query.Encode()
	}

	var payload []byte
	var reader io.Reader
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	s.applyHeaders(req)
	return s.roundTrip(req, payload)
}

// buildURL joins the endpoint onto the base URL. Absolute URLs pass through
// untouched so suites can hit auxiliary hosts through the same session.
func (s *Session) buildURL(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return s.baseURL + "/" + strings.TrimLeft(endpoint, "/")
}

// applyHeaders copies the sticky session headers onto the request without
// clobbering anything the caller already set. A bearer token in the headers
// takes precedence over basic credentials.
func (s *Session) applyHeaders(req *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, values := range s.headers {
		if req.Header.Get(key) != "" {
			continue
		}
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if s.basicUser != "" && req.Header.Get("Authorization") == "" {
		req.SetBasicAuth(s.basicUser, s.basicPass)
	}
}

func (s *Session) roundTrip(req *http.Request, payload []byte) (*Response, error) {
	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s failed: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	if err := network.DecompressResponse(resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	s.logger.Debug("API request completed.",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	response := &Response{
		Status:  resp.StatusCode,
		Headers: resp.Header.Clone(),
		Body:    data,
	}
	s.record(req, payload, response)
	return response, nil
}

// record stores the exchange as the last response and appends redacted
// request/response snapshots for the report. Snapshot trouble is logged,
// never raised; reporting must not fail a call that succeeded on the wire.
func (s *Session) record(req *http.Request, payload []byte, response *Response) {
	label := req.Method + " " + req.URL.Path

	requestDoc := map[string]any{
		"method":  req.Method,
		"url":     req.URL.String(),
		"headers": headerMap(req.Header),
	}
	if len(payload) > 0 {
		requestDoc["body"] = rawOrString(payload)
	}
	responseDoc := map[string]any{
		"status_code": response.Status,
		"headers":     headerMap(response.Headers),
	}
	if len(response.Body) > 0 {
		responseDoc["body"] = rawOrString(response.Body)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = response

	requestBody, err := json.Marshal(requestDoc)
	if err != nil {
		s.logger.Warn("Failed to record request snapshot.", zap.Error(err))
		return
	}
	responseBody, err := json.Marshal(responseDoc)
	if err != nil {
		s.logger.Warn("Failed to record response snapshot.", zap.Error(err))
		return
	}
	s.snapshots = append(s.snapshots,
		Snapshot{Name: "Request - " + label, MediaType: "application/json", Body: artifacts.Redact(requestBody)},
		Snapshot{Name: "Response - " + label, MediaType: "application/json", Body: artifacts.Redact(responseBody)},
	)
}

// DrainSnapshots returns the snapshots accumulated since the last drain and
// clears the buffer. The scenario scope attaches them between scenarios.
func (s *Session) DrainSnapshots() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	drained := s.snapshots
	s.snapshots = nil
	return drained
}

// SetAuthToken applies a bearer token to every subsequent request.
func (s *Session) SetAuthToken(token string) {
	s.logger.Info("Setting bearer token.")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers.Set("Authorization", "Bearer "+token)
}

// SetBasicAuth applies basic credentials to every subsequent request that
// carries no Authorization header of its own.
func (s *Session) SetBasicAuth(username, password string) {
	s.logger.Info("Setting basic auth credentials.", zap.String("username", username))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.basicUser = username
	s.basicPass = password
}

// SetHeader sets a sticky header on the session.
func (s *Session) SetHeader(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers.Set(key, value)
}

// RemoveHeader removes a sticky header from the session.
func (s *Session) RemoveHeader(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers.Del(key)
}

// LastResponse returns the most recent exchange, or nil before the first
// call.
func (s *Session) LastResponse() *Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// LastStatus returns the most recent status code, or zero before the first
// call.
func (s *Session) LastStatus() int {
	if last := s.LastResponse(); last != nil {
		return last.Status
	}
	return 0
}

// LastJSON parses the most recent response body for gjson queries.
func (s *Session) LastJSON() gjson.Result {
	return s.LastResponse().JSON()
}

// AssertStatus checks the most recent response against an expected status
// code.
func (s *Session) AssertStatus(expected int) error {
	last := s.LastResponse()
	if last == nil {
		return fmt.Errorf("no response recorded yet")
	}
	if last.Status != expected {
		return fmt.Errorf("expected status code %d, got %d", expected, last.Status)
	}
	return nil
}

// AssertJSONField checks one field of the most recent JSON response against
// an expected value. The path uses gjson dot notation. Values are compared
// by their string forms, which keeps integer and float encodings of the same
// number interchangeable.
func (s *Session) AssertJSONField(path string, expected any) error {
	document := s.LastJSON()
	if !document.Exists() {
		return fmt.Errorf("last response is not valid JSON")
	}
	value := document.Get(path)
	if !value.Exists() {
		return fmt.Errorf("field %q not found in response", path)
	}
	if expected == nil {
		if value.Type != gjson.Null {
			return fmt.Errorf("expected field %q to be null, got %s", path, value.Raw)
		}
		return nil
	}
	if got, want := value.String(), fmt.Sprint(expected); got != want {
		return fmt.Errorf("expected field %q to be %v, got %s", path, expected, value.Raw)
	}
	return nil
}

// Close releases idle connections held by the transport.
func (s *Session) Close() {
	s.httpClient.CloseIdleConnections()
}

func headerMap(header http.Header) map[string]string {
	flattened := make(map[string]string, len(header))
	for key, values := range header {
		flattened[key] = strings.Join(values, ", ")
	}
	return flattened
}

// rawOrString embeds valid JSON as-is and anything else as a plain string.
func rawOrString(data []byte) any {
	if gjson.ValidBytes(data) {
		return jsoniter.RawMessage(data)
	}
	return string(data)
}
