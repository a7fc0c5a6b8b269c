// File: internal/capture/recorder.go
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/elazarl/goproxy"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gauntlet-cli/internal/config"
	"github.com/xkilldash9x/gauntlet-cli/internal/network"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultMaxBodyBytes = 64 * 1024
	// The log holds the most recent exchanges; older traffic matters least
	// to a failure that just happened.
	maxExchanges = 1000
	stopTimeout  = 5 * time.Second
)

const (
	kindHTTP    = "http"
	kindConnect = "connect"
)

// Exchange is one recorded request/response pair, or a CONNECT event when
// HTTPS passes through as an opaque tunnel.
type Exchange struct {
	ID             int64     `json:"id"`
	Kind           string    `json:"kind"`
	Method         string    `json:"method"`
	URL            string    `json:"url"`
	Status         int       `json:"status,omitempty"`
	Started        time.Time `json:"started_at"`
	TTFBMillis     int64     `json:"ttfb_ms,omitempty"`
	DurationMillis int64     `json:"duration_ms,omitempty"`
	Request        *Payload  `json:"request,omitempty"`
	Response       *Payload  `json:"response,omitempty"`
	Error          string    `json:"error,omitempty"`

	// begun carries the monotonic clock reading; Started is wall time for
	// display and loses it.
	begun time.Time
}

// Payload describes the body that flowed in one direction of an exchange.
type Payload struct {
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
	Body        string `json:"body,omitempty"`
	Truncated   bool   `json:"truncated,omitempty"`
	Note        string `json:"note,omitempty"`
}

// Recorder runs a local interception proxy and keeps a bounded log of the
// traffic flowing through it. Pointing a browser at Addr is all it takes;
// Export renders the log as JSON for failure reports.
type Recorder struct {
	cfg     config.CaptureConfig
	logger  *zap.Logger
	proxy   *network.InterceptionProxy
	maxBody int

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	closed    bool
	nextID    int64
	dropped   int
	exchanges []*Exchange
}

// NewRecorder builds the recorder and its proxy without binding a port.
func NewRecorder(cfg config.CaptureConfig, logger *zap.Logger) (*Recorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	caCert, caKey, err := loadCA(cfg)
	if err != nil {
		return nil, err
	}

	proxy, err := network.NewInterceptionProxy(caCert, caKey, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build capture proxy: %w", err)
	}

	r := &Recorder{
		cfg:     cfg,
		logger:  logger.Named("capture"),
		proxy:   proxy,
		maxBody: maxBody,
	}
	proxy.AddRequestHook(r.onRequest)
	proxy.AddResponseHook(r.onResponse)
	proxy.AddConnectHook(r.onConnect)
	return r, nil
}

// Start binds the proxy and begins serving in the background. The returned
// error covers the bind; serve failures after startup are logged.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.New("capture recorder is closed")
	}
	if r.cancel != nil {
		return errors.New("capture recorder already started")
	}

	if err := r.proxy.Listen(r.cfg.ListenAddr); err != nil {
		return err
	}

	serveCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done

	go func() {
		defer close(done)
		if err := r.proxy.Serve(serveCtx); err != nil {
			r.logger.Error("Capture proxy stopped with an error.", zap.Error(err))
		}
	}()

	r.logger.Info("Network capture enabled.",
		zap.String("address", r.proxy.Addr()),
		zap.Bool("mitm", r.proxy.MITMEnabled()))
	return nil
}

// Addr returns the proxy's listen address, or "" before Start.
func (r *Recorder) Addr() string {
	return r.proxy.Addr()
}

// Close stops the proxy and waits for in-flight traffic to drain. Safe to
// call more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-time.After(stopTimeout):
		return errors.New("timed out waiting for capture proxy to stop")
	}
}

func (r *Recorder) onRequest(req *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	now := time.Now()
	ex := &Exchange{
		Kind:    kindHTTP,
		Method:  req.Method,
		URL:     requestURL(req),
		Started: now.UTC(),
		begun:   now,
	}
	r.record(ex)
	if ctx != nil {
		ctx.UserData = ex
	}

	if req.Body != nil && req.Body != http.NoBody {
		contentType := req.Header.Get("Content-Type")
		encoding := req.Header.Get("Content-Encoding")
		req.Body = newBodyTap(req.Body, r.maxBody, func(raw []byte, size int64, truncated bool) {
			payload := r.buildPayload(raw, size, truncated, contentType, encoding)
			r.mu.Lock()
			ex.Request = payload
			r.mu.Unlock()
		})
	}
	return req, nil
}

func (r *Recorder) onResponse(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
	if resp == nil || ctx == nil {
		return resp
	}
	ex, ok := ctx.UserData.(*Exchange)
	if !ok {
		return resp
	}

	r.mu.Lock()
	ex.Status = resp.StatusCode
	ex.TTFBMillis = time.Since(ex.begun).Milliseconds()
	if ctx.Error != nil {
		ex.Error = ctx.Error.Error()
	}
	r.mu.Unlock()

	if resp.Body == nil || resp.Body == http.NoBody {
		r.mu.Lock()
		ex.DurationMillis = ex.TTFBMillis
		r.mu.Unlock()
		return resp
	}

	contentType := resp.Header.Get("Content-Type")
	encoding := resp.Header.Get("Content-Encoding")
	resp.Body = newBodyTap(resp.Body, r.maxBody, func(raw []byte, size int64, truncated bool) {
		payload := r.buildPayload(raw, size, truncated, contentType, encoding)
		r.mu.Lock()
		ex.Response = payload
		ex.DurationMillis = time.Since(ex.begun).Milliseconds()
		r.mu.Unlock()
	})
	return resp
}

func (r *Recorder) onConnect(host string, ctx *goproxy.ProxyCtx) {
	if r.proxy.MITMEnabled() {
		// Decrypted requests show up individually; the CONNECT itself is noise.
		return
	}
	now := time.Now()
	r.record(&Exchange{
		Kind:    kindConnect,
		Method:  http.MethodConnect,
		URL:     host,
		Started: now.UTC(),
		begun:   now,
	})
}

func (r *Recorder) record(ex *Exchange) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	ex.ID = r.nextID
	if len(r.exchanges) >= maxExchanges {
		drop := len(r.exchanges) - maxExchanges + 1
		n := copy(r.exchanges, r.exchanges[drop:])
		r.exchanges = r.exchanges[:n]
		r.dropped += drop
	}
	r.exchanges = append(r.exchanges, ex)
}

// buildPayload renders a captured body for the log. Binary and undecodable
// bodies keep their size but drop their content.
func (r *Recorder) buildPayload(raw []byte, size int64, truncated bool, contentType, encoding string) *Payload {
	p := &Payload{ContentType: contentType, Size: size, Truncated: truncated}
	if size == 0 {
		return p
	}
	if !isTextualContent(contentType) {
		p.Note = "binary body omitted"
		return p
	}

	reader, err := network.DecodeBody(encoding, bytes.NewReader(raw))
	if err != nil {
		p.Note = fmt.Sprintf("body not decoded: %v", err)
		return p
	}
	decoded, err := io.ReadAll(io.LimitReader(reader, int64(r.maxBody)+1))
	if err != nil {
		if len(decoded) == 0 {
			p.Note = fmt.Sprintf("body not decoded: %v", err)
			return p
		}
		// A capped compressed stream cuts off mid frame; keep what inflated.
		p.Truncated = true
	}
	if len(decoded) > r.maxBody {
		decoded = decoded[:r.maxBody]
		p.Truncated = true
	}
	if p.Truncated {
		decoded = trimPartialRune(decoded)
	}
	if !utf8.Valid(decoded) {
		p.Note = "body is not valid utf-8"
		return p
	}
	p.Body = string(decoded)
	return p
}

// exportDocument is the attachment shape for failure reports.
type exportDocument struct {
	Captured  int         `json:"captured"`
	Dropped   int         `json:"dropped"`
	Exchanges []*Exchange `json:"exchanges"`
}

// Export renders the recorded exchanges as indented JSON.
func (r *Recorder) Export() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := exportDocument{
		Captured:  len(r.exchanges),
		Dropped:   r.dropped,
		Exchanges: r.exchanges,
	}
	if doc.Exchanges == nil {
		doc.Exchanges = []*Exchange{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode network log: %w", err)
	}
	return data, nil
}

// Reset clears the log. The runner calls this between scenarios so a failure
// report only carries traffic from the scenario that produced it.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exchanges = nil
	r.dropped = 0
}

// Len reports the number of recorded exchanges.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.exchanges)
}

// Exchanges returns a snapshot of the log in arrival order.
func (r *Recorder) Exchanges() []Exchange {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Exchange, len(r.exchanges))
	for i, ex := range r.exchanges {
		out[i] = *ex
	}
	return out
}

// isTextualContent reports whether a body with this media type is worth
// recording as text. An absent Content-Type gets the benefit of the doubt;
// the UTF-8 check catches binaries that lie.
func isTextualContent(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	if strings.HasPrefix(mediaType, "text/") {
		return true
	}
	switch mediaType {
	case "application/json", "application/xml", "application/javascript",
		"application/x-www-form-urlencoded", "application/xhtml+xml":
		return true
	}
	return strings.HasSuffix(mediaType, "+json") || strings.HasSuffix(mediaType, "+xml")
}

// trimPartialRune drops the incomplete UTF-8 sequence a byte boundary cut
// can leave at the end of a truncated body.
func trimPartialRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		r, size := utf8.DecodeLastRune(b)
		if r != utf8.RuneError || size != 1 {
			return b
		}
		b = b[:len(b)-1]
	}
	return b
}

// requestURL renders the target of a proxied request. Plain proxying and
// MITM rewrites both give the request an absolute URL; anything else is
// reconstructed from the Host header.
func requestURL(r *http.Request) string {
	if r.URL == nil {
		return r.Host
	}
	if r.URL.IsAbs() {
		return r.URL.String()
	}
	return "http://" + r.Host + r.URL.RequestURI()
}
