// File: internal/network/encoding.go
package network

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// DecodeBody wraps body in a reader that reverses the given Content-Encoding
// token. An empty or "identity" encoding passes body through unchanged.
func DecodeBody(encoding string, body io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, nil
	case "gzip", "x-gzip":
		reader, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return reader, nil
	case "deflate", "zlib":
		return newDeflateReader(body)
	case "br":
		return brotli.NewReader(body), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

// newDeflateReader handles both spellings of deflate seen in the wild: the
// RFC 1950 zlib-wrapped stream and the bare RFC 1951 stream some servers
// send despite the name.
func newDeflateReader(body io.Reader) (io.Reader, error) {
	buffered := bufio.NewReader(body)
	header, err := buffered.Peek(2)
	if err != nil {
		// Too short to carry a zlib header; let flate report the trouble.
		return flate.NewReader(buffered), nil
	}
	if isZlibHeader(header) {
		reader, zerr := zlib.NewReader(buffered)
		if zerr != nil {
			return nil, fmt.Errorf("failed to create zlib reader: %w", zerr)
		}
		return reader, nil
	}
	return flate.NewReader(buffered), nil
}

// isZlibHeader reports whether the two byte prefix is a valid RFC 1950
// header: compression method 8 and a header checksum divisible by 31.
func isZlibHeader(b []byte) bool {
	if len(b) < 2 {
		return false
	}
	if b[0]&0x0f != 8 {
		return false
	}
	return (uint16(b[0])<<8|uint16(b[1]))%31 == 0
}

// closeWrapper ties the lifetime of a decompressing reader to the original
// response body so both get closed.
type closeWrapper struct {
	reader   io.Reader
	original io.ReadCloser
}

func (c *closeWrapper) Read(p []byte) (int, error) {
	return c.reader.Read(p)
}

func (c *closeWrapper) Close() error {
	var firstErr error
	if closer, ok := c.reader.(io.Closer); ok {
		firstErr = closer.Close()
	}
	if err := c.original.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// DecompressResponse replaces resp.Body with a transparently decompressing
// reader when the response carries a Content-Encoding this package
// understands. The encoding headers are stripped so downstream consumers see
// plain bytes; unrecognized encodings are left untouched.
func DecompressResponse(resp *http.Response) error {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "gzip", "x-gzip", "deflate", "zlib", "br":
	default:
		return nil
	}

	reader, err := DecodeBody(encoding, resp.Body)
	if err != nil {
		return fmt.Errorf("failed to decompress %s response body: %w", encoding, err)
	}

	resp.Body = &closeWrapper{reader: reader, original: resp.Body}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	return nil
}
