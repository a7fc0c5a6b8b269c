// File: internal/capture/tap.go
package capture

import (
	"bytes"
	"io"
	"sync"
)

// bodyTap wraps a request or response body and copies the bytes flowing
// through it into a capped buffer. The finish callback fires exactly once,
// when the stream ends or the body is closed, whichever comes first.
//
// Tapping instead of buffering keeps the proxy streaming: the client sees
// every byte as it arrives and large transfers never accumulate in memory.
type bodyTap struct {
	rc     io.ReadCloser
	limit  int
	finish func(raw []byte, size int64, truncated bool)

	buf       bytes.Buffer
	size      int64
	truncated bool
	once      sync.Once
}

func newBodyTap(rc io.ReadCloser, limit int, finish func(raw []byte, size int64, truncated bool)) *bodyTap {
	return &bodyTap{rc: rc, limit: limit, finish: finish}
}

func (t *bodyTap) Read(p []byte) (int, error) {
	n, err := t.rc.Read(p)
	if n > 0 {
		t.size += int64(n)
		if remain := t.limit - t.buf.Len(); remain >= n {
			t.buf.Write(p[:n])
		} else {
			if remain > 0 {
				t.buf.Write(p[:remain])
			}
			t.truncated = true
		}
	}
	if err != nil {
		// EOF and read failures both end the stream.
		t.complete()
	}
	return n, err
}

func (t *bodyTap) Close() error {
	t.complete()
	return t.rc.Close()
}

func (t *bodyTap) complete() {
	t.once.Do(func() {
		t.finish(t.buf.Bytes(), t.size, t.truncated)
	})
}
