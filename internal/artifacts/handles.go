// File: internal/artifacts/handles.go
package artifacts

import "context"

// VisualHandle provides UI failure evidence from a live page.
type VisualHandle interface {
	Screenshot(ctx context.Context) ([]byte, error)
	URL(ctx context.Context) (string, error)
	Content(ctx context.Context) (string, error)
	// VideoPath returns the recording file for the page, or "" when video
	// recording is not enabled.
	VideoPath(ctx context.Context) (string, error)
}

// TraceHandle ends an active trace and yields the archive.
type TraceHandle interface {
	StopTracing(ctx context.Context) ([]byte, error)
}

// DeviceHandle provides failure evidence from a mobile device session.
type DeviceHandle interface {
	Screenshot(ctx context.Context) ([]byte, error)
	Source(ctx context.Context) (string, error)
	// Hierarchy renders a compact JSON summary of the current view tree.
	Hierarchy(ctx context.Context) ([]byte, error)
	DeviceInfo(ctx context.Context) (map[string]string, error)
}

// NetworkHandle exports the recorded network exchanges.
type NetworkHandle interface {
	Export() ([]byte, error)
}

// ServerLogHandle returns the tail of the automation server log.
type ServerLogHandle interface {
	Snapshot() ([]byte, error)
}

// Handles is the table of diagnostic sources registered for a scenario. Each
// slot is filled by the scope that created the matching resource; a nil slot
// means the resource was never used and its captures are skipped entirely.
type Handles struct {
	Visual    VisualHandle
	Trace     TraceHandle
	Device    DeviceHandle
	Network   NetworkHandle
	ServerLog ServerLogHandle
}

// Empty reports whether no diagnostic source is registered.
func (h Handles) Empty() bool {
	return h.Visual == nil && h.Trace == nil && h.Device == nil && h.Network == nil && h.ServerLog == nil
}
