// File: internal/artifacts/collector.go
package artifacts

import (
	"context"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gauntlet-cli/internal/reporting"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Capture is the outcome of one artifact step. A non-nil Err means that step
// produced nothing; it never affects the other steps.
type Capture struct {
	Name string
	Err  error
}

// Collector gathers diagnostic artifacts for failed scenarios and attaches
// them to the report sink. Capture errors are diagnostic losses, not
// failures: they are logged, recorded, and swallowed.
type Collector struct {
	sink   reporting.Sink
	logger *zap.Logger
}

// NewCollector creates a collector writing to the given sink.
func NewCollector(sink reporting.Sink, logger *zap.Logger) *Collector {
	return &Collector{
		sink:   sink,
		logger: logger.Named("artifacts"),
	}
}

// OnFailure runs the capture sequence for a failed scenario. Steps run in a
// fixed order and independently of each other; the returned slice records
// which steps ran and which of them failed. No registered handles means no
// captures and no error.
func (c *Collector) OnFailure(ctx context.Context, name string, handles Handles) []Capture {
	if handles.Empty() {
		return nil
	}
	c.logger.Debug("Collecting failure artifacts.", zap.String("scenario", name))

	var captures []Capture
	step := func(artifact string, fn func() error) {
		capture := Capture{Name: artifact}
		if err := fn(); err != nil {
			capture.Err = err
			c.logger.Warn("Failed to capture failure artifact.",
				zap.String("scenario", name),
				zap.String("artifact", artifact),
				zap.Error(err),
			)
		}
		captures = append(captures, capture)
	}

	if v := handles.Visual; v != nil {
		step(fmt.Sprintf("Screenshot - %s", name), func() error {
			shot, err := v.Screenshot(ctx)
			if err != nil {
				return err
			}
			return c.sink.Attach(fmt.Sprintf("Screenshot - %s", name), "image/png", shot)
		})
		step("Page URL", func() error {
			url, err := v.URL(ctx)
			if err != nil {
				return err
			}
			return c.sink.Attach("Page URL", "text/plain", []byte(url))
		})
		step("Page Source", func() error {
			content, err := v.Content(ctx)
			if err != nil {
				return err
			}
			return c.sink.Attach("Page Source", "text/html", []byte(content))
		})
	}

	if t := handles.Trace; t != nil {
		step(fmt.Sprintf("Trace - %s.zip", name), func() error {
			archive, err := t.StopTracing(ctx)
			if err != nil {
				return err
			}
			return c.sink.Attach(fmt.Sprintf("Trace - %s.zip", name), "application/zip", archive)
		})
	}

	if v := handles.Visual; v != nil {
		if path, err := v.VideoPath(ctx); err != nil {
			c.logger.Warn("Could not determine video path.", zap.String("scenario", name), zap.Error(err))
			captures = append(captures, Capture{Name: fmt.Sprintf("Video - %s.webm", name), Err: err})
		} else if path != "" {
			step(fmt.Sprintf("Video - %s.webm", name), func() error {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read video file: %w", err)
				}
				return c.sink.Attach(fmt.Sprintf("Video - %s.webm", name), "video/webm", data)
			})
		}
	}

	if d := handles.Device; d != nil {
		step(fmt.Sprintf("Screenshot - %s", name), func() error {
			shot, err := d.Screenshot(ctx)
			if err != nil {
				return err
			}
			return c.sink.Attach(fmt.Sprintf("Screenshot - %s", name), "image/png", shot)
		})
		step("Page Source (XML)", func() error {
			source, err := d.Source(ctx)
			if err != nil {
				return err
			}
			return c.sink.Attach("Page Source (XML)", "application/xml", []byte(source))
		})
		step("View Hierarchy", func() error {
			summary, err := d.Hierarchy(ctx)
			if err != nil {
				return err
			}
			return c.sink.Attach("View Hierarchy", "application/json", Redact(summary))
		})
		step("Device Info", func() error {
			info, err := d.DeviceInfo(ctx)
			if err != nil {
				return err
			}
			body, err := json.Marshal(info)
			if err != nil {
				return fmt.Errorf("failed to encode device info: %w", err)
			}
			return c.sink.Attach("Device Info", "application/json", Redact(body))
		})
	}

	if n := handles.Network; n != nil {
		step("Network Log", func() error {
			exchanges, err := n.Export()
			if err != nil {
				return err
			}
			return c.sink.Attach("Network Log", "application/json", Redact(exchanges))
		})
	}

	if s := handles.ServerLog; s != nil {
		step("Appium Server Log", func() error {
			tail, err := s.Snapshot()
			if err != nil {
				return err
			}
			return c.sink.Attach("Appium Server Log", "text/plain", tail)
		})
	}

	return captures
}
