// File: internal/mobile/taillog.go
package mobile

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gauntlet-cli/internal/artifacts"
)

// maxTailLines bounds how much of the server log Snapshot retains.
const maxTailLines = 500

// LogTailer follows the Appium server log and keeps the most recent lines in
// memory, so a failure can attach what the server was doing at the time.
type LogTailer struct {
	logger *zap.Logger
	tail   *tail.Tail
	cancel context.CancelFunc
	done   chan struct{}
	stop   sync.Once

	mu    sync.Mutex
	lines []string
}

var _ artifacts.ServerLogHandle = (*LogTailer)(nil)

// NewLogTailer starts following the log file from its current end. The file
// must already exist; a missing file usually means the server was started
// without logging or the path is wrong.
func NewLogTailer(path string, logger *zap.Logger) (*LogTailer, error) {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to tail server log: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	lt := &LogTailer{
		logger: logger.Named("taillog"),
		tail:   t,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go lt.run(ctx)
	lt.logger.Debug("Tailing Appium server log.", zap.String("path", path))
	return lt, nil
}

func (lt *LogTailer) run(ctx context.Context) {
	defer close(lt.done)
	defer func() {
		lt.tail.Stop()
		lt.tail.Cleanup()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lt.tail.Lines:
			if !ok {
				return
			}
			if line.Err != nil {
				lt.logger.Warn("Error reading from server log.", zap.Error(line.Err))
				continue
			}
			lt.append(line.Text)
		}
	}
}

func (lt *LogTailer) append(text string) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.lines = append(lt.lines, text)
	if over := len(lt.lines) - maxTailLines; over > 0 {
		n := copy(lt.lines, lt.lines[over:])
		lt.lines = lt.lines[:n]
	}
}

// Snapshot returns the retained tail of the server log.
func (lt *LogTailer) Snapshot() ([]byte, error) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return []byte(strings.Join(lt.lines, "\n")), nil
}

// Close stops following the file and waits for the reader to finish. Safe to
// call more than once.
func (lt *LogTailer) Close() {
	lt.stop.Do(func() {
		lt.cancel()
		<-lt.done
	})
}
