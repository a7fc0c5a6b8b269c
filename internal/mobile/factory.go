// File: internal/mobile/factory.go

// Package mobile drives native app sessions through an Appium server,
// speaking the W3C WebDriver protocol over plain HTTP.
package mobile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gauntlet-cli/internal/config"
	"github.com/xkilldash9x/gauntlet-cli/internal/mobile/wire"
)

// commandTimeout caps a single WebDriver round trip. Session creation is the
// slow path; it can install the app onto the device.
const commandTimeout = 2 * time.Minute

// Factory owns the Appium session for one run. The session is created lazily
// on first use and reused afterwards; Close quits it.
type Factory struct {
	cfg    *config.Settings
	logger *zap.Logger
	client *wire.Client

	backoffFactory func() backoff.BackOff

	mu      sync.Mutex
	closed  bool
	session *Session
	tailer  *LogTailer
}

// NewFactory validates the Appium server URL and prepares a factory. No
// network traffic happens until the first Session call.
func NewFactory(cfg *config.Settings, logger *zap.Logger) (*Factory, error) {
	log := logger.Named("mobile")
	client, err := wire.NewClient(cfg.Core.Mobile.AppiumServer, commandTimeout, log)
	if err != nil {
		return nil, err
	}
	return &Factory{
		cfg:    cfg,
		logger: log,
		client: client,
		backoffFactory: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
	}, nil
}

// Session returns the live device session, creating it on first call. The
// server-log tailer starts alongside the first session when
// mobile.server_log is configured.
func (f *Factory) Session(ctx context.Context) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, fmt.Errorf("mobile factory is closed")
	}
	if f.session != nil {
		return f.session, nil
	}

	if err := f.waitForServer(ctx); err != nil {
		return nil, err
	}

	caps, err := buildCapabilities(f.cfg)
	if err != nil {
		return nil, err
	}

	f.logger.Info("Creating Appium session.",
		zap.String("platform", f.cfg.Core.Mobile.Platform),
		zap.String("server", f.cfg.Core.Mobile.AppiumServer))
	info, err := f.client.NewSession(ctx, caps)
	if err != nil {
		return nil, fmt.Errorf("failed to create appium session: %w", err)
	}

	if wait := f.cfg.Data.Timeouts.ImplicitWaitDuration(); wait > 0 {
		if err := f.client.SetTimeouts(ctx, info.ID, int(wait.Milliseconds())); err != nil {
			f.logger.Warn("Failed to set the implicit wait on the new session.", zap.Error(err))
		}
	}

	if path := f.cfg.Core.Mobile.ServerLog; path != "" {
		tailer, err := NewLogTailer(path, f.logger)
		if err != nil {
			f.logger.Warn("Could not tail the Appium server log.",
				zap.String("path", path), zap.Error(err))
		} else {
			f.tailer = tailer
		}
	}

	f.session = newSession(f.client, info, f.cfg, f.logger)
	f.logger.Info("Appium session created.", zap.String("session_id", info.ID))
	return f.session, nil
}

// waitForServer polls /status until the server reports ready, then applies
// the minimum-version gate. An old server is only a warning here; the doctor
// command turns it into a failure.
func (f *Factory) waitForServer(ctx context.Context) error {
	var status *wire.Status
	operation := func() error {
		s, err := f.client.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to reach appium server: %w", err)
		}
		if !s.Ready {
			return fmt.Errorf("appium server is not ready yet")
		}
		status = s
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(f.backoffFactory(), ctx)); err != nil {
		return err
	}

	if err := CheckServerVersion(status.Build.Version, f.cfg.Core.Mobile.MinServerVersion); err != nil {
		f.logger.Warn("Appium server version check failed.", zap.Error(err))
	}
	return nil
}

// ServerLog exposes the running server-log tailer, or nil when
// mobile.server_log is not configured.
func (f *Factory) ServerLog() *LogTailer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tailer
}

// Close quits the session and stops the log tailer. Idempotent.
func (f *Factory) Close(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	session := f.session
	f.session = nil
	tailer := f.tailer
	f.tailer = nil
	f.mu.Unlock()

	if tailer != nil {
		tailer.Close()
	}
	if session == nil {
		return nil
	}
	if err := f.client.DeleteSession(ctx, session.ID()); err != nil {
		f.logger.Warn("Failed to quit the Appium session.", zap.Error(err))
		return fmt.Errorf("failed to quit appium session: %w", err)
	}
	f.logger.Info("Appium session closed.")
	return nil
}

// CheckServerVersion compares the server build version against a required
// minimum. Empty or unparseable versions skip the check.
func CheckServerVersion(version, minimum string) error {
	if version == "" || minimum == "" {
		return nil
	}
	required, err := semver.NewVersion(minimum)
	if err != nil {
		return nil
	}
	current, err := semver.NewVersion(version)
	if err != nil {
		return nil
	}
	if current.LessThan(required) {
		return fmt.Errorf("appium server %s is older than the required minimum %s", version, minimum)
	}
	return nil
}
