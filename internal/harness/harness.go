// File: internal/harness/harness.go

// Package harness wires the automation components together for one run and
// executes scenarios against them. Scenarios receive their resources through
// a Scope; the Runner owns the per-scenario lifecycle around them.
package harness

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gauntlet-cli/internal/apiclient"
	"github.com/xkilldash9x/gauntlet-cli/internal/artifacts"
	"github.com/xkilldash9x/gauntlet-cli/internal/browser"
	"github.com/xkilldash9x/gauntlet-cli/internal/capture"
	"github.com/xkilldash9x/gauntlet-cli/internal/config"
	"github.com/xkilldash9x/gauntlet-cli/internal/mobile"
	"github.com/xkilldash9x/gauntlet-cli/internal/reporting"
	"github.com/xkilldash9x/gauntlet-cli/internal/store"
)

// Harness holds the initialized components for one run: the report sink, the
// failure-artifact collector, the optional capture proxy, the browser and
// mobile factories, the API client, and the run-history store. Everything is
// injected or built here; components never reach for globals.
type Harness struct {
	settings  *config.Settings
	logger    *zap.Logger
	reporter  reporting.Reporter
	collector *artifacts.Collector

	// recorder and history are nil when the matching feature is disabled.
	recorder *capture.Recorder
	history  *store.History

	browsers *browser.Factory
	mobiles  *mobile.Factory
	api      *apiclient.Client
}

// New builds the component graph for a run. Construction is cheap on the
// automation side - browsers, device sessions, and HTTP connections are all
// created lazily on first use - but the capture proxy binds its port and the
// history store opens its database here, so a misconfigured environment
// fails before any scenario starts. A partial failure releases everything
// already created.
func New(settings *config.Settings, logger *zap.Logger, reporter reporting.Reporter) (*Harness, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if reporter == nil {
		reporter = reporting.NewNopReporter()
	}

	h := &Harness{
		settings:  settings,
		logger:    logger.Named("harness"),
		reporter:  reporter,
		collector: artifacts.NewCollector(reporter, logger),
	}

	var initErr error
	defer func() {
		if initErr != nil {
			h.logger.Warn("Harness initialization failed; releasing partially created components.", zap.Error(initErr))
			h.Close(context.Background())
		}
	}()

	if settings.Core.Capture.Enabled {
		rec, err := capture.NewRecorder(settings.Core.Capture, logger)
		if err != nil {
			initErr = fmt.Errorf("failed to build the capture recorder: %w", err)
			return nil, initErr
		}
		h.recorder = rec
		if err := rec.Start(); err != nil {
			initErr = fmt.Errorf("failed to start the capture recorder: %w", err)
			return nil, initErr
		}
		h.logger.Info("Network capture enabled.", zap.String("proxy_addr", rec.Addr()))
	}

	var browserOpts []browser.Option
	if h.recorder != nil {
		browserOpts = append(browserOpts, browser.WithProxyAddress(h.recorder.Addr()))
	}
	browsers, err := browser.NewFactory(settings, logger, browserOpts...)
	if err != nil {
		initErr = fmt.Errorf("failed to build the browser factory: %w", err)
		return nil, initErr
	}
	h.browsers = browsers

	mobiles, err := mobile.NewFactory(settings, logger)
	if err != nil {
		initErr = fmt.Errorf("failed to build the mobile factory: %w", err)
		return nil, initErr
	}
	h.mobiles = mobiles

	api, err := apiclient.NewClient(settings, logger)
	if err != nil {
		initErr = fmt.Errorf("failed to build the api client: %w", err)
		return nil, initErr
	}
	h.api = api

	if settings.Core.History.Enabled {
		history, err := store.Open(settings.Core.History.Path, logger)
		if err != nil {
			initErr = fmt.Errorf("failed to open the run history store: %w", err)
			return nil, initErr
		}
		h.history = history
	}

	h.logger.Debug("Harness components initialized.")
	return h, nil
}

// Settings returns the resolved configuration the harness was built with.
func (h *Harness) Settings() *config.Settings { return h.settings }

// Close releases the components in reverse dependency order: API client,
// device session, browser stack, capture proxy, history store. Each step is
// guarded so one failure cannot strand the resources behind it; the first
// failure is returned. The injected reporter stays open - its creator owns
// it. Idempotent through each component's own guard.
func (h *Harness) Close(ctx context.Context) error {
	var closeErr error
	keep := func(err error) {
		if closeErr == nil {
			closeErr = err
		}
	}

	if h.api != nil {
		h.api.Close()
	}
	if h.mobiles != nil {
		if err := h.mobiles.Close(ctx); err != nil {
			h.logger.Warn("Failed to close the mobile factory.", zap.Error(err))
			keep(err)
		}
	}
	if h.browsers != nil {
		if err := h.browsers.Close(ctx); err != nil {
			h.logger.Warn("Failed to close the browser factory.", zap.Error(err))
			keep(err)
		}
	}
	if h.recorder != nil {
		if err := h.recorder.Close(); err != nil {
			h.logger.Warn("Failed to stop the capture recorder.", zap.Error(err))
			keep(err)
		}
	}
	if h.history != nil {
		if err := h.history.Close(); err != nil {
			h.logger.Warn("Failed to close the run history store.", zap.Error(err))
			keep(err)
		}
	}
	return closeErr
}
