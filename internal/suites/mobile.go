// File: internal/suites/mobile.go
package suites

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/gauntlet-cli/internal/config"
	"github.com/xkilldash9x/gauntlet-cli/internal/harness"
	"github.com/xkilldash9x/gauntlet-cli/internal/reporting"
)

func init() {
	harness.Register(harness.Scenario{
		Name:   "app launches to an interactive screen",
		Suite:  "mobile",
		Labels: reporting.Labels{Feature: "smoke"},
		Run:    appLaunches,
	})
}

func appLaunches(ctx context.Context, scope *harness.Scope) error {
	cfg := scope.Settings()
	if !mobileAppConfigured(cfg) {
		return fmt.Errorf("no app configured for platform %s: %w",
			cfg.Core.Mobile.Platform, harness.ErrSkip)
	}

	session, err := scope.Mobile(ctx)
	if err != nil {
		return err
	}
	source, err := session.Source(ctx)
	if err != nil {
		return fmt.Errorf("failed to read the view hierarchy: %w", err)
	}
	if strings.TrimSpace(source) == "" {
		return fmt.Errorf("the app launched to an empty view hierarchy")
	}
	return nil
}

func mobileAppConfigured(cfg *config.Settings) bool {
	switch strings.ToLower(cfg.Core.Mobile.Platform) {
	case config.PlatformIOS:
		ios := cfg.Data.MobileApp.IOS
		return ios.BundleID != "" || ios.AppPath != ""
	default:
		android := cfg.Data.MobileApp.Android
		return android.AppPackage != "" || android.AppPath != ""
	}
}
