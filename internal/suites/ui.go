// File: internal/suites/ui.go

// Package suites registers the built-in scenarios. The run command imports
// it for the side effect; init functions populate the harness registry.
package suites

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gauntlet-cli/internal/harness"
	"github.com/xkilldash9x/gauntlet-cli/internal/pages"
	"github.com/xkilldash9x/gauntlet-cli/internal/reporting"
)

func init() {
	harness.Register(harness.Scenario{
		Name:   "dashboard loads and shows the search box",
		Suite:  "ui",
		Labels: reporting.Labels{Feature: "dashboard"},
		Run:    dashboardLoads,
	})
	harness.Register(harness.Scenario{
		Name:   "invalid credentials show a login error",
		Suite:  "ui",
		Labels: reporting.Labels{Feature: "login"},
		Run:    invalidLoginShowsError,
	})
}

func dashboardLoads(ctx context.Context, scope *harness.Scope) error {
	page, err := scope.UI(ctx)
	if err != nil {
		return err
	}
	dashboard := pages.NewDashboardPage(page, scope.Settings())
	if err := dashboard.Open(ctx); err != nil {
		return fmt.Errorf("failed to open the dashboard: %w", err)
	}
	if !dashboard.IsSearchVisible(ctx) {
		return fmt.Errorf("the destination search box never became visible")
	}
	return nil
}

func invalidLoginShowsError(ctx context.Context, scope *harness.Scope) error {
	creds := scope.Settings().Data.Credentials.InvalidUser
	if creds.Username == "" {
		return fmt.Errorf("credentials.invalid_user is not configured: %w", harness.ErrSkip)
	}

	page, err := scope.UI(ctx)
	if err != nil {
		return err
	}
	login := pages.NewLoginPage(page, scope.Settings())
	if err := login.Open(ctx); err != nil {
		return fmt.Errorf("failed to open the login page: %w", err)
	}
	if err := login.Login(ctx, creds.Username, creds.Password); err != nil {
		return err
	}

	msg, err := login.ErrorMessage(ctx)
	if err != nil {
		return err
	}
	if msg == "" {
		return fmt.Errorf("expected a login error for invalid credentials, got none")
	}
	scope.Logger().Debug("Login rejected as expected.", zap.String("message", msg))
	return nil
}
