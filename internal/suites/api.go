// File: internal/suites/api.go
package suites

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/gauntlet-cli/internal/apiclient"
	"github.com/xkilldash9x/gauntlet-cli/internal/harness"
	"github.com/xkilldash9x/gauntlet-cli/internal/reporting"
)

func init() {
	harness.Register(harness.Scenario{
		Name:   "api health endpoint responds",
		Suite:  "api",
		Labels: reporting.Labels{Feature: "health"},
		Run:    apiHealth,
	})
	harness.Register(harness.Scenario{
		Name:   "valid user can authenticate and fetch their profile",
		Suite:  "api",
		Labels: reporting.Labels{Feature: "auth"},
		Run:    authenticateAndFetchProfile,
	})
}

func apiHealth(ctx context.Context, scope *harness.Scope) error {
	return scope.API().HealthCheck(ctx)
}

func authenticateAndFetchProfile(ctx context.Context, scope *harness.Scope) error {
	creds := scope.Settings().Data.Credentials.ValidUser
	if creds.Username == "" {
		return fmt.Errorf("credentials.valid_user is not configured: %w", harness.ErrSkip)
	}

	api := scope.API()
	resp, err := api.Authenticate(ctx, creds.Username, creds.Password)
	if err != nil {
		return err
	}
	if err := apiclient.AuthResponseShape.Check(resp.Body); err != nil {
		return err
	}

	profile, err := api.CurrentUser(ctx)
	if err != nil {
		return err
	}
	return apiclient.UserShape.Check(profile.Body)
}
