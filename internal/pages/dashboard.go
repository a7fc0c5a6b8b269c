// File: internal/pages/dashboard.go

// Package pages holds the page objects for the web application under test.
// A page object owns its selectors and flows; scenarios talk to pages, never
// to raw selectors.
package pages

import (
	"context"

	"github.com/xkilldash9x/gauntlet-cli/internal/browser"
	"github.com/xkilldash9x/gauntlet-cli/internal/config"
)

// searchBoxSelector matches the destination search box on the landing page.
const searchBoxSelector = "[aria-label='Where are you going?']"

// DashboardPage models the application's landing page.
type DashboardPage struct {
	page browser.Page
	cfg  *config.Settings
}

// NewDashboardPage wraps a live page.
func NewDashboardPage(page browser.Page, cfg *config.Settings) *DashboardPage {
	return &DashboardPage{page: page, cfg: cfg}
}

// Open navigates to the application's base URL.
func (d *DashboardPage) Open(ctx context.Context) error {
	return d.page.Navigate(ctx, d.cfg.Data.UI.BaseURL)
}

// IsSearchVisible reports whether the search box appears within the
// element-wait budget. Any wait failure reads as not visible.
func (d *DashboardPage) IsSearchVisible(ctx context.Context) bool {
	err := d.page.WaitForVisible(ctx, searchBoxSelector, d.cfg.Data.Timeouts.ElementWaitDuration())
	return err == nil
}

// Search types a destination into the search box and submits it.
func (d *DashboardPage) Search(ctx context.Context, destination string) error {
	if err := d.page.Fill(ctx, searchBoxSelector, destination); err != nil {
		return err
	}
	return d.page.Press(ctx, searchBoxSelector, "Enter")
}
