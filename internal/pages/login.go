// File: internal/pages/login.go
package pages

import (
	"context"
	"strings"

	"github.com/xkilldash9x/gauntlet-cli/internal/browser"
	"github.com/xkilldash9x/gauntlet-cli/internal/config"
)

// Login form selectors.
const (
	usernameSelector   = "#username"
	passwordSelector   = "#password"
	submitSelector     = "button[type='submit']"
	loginErrorSelector = ".error-message"
)

// LoginPage models the credential form.
type LoginPage struct {
	page browser.Page
	cfg  *config.Settings
}

// NewLoginPage wraps a live page.
func NewLoginPage(page browser.Page, cfg *config.Settings) *LoginPage {
	return &LoginPage{page: page, cfg: cfg}
}

// Open navigates to the login page. A relative login_url resolves against
// ui.base_url.
func (l *LoginPage) Open(ctx context.Context) error {
	return l.page.Navigate(ctx, resolveURL(l.cfg.Data.UI.BaseURL, l.cfg.Data.UI.LoginURL))
}

// Login fills the credential form and submits it. The landing state is the
// caller's to assert; a rejected login renders the error banner instead of
// navigating.
func (l *LoginPage) Login(ctx context.Context, username, password string) error {
	if err := l.page.Fill(ctx, usernameSelector, username); err != nil {
		return err
	}
	if err := l.page.Fill(ctx, passwordSelector, password); err != nil {
		return err
	}
	return l.page.Click(ctx, submitSelector)
}

// ErrorMessage returns the text of the login error banner, or "" when no
// banner appears within the element-wait budget.
func (l *LoginPage) ErrorMessage(ctx context.Context) (string, error) {
	wait := l.cfg.Data.Timeouts.ElementWaitDuration()
	if err := l.page.WaitForVisible(ctx, loginErrorSelector, wait); err != nil {
		return "", nil
	}
	return l.page.Text(ctx, loginErrorSelector)
}

// resolveURL joins a possibly relative path against the base URL. Absolute
// URLs pass through untouched.
func resolveURL(base, path string) string {
	if path == "" {
		return base
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
