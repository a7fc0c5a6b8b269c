// File: internal/config/settings_test.go
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultSettings(t *testing.T) {
	s := NewDefaultSettings()
	require.NotNil(t, s)

	assert.Equal(t, "local", s.Core.Environment)
	assert.False(t, s.Core.Debug)

	assert.Equal(t, EnginePlaywright, s.Core.Browser.Engine)
	assert.Equal(t, BrowserChromium, s.Core.Browser.Type)
	assert.True(t, s.Core.Browser.Headless)
	assert.Equal(t, 0, s.Core.Browser.SlowMo)
	assert.Equal(t, 30000, s.Core.Browser.Timeout)
	assert.Equal(t, 1920, s.Core.Browser.Viewport.Width)
	assert.Equal(t, 1080, s.Core.Browser.Viewport.Height)
	assert.False(t, s.Core.Browser.IgnoreHTTPSErrors)
	assert.True(t, s.Core.Browser.ScreenshotOnFailure)
	assert.True(t, s.Core.Browser.TraceOnFailure)
	assert.False(t, s.Core.Browser.VideoOnFailure)
	assert.Equal(t, "reports/videos", s.Core.Browser.VideoDir)

	assert.False(t, s.Core.Capture.Enabled)
	assert.Equal(t, "127.0.0.1:0", s.Core.Capture.ListenAddr)
	assert.Equal(t, 65536, s.Core.Capture.MaxBodyBytes)
	assert.True(t, s.Core.Capture.MITM)
	assert.Empty(t, s.Core.Capture.CACertFile)

	assert.Equal(t, PlatformAndroid, s.Core.Mobile.Platform)
	assert.Equal(t, "http://localhost:4723", s.Core.Mobile.AppiumServer)
	assert.Equal(t, "UiAutomator2", s.Core.Mobile.AutomationName)
	assert.Equal(t, 300, s.Core.Mobile.NewCommandTimeout)

	assert.Equal(t, "reports/allure-results", s.Core.Allure.ResultsDir)
	assert.True(t, s.Core.Allure.CleanResults)
	assert.True(t, s.Core.History.Enabled)
	assert.Equal(t, "reports/history.db", s.Core.History.Path)
	assert.Equal(t, "info", s.Core.Logging.Level)

	assert.Equal(t, "http://localhost:3000", s.Data.UI.BaseURL)
	assert.Equal(t, "http://localhost:8000/api", s.Data.API.BaseURL)
	assert.Equal(t, "v1", s.Data.API.Version)
	assert.Equal(t, 30, s.Data.Timeouts.Default)
	assert.Equal(t, 10, s.Data.Timeouts.ElementWait)
	assert.Equal(t, "emulator-5554", s.Data.MobileApp.Android.DeviceName)
	assert.Equal(t, "13", s.Data.MobileApp.Android.PlatformVersion)
	assert.Equal(t, "iPhone 14", s.Data.MobileApp.IOS.DeviceName)
	assert.Equal(t, "16.0", s.Data.MobileApp.IOS.PlatformVersion)

	assert.NoError(t, s.Validate())
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(s *Settings) {},
		},
		{
			name:    "unknown environment",
			mutate:  func(s *Settings) { s.Core.Environment = "production" },
			wantErr: "environment must be one of",
		},
		{
			name:    "unknown engine",
			mutate:  func(s *Settings) { s.Core.Browser.Engine = "selenium" },
			wantErr: "browser.engine must be",
		},
		{
			name:    "unknown browser type",
			mutate:  func(s *Settings) { s.Core.Browser.Type = "edge" },
			wantErr: "browser.type must be one of",
		},
		{
			name: "cdp engine rejects firefox",
			mutate: func(s *Settings) {
				s.Core.Browser.Engine = EngineCDP
				s.Core.Browser.Type = BrowserFirefox
			},
			wantErr: `browser.engine "cdp" only supports`,
		},
		{
			name: "cdp engine accepts chromium",
			mutate: func(s *Settings) {
				s.Core.Browser.Engine = EngineCDP
				s.Core.Browser.Type = BrowserChromium
			},
		},
		{
			name:    "negative slow_mo",
			mutate:  func(s *Settings) { s.Core.Browser.SlowMo = -5 },
			wantErr: "browser.slow_mo must not be negative",
		},
		{
			name:    "zero timeout",
			mutate:  func(s *Settings) { s.Core.Browser.Timeout = 0 },
			wantErr: "browser.timeout must be a positive",
		},
		{
			name:    "zero viewport width",
			mutate:  func(s *Settings) { s.Core.Browser.Viewport.Width = 0 },
			wantErr: "browser.viewport dimensions must be positive",
		},
		{
			name:    "unknown mobile platform",
			mutate:  func(s *Settings) { s.Core.Mobile.Platform = "windows" },
			wantErr: "mobile.platform must be",
		},
		{
			name:    "mixed case platform accepted",
			mutate:  func(s *Settings) { s.Core.Mobile.Platform = "Android" },
		},
		{
			name:    "empty appium server",
			mutate:  func(s *Settings) { s.Core.Mobile.AppiumServer = "" },
			wantErr: "mobile.appium_server must not be empty",
		},
		{
			name:    "unknown log level",
			mutate:  func(s *Settings) { s.Core.Logging.Level = "trace" },
			wantErr: "logging.level must be one of",
		},
		{
			name:    "empty ui base url",
			mutate:  func(s *Settings) { s.Data.UI.BaseURL = "" },
			wantErr: "ui.base_url must not be empty",
		},
		{
			name:    "empty api base url",
			mutate:  func(s *Settings) { s.Data.API.BaseURL = "" },
			wantErr: "api.base_url must not be empty",
		},
		{
			name:    "non-positive timeout",
			mutate:  func(s *Settings) { s.Data.Timeouts.ElementWait = 0 },
			wantErr: "timeouts.element_wait must be a positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewDefaultSettings()
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTimeoutDurations(t *testing.T) {
	tc := TimeoutsConfig{Default: 30, PageLoad: 60, ElementWait: 10, APITimeout: 15, ImplicitWait: 5}
	assert.Equal(t, 30*time.Second, tc.DefaultDuration())
	assert.Equal(t, 10*time.Second, tc.ElementWaitDuration())
	assert.Equal(t, 15*time.Second, tc.APIDuration())
	assert.Equal(t, 5*time.Second, tc.ImplicitWaitDuration())
}

func TestSettingsRedacted(t *testing.T) {
	s := NewDefaultSettings()
	s.Data.Credentials.ValidUser = UserCredentials{Username: "alice", Password: "hunter2", Email: "alice@example.com"}
	s.Data.Credentials.AdminUser = UserCredentials{Username: "root", Password: "toor"}

	red := s.Redacted()
	assert.Equal(t, "[REDACTED]", red.Data.Credentials.ValidUser.Password)
	assert.Equal(t, "[REDACTED]", red.Data.Credentials.AdminUser.Password)
	assert.Equal(t, "alice", red.Data.Credentials.ValidUser.Username)
	assert.Empty(t, red.Data.Credentials.InvalidUser.Password)

	// The source settings keep the real secrets.
	assert.Equal(t, "hunter2", s.Data.Credentials.ValidUser.Password)
}
