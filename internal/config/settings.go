// File: internal/config/settings.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported browser automation engines.
const (
	EnginePlaywright = "playwright"
	EngineCDP        = "cdp"
)

// Supported browser kinds. The cdp engine only drives chromium.
const (
	BrowserChromium = "chromium"
	BrowserFirefox  = "firefox"
	BrowserWebKit   = "webkit"
)

// Supported mobile platforms.
const (
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
)

// Settings is the immutable snapshot of resolved configuration for one
// session. It combines the two configuration documents: core (framework
// behavior) and data (environment-specific test inputs). Build it through a
// Resolver; never mutate it afterwards. Reconfiguring means resolving a new
// Settings value.
type Settings struct {
	Core CoreConfig `mapstructure:"core" yaml:"core"`
	Data DataConfig `mapstructure:"data" yaml:"data"`
}

// CoreConfig holds framework-level settings loaded from core_config.yml.
type CoreConfig struct {
	Environment string        `mapstructure:"environment" yaml:"environment"`
	Debug       bool          `mapstructure:"debug" yaml:"debug"`
	Browser     BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Capture     CaptureConfig `mapstructure:"capture" yaml:"capture"`
	Mobile      MobileConfig  `mapstructure:"mobile" yaml:"mobile"`
	Allure      AllureConfig  `mapstructure:"allure" yaml:"allure"`
	History     HistoryConfig `mapstructure:"history" yaml:"history"`
	Logging     LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// BrowserConfig holds settings for the UI automation engine.
type BrowserConfig struct {
	Engine              string         `mapstructure:"engine" yaml:"engine"`
	Type                string         `mapstructure:"type" yaml:"type"`
	Headless            bool           `mapstructure:"headless" yaml:"headless"`
	SlowMo              int            `mapstructure:"slow_mo" yaml:"slow_mo"`
	Timeout             int            `mapstructure:"timeout" yaml:"timeout"`
	Viewport            ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	Args                []string       `mapstructure:"args" yaml:"args"`
	IgnoreHTTPSErrors   bool           `mapstructure:"ignore_https_errors" yaml:"ignore_https_errors"`
	ScreenshotOnFailure bool           `mapstructure:"screenshot_on_failure" yaml:"screenshot_on_failure"`
	VideoOnFailure      bool           `mapstructure:"video_on_failure" yaml:"video_on_failure"`
	VideoDir            string         `mapstructure:"video_dir" yaml:"video_dir"`
	TraceOnFailure      bool           `mapstructure:"trace_on_failure" yaml:"trace_on_failure"`
}

// ViewportConfig is the browser window size. Width and height merge as
// independent leaves, so overriding one does not clobber the other.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// CaptureConfig configures the optional network-recording proxy.
type CaptureConfig struct {
	Enabled      bool   `mapstructure:"enabled" yaml:"enabled"`
	ListenAddr   string `mapstructure:"listen_addr" yaml:"listen_addr"`
	MaxBodyBytes int    `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	// MITM controls whether HTTPS traffic is decrypted. When false the proxy
	// tunnels TLS opaquely and only CONNECT events are recorded.
	MITM       bool   `mapstructure:"mitm" yaml:"mitm"`
	CACertFile string `mapstructure:"ca_cert_file" yaml:"ca_cert_file"`
	CAKeyFile  string `mapstructure:"ca_key_file" yaml:"ca_key_file"`
}

// MobileConfig holds framework-level Appium settings. Per-platform device
// data (device names, app identifiers) lives in DataConfig.MobileApp.
type MobileConfig struct {
	Platform          string `mapstructure:"platform" yaml:"platform"`
	AppiumServer      string `mapstructure:"appium_server" yaml:"appium_server"`
	AutomationName    string `mapstructure:"automation_name" yaml:"automation_name"`
	NewCommandTimeout int    `mapstructure:"new_command_timeout" yaml:"new_command_timeout"`
	NoReset           bool   `mapstructure:"no_reset" yaml:"no_reset"`
	FullReset         bool   `mapstructure:"full_reset" yaml:"full_reset"`
	MinServerVersion  string `mapstructure:"min_server_version" yaml:"min_server_version"`
	ServerLog         string `mapstructure:"server_log" yaml:"server_log"`
}

// AllureConfig configures the report sink output directory.
type AllureConfig struct {
	ResultsDir   string `mapstructure:"results_dir" yaml:"results_dir"`
	ReportDir    string `mapstructure:"report_dir" yaml:"report_dir"`
	CleanResults bool   `mapstructure:"clean_results" yaml:"clean_results"`
}

// HistoryConfig configures the local run-history store.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig holds all the configuration for the logger.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	FilePath   string `mapstructure:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// DataConfig holds environment-specific test inputs loaded from
// data_config.yml: URLs, credentials, timeouts, per-platform app settings.
type DataConfig struct {
	UI          UIConfig          `mapstructure:"ui" yaml:"ui"`
	API         APIConfig         `mapstructure:"api" yaml:"api"`
	Timeouts    TimeoutsConfig    `mapstructure:"timeouts" yaml:"timeouts"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	MobileApp   MobileAppConfig   `mapstructure:"mobile_app" yaml:"mobile_app"`
	Endpoints   map[string]string `mapstructure:"endpoints" yaml:"endpoints"`
	TestData    map[string]any    `mapstructure:"test_data" yaml:"test_data"`
}

// UIConfig holds the web application URLs.
type UIConfig struct {
	BaseURL      string `mapstructure:"base_url" yaml:"base_url"`
	LoginURL     string `mapstructure:"login_url" yaml:"login_url"`
	DashboardURL string `mapstructure:"dashboard_url" yaml:"dashboard_url"`
}

// APIConfig holds the API endpoint settings.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Version string `mapstructure:"version" yaml:"version"`
}

// TimeoutsConfig holds wait budgets in seconds.
type TimeoutsConfig struct {
	Default      int `mapstructure:"default" yaml:"default"`
	PageLoad     int `mapstructure:"page_load" yaml:"page_load"`
	ElementWait  int `mapstructure:"element_wait" yaml:"element_wait"`
	APITimeout   int `mapstructure:"api_timeout" yaml:"api_timeout"`
	ImplicitWait int `mapstructure:"implicit_wait" yaml:"implicit_wait"`
}

// DefaultDuration returns the default wait budget as a time.Duration.
func (t TimeoutsConfig) DefaultDuration() time.Duration {
	return time.Duration(t.Default) * time.Second
}

// ElementWaitDuration returns the element wait budget as a time.Duration.
func (t TimeoutsConfig) ElementWaitDuration() time.Duration {
	return time.Duration(t.ElementWait) * time.Second
}

// APIDuration returns the API call budget as a time.Duration.
func (t TimeoutsConfig) APIDuration() time.Duration {
	return time.Duration(t.APITimeout) * time.Second
}

// ImplicitWaitDuration returns the driver implicit wait as a time.Duration.
func (t TimeoutsConfig) ImplicitWaitDuration() time.Duration {
	return time.Duration(t.ImplicitWait) * time.Second
}

// UserCredentials is one set of test-account credentials.
type UserCredentials struct {
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Email    string `mapstructure:"email" yaml:"email"`
}

// CredentialsConfig holds the well-known test accounts.
type CredentialsConfig struct {
	ValidUser   UserCredentials `mapstructure:"valid_user" yaml:"valid_user"`
	AdminUser   UserCredentials `mapstructure:"admin_user" yaml:"admin_user"`
	InvalidUser UserCredentials `mapstructure:"invalid_user" yaml:"invalid_user"`
}

// MobileAppConfig holds per-platform device and app settings.
type MobileAppConfig struct {
	Android AndroidAppConfig `mapstructure:"android" yaml:"android"`
	IOS     IOSAppConfig     `mapstructure:"ios" yaml:"ios"`
}

// AndroidAppConfig holds Android device and app settings.
type AndroidAppConfig struct {
	PlatformVersion string `mapstructure:"platform_version" yaml:"platform_version"`
	DeviceName      string `mapstructure:"device_name" yaml:"device_name"`
	AppPath         string `mapstructure:"app_path" yaml:"app_path"`
	AppPackage      string `mapstructure:"app_package" yaml:"app_package"`
	AppActivity     string `mapstructure:"app_activity" yaml:"app_activity"`
}

// IOSAppConfig holds iOS device and app settings.
type IOSAppConfig struct {
	PlatformVersion string `mapstructure:"platform_version" yaml:"platform_version"`
	DeviceName      string `mapstructure:"device_name" yaml:"device_name"`
	AppPath         string `mapstructure:"app_path" yaml:"app_path"`
	BundleID        string `mapstructure:"bundle_id" yaml:"bundle_id"`
	UDID            string `mapstructure:"udid" yaml:"udid"`
}

// SetCoreDefaults initializes compiled-in defaults for every core key.
// Every key has a default, so resolution never fails on missing inputs.
func SetCoreDefaults(v *viper.Viper) {
	v.SetDefault("environment", "local")
	v.SetDefault("debug", false)

	// -- Browser --
	v.SetDefault("browser.engine", EnginePlaywright)
	v.SetDefault("browser.type", BrowserChromium)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.slow_mo", 0)
	v.SetDefault("browser.timeout", 30000)
	v.SetDefault("browser.viewport.width", 1920)
	v.SetDefault("browser.viewport.height", 1080)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.ignore_https_errors", false)
	v.SetDefault("browser.screenshot_on_failure", true)
	v.SetDefault("browser.video_on_failure", false)
	v.SetDefault("browser.video_dir", "reports/videos")
	v.SetDefault("browser.trace_on_failure", true)

	// -- Capture proxy --
	v.SetDefault("capture.enabled", false)
	v.SetDefault("capture.listen_addr", "127.0.0.1:0")
	v.SetDefault("capture.max_body_bytes", 65536)
	v.SetDefault("capture.mitm", true)
	v.SetDefault("capture.ca_cert_file", "")
	v.SetDefault("capture.ca_key_file", "")

	// -- Mobile --
	v.SetDefault("mobile.platform", PlatformAndroid)
	v.SetDefault("mobile.appium_server", "http://localhost:4723")
	v.SetDefault("mobile.automation_name", "UiAutomator2")
	v.SetDefault("mobile.new_command_timeout", 300)
	v.SetDefault("mobile.no_reset", false)
	v.SetDefault("mobile.full_reset", false)
	v.SetDefault("mobile.min_server_version", "2.0.0")
	v.SetDefault("mobile.server_log", "")

	// -- Allure --
	v.SetDefault("allure.results_dir", "reports/allure-results")
	v.SetDefault("allure.report_dir", "reports/allure-report")
	v.SetDefault("allure.clean_results", true)

	// -- History --
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "reports/history.db")

	// -- Logging --
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file_path", "reports/logs/gauntlet.log")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 7)
}

// SetDataDefaults initializes compiled-in defaults for every data key.
func SetDataDefaults(v *viper.Viper) {
	// -- UI --
	v.SetDefault("ui.base_url", "http://localhost:3000")
	v.SetDefault("ui.login_url", "/login")
	v.SetDefault("ui.dashboard_url", "/dashboard")

	// -- API --
	v.SetDefault("api.base_url", "http://localhost:8000/api")
	v.SetDefault("api.version", "v1")

	// -- Timeouts (seconds) --
	v.SetDefault("timeouts.default", 30)
	v.SetDefault("timeouts.page_load", 60)
	v.SetDefault("timeouts.element_wait", 10)
	v.SetDefault("timeouts.api_timeout", 30)
	v.SetDefault("timeouts.implicit_wait", 10)

	// -- Credentials --
	v.SetDefault("credentials.valid_user.username", "")
	v.SetDefault("credentials.valid_user.password", "")
	v.SetDefault("credentials.valid_user.email", "")
	v.SetDefault("credentials.admin_user.username", "")
	v.SetDefault("credentials.admin_user.password", "")
	v.SetDefault("credentials.admin_user.email", "")
	v.SetDefault("credentials.invalid_user.username", "")
	v.SetDefault("credentials.invalid_user.password", "")
	v.SetDefault("credentials.invalid_user.email", "")

	// -- Mobile app --
	v.SetDefault("mobile_app.android.platform_version", "13")
	v.SetDefault("mobile_app.android.device_name", "emulator-5554")
	v.SetDefault("mobile_app.android.app_path", "")
	v.SetDefault("mobile_app.android.app_package", "")
	v.SetDefault("mobile_app.android.app_activity", "")
	v.SetDefault("mobile_app.ios.platform_version", "16.0")
	v.SetDefault("mobile_app.ios.device_name", "iPhone 14")
	v.SetDefault("mobile_app.ios.app_path", "")
	v.SetDefault("mobile_app.ios.bundle_id", "")
	v.SetDefault("mobile_app.ios.udid", "")

	v.SetDefault("endpoints", map[string]string{})
	v.SetDefault("test_data", map[string]any{})
}

// Validate checks the resolved configuration for sane values. A failure here
// is a configuration error and is fatal to session start.
func (s *Settings) Validate() error {
	if err := s.Core.Validate(); err != nil {
		return err
	}
	return s.Data.Validate()
}

// Validate checks the core document.
func (c *CoreConfig) Validate() error {
	switch c.Environment {
	case "local", "dev", "staging", "prod":
	default:
		return fmt.Errorf("environment must be one of local, dev, staging, prod; got %q", c.Environment)
	}
	if err := c.Browser.Validate(); err != nil {
		return err
	}
	if err := c.Mobile.Validate(); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	return nil
}

// Validate checks the browser section.
func (b *BrowserConfig) Validate() error {
	switch b.Engine {
	case EnginePlaywright, EngineCDP:
	default:
		return fmt.Errorf("browser.engine must be %q or %q; got %q", EnginePlaywright, EngineCDP, b.Engine)
	}
	switch b.Type {
	case BrowserChromium, BrowserFirefox, BrowserWebKit:
	default:
		return fmt.Errorf("browser.type must be one of chromium, firefox, webkit; got %q", b.Type)
	}
	// The DevTools engine cannot drive firefox or webkit.
	if b.Engine == EngineCDP && b.Type != BrowserChromium {
		return fmt.Errorf("browser.engine %q only supports browser.type %q; got %q", EngineCDP, BrowserChromium, b.Type)
	}
	if b.SlowMo < 0 {
		return fmt.Errorf("browser.slow_mo must not be negative")
	}
	if b.Timeout <= 0 {
		return fmt.Errorf("browser.timeout must be a positive number of milliseconds")
	}
	if b.Viewport.Width <= 0 || b.Viewport.Height <= 0 {
		return fmt.Errorf("browser.viewport dimensions must be positive")
	}
	return nil
}

// Validate checks the mobile section.
func (m *MobileConfig) Validate() error {
	switch strings.ToLower(m.Platform) {
	case PlatformAndroid, PlatformIOS:
	default:
		return fmt.Errorf("mobile.platform must be %q or %q; got %q", PlatformAndroid, PlatformIOS, m.Platform)
	}
	if m.AppiumServer == "" {
		return fmt.Errorf("mobile.appium_server must not be empty")
	}
	if m.NewCommandTimeout <= 0 {
		return fmt.Errorf("mobile.new_command_timeout must be a positive number of seconds")
	}
	return nil
}

// Validate checks the data document.
func (d *DataConfig) Validate() error {
	if d.UI.BaseURL == "" {
		return fmt.Errorf("ui.base_url must not be empty")
	}
	if d.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must not be empty")
	}
	for name, val := range map[string]int{
		"timeouts.default":       d.Timeouts.Default,
		"timeouts.page_load":     d.Timeouts.PageLoad,
		"timeouts.element_wait":  d.Timeouts.ElementWait,
		"timeouts.api_timeout":   d.Timeouts.APITimeout,
		"timeouts.implicit_wait": d.Timeouts.ImplicitWait,
	} {
		if val <= 0 {
			return fmt.Errorf("%s must be a positive number of seconds", name)
		}
	}
	return nil
}

// Redacted returns a deep-enough copy of the settings with credential
// secrets masked, suitable for printing or attaching to reports.
func (s Settings) Redacted() Settings {
	out := s
	mask := func(u UserCredentials) UserCredentials {
		if u.Password != "" {
			u.Password = "[REDACTED]"
		}
		return u
	}
	out.Data.Credentials.ValidUser = mask(out.Data.Credentials.ValidUser)
	out.Data.Credentials.AdminUser = mask(out.Data.Credentials.AdminUser)
	out.Data.Credentials.InvalidUser = mask(out.Data.Credentials.InvalidUser)
	return out
}

// NewDefaultSettings returns a Settings populated entirely from compiled-in
// defaults, bypassing files, environment, and flags.
func NewDefaultSettings() *Settings {
	core := viper.New()
	data := viper.New()
	SetCoreDefaults(core)
	SetDataDefaults(data)

	s := &Settings{}
	if err := core.Unmarshal(&s.Core); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default core config: %v", err))
	}
	if err := data.Unmarshal(&s.Data); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default data config: %v", err))
	}
	return s
}
