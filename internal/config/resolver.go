// File: internal/config/resolver.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Default config file names searched during discovery.
const (
	CoreConfigName = "core_config.yml"
	DataConfigName = "data_config.yml"
)

// Environment variables that point discovery at explicit file paths.
const (
	coreConfigPathEnv = "CORE_CONFIG_PATH"
	dataConfigPathEnv = "DATA_CONFIG_PATH"
)

// Resolver layers the two configuration documents. Each document resolves
// with the same precedence: explicit Set > bound CLI flag > environment
// variable > config file > compiled default. Callers bind flags against
// Core/Data directly, then call Settings to obtain the resolved snapshot.
type Resolver struct {
	Core *viper.Viper
	Data *viper.Viper
}

// NewResolver returns a Resolver with compiled defaults and the enumerated
// environment bindings already applied. No files are read yet.
func NewResolver() *Resolver {
	core := viper.New()
	data := viper.New()
	SetCoreDefaults(core)
	SetDataDefaults(data)
	bindCoreEnv(core)
	bindDataEnv(data)
	return &Resolver{Core: core, Data: data}
}

// bindCoreEnv binds the fixed set of environment variables recognized by the
// core document. Anything outside this table is ignored.
func bindCoreEnv(v *viper.Viper) {
	v.BindEnv("browser.type", "BROWSER_TYPE")
	v.BindEnv("browser.headless", "BROWSER_HEADLESS")
	v.BindEnv("browser.slow_mo", "BROWSER_SLOW_MO")
	v.BindEnv("browser.timeout", "BROWSER_TIMEOUT")
	v.BindEnv("browser.viewport.width", "BROWSER_VIEWPORT_WIDTH")
	v.BindEnv("browser.viewport.height", "BROWSER_VIEWPORT_HEIGHT")
	v.BindEnv("mobile.platform", "MOBILE_PLATFORM")
	v.BindEnv("mobile.appium_server", "MOBILE_APPIUM_SERVER")
	v.BindEnv("mobile.no_reset", "MOBILE_NO_RESET")
	v.BindEnv("mobile.full_reset", "MOBILE_FULL_RESET")
}

// bindDataEnv binds environment variables for the data document. A single
// variable may feed both platform subtrees; overriding the device name must
// apply whichever platform the session ends up targeting.
func bindDataEnv(v *viper.Viper) {
	v.BindEnv("mobile_app.android.device_name", "MOBILE_DEVICE_NAME")
	v.BindEnv("mobile_app.ios.device_name", "MOBILE_DEVICE_NAME")
	v.BindEnv("mobile_app.android.platform_version", "MOBILE_PLATFORM_VERSION")
	v.BindEnv("mobile_app.ios.platform_version", "MOBILE_PLATFORM_VERSION")
	v.BindEnv("mobile_app.android.app_path", "MOBILE_APP_PATH")
	v.BindEnv("mobile_app.ios.app_path", "MOBILE_APP_PATH")
	v.BindEnv("mobile_app.ios.udid", "MOBILE_UDID")
}

// LoadFiles reads the core and data documents into their respective layers.
// Paths given explicitly (flag value or *_CONFIG_PATH env) must exist;
// discovered files are read when present and quietly skipped when not.
// A file that exists but fails to parse is always an error.
func (r *Resolver) LoadFiles(corePath, dataPath string) error {
	if err := readConfigFile(r.Core, corePath, coreConfigPathEnv, CoreConfigName); err != nil {
		return err
	}
	if err := readConfigFile(r.Data, dataPath, dataConfigPathEnv, DataConfigName); err != nil {
		return err
	}
	return nil
}

// Settings resolves both documents into a validated snapshot. Enum-valued
// fields are normalized to lower case before validation so that env and CLI
// spellings like "Android" or "CHROMIUM" behave like their canonical forms.
func (r *Resolver) Settings() (*Settings, error) {
	s := &Settings{}
	if err := r.Core.Unmarshal(&s.Core); err != nil {
		return nil, fmt.Errorf("error unmarshaling core config: %w", err)
	}
	if err := r.Data.Unmarshal(&s.Data); err != nil {
		return nil, fmt.Errorf("error unmarshaling data config: %w", err)
	}

	s.Core.Browser.Engine = strings.ToLower(s.Core.Browser.Engine)
	s.Core.Browser.Type = strings.ToLower(s.Core.Browser.Type)
	s.Core.Mobile.Platform = strings.ToLower(s.Core.Mobile.Platform)

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return s, nil
}

// readConfigFile locates one document and merges it into v.
func readConfigFile(v *viper.Viper, explicit, pathEnv, name string) error {
	path, required, err := discoverConfigFile(explicit, pathEnv, name)
	if err != nil {
		return err
	}
	if path == "" {
		// No file anywhere. Defaults, env and flags still apply.
		return nil
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if !required && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return nil
}

// discoverConfigFile finds the path for one document. Returns required=true
// when the caller named the path explicitly, in which case a missing file is
// an error rather than a silent fallback to defaults.
func discoverConfigFile(explicit, pathEnv, name string) (path string, required bool, err error) {
	if explicit != "" {
		p, err := homedir.Expand(explicit)
		if err != nil {
			return "", false, fmt.Errorf("error expanding config path %s: %w", explicit, err)
		}
		return p, true, nil
	}
	if fromEnv := os.Getenv(pathEnv); fromEnv != "" {
		p, err := homedir.Expand(fromEnv)
		if err != nil {
			return "", false, fmt.Errorf("error expanding %s: %w", pathEnv, err)
		}
		return p, true, nil
	}

	for _, dir := range []string{".", "configs"} {
		candidate := filepath.Join(dir, name)
		if fileExists(candidate) {
			return candidate, false, nil
		}
	}
	if home, err := homedir.Dir(); err == nil {
		candidate := filepath.Join(home, ".config", "gauntlet", name)
		if fileExists(candidate) {
			return candidate, false, nil
		}
	}
	return "", false, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
