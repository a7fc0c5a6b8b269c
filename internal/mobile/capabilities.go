// File: internal/mobile/capabilities.go
package mobile

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/gauntlet-cli/internal/config"
)

// buildCapabilities assembles the alwaysMatch capability set for the
// configured platform. Only platformName is a standard W3C capability;
// everything else carries the appium: vendor prefix the server requires.
func buildCapabilities(cfg *config.Settings) (map[string]any, error) {
	core := cfg.Core.Mobile
	caps := map[string]any{
		"appium:newCommandTimeout": core.NewCommandTimeout,
		"appium:noReset":           core.NoReset,
		"appium:fullReset":         core.FullReset,
	}

	switch strings.ToLower(core.Platform) {
	case config.PlatformAndroid:
		app := cfg.Data.MobileApp.Android
		caps["platformName"] = "Android"
		caps["appium:automationName"] = core.AutomationName
		caps["appium:platformVersion"] = app.PlatformVersion
		caps["appium:deviceName"] = app.DeviceName
		caps["appium:app"] = app.AppPath
		caps["appium:appPackage"] = app.AppPackage
		caps["appium:appActivity"] = app.AppActivity
	case config.PlatformIOS:
		app := cfg.Data.MobileApp.IOS
		caps["platformName"] = "iOS"
		caps["appium:automationName"] = "XCUITest"
		caps["appium:platformVersion"] = app.PlatformVersion
		caps["appium:deviceName"] = app.DeviceName
		caps["appium:app"] = app.AppPath
		caps["appium:bundleId"] = app.BundleID
		caps["appium:udid"] = app.UDID
	default:
		return nil, fmt.Errorf("unsupported mobile platform %q", core.Platform)
	}

	// Sending empty strings confuses some drivers; leave those caps out.
	for key, value := range caps {
		if s, ok := value.(string); ok && s == "" {
			delete(caps, key)
		}
	}
	return caps, nil
}
