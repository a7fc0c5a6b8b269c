// File: internal/mobile/locator.go
package mobile

import "strings"

// Strategy strings the WebDriver protocol understands, keyed by the prefix
// form used in page objects and test data.
var strategyByPrefix = map[string]string{
	"id":                  "id",
	"xpath":               "xpath",
	"accessibility_id":    "accessibility id",
	"class":               "class name",
	"name":                "name",
	"css":                 "css selector",
	"android_uiautomator": "-android uiautomator",
	"ios_predicate":       "-ios predicate string",
	"ios_class_chain":     "-ios class chain",
}

// ParseLocator splits a "prefix=value" locator into the W3C locator strategy
// and its value. A string without a prefix is an accessibility id, and so is
// any prefix the table does not know.
func ParseLocator(locator string) (using, value string) {
	prefix, rest, found := strings.Cut(locator, "=")
	if !found {
		return "accessibility id", locator
	}
	if strategy, ok := strategyByPrefix[strings.TrimSpace(strings.ToLower(prefix))]; ok {
		return strategy, rest
	}
	return "accessibility id", rest
}
