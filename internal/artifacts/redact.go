// File: internal/artifacts/redact.go
package artifacts

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const redactedValue = "[REDACTED]"

// sensitiveKeyParts flags JSON keys whose values must never reach a report.
var sensitiveKeyParts = []string{
	"password",
	"token",
	"authorization",
	"secret",
	"api_key",
	"apikey",
	"cookie",
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

// Redact replaces the values of secret-bearing keys in a JSON document with
// "[REDACTED]", at any nesting depth. Whole subtrees under a sensitive key
// are replaced. Non-JSON input is returned unchanged.
func Redact(data []byte) []byte {
	if !gjson.ValidBytes(data) {
		return data
	}

	var paths []string
	var walk func(prefix string, value gjson.Result)
	walk = func(prefix string, value gjson.Result) {
		value.ForEach(func(key, val gjson.Result) bool {
			segment := key.String()
			if key.Type == gjson.String {
				if isSensitiveKey(segment) {
					paths = append(paths, joinPath(prefix, segment))
					return true
				}
			}
			if val.IsObject() || val.IsArray() {
				walk(joinPath(prefix, segment), val)
			}
			return true
		})
	}
	walk("", gjson.ParseBytes(data))

	out := data
	for _, path := range paths {
		if updated, err := sjson.SetBytes(out, path, redactedValue); err == nil {
			out = updated
		}
	}
	return out
}

func joinPath(prefix, segment string) string {
	// Dots inside a key must not split the sjson path.
	segment = strings.ReplaceAll(segment, ".", `\.`)
	if prefix == "" {
		return segment
	}
	return prefix + "." + segment
}
