// File: internal/apiclient/shapes.go
package apiclient

import (
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/tidwall/gjson"
)

// Kind classifies a JSON value for shape checks.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindObject Kind = "object"
	KindArray  Kind = "array"
	// KindScalar accepts strings and numbers both; identifiers arrive as
	// either depending on the backend.
	KindScalar Kind = "scalar"
)

// Field declares one expected value in a response document. Optional fields
// are only checked when present; a null value satisfies an optional field.
type Field struct {
	Path     string
	Kind     Kind
	Required bool
}

// Shape is a declarative description of a response document, checked field
// by field with gjson paths.
type Shape struct {
	Name   string
	Fields []Field
}

// Check validates a JSON document against the shape. The error carries a
// diff of the expected versus observed field kinds.
func (s Shape) Check(body []byte) error {
	if !gjson.ValidBytes(body) {
		return fmt.Errorf("%s response is not valid JSON", s.Name)
	}

	expected := make(map[string]string)
	observed := make(map[string]string)
	for _, field := range s.Fields {
		value := gjson.GetBytes(body, field.Path)
		if !value.Exists() {
			if field.Required {
				expected[field.Path] = string(field.Kind)
				observed[field.Path] = "missing"
			}
			continue
		}
		if value.Type == gjson.Null && !field.Required {
			continue
		}
		if kind := kindOf(value); !kindMatches(field.Kind, kind) {
			expected[field.Path] = string(field.Kind)
			observed[field.Path] = kind
		}
	}
	if len(expected) == 0 {
		return nil
	}
	return fmt.Errorf("response does not match the %s shape (-want +got):\n%s",
		s.Name, cmp.Diff(expected, observed))
}

func kindOf(value gjson.Result) string {
	switch value.Type {
	case gjson.String:
		return "string"
	case gjson.Number:
		return "number"
	case gjson.True, gjson.False:
		return "bool"
	case gjson.Null:
		return "null"
	default:
		if value.IsArray() {
			return "array"
		}
		return "object"
	}
}

func kindMatches(want Kind, got string) bool {
	if want == KindScalar {
		return got == "string" || got == "number"
	}
	return string(want) == got
}

// UserShape matches the user documents the API returns.
var UserShape = Shape{
	Name: "user",
	Fields: []Field{
		{Path: "id", Kind: KindScalar, Required: true},
		{Path: "username", Kind: KindString, Required: true},
		{Path: "email", Kind: KindString, Required: true},
		{Path: "created_at", Kind: KindString},
		{Path: "updated_at", Kind: KindString},
		{Path: "profile", Kind: KindObject},
		{Path: "profile.first_name", Kind: KindString},
		{Path: "profile.last_name", Kind: KindString},
		{Path: "profile.avatar_url", Kind: KindString},
	},
}

// AuthResponseShape matches a successful login payload.
var AuthResponseShape = Shape{
	Name: "auth response",
	Fields: []Field{
		{Path: "access_token", Kind: KindString, Required: true},
		{Path: "refresh_token", Kind: KindString},
		{Path: "token_type", Kind: KindString},
		{Path: "expires_in", Kind: KindNumber},
		{Path: "user", Kind: KindObject},
	},
}

// ErrorShape matches the API's error envelope.
var ErrorShape = Shape{
	Name: "error",
	Fields: []Field{
		{Path: "message", Kind: KindString, Required: true},
		{Path: "error", Kind: KindString},
		{Path: "status_code", Kind: KindNumber},
	},
}

// PaginatedShape wraps an item shape in the list envelope. Item fields are
// checked against the first element and demoted to optional so an empty page
// still validates.
func PaginatedShape(item Shape) Shape {
	fields := []Field{
		{Path: "data", Kind: KindArray, Required: true},
		{Path: "pagination", Kind: KindObject},
		{Path: "pagination.page", Kind: KindNumber},
		{Path: "pagination.per_page", Kind: KindNumber},
		{Path: "pagination.total", Kind: KindNumber},
		{Path: "pagination.total_pages", Kind: KindNumber},
	}
	for _, field := range item.Fields {
		fields = append(fields, Field{Path: "data.0." + field.Path, Kind: field.Kind})
	}
	return Shape{Name: "paginated " + item.Name, Fields: fields}
}
