// File: internal/mobile/source.go
package mobile

import (
	"fmt"
	"sort"

	"github.com/beevik/etree"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Hierarchy is a compact summary of a device view tree, small enough to scan
// in a report where the raw source XML is not.
type Hierarchy struct {
	Elements    int      `json:"elements"`
	MaxDepth    int      `json:"max_depth"`
	Classes     []string `json:"classes,omitempty"`
	ResourceIDs []string `json:"resource_ids,omitempty"`
}

// SummarizeSource parses WebDriver page-source XML and reduces it to element
// counts plus the distinct classes and resource ids present.
func SummarizeSource(source string) (*Hierarchy, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(source); err != nil {
		return nil, fmt.Errorf("failed to parse view hierarchy: %w", err)
	}

	summary := &Hierarchy{}
	classes := make(map[string]struct{})
	resourceIDs := make(map[string]struct{})

	var walk func(el *etree.Element, depth int)
	walk = func(el *etree.Element, depth int) {
		summary.Elements++
		if depth > summary.MaxDepth {
			summary.MaxDepth = depth
		}
		if class := elementClass(el); class != "" {
			classes[class] = struct{}{}
		}
		if id := el.SelectAttrValue("resource-id", ""); id != "" {
			resourceIDs[id] = struct{}{}
		}
		for _, child := range el.ChildElements() {
			walk(child, depth+1)
		}
	}
	if root := doc.Root(); root != nil {
		walk(root, 1)
	}

	summary.Classes = sortedKeys(classes)
	summary.ResourceIDs = sortedKeys(resourceIDs)
	return summary, nil
}

// elementClass prefers the class attribute and falls back to the tag, which
// is the class name in Android source dumps and the element type on iOS.
func elementClass(el *etree.Element) string {
	if class := el.SelectAttrValue("class", ""); class != "" {
		return class
	}
	return el.Tag
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
