// File: internal/harness/registry.go
package harness

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/xkilldash9x/gauntlet-cli/internal/reporting"
)

// ErrSkip marks a scenario that declined to run. Scenario code returns it,
// usually wrapped with the reason, to record a skip instead of a failure.
var ErrSkip = errors.New("scenario skipped")

// Scenario is one registered test case. Suite groups scenarios for selection
// and reporting; Labels adds report grouping beyond the suite.
type Scenario struct {
	Name   string
	Suite  string
	Labels reporting.Labels
	Run    func(ctx context.Context, scope *Scope) error
}

var (
	registryMu sync.Mutex
	registry   []Scenario
)

// Register adds a scenario to the global registry. Suite packages call this
// from init, so registration problems are programming errors and panic.
func Register(s Scenario) {
	if s.Name == "" || s.Run == nil {
		panic("harness: Register requires a scenario name and a run function")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, existing := range registry {
		if existing.Suite == s.Suite && existing.Name == s.Name {
			panic(fmt.Sprintf("harness: scenario %q is already registered in suite %q", s.Name, s.Suite))
		}
	}
	registry = append(registry, s)
}

// Scenarios selects registered scenarios in registration order. An empty
// suite matches every suite; a non-empty grep is a regular expression
// matched against scenario names.
func Scenarios(suite, grep string) ([]Scenario, error) {
	var re *regexp.Regexp
	if grep != "" {
		var err error
		re, err = regexp.Compile(grep)
		if err != nil {
			return nil, fmt.Errorf("invalid grep pattern %q: %w", grep, err)
		}
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	var out []Scenario
	for _, sc := range registry {
		if suite != "" && sc.Suite != suite {
			continue
		}
		if re != nil && !re.MatchString(sc.Name) {
			continue
		}
		out = append(out, sc)
	}
	return out, nil
}
