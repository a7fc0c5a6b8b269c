// File: cmd/gauntlet/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/gauntlet-cli/cmd"
	"github.com/xkilldash9x/gauntlet-cli/internal/observability"
)

const panicLogFile = "panic.log"

func main() {
	defer handlePanic()

	// SIGINT and SIGTERM cancel the run context; in-flight scenarios finish
	// their teardown under the runner's own deadline before the process
	// exits.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.Execute(ctx)
}

// handlePanic writes a crash report before the process dies, so a panic in
// the harness still leaves evidence next to the test results.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	report := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := os.WriteFile(panicLogFile, []byte(report), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write panic log: %v\n%s\n", err, report)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "gauntlet crashed; details written to %s\n", panicLogFile)
	os.Exit(1)
}
