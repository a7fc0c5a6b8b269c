// ./main.go
package main

import (
	"context"

	"github.com/xkilldash9x/gauntlet-cli/cmd"
)

// main is the plain entry point. The hardened build under cmd/gauntlet adds
// signal handling and a panic sentinel.
func main() {
	cmd.Execute(context.Background())
}
