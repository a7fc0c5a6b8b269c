// File: cmd/version.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Build metadata, set at build time using ldflags.
// Example: go build -ldflags "-X github.com/xkilldash9x/gauntlet-cli/cmd.Version=1.2.0"
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// newVersionCmd creates the `version` command.
func newVersionCmd() *cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the gauntlet version, commit and build date",
		// Version must print even when the config on disk is broken, so the
		// root's config-loading hook is replaced with a no-op.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gauntlet %s (commit %s, built %s)\n", Version, Commit, Date)
		},
	}
	return versionCmd
}
