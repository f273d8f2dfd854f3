package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the Lamina admin CLI. Subcommands are
// attached here from wire.go.
var rootCmd = &cobra.Command{
	Use:           "lamina",
	Short:         "Lamina admin CLI",
	Long:          "Administrative utilities for Lamina tenant databases (create, delete, migrate, reconcile).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
