// Package cli implements the sqlflow command-line interface: visualize a
// query's execution flow against a local schema without running a server.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "sqlflow",
		Short:         "SQL execution-flow visualizer",
		Long:          "Trace how a SELECT statement flows through the logical SQL execution order, row by row.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newVisualizeCmd())
	rootCmd.AddCommand(newSchemaCmd())

	return rootCmd
}
