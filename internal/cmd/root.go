package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for testmeta
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "testmeta",
		Short: "Test run metadata collector",
		Long: `testmeta records structured metadata about a test run: session timing
and totals, every test with its runs and their setup, call and teardown
stages, captured output, and user-defined custom metadata.

It consumes a lifecycle event stream from any harness (replay) or the
output of "go test -json" (gotest), exports the result as JSON or YAML,
and can keep a history of sessions to find flaky tests.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.AddCommand(NewReplayCommand())
	cmd.AddCommand(NewGoTestCommand())
	cmd.AddCommand(NewReportCommand())
	cmd.AddCommand(NewHistoryCommand())
	cmd.AddCommand(NewRoutesCommand())

	return cmd
}
