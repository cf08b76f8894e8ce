package cmd

import (
	"fmt"

	"github.com/harrison/testmeta/internal/routes"
	"github.com/spf13/cobra"
)

// NewRoutesCommand creates the routes command
func NewRoutesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List reserved metadata paths",
		Long: `List the metadata paths written by the collector itself. Custom routes
that resolve to one of these paths are rejected.

{id} and {testindex} match any test identity and run index.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range routes.ReservedPaths() {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	return cmd
}
