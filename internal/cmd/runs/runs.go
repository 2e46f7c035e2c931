// Package runs provides the `dbtlearn runs` command group.
package runs

import (
	"github.com/spf13/cobra"

	"github.com/dbtlearn/orchestrator/internal/cmdtypes"
)

// NewRunsCmd creates the runs command group.
func NewRunsCmd(gc *cmdtypes.GlobalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:   "runs",
		Short: "Run history",
		Long:  `Commands for reading the run ledger.`,
	}

	c.AddCommand(
		NewListCmd(gc),
		NewShowCmd(gc),
	)

	return c
}
