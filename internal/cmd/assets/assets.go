// Package assets provides the `dbtlearn assets` command group.
package assets

import (
	"github.com/spf13/cobra"

	"github.com/dbtlearn/orchestrator/internal/cmdtypes"
)

// NewAssetsCmd creates the assets command group.
func NewAssetsCmd(gc *cmdtypes.GlobalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:   "assets",
		Short: "Asset operations",
		Long:  `Commands for inspecting the assets declared from the dbt manifest.`,
	}

	c.AddCommand(
		NewListCmd(gc),
		NewDiffCmd(gc),
	)

	return c
}
