// Package partitions provides the `dbtlearn partitions` command group.
package partitions

import (
	"github.com/spf13/cobra"

	"github.com/dbtlearn/orchestrator/internal/cmdtypes"
)

// NewPartitionsCmd creates the partitions command group.
func NewPartitionsCmd(gc *cmdtypes.GlobalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:   "partitions",
		Short: "Partition operations",
		Long:  `Commands for inspecting the daily partitions of partitioned asset groups.`,
	}

	c.AddCommand(NewListCmd(gc))

	return c
}
