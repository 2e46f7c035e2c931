// Package schedule provides the `dbtlearn schedule` command group.
package schedule

import (
	"github.com/spf13/cobra"

	"github.com/dbtlearn/orchestrator/internal/cmdtypes"
)

// NewScheduleCmd creates the schedule command group.
func NewScheduleCmd(gc *cmdtypes.GlobalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule operations",
		Long:  `Commands for inspecting and running the cron schedules of the project.`,
	}

	c.AddCommand(
		NewListCmd(gc),
		NewRunCmd(gc),
	)

	return c
}
