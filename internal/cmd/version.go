package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dbtlearn/orchestrator/internal/cmdtypes"
	"github.com/dbtlearn/orchestrator/internal/cmdutil"
	"github.com/dbtlearn/orchestrator/internal/output"
	"github.com/dbtlearn/orchestrator/internal/version"
)

// NewVersionCmd creates the version command.
func NewVersionCmd(gc *cmdtypes.GlobalConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Show dbtlearn version information.

Displays:
  - dbtlearn version, commit, and build date
  - CUE SDK version (embedded in CLI, used for config validation)
  - dbt-core version, binary path and installed adapters`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			executable := cmdutil.EffectiveConfig(gc).DBT.Executable
			dbtInfo := version.DetectDBT(c.Context(), executable)
			if dbtInfo.Found && !dbtInfo.Compatible {
				output.Warn("dbt version mismatch",
					"min", version.MinDBTVersion,
					"binary", dbtInfo.Version,
					"message", dbtInfo.Message,
				)
			}
			output.Println(version.FullVersionString(version.Get(), dbtInfo))
			return nil
		},
	}
}
