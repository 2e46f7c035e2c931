// Package cmd provides CLI command implementations.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dbtlearn/orchestrator/internal/cmd/assets"
	configcmd "github.com/dbtlearn/orchestrator/internal/cmd/config"
	"github.com/dbtlearn/orchestrator/internal/cmd/partitions"
	runscmd "github.com/dbtlearn/orchestrator/internal/cmd/runs"
	schedulecmd "github.com/dbtlearn/orchestrator/internal/cmd/schedule"
	"github.com/dbtlearn/orchestrator/internal/cmdtypes"
	"github.com/dbtlearn/orchestrator/internal/cmdutil"
	"github.com/dbtlearn/orchestrator/internal/config"
	"github.com/dbtlearn/orchestrator/internal/output"
)

// rootFlags holds the persistent flags shared by every sub-command.
type rootFlags struct {
	config      string
	projectDir  string
	profilesDir string
	target      string
	database    string
	verbose     bool
	timestamps  bool
}

// NewRootCmd creates the root command for the dbtlearn CLI.
func NewRootCmd() *cobra.Command {
	var flags rootFlags
	gc := &cmdtypes.GlobalConfig{}

	rootCmd := &cobra.Command{
		Use:   "dbtlearn",
		Short: "dbt orchestration CLI",
		Long: `dbtlearn turns the models of a dbt project into assets and runs them.

Models are split into two asset groups:
  - a full-refresh group built with a plain 'dbt build'
  - a partitioned group built once per day with --vars start_date/end_date

The full-refresh group is materialized daily by a cron schedule.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			return initializeGlobals(c, &flags, gc)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.config, "config", "", "Path to config file (env: DBTLEARN_CONFIG)")
	pf.StringVar(&flags.projectDir, "project-dir", "", "dbt project directory (env: DBTLEARN_PROJECT_DIR)")
	pf.StringVar(&flags.profilesDir, "profiles-dir", "", "dbt profiles directory (env: DBTLEARN_PROJECT_PROFILES_DIR)")
	pf.StringVar(&flags.target, "target", "", "dbt target (env: DBTLEARN_PROJECT_TARGET)")
	pf.StringVar(&flags.database, "database", "", "Run ledger SQLite file (env: DBTLEARN_RUNS_DATABASE)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose output")
	pf.BoolVar(&flags.timestamps, "timestamps", true, "Show timestamps in log output")

	rootCmd.AddCommand(
		assets.NewAssetsCmd(gc),
		NewMaterializeCmd(gc),
		NewBackfillCmd(gc),
		partitions.NewPartitionsCmd(gc),
		schedulecmd.NewScheduleCmd(gc),
		runscmd.NewRunsCmd(gc),
		configcmd.NewConfigCmd(gc),
		NewVersionCmd(gc),
	)

	return rootCmd
}

// initializeGlobals loads configuration into gc and sets up logging.
func initializeGlobals(c *cobra.Command, flags *rootFlags, gc *cmdtypes.GlobalConfig) error {
	loaded, err := cmdutil.LoadGlobalConfig(config.ResolveAllOptions{
		ConfigFlag:      flags.config,
		ProjectDirFlag:  flags.projectDir,
		ProfilesDirFlag: flags.profilesDir,
		TargetFlag:      flags.target,
		DatabaseFlag:    flags.database,
	})
	if err != nil {
		return err
	}
	*gc = *loaded
	gc.Verbose = flags.verbose

	// Timestamps: flag (if explicitly set) > config > default (nil = true)
	logCfg := output.LogConfig{Verbose: flags.verbose}
	if c.Flags().Changed("timestamps") {
		logCfg.Timestamps = output.BoolPtr(flags.timestamps)
	} else if gc.Config.Log.Timestamps != nil {
		logCfg.Timestamps = gc.Config.Log.Timestamps
	}
	output.SetupLogging(logCfg)

	if flags.verbose {
		config.LogResolvedValues(gc.Resolved.Values())
	}

	return nil
}
