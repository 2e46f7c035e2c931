package config

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dbtlearn/orchestrator/internal/cmdtypes"
	"github.com/dbtlearn/orchestrator/internal/config"
)

const configHeader = `# dbtlearn CLI configuration
#
# Every key can be overridden with a DBTLEARN_* environment variable,
# e.g. DBTLEARN_SCHEDULE_CRON for schedule.cron.

`

type initOptions struct {
	gc    *cmdtypes.GlobalConfig
	force bool
	out   io.Writer
}

// NewConfigInitCmd creates the config init command.
func NewConfigInitCmd(gc *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &initOptions{gc: gc}

	c := &cobra.Command{
		Use:   "init",
		Short: "Create a new dbtlearn configuration file",
		Long: `Create a new dbtlearn configuration file with default values.

The configuration file is created at ~/.dbtlearn/config.yaml by default.
Use --config flag to specify a different location.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			opts.out = c.OutOrStdout()
			return runInit(opts)
		},
	}

	c.Flags().BoolVarP(&opts.force, "force", "f", false, "Overwrite existing config file")

	return c
}

func runInit(opts *initOptions) error {
	expandedPath, err := configFilePath(opts.gc)
	if err != nil {
		return err
	}

	exists, err := config.ConfigFileExists(expandedPath)
	if err != nil {
		return fmt.Errorf("checking config file: %w", err)
	}
	if exists && !opts.force {
		return &cmdtypes.ExitError{
			Code: cmdtypes.ExitGeneralError,
			Err:  fmt.Errorf("config file already exists at %s (use --force to overwrite)", expandedPath),
		}
	}

	if err := config.EnsureParentDir(expandedPath); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(config.DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	data = append([]byte(configHeader), data...)

	if err := os.WriteFile(expandedPath, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Fprintf(opts.out, "Config file created: %s\n", expandedPath)
	return nil
}
