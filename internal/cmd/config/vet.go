package config

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dbtlearn/orchestrator/internal/cmdtypes"
	"github.com/dbtlearn/orchestrator/internal/cmdutil"
	"github.com/dbtlearn/orchestrator/internal/config"
)

type vetOptions struct {
	gc  *cmdtypes.GlobalConfig
	out io.Writer
	err io.Writer
}

// NewConfigVetCmd creates the config vet command.
func NewConfigVetCmd(gc *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &vetOptions{gc: gc}

	return &cobra.Command{
		Use:   "vet",
		Short: "Validate the dbtlearn configuration file",
		Long: `Validate the dbtlearn configuration file against the internal schema.

Besides the schema, the cron expression, time zones and the first partition
date are checked with the same parsers used at run time.

The command validates the configuration file at ~/.dbtlearn/config.yaml by
default. Use --config flag to specify a different location.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			opts.out = c.OutOrStdout()
			opts.err = c.ErrOrStderr()
			return runVet(opts)
		},
	}
}

func runVet(opts *vetOptions) error {
	expandedPath, err := configFilePath(opts.gc)
	if err != nil {
		return err
	}

	exists, err := config.ConfigFileExists(expandedPath)
	if err != nil {
		return fmt.Errorf("checking config file: %w", err)
	}
	if !exists {
		return &cmdtypes.ExitError{
			Code: cmdtypes.ExitNotFound,
			Err:  fmt.Errorf("config file not found: %s", expandedPath),
		}
	}

	validator, err := config.NewValidator()
	if err != nil {
		return fmt.Errorf("creating validator: %w", err)
	}

	if err := validator.ValidateFile(expandedPath); err != nil {
		var validationErrs config.ValidationErrors
		if errors.As(err, &validationErrs) {
			cmdutil.WriteConfigValidationErrors(opts.err, expandedPath, validationErrs)
			return &cmdtypes.ExitError{Code: cmdtypes.ExitValidationError, Err: err, Printed: true}
		}
		return fmt.Errorf("validating config: %w", err)
	}

	fmt.Fprintf(opts.out, "Config file is valid: %s\n", expandedPath)
	return nil
}
