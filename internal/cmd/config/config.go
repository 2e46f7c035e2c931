// Package config provides CLI command implementations for the config command group.
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbtlearn/orchestrator/internal/cmdtypes"
	"github.com/dbtlearn/orchestrator/internal/config"
)

// NewConfigCmd creates the config command group.
func NewConfigCmd(gc *cmdtypes.GlobalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  `Configuration management for the dbtlearn CLI.`,
	}

	c.AddCommand(
		NewConfigInitCmd(gc),
		NewConfigVetCmd(gc),
		NewConfigViewCmd(gc),
	)

	return c
}

// configFilePath returns the expanded config file location: the resolved
// --config value, else the default path.
func configFilePath(gc *cmdtypes.GlobalConfig) (string, error) {
	configFile := ""
	if gc != nil {
		configFile = gc.ConfigPath
	}
	if configFile == "" {
		var err error
		configFile, err = config.GetConfigFile()
		if err != nil {
			return "", fmt.Errorf("getting config file path: %w", err)
		}
	}

	expandedPath, err := config.ExpandPath(configFile)
	if err != nil {
		return "", fmt.Errorf("expanding config path: %w", err)
	}
	return expandedPath, nil
}
