package config

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbtlearn/orchestrator/internal/cmdtypes"
	"github.com/dbtlearn/orchestrator/internal/config"
	"github.com/dbtlearn/orchestrator/internal/output"
)

type viewOptions struct {
	gc  *cmdtypes.GlobalConfig
	out io.Writer
}

// NewConfigViewCmd creates the config view command.
func NewConfigViewCmd(gc *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &viewOptions{gc: gc}

	return &cobra.Command{
		Use:   "view",
		Short: "Show the resolved configuration",
		Long: `Show the flag-backed configuration values and where each came from.

Values are resolved with the precedence flag > DBTLEARN_* environment >
config file > default. Lower-precedence values that were overridden are
listed as shadowed.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			opts.out = c.OutOrStdout()
			return runView(opts)
		},
	}
}

func runView(opts *viewOptions) error {
	if opts.gc == nil || opts.gc.Resolved == nil {
		return fmt.Errorf("configuration was not resolved")
	}
	fmt.Fprintln(opts.out, resolvedTable(opts.gc.Resolved.Values()))
	return nil
}

func resolvedTable(values []config.ResolvedValue) string {
	tbl := output.NewTable("KEY", "VALUE", "SOURCE", "SHADOWED")
	for _, v := range values {
		value := v.Value
		if value == "" {
			value = "-"
		}
		tbl.Row(v.Key, value, string(v.Source), shadowedText(v.Shadowed))
	}
	return tbl.String()
}

func shadowedText(shadowed map[config.ConfigSource]string) string {
	if len(shadowed) == 0 {
		return ""
	}
	parts := make([]string, 0, len(shadowed))
	for source, value := range shadowed {
		parts = append(parts, fmt.Sprintf("%s=%s", source, value))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}
