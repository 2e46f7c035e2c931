package assets

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbtlearn/orchestrator/internal/asset"
	"github.com/dbtlearn/orchestrator/internal/cmdtypes"
	"github.com/dbtlearn/orchestrator/internal/cmdutil"
	"github.com/dbtlearn/orchestrator/internal/output"
)

type listOptions struct {
	gc     *cmdtypes.GlobalConfig
	output cmdutil.OutputFlags
	group  string
	out    io.Writer
}

// NewListCmd creates the assets list command.
func NewListCmd(gc *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &listOptions{gc: gc}

	c := &cobra.Command{
		Use:   "list",
		Short: "List assets",
		Long: `List every asset declared from the dbt manifest.

Each dbt model, seed and snapshot becomes one asset keyed by its node name.
Assets are grouped into the full-refresh group and the partitioned group.

Examples:
  # Table of all assets
  dbtlearn assets list

  # Only the partitioned group, as JSON
  dbtlearn assets list --group dbtlearn_partitioned_dbt_assets -o json`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			opts.out = c.OutOrStdout()
			return runList(c.Context(), opts)
		},
	}

	opts.output.AddTo(c)
	c.Flags().StringVar(&opts.group, "group", "", "Only list assets of this group")

	return c
}

func runList(ctx context.Context, opts *listOptions) error {
	format, err := opts.output.Parse()
	if err != nil {
		return cmdutil.PrintedExit("invalid flags", err)
	}

	env, err := cmdutil.LoadEnvironment(ctx, opts.gc)
	if err != nil {
		return cmdutil.PrintedExit("loading project", err)
	}

	specs := env.Definitions.Specs()
	if opts.group != "" {
		def, err := env.Definitions.Asset(opts.group)
		if err != nil {
			return cmdutil.PrintedExit("resolving asset group", err)
		}
		specs = def.Specs
	}

	if format != output.FormatTable {
		return output.WriteStructured(opts.out, format, specs)
	}
	fmt.Fprintln(opts.out, specsTable(specs))
	return nil
}

func specsTable(specs []asset.Spec) string {
	tbl := output.NewTable("ASSET", "GROUP", "PARTITIONED", "DEPS", "CHECKS")
	for _, s := range specs {
		partitioned := "no"
		if s.Partitioned {
			partitioned = "daily"
		}
		deps := "-"
		if len(s.Deps) > 0 {
			deps = strings.Join(s.Deps, ", ")
		}
		tbl.Row(output.StyleNoun.Render(s.Key), s.Group, partitioned, deps, fmt.Sprint(len(s.Checks)))
	}
	return tbl.String()
}
