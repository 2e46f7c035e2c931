package runs

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dbtlearn/orchestrator/internal/cmdtypes"
	"github.com/dbtlearn/orchestrator/internal/cmdutil"
	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
	"github.com/dbtlearn/orchestrator/internal/output"
)

type listOptions struct {
	gc     *cmdtypes.GlobalConfig
	limit  int
	output cmdutil.OutputFlags
	out    io.Writer
}

// NewListCmd creates the runs list command.
func NewListCmd(gc *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &listOptions{gc: gc}

	c := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Long: `List runs recorded in the run ledger, newest first.

Examples:
  # The last 20 runs
  dbtlearn runs list

  # Every run as YAML
  dbtlearn runs list --limit 0 -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			opts.out = c.OutOrStdout()
			return runList(c.Context(), opts)
		},
	}

	c.Flags().IntVar(&opts.limit, "limit", 20, "Maximum number of runs to show (0 for all)")
	opts.output.AddTo(c)

	return c
}

func runList(ctx context.Context, opts *listOptions) error {
	format, err := opts.output.Parse()
	if err != nil {
		return cmdutil.PrintedExit("invalid flags", err)
	}
	if opts.limit < 0 {
		return cmdutil.PrintedExit("invalid flags",
			fmt.Errorf("%w: --limit must not be negative", oerrors.ErrValidation))
	}

	store, err := cmdutil.OpenLedger(opts.gc)
	if err != nil {
		return cmdutil.PrintedExit("opening run ledger", err)
	}
	defer store.Close()

	rs, err := store.ListRuns(ctx, opts.limit)
	if err != nil {
		return cmdutil.PrintedExit("reading run ledger", err)
	}

	if format != output.FormatTable {
		return output.WriteStructured(opts.out, format, rs)
	}
	if len(rs) == 0 {
		fmt.Fprintln(opts.out, "No runs recorded.")
		return nil
	}
	fmt.Fprintln(opts.out, cmdutil.RunsTable(rs))
	return nil
}
