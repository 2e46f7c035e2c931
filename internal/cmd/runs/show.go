package runs

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dbtlearn/orchestrator/internal/asset"
	"github.com/dbtlearn/orchestrator/internal/cmdtypes"
	"github.com/dbtlearn/orchestrator/internal/cmdutil"
	"github.com/dbtlearn/orchestrator/internal/output"
)

type showOptions struct {
	gc     *cmdtypes.GlobalConfig
	runID  string
	output cmdutil.OutputFlags
	out    io.Writer
}

// NewShowCmd creates the runs show command.
func NewShowCmd(gc *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &showOptions{gc: gc}

	c := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run",
		Long: `Show a run with its materializations and check results.

Arguments:
  run-id    Full run id (see 'dbtlearn runs list -o yaml')`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			opts.runID = args[0]
			opts.out = c.OutOrStdout()
			return runShow(c.Context(), opts)
		},
	}

	opts.output.AddTo(c)

	return c
}

func runShow(ctx context.Context, opts *showOptions) error {
	format, err := opts.output.Parse()
	if err != nil {
		return cmdutil.PrintedExit("invalid flags", err)
	}

	store, err := cmdutil.OpenLedger(opts.gc)
	if err != nil {
		return cmdutil.PrintedExit("opening run ledger", err)
	}
	defer store.Close()

	run, err := store.GetRun(ctx, opts.runID)
	if err != nil {
		return cmdutil.PrintedExit("reading run", err)
	}
	mats, err := store.Materializations(ctx, run.ID)
	if err != nil {
		return cmdutil.PrintedExit("reading run", err)
	}
	checks, err := store.Checks(ctx, run.ID)
	if err != nil {
		return cmdutil.PrintedExit("reading run", err)
	}

	result := &asset.RunResult{Run: run, Materializations: mats, Checks: checks}
	if format != output.FormatTable {
		return output.WriteStructured(opts.out, format, result)
	}

	fmt.Fprintln(opts.out, cmdutil.RunsTable([]asset.Run{run}))
	for _, m := range mats {
		fmt.Fprintln(opts.out, output.FormatAssetLine(m.AssetKey, m.PartitionKey, output.StatusMaterialized))
	}
	for _, c := range checks {
		status := output.StatusPassed
		if !c.Passed {
			status = output.StatusFailed
		}
		fmt.Fprintln(opts.out, output.FormatAssetLine(c.Name, "", status))
	}
	return nil
}
