package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dbtlearn/orchestrator/internal/asset"
	"github.com/dbtlearn/orchestrator/internal/cmdtypes"
	"github.com/dbtlearn/orchestrator/internal/cmdutil"
	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
	"github.com/dbtlearn/orchestrator/internal/output"
)

type backfillOptions struct {
	gc          *cmdtypes.GlobalConfig
	group       string
	rangeFlags  cmdutil.PartitionRangeFlags
	concurrency int
	out         io.Writer
	now         func() time.Time
}

// NewBackfillCmd creates the backfill command.
func NewBackfillCmd(gc *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &backfillOptions{gc: gc, now: time.Now}

	c := &cobra.Command{
		Use:   "backfill [group]",
		Short: "Materialize a range of partitions",
		Long: `Materialize every partition of a partitioned asset group in a key range.

Each partition is a separate run with its own --vars window. A failed
partition does not stop the others; the command exits non-zero if any
partition failed.

Arguments:
  group    Partitioned asset group (default: the configured partitioned group)

Examples:
  # Backfill March 2025
  dbtlearn backfill --from 2025-03-01 --to 2025-03-31

  # Backfill every complete partition, four at a time
  dbtlearn backfill --concurrency 4`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			opts.group = cmdutil.ResolveGroupName(args, "")
			opts.out = c.OutOrStdout()
			return runBackfill(c.Context(), opts)
		},
	}

	opts.rangeFlags.AddTo(c)
	c.Flags().IntVar(&opts.concurrency, "concurrency", 1,
		"Maximum number of partitions built at once")

	return c
}

func runBackfill(ctx context.Context, opts *backfillOptions) error {
	if err := opts.rangeFlags.Validate(); err != nil {
		return cmdutil.PrintedExit("invalid partition range", err)
	}
	if opts.concurrency < 1 {
		return cmdutil.PrintedExit("invalid concurrency",
			fmt.Errorf("%w: --concurrency must be at least 1, got %d", oerrors.ErrValidation, opts.concurrency))
	}

	env, err := cmdutil.LoadEnvironment(ctx, opts.gc)
	if err != nil {
		return cmdutil.PrintedExit("loading project", err)
	}

	group := opts.group
	if group == "" {
		group = env.Definitions.Partitioned.Name
	}
	def, err := env.Definitions.Asset(group)
	if err != nil {
		return cmdutil.PrintedExit("resolving asset group", err)
	}
	if !def.Partitioned() {
		return cmdutil.PrintedExit("resolving asset group",
			fmt.Errorf("%w: %s is not partitioned, use 'dbtlearn materialize %s'", oerrors.ErrValidation, def.Name, def.Name))
	}

	keys, err := backfillKeys(def, opts.rangeFlags, opts.now())
	if err != nil {
		return cmdutil.PrintedExit("resolving partition range", err)
	}

	store, err := cmdutil.OpenLedger(opts.gc)
	if err != nil {
		return cmdutil.PrintedExit("opening run ledger", err)
	}
	defer store.Close()

	output.AssetLogger(def.Name).Info("backfill started",
		"partitions", len(keys), "from", keys[0], "to", keys[len(keys)-1], "concurrency", opts.concurrency)

	m := env.NewMaterializer(store, opts.gc != nil && opts.gc.Verbose)
	results, err := m.Backfill(ctx, def, keys, opts.concurrency)
	if err != nil {
		return cmdutil.PrintedExit("backfill failed", err)
	}

	fmt.Fprintln(opts.out, backfillTable(results))

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	if failed > 0 {
		return &cmdtypes.ExitError{
			Code: cmdtypes.ExitToolFailed,
			Err:  fmt.Errorf("%w: %d of %d partitions failed", oerrors.ErrToolFailed, failed, len(results)),
		}
	}
	fmt.Fprintln(opts.out, output.FormatCheckmark(fmt.Sprintf("backfilled %d partitions of %s", len(results), def.Name)))
	return nil
}

// backfillKeys expands the requested range. Missing bounds default to the
// first partition and the latest complete partition.
func backfillKeys(def *asset.Definition, r cmdutil.PartitionRangeFlags, now time.Time) ([]string, error) {
	from := r.From
	if from == "" {
		from = def.Partitions.StartKey()
	}
	to := r.To
	if to == "" {
		last, ok := def.Partitions.LastKey(now)
		if !ok {
			return nil, fmt.Errorf("%w: no complete partition of %s yet", oerrors.ErrValidation, def.Name)
		}
		to = last
	}
	return def.Partitions.KeysBetween(from, to)
}

func backfillTable(results []asset.BackfillResult) string {
	tbl := output.NewTable("PARTITION", "STATUS", "RUN", "MATERIALIZED", "ERROR")
	for _, r := range results {
		status := output.StatusStyle(output.StatusMaterialized).Render(string(asset.RunSuccess))
		if r.Failed() {
			status = output.StatusStyle(output.StatusFailed).Render(string(asset.RunFailure))
		}
		runID, materialized, errText := "-", "0", ""
		if r.Result != nil {
			runID = r.Result.Run.ID
			if len(runID) > 8 {
				runID = runID[:8]
			}
			materialized = fmt.Sprint(len(r.Result.Materializations))
			errText = r.Result.Run.Error
		}
		if r.Err != nil {
			errText = r.Err.Error()
		}
		tbl.Row(r.PartitionKey, status, runID, materialized, errText)
	}
	return tbl.String()
}
