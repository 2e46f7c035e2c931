package partitions

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dbtlearn/orchestrator/internal/cmdtypes"
	"github.com/dbtlearn/orchestrator/internal/cmdutil"
	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
	"github.com/dbtlearn/orchestrator/internal/output"
	"github.com/dbtlearn/orchestrator/internal/partition"
)

// Status is the materialization state of one partition.
type Status struct {
	Key    string `json:"key"`
	Start  string `json:"start_date"`
	End    string `json:"end_date"`
	Status string `json:"status"`
}

type listOptions struct {
	gc         *cmdtypes.GlobalConfig
	group      string
	rangeFlags cmdutil.PartitionRangeFlags
	output     cmdutil.OutputFlags
	out        io.Writer
	now        func() time.Time
}

// NewListCmd creates the partitions list command.
func NewListCmd(gc *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &listOptions{gc: gc, now: time.Now}

	c := &cobra.Command{
		Use:   "list",
		Short: "List partitions and their status",
		Long: `List the complete daily partitions of a partitioned asset group.

A partition is complete once its day has ended. Each partition is reported
as materialized when the run ledger holds a materialization for it, and as
missing otherwise.

Examples:
  # Every partition of the partitioned group
  dbtlearn partitions list

  # March 2025 only
  dbtlearn partitions list --from 2025-03-01 --to 2025-03-31`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			opts.out = c.OutOrStdout()
			return runList(c.Context(), opts)
		},
	}

	c.Flags().StringVar(&opts.group, "group", "", "Partitioned asset group (default: the configured partitioned group)")
	opts.rangeFlags.AddTo(c)
	opts.output.AddTo(c)

	return c
}

func runList(ctx context.Context, opts *listOptions) error {
	format, err := opts.output.Parse()
	if err != nil {
		return cmdutil.PrintedExit("invalid flags", err)
	}
	if err := opts.rangeFlags.Validate(); err != nil {
		return cmdutil.PrintedExit("invalid partition range", err)
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
			fmt.Errorf("%w: %s is not partitioned", oerrors.ErrValidation, def.Name))
	}

	store, err := cmdutil.OpenLedger(opts.gc)
	if err != nil {
		return cmdutil.PrintedExit("opening run ledger", err)
	}
	defer store.Close()

	materialized, err := store.MaterializedPartitions(ctx, def.Name)
	if err != nil {
		return cmdutil.PrintedExit("reading run ledger", err)
	}

	statuses, err := partitionStatuses(def.Partitions, opts.rangeFlags, opts.now(), materialized)
	if err != nil {
		return cmdutil.PrintedExit("listing partitions", err)
	}

	if format != output.FormatTable {
		return output.WriteStructured(opts.out, format, statuses)
	}

	tbl := output.NewTable("PARTITION", "START", "END", "STATUS")
	done := 0
	for _, s := range statuses {
		if s.Status == output.StatusMaterialized {
			done++
		}
		tbl.Row(s.Key, s.Start, s.End, output.StatusStyle(s.Status).Render(s.Status))
	}
	fmt.Fprintln(opts.out, tbl.String())
	fmt.Fprintln(opts.out, output.StyleSummary.Render(
		fmt.Sprintf("%d/%d partitions of %s materialized", done, len(statuses), def.Name)))
	return nil
}

// partitionStatuses lists the complete partitions within r, marking the
// ones present in materialized.
func partitionStatuses(d *partition.Daily, r cmdutil.PartitionRangeFlags, now time.Time, materialized []string) ([]Status, error) {
	done := make(map[string]bool, len(materialized))
	for _, key := range materialized {
		done[key] = true
	}

	var statuses []Status
	for _, key := range d.Keys(now) {
		if r.From != "" && key < r.From {
			continue
		}
		if r.To != "" && key > r.To {
			continue
		}
		w, err := d.TimeWindowForKey(key)
		if err != nil {
			return nil, err
		}
		status := output.StatusMissing
		if done[key] {
			status = output.StatusMaterialized
		}
		statuses = append(statuses, Status{Key: key, Start: w.StartDate(), End: w.EndDate(), Status: status})
	}
	return statuses, nil
}
