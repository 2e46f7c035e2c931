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

type materializeOptions struct {
	gc        *cmdtypes.GlobalConfig
	group     string
	partition string
	selection string
	out       io.Writer
	now       func() time.Time
}

// NewMaterializeCmd creates the materialize command.
func NewMaterializeCmd(gc *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &materializeOptions{gc: gc, now: time.Now}

	c := &cobra.Command{
		Use:   "materialize <group>",
		Short: "Run one asset group",
		Long: `Materialize the assets of one group with a single dbt build.

The full-refresh group runs 'dbt build' and fails the run as soon as dbt
exits non-zero. The partitioned group runs one partition with
--vars '{"start_date": ..., "end_date": ...}'; dbt failures are recorded on
the run instead of aborting it.

Every run is recorded in the run ledger.

Arguments:
  group    Asset group name (see 'dbtlearn assets list')

Examples:
  # Rebuild every full-refresh model
  dbtlearn materialize dbtlearn_dbt_assets

  # Build fct_reviews for March 1st
  dbtlearn materialize dbtlearn_partitioned_dbt_assets --partition 2025-03-01

  # Only rebuild the hosts models
  dbtlearn materialize dbtlearn_dbt_assets --select 'dim_hosts_cleansed+'`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			opts.group = args[0]
			opts.out = c.OutOrStdout()
			return runMaterialize(c.Context(), opts)
		},
	}

	c.Flags().StringVar(&opts.partition, "partition", "",
		"Partition key, YYYY-MM-DD (default: latest complete partition)")
	c.Flags().StringVar(&opts.selection, "select", "",
		"Override the group's dbt selection")

	return c
}

func runMaterialize(ctx context.Context, opts *materializeOptions) error {
	env, err := cmdutil.LoadEnvironment(ctx, opts.gc)
	if err != nil {
		return cmdutil.PrintedExit("loading project", err)
	}

	def, err := env.Definitions.Asset(opts.group)
	if err != nil {
		return cmdutil.PrintedExit("resolving asset group", err)
	}

	key := opts.partition
	if def.Partitioned() && key == "" {
		last, ok := def.Partitions.LastKey(opts.now())
		if !ok {
			return cmdutil.PrintedExit("resolving partition", fmt.Errorf(
				"%w: no complete partition of %s yet (first partition is %s)",
				oerrors.ErrValidation, def.Name, def.Partitions.StartKey()))
		}
		key = last
		output.Debug("defaulting to latest complete partition", "partition", key)
	}

	store, err := cmdutil.OpenLedger(opts.gc)
	if err != nil {
		return cmdutil.PrintedExit("opening run ledger", err)
	}
	defer store.Close()

	m := env.NewMaterializer(store, opts.gc != nil && opts.gc.Verbose)
	result, err := m.Materialize(ctx, def, asset.MaterializeOptions{
		PartitionKey: key,
		Select:       opts.selection,
	})
	if result != nil {
		cmdutil.WriteRunSummary(opts.out, result)
	}
	if err != nil {
		return cmdutil.PrintedExit("materialization failed", err)
	}
	if !result.Succeeded() {
		return &cmdtypes.ExitError{
			Code:    cmdtypes.ExitToolFailed,
			Err:     fmt.Errorf("%w: run %s finished with status %s", oerrors.ErrToolFailed, result.Run.ID, result.Run.Status),
			Printed: true,
		}
	}
	return nil
}
