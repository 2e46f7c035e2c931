package schedule

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dbtlearn/orchestrator/internal/cmdtypes"
	"github.com/dbtlearn/orchestrator/internal/cmdutil"
	"github.com/dbtlearn/orchestrator/internal/output"
	"github.com/dbtlearn/orchestrator/internal/schedule"
)

const tickLayout = "2006-01-02 15:04 MST"

type listOptions struct {
	gc  *cmdtypes.GlobalConfig
	out io.Writer
	now func() time.Time
}

// NewListCmd creates the schedule list command.
func NewListCmd(gc *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &listOptions{gc: gc, now: time.Now}

	return &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		Long: `List the project's schedules with their next tick and the last tick
recorded in the run ledger.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			opts.out = c.OutOrStdout()
			return runList(c.Context(), opts)
		},
	}
}

func runList(ctx context.Context, opts *listOptions) error {
	env, err := cmdutil.LoadEnvironment(ctx, opts.gc)
	if err != nil {
		return cmdutil.PrintedExit("loading project", err)
	}

	store, err := cmdutil.OpenLedger(opts.gc)
	if err != nil {
		return cmdutil.PrintedExit("opening run ledger", err)
	}
	defer store.Close()

	now := opts.now()
	tbl := output.NewTable("SCHEDULE", "CRON", "TIMEZONE", "SELECT", "TARGETS", "NEXT TICK", "LAST TICK")
	for _, s := range env.Definitions.Schedules {
		last := "-"
		t, ok, err := store.LastTick(ctx, s.Name)
		if err != nil {
			return cmdutil.PrintedExit("reading run ledger", err)
		}
		if ok {
			last = t.In(s.Location).Format(tickLayout)
		}
		tbl.Row(
			output.StyleNoun.Render(s.Name),
			s.Cron,
			s.Location.String(),
			s.Select,
			targetNames(s),
			s.Next(now).In(s.Location).Format(tickLayout),
			last,
		)
	}
	fmt.Fprintln(opts.out, tbl.String())
	return nil
}

func targetNames(s *schedule.Definition) string {
	names := ""
	for i, t := range s.Targets {
		if i > 0 {
			names += ", "
		}
		names += t.Name
	}
	return names
}
