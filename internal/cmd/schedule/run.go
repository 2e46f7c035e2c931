package schedule

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dbtlearn/orchestrator/internal/cmdtypes"
	"github.com/dbtlearn/orchestrator/internal/cmdutil"
	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
	"github.com/dbtlearn/orchestrator/internal/output"
	"github.com/dbtlearn/orchestrator/internal/schedule"
)

type runOptions struct {
	gc   *cmdtypes.GlobalConfig
	once bool
	name string
	out  io.Writer
	now  func() time.Time
}

// NewRunCmd creates the schedule run command.
func NewRunCmd(gc *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &runOptions{gc: gc, now: time.Now}

	c := &cobra.Command{
		Use:   "run",
		Short: "Run the schedule daemon",
		Long: `Run the project's schedules until interrupted.

Each tick is claimed in the run ledger before it runs, so two daemons
sharing a ledger never run the same tick twice.

With --once the most recent tick of each schedule is evaluated immediately
and the command exits. A tick that was already claimed is skipped.

Examples:
  # Run the daemon in the foreground
  dbtlearn schedule run

  # Catch up on the latest tick from a system cron job
  dbtlearn schedule run --once`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			opts.out = c.OutOrStdout()
			return runRun(c.Context(), opts)
		},
	}

	c.Flags().BoolVar(&opts.once, "once", false, "Evaluate the latest tick of each schedule and exit")
	c.Flags().StringVar(&opts.name, "schedule", "", "Only run this schedule")

	return c
}

func runRun(ctx context.Context, opts *runOptions) error {
	env, err := cmdutil.LoadEnvironment(ctx, opts.gc)
	if err != nil {
		return cmdutil.PrintedExit("loading project", err)
	}

	schedules := env.Definitions.Schedules
	if opts.name != "" {
		s, err := env.Definitions.Schedule(opts.name)
		if err != nil {
			return cmdutil.PrintedExit("resolving schedule", err)
		}
		schedules = []*schedule.Definition{s}
	}

	store, err := cmdutil.OpenLedger(opts.gc)
	if err != nil {
		return cmdutil.PrintedExit("opening run ledger", err)
	}
	defer store.Close()

	m := env.NewMaterializer(store, opts.gc != nil && opts.gc.Verbose)
	d := schedule.NewDaemon(m, store, schedules...)

	if !opts.once {
		return d.Run(ctx)
	}

	var errs []error
	now := opts.now()
	for _, s := range schedules {
		tick, ok := s.PreviousTick(now)
		if !ok {
			output.Warn("no tick in the last week", "schedule", s.Name)
			continue
		}
		if err := d.Tick(ctx, s, tick); err != nil {
			errs = append(errs, err)
		}
	}

	failed := 0
	for _, r := range d.Results() {
		if r.Skipped {
			fmt.Fprintf(opts.out, "%s: tick %s already claimed, skipped\n",
				output.StyleNoun.Render(r.Schedule), r.Tick.Format(time.RFC3339))
			continue
		}
		for _, run := range r.Runs {
			cmdutil.WriteRunSummary(opts.out, run)
			if !run.Succeeded() {
				failed++
			}
		}
	}

	if len(errs) > 0 {
		return &cmdtypes.ExitError{
			Code: cmdtypes.ExitToolFailed,
			Err:  errors.Join(errs...),
		}
	}
	if failed > 0 {
		return &cmdtypes.ExitError{
			Code:    cmdtypes.ExitToolFailed,
			Err:     fmt.Errorf("%w: %d scheduled run(s) failed", oerrors.ErrToolFailed, failed),
			Printed: true,
		}
	}
	return nil
}
