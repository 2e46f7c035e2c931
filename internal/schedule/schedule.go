// Package schedule binds asset definitions to cron schedules and runs them.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dbtlearn/orchestrator/internal/asset"
	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
)

// Definition is a cron schedule that materializes a set of asset
// definitions with a dbt selection applied at tick time.
type Definition struct {
	Name     string
	Job      string
	Cron     string
	Select   string
	Location *time.Location
	Targets  []*asset.Definition

	spec cron.Schedule
}

// Option configures BuildFromSelection.
type Option func(*Definition)

// WithLocation evaluates the cron expression in loc instead of UTC.
func WithLocation(loc *time.Location) Option {
	return func(d *Definition) {
		if loc != nil {
			d.Location = loc
		}
	}
}

// BuildFromSelection creates a schedule named <job>_schedule that runs the
// given definitions with dbtSelect on every cron tick. Each target keeps its
// own exclude expression.
func BuildFromSelection(defs []*asset.Definition, job, cronExpr, dbtSelect string, opts ...Option) (*Definition, error) {
	if job == "" {
		return nil, fmt.Errorf("%w: schedule job name is required", oerrors.ErrValidation)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: schedule %s has no asset definitions", oerrors.ErrValidation, job)
	}

	d := &Definition{
		Name:     job + "_schedule",
		Job:      job,
		Cron:     cronExpr,
		Select:   dbtSelect,
		Location: time.UTC,
		Targets:  defs,
	}
	for _, opt := range opts {
		opt(d)
	}

	spec, err := cron.ParseStandard("CRON_TZ=" + d.Location.String() + " " + cronExpr)
	if err != nil {
		return nil, oerrors.NewValidationError(
			fmt.Sprintf("invalid cron expression %q: %v", cronExpr, err),
			d.Name,
			"cron",
			"use five fields: minute hour day-of-month month day-of-week",
		)
	}
	d.spec = spec
	return d, nil
}

// Next returns the first tick strictly after t.
func (d *Definition) Next(t time.Time) time.Time {
	return d.spec.Next(t)
}

// NextTicks returns the next n ticks after t.
func (d *Definition) NextTicks(t time.Time, n int) []time.Time {
	ticks := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		t = d.spec.Next(t)
		if t.IsZero() {
			break
		}
		ticks = append(ticks, t)
	}
	return ticks
}

// PreviousTick returns the latest tick at or before now, searching back at
// most one week plus a day. The boolean is false when none was found.
func (d *Definition) PreviousTick(now time.Time) (time.Time, bool) {
	var last time.Time
	t := now.Add(-8 * 24 * time.Hour)
	for {
		next := d.spec.Next(t)
		if next.IsZero() || next.After(now) {
			break
		}
		last = next
		t = next
	}
	return last, !last.IsZero()
}

// Execute materializes every target for the tick. Partitioned targets run
// the most recent complete partition as of the tick. All targets are
// attempted; the returned error joins the failures.
func (d *Definition) Execute(ctx context.Context, m *asset.Materializer, tick time.Time) ([]*asset.RunResult, error) {
	var (
		results []*asset.RunResult
		errs    []error
	)
	for _, def := range d.Targets {
		opts := asset.MaterializeOptions{Job: d.Job, Select: d.Select}
		if def.Partitioned() {
			key, ok := def.Partitions.LastKey(tick)
			if !ok {
				errs = append(errs, fmt.Errorf("%s: no complete partition of %s at %s",
					d.Name, def.Name, tick.Format(time.RFC3339)))
				continue
			}
			opts.PartitionKey = key
		}

		res, err := m.Materialize(ctx, def, opts)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", def.Name, err))
		}
	}
	return results, errors.Join(errs...)
}
