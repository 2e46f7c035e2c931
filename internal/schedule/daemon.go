package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dbtlearn/orchestrator/internal/asset"
	"github.com/dbtlearn/orchestrator/internal/output"
)

// TickClaimer records that a tick has been handled. ClaimTick returns false
// when another process already claimed the same tick.
type TickClaimer interface {
	ClaimTick(ctx context.Context, schedule string, tick time.Time) (bool, error)
}

// Daemon fires schedules on their cron ticks.
type Daemon struct {
	schedules    []*Definition
	materializer *asset.Materializer
	claims       TickClaimer

	// now is replaceable for tests.
	now func() time.Time

	mu      sync.Mutex
	results []TickResult
}

// maxResults bounds the tick history a long-running daemon keeps.
const maxResults = 256

// TickResult is the outcome of one evaluated tick.
type TickResult struct {
	Schedule string
	Tick     time.Time
	Skipped  bool
	Runs     []*asset.RunResult
	Err      error
}

// NewDaemon creates a daemon. A nil claimer runs every tick.
func NewDaemon(m *asset.Materializer, claims TickClaimer, schedules ...*Definition) *Daemon {
	return &Daemon{
		schedules:    schedules,
		materializer: m,
		claims:       claims,
		now:          time.Now,
	}
}

// Run starts cron and blocks until ctx is cancelled. In-flight ticks see
// the cancelled context and Run waits for them before returning.
func (d *Daemon) Run(ctx context.Context) error {
	if len(d.schedules) == 0 {
		return fmt.Errorf("no schedules to run")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	for _, s := range d.schedules {
		c.Schedule(s.spec, cron.FuncJob(func() { _ = d.fire(ctx, s) }))
		output.Info("schedule registered",
			"schedule", output.StyleNoun.Render(s.Name),
			"cron", s.Cron,
			"next", s.Next(d.now()).Format(time.RFC3339),
		)
	}

	c.Start()
	<-ctx.Done()
	output.Info("stopping schedule daemon")
	<-c.Stop().Done()
	return nil
}

// fire runs the tick cron woke up for. The tick is taken from the schedule
// so a late wakeup claims the same tick as "schedule run --once".
func (d *Daemon) fire(ctx context.Context, s *Definition) error {
	now := d.now().In(s.Location)
	tick := now.Truncate(time.Second)
	if _, every := s.spec.(cron.ConstantDelaySchedule); !every {
		if prev, ok := s.PreviousTick(now); ok {
			tick = prev
		}
	}
	return d.Tick(ctx, s, tick)
}

// Tick evaluates one tick of s: it claims the tick, then executes the
// schedule. A tick claimed elsewhere is skipped.
func (d *Daemon) Tick(ctx context.Context, s *Definition, tick time.Time) error {
	result := TickResult{Schedule: s.Name, Tick: tick}
	defer func() { d.record(result) }()

	if d.claims != nil {
		claimed, err := d.claims.ClaimTick(ctx, s.Name, tick)
		if err != nil {
			result.Err = fmt.Errorf("claiming tick %s of %s: %w", tick.Format(time.RFC3339), s.Name, err)
			output.Error("tick claim failed", "schedule", s.Name, "error", err)
			return result.Err
		}
		if !claimed {
			result.Skipped = true
			output.Debug("tick already claimed", "schedule", s.Name, "tick", tick.Format(time.RFC3339))
			return nil
		}
	}

	output.Info("schedule tick", "schedule", output.StyleNoun.Render(s.Name), "tick", tick.Format(time.RFC3339))
	result.Runs, result.Err = s.Execute(ctx, d.materializer, tick)
	if result.Err != nil {
		output.Error("schedule tick failed", "schedule", s.Name, "error", result.Err)
	}
	return result.Err
}

func (d *Daemon) record(r TickResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, r)
	if n := len(d.results) - maxResults; n > 0 {
		d.results = append(d.results[:0], d.results[n:]...)
	}
}

// Results returns the most recent ticks evaluated, oldest first.
func (d *Daemon) Results() []TickResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]TickResult(nil), d.results...)
}
