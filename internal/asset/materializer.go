package asset

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dbtlearn/orchestrator/internal/dbt"
	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
	"github.com/dbtlearn/orchestrator/internal/output"
)

// MaterializeOptions configures a single run.
type MaterializeOptions struct {
	// Job names the run in the ledger. Defaults to the definition name.
	Job string

	// PartitionKey is required for partitioned definitions and rejected
	// for the rest.
	PartitionKey string

	// Select overrides the definition's dbt selection.
	Select string
}

// RunResult summarizes a finished run.
type RunResult struct {
	Run              Run               `json:"run"`
	Materializations []Materialization `json:"materializations,omitempty"`
	Checks           []CheckResult     `json:"checks,omitempty"`
	Failures         []string          `json:"failures,omitempty"`
}

// Succeeded reports whether the run finished with SUCCESS.
func (r *RunResult) Succeeded() bool {
	return r.Run.Status == RunSuccess
}

// Materializer runs definitions and records the outcome.
type Materializer struct {
	Runner   dbt.Runner
	Recorder Recorder

	// Now and NewRunID are replaceable for tests.
	Now      func() time.Time
	NewRunID func() string
}

// NewMaterializer creates a Materializer. A nil recorder discards records.
func NewMaterializer(runner dbt.Runner, recorder Recorder) *Materializer {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Materializer{
		Runner:   runner,
		Recorder: recorder,
		Now:      time.Now,
		NewRunID: uuid.NewString,
	}
}

// Materialize runs def once. Events are consumed as dbt emits them;
// materializations and checks are recorded immediately. The returned error
// is non-nil only when the compute function or the tool raised. A run whose
// failures were captured in the stream returns a FAILURE result and a nil
// error.
func (m *Materializer) Materialize(ctx context.Context, def *Definition, opts MaterializeOptions) (*RunResult, error) {
	if err := validatePartitionKey(def, opts.PartitionKey); err != nil {
		return nil, err
	}

	job := opts.Job
	if job == "" {
		job = def.Name
	}
	run := Run{
		ID:           m.NewRunID(),
		Job:          job,
		Group:        def.Name,
		PartitionKey: opts.PartitionKey,
		Status:       RunStarted,
		StartedAt:    m.Now().UTC(),
	}
	if err := m.Recorder.StartRun(ctx, run); err != nil {
		return nil, fmt.Errorf("recording run start: %w", err)
	}

	logger := output.AssetLogger(def.Name).With("run", shortID(run.ID))
	if run.PartitionKey != "" {
		logger = logger.With("partition", run.PartitionKey)
	}
	logger.Info("run started", "job", job)

	ec := NewExecutionContext(ctx, run.ID, def, opts.PartitionKey, logger)
	ec.Select = opts.Select

	result := &RunResult{Run: run}

	stream, err := def.Compute(ec, m.Runner)
	if err != nil {
		return m.finish(ctx, result, err)
	}

	for ev := range stream.Events() {
		if err := m.handleEvent(ec, result, ev); err != nil {
			// Drain so the subprocess can exit before reporting.
			_ = stream.Wait()
			return m.finish(ctx, result, err)
		}
	}

	waitErr := stream.Wait()
	// dbt can fail before any node runs (bad profile, unparseable --vars)
	// and emit no failure event. Captured runs still fail on its exit code.
	if waitErr == nil && len(result.Failures) == 0 {
		if code := stream.ExitCode(); code != 0 {
			result.Run.Error = fmt.Sprintf("dbt exited with code %d", code)
			result.Failures = append(result.Failures, result.Run.Error)
		}
	}
	return m.finish(ctx, result, waitErr)
}

func (m *Materializer) handleEvent(ec *ExecutionContext, result *RunResult, ev dbt.Event) error {
	ctx := ec.Context()
	switch ev.Kind() {
	case dbt.KindMaterialization:
		spec, ok := ec.Definition.SpecForUniqueID(ev.UniqueID)
		if !ok {
			ec.Log.Debug("dbt built a node outside the definition", "unique_id", ev.UniqueID)
			return nil
		}
		mat := Materialization{
			RunID:         ec.RunID,
			AssetKey:      spec.Key,
			PartitionKey:  ec.PartitionKey,
			UniqueID:      ev.UniqueID,
			Status:        ev.NodeStatus,
			ExecutionTime: ev.ExecutionTime,
			Timestamp:     m.eventTime(ev),
			Metadata:      spec.Metadata,
		}
		if err := m.Recorder.RecordMaterialization(ctx, mat); err != nil {
			return fmt.Errorf("recording materialization of %s: %w", spec.Key, err)
		}
		result.Materializations = append(result.Materializations, mat)
		ec.Log.Info(output.FormatAssetLine(spec.Key, ec.PartitionKey, output.StatusMaterialized),
			"duration", fmt.Sprintf("%.2fs", ev.ExecutionTime))

	case dbt.KindCheck:
		check := CheckResult{
			RunID:     ec.RunID,
			Name:      checkName(ev),
			AssetKey:  m.checkAssetKey(ec.Definition, ev),
			Passed:    ev.Passed(),
			Status:    ev.NodeStatus,
			Message:   ev.Message,
			Timestamp: m.eventTime(ev),
		}
		if err := m.Recorder.RecordCheck(ctx, check); err != nil {
			return fmt.Errorf("recording check %s: %w", check.Name, err)
		}
		result.Checks = append(result.Checks, check)
		status := output.StatusPassed
		if !check.Passed {
			status = output.StatusFailed
		}
		ec.Log.Info(output.FormatAssetLine(check.Name, "", status))

	case dbt.KindFailure:
		name := ev.UniqueID
		if name == "" {
			name = ev.Message
		}
		result.Failures = append(result.Failures, name)
		if spec, ok := ec.Definition.SpecForUniqueID(ev.UniqueID); ok {
			ec.Log.Error(output.FormatAssetLine(spec.Key, ec.PartitionKey, output.StatusFailed))
		} else {
			ec.Log.Error("dbt reported an error", "message", ev.Message)
		}

	default:
		switch ev.Level {
		case "error":
			ec.Log.Error(ev.Message)
		case "warn":
			ec.Log.Warn(ev.Message)
		case "debug":
			ec.Log.Debug(ev.Message)
		default:
			ec.Log.Debug(ev.Message, "event", ev.Name)
		}
	}
	return nil
}

// finish records the final status. Captured failures mark the run FAILURE
// without turning into an error.
func (m *Materializer) finish(ctx context.Context, result *RunResult, runErr error) (*RunResult, error) {
	result.Run.FinishedAt = m.Now().UTC()
	switch {
	case runErr != nil:
		result.Run.Status = RunFailure
		result.Run.Error = runErr.Error()
	case len(result.Failures) > 0:
		result.Run.Status = RunFailure
		if result.Run.Error == "" {
			result.Run.Error = fmt.Sprintf("%d dbt node(s) failed", len(result.Failures))
		}
	default:
		result.Run.Status = RunSuccess
	}

	// The run outcome is recorded even when the caller's context is done.
	recordCtx := context.WithoutCancel(ctx)
	if err := m.Recorder.FinishRun(recordCtx, result.Run.ID, result.Run.Status, result.Run.FinishedAt, result.Run.Error); err != nil {
		return result, errors.Join(runErr, fmt.Errorf("recording run finish: %w", err))
	}

	logger := output.AssetLogger(result.Run.Group).With("run", shortID(result.Run.ID))
	if result.Succeeded() {
		logger.Info("run succeeded", "materialized", len(result.Materializations), "checks", len(result.Checks))
	} else {
		logger.Error("run failed", "error", result.Run.Error)
	}
	return result, runErr
}

// BackfillResult is the outcome of one partition in a backfill.
type BackfillResult struct {
	PartitionKey string     `json:"partition_key"`
	Result       *RunResult `json:"result,omitempty"`
	Err          error      `json:"-"`
}

// Failed reports whether the partition did not succeed.
func (b BackfillResult) Failed() bool {
	return b.Err != nil || b.Result == nil || !b.Result.Succeeded()
}

// Backfill materializes each partition key of def with at most concurrency
// runs in flight. A failed partition does not stop the others. Results are
// returned in key order. The error is non-nil only when the request itself
// is invalid.
func (m *Materializer) Backfill(ctx context.Context, def *Definition, keys []string, concurrency int) ([]BackfillResult, error) {
	if !def.Partitioned() {
		return nil, fmt.Errorf("%w: %s is not partitioned", oerrors.ErrValidation, def.Name)
	}
	for _, key := range keys {
		if err := validatePartitionKey(def, key); err != nil {
			return nil, err
		}
	}
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]BackfillResult, len(keys))
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for i, key := range keys {
		g.Go(func() error {
			res := BackfillResult{PartitionKey: key}
			if err := ctx.Err(); err != nil {
				res.Err = err
			} else {
				res.Result, res.Err = m.Materialize(ctx, def, MaterializeOptions{
					Job:          def.Name + "_backfill",
					PartitionKey: key,
				})
			}
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func validatePartitionKey(def *Definition, key string) error {
	if !def.Partitioned() {
		if key != "" {
			return fmt.Errorf("%w: %s is not partitioned, got partition key %q", oerrors.ErrValidation, def.Name, key)
		}
		return nil
	}
	if key == "" {
		return fmt.Errorf("%w: %s is partitioned, a partition key is required", oerrors.ErrValidation, def.Name)
	}
	if _, err := def.Partitions.TimeWindowForKey(key); err != nil {
		return err
	}
	return nil
}

func (m *Materializer) eventTime(ev dbt.Event) time.Time {
	if !ev.Timestamp.IsZero() {
		return ev.Timestamp.UTC()
	}
	return m.Now().UTC()
}

// checkAssetKey finds the asset a dbt test is attached to.
func (m *Materializer) checkAssetKey(def *Definition, ev dbt.Event) string {
	name := checkName(ev)
	for _, s := range def.Specs {
		for _, c := range s.Checks {
			if c == name {
				return s.Key
			}
		}
	}
	return ""
}

func checkName(ev dbt.Event) string {
	if ev.NodeName != "" {
		return ev.NodeName
	}
	// test.<package>.<name>[.<hash>]
	parts := strings.SplitN(ev.UniqueID, ".", 4)
	if len(parts) >= 3 {
		return parts[2]
	}
	return ev.UniqueID
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
