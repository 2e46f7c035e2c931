package asset

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbtlearn/orchestrator/internal/dbt"
	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
	"github.com/dbtlearn/orchestrator/internal/partition"
	"github.com/dbtlearn/orchestrator/internal/testutil"
)

type fakeStream struct {
	events   []dbt.Event
	err      error
	exitCode int
	once     sync.Once
}

func (s *fakeStream) Events() iter.Seq[dbt.Event] {
	first := false
	s.once.Do(func() { first = true })
	return func(yield func(dbt.Event) bool) {
		if !first {
			return
		}
		for _, ev := range s.events {
			if !yield(ev) {
				return
			}
		}
	}
}

func (s *fakeStream) Wait() error {
	return s.err
}

func (s *fakeStream) ExitCode() int {
	return s.exitCode
}

type runCall struct {
	args []string
	opts dbt.RunOptions
}

type fakeRunner struct {
	mu     sync.Mutex
	calls  []runCall
	stream func(args []string, opts dbt.RunOptions) *fakeStream
}

func (r *fakeRunner) Run(_ context.Context, args []string, opts dbt.RunOptions) (dbt.Stream, error) {
	r.mu.Lock()
	r.calls = append(r.calls, runCall{args: args, opts: opts})
	r.mu.Unlock()
	return r.stream(args, opts), nil
}

type memRecorder struct {
	mu       sync.Mutex
	runs     map[string]Run
	mats     []Materialization
	checks   []CheckResult
	finished []string
}

func newMemRecorder() *memRecorder {
	return &memRecorder{runs: map[string]Run{}}
}

func (r *memRecorder) StartRun(_ context.Context, run Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
	return nil
}

func (r *memRecorder) FinishRun(_ context.Context, runID string, status RunStatus, finishedAt time.Time, errText string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run := r.runs[runID]
	run.Status = status
	run.FinishedAt = finishedAt
	run.Error = errText
	r.runs[runID] = run
	r.finished = append(r.finished, runID)
	return nil
}

func (r *memRecorder) RecordMaterialization(_ context.Context, m Materialization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mats = append(r.mats, m)
	return nil
}

func (r *memRecorder) RecordCheck(_ context.Context, c CheckResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, c)
	return nil
}

func loadManifest(t *testing.T) *dbt.Manifest {
	t.Helper()
	m, err := dbt.LoadManifest(testutil.ManifestPath(t))
	require.NoError(t, err)
	return m
}

func buildCompute(raise bool) ComputeFunc {
	return func(ec *ExecutionContext, runner dbt.Runner) (dbt.Stream, error) {
		return runner.Run(ec.Context(), []string{"build"}, ec.DBTOptions(raise))
	}
}

func event(uniqueID, status string) dbt.Event {
	return dbt.ParseEvent(testutil.JSONLine(uniqueID, status))
}

func TestNewDefinition(t *testing.T) {
	m := loadManifest(t)

	def, err := NewDefinition(m, DefinitionOptions{
		Name:    "full",
		Exclude: "fct_reviews",
		Compute: buildCompute(true),
	})
	require.NoError(t, err)

	assert.Equal(t, dbt.SelectAll, def.Select)
	assert.False(t, def.Partitioned())
	assert.Equal(t, []string{
		"dim_hosts_cleansed",
		"dim_listings_cleansed",
		"dim_listings_w_hosts",
		"mart_fullmoon_reviews",
		"scd_raw_listings",
		"seed_full_moon_dates",
	}, def.Keys())

	spec, ok := def.Spec("dim_listings_cleansed")
	require.True(t, ok)
	assert.Equal(t, "model.dbtlearn.dim_listings_cleansed", spec.UniqueID)
	assert.Equal(t, "full", spec.Group)
	assert.Equal(t, []string{"airbnb/listings"}, spec.Deps)
	assert.Equal(t, []string{
		"not_null_dim_listings_cleansed_listing_id",
		"unique_dim_listings_cleansed_listing_id",
	}, spec.Checks)
	assert.Equal(t, "AIRBNB.DEV.dim_listings_cleansed", spec.Metadata["table_name"])

	byID, ok := def.SpecForUniqueID("model.dbtlearn.mart_fullmoon_reviews")
	require.True(t, ok)
	assert.Equal(t, []string{"fct_reviews", "seed_full_moon_dates"}, byID.Deps)

	_, ok = def.SpecForUniqueID("model.dbtlearn.fct_reviews")
	assert.False(t, ok)
}

func TestNewDefinition_CustomMetadataAndPartitions(t *testing.T) {
	m := loadManifest(t)
	daily := partition.MustDaily("2025-01-01", nil)

	def, err := NewDefinition(m, DefinitionOptions{
		Name:       "partitioned",
		Select:     "fct_reviews",
		Partitions: daily,
		Metadata: func(n dbt.Node) map[string]any {
			return dbt.MergeMetadata(dbt.DefaultMetadata(n), map[string]any{"partition_expr": "date"})
		},
		Compute: buildCompute(false),
	})
	require.NoError(t, err)

	require.Len(t, def.Specs, 1)
	spec := def.Specs[0]
	assert.Equal(t, "fct_reviews", spec.Key)
	assert.True(t, spec.Partitioned)
	assert.Equal(t, "date", spec.Metadata["partition_expr"])
	assert.Equal(t, "incremental", spec.Metadata["materialization"])
	assert.Equal(t, []string{"not_null_fct_reviews_listing_id"}, spec.Checks)
}

func TestNewDefinition_Errors(t *testing.T) {
	m := loadManifest(t)

	tests := []struct {
		name string
		opts DefinitionOptions
	}{
		{"missing name", DefinitionOptions{Compute: buildCompute(true)}},
		{"missing compute", DefinitionOptions{Name: "x"}},
		{"empty selection", DefinitionOptions{Name: "x", Select: "tag:nothing", Compute: buildCompute(true)}},
		{"bad selector", DefinitionOptions{Name: "x", Select: "nope:x", Compute: buildCompute(true)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDefinition(m, tt.opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, oerrors.ErrValidation))
		})
	}
}

func TestExecutionContext(t *testing.T) {
	m := loadManifest(t)
	daily := partition.MustDaily("2025-01-01", nil)

	partitioned, err := NewDefinition(m, DefinitionOptions{
		Name: "p", Select: "fct_reviews", Partitions: daily, Compute: buildCompute(false),
	})
	require.NoError(t, err)
	full, err := NewDefinition(m, DefinitionOptions{
		Name: "f", Exclude: "fct_reviews", Compute: buildCompute(true),
	})
	require.NoError(t, err)

	t.Run("partition window", func(t *testing.T) {
		ec := NewExecutionContext(context.Background(), "run-1", partitioned, "2025-03-01", nil)
		w, err := ec.PartitionTimeWindow()
		require.NoError(t, err)
		assert.Equal(t, "2025-03-01", w.StartDate())
		assert.Equal(t, "2025-03-02", w.EndDate())
	})

	t.Run("missing partition key", func(t *testing.T) {
		ec := NewExecutionContext(context.Background(), "run-1", partitioned, "", nil)
		_, err := ec.PartitionTimeWindow()
		assert.True(t, errors.Is(err, oerrors.ErrValidation))
	})

	t.Run("unpartitioned definition", func(t *testing.T) {
		ec := NewExecutionContext(context.Background(), "run-1", full, "", nil)
		_, err := ec.PartitionTimeWindow()
		assert.True(t, errors.Is(err, oerrors.ErrValidation))
	})

	t.Run("dbt options follow the definition", func(t *testing.T) {
		ec := NewExecutionContext(context.Background(), "run-1", full, "", nil)
		assert.Equal(t, dbt.RunOptions{Select: "fqn:*", Exclude: "fct_reviews", RaiseOnError: true}, ec.DBTOptions(true))
	})

	t.Run("run select overrides definition select", func(t *testing.T) {
		ec := NewExecutionContext(context.Background(), "run-1", full, "", nil)
		ec.Select = "tag:dim"
		opts := ec.DBTOptions(false)
		assert.Equal(t, "tag:dim", opts.Select)
		assert.Equal(t, "fct_reviews", opts.Exclude)
		assert.False(t, opts.RaiseOnError)
	})
}
