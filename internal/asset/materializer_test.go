package asset

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbtlearn/orchestrator/internal/dbt"
	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
	"github.com/dbtlearn/orchestrator/internal/partition"
)

func newTestMaterializer(runner dbt.Runner, rec Recorder) *Materializer {
	m := NewMaterializer(runner, rec)
	now := time.Date(2025, 3, 2, 5, 0, 0, 0, time.UTC)
	m.Now = func() time.Time { return now }
	n := 0
	m.NewRunID = func() string {
		n++
		return fmt.Sprintf("run-%04d-0000", n)
	}
	return m
}

func fullDefinition(t *testing.T) *Definition {
	t.Helper()
	def, err := NewDefinition(loadManifest(t), DefinitionOptions{
		Name:    "full",
		Exclude: "fct_reviews",
		Compute: buildCompute(true),
	})
	require.NoError(t, err)
	return def
}

func partitionedDefinition(t *testing.T, compute ComputeFunc) *Definition {
	t.Helper()
	if compute == nil {
		compute = buildCompute(false)
	}
	def, err := NewDefinition(loadManifest(t), DefinitionOptions{
		Name:       "partitioned",
		Select:     "fct_reviews",
		Partitions: partition.MustDaily("2025-01-01", nil),
		Compute:    compute,
	})
	require.NoError(t, err)
	return def
}

func TestMaterialize_Success(t *testing.T) {
	runner := &fakeRunner{stream: func([]string, dbt.RunOptions) *fakeStream {
		return &fakeStream{events: []dbt.Event{
			dbt.ParseEvent("Running with dbt=1.8.7"),
			event("model.dbtlearn.dim_listings_cleansed", "success"),
			event("test.dbtlearn.not_null_dim_listings_cleansed_listing_id", "pass"),
			event("model.dbtlearn.dim_hosts_cleansed", "success"),
		}}
	}}
	rec := newMemRecorder()
	m := newTestMaterializer(runner, rec)

	result, err := m.Materialize(context.Background(), fullDefinition(t), MaterializeOptions{})
	require.NoError(t, err)

	assert.True(t, result.Succeeded())
	assert.Equal(t, "full", result.Run.Job)
	require.Len(t, result.Materializations, 2)
	assert.Equal(t, "dim_listings_cleansed", result.Materializations[0].AssetKey)
	assert.Equal(t, time.Date(2025, 3, 2, 5, 0, 1, 0, time.UTC), result.Materializations[0].Timestamp)
	require.Len(t, result.Checks, 1)
	assert.Equal(t, "not_null_dim_listings_cleansed_listing_id", result.Checks[0].Name)
	assert.Equal(t, "dim_listings_cleansed", result.Checks[0].AssetKey)
	assert.True(t, result.Checks[0].Passed)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"build"}, runner.calls[0].args)
	assert.Equal(t, dbt.RunOptions{Select: "fqn:*", Exclude: "fct_reviews", RaiseOnError: true}, runner.calls[0].opts)

	assert.Len(t, rec.mats, 2)
	assert.Len(t, rec.checks, 1)
	assert.Equal(t, RunSuccess, rec.runs[result.Run.ID].Status)
	assert.Equal(t, []string{result.Run.ID}, rec.finished)
}

func TestMaterialize_RaisedFailure(t *testing.T) {
	toolErr := &dbt.CommandError{Args: []string{"build"}, ExitCode: 1}
	runner := &fakeRunner{stream: func([]string, dbt.RunOptions) *fakeStream {
		return &fakeStream{
			events: []dbt.Event{
				event("model.dbtlearn.dim_hosts_cleansed", "success"),
				event("model.dbtlearn.dim_listings_cleansed", "error"),
			},
			err: toolErr,
		}
	}}
	rec := newMemRecorder()
	m := newTestMaterializer(runner, rec)

	result, err := m.Materialize(context.Background(), fullDefinition(t), MaterializeOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, oerrors.ErrToolFailed))

	require.NotNil(t, result)
	assert.Equal(t, RunFailure, result.Run.Status)
	assert.Equal(t, []string{"model.dbtlearn.dim_listings_cleansed"}, result.Failures)
	assert.Len(t, result.Materializations, 1)
	assert.Equal(t, RunFailure, rec.runs[result.Run.ID].Status)
	assert.Contains(t, rec.runs[result.Run.ID].Error, "exit code 1")
}

func TestMaterialize_CapturedFailureKeepsPartialSuccess(t *testing.T) {
	runner := &fakeRunner{stream: func([]string, dbt.RunOptions) *fakeStream {
		return &fakeStream{events: []dbt.Event{
			event("model.dbtlearn.fct_reviews", "success"),
			event("test.dbtlearn.not_null_fct_reviews_listing_id", "fail"),
			{Name: dbt.EventMainEncounteredError, Message: "Database Error"},
		}}
	}}
	rec := newMemRecorder()
	m := newTestMaterializer(runner, rec)

	result, err := m.Materialize(context.Background(), partitionedDefinition(t, nil), MaterializeOptions{PartitionKey: "2025-03-01"})
	require.NoError(t, err)

	assert.False(t, result.Succeeded())
	assert.Equal(t, RunFailure, result.Run.Status)
	assert.Equal(t, []string{"Database Error"}, result.Failures)
	require.Len(t, result.Materializations, 1)
	assert.Equal(t, "2025-03-01", result.Materializations[0].PartitionKey)
	require.Len(t, result.Checks, 1)
	assert.False(t, result.Checks[0].Passed)

	assert.False(t, runner.calls[0].opts.RaiseOnError)
	assert.Equal(t, "fct_reviews", runner.calls[0].opts.Select)
	assert.Equal(t, "2025-03-01", rec.runs[result.Run.ID].PartitionKey)
	assert.Equal(t, RunFailure, rec.runs[result.Run.ID].Status)
}

func TestMaterialize_CapturedExitCodeWithoutFailureEvents(t *testing.T) {
	tests := []struct {
		name         string
		stream       *fakeStream
		wantFailures []string
		wantError    string
	}{
		{
			name:         "non-zero exit and no events",
			stream:       &fakeStream{exitCode: 2},
			wantFailures: []string{"dbt exited with code 2"},
			wantError:    "dbt exited with code 2",
		},
		{
			name: "node failure already explains the exit",
			stream: &fakeStream{
				events:   []dbt.Event{event("model.dbtlearn.fct_reviews", "error")},
				exitCode: 1,
			},
			wantFailures: []string{"model.dbtlearn.fct_reviews"},
			wantError:    "1 dbt node(s) failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{stream: func([]string, dbt.RunOptions) *fakeStream { return tt.stream }}
			rec := newMemRecorder()
			m := newTestMaterializer(runner, rec)

			result, err := m.Materialize(context.Background(), partitionedDefinition(t, nil), MaterializeOptions{PartitionKey: "2025-03-01"})
			require.NoError(t, err)
			assert.Equal(t, RunFailure, result.Run.Status)
			assert.Equal(t, tt.wantFailures, result.Failures)
			assert.Equal(t, tt.wantError, rec.runs[result.Run.ID].Error)
		})
	}
}

func TestMaterialize_ComputeError(t *testing.T) {
	def := partitionedDefinition(t, func(*ExecutionContext, dbt.Runner) (dbt.Stream, error) {
		return nil, errors.New("boom")
	})
	rec := newMemRecorder()
	m := newTestMaterializer(&fakeRunner{}, rec)

	result, err := m.Materialize(context.Background(), def, MaterializeOptions{PartitionKey: "2025-03-01"})
	require.EqualError(t, err, "boom")
	assert.Equal(t, RunFailure, result.Run.Status)
	assert.Equal(t, "boom", rec.runs[result.Run.ID].Error)
}

func TestMaterialize_PartitionKeyValidation(t *testing.T) {
	tests := []struct {
		name string
		def  func(t *testing.T) *Definition
		key  string
	}{
		{"partitioned without key", func(t *testing.T) *Definition { return partitionedDefinition(t, nil) }, ""},
		{"partitioned with bad key", func(t *testing.T) *Definition { return partitionedDefinition(t, nil) }, "2024-12-31"},
		{"unpartitioned with key", fullDefinition, "2025-03-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			rec := newMemRecorder()
			m := newTestMaterializer(runner, rec)

			_, err := m.Materialize(context.Background(), tt.def(t), MaterializeOptions{PartitionKey: tt.key})
			require.Error(t, err)
			assert.True(t, errors.Is(err, oerrors.ErrValidation))
			assert.Empty(t, runner.calls)
			assert.Empty(t, rec.runs)
		})
	}
}

func TestMaterialize_SelectOverride(t *testing.T) {
	runner := &fakeRunner{stream: func([]string, dbt.RunOptions) *fakeStream { return &fakeStream{} }}
	m := newTestMaterializer(runner, nil)

	result, err := m.Materialize(context.Background(), fullDefinition(t), MaterializeOptions{
		Job:    "materialize_dbt_models",
		Select: "tag:dim",
	})
	require.NoError(t, err)
	assert.Equal(t, "materialize_dbt_models", result.Run.Job)
	assert.Equal(t, "tag:dim", runner.calls[0].opts.Select)
	assert.Equal(t, "fct_reviews", runner.calls[0].opts.Exclude)
}

func TestBackfill(t *testing.T) {
	def := partitionedDefinition(t, func(ec *ExecutionContext, runner dbt.Runner) (dbt.Stream, error) {
		if ec.PartitionKey == "2025-03-02" {
			return nil, errors.New("warehouse unavailable")
		}
		return runner.Run(ec.Context(), []string{"build"}, ec.DBTOptions(false))
	})
	runner := &fakeRunner{stream: func([]string, dbt.RunOptions) *fakeStream {
		return &fakeStream{events: []dbt.Event{event("model.dbtlearn.fct_reviews", "success")}}
	}}
	rec := newMemRecorder()
	m := NewMaterializer(runner, rec)

	keys := []string{"2025-03-01", "2025-03-02", "2025-03-03"}
	results, err := m.Backfill(context.Background(), def, keys, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, key := range keys {
		assert.Equal(t, key, results[i].PartitionKey)
	}
	assert.False(t, results[0].Failed())
	assert.True(t, results[1].Failed())
	assert.EqualError(t, results[1].Err, "warehouse unavailable")
	assert.False(t, results[2].Failed())
	assert.Equal(t, "partitioned_backfill", results[0].Result.Run.Job)

	assert.Len(t, runner.calls, 2)
	assert.Len(t, rec.mats, 2)
	assert.Len(t, rec.finished, 3)
}

func TestBackfill_Invalid(t *testing.T) {
	m := NewMaterializer(&fakeRunner{}, nil)

	_, err := m.Backfill(context.Background(), fullDefinition(t), []string{"2025-03-01"}, 1)
	assert.True(t, errors.Is(err, oerrors.ErrValidation))

	_, err = m.Backfill(context.Background(), partitionedDefinition(t, nil), []string{"2025-03-01", "bad"}, 1)
	assert.True(t, errors.Is(err, oerrors.ErrValidation))
}

func TestBackfill_CancelledContext(t *testing.T) {
	runner := &fakeRunner{stream: func([]string, dbt.RunOptions) *fakeStream { return &fakeStream{} }}
	m := NewMaterializer(runner, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := m.Backfill(ctx, partitionedDefinition(t, nil), []string{"2025-03-01", "2025-03-02"}, 1)
	require.NoError(t, err)
	for _, r := range results {
		assert.True(t, errors.Is(r.Err, context.Canceled))
		assert.True(t, r.Failed())
	}
	assert.Empty(t, runner.calls)
}
