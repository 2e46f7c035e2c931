package pipeline

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbtlearn/orchestrator/internal/asset"
	"github.com/dbtlearn/orchestrator/internal/config"
	"github.com/dbtlearn/orchestrator/internal/dbt"
	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
	"github.com/dbtlearn/orchestrator/internal/partition"
	"github.com/dbtlearn/orchestrator/internal/testutil"
)

type stream struct {
	events   []dbt.Event
	err      error
	exitCode int
}

func (s *stream) Events() iter.Seq[dbt.Event] {
	return func(yield func(dbt.Event) bool) {
		for _, ev := range s.events {
			if !yield(ev) {
				return
			}
		}
	}
}

func (s *stream) Wait() error { return s.err }

func (s *stream) ExitCode() int { return s.exitCode }

type call struct {
	args []string
	opts dbt.RunOptions
}

type recordingRunner struct {
	mu     sync.Mutex
	calls  []call
	events []dbt.Event
	err    error
}

func (r *recordingRunner) Run(_ context.Context, args []string, opts dbt.RunOptions) (dbt.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{args: args, opts: opts})
	return &stream{events: r.events, err: r.err}, nil
}

func loadManifest(t *testing.T) *dbt.Manifest {
	t.Helper()
	m, err := dbt.LoadManifest(testutil.ManifestPath(t))
	require.NoError(t, err)
	return m
}

func newDefinitions(t *testing.T) *Definitions {
	t.Helper()
	defs, err := NewDefinitions(config.DefaultConfig(), loadManifest(t))
	require.NoError(t, err)
	return defs
}

func TestNewDefinitions(t *testing.T) {
	defs := newDefinitions(t)

	assert.Equal(t, "dbtlearn_dbt_assets", defs.FullRefresh.Name)
	assert.Equal(t, "fct_reviews", defs.FullRefresh.Exclude)
	assert.False(t, defs.FullRefresh.Partitioned())
	assert.NotContains(t, defs.FullRefresh.Keys(), "fct_reviews")

	assert.Equal(t, "dbtlearn_partitioned_dbt_assets", defs.Partitioned.Name)
	assert.Equal(t, []string{"fct_reviews"}, defs.Partitioned.Keys())
	assert.Same(t, defs.Partitions, defs.Partitioned.Partitions)
	assert.Equal(t, "2025-01-01", defs.Partitions.StartKey())
	assert.Equal(t, time.UTC, defs.Partitions.Location)

	require.Len(t, defs.Schedules, 1)
	s := defs.Schedules[0]
	assert.Equal(t, "materialize_dbt_models_schedule", s.Name)
	assert.Equal(t, "materialize_dbt_models", s.Job)
	assert.Equal(t, "0 5 * * *", s.Cron)
	assert.Equal(t, "fqn:*", s.Select)
	require.Len(t, s.Targets, 1)
	assert.Same(t, defs.FullRefresh, s.Targets[0])
}

func TestNewDefinitions_Overrides(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Partitions.Start = "2025-02-01"
	cfg.Partitions.Timezone = "Europe/Budapest"
	cfg.Schedule.Cron = "30 6 * * 1-5"

	defs, err := NewDefinitions(cfg, loadManifest(t))
	require.NoError(t, err)

	assert.Equal(t, "2025-02-01", defs.Partitions.StartKey())
	assert.Equal(t, "Europe/Budapest", defs.Partitions.Location.String())
	assert.Equal(t, "30 6 * * 1-5", defs.Schedules[0].Cron)
}

func TestNewDefinitions_Errors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{name: "bad partition start", modify: func(c *config.Config) { c.Partitions.Start = "01/01/2025" }},
		{name: "bad partition timezone", modify: func(c *config.Config) { c.Partitions.Timezone = "Mars/Olympus" }},
		{name: "bad schedule timezone", modify: func(c *config.Config) { c.Schedule.Timezone = "Nowhere" }},
		{name: "bad cron", modify: func(c *config.Config) { c.Schedule.Cron = "daily" }},
		{name: "empty partitioned selection", modify: func(c *config.Config) { c.Assets.Partitioned.Select = "no_such_model" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.modify(cfg)
			_, err := NewDefinitions(cfg, loadManifest(t))
			require.Error(t, err)
			assert.True(t, errors.Is(err, oerrors.ErrValidation), "got %v", err)
		})
	}
}

func TestDefinitionsLookup(t *testing.T) {
	defs := newDefinitions(t)

	def, err := defs.Asset("dbtlearn_partitioned_dbt_assets")
	require.NoError(t, err)
	assert.Same(t, defs.Partitioned, def)

	_, err = defs.Asset("nope")
	assert.True(t, errors.Is(err, oerrors.ErrNotFound))

	s, err := defs.Schedule("materialize_dbt_models_schedule")
	require.NoError(t, err)
	assert.Equal(t, "materialize_dbt_models", s.Job)

	_, err = defs.Schedule("nope")
	assert.True(t, errors.Is(err, oerrors.ErrNotFound))

	assert.Len(t, defs.Specs(), len(defs.FullRefresh.Specs)+len(defs.Partitioned.Specs))
}

func TestWindowVars(t *testing.T) {
	w := partition.TimeWindow{
		Start: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
	}
	vars := WindowVars(w)

	assert.Equal(t, map[string]string{"start_date": "2025-03-01", "end_date": "2025-03-02"}, vars.Map())

	js, err := vars.JSON()
	require.NoError(t, err)
	assert.Equal(t, `{"start_date": "2025-03-01", "end_date": "2025-03-02"}`, js)
}

func TestPartitionedBuildArgs(t *testing.T) {
	daily := partition.MustDaily("2025-01-01", nil)
	tests := []struct {
		key  string
		want string
	}{
		{key: "2025-03-01", want: `{"start_date": "2025-03-01", "end_date": "2025-03-02"}`},
		{key: "2025-01-01", want: `{"start_date": "2025-01-01", "end_date": "2025-01-02"}`},
		{key: "2025-02-28", want: `{"start_date": "2025-02-28", "end_date": "2025-03-01"}`},
		{key: "2025-12-31", want: `{"start_date": "2025-12-31", "end_date": "2026-01-01"}`},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			w, err := daily.TimeWindowForKey(tt.key)
			require.NoError(t, err)
			args, err := PartitionedBuildArgs(w)
			require.NoError(t, err)
			assert.Equal(t, []string{"build", "--vars", tt.want}, args)
		})
	}
}

func TestPartitionedMetadata(t *testing.T) {
	m := loadManifest(t)
	for _, n := range m.AssetNodes() {
		if n.ResourceType != dbt.ResourceModel {
			continue
		}
		t.Run(n.Name, func(t *testing.T) {
			got := PartitionedMetadata(n)
			assert.Equal(t, "date", got["partition_expr"])
			for k, v := range dbt.DefaultMetadata(n) {
				assert.Equal(t, v, got[k], "default key %s", k)
			}
		})
	}
}

func TestPartitionedAssets_SpecMetadata(t *testing.T) {
	defs := newDefinitions(t)
	spec, ok := defs.Partitioned.Spec("fct_reviews")
	require.True(t, ok)
	assert.True(t, spec.Partitioned)
	assert.Equal(t, "date", spec.Metadata["partition_expr"])
	assert.Equal(t, "model.dbtlearn.fct_reviews", spec.Metadata["dbt_unique_id"])

	full, ok := defs.FullRefresh.Spec("dim_listings_cleansed")
	require.True(t, ok)
	assert.NotContains(t, full.Metadata, "partition_expr")
}

func TestFullRefresh_InvokesPlainBuildAndRaises(t *testing.T) {
	defs := newDefinitions(t)
	runner := &recordingRunner{}

	_, err := asset.NewMaterializer(runner, nil).Materialize(context.Background(), defs.FullRefresh, asset.MaterializeOptions{})
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"build"}, runner.calls[0].args)
	assert.NotContains(t, runner.calls[0].args, "--vars")
	assert.Equal(t, dbt.RunOptions{Select: "fqn:*", Exclude: "fct_reviews", RaiseOnError: true}, runner.calls[0].opts)
}

func TestFullRefresh_ToolFailureFailsRun(t *testing.T) {
	defs := newDefinitions(t)
	runner := &recordingRunner{
		err: &dbt.CommandError{Args: []string{"build"}, ExitCode: 1},
	}

	result, err := asset.NewMaterializer(runner, nil).Materialize(context.Background(), defs.FullRefresh, asset.MaterializeOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, oerrors.ErrToolFailed))
	assert.Equal(t, asset.RunFailure, result.Run.Status)
}

func TestPartitioned_InvokesBuildWithVarsAndCaptures(t *testing.T) {
	defs := newDefinitions(t)
	runner := &recordingRunner{events: []dbt.Event{
		dbt.ParseEvent(testutil.JSONLine("model.dbtlearn.fct_reviews", "success")),
	}}

	result, err := asset.NewMaterializer(runner, nil).Materialize(context.Background(), defs.Partitioned,
		asset.MaterializeOptions{PartitionKey: "2025-03-01"})
	require.NoError(t, err)
	assert.True(t, result.Succeeded())

	require.Len(t, runner.calls, 1)
	assert.Equal(t,
		[]string{"build", "--vars", `{"start_date": "2025-03-01", "end_date": "2025-03-02"}`},
		runner.calls[0].args)
	assert.Equal(t, dbt.RunOptions{Select: "fct_reviews", RaiseOnError: false}, runner.calls[0].opts)

	require.Len(t, result.Materializations, 1)
	assert.Equal(t, "fct_reviews", result.Materializations[0].AssetKey)
	assert.Equal(t, "2025-03-01", result.Materializations[0].PartitionKey)
}

func TestPartitioned_CapturedFailureDoesNotRaise(t *testing.T) {
	defs := newDefinitions(t)
	runner := &recordingRunner{events: []dbt.Event{
		dbt.ParseEvent(testutil.JSONLine("model.dbtlearn.fct_reviews", "error")),
	}}

	result, err := asset.NewMaterializer(runner, nil).Materialize(context.Background(), defs.Partitioned,
		asset.MaterializeOptions{PartitionKey: "2025-03-01"})
	require.NoError(t, err)
	assert.Equal(t, asset.RunFailure, result.Run.Status)
	assert.Len(t, result.Failures, 1)
}

func TestPartitioned_NonZeroExitWithoutEventsFailsRun(t *testing.T) {
	defs := newDefinitions(t)
	exe := testutil.FakeDBT(t, `
echo 'Traceback (most recent call last):' >&2
echo 'dbt.exceptions.DbtProfileError: Could not find profile named dbtlearn' >&2
exit 2
`)
	cli := &dbt.CLI{Executable: exe, ProjectDir: t.TempDir()}

	result, err := asset.NewMaterializer(cli, nil).Materialize(context.Background(), defs.Partitioned,
		asset.MaterializeOptions{PartitionKey: "2025-03-01"})
	require.NoError(t, err, "captured failures do not raise")
	assert.Equal(t, asset.RunFailure, result.Run.Status)
	assert.Empty(t, result.Materializations)
	assert.Equal(t, []string{"dbt exited with code 2"}, result.Failures)
	assert.Equal(t, "dbt exited with code 2", result.Run.Error)
}

func TestPartitioned_RequiresPartitionKey(t *testing.T) {
	defs := newDefinitions(t)
	ec := asset.NewExecutionContext(context.Background(), "run-1", defs.Partitioned, "", nil)

	_, err := defs.Partitioned.Compute(ec, &recordingRunner{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, oerrors.ErrValidation))
}

func TestPartitionedAssets_NilPartitions(t *testing.T) {
	_, err := PartitionedAssets(loadManifest(t), config.DefaultConfig().Assets.Partitioned, nil)
	assert.True(t, errors.Is(err, oerrors.ErrValidation))
}
