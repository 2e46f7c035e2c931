package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, ".", cfg.Project.Dir)
	assert.Equal(t, "dbt", cfg.DBT.Executable)
	assert.False(t, cfg.DBT.Prepare)

	assert.Equal(t, "2025-01-01", cfg.Partitions.Start)
	assert.Equal(t, "UTC", cfg.Partitions.Timezone)

	assert.Equal(t, "dbtlearn_dbt_assets", cfg.Assets.FullRefresh.Name)
	assert.Equal(t, "fqn:*", cfg.Assets.FullRefresh.Select)
	assert.Equal(t, "fct_reviews", cfg.Assets.FullRefresh.Exclude)
	assert.Equal(t, "dbtlearn_partitioned_dbt_assets", cfg.Assets.Partitioned.Name)
	assert.Equal(t, "fct_reviews", cfg.Assets.Partitioned.Select)
	assert.Empty(t, cfg.Assets.Partitioned.Exclude)

	assert.Equal(t, "materialize_dbt_models", cfg.Schedule.Job)
	assert.Equal(t, "0 5 * * *", cfg.Schedule.Cron)
	assert.Equal(t, "fqn:*", cfg.Schedule.Select)

	assert.Equal(t, "~/.dbtlearn/runs.db", cfg.Runs.Database)
	assert.Nil(t, cfg.Log.Timestamps)
}

func TestWithDefaults(t *testing.T) {
	cfg := &Config{
		Project:  ProjectConfig{Dir: "/srv/dbtlearn", Target: "prod"},
		Schedule: ScheduleConfig{Cron: "30 6 * * *"},
	}

	got := cfg.WithDefaults()

	assert.Equal(t, "/srv/dbtlearn", got.Project.Dir)
	assert.Equal(t, "prod", got.Project.Target)
	assert.Equal(t, "30 6 * * *", got.Schedule.Cron)
	assert.Equal(t, "fqn:*", got.Schedule.Select)
	assert.Equal(t, "dbt", got.DBT.Executable)
	assert.Equal(t, "dbtlearn_dbt_assets", got.Assets.FullRefresh.Name)

	// The receiver is left untouched.
	assert.Empty(t, cfg.DBT.Executable)
}
