package cmdutil

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbtlearn/orchestrator/internal/cmdtypes"
	"github.com/dbtlearn/orchestrator/internal/config"
	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
	"github.com/dbtlearn/orchestrator/internal/testutil"
)

func fixtureProjectDir(t *testing.T) string {
	t.Helper()
	return filepath.Dir(filepath.Dir(testutil.ManifestPath(t)))
}

func TestLoadEnvironment(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Project.Dir = fixtureProjectDir(t)
	cfg.Project.Target = "dev"

	env, err := LoadEnvironment(context.Background(), &cmdtypes.GlobalConfig{Config: cfg})
	require.NoError(t, err)

	assert.Equal(t, cfg.Project.Dir, env.CLI.ProjectDir)
	assert.Equal(t, "dev", env.CLI.Target)
	assert.Equal(t, "dbt", env.CLI.Executable)
	assert.Equal(t, "dbtlearn_dbt_assets", env.Definitions.FullRefresh.Name)
	assert.Equal(t, []string{"fct_reviews"}, env.Definitions.Partitioned.Keys())
}

func TestLoadEnvironment_ResolvedValuesWin(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Project.Dir = "/does/not/exist"
	cfg.Project.Target = "dev"

	gc := &cmdtypes.GlobalConfig{
		Config: cfg,
		Resolved: &config.ResolvedConfig{
			ProjectDir: config.ResolvedValue{Value: fixtureProjectDir(t), Source: config.SourceFlag},
			Target:     config.ResolvedValue{Value: "prod", Source: config.SourceFlag},
		},
	}
	env, err := LoadEnvironment(context.Background(), gc)
	require.NoError(t, err)
	assert.Equal(t, fixtureProjectDir(t), env.Project.Dir)
	assert.Equal(t, "prod", env.CLI.Target)
}

func TestLoadEnvironment_MissingManifest(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Project.Dir = t.TempDir()

	_, err := LoadEnvironment(context.Background(), &cmdtypes.GlobalConfig{Config: cfg})
	require.Error(t, err)
	assert.True(t, errors.Is(err, oerrors.ErrNotFound))
}

func TestLedgerPath(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Runs.Database = "/var/lib/dbtlearn/runs.db"

	path, err := LedgerPath(&cmdtypes.GlobalConfig{Config: cfg})
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/dbtlearn/runs.db", path)

	path, err = LedgerPath(&cmdtypes.GlobalConfig{
		Config:   cfg,
		Resolved: &config.ResolvedConfig{Database: config.ResolvedValue{Value: "/tmp/flag.db"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/flag.db", path)
}

func TestOpenLedger(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Runs.Database = filepath.Join(t.TempDir(), "runs.db")

	store, err := OpenLedger(&cmdtypes.GlobalConfig{Config: cfg})
	require.NoError(t, err)
	defer store.Close()
	assert.FileExists(t, cfg.Runs.Database)
}

func TestLoadGlobalConfig(t *testing.T) {
	t.Run("config file and flags", func(t *testing.T) {
		configPath, dbPath := testutil.ProjectConfig(t, "/opt/dbt/bin/dbt")

		gc, err := LoadGlobalConfig(config.ResolveAllOptions{
			ConfigFlag: configPath,
			TargetFlag: "ci",
		})
		require.NoError(t, err)
		require.NoError(t, gc.ConfigErr)

		assert.Equal(t, configPath, gc.ConfigPath)
		assert.Equal(t, "/opt/dbt/bin/dbt", gc.Config.DBT.Executable)
		assert.Equal(t, dbPath, gc.Resolved.Database.Value)
		assert.Equal(t, config.SourceConfig, gc.Resolved.Database.Source)
		assert.Equal(t, "ci", gc.Resolved.Target.Value)
		assert.Equal(t, config.SourceFlag, gc.Resolved.Target.Source)
	})

	t.Run("unusable config is recorded and blocks project commands", func(t *testing.T) {
		tests := []struct {
			name    string
			content string
			env     map[string]string
		}{
			{name: "invalid yaml", content: "project:\n  dir: /srv/airbnb\nruns:\n  database: [oops\n"},
			{name: "invalid cron", content: "schedule:\n  cron: \"0 25 * * *\"\n"},
			{name: "invalid cron from env", content: "project:\n  dir: /srv/airbnb\n", env: map[string]string{"DBTLEARN_SCHEDULE_CRON": "daily"}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				home := t.TempDir()
				t.Setenv("HOME", home)
				for k, v := range tt.env {
					t.Setenv(k, v)
				}
				bad := testutil.WriteFile(t, home, "config.yaml", tt.content)

				gc, err := LoadGlobalConfig(config.ResolveAllOptions{ConfigFlag: bad})
				require.NoError(t, err, "config-free commands still get a GlobalConfig")
				assert.Equal(t, config.DefaultScheduleCron, gc.Config.Schedule.Cron)
				assert.Equal(t, bad, gc.ConfigPath)

				require.Error(t, gc.ConfigErr)
				assert.ErrorIs(t, gc.ConfigErr, oerrors.ErrValidation)
				assert.Contains(t, gc.ConfigErr.Error(), bad)

				_, err = LoadEnvironment(context.Background(), gc)
				assert.ErrorIs(t, err, oerrors.ErrValidation)
				assert.Equal(t, oerrors.ExitValidationError, oerrors.ExitCodeFromError(err))

				_, err = OpenLedger(gc)
				assert.ErrorIs(t, err, oerrors.ErrValidation)
				assert.NoFileExists(t, filepath.Join(home, ".dbtlearn", "runs.db"))
			})
		}
	})

	t.Run("missing config file is not an error", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)

		gc, err := LoadGlobalConfig(config.ResolveAllOptions{ConfigFlag: filepath.Join(home, "absent.yaml")})
		require.NoError(t, err)
		assert.NoError(t, gc.ConfigErr)
	})
}
