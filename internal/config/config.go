// Package config provides configuration loading and management.
package config

// ProjectConfig locates the dbt project.
type ProjectConfig struct {
	// Dir is the dbt project directory (contains dbt_project.yml).
	// Env: DBTLEARN_PROJECT_DIR, Default: "."
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty" mapstructure:"dir"`

	// ProfilesDir is passed to dbt as --profiles-dir.
	// Env: DBTLEARN_PROJECT_PROFILES_DIR
	ProfilesDir string `json:"profiles_dir,omitempty" yaml:"profiles_dir,omitempty" mapstructure:"profiles_dir"`

	// Target is passed to dbt as --target.
	// Env: DBTLEARN_PROJECT_TARGET
	Target string `json:"target,omitempty" yaml:"target,omitempty" mapstructure:"target"`

	// ManifestPath overrides <dir>/target/manifest.json.
	ManifestPath string `json:"manifest_path,omitempty" yaml:"manifest_path,omitempty" mapstructure:"manifest_path"`
}

// DBTConfig configures the dbt executable.
type DBTConfig struct {
	// Executable is the dbt binary name or path. Default: "dbt"
	Executable string `json:"executable,omitempty" yaml:"executable,omitempty" mapstructure:"executable"`

	// Prepare runs `dbt parse` when the manifest is missing.
	Prepare bool `json:"prepare,omitempty" yaml:"prepare" mapstructure:"prepare"`
}

// PartitionsConfig configures the daily partitions definition.
type PartitionsConfig struct {
	// Start is the first partition key. Default: "2025-01-01"
	Start string `json:"start,omitempty" yaml:"start,omitempty" mapstructure:"start"`

	// Timezone is an IANA zone name. Default: "UTC"
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty" mapstructure:"timezone"`
}

// GroupConfig configures one asset group.
type GroupConfig struct {
	Name    string `json:"name,omitempty" yaml:"name,omitempty" mapstructure:"name"`
	Select  string `json:"select,omitempty" yaml:"select,omitempty" mapstructure:"select"`
	Exclude string `json:"exclude,omitempty" yaml:"exclude,omitempty" mapstructure:"exclude"`
}

// AssetsConfig configures the two asset groups.
type AssetsConfig struct {
	FullRefresh GroupConfig `json:"full_refresh,omitempty" yaml:"full_refresh" mapstructure:"full_refresh"`
	Partitioned GroupConfig `json:"partitioned,omitempty" yaml:"partitioned" mapstructure:"partitioned"`
}

// ScheduleConfig configures the daily schedule of the full-refresh group.
type ScheduleConfig struct {
	// Job is the job name; the schedule is named <job>_schedule.
	Job string `json:"job,omitempty" yaml:"job,omitempty" mapstructure:"job"`

	// Cron is a standard five-field cron expression. Default: "0 5 * * *"
	Cron string `json:"cron,omitempty" yaml:"cron,omitempty" mapstructure:"cron"`

	// Select is the dbt selection used at tick time. Default: "fqn:*"
	Select string `json:"select,omitempty" yaml:"select,omitempty" mapstructure:"select"`

	// Timezone is the zone cron times are evaluated in. Default: "UTC"
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty" mapstructure:"timezone"`
}

// RunsConfig configures the run ledger.
type RunsConfig struct {
	// Database is the SQLite file. Default: ~/.dbtlearn/runs.db
	Database string `json:"database,omitempty" yaml:"database,omitempty" mapstructure:"database"`
}

// LogConfig contains logging-related settings.
type LogConfig struct {
	// Timestamps controls whether timestamps are shown in log output.
	// Default: true. Override with --timestamps flag.
	Timestamps *bool `json:"timestamps,omitempty" yaml:"timestamps,omitempty" mapstructure:"timestamps"`
}

// Config represents the dbtlearn CLI configuration.
// Loaded from ~/.dbtlearn/config.yaml, validated against the embedded CUE schema.
type Config struct {
	Project    ProjectConfig    `json:"project,omitempty" yaml:"project" mapstructure:"project"`
	DBT        DBTConfig        `json:"dbt,omitempty" yaml:"dbt" mapstructure:"dbt"`
	Partitions PartitionsConfig `json:"partitions,omitempty" yaml:"partitions" mapstructure:"partitions"`
	Assets     AssetsConfig     `json:"assets,omitempty" yaml:"assets" mapstructure:"assets"`
	Schedule   ScheduleConfig   `json:"schedule,omitempty" yaml:"schedule" mapstructure:"schedule"`
	Runs       RunsConfig       `json:"runs,omitempty" yaml:"runs" mapstructure:"runs"`
	Log        LogConfig        `json:"log,omitempty" yaml:"log,omitempty" mapstructure:"log"`
}

// Default values.
const (
	DefaultProjectDir      = "."
	DefaultExecutable      = "dbt"
	DefaultPartitionStart  = "2025-01-01"
	DefaultTimezone        = "UTC"
	DefaultFullRefreshName = "dbtlearn_dbt_assets"
	DefaultFullRefreshSkip = "fct_reviews"
	DefaultPartitionedName = "dbtlearn_partitioned_dbt_assets"
	DefaultPartitionedSel  = "fct_reviews"
	DefaultScheduleJob     = "materialize_dbt_models"
	DefaultScheduleCron    = "0 5 * * *"
	DefaultScheduleSelect  = "fqn:*"
	DefaultRunsDatabase    = "~/.dbtlearn/runs.db"
)

// DefaultConfig returns a Config with all default values populated.
// Used by `dbtlearn config init` to generate the initial config file.
func DefaultConfig() *Config {
	return &Config{
		Project: ProjectConfig{
			Dir: DefaultProjectDir,
		},
		DBT: DBTConfig{
			Executable: DefaultExecutable,
		},
		Partitions: PartitionsConfig{
			Start:    DefaultPartitionStart,
			Timezone: DefaultTimezone,
		},
		Assets: AssetsConfig{
			FullRefresh: GroupConfig{
				Name:    DefaultFullRefreshName,
				Select:  DefaultScheduleSelect,
				Exclude: DefaultFullRefreshSkip,
			},
			Partitioned: GroupConfig{
				Name:   DefaultPartitionedName,
				Select: DefaultPartitionedSel,
			},
		},
		Schedule: ScheduleConfig{
			Job:      DefaultScheduleJob,
			Cron:     DefaultScheduleCron,
			Select:   DefaultScheduleSelect,
			Timezone: DefaultTimezone,
		},
		Runs: RunsConfig{
			Database: DefaultRunsDatabase,
		},
	}
}

// WithDefaults returns a copy of c with empty fields filled from DefaultConfig.
func (c *Config) WithDefaults() *Config {
	d := DefaultConfig()
	out := *c

	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&out.Project.Dir, d.Project.Dir)
	fill(&out.DBT.Executable, d.DBT.Executable)
	fill(&out.Partitions.Start, d.Partitions.Start)
	fill(&out.Partitions.Timezone, d.Partitions.Timezone)
	fill(&out.Assets.FullRefresh.Name, d.Assets.FullRefresh.Name)
	fill(&out.Assets.FullRefresh.Select, d.Assets.FullRefresh.Select)
	fill(&out.Assets.Partitioned.Name, d.Assets.Partitioned.Name)
	fill(&out.Assets.Partitioned.Select, d.Assets.Partitioned.Select)
	fill(&out.Schedule.Job, d.Schedule.Job)
	fill(&out.Schedule.Cron, d.Schedule.Cron)
	fill(&out.Schedule.Select, d.Schedule.Select)
	fill(&out.Schedule.Timezone, d.Schedule.Timezone)
	fill(&out.Runs.Database, d.Runs.Database)
	return &out
}
