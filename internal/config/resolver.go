package config

import (
	"os"

	"github.com/dbtlearn/orchestrator/internal/output"
)

// ConfigSource indicates where a configuration value came from.
type ConfigSource string

const (
	// SourceFlag indicates value came from command-line flag.
	SourceFlag ConfigSource = "flag"
	// SourceEnv indicates value came from environment variable.
	SourceEnv ConfigSource = "env"
	// SourceConfig indicates value came from config file.
	SourceConfig ConfigSource = "config"
	// SourceDefault indicates value is the built-in default.
	SourceDefault ConfigSource = "default"
)

// ResolvedValue is a configuration value and the source it came from.
type ResolvedValue struct {
	Key    string
	Value  string
	Source ConfigSource
	// Shadowed contains values that were overridden by higher precedence.
	Shadowed map[ConfigSource]string
}

// resolveOptions describes the candidate values for one key.
type resolveOptions struct {
	key          string
	flagValue    string
	envVar       string
	configValue  string
	defaultValue string
}

// resolve applies flag > env > config > default. Lower-precedence values
// that are set are recorded as shadowed.
func resolve(opts resolveOptions) ResolvedValue {
	rv := ResolvedValue{
		Key:      opts.key,
		Shadowed: make(map[ConfigSource]string),
	}

	var envValue string
	if opts.envVar != "" {
		envValue = os.Getenv(opts.envVar)
	}

	// Loaded configs carry defaults; a config value equal to the default is
	// reported as the default.
	configValue := opts.configValue
	if configValue == opts.defaultValue {
		configValue = ""
	}

	candidates := []struct {
		source ConfigSource
		value  string
	}{
		{SourceFlag, opts.flagValue},
		{SourceEnv, envValue},
		{SourceConfig, configValue},
		{SourceDefault, opts.defaultValue},
	}
	for _, c := range candidates {
		if c.value == "" {
			continue
		}
		if rv.Source == "" {
			rv.Value = c.value
			rv.Source = c.source
			continue
		}
		if c.value != rv.Value {
			rv.Shadowed[c.source] = c.value
		}
	}
	return rv
}

// ResolveAllOptions holds the global flag values and loaded config.
type ResolveAllOptions struct {
	ConfigFlag      string
	ProjectDirFlag  string
	ProfilesDirFlag string
	TargetFlag      string
	DatabaseFlag    string
	Config          *Config
}

// ResolvedConfig holds the values resolved from global flags.
type ResolvedConfig struct {
	ConfigPath  ResolvedValue
	ProjectDir  ResolvedValue
	ProfilesDir ResolvedValue
	Target      ResolvedValue
	Database    ResolvedValue
}

// Values returns all resolved values in a stable order.
func (r *ResolvedConfig) Values() []ResolvedValue {
	return []ResolvedValue{r.ConfigPath, r.ProjectDir, r.ProfilesDir, r.Target, r.Database}
}

// ResolveAll resolves every flag-backed configuration value using
// precedence: (1) flag, (2) DBTLEARN_* env, (3) config file, (4) default.
func ResolveAll(opts ResolveAllOptions) (*ResolvedConfig, error) {
	paths, err := DefaultPaths()
	if err != nil {
		return nil, err
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = &Config{}
	}

	return &ResolvedConfig{
		ConfigPath: resolve(resolveOptions{
			key:          "config",
			flagValue:    opts.ConfigFlag,
			envVar:       "DBTLEARN_CONFIG",
			defaultValue: paths.ConfigFile,
		}),
		ProjectDir: resolve(resolveOptions{
			key:          "project.dir",
			flagValue:    opts.ProjectDirFlag,
			envVar:       "DBTLEARN_PROJECT_DIR",
			configValue:  cfg.Project.Dir,
			defaultValue: DefaultProjectDir,
		}),
		ProfilesDir: resolve(resolveOptions{
			key:         "project.profiles_dir",
			flagValue:   opts.ProfilesDirFlag,
			envVar:      "DBTLEARN_PROJECT_PROFILES_DIR",
			configValue: cfg.Project.ProfilesDir,
		}),
		Target: resolve(resolveOptions{
			key:         "project.target",
			flagValue:   opts.TargetFlag,
			envVar:      "DBTLEARN_PROJECT_TARGET",
			configValue: cfg.Project.Target,
		}),
		Database: resolve(resolveOptions{
			key:          "runs.database",
			flagValue:    opts.DatabaseFlag,
			envVar:       "DBTLEARN_RUNS_DATABASE",
			configValue:  cfg.Runs.Database,
			defaultValue: DefaultRunsDatabase,
		}),
	}, nil
}

// LogResolvedValues logs configuration resolution at DEBUG level.
func LogResolvedValues(values []ResolvedValue) {
	for _, v := range values {
		output.Debug("config value resolved",
			"key", v.Key,
			"value", v.Value,
			"source", v.Source,
		)
		for source, shadowed := range v.Shadowed {
			output.Debug("  shadowed by higher precedence",
				"key", v.Key,
				"shadowed_source", source,
				"shadowed_value", shadowed,
			)
		}
	}
}
