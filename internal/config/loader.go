package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "DBTLEARN"

// Loader reads the config file through viper, layering environment
// variables over it.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader. Every key is registered
// with its default so DBTLEARN_* environment variables are picked up by
// Unmarshal, e.g. DBTLEARN_SCHEDULE_CRON for schedule.cron.
func NewLoader() *Loader {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	defaults := map[string]any{
		"project.dir":                 d.Project.Dir,
		"project.profiles_dir":        d.Project.ProfilesDir,
		"project.target":              d.Project.Target,
		"project.manifest_path":       d.Project.ManifestPath,
		"dbt.executable":              d.DBT.Executable,
		"dbt.prepare":                 d.DBT.Prepare,
		"partitions.start":            d.Partitions.Start,
		"partitions.timezone":         d.Partitions.Timezone,
		"assets.full_refresh.name":    d.Assets.FullRefresh.Name,
		"assets.full_refresh.select":  d.Assets.FullRefresh.Select,
		"assets.full_refresh.exclude": d.Assets.FullRefresh.Exclude,
		"assets.partitioned.name":     d.Assets.Partitioned.Name,
		"assets.partitioned.select":   d.Assets.Partitioned.Select,
		"assets.partitioned.exclude":  d.Assets.Partitioned.Exclude,
		"schedule.job":                d.Schedule.Job,
		"schedule.cron":               d.Schedule.Cron,
		"schedule.select":             d.Schedule.Select,
		"schedule.timezone":           d.Schedule.Timezone,
		"runs.database":               d.Runs.Database,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	_ = v.BindEnv("log.timestamps", "DBTLEARN_LOG_TIMESTAMPS")

	return &Loader{v: v}
}

// configFilePath expands configFile, falling back to GetConfigFile when
// it is empty.
func configFilePath(configFile string) (string, error) {
	if configFile == "" {
		p, err := GetConfigFile()
		if err != nil {
			return "", fmt.Errorf("getting config file path: %w", err)
		}
		configFile = p
	}
	return ExpandPath(configFile)
}

// Load reads configFile (default: GetConfigFile) over the registered
// defaults. DBTLEARN_* variables override file values. A missing file is
// not an error.
func (l *Loader) Load(configFile string) (*Config, error) {
	path, err := configFilePath(configFile)
	if err != nil {
		return nil, err
	}

	l.v.SetConfigFile(path)
	l.v.SetConfigType("yaml")
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadWithDefaults is Load followed by Config.WithDefaults.
func (l *Loader) LoadWithDefaults(configFile string) (*Config, error) {
	cfg, err := l.Load(configFile)
	if err != nil {
		return nil, err
	}
	return cfg.WithDefaults(), nil
}

// ConfigFileExists reports whether configFile (default: GetConfigFile)
// exists.
func ConfigFileExists(configFile string) (bool, error) {
	path, err := configFilePath(configFile)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}
