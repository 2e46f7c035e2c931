package cmdutil

import (
	"context"
	"fmt"
	"os"

	"github.com/dbtlearn/orchestrator/internal/asset"
	"github.com/dbtlearn/orchestrator/internal/cmdtypes"
	"github.com/dbtlearn/orchestrator/internal/config"
	"github.com/dbtlearn/orchestrator/internal/dbt"
	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
	"github.com/dbtlearn/orchestrator/internal/output"
	"github.com/dbtlearn/orchestrator/internal/pipeline"
	"github.com/dbtlearn/orchestrator/internal/project"
	"github.com/dbtlearn/orchestrator/internal/runs"
)

// Environment is everything a command needs to run the project.
type Environment struct {
	Config      *config.Config
	Project     *project.Project
	CLI         *dbt.CLI
	Definitions *pipeline.Definitions
}

// EffectiveConfig returns the loaded config with defaults applied.
func EffectiveConfig(gc *cmdtypes.GlobalConfig) *config.Config {
	if gc == nil || gc.Config == nil {
		return config.DefaultConfig()
	}
	return gc.Config.WithDefaults()
}

// LoadGlobalConfig loads and validates the config file named by
// opts.ConfigFlag and resolves the global flags against it. A config file
// that fails to load or validate is reported, recorded as ConfigErr and
// replaced by defaults, so that `config init`, `config vet` and `version`
// keep working.
func LoadGlobalConfig(opts config.ResolveAllOptions) (*cmdtypes.GlobalConfig, error) {
	cfg, loadErr := config.NewLoader().LoadWithDefaults(opts.ConfigFlag)
	if loadErr == nil {
		validator, err := config.NewValidator()
		if err != nil {
			return nil, err
		}
		loadErr = validator.Validate(cfg)
	}
	if loadErr != nil {
		cfg = config.DefaultConfig()
	}

	opts.Config = cfg
	resolved, err := config.ResolveAll(opts)
	if err != nil {
		return nil, err
	}

	gc := &cmdtypes.GlobalConfig{
		Config:     cfg,
		Resolved:   resolved,
		ConfigPath: resolved.ConfigPath.Value,
	}
	if loadErr != nil {
		gc.ConfigErr = fmt.Errorf("%w: config file %s: %w", oerrors.ErrValidation, gc.ConfigPath, loadErr)
		output.Warn("config file is unusable, using defaults", "path", gc.ConfigPath, "error", loadErr)
	}
	return gc, nil
}

// usableConfig returns the config error recorded on gc, if any.
func usableConfig(gc *cmdtypes.GlobalConfig) error {
	if gc == nil || gc.ConfigErr == nil {
		return nil
	}
	return gc.ConfigErr
}

// NewDBTCLI returns the dbt CLI resource for p. The resolved --target wins
// over the config file.
func NewDBTCLI(cfg *config.Config, p *project.Project, resolved *config.ResolvedConfig) *dbt.CLI {
	cli := &dbt.CLI{
		Executable:  cfg.DBT.Executable,
		ProjectDir:  p.Dir,
		ProfilesDir: p.ProfilesDir,
		Target:      cfg.Project.Target,
	}
	if resolved != nil {
		cli.Target = resolved.Target.Value
	}
	return cli
}

// LoadEnvironment locates the project, loads its manifest (running
// `dbt parse` first when dbt.prepare is set) and builds the definitions.
//
// Phase sequence:
//  1. PROJECT:     project.FromConfig → *project.Project
//  2. MANIFEST:    Project.LoadManifest → *dbt.Manifest
//  3. DEFINITIONS: pipeline.NewDefinitions → *pipeline.Definitions
func LoadEnvironment(ctx context.Context, gc *cmdtypes.GlobalConfig) (*Environment, error) {
	if err := usableConfig(gc); err != nil {
		return nil, err
	}
	cfg := EffectiveConfig(gc)

	var resolved *config.ResolvedConfig
	if gc != nil {
		resolved = gc.Resolved
	}

	p, err := project.FromConfig(cfg, resolved)
	if err != nil {
		return nil, err
	}
	cli := NewDBTCLI(cfg, p, resolved)

	manifest, err := p.LoadManifest(ctx, cli, cfg.DBT.Prepare)
	if err != nil {
		return nil, err
	}
	output.Debug("manifest loaded",
		"path", p.ManifestPath(),
		"project", manifest.Metadata.ProjectName,
		"dbt_version", manifest.Metadata.DBTVersion,
	)

	defs, err := pipeline.NewDefinitions(cfg, manifest)
	if err != nil {
		return nil, err
	}

	return &Environment{
		Config:      cfg,
		Project:     p,
		CLI:         cli,
		Definitions: defs,
	}, nil
}

// NewMaterializer returns a materializer that runs dbt through the
// environment's CLI and records into rec. dbt stderr is forwarded in
// verbose mode.
func (e *Environment) NewMaterializer(rec asset.Recorder, verbose bool) *asset.Materializer {
	if verbose {
		e.CLI.Stderr = os.Stderr
	}
	return asset.NewMaterializer(e.CLI, rec)
}

// LedgerPath returns the run ledger location: the resolved --database
// value, else the config file's runs.database.
func LedgerPath(gc *cmdtypes.GlobalConfig) (string, error) {
	path := EffectiveConfig(gc).Runs.Database
	if gc != nil && gc.Resolved != nil && gc.Resolved.Database.Value != "" {
		path = gc.Resolved.Database.Value
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("expanding runs database path: %w", err)
	}
	return expanded, nil
}

// OpenLedger opens the run ledger.
func OpenLedger(gc *cmdtypes.GlobalConfig) (*runs.Store, error) {
	if err := usableConfig(gc); err != nil {
		return nil, err
	}
	path, err := LedgerPath(gc)
	if err != nil {
		return nil, err
	}
	store, err := runs.Open(path)
	if err != nil {
		return nil, err
	}
	output.Debug("run ledger opened", "path", path)
	return store, nil
}
