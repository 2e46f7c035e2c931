// Package project locates a dbt project and its compiled manifest.
package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dbtlearn/orchestrator/internal/config"
	"github.com/dbtlearn/orchestrator/internal/dbt"
	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
	"github.com/dbtlearn/orchestrator/internal/output"
)

// ManifestFile is the manifest's name inside the target directory.
const ManifestFile = "manifest.json"

// parseTimeout bounds the `dbt parse` run that prepares a missing manifest.
const parseTimeout = 5 * time.Minute

// Project is a dbt project on disk.
type Project struct {
	// Dir contains dbt_project.yml.
	Dir string

	// ProfilesDir is passed to dbt as --profiles-dir. Optional.
	ProfilesDir string

	// TargetPath is the dbt target directory. Defaults to <Dir>/target.
	TargetPath string

	// Manifest overrides <TargetPath>/manifest.json. Optional.
	Manifest string
}

// New returns the project rooted at dir.
func New(dir string) *Project {
	if dir == "" {
		dir = config.DefaultProjectDir
	}
	return &Project{Dir: dir}
}

// FromConfig returns the project described by cfg, with the project and
// profiles directories taken from resolved when it is set.
func FromConfig(cfg *config.Config, resolved *config.ResolvedConfig) (*Project, error) {
	dir := cfg.Project.Dir
	profiles := cfg.Project.ProfilesDir
	if resolved != nil {
		if resolved.ProjectDir.Value != "" {
			dir = resolved.ProjectDir.Value
		}
		profiles = resolved.ProfilesDir.Value
	}

	p := New(dir)
	var err error
	if p.Dir, err = config.ExpandPath(p.Dir); err != nil {
		return nil, fmt.Errorf("expanding project dir: %w", err)
	}
	if p.ProfilesDir, err = config.ExpandPath(profiles); err != nil {
		return nil, fmt.Errorf("expanding profiles dir: %w", err)
	}
	if p.Manifest, err = config.ExpandPath(cfg.Project.ManifestPath); err != nil {
		return nil, fmt.Errorf("expanding manifest path: %w", err)
	}
	return p, nil
}

// ManifestPath returns the manifest location.
func (p *Project) ManifestPath() string {
	if p.Manifest != "" {
		return p.Manifest
	}
	target := p.TargetPath
	if target == "" {
		target = filepath.Join(p.Dir, "target")
	}
	return filepath.Join(target, ManifestFile)
}

// HasManifest reports whether the manifest file exists.
func (p *Project) HasManifest() bool {
	info, err := os.Stat(p.ManifestPath())
	return err == nil && !info.IsDir()
}

// EnsureManifest makes sure the manifest exists. When it is missing and
// prepare is set, it runs `dbt parse` to produce it; otherwise it returns
// an ErrNotFound error.
func (p *Project) EnsureManifest(ctx context.Context, cli *dbt.CLI, prepare bool) (string, error) {
	path := p.ManifestPath()
	if p.HasManifest() {
		return path, nil
	}
	if !prepare {
		return "", oerrors.NewNotFoundError(
			"dbt manifest not found",
			path,
			"Run 'dbt parse' in the project, or set dbt.prepare: true in the config file",
		)
	}

	output.Debug("manifest missing, running dbt parse", "project", p.Dir)
	err := output.RunWithSpinner(ctx, cli.Parse,
		output.WithTitle("Parsing dbt project"),
		output.WithTimeout(parseTimeout))
	if err != nil {
		return "", fmt.Errorf("preparing dbt project %s: %w", p.Dir, err)
	}

	if !p.HasManifest() {
		return "", oerrors.NewNotFoundError(
			"dbt parse did not produce a manifest",
			path,
			"Check target-path in dbt_project.yml",
		)
	}
	return path, nil
}

// LoadManifest ensures the manifest exists and parses it.
func (p *Project) LoadManifest(ctx context.Context, cli *dbt.CLI, prepare bool) (*dbt.Manifest, error) {
	path, err := p.EnsureManifest(ctx, cli, prepare)
	if err != nil {
		return nil, err
	}
	return dbt.LoadManifest(path)
}
