// Package pipeline declares the dbtlearn project's definitions: the
// full-refresh asset group, the date-partitioned asset group and the daily
// schedule.
package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dbtlearn/orchestrator/internal/asset"
	"github.com/dbtlearn/orchestrator/internal/config"
	"github.com/dbtlearn/orchestrator/internal/dbt"
	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
	"github.com/dbtlearn/orchestrator/internal/partition"
	"github.com/dbtlearn/orchestrator/internal/schedule"
)

// PartitionExpr is the column the partitioned models are partitioned on.
const PartitionExpr = "date"

// Definitions is everything the CLI can run for one project.
type Definitions struct {
	Manifest    *dbt.Manifest
	Partitions  *partition.Daily
	FullRefresh *asset.Definition
	Partitioned *asset.Definition
	Schedules   []*schedule.Definition
}

// NewDefinitions builds the project's definitions from cfg and manifest.
//
// Construction order:
//  1. PARTITIONS: daily partitions from cfg.Partitions (start, timezone)
//  2. FULL REFRESH: FullRefreshAssets with cfg.Assets.FullRefresh
//  3. PARTITIONED: PartitionedAssets with cfg.Assets.Partitioned and (1)
//  4. SCHEDULE: BuildFromSelection over (2) with cfg.Schedule
//
// The partitions definition is created here once and handed to the
// partitioned group.
func NewDefinitions(cfg *config.Config, manifest *dbt.Manifest) (*Definitions, error) {
	cfg = cfg.WithDefaults()

	partLoc, err := loadLocation("partitions.timezone", cfg.Partitions.Timezone)
	if err != nil {
		return nil, err
	}
	daily, err := partition.NewDaily(cfg.Partitions.Start, partLoc)
	if err != nil {
		return nil, fmt.Errorf("partitions: %w", err)
	}

	full, err := FullRefreshAssets(manifest, cfg.Assets.FullRefresh)
	if err != nil {
		return nil, fmt.Errorf("assets.full_refresh: %w", err)
	}
	partitioned, err := PartitionedAssets(manifest, cfg.Assets.Partitioned, daily)
	if err != nil {
		return nil, fmt.Errorf("assets.partitioned: %w", err)
	}

	schedLoc, err := loadLocation("schedule.timezone", cfg.Schedule.Timezone)
	if err != nil {
		return nil, err
	}
	sched, err := schedule.BuildFromSelection(
		[]*asset.Definition{full},
		cfg.Schedule.Job,
		cfg.Schedule.Cron,
		cfg.Schedule.Select,
		schedule.WithLocation(schedLoc),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule: %w", err)
	}

	return &Definitions{
		Manifest:    manifest,
		Partitions:  daily,
		FullRefresh: full,
		Partitioned: partitioned,
		Schedules:   []*schedule.Definition{sched},
	}, nil
}

// Assets returns the asset definitions in declaration order.
func (d *Definitions) Assets() []*asset.Definition {
	return []*asset.Definition{d.FullRefresh, d.Partitioned}
}

// Asset returns the asset definition with the given name.
func (d *Definitions) Asset(name string) (*asset.Definition, error) {
	for _, def := range d.Assets() {
		if def.Name == name {
			return def, nil
		}
	}
	return nil, oerrors.NewNotFoundError(
		fmt.Sprintf("asset group %q not found", name),
		"",
		fmt.Sprintf("available groups: %s, %s", d.FullRefresh.Name, d.Partitioned.Name),
	)
}

// Schedule returns the schedule with the given name.
func (d *Definitions) Schedule(name string) (*schedule.Definition, error) {
	for _, s := range d.Schedules {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, oerrors.NewNotFoundError(fmt.Sprintf("schedule %q not found", name), "", "run 'dbtlearn schedule list'")
}

// Specs returns the specs of every asset definition.
func (d *Definitions) Specs() []asset.Spec {
	var specs []asset.Spec
	for _, def := range d.Assets() {
		specs = append(specs, def.Specs...)
	}
	return specs
}

// FullRefreshBuildArgs returns the dbt arguments of a full-refresh build.
func FullRefreshBuildArgs() []string {
	return []string{"build"}
}

// FullRefreshAssets declares every selected model except the group's
// exclusions. Each run is a plain `dbt build` and a non-zero dbt exit fails
// the run.
func FullRefreshAssets(manifest *dbt.Manifest, group config.GroupConfig) (*asset.Definition, error) {
	return asset.NewDefinition(manifest, asset.DefinitionOptions{
		Name:    group.Name,
		Select:  group.Select,
		Exclude: group.Exclude,
		Compute: func(ec *asset.ExecutionContext, runner dbt.Runner) (dbt.Stream, error) {
			return runner.Run(ec.Context(), FullRefreshBuildArgs(), ec.DBTOptions(true))
		},
	})
}

// PartitionedAssets declares the date-partitioned models. Each run builds
// one day by passing the partition window to dbt as vars. dbt failures are
// captured in the event stream instead of failing the invocation.
func PartitionedAssets(manifest *dbt.Manifest, group config.GroupConfig, daily *partition.Daily) (*asset.Definition, error) {
	if daily == nil {
		return nil, fmt.Errorf("%w: partitioned assets need a partitions definition", oerrors.ErrValidation)
	}
	return asset.NewDefinition(manifest, asset.DefinitionOptions{
		Name:       group.Name,
		Select:     group.Select,
		Exclude:    group.Exclude,
		Partitions: daily,
		Metadata:   PartitionedMetadata,
		Compute: func(ec *asset.ExecutionContext, runner dbt.Runner) (dbt.Stream, error) {
			window, err := ec.PartitionTimeWindow()
			if err != nil {
				return nil, err
			}
			args, err := PartitionedBuildArgs(window)
			if err != nil {
				return nil, err
			}
			ec.Log.Debug("building partition", "window", window.String())
			return runner.Run(ec.Context(), args, ec.DBTOptions(false))
		},
	})
}

// PartitionedMetadata is the default metadata of n plus the partition
// expression.
func PartitionedMetadata(n dbt.Node) map[string]any {
	return dbt.MergeMetadata(dbt.DefaultMetadata(n), map[string]any{
		"partition_expr": PartitionExpr,
	})
}

// BuildVars are the dbt vars of one partitioned build.
type BuildVars struct {
	StartDate string
	EndDate   string
}

// WindowVars formats w's bounds with the partition key format.
func WindowVars(w partition.TimeWindow) BuildVars {
	return BuildVars{
		StartDate: w.StartDate(),
		EndDate:   w.EndDate(),
	}
}

// Map returns the vars keyed by their dbt names.
func (v BuildVars) Map() map[string]string {
	return map[string]string{
		"start_date": v.StartDate,
		"end_date":   v.EndDate,
	}
}

// JSON serializes the vars as {"start_date": "...", "end_date": "..."}.
// Key order and separators are fixed.
func (v BuildVars) JSON() (string, error) {
	start, err := json.Marshal(v.StartDate)
	if err != nil {
		return "", err
	}
	end, err := json.Marshal(v.EndDate)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`{"start_date": %s, "end_date": %s}`, start, end), nil
}

// PartitionedBuildArgs returns ["build", "--vars", <json>] for w.
func PartitionedBuildArgs(w partition.TimeWindow) ([]string, error) {
	vars, err := WindowVars(w).JSON()
	if err != nil {
		return nil, fmt.Errorf("encoding dbt vars: %w", err)
	}
	return []string{"build", "--vars", vars}, nil
}

func loadLocation(field, name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, oerrors.NewValidationError(
			fmt.Sprintf("unknown timezone %q", name),
			"",
			field,
			"use an IANA zone name such as UTC or Europe/Budapest",
		)
	}
	return loc, nil
}
