// Package asset declares orchestrator assets from a dbt manifest and
// materializes them by running dbt.
package asset

import (
	"fmt"
	"sort"

	"github.com/dbtlearn/orchestrator/internal/dbt"
	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
	"github.com/dbtlearn/orchestrator/internal/partition"
)

// Spec describes one asset produced by a dbt node.
type Spec struct {
	Key         string         `json:"key"`
	UniqueID    string         `json:"unique_id"`
	Group       string         `json:"group"`
	Deps        []string       `json:"deps,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Checks      []string       `json:"checks,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Partitioned bool           `json:"partitioned"`
}

// ComputeFunc starts the work that materializes a definition's assets and
// returns the resulting event stream. The materializer drains the stream.
type ComputeFunc func(ec *ExecutionContext, runner dbt.Runner) (dbt.Stream, error)

// MetadataFunc computes the metadata attached to the asset built from a node.
type MetadataFunc func(n dbt.Node) map[string]any

// DefinitionOptions configures NewDefinition.
type DefinitionOptions struct {
	// Name identifies the definition and becomes each spec's group.
	Name string

	// Select and Exclude are dbt selection expressions.
	Select  string
	Exclude string

	// Partitions binds the definition to daily partitions. Optional.
	Partitions *partition.Daily

	// Metadata overrides dbt.DefaultMetadata when set.
	Metadata MetadataFunc

	// Compute runs the definition.
	Compute ComputeFunc
}

// Definition is a group of assets materialized together by one dbt invocation.
type Definition struct {
	Name       string
	Select     string
	Exclude    string
	Partitions *partition.Daily
	Specs      []Spec
	Compute    ComputeFunc

	byUniqueID map[string]int
}

// NewDefinition selects nodes from the manifest and builds a spec for each.
// An empty selection is a validation error.
func NewDefinition(m *dbt.Manifest, opts DefinitionOptions) (*Definition, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("%w: asset definition name is required", oerrors.ErrValidation)
	}
	if opts.Compute == nil {
		return nil, fmt.Errorf("%w: asset definition %s has no compute function", oerrors.ErrValidation, opts.Name)
	}

	selectExpr := opts.Select
	if selectExpr == "" {
		selectExpr = dbt.SelectAll
	}
	nodes, err := m.Select(selectExpr, opts.Exclude)
	if err != nil {
		return nil, fmt.Errorf("asset definition %s: %w", opts.Name, err)
	}
	if len(nodes) == 0 {
		return nil, oerrors.NewValidationError(
			fmt.Sprintf("asset definition %s selects no dbt nodes", opts.Name),
			m.Path,
			"select",
			fmt.Sprintf("check --select %q --exclude %q against the manifest", selectExpr, opts.Exclude),
		)
	}

	metadata := opts.Metadata
	if metadata == nil {
		metadata = dbt.DefaultMetadata
	}

	def := &Definition{
		Name:       opts.Name,
		Select:     selectExpr,
		Exclude:    opts.Exclude,
		Partitions: opts.Partitions,
		Compute:    opts.Compute,
		Specs:      make([]Spec, 0, len(nodes)),
		byUniqueID: make(map[string]int, len(nodes)),
	}
	for _, n := range nodes {
		spec := Spec{
			Key:         n.AssetKey(),
			UniqueID:    n.UniqueID,
			Group:       opts.Name,
			Deps:        m.UpstreamAssets(n.UniqueID),
			Tags:        n.AllTags(),
			Metadata:    metadata(n),
			Partitioned: opts.Partitions != nil,
		}
		for _, test := range m.Tests(n.UniqueID) {
			spec.Checks = append(spec.Checks, test.Name)
		}
		def.byUniqueID[n.UniqueID] = len(def.Specs)
		def.Specs = append(def.Specs, spec)
	}
	return def, nil
}

// Partitioned reports whether the definition is bound to partitions.
func (d *Definition) Partitioned() bool {
	return d.Partitions != nil
}

// Keys returns the asset keys of the definition, sorted.
func (d *Definition) Keys() []string {
	keys := make([]string, 0, len(d.Specs))
	for _, s := range d.Specs {
		keys = append(keys, s.Key)
	}
	sort.Strings(keys)
	return keys
}

// SpecForUniqueID returns the spec built from the dbt node with the given id.
func (d *Definition) SpecForUniqueID(uniqueID string) (Spec, bool) {
	i, ok := d.byUniqueID[uniqueID]
	if !ok {
		return Spec{}, false
	}
	return d.Specs[i], true
}

// Spec returns the spec with the given asset key.
func (d *Definition) Spec(key string) (Spec, bool) {
	for _, s := range d.Specs {
		if s.Key == key {
			return s, true
		}
	}
	return Spec{}, false
}
