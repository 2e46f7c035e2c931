// Package dbt wraps the dbt command-line tool: it reads the manifest a dbt
// project compiles to, selects nodes the way dbt selectors do, and runs dbt
// as a subprocess whose JSON log lines are streamed back as events.
package dbt

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
)

// Resource types that become assets.
const (
	ResourceModel    = "model"
	ResourceSeed     = "seed"
	ResourceSnapshot = "snapshot"
	ResourceSource   = "source"
	ResourceTest     = "test"
)

// Manifest is the subset of dbt's target/manifest.json this CLI reads.
type Manifest struct {
	Metadata  ManifestMetadata    `json:"metadata"`
	Nodes     map[string]Node     `json:"nodes"`
	Sources   map[string]Node     `json:"sources"`
	ParentMap map[string][]string `json:"parent_map"`
	ChildMap  map[string][]string `json:"child_map"`

	// Path is where the manifest was loaded from.
	Path string `json:"-"`
}

// ManifestMetadata identifies the project and dbt version that wrote the manifest.
type ManifestMetadata struct {
	DBTVersion  string `json:"dbt_version"`
	ProjectName string `json:"project_name"`
	GeneratedAt string `json:"generated_at"`
}

// Node is a manifest node or source.
type Node struct {
	UniqueID         string     `json:"unique_id"`
	ResourceType     string     `json:"resource_type"`
	Name             string     `json:"name"`
	PackageName      string     `json:"package_name"`
	FQN              []string   `json:"fqn"`
	Path             string     `json:"path"`
	OriginalFilePath string     `json:"original_file_path"`
	Database         string     `json:"database"`
	Schema           string     `json:"schema"`
	Alias            string     `json:"alias"`
	Identifier       string     `json:"identifier"`
	SourceName       string     `json:"source_name"`
	Description      string     `json:"description"`
	Tags             []string   `json:"tags"`
	Config           NodeConfig `json:"config"`
	DependsOn        DependsOn  `json:"depends_on"`
	Checksum         Checksum   `json:"checksum"`
}

// NodeConfig holds the node config fields used for metadata and selection.
type NodeConfig struct {
	Materialized string         `json:"materialized"`
	Enabled      *bool          `json:"enabled"`
	Tags         []string       `json:"tags"`
	Meta         map[string]any `json:"meta"`
}

// DependsOn lists upstream unique ids.
type DependsOn struct {
	Nodes  []string `json:"nodes"`
	Macros []string `json:"macros"`
}

// Checksum is the file checksum dbt records for change detection.
type Checksum struct {
	Name     string `json:"name"`
	Checksum string `json:"checksum"`
}

// LoadManifest reads and decodes a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, oerrors.NewNotFoundError(
				"dbt manifest not found",
				path,
				"Run 'dbt parse' in the project, or set dbt.prepare: true to let dbtlearn do it",
			)
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Path = path
	return m, nil
}

// ParseManifest decodes manifest JSON.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: decoding manifest: %v", oerrors.ErrValidation, err)
	}
	if m.Nodes == nil {
		m.Nodes = map[string]Node{}
	}
	if m.Sources == nil {
		m.Sources = map[string]Node{}
	}
	if m.ParentMap == nil {
		m.ParentMap = buildParentMap(&m)
	}
	if m.ChildMap == nil {
		m.ChildMap = invert(m.ParentMap)
	}
	return &m, nil
}

// Node returns the node or source with the given unique id.
func (m *Manifest) Node(uniqueID string) (Node, bool) {
	if n, ok := m.Nodes[uniqueID]; ok {
		return n, true
	}
	n, ok := m.Sources[uniqueID]
	return n, ok
}

// AssetNodes returns every enabled asset node sorted by unique id.
func (m *Manifest) AssetNodes() []Node {
	nodes := make([]Node, 0, len(m.Nodes))
	for _, n := range m.Nodes {
		if n.IsAsset() && n.Enabled() {
			nodes = append(nodes, n)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].UniqueID < nodes[j].UniqueID })
	return nodes
}

// UpstreamAssets returns the asset keys uniqueID depends on. Ephemeral
// models are looked through to the assets or sources behind them.
func (m *Manifest) UpstreamAssets(uniqueID string) []string {
	seen := make(map[string]bool)
	var keys []string
	var visit func(id string)
	visit = func(id string) {
		for _, parent := range m.ParentMap[id] {
			if seen[parent] {
				continue
			}
			seen[parent] = true
			n, ok := m.Node(parent)
			if !ok || n.ResourceType == ResourceTest {
				continue
			}
			if n.ResourceType == ResourceSource || n.IsAsset() {
				keys = append(keys, n.AssetKey())
				continue
			}
			visit(parent)
		}
	}
	visit(uniqueID)
	sort.Strings(keys)
	return keys
}

// Tests returns the test nodes attached to uniqueID.
func (m *Manifest) Tests(uniqueID string) []Node {
	var tests []Node
	for _, child := range m.ChildMap[uniqueID] {
		if n, ok := m.Nodes[child]; ok && n.ResourceType == ResourceTest {
			tests = append(tests, n)
		}
	}
	sort.Slice(tests, func(i, j int) bool { return tests[i].UniqueID < tests[j].UniqueID })
	return tests
}

// IsAsset reports whether the node materializes a relation. Ephemeral
// models are inlined into their children and never become assets.
func (n Node) IsAsset() bool {
	switch n.ResourceType {
	case ResourceModel:
		return n.Config.Materialized != "ephemeral"
	case ResourceSeed, ResourceSnapshot:
		return true
	default:
		return false
	}
}

// Enabled reports whether the node is enabled. Missing config means enabled.
func (n Node) Enabled() bool {
	return n.Config.Enabled == nil || *n.Config.Enabled
}

// AssetKey returns the orchestrator key for the node: the model name for
// models, seeds, and snapshots, and source_name/name for sources. A
// config.meta.dagster.asset_key list overrides both.
func (n Node) AssetKey() string {
	if key := metaAssetKey(n.Config.Meta); key != "" {
		return key
	}
	if n.ResourceType == ResourceSource && n.SourceName != "" {
		return n.SourceName + "/" + n.Name
	}
	return n.Name
}

// AllTags returns node tags and config tags, deduplicated.
func (n Node) AllTags() []string {
	seen := make(map[string]bool)
	var tags []string
	for _, t := range append(append([]string{}, n.Tags...), n.Config.Tags...) {
		if !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	return tags
}

func metaAssetKey(meta map[string]any) string {
	dagster, ok := meta["dagster"].(map[string]any)
	if !ok {
		return ""
	}
	raw, ok := dagster["asset_key"].([]any)
	if !ok || len(raw) == 0 {
		return ""
	}
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		s, ok := p.(string)
		if !ok {
			return ""
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "/")
}

func buildParentMap(m *Manifest) map[string][]string {
	parents := make(map[string][]string, len(m.Nodes))
	for id, n := range m.Nodes {
		parents[id] = append([]string{}, n.DependsOn.Nodes...)
	}
	for id := range m.Sources {
		parents[id] = nil
	}
	return parents
}

func invert(parents map[string][]string) map[string][]string {
	children := make(map[string][]string, len(parents))
	for child, ps := range parents {
		if _, ok := children[child]; !ok {
			children[child] = nil
		}
		for _, p := range ps {
			children[p] = append(children[p], child)
		}
	}
	for id := range children {
		sort.Strings(children[id])
	}
	return children
}
