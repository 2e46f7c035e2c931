package dbt

import "maps"

// DefaultMetadata returns the metadata attached to every asset built from n.
func DefaultMetadata(n Node) map[string]any {
	md := map[string]any{
		"dbt_unique_id": n.UniqueID,
		"database":      n.Database,
		"schema":        n.Schema,
		"table_name":    relationName(n),
	}
	if n.Config.Materialized != "" {
		md["materialization"] = n.Config.Materialized
	}
	if n.Alias != "" {
		md["alias"] = n.Alias
	}
	if n.Description != "" {
		md["description"] = n.Description
	}
	return md
}

// MergeMetadata returns a new map holding defaults overlaid by overrides.
// Overrides win on key collisions; neither input is modified.
func MergeMetadata(defaults, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(overrides))
	maps.Copy(merged, defaults)
	maps.Copy(merged, overrides)
	return merged
}

// relationName returns database.schema.identifier, skipping empty parts.
func relationName(n Node) string {
	ident := n.Alias
	if ident == "" {
		ident = n.Identifier
	}
	if ident == "" {
		ident = n.Name
	}
	name := ""
	for _, part := range []string{n.Database, n.Schema, ident} {
		if part == "" {
			continue
		}
		if name != "" {
			name += "."
		}
		name += part
	}
	return name
}
