package asset

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/gonvenience/ytbx"
	"github.com/homeport/dyff/pkg/dyff"
	"sigs.k8s.io/yaml"

	"github.com/dbtlearn/orchestrator/internal/output"
)

// DiffResult is the change between two sets of asset specs, matched by key.
type DiffResult struct {
	Added    []string
	Removed  []string
	Modified []output.ModifiedItem
}

// HasChanges reports whether anything was added, removed or modified.
func (r *DiffResult) HasChanges() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0 || len(r.Modified) > 0
}

// Render formats the result for the terminal.
func (r *DiffResult) Render() string {
	return output.RenderDiff(r.Added, r.Removed, r.Modified)
}

// DiffSpecs compares the specs declared from a previous manifest with the
// current ones. Modified specs carry a YAML-aware field diff.
func DiffSpecs(previous, current []Spec, useColor bool) (*DiffResult, error) {
	prev := indexSpecs(previous)
	curr := indexSpecs(current)

	result := &DiffResult{}
	for key := range curr {
		if _, ok := prev[key]; !ok {
			result.Added = append(result.Added, key)
		}
	}
	for key := range prev {
		if _, ok := curr[key]; !ok {
			result.Removed = append(result.Removed, key)
		}
	}
	sort.Strings(result.Added)
	sort.Strings(result.Removed)

	keys := make([]string, 0, len(curr))
	for key := range curr {
		if _, ok := prev[key]; ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		before, err := yaml.Marshal(prev[key])
		if err != nil {
			return nil, fmt.Errorf("serializing previous spec %s: %w", key, err)
		}
		after, err := yaml.Marshal(curr[key])
		if err != nil {
			return nil, fmt.Errorf("serializing current spec %s: %w", key, err)
		}
		if bytes.Equal(before, after) {
			continue
		}
		diff, err := diffYAML(before, after, useColor)
		if err != nil {
			return nil, fmt.Errorf("comparing %s: %w", key, err)
		}
		if diff == "" {
			continue
		}
		result.Modified = append(result.Modified, output.ModifiedItem{Name: key, Diff: diff})
	}
	return result, nil
}

func indexSpecs(specs []Spec) map[string]Spec {
	idx := make(map[string]Spec, len(specs))
	for _, s := range specs {
		idx[s.Key] = s
	}
	return idx
}

// diffYAML computes a dyff report between two YAML documents. An empty
// string means no semantic difference.
func diffYAML(before, after []byte, useColor bool) (string, error) {
	from, err := yamlInput("previous", before)
	if err != nil {
		return "", fmt.Errorf("parsing previous YAML: %w", err)
	}
	to, err := yamlInput("current", after)
	if err != nil {
		return "", fmt.Errorf("parsing current YAML: %w", err)
	}

	report, err := dyff.CompareInputFiles(from, to)
	if err != nil {
		return "", fmt.Errorf("comparing YAML: %w", err)
	}
	if len(report.Diffs) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	writer := &dyff.HumanReport{
		Report:            report,
		DoNotInspectCerts: true,
		NoTableStyle:      !useColor,
		OmitHeader:        true,
	}
	if err := writer.WriteReport(io.Writer(&buf)); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}

	lines := strings.Split(buf.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

func yamlInput(name string, data []byte) (ytbx.InputFile, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ytbx.InputFile{Location: name}, nil
	}
	docs, err := ytbx.LoadYAMLDocuments(data)
	if err != nil {
		return ytbx.InputFile{}, err
	}
	return ytbx.InputFile{Location: name, Documents: docs}, nil
}
