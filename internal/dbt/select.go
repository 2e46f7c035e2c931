package dbt

import (
	"fmt"
	"path"
	"sort"
	"strings"

	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
)

// SelectAll is the selector that matches every node.
const SelectAll = "fqn:*"

// Select returns the enabled asset nodes matched by selectExpr and not
// matched by excludeExpr, sorted by unique id. An empty selectExpr selects
// everything.
//
// Supported syntax is the subset of dbt's node selection used by asset
// definitions: space-separated unions, comma-separated intersections,
// methods fqn:, tag:, path:, resource_type:, bare names (fqn method), and
// the + graph operators on either side.
func (m *Manifest) Select(selectExpr, excludeExpr string) ([]Node, error) {
	if strings.TrimSpace(selectExpr) == "" {
		selectExpr = SelectAll
	}

	selected, err := m.evalUnion(selectExpr)
	if err != nil {
		return nil, fmt.Errorf("select %q: %w", selectExpr, err)
	}

	if strings.TrimSpace(excludeExpr) != "" {
		excluded, err := m.evalUnion(excludeExpr)
		if err != nil {
			return nil, fmt.Errorf("exclude %q: %w", excludeExpr, err)
		}
		for id := range excluded {
			delete(selected, id)
		}
	}

	nodes := make([]Node, 0, len(selected))
	for id := range selected {
		n, ok := m.Nodes[id]
		if !ok || !n.IsAsset() || !n.Enabled() {
			continue
		}
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].UniqueID < nodes[j].UniqueID })
	return nodes, nil
}

// evalUnion evaluates a whitespace-separated union of criteria.
func (m *Manifest) evalUnion(expr string) (map[string]bool, error) {
	result := make(map[string]bool)
	for _, token := range strings.Fields(expr) {
		ids, err := m.evalIntersection(token)
		if err != nil {
			return nil, err
		}
		for id := range ids {
			result[id] = true
		}
	}
	return result, nil
}

// evalIntersection evaluates comma-joined criteria that must all match.
func (m *Manifest) evalIntersection(token string) (map[string]bool, error) {
	var result map[string]bool
	for _, part := range strings.Split(token, ",") {
		if part == "" {
			continue
		}
		ids, err := m.evalCriterion(part)
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = ids
			continue
		}
		for id := range result {
			if !ids[id] {
				delete(result, id)
			}
		}
	}
	if result == nil {
		result = map[string]bool{}
	}
	return result, nil
}

// evalCriterion evaluates a single criterion with optional graph operators.
func (m *Manifest) evalCriterion(criterion string) (map[string]bool, error) {
	ancestors := strings.HasPrefix(criterion, "+")
	descendants := strings.HasSuffix(criterion, "+")
	criterion = strings.TrimSuffix(strings.TrimPrefix(criterion, "+"), "+")
	if criterion == "" {
		return nil, oerrors.Wrap(oerrors.ErrValidation, "empty selector")
	}

	method, value := "fqn", criterion
	if i := strings.Index(criterion, ":"); i > 0 {
		method, value = criterion[:i], criterion[i+1:]
	}

	match, err := matcherFor(method, value)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]bool)
	for id, n := range m.Nodes {
		if match(n) {
			ids[id] = true
		}
	}
	for id, n := range m.Sources {
		if match(n) {
			ids[id] = true
		}
	}

	seeds := copySet(ids)
	if ancestors {
		for id := range seeds {
			m.walk(id, m.ParentMap, ids)
		}
	}
	if descendants {
		for id := range seeds {
			m.walk(id, m.ChildMap, ids)
		}
	}
	return ids, nil
}

func (m *Manifest) walk(id string, edges map[string][]string, into map[string]bool) {
	for _, next := range edges[id] {
		if into[next] {
			continue
		}
		into[next] = true
		m.walk(next, edges, into)
	}
}

func matcherFor(method, value string) (func(Node) bool, error) {
	switch method {
	case "fqn":
		return func(n Node) bool { return fqnMatch(value, n.FQN) }, nil
	case "tag":
		return func(n Node) bool {
			for _, t := range n.AllTags() {
				if globMatch(value, t) {
					return true
				}
			}
			return false
		}, nil
	case "path":
		return func(n Node) bool {
			p := n.OriginalFilePath
			return p == value || strings.HasPrefix(p, strings.TrimSuffix(value, "/")+"/") || globMatch(value, p)
		}, nil
	case "resource_type":
		return func(n Node) bool { return n.ResourceType == value }, nil
	default:
		return nil, fmt.Errorf("%w: unsupported selector method %q", oerrors.ErrValidation, method)
	}
}

// fqnMatch mirrors dbt's fqn selector: an exact match on the node name, or a
// dot-separated prefix of the fqn where each part may be a glob.
func fqnMatch(selector string, fqn []string) bool {
	if len(fqn) == 0 {
		return false
	}
	if selector == fqn[len(fqn)-1] {
		return true
	}
	parts := strings.Split(selector, ".")
	if len(parts) > len(fqn) {
		return false
	}
	for i, part := range parts {
		if !globMatch(part, fqn[i]) {
			return false
		}
	}
	return true
}

func globMatch(pattern, s string) bool {
	if !strings.ContainsAny(pattern, "*?[") {
		return pattern == s
	}
	ok, err := path.Match(pattern, s)
	return err == nil && ok
}

func copySet(s map[string]bool) map[string]bool {
	out := make(map[string]bool, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
