package output

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ModifiedItem is a changed asset and its rendered field diff.
type ModifiedItem struct {
	Name string
	Diff string
}

type diffSection struct {
	title  string
	marker string
	style  lipgloss.Style
	names  []string
	diffs  []string
}

// RenderDiff renders added, removed and modified asset keys followed by a
// summary line. Each modified key is followed by its diff, indented.
func RenderDiff(added, removed []string, modified []ModifiedItem) string {
	if len(added)+len(removed)+len(modified) == 0 {
		return "No changes detected."
	}

	mod := diffSection{title: "Modified:", marker: "~", style: lipgloss.NewStyle().Foreground(ColorYellow)}
	for _, m := range modified {
		mod.names = append(mod.names, m.Name)
		mod.diffs = append(mod.diffs, m.Diff)
	}
	sections := []diffSection{
		{title: "Added:", marker: "+", style: lipgloss.NewStyle().Foreground(ColorGreen), names: added},
		{title: "Removed:", marker: "-", style: lipgloss.NewStyle().Bold(true).Foreground(ColorBoldRed), names: removed},
		mod,
	}

	var sb strings.Builder
	for _, s := range sections {
		if len(s.names) == 0 {
			continue
		}
		sb.WriteString(s.style.Render(s.title) + "\n")
		for i, name := range s.names {
			fmt.Fprintf(&sb, "  %s %s\n", s.marker, s.style.Render(name))
			if s.diffs != nil {
				sb.WriteString(IndentDiff(s.diffs[i], "    "))
			}
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Summary: %s\n", diffSummary(len(added), len(removed), len(modified)))
	return sb.String()
}

// IndentDiff prefixes every non-empty line of diff with indent.
func IndentDiff(diff, indent string) string {
	var sb strings.Builder
	for line := range strings.SplitSeq(diff, "\n") {
		if line != "" {
			sb.WriteString(indent + line + "\n")
		}
	}
	return sb.String()
}

func diffSummary(added, removed, modified int) string {
	var parts []string
	for _, c := range []struct {
		n    int
		verb string
	}{{added, "added"}, {removed, "removed"}, {modified, "modified"}} {
		if c.n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", c.n, c.verb))
		}
	}
	if len(parts) == 0 {
		return "No changes"
	}
	return strings.Join(parts, ", ")
}
