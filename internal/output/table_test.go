package output

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable(t *testing.T) {
	tbl := NewTable("PARTITION", "STATUS").
		Row("2025-03-01", "materialized").
		Row("2025-03-02", "missing")

	assert.Equal(t, 2, tbl.Len())

	out := tbl.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	// header, rule, two rows
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[0], "PARTITION")
	assert.Contains(t, lines[2], "2025-03-01")
	assert.Contains(t, lines[3], "missing")
	assert.NotContains(t, out, "│")
}

func TestTable_Empty(t *testing.T) {
	tbl := NewTable("RUN", "STATUS")
	assert.Equal(t, 0, tbl.Len())
	assert.Contains(t, tbl.String(), "RUN")
}
