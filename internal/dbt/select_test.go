package dbt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
)

func names(nodes []Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Name)
	}
	return out
}

func TestSelect(t *testing.T) {
	m := loadFixture(t)

	tests := []struct {
		name    string
		sel     string
		exclude string
		want    []string
	}{
		{
			name: "fqn wildcard selects every asset",
			sel:  "fqn:*",
			want: []string{"scd_raw_listings", "seed_full_moon_dates", "dim_hosts_cleansed",
				"dim_listings_cleansed", "dim_listings_w_hosts", "fct_reviews", "mart_fullmoon_reviews"},
		},
		{
			name: "empty select means everything",
			sel:  "",
			want: []string{"scd_raw_listings", "seed_full_moon_dates", "dim_hosts_cleansed",
				"dim_listings_cleansed", "dim_listings_w_hosts", "fct_reviews", "mart_fullmoon_reviews"},
		},
		{
			name:    "exclude one model",
			sel:     "fqn:*",
			exclude: "fct_reviews",
			want: []string{"scd_raw_listings", "seed_full_moon_dates", "dim_hosts_cleansed",
				"dim_listings_cleansed", "dim_listings_w_hosts", "mart_fullmoon_reviews"},
		},
		{
			name: "bare name",
			sel:  "fct_reviews",
			want: []string{"fct_reviews"},
		},
		{
			name: "fqn folder prefix",
			sel:  "fqn:dbtlearn.dim",
			want: []string{"dim_hosts_cleansed", "dim_listings_cleansed", "dim_listings_w_hosts"},
		},
		{
			name: "fqn glob",
			sel:  "fqn:dbtlearn.dim.dim_listings_*",
			want: []string{"dim_listings_cleansed", "dim_listings_w_hosts"},
		},
		{
			name: "tag",
			sel:  "tag:mart",
			want: []string{"mart_fullmoon_reviews"},
		},
		{
			name: "path prefix",
			sel:  "path:models/fct",
			want: []string{"fct_reviews"},
		},
		{
			name: "resource type",
			sel:  "resource_type:seed",
			want: []string{"seed_full_moon_dates"},
		},
		{
			name: "union",
			sel:  "fct_reviews tag:mart",
			want: []string{"fct_reviews", "mart_fullmoon_reviews"},
		},
		{
			name: "intersection",
			sel:  "tag:dim,fqn:dbtlearn.dim.dim_hosts_cleansed",
			want: []string{"dim_hosts_cleansed"},
		},
		{
			name: "descendants",
			sel:  "fct_reviews+",
			want: []string{"fct_reviews", "mart_fullmoon_reviews"},
		},
		{
			name: "ancestors skip ephemeral and sources",
			sel:  "+dim_listings_w_hosts",
			want: []string{"dim_hosts_cleansed", "dim_listings_cleansed", "dim_listings_w_hosts"},
		},
		{
			name: "disabled model never selected",
			sel:  "dim_legacy",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, err := m.Select(tt.sel, tt.exclude)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, names(nodes))
		})
	}
}

func TestSelect_UnknownMethod(t *testing.T) {
	m := loadFixture(t)

	_, err := m.Select("config.materialized:table", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, oerrors.ErrValidation))
}

func TestSelect_SortedByUniqueID(t *testing.T) {
	m := loadFixture(t)

	nodes, err := m.Select("fqn:*", "")
	require.NoError(t, err)
	for i := 1; i < len(nodes); i++ {
		assert.Less(t, nodes[i-1].UniqueID, nodes[i].UniqueID)
	}
}

func TestFqnMatch(t *testing.T) {
	fqn := []string{"dbtlearn", "fct", "fct_reviews"}

	assert.True(t, fqnMatch("*", fqn))
	assert.True(t, fqnMatch("fct_reviews", fqn))
	assert.True(t, fqnMatch("dbtlearn.fct", fqn))
	assert.True(t, fqnMatch("dbtlearn.*.fct_reviews", fqn))
	assert.False(t, fqnMatch("fct", fqn))
	assert.False(t, fqnMatch("dbtlearn.fct.fct_reviews.extra", fqn))
	assert.False(t, fqnMatch("*", nil))
}
