package partition

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
)

func TestNewDaily(t *testing.T) {
	d, err := NewDaily("2025-01-01", nil)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, d.Location)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), d.Start)
	assert.Equal(t, "2025-01-01", d.StartKey())

	_, err = NewDaily("01/01/2025", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, oerrors.ErrValidation))
}

func TestTimeWindowForKey(t *testing.T) {
	d := MustDaily("2025-01-01", nil)

	w, err := d.TimeWindowForKey("2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), w.End)
	assert.Equal(t, "2025-03-01", w.StartDate())
	assert.Equal(t, "2025-03-02", w.EndDate())
	assert.Equal(t, "[2025-03-01, 2025-03-02)", w.String())
}

func TestTimeWindowForKey_Invalid(t *testing.T) {
	d := MustDaily("2025-01-01", nil)

	tests := []string{"2024-12-31", "2025-13-01", "March 1", ""}
	for _, key := range tests {
		t.Run(key, func(t *testing.T) {
			_, err := d.TimeWindowForKey(key)
			require.Error(t, err)
			assert.True(t, errors.Is(err, oerrors.ErrValidation))
			assert.False(t, d.Contains(key))
		})
	}
}

func TestTimeWindowForKey_MonthAndYearBoundaries(t *testing.T) {
	d := MustDaily("2024-01-01", nil)

	w, err := d.TimeWindowForKey("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", w.EndDate())

	w, err = d.TimeWindowForKey("2024-12-31")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01", w.EndDate())
}

func TestTimeWindowForKey_Location(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)
	d := MustDaily("2025-01-01", loc)

	w, err := d.TimeWindowForKey("2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, loc, w.Start.Location())
	assert.Equal(t, time.Date(2025, 2, 28, 15, 0, 0, 0, time.UTC), w.Start.UTC())
	assert.Equal(t, "2025-03-01", w.StartDate())
}

func TestKeys(t *testing.T) {
	d := MustDaily("2025-01-01", nil)

	tests := []struct {
		name string
		now  time.Time
		want []string
	}{
		{
			name: "before first partition ends",
			now:  time.Date(2025, 1, 1, 23, 59, 0, 0, time.UTC),
			want: nil,
		},
		{
			name: "exactly at end of first partition",
			now:  time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
			want: []string{"2025-01-01"},
		},
		{
			name: "mid day excludes the current day",
			now:  time.Date(2025, 1, 4, 5, 0, 0, 0, time.UTC),
			want: []string{"2025-01-01", "2025-01-02", "2025-01-03"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Keys(tt.now))
		})
	}
}

func TestLastKey(t *testing.T) {
	d := MustDaily("2025-01-01", nil)

	key, ok := d.LastKey(time.Date(2025, 3, 2, 5, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, "2025-03-01", key)

	_, ok = d.LastKey(time.Date(2025, 1, 1, 5, 0, 0, 0, time.UTC))
	assert.False(t, ok)

	_, ok = d.LastKey(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}

func TestKeyForTime(t *testing.T) {
	d := MustDaily("2025-01-01", nil)

	key, ok := d.KeyForTime(time.Date(2025, 3, 1, 23, 59, 59, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, "2025-03-01", key)

	_, ok = d.KeyForTime(time.Date(2024, 12, 31, 12, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}

func TestKeysBetween(t *testing.T) {
	d := MustDaily("2025-01-01", nil)

	keys, err := d.KeysBetween("2025-02-27", "2025-03-02")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-02-27", "2025-02-28", "2025-03-01", "2025-03-02"}, keys)

	keys, err = d.KeysBetween("2025-03-01", "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-01"}, keys)

	_, err = d.KeysBetween("2025-03-02", "2025-03-01")
	assert.True(t, errors.Is(err, oerrors.ErrValidation))

	_, err = d.KeysBetween("2024-12-30", "2025-01-02")
	assert.True(t, errors.Is(err, oerrors.ErrValidation))
}
