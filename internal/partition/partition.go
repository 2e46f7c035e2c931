// Package partition implements daily time-window partitions.
package partition

import (
	"fmt"
	"time"

	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
)

// KeyFormat is the layout of daily partition keys.
const KeyFormat = "2006-01-02"

// TimeWindow is the half-open interval [Start, End) covered by a partition.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// StartDate returns Start formatted as a partition key.
func (w TimeWindow) StartDate() string {
	return w.Start.Format(KeyFormat)
}

// EndDate returns End formatted as a partition key.
func (w TimeWindow) EndDate() string {
	return w.End.Format(KeyFormat)
}

// String returns the window as "[start, end)".
func (w TimeWindow) String() string {
	return "[" + w.StartDate() + ", " + w.EndDate() + ")"
}

// Daily is a daily partitions definition. Partitions start at midnight in
// Location and the first partition begins at Start.
type Daily struct {
	Start    time.Time
	Location *time.Location
}

// NewDaily creates a daily partitions definition starting on the given
// date. A nil location means UTC.
func NewDaily(start string, loc *time.Location) (*Daily, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(KeyFormat, start, loc)
	if err != nil {
		return nil, oerrors.NewValidationError(
			fmt.Sprintf("invalid partition start date %q", start),
			"partitions.start",
			"start",
			"use the YYYY-MM-DD format, e.g. 2025-01-01",
		)
	}
	return &Daily{Start: t, Location: loc}, nil
}

// MustDaily is like NewDaily but panics on an invalid start date.
func MustDaily(start string, loc *time.Location) *Daily {
	d, err := NewDaily(start, loc)
	if err != nil {
		panic(err)
	}
	return d
}

// StartKey returns the key of the first partition.
func (d *Daily) StartKey() string {
	return d.Start.Format(KeyFormat)
}

// parseKey parses key in the definition's location and checks it is not
// before the first partition.
func (d *Daily) parseKey(key string) (time.Time, error) {
	t, err := time.ParseInLocation(KeyFormat, key, d.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid partition key %q: expected %s",
			oerrors.ErrValidation, key, KeyFormat)
	}
	if t.Before(d.Start) {
		return time.Time{}, fmt.Errorf("%w: partition key %q is before the first partition %s",
			oerrors.ErrValidation, key, d.StartKey())
	}
	return t, nil
}

// Contains reports whether key names a partition of this definition.
func (d *Daily) Contains(key string) bool {
	_, err := d.parseKey(key)
	return err == nil
}

// TimeWindowForKey returns the window covered by the partition key.
func (d *Daily) TimeWindowForKey(key string) (TimeWindow, error) {
	start, err := d.parseKey(key)
	if err != nil {
		return TimeWindow{}, err
	}
	return TimeWindow{Start: start, End: start.AddDate(0, 0, 1)}, nil
}

// KeyForTime returns the key of the partition containing t. The boolean is
// false when t is before the first partition.
func (d *Daily) KeyForTime(t time.Time) (string, bool) {
	t = t.In(d.Location)
	if t.Before(d.Start) {
		return "", false
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, d.Location)
	return day.Format(KeyFormat), true
}

// Keys returns every complete partition as of now, oldest first. A
// partition is complete once its window has ended.
func (d *Daily) Keys(now time.Time) []string {
	var keys []string
	for day := d.Start; !day.AddDate(0, 0, 1).After(now); day = day.AddDate(0, 0, 1) {
		keys = append(keys, day.Format(KeyFormat))
	}
	return keys
}

// LastKey returns the most recent complete partition as of now.
func (d *Daily) LastKey(now time.Time) (string, bool) {
	current, ok := d.KeyForTime(now)
	if !ok {
		return "", false
	}
	day, _ := time.ParseInLocation(KeyFormat, current, d.Location)
	prev := day.AddDate(0, 0, -1)
	if prev.Before(d.Start) {
		return "", false
	}
	return prev.Format(KeyFormat), true
}

// KeysBetween returns the keys from first to last inclusive.
func (d *Daily) KeysBetween(first, last string) ([]string, error) {
	from, err := d.parseKey(first)
	if err != nil {
		return nil, err
	}
	to, err := d.parseKey(last)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: partition range %s..%s is reversed", oerrors.ErrValidation, first, last)
	}

	var keys []string
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		keys = append(keys, day.Format(KeyFormat))
	}
	return keys, nil
}
