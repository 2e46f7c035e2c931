// Package runs is the SQLite ledger of runs, materializations, checks and
// schedule ticks.
package runs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dbtlearn/orchestrator/internal/asset"
	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	job           TEXT NOT NULL,
	asset_group   TEXT NOT NULL,
	partition_key TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	started_at    TEXT NOT NULL,
	finished_at   TEXT,
	error         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_group ON runs(asset_group);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

CREATE TABLE IF NOT EXISTS materializations (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT NOT NULL REFERENCES runs(id),
	asset_key      TEXT NOT NULL,
	partition_key  TEXT NOT NULL DEFAULT '',
	unique_id      TEXT NOT NULL,
	status         TEXT NOT NULL,
	execution_time REAL NOT NULL DEFAULT 0,
	ts             TEXT NOT NULL,
	metadata       TEXT
);
CREATE INDEX IF NOT EXISTS idx_mat_run ON materializations(run_id);
CREATE INDEX IF NOT EXISTS idx_mat_asset ON materializations(asset_key, partition_key);

CREATE TABLE IF NOT EXISTS checks (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id    TEXT NOT NULL REFERENCES runs(id),
	name      TEXT NOT NULL,
	asset_key TEXT NOT NULL DEFAULT '',
	passed    INTEGER NOT NULL,
	status    TEXT NOT NULL,
	message   TEXT NOT NULL DEFAULT '',
	ts        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checks_run ON checks(run_id);

CREATE TABLE IF NOT EXISTS ticks (
	schedule   TEXT NOT NULL,
	tick       TEXT NOT NULL,
	claimed_at TEXT NOT NULL,
	PRIMARY KEY (schedule, tick)
);
`

// Fixed-width UTC timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a run ledger backed by one SQLite file.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var _ asset.Recorder = (*Store)(nil)

// Open opens the ledger at path, creating the file and its parent
// directory when missing.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating runs directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening runs database %s: %w", path, err)
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, now: time.Now}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("configuring runs database: %w", err)
		}
	}
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating runs schema: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun inserts a run.
func (s *Store) StartRun(ctx context.Context, run asset.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, job, asset_group, partition_key, status, started_at, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Job, run.Group, run.PartitionKey, string(run.Status), formatTime(run.StartedAt), run.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun sets the final status of a run.
func (s *Store) FinishRun(ctx context.Context, runID string, status asset.RunStatus, finishedAt time.Time, errText string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, error = ? WHERE id = ?`,
		string(status), formatTime(finishedAt), errText, runID,
	)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: run %s", oerrors.ErrNotFound, runID)
	}
	return nil
}

// RecordMaterialization inserts a materialization.
func (s *Store) RecordMaterialization(ctx context.Context, m asset.Materialization) error {
	var meta sql.NullString
	if len(m.Metadata) > 0 {
		data, err := json.Marshal(m.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata of %s: %w", m.AssetKey, err)
		}
		meta = sql.NullString{String: string(data), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO materializations (run_id, asset_key, partition_key, unique_id, status, execution_time, ts, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.RunID, m.AssetKey, m.PartitionKey, m.UniqueID, m.Status, m.ExecutionTime, formatTime(m.Timestamp), meta,
	)
	if err != nil {
		return fmt.Errorf("inserting materialization of %s: %w", m.AssetKey, err)
	}
	return nil
}

// RecordCheck inserts a check result.
func (s *Store) RecordCheck(ctx context.Context, c asset.CheckResult) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checks (run_id, name, asset_key, passed, status, message, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.RunID, c.Name, c.AssetKey, c.Passed, c.Status, c.Message, formatTime(c.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("inserting check %s: %w", c.Name, err)
	}
	return nil
}

// ListRuns returns the most recent runs first. A limit below one returns
// every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]asset.Run, error) {
	if limit < 1 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job, asset_group, partition_key, status, started_at, finished_at, error
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []asset.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// GetRun returns the run with the given id.
func (s *Store) GetRun(ctx context.Context, id string) (asset.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, job, asset_group, partition_key, status, started_at, finished_at, error
		 FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return asset.Run{}, oerrors.NewNotFoundError(fmt.Sprintf("run %s not found", id), s.path, "run 'dbtlearn runs list'")
	}
	return run, err
}

// Materializations returns the materializations recorded by a run in
// insertion order.
func (s *Store) Materializations(ctx context.Context, runID string) ([]asset.Materialization, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, asset_key, partition_key, unique_id, status, execution_time, ts, metadata
		 FROM materializations WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing materializations of %s: %w", runID, err)
	}
	defer rows.Close()

	var out []asset.Materialization
	for rows.Next() {
		var (
			m    asset.Materialization
			ts   string
			meta sql.NullString
		)
		if err := rows.Scan(&m.RunID, &m.AssetKey, &m.PartitionKey, &m.UniqueID, &m.Status, &m.ExecutionTime, &ts, &meta); err != nil {
			return nil, fmt.Errorf("reading materialization: %w", err)
		}
		if m.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		if meta.Valid {
			if err := json.Unmarshal([]byte(meta.String), &m.Metadata); err != nil {
				return nil, fmt.Errorf("decoding metadata of %s: %w", m.AssetKey, err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Checks returns the check results recorded by a run in insertion order.
func (s *Store) Checks(ctx context.Context, runID string) ([]asset.CheckResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, name, asset_key, passed, status, message, ts
		 FROM checks WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing checks of %s: %w", runID, err)
	}
	defer rows.Close()

	var out []asset.CheckResult
	for rows.Next() {
		var (
			c  asset.CheckResult
			ts string
		)
		if err := rows.Scan(&c.RunID, &c.Name, &c.AssetKey, &c.Passed, &c.Status, &c.Message, &ts); err != nil {
			return nil, fmt.Errorf("reading check: %w", err)
		}
		if c.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MaterializedPartitions returns the sorted partition keys that have at
// least one materialization in the given asset group.
func (s *Store) MaterializedPartitions(ctx context.Context, group string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT m.partition_key
		 FROM materializations m JOIN runs r ON r.id = m.run_id
		 WHERE r.asset_group = ? AND m.partition_key != ''
		 ORDER BY m.partition_key`, group)
	if err != nil {
		return nil, fmt.Errorf("listing partitions of %s: %w", group, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("reading partition key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// ClaimTick records that tick of schedule is being handled. It returns
// false when the tick was already claimed.
func (s *Store) ClaimTick(ctx context.Context, schedule string, tick time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ticks (schedule, tick, claimed_at) VALUES (?, ?, ?)
		 ON CONFLICT(schedule, tick) DO NOTHING`,
		schedule, formatTime(tick), formatTime(s.now()),
	)
	if err != nil {
		return false, fmt.Errorf("claiming tick of %s: %w", schedule, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claiming tick of %s: %w", schedule, err)
	}
	return n == 1, nil
}

// LastTick returns the latest claimed tick of schedule.
func (s *Store) LastTick(ctx context.Context, schedule string) (time.Time, bool, error) {
	var ts sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT MAX(tick) FROM ticks WHERE schedule = ?`, schedule).Scan(&ts)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading last tick of %s: %w", schedule, err)
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	t, err := parseTime(ts.String)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (asset.Run, error) {
	var (
		run      asset.Run
		status   string
		started  string
		finished sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Job, &run.Group, &run.PartitionKey, &status, &started, &finished, &run.Error); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, err
		}
		return run, fmt.Errorf("reading run: %w", err)
	}
	run.Status = asset.RunStatus(status)

	var err error
	if run.StartedAt, err = parseTime(started); err != nil {
		return run, err
	}
	if finished.Valid {
		if run.FinishedAt, err = parseTime(finished.String); err != nil {
			return run, err
		}
	}
	return run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored time %q: %w", s, err)
	}
	return t, nil
}
