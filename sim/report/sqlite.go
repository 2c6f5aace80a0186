package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/imp-sim/imp-sim/sim/supply"
	"github.com/imp-sim/imp-sim/sim/trace"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	scenario      TEXT NOT NULL,
	seed          INTEGER NOT NULL,
	horizon       INTEGER NOT NULL,
	ticks_per_day INTEGER NOT NULL,
	balance       TEXT NOT NULL,
	summary       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	run_id    TEXT NOT NULL,
	seq       INTEGER NOT NULL,
	time      INTEGER NOT NULL,
	kind      TEXT NOT NULL,
	location  TEXT NOT NULL,
	target    TEXT NOT NULL,
	patient   TEXT NOT NULL,
	quantity  INTEGER NOT NULL,
	shortfall INTEGER NOT NULL,
	level     INTEGER,
	detail    TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS events_kind ON events (run_id, kind);
CREATE TABLE IF NOT EXISTS tiers (
	run_id      TEXT NOT NULL,
	name        TEXT NOT NULL,
	role        TEXT NOT NULL,
	level       INTEGER NOT NULL,
	capacity    INTEGER NOT NULL,
	wasted      INTEGER NOT NULL,
	waiting     INTEGER NOT NULL,
	open_orders INTEGER NOT NULL,
	PRIMARY KEY (run_id, name)
)`

// SQLiteStore exports runs to a SQLite database. Several runs (a sweep) can
// share one database; rows are keyed by run_id.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; sweeps serialize their exports through this handle.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WriteRun stores a run, its tiers and its full event log in one transaction.
func (s *SQLiteStore) WriteRun(ctx context.Context, res *supply.Result) (retErr error) {
	balance, err := json.Marshal(res.Balance)
	if err != nil {
		return fmt.Errorf("encode balance: %w", err)
	}
	summary, err := json.Marshal(res.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, scenario, seed, horizon, ticks_per_day, balance, summary) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.Scenario, res.Seed, res.Horizon, res.TicksPerDay, string(balance), string(summary)); err != nil {
		return fmt.Errorf("insert run %s: %w", res.RunID, err)
	}

	tierStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO tiers (run_id, name, role, level, capacity, wasted, waiting, open_orders) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare tiers: %w", err)
	}
	defer func() { _ = tierStmt.Close() }()
	for _, t := range res.Tiers {
		if _, err := tierStmt.ExecContext(ctx, res.RunID, t.Name, string(t.Role), t.Level, t.Capacity, t.Wasted, t.Waiting, t.OpenOrders); err != nil {
			return fmt.Errorf("insert tier %s: %w", t.Name, err)
		}
	}

	eventStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (run_id, seq, time, kind, location, target, patient, quantity, shortfall, level, detail) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare events: %w", err)
	}
	defer func() { _ = eventStmt.Close() }()
	for _, r := range res.Records {
		var level any
		if r.Level != nil {
			level = *r.Level
		}
		if _, err := eventStmt.ExecContext(ctx, res.RunID, r.Seq, r.Time, string(r.Kind), r.Location, r.Target, r.Patient, r.Quantity, r.Shortfall, level, r.Detail); err != nil {
			return fmt.Errorf("insert event %d: %w", r.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", res.RunID, err)
	}
	return nil
}

// Events reads back the event log of a run in sequence order.
func (s *SQLiteStore) Events(ctx context.Context, runID string) ([]trace.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, time, kind, location, target, patient, quantity, shortfall, level, detail FROM events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var records []trace.Record
	for rows.Next() {
		var r trace.Record
		var kind string
		var level sql.NullInt64
		if err := rows.Scan(&r.Seq, &r.Time, &kind, &r.Location, &r.Target, &r.Patient, &r.Quantity, &r.Shortfall, &level, &r.Detail); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		r.Kind = trace.Kind(kind)
		if level.Valid {
			r.Level = trace.Int(level.Int64)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Balance reads back the unit ledger of a run.
func (s *SQLiteStore) Balance(ctx context.Context, runID string) (supply.Balance, error) {
	var b supply.Balance
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM runs WHERE run_id = ?`, runID).Scan(&raw)
	if err != nil {
		return b, fmt.Errorf("select run %s: %w", runID, err)
	}
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return b, fmt.Errorf("decode balance: %w", err)
	}
	return b, nil
}

// RunIDs lists the stored runs in insertion order.
func (s *SQLiteStore) RunIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id FROM runs ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
