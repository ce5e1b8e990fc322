// Package sqlite provides a SQLite-backed [stats.Store] for single-host
// deployments where opener statistics must survive restarts without an
// external database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver.

	"github.com/dialcoach/dialcoach/internal/outcome"
	"github.com/dialcoach/dialcoach/internal/stats"
)

var _ stats.Store = (*Store)(nil)

// Store persists opener statistics in a SQLite database file.
// All methods are safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at path and applies migrations.
// Parent directories are created as needed.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sqlite stats: create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite stats: open: %w", err)
	}
	// Concurrent Record calls arrive from HTTP handlers; a single connection
	// serializes them instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite stats: migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS opener_stats (
			opener_id       TEXT    PRIMARY KEY,
			total_uses      INTEGER NOT NULL DEFAULT 0,
			successful_uses INTEGER NOT NULL DEFAULT 0,
			last_used       TEXT    NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS stats_meta (
			key   TEXT    PRIMARY KEY,
			value INTEGER NOT NULL
		);`,
		`INSERT OR IGNORE INTO stats_meta (key, value) VALUES ('generation', 0);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Record implements [stats.Store]. The counter increment and the generation
// bump happen in one transaction.
func (s *Store) Record(ctx context.Context, openerID string, oc outcome.Outcome) error {
	if !oc.IsValid() {
		return fmt.Errorf("sqlite stats: record %q: invalid outcome %q", openerID, oc)
	}

	success := 0
	if oc == outcome.OutcomeStayed {
		success = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite stats: record %q: begin: %w", openerID, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO opener_stats (opener_id, total_uses, successful_uses, last_used)
		 VALUES (?, 1, ?, ?)
		 ON CONFLICT (opener_id) DO UPDATE SET
		     total_uses      = total_uses + 1,
		     successful_uses = successful_uses + excluded.successful_uses,
		     last_used       = excluded.last_used`,
		openerID, success, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite stats: record %q: upsert: %w", openerID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE stats_meta SET value = value + 1 WHERE key = 'generation'`,
	); err != nil {
		return fmt.Errorf("sqlite stats: record %q: bump generation: %w", openerID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite stats: record %q: commit: %w", openerID, err)
	}
	return nil
}

// Get implements [stats.Store].
func (s *Store) Get(ctx context.Context, openerID string) (stats.OpenerStatistics, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT opener_id, total_uses, successful_uses, last_used
		 FROM opener_stats WHERE opener_id = ?`, openerID)

	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return stats.OpenerStatistics{}, fmt.Errorf("sqlite stats: get %q: %w", openerID, stats.ErrNotFound)
	}
	if err != nil {
		return stats.OpenerStatistics{}, fmt.Errorf("sqlite stats: get %q: %w", openerID, err)
	}
	return rec, nil
}

// All implements [stats.Store]. The generation counter and the rows are read
// in one transaction so the snapshot is consistent.
func (s *Store) All(ctx context.Context) (stats.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return stats.Snapshot{}, fmt.Errorf("sqlite stats: all: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var snap stats.Snapshot
	if err := tx.QueryRowContext(ctx,
		`SELECT value FROM stats_meta WHERE key = 'generation'`,
	).Scan(&snap.Generation); err != nil {
		return stats.Snapshot{}, fmt.Errorf("sqlite stats: all: read generation: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT opener_id, total_uses, successful_uses, last_used
		 FROM opener_stats ORDER BY opener_id`)
	if err != nil {
		return stats.Snapshot{}, fmt.Errorf("sqlite stats: all: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snap.Stats = []stats.OpenerStatistics{}
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return stats.Snapshot{}, fmt.Errorf("sqlite stats: all: scan: %w", err)
		}
		snap.Stats = append(snap.Stats, rec)
	}
	if err := rows.Err(); err != nil {
		return stats.Snapshot{}, fmt.Errorf("sqlite stats: all: rows: %w", err)
	}
	return snap, nil
}

// scanRecord scans one opener_stats row, parsing the stored RFC 3339 time.
func scanRecord(scan func(dest ...any) error) (stats.OpenerStatistics, error) {
	var (
		rec      stats.OpenerStatistics
		lastUsed string
	)
	if err := scan(&rec.OpenerID, &rec.TotalUses, &rec.SuccessfulUses, &lastUsed); err != nil {
		return stats.OpenerStatistics{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, lastUsed)
	if err != nil {
		return stats.OpenerStatistics{}, fmt.Errorf("parse last_used: %w", err)
	}
	rec.LastUsed = t
	return rec, nil
}
