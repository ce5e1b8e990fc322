// Package postgres provides a PostgreSQL-backed [stats.Store] for deployments
// where multiple coaching instances share one statistics database.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dialcoach/dialcoach/internal/outcome"
	"github.com/dialcoach/dialcoach/internal/stats"
)

var _ stats.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS opener_stats (
    opener_id       TEXT         PRIMARY KEY,
    total_uses      BIGINT       NOT NULL DEFAULT 0,
    successful_uses BIGINT       NOT NULL DEFAULT 0,
    last_used       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE SEQUENCE IF NOT EXISTS opener_stats_generation;
`

// Store persists opener statistics in PostgreSQL over a single
// [pgxpool.Pool]. All operations are safe for concurrent use; the counter
// increment in [Store.Record] is a single atomic upsert, so concurrent
// recordings from multiple instances never lose updates.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the database at dsn and ensures
// the statistics schema exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres stats: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres stats: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres stats: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres stats: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Record implements [stats.Store]. The CTE bumps the generation sequence in
// the same statement as the upsert.
func (s *Store) Record(ctx context.Context, openerID string, oc outcome.Outcome) error {
	if !oc.IsValid() {
		return fmt.Errorf("postgres stats: record %q: invalid outcome %q", openerID, oc)
	}

	success := 0
	if oc == outcome.OutcomeStayed {
		success = 1
	}

	const q = `
		WITH bump AS (
		    SELECT nextval('opener_stats_generation')
		)
		INSERT INTO opener_stats (opener_id, total_uses, successful_uses, last_used)
		SELECT $1, 1, $2, now() FROM bump
		ON CONFLICT (opener_id) DO UPDATE SET
		    total_uses      = opener_stats.total_uses + 1,
		    successful_uses = opener_stats.successful_uses + EXCLUDED.successful_uses,
		    last_used       = now()`

	if _, err := s.pool.Exec(ctx, q, openerID, success); err != nil {
		return fmt.Errorf("postgres stats: record %q: %w", openerID, err)
	}
	return nil
}

// Get implements [stats.Store].
func (s *Store) Get(ctx context.Context, openerID string) (stats.OpenerStatistics, error) {
	const q = `
		SELECT opener_id, total_uses, successful_uses, last_used
		FROM   opener_stats
		WHERE  opener_id = $1`

	var rec stats.OpenerStatistics
	err := s.pool.QueryRow(ctx, q, openerID).Scan(
		&rec.OpenerID,
		&rec.TotalUses,
		&rec.SuccessfulUses,
		&rec.LastUsed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return stats.OpenerStatistics{}, fmt.Errorf("postgres stats: get %q: %w", openerID, stats.ErrNotFound)
	}
	if err != nil {
		return stats.OpenerStatistics{}, fmt.Errorf("postgres stats: get %q: %w", openerID, err)
	}
	return rec, nil
}

// All implements [stats.Store]. The generation counter and the rows are read
// in one transaction so the snapshot is consistent.
func (s *Store) All(ctx context.Context) (stats.Snapshot, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return stats.Snapshot{}, fmt.Errorf("postgres stats: all: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// A sequence reports last_value=1 both before and after its first
	// nextval; is_called tells the two apart, so a fresh store reads as
	// generation 0 and the first Record bumps it to 1.
	var snap stats.Snapshot
	if err := tx.QueryRow(ctx,
		`SELECT CASE WHEN is_called THEN last_value ELSE 0 END FROM opener_stats_generation`,
	).Scan(&snap.Generation); err != nil {
		return stats.Snapshot{}, fmt.Errorf("postgres stats: all: read generation: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT opener_id, total_uses, successful_uses, last_used
		FROM   opener_stats
		ORDER  BY opener_id`)
	if err != nil {
		return stats.Snapshot{}, fmt.Errorf("postgres stats: all: query: %w", err)
	}

	snap.Stats, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (stats.OpenerStatistics, error) {
		var rec stats.OpenerStatistics
		err := row.Scan(&rec.OpenerID, &rec.TotalUses, &rec.SuccessfulUses, &rec.LastUsed)
		return rec, err
	})
	if err != nil {
		return stats.Snapshot{}, fmt.Errorf("postgres stats: all: scan rows: %w", err)
	}
	if snap.Stats == nil {
		snap.Stats = []stats.OpenerStatistics{}
	}

	if err := tx.Commit(ctx); err != nil {
		return stats.Snapshot{}, fmt.Errorf("postgres stats: all: commit: %w", err)
	}
	return snap, nil
}
