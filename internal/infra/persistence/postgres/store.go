// Package postgres stores checkpoints in Postgres with a JSONB payload per
// snapshot, through the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"meshcore/internal/infra/persistence"
	"meshcore/pkg/domain"
)

var _ domain.CheckpointStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when NewStore receives an empty DSN.
	DefaultDSN = "postgres://localhost/meshcore?sslmode=disable"
)

const schema = `CREATE TABLE IF NOT EXISTS checkpoints (
	id TEXT PRIMARY KEY,
	label TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	space_dim INTEGER NOT NULL,
	roots INTEGER NOT NULL,
	refinements INTEGER NOT NULL,
	payload JSONB NOT NULL
)`

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store implements domain.CheckpointStore on Postgres.
type Store struct {
	db *sql.DB
}

// NewStore connects, pings and ensures the checkpoints table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure checkpoints table: %w", err)
	}
	return &Store{db: db}, nil
}

// Save upserts the snapshot row.
func (s *Store) Save(ctx context.Context, snapshot domain.Snapshot) error {
	payload, err := persistence.Encode(snapshot)
	if err != nil {
		return err
	}
	sum := snapshot.Summary()
	_, err = s.db.ExecContext(ctx, `INSERT INTO checkpoints (id, label, created_at, space_dim, roots, refinements, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET label=EXCLUDED.label, created_at=EXCLUDED.created_at,
			space_dim=EXCLUDED.space_dim, roots=EXCLUDED.roots, refinements=EXCLUDED.refinements,
			payload=EXCLUDED.payload`,
		sum.ID, sum.Label, sum.CreatedAt.UTC(), int64(sum.SpaceDim), int64(sum.Roots), int64(sum.Refinements), string(payload))
	if err != nil {
		return fmt.Errorf("upsert checkpoint %s: %w", snapshot.ID, err)
	}
	return nil
}

// Load decodes the stored payload.
func (s *Store) Load(ctx context.Context, id string) (domain.Snapshot, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM checkpoints WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Snapshot{}, persistence.NotFound(id)
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("select checkpoint %s: %w", id, err)
	}
	return persistence.Decode(payload)
}

// List reads the summary columns.
func (s *Store) List(ctx context.Context) ([]domain.SnapshotSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, label, created_at, space_dim, roots, refinements FROM checkpoints ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := []domain.SnapshotSummary{}
	for rows.Next() {
		var sum domain.SnapshotSummary
		var created time.Time
		if err := rows.Scan(&sum.ID, &sum.Label, &created, &sum.SpaceDim, &sum.Roots, &sum.Refinements); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		sum.CreatedAt = created.UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	persistence.SortSummaries(out)
	return out, nil
}

// Delete removes id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return persistence.NotFound(id)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the opener for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
