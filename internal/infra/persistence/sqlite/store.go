// Package sqlite stores checkpoints in a single SQLite table, one JSON
// payload per snapshot, using the pure Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"meshcore/internal/infra/persistence"
	"meshcore/pkg/domain"
)

var _ domain.CheckpointStore = (*Store)(nil)

// DefaultPath is used when NewStore receives an empty path.
const DefaultPath = "meshdata/checkpoints.db"

const schema = `CREATE TABLE IF NOT EXISTS checkpoints (
	id TEXT PRIMARY KEY,
	label TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	space_dim INTEGER NOT NULL,
	roots INTEGER NOT NULL,
	refinements INTEGER NOT NULL,
	payload BLOB NOT NULL
)`

// Store implements domain.CheckpointStore on SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the database at path. ":memory:" keeps
// the database in memory for the lifetime of the store.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create checkpoints table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Save upserts the snapshot row.
func (s *Store) Save(ctx context.Context, snapshot domain.Snapshot) error {
	payload, err := persistence.Encode(snapshot)
	if err != nil {
		return err
	}
	sum := snapshot.Summary()
	_, err = s.db.ExecContext(ctx, `INSERT INTO checkpoints(id,label,created_at,space_dim,roots,refinements,payload)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET label=excluded.label, created_at=excluded.created_at,
			space_dim=excluded.space_dim, roots=excluded.roots, refinements=excluded.refinements,
			payload=excluded.payload`,
		sum.ID, sum.Label, sum.CreatedAt.UnixNano(), sum.SpaceDim, sum.Roots, sum.Refinements, payload)
	if err != nil {
		return fmt.Errorf("upsert checkpoint %s: %w", snapshot.ID, err)
	}
	return nil
}

// Load decodes the stored payload.
func (s *Store) Load(ctx context.Context, id string) (domain.Snapshot, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM checkpoints WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Snapshot{}, persistence.NotFound(id)
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("select checkpoint %s: %w", id, err)
	}
	return persistence.Decode(payload)
}

// List reads the summary columns only.
func (s *Store) List(ctx context.Context) ([]domain.SnapshotSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, label, created_at, space_dim, roots, refinements
		FROM checkpoints ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := []domain.SnapshotSummary{}
	for rows.Next() {
		var sum domain.SnapshotSummary
		var created int64
		if err := rows.Scan(&sum.ID, &sum.Label, &created, &sum.SpaceDim, &sum.Roots, &sum.Refinements); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		sum.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return out, nil
}

// Delete removes id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return persistence.NotFound(id)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database path.
func (s *Store) Path() string { return s.path }
