package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"meshcore/internal/infra/persistence/storetest"
	"meshcore/pkg/domain"
)

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.CheckpointStore {
		s, err := NewStore(":memory:")
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "checkpoints.db")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.Path() != path {
		t.Fatalf("path %q", s.Path())
	}
	if err := s.Save(ctx, storetest.Snapshot("a", time.Now())); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	got, err := reopened.Load(ctx, "a")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Roots) != 2 || got.Refinements[0].FirstChild != 2 {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	var tableName string
	if err := reopened.DB().QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, "checkpoints").Scan(&tableName); err != nil {
		t.Fatalf("lookup table: %v", err)
	}
}

func TestSQLiteStoreRejectsCorruptPayload(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()
	if _, err := s.DB().Exec(`INSERT INTO checkpoints(id,created_at,space_dim,roots,refinements,payload) VALUES('bad',0,2,0,0,'{not json')`); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(ctx, "bad"); err == nil {
		t.Fatalf("expected decode error")
	}
}
