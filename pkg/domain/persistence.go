package domain

import (
	"context"
	"fmt"
)

// CheckpointStore persists topology snapshots.
type CheckpointStore interface {
	Save(ctx context.Context, snapshot Snapshot) error
	Load(ctx context.Context, id string) (Snapshot, error)
	List(ctx context.Context) ([]SnapshotSummary, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// EntitySnapshot is the record kind reported by ErrNotFound.
const EntitySnapshot = "snapshot"

// ErrNotFound reports a missing record.
type ErrNotFound struct {
	Entity string
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}
