// Package memory is the in-process checkpoint store. Snapshots are kept in
// their encoded form so callers never share slices with the store.
package memory

import (
	"context"
	"sync"

	"meshcore/internal/infra/persistence"
	"meshcore/pkg/domain"
)

var _ domain.CheckpointStore = (*Store)(nil)

// Store implements domain.CheckpointStore over a map.
type Store struct {
	mu       sync.RWMutex
	payloads map[string][]byte
	summary  map[string]domain.SnapshotSummary
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{payloads: make(map[string][]byte), summary: make(map[string]domain.SnapshotSummary)}
}

// Save inserts or replaces the snapshot with the same id.
func (s *Store) Save(ctx context.Context, snapshot domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := persistence.Encode(snapshot)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads[snapshot.ID] = payload
	s.summary[snapshot.ID] = snapshot.Summary()
	return nil
}

// Load decodes the stored snapshot.
func (s *Store) Load(ctx context.Context, id string) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	s.mu.RLock()
	payload, ok := s.payloads[id]
	s.mu.RUnlock()
	if !ok {
		return domain.Snapshot{}, persistence.NotFound(id)
	}
	return persistence.Decode(payload)
}

// List returns the summaries ordered by creation time.
func (s *Store) List(ctx context.Context) ([]domain.SnapshotSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]domain.SnapshotSummary, 0, len(s.summary))
	for _, sum := range s.summary {
		out = append(out, sum)
	}
	s.mu.RUnlock()
	persistence.SortSummaries(out)
	return out, nil
}

// Delete removes id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payloads[id]; !ok {
		return persistence.NotFound(id)
	}
	delete(s.payloads, id)
	delete(s.summary, id)
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
