// Package persistence holds the payload codec shared by the checkpoint
// store backends in its subpackages.
package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"meshcore/pkg/domain"
)

// ErrMissingID is returned when a snapshot without an id is saved.
var ErrMissingID = errors.New("snapshot id required")

// Encode validates and serialises a snapshot.
func Encode(s domain.Snapshot) ([]byte, error) {
	if s.ID == "" {
		return nil, ErrMissingID
	}
	if s.Version == 0 {
		s.Version = domain.SnapshotVersion
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot %s: %w", s.ID, err)
	}
	return b, nil
}

// Decode parses a stored payload and rejects layouts newer than this build.
func Decode(payload []byte) (domain.Snapshot, error) {
	var s domain.Snapshot
	if err := json.Unmarshal(payload, &s); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Version > domain.SnapshotVersion {
		return domain.Snapshot{}, fmt.Errorf("snapshot %s has version %d, newest supported is %d", s.ID, s.Version, domain.SnapshotVersion)
	}
	return s, nil
}

// SortSummaries orders listings by creation time, then id.
func SortSummaries(list []domain.SnapshotSummary) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

// NotFound builds the lookup error for id.
func NotFound(id string) error {
	return domain.ErrNotFound{Entity: domain.EntitySnapshot, ID: id}
}
