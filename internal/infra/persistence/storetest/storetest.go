// Package storetest runs the behaviour every checkpoint store shares.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshcore/pkg/domain"
)

// Snapshot returns a small two-quad snapshot with one refinement.
func Snapshot(id string, created time.Time) domain.Snapshot {
	return domain.Snapshot{
		ID:              id,
		Version:         domain.SnapshotVersion,
		CreatedAt:       created.UTC(),
		Label:           "strip " + id,
		SpaceDim:        2,
		VertexTolerance: 1e-14,
		Roots: []domain.RootCell{
			{Seq: 0, Index: 0, Topology: "quadrilateral", Vertices: [][]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}},
			{Seq: 1, Index: 1, Topology: "quadrilateral", Vertices: [][]float64{{1, 0}, {2, 0}, {2, 1}, {1, 1}}},
		},
		Refinements: []domain.Refinement{{Seq: 2, Cell: 0, Pattern: "quadrilateral/regular", FirstChild: 2}},
		Distributed: true,
		OwnedCells:  []int{0, 2, 3, 4, 5},
	}
}

// Run exercises save, load, list and delete against a fresh store.
func Run(t *testing.T, open func(t *testing.T) domain.CheckpointStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("round trip", func(t *testing.T) {
		store := open(t)
		want := Snapshot("a", base)
		require.NoError(t, store.Save(ctx, want))
		got, err := store.Load(ctx, "a")
		require.NoError(t, err)
		assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
		got.CreatedAt = want.CreatedAt
		assert.Equal(t, want, got)
	})

	t.Run("save replaces", func(t *testing.T) {
		store := open(t)
		first := Snapshot("a", base)
		require.NoError(t, store.Save(ctx, first))
		second := first
		second.Label = "replaced"
		second.Refinements = append(second.Refinements, domain.Refinement{Seq: 3, Cell: 1, Pattern: "quadrilateral/regular", FirstChild: 6})
		require.NoError(t, store.Save(ctx, second))
		got, err := store.Load(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "replaced", got.Label)
		assert.Len(t, got.Refinements, 2)
		list, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, 2, list[0].Refinements)
	})

	t.Run("list orders by creation", func(t *testing.T) {
		store := open(t)
		require.NoError(t, store.Save(ctx, Snapshot("late", base.Add(time.Hour))))
		require.NoError(t, store.Save(ctx, Snapshot("early", base)))
		require.NoError(t, store.Save(ctx, Snapshot("b-same", base)))
		list, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, []string{"b-same", "early", "late"}, []string{list[0].ID, list[1].ID, list[2].ID})
		assert.Equal(t, 2, list[2].Roots)
		assert.Equal(t, 2, list[2].SpaceDim)
		assert.Equal(t, "strip late", list[2].Label)
	})

	t.Run("missing ids", func(t *testing.T) {
		store := open(t)
		_, err := store.Load(ctx, "nope")
		var nf domain.ErrNotFound
		require.True(t, errors.As(err, &nf), "load error %v", err)
		assert.Equal(t, "nope", nf.ID)
		assert.Equal(t, domain.EntitySnapshot, nf.Entity)
		err = store.Delete(ctx, "nope")
		require.True(t, errors.As(err, &nf), "delete error %v", err)
	})

	t.Run("delete", func(t *testing.T) {
		store := open(t)
		require.NoError(t, store.Save(ctx, Snapshot("a", base)))
		require.NoError(t, store.Delete(ctx, "a"))
		_, err := store.Load(ctx, "a")
		assert.Error(t, err)
		list, err := store.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("rejects empty id", func(t *testing.T) {
		store := open(t)
		assert.Error(t, store.Save(ctx, Snapshot("", base)))
	})
}
