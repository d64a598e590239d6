// Package checkpoint captures topologies as replayable snapshots, restores
// them, and moves them between checkpoint stores and blob storage.
package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"meshcore/internal/mesh"
	"meshcore/internal/refinement"
	"meshcore/internal/topology"
	"meshcore/pkg/domain"
)

// Capture records the forest history, ownership and pruning state of topo.
// Periodic rules, curves and geometry collaborators are not captured; they
// are runtime objects and Restore takes them as options.
func Capture(topo *mesh.Topology, label string) domain.Snapshot {
	snap := domain.Snapshot{
		ID:              uuid.NewString(),
		Version:         domain.SnapshotVersion,
		CreatedAt:       time.Now().UTC(),
		Label:           label,
		SpaceDim:        topo.Dimension(),
		VertexTolerance: topo.Tolerance(),
		Roots:           []domain.RootCell{},
		Refinements:     []domain.Refinement{},
		PruningOrdinal:  topo.PruningOrdinal(),
	}
	for seq, entry := range topo.History() {
		switch entry.Kind {
		case mesh.HistoryRoot:
			snap.Roots = append(snap.Roots, domain.RootCell{
				Seq:      seq,
				Index:    entry.Cell,
				Topology: string(entry.Topology),
				Vertices: entry.Vertices,
			})
		case mesh.HistoryRefine:
			snap.Refinements = append(snap.Refinements, domain.Refinement{
				Seq:        seq,
				Cell:       entry.Cell,
				Pattern:    string(entry.Pattern),
				FirstChild: entry.FirstChild,
			})
		}
	}
	if topo.IsDistributed() {
		snap.Distributed = true
		snap.OwnedCells = topo.OwnedCells()
	}
	if snap.PruningOrdinal > 0 {
		snap.KeptCells = topo.KnownCells()
	}
	return snap
}

type step struct {
	seq    int
	root   *domain.RootCell
	refine *domain.Refinement
}

func steps(snap domain.Snapshot) []step {
	out := make([]step, 0, len(snap.Roots)+len(snap.Refinements))
	for i := range snap.Roots {
		out = append(out, step{seq: snap.Roots[i].Seq, root: &snap.Roots[i]})
	}
	for i := range snap.Refinements {
		out = append(out, step{seq: snap.Refinements[i].Seq, refine: &snap.Refinements[i]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Restore replays snap into a new topology configured by opts, then
// reapplies ownership and prunes to the recorded cells. The snapshot's
// vertex tolerance applies unless opts override it.
func Restore(ctx context.Context, snap domain.Snapshot, opts ...mesh.Option) (*mesh.Topology, error) {
	if snap.Version > domain.SnapshotVersion {
		return nil, fmt.Errorf("snapshot %s has version %d, newest supported is %d", snap.ID, snap.Version, domain.SnapshotVersion)
	}
	if snap.VertexTolerance > 0 {
		opts = append([]mesh.Option{mesh.WithVertexTolerance(snap.VertexTolerance)}, opts...)
	}
	topo, err := mesh.New(snap.SpaceDim, opts...)
	if err != nil {
		return nil, err
	}
	for _, st := range steps(snap) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if st.root != nil {
			if err := replayRoot(topo, *st.root); err != nil {
				return nil, fmt.Errorf("replay root %d: %w", st.root.Index, err)
			}
			continue
		}
		pattern, err := refinement.ByKey(refinement.Key(st.refine.Pattern))
		if err != nil {
			return nil, err
		}
		if err := topo.RefineCell(st.refine.Cell, pattern, st.refine.FirstChild); err != nil {
			return nil, fmt.Errorf("replay refinement of cell %d: %w", st.refine.Cell, err)
		}
	}
	if snap.Distributed {
		if err := topo.SetOwnedCells(snap.OwnedCells); err != nil {
			return nil, fmt.Errorf("restore ownership: %w", err)
		}
	}
	if snap.PruningOrdinal > 0 && len(snap.KeptCells) > 0 {
		if err := topo.PruneToInclude(snap.KeptCells); err != nil {
			return nil, fmt.Errorf("restore halo: %w", err)
		}
	}
	return topo, nil
}

func replayRoot(topo *mesh.Topology, root domain.RootCell) error {
	shape, err := topology.ByKey(topology.Key(root.Topology))
	if err != nil {
		return err
	}
	verts := make([]int, len(root.Vertices))
	for i, x := range root.Vertices {
		v, err := topo.VertexIndexAdding(x, topo.Tolerance())
		if err != nil {
			return err
		}
		verts[i] = v
	}
	_, err = topo.InsertCell(root.Index, shape, verts, mesh.NoIndex)
	return err
}
