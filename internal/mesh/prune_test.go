package mesh

import (
	"sort"
	"testing"

	"meshcore/internal/refinement"
	"meshcore/internal/topology"
)

type cellRecord struct {
	coords    [][]float64
	level     int
	neighbors []int
}

func recordCells(topo *Topology, cells []int) map[int]cellRecord {
	out := make(map[int]cellRecord, len(cells))
	for _, c := range cells {
		cell := topo.Cell(c)
		rec := cellRecord{coords: topo.CellVertexCoordinates(c), level: cell.Level()}
		for s := 0; s < cell.SideCount(); s++ {
			rec.neighbors = append(rec.neighbors, topo.NeighborInfo(c, s).Cell)
		}
		out[c] = rec
	}
	return out
}

func TestPruneToOwnedRowKeepsOneRing(t *testing.T) {
	topo := newGrid(t, 10, 10)
	owned := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	if err := topo.SetOwnedCells(owned); err != nil {
		t.Fatal(err)
	}
	halo := topo.CellHalo(owned, 0)
	if len(halo) != 20 {
		t.Fatalf("expected owned row plus the row above, got %v", halo)
	}
	before := recordCells(topo, halo)
	inHalo := make(map[int]bool, len(halo))
	for _, c := range halo {
		inHalo[c] = true
	}

	if err := topo.PruneToOwned(0); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if got := topo.KnownCells(); !sameInts(got, halo) {
		t.Fatalf("known cells after prune %v", got)
	}
	if topo.PruningOrdinal() != 1 || !sameInts(topo.HaloCells(), halo) {
		t.Fatalf("prune bookkeeping: ordinal %d halo %v", topo.PruningOrdinal(), topo.HaloCells())
	}
	if topo.VertexCount() != 33 || topo.EntityCount(1) != 52 {
		t.Fatalf("expected 33 vertices and 52 edges, got %d and %d", topo.VertexCount(), topo.EntityCount(1))
	}
	if topo.CellCount() != 100 || topo.ActiveCellCount() != 100 {
		t.Fatalf("global counts must survive a prune")
	}
	for c, rec := range before {
		coords := topo.CellVertexCoordinates(c)
		for i := range coords {
			if coords[i][0] != rec.coords[i][0] || coords[i][1] != rec.coords[i][1] {
				t.Fatalf("cell %d vertex %d moved from %v to %v", c, i, rec.coords[i], coords[i])
			}
		}
		if topo.Cell(c).Level() != rec.level {
			t.Fatalf("cell %d level changed", c)
		}
		for s, nb := range rec.neighbors {
			got := topo.NeighborInfo(c, s).Cell
			want := nb
			if nb != NoIndex && !inHalo[nb] {
				want = NoIndex
			}
			if got != want {
				t.Fatalf("cell %d side %d neighbor %d, want %d", c, s, got, want)
			}
		}
	}
	if topo.Cell(0).SideEntity(1) != topo.Cell(1).SideEntity(3) {
		t.Fatalf("shared edge lost its identity in the compaction")
	}
	if got := topo.MyActiveCells(); !sameInts(got, owned) {
		t.Fatalf("owned active cells %v", got)
	}
	v := vertexAt(t, topo, 0.3, 0.1)
	if got := len(topo.ActiveCellsForEntity(0, v)); got != 4 {
		t.Fatalf("interior vertex expected 4 active cells, got %d", got)
	}
	mustValidate(t, topo)

	// a second prune to the same halo changes nothing
	if err := topo.PruneToInclude(halo); err != nil {
		t.Fatal(err)
	}
	if topo.PruningOrdinal() != 1 {
		t.Fatalf("no-op prune bumped the ordinal to %d", topo.PruningOrdinal())
	}
}

func TestCellHaloClosesOverSiblings(t *testing.T) {
	topo := newGrid(t, 2, 2)
	children := refine(t, topo, 0, refinement.Regular(topology.Quadrilateral()))
	halo := topo.CellHalo([]int{3}, 0)
	// the top right fine child of cell 0 touches cell 3 at the center vertex
	if !containsInt(halo, children[2]) || !containsInt(halo, 0) || !containsInt(halo, children[0]) {
		t.Fatalf("halo %v should include the fine corner, its parent and siblings", halo)
	}
	if err := topo.PruneToInclude(halo); err != nil {
		t.Fatal(err)
	}
	if topo.PruningOrdinal() != 0 {
		t.Fatalf("halo covering the whole forest should not prune")
	}

	sideHalo := topo.CellHalo([]int{3}, 1)
	if !sameInts(sideHalo, []int{1, 2, 3}) {
		t.Fatalf("side halo %v", sideHalo)
	}
}

func TestPruneKeepsAncestorsAndHangingNeighbors(t *testing.T) {
	topo := newGrid(t, 3, 1)
	children := refine(t, topo, 1, refinement.Regular(topology.Quadrilateral()))
	fine := children[1]
	if err := topo.PruneToInclude([]int{fine, 2}); err != nil {
		t.Fatal(err)
	}
	if !topo.IsValidCellIndex(1) {
		t.Fatalf("ancestor of a halo cell was pruned")
	}
	if topo.IsValidCellIndex(0) || topo.IsValidCellIndex(children[0]) {
		t.Fatalf("cells outside the halo survived")
	}
	if nb := topo.NeighborInfo(fine, 1); nb != (CellRef{Cell: 2, Ordinal: 3}) {
		t.Fatalf("hanging neighbor after prune %+v", nb)
	}
	if !topo.OwnsSide(2, 3) {
		t.Fatalf("coarse cell should still own the hanging side")
	}
	if topo.IsActive(1) {
		t.Fatalf("a pruned parent must not become active")
	}
	mustValidate(t, topo)
}

func TestPruneRejectsUnknownCells(t *testing.T) {
	topo := newGrid(t, 2, 1)
	if err := topo.PruneToInclude([]int{0, 5}); err == nil {
		t.Fatalf("expected an error for an unknown halo cell")
	}
}

// childAt returns the child of parent having a vertex at x.
func childAt(t *testing.T, topo *Topology, parent int, x ...float64) int {
	t.Helper()
	v := vertexAt(t, topo, x...)
	for _, child := range topo.Cell(parent).Children() {
		if containsInt(topo.Cell(child).Vertices(), v) {
			return child
		}
	}
	t.Fatalf("no child of %d touches %v", parent, x)
	return NoIndex
}

func TestCellHaloIncludesNeighborsOfAncestors(t *testing.T) {
	topo := twoQuads(t)
	children := refine(t, topo, 0, refinement.Regular(topology.Quadrilateral()))
	lowerLeft := childAt(t, topo, 0, 0, 0)

	halo := topo.CellHalo([]int{lowerLeft}, 1)
	want := append([]int{0, 1}, children...)
	sort.Ints(want)
	if !sameInts(halo, want) {
		t.Fatalf("halo %v, want %v: cell 1 borders the ancestor of the owned cell", halo, want)
	}
}

func TestPruneRefinedMeshKeepsAncestorNeighbors(t *testing.T) {
	topo := newGrid(t, 4, 1)
	children := refine(t, topo, 1, refinement.Regular(topology.Quadrilateral()))
	owned := childAt(t, topo, 1, 0.25, 0)
	if err := topo.SetOwnedCells([]int{owned}); err != nil {
		t.Fatal(err)
	}

	halo := topo.CellHalo(topo.OwnedCells(), 1)
	want := append([]int{0, 1, 2}, children...)
	sort.Ints(want)
	if !sameInts(halo, want) {
		t.Fatalf("halo %v, want %v", halo, want)
	}
	before := recordCells(topo, halo)
	fineNeighbors := topo.ActiveNeighborIndices(owned, 1)

	if err := topo.PruneToOwned(1); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if topo.IsValidCellIndex(3) || !sameInts(topo.KnownCells(), halo) {
		t.Fatalf("known cells after prune %v", topo.KnownCells())
	}
	inHalo := make(map[int]bool, len(halo))
	for _, c := range halo {
		inHalo[c] = true
	}
	for c, rec := range before {
		for s, nb := range rec.neighbors {
			want := nb
			if nb != NoIndex && !inHalo[nb] {
				want = NoIndex
			}
			if got := topo.NeighborInfo(c, s).Cell; got != want {
				t.Fatalf("cell %d side %d neighbor %d, want %d", c, s, got, want)
			}
		}
	}
	// the refined cell keeps both of its coarse neighbors
	var coarse []int
	for s := 0; s < topo.Cell(1).SideCount(); s++ {
		if nb := topo.NeighborInfo(1, s).Cell; nb != NoIndex {
			coarse = append(coarse, nb)
		}
	}
	sort.Ints(coarse)
	if !sameInts(coarse, []int{0, 2}) {
		t.Fatalf("neighbors of the pruned ancestor %v", coarse)
	}
	if got := topo.ActiveNeighborIndices(owned, 1); !sameInts(got, fineNeighbors) {
		t.Fatalf("owned cell neighbors %v, was %v", got, fineNeighbors)
	}
	mustValidate(t, topo)
}
