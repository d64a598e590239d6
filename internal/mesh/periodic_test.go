package mesh

import (
	"testing"

	"meshcore/internal/refinement"
	"meshcore/internal/topology"
)

func periodicStrip(t *testing.T) *Topology {
	t.Helper()
	return twoQuads(t, WithPeriodicBCs(AxisPeriodicBC{Axis: 0, From: 0, To: 2}))
}

func TestPeriodicStripIdentifiesEnds(t *testing.T) {
	topo := periodicStrip(t)
	left, right := topo.Cell(0), topo.Cell(1)
	if left.SideEntity(3) != right.SideEntity(1) {
		t.Fatalf("periodic ends not identified: %d vs %d", left.SideEntity(3), right.SideEntity(1))
	}
	if got := topo.EntityCount(1); got != 6 {
		t.Fatalf("expected 6 edges, got %d", got)
	}
	if nb := topo.NeighborInfo(0, 3); nb != (CellRef{Cell: 1, Ordinal: 1}) {
		t.Fatalf("left end neighbor %+v", nb)
	}
	if nb := topo.NeighborInfo(1, 1); nb != (CellRef{Cell: 0, Ordinal: 3}) {
		t.Fatalf("right end neighbor %+v", nb)
	}
	if topo.IsBoundarySide(left.SideEntity(3)) {
		t.Fatalf("periodic side still boundary")
	}
	if got := len(topo.BoundarySides()); got != 4 {
		t.Fatalf("expected 4 boundary sides, got %d", got)
	}

	origin := vertexAt(t, topo, 0, 0)
	image := vertexAt(t, topo, 2, 0)
	if origin == image {
		t.Fatalf("periodic images should remain distinct vertices")
	}
	if topo.CanonicalVertex(image) != origin {
		t.Fatalf("image canonical %d, want %d", topo.CanonicalVertex(image), origin)
	}
	if got := topo.EquivalentVertices(origin); !containsInt(got, image) {
		t.Fatalf("equivalents of origin %v missing %d", got, image)
	}
	if got := len(topo.ActiveCellsForEntity(0, origin)); got != 2 {
		t.Fatalf("origin vertex expected 2 active cells, got %d", got)
	}
	top := vertexAt(t, topo, 0, 1)
	topImage := vertexAt(t, topo, 2, 1)
	if topo.EntityIndex(1, []int{image, topImage}) != topo.EntityIndex(1, []int{origin, top}) {
		t.Fatalf("edge lookup through images should find the identified side")
	}
	mustValidate(t, topo)
}

func TestPeriodicStripRefinement(t *testing.T) {
	topo := periodicStrip(t)
	seam := topo.Cell(0).SideEntity(3)
	if err := topo.HRefine([]int{0}, refinement.Regular(topology.Quadrilateral())); err != nil {
		t.Fatal(err)
	}
	pieces := topo.ChildEntities(1, seam)
	if len(pieces) != 2 {
		t.Fatalf("seam expected 2 pieces, got %v", pieces)
	}
	for _, p := range pieces {
		if got := topo.ConstrainingEntity(1, p); got != (EntityRef{Dim: 1, Index: seam}) {
			t.Fatalf("seam piece %d constrained by %+v", p, got)
		}
	}
	left := topo.Cell(0).Children()
	if nb := topo.NeighborInfo(left[0], 3); nb != (CellRef{Cell: 1, Ordinal: 1}) {
		t.Fatalf("fine cell across the seam sees %+v", nb)
	}

	if err := topo.HRefine([]int{1}, refinement.Regular(topology.Quadrilateral())); err != nil {
		t.Fatal(err)
	}
	if got := len(topo.ChildEntities(1, seam)); got != 2 {
		t.Fatalf("refining the far side duplicated seam pieces: %d", got)
	}
	for _, p := range pieces {
		if got := len(topo.ActiveCellsForEntity(1, p)); got != 2 {
			t.Fatalf("seam piece %d expected 2 active cells, got %d", p, got)
		}
	}
	mid, image := vertexAt(t, topo, 0, 0.5), vertexAt(t, topo, 2, 0.5)
	if topo.CanonicalVertex(image) != mid {
		t.Fatalf("seam midpoint images not identified")
	}
	right := topo.Cell(1).Children()
	if nb := topo.NeighborInfo(right[1], 1); nb != (CellRef{Cell: left[0], Ordinal: 3}) {
		t.Fatalf("fine cells across the seam: %+v", nb)
	}
	mustValidate(t, topo)
}

func TestAxisPeriodicBC(t *testing.T) {
	bc := AxisPeriodicBC{Axis: 1, From: -1, To: 1}
	if got := bc.MatchingSides([]float64{0.3, -1}); len(got) != 1 || got[0] != 0 {
		t.Fatalf("expected from side, got %v", got)
	}
	if got := bc.MatchingSides([]float64{0.3, 0}); len(got) != 0 {
		t.Fatalf("interior point matched %v", got)
	}
	if got := bc.MatchingPoint([]float64{0.3, 1}, 1); got[0] != 0.3 || got[1] != -1 {
		t.Fatalf("unexpected image %v", got)
	}
}

func TestOneCellPeriodicStripIsItsOwnNeighbor(t *testing.T) {
	topo, err := New(2, WithPeriodicBCs(AxisPeriodicBC{Axis: 0, From: 0, To: 1}))
	if err != nil {
		t.Fatal(err)
	}
	cell, err := topo.AddCell(topology.Quadrilateral(), quadCoords(0, 0, 1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if cell.SideEntity(1) != cell.SideEntity(3) {
		t.Fatalf("left and right sides should be one entity")
	}
	if nb := topo.NeighborInfo(0, 1); nb != (CellRef{Cell: 0, Ordinal: 3}) {
		t.Fatalf("right side neighbor %+v", nb)
	}
	if topo.OwnsSide(0, 1) == topo.OwnsSide(0, 3) {
		t.Fatalf("exactly one of the identified sides must be owned")
	}
	mustValidate(t, topo)
}
