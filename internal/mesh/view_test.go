package mesh

import (
	"errors"
	"testing"

	"meshcore/internal/refinement"
	"meshcore/internal/topology"
)

func TestCoarseViewOfRefinedGrid(t *testing.T) {
	topo := newGrid(t, 2, 2)
	children := refine(t, topo, 0, refinement.Regular(topology.Quadrilateral()))
	shared := topo.Cell(0).SideEntity(1)

	coarse, err := topo.GetView([]int{0, 1, 2, 3})
	if err != nil {
		t.Fatalf("coarse view: %v", err)
	}
	if coarse.ActiveCellCount() != 4 || !sameInts(coarse.RootCells(), []int{0, 1, 2, 3}) {
		t.Fatalf("coarse view cells %v roots %v", coarse.ActiveCells(), coarse.RootCells())
	}
	if coarse.IsParent(0) || coarse.IsValidCellIndex(children[0]) || coarse.Cell(children[0]) != nil {
		t.Fatalf("children of cell 0 leak into the coarse view")
	}
	if got := len(coarse.ActiveCellsForEntity(1, shared)); got != 2 {
		t.Fatalf("shared edge expected 2 view cells, got %d", got)
	}
	if nb := coarse.NeighborInfo(1, 3); nb != (CellRef{Cell: 0, Ordinal: 1}) {
		t.Fatalf("coarse neighbor %+v", nb)
	}
	if !coarse.OwnsSide(0, 1) || coarse.OwnsSide(1, 3) {
		t.Fatalf("coarse view should treat the interface as conforming")
	}
	if !topo.OwnsSide(1, 3) {
		t.Fatalf("base topology should give the interface to the coarse cell")
	}
	for _, f := range topo.ChildEntities(1, shared) {
		if got := coarse.ConstrainingEntity(1, f); got != (EntityRef{Dim: 1, Index: shared}) {
			t.Fatalf("fine edge %d constrained by %+v in the view", f, got)
		}
	}
	if got := coarse.DescendantsForSide(0, 1, true); len(got) != 1 || got[0] != (CellRef{Cell: 0, Ordinal: 1}) {
		t.Fatalf("coarse view descends into children: %+v", got)
	}
	if got := coarse.ActiveNeighborIndices(1, 1); !sameInts(got, []int{0, 3}) {
		t.Fatalf("coarse neighbors of 1: %v", got)
	}
	if cell, _ := coarse.OwningCellForConstrainingEntity(1, shared); cell != 0 {
		t.Fatalf("coarse owning cell %d", cell)
	}
	if got := coarse.CellIDsForPoints([][]float64{{0.1, 0.1}}); got[0] != 0 {
		t.Fatalf("coarse locate %v", got)
	}
	if got := topo.CellIDsForPoints([][]float64{{0.1, 0.1}}); got[0] != children[0] {
		t.Fatalf("fine locate %v", got)
	}
	if _, err := coarse.GetView([]int{children[1]}); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("restricting to a cell outside the view should fail, got %v", err)
	}
	sub, err := coarse.GetView([]int{1, 3})
	if err != nil || sub.ActiveCellCount() != 2 {
		t.Fatalf("sub view: %v", err)
	}
}

func TestFineViewMatchesBase(t *testing.T) {
	topo := newGrid(t, 2, 2)
	refine(t, topo, 0, refinement.Regular(topology.Quadrilateral()))
	view, err := topo.GetView(topo.ActiveCells())
	if err != nil {
		t.Fatal(err)
	}
	if !sameInts(view.ValidCells(), topo.KnownCells()) {
		t.Fatalf("valid cells %v, want %v", view.ValidCells(), topo.KnownCells())
	}
	for _, c := range topo.ActiveCells() {
		for s := 0; s < 4; s++ {
			if view.NeighborInfo(c, s) != topo.NeighborInfo(c, s) || view.OwnsSide(c, s) != topo.OwnsSide(c, s) {
				t.Fatalf("cell %d side %d differs between view and base", c, s)
			}
		}
		if !sameInts(view.ActiveNeighborIndices(c, 0), topo.ActiveNeighborIndices(c, 0)) {
			t.Fatalf("cell %d vertex neighbors differ", c)
		}
	}
	if !sameInts(view.MyActiveCells(), topo.MyActiveCells()) {
		t.Fatalf("owned cells differ")
	}
}

func TestViewPreconditionsAndStaleness(t *testing.T) {
	topo := newGrid(t, 2, 2)
	children := refine(t, topo, 0, refinement.Regular(topology.Quadrilateral()))
	if _, err := topo.GetView([]int{0, children[1]}); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("a cell and its descendant should be rejected, got %v", err)
	}
	if _, err := topo.GetView([]int{42}); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("unknown cell should be rejected, got %v", err)
	}
	view, err := topo.GetView([]int{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if view.Stale() {
		t.Fatalf("fresh view reported stale")
	}
	if err := topo.PruneToInclude([]int{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if !view.Stale() || view.Base() != topo {
		t.Fatalf("view should be stale after a prune")
	}
}
