package mesh

import (
	"errors"
	"math"
	"testing"

	"meshcore/internal/refinement"
	"meshcore/internal/topology"
)

// bulge is the arc through (0,0) and (1,0) centered at (0.5,-0.5).
func bulge() Arc {
	return Arc{Center: []float64{0.5, -0.5}, Radius: math.Sqrt(0.5), Theta0: 3 * math.Pi / 4, Theta1: math.Pi / 4}
}

func TestRefinementFollowsCurvedEdge(t *testing.T) {
	topo := newGrid(t, 1, 1)
	v0, v1 := vertexAt(t, topo, 0, 0), vertexAt(t, topo, 1, 0)
	if err := topo.SetEdgeCurve(v0, v1, bulge()); err != nil {
		t.Fatalf("set curve: %v", err)
	}
	if !topo.CellHasCurvedEdges(0) {
		t.Fatalf("root should be curved")
	}
	children := refine(t, topo, 0, refinement.Regular(topology.Quadrilateral()))
	mid := vertexAt(t, topo, 0.5, math.Sqrt(0.5)-0.5)
	if _, ok := topo.VertexIndex([]float64{0.5, 0}, 1e-9); ok {
		t.Fatalf("straight-edge midpoint should not exist")
	}
	first, ok := topo.EdgeCurve(v0, mid)
	if !ok {
		t.Fatalf("first half of the curved edge has no curve")
	}
	if dist(first.Value(1), topo.Vertex(mid)) > 1e-12 {
		t.Fatalf("first half ends at %v, want %v", first.Value(1), topo.Vertex(mid))
	}
	if dist(first.Value(0.5), bulge().Value(0.25)) > 1e-12 {
		t.Fatalf("first half is not the matching sub-arc")
	}
	second, ok := topo.EdgeCurve(v1, mid)
	if !ok || dist(second.Value(0), topo.Vertex(v1)) > 1e-12 || dist(second.Value(1), topo.Vertex(mid)) > 1e-12 {
		t.Fatalf("second half curve missing or reversed")
	}
	if !topo.CellHasCurvedEdges(children[0]) || !topo.CellHasCurvedEdges(children[1]) || topo.CellHasCurvedEdges(children[2]) {
		t.Fatalf("curved children misidentified")
	}
	if err := topo.SetEdgeCurve(v0, v1, bulge()); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("curving a refined edge should fail, got %v", err)
	}
	mustValidate(t, topo)
}

func TestSetEdgeCurvePreconditions(t *testing.T) {
	topo := newGrid(t, 1, 1)
	v0, v1 := vertexAt(t, topo, 0, 0), vertexAt(t, topo, 1, 0)
	v2 := vertexAt(t, topo, 1, 1)
	if err := topo.SetEdgeCurve(v0, v2, bulge()); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("diagonal is not an edge, got %v", err)
	}
	if err := topo.SetEdgeCurve(v1, v0, bulge()); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("reversed endpoints should not match, got %v", err)
	}
	line, err := New(1)
	if err != nil {
		t.Fatal(err)
	}
	if err := line.SetEdgeCurve(0, 1, bulge()); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("curves need two dimensions, got %v", err)
	}
}

func TestCurvedCellsSurvivePrune(t *testing.T) {
	topo := newGrid(t, 3, 1)
	v0, v1 := vertexAt(t, topo, 0, 0), vertexAt(t, topo, 1.0/3, 0)
	line := CurveFunc(func(s float64) []float64 { return []float64{s / 3, 0} })
	if err := topo.SetEdgeCurve(v0, v1, line); err != nil {
		t.Fatal(err)
	}
	if err := topo.PruneToInclude([]int{2}); err != nil {
		t.Fatal(err)
	}
	if !topo.IsValidCellIndex(0) || topo.IsValidCellIndex(1) {
		t.Fatalf("known cells after prune %v", topo.KnownCells())
	}
	nv0, nv1 := vertexAt(t, topo, 0, 0), vertexAt(t, topo, 1.0/3, 0)
	if _, ok := topo.EdgeCurve(nv0, nv1); !ok {
		t.Fatalf("curve lost in vertex compaction")
	}
}

func TestSubCurveComposition(t *testing.T) {
	arc := bulge()
	quarter := SubCurve(SubCurve(arc, 0, 0.5), 0.5, 1)
	if dist(quarter.Value(0), arc.Value(0.25)) > 1e-14 || dist(quarter.Value(1), arc.Value(0.5)) > 1e-14 {
		t.Fatalf("nested sub-curve endpoints wrong")
	}
	rev := ReverseCurve(arc)
	if dist(rev.Value(0), arc.Value(1)) > 1e-14 {
		t.Fatalf("reverse curve should start at the end")
	}
}
