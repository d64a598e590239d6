package mesh

import (
	"context"
	"testing"

	"meshcore/internal/refinement"
	"meshcore/internal/topology"
)

func quadCoords(x0, y0, hx, hy float64) [][]float64 {
	return [][]float64{{x0, y0}, {x0 + hx, y0}, {x0 + hx, y0 + hy}, {x0, y0 + hy}}
}

// newGrid builds an nx by ny grid of quads over the unit square, numbered
// row by row from the bottom left.
func newGrid(t *testing.T, nx, ny int, opts ...Option) *Topology {
	t.Helper()
	topo, err := New(2, opts...)
	if err != nil {
		t.Fatalf("new topology: %v", err)
	}
	hx, hy := 1/float64(nx), 1/float64(ny)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			if _, err := topo.AddCell(topology.Quadrilateral(), quadCoords(float64(i)*hx, float64(j)*hy, hx, hy)); err != nil {
				t.Fatalf("add cell (%d,%d): %v", i, j, err)
			}
		}
	}
	return topo
}

// twoQuads builds [0,1]x[0,1] as cell 0 and [1,2]x[0,1] as cell 1.
func twoQuads(t *testing.T, opts ...Option) *Topology {
	t.Helper()
	topo, err := New(2, opts...)
	if err != nil {
		t.Fatalf("new topology: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := topo.AddCell(topology.Quadrilateral(), quadCoords(float64(i), 0, 1, 1)); err != nil {
			t.Fatalf("add cell %d: %v", i, err)
		}
	}
	return topo
}

func refine(t *testing.T, topo *Topology, cell int, pattern *refinement.Pattern) []int {
	t.Helper()
	if err := topo.RefineCell(cell, pattern, topo.CellCount()); err != nil {
		t.Fatalf("refine cell %d: %v", cell, err)
	}
	return topo.Cell(cell).Children()
}

func mustValidate(t *testing.T, topo *Topology) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	res, err := topo.Validate(ctx)
	if err != nil {
		t.Fatalf("validate: %v (%+v)", err, res.Violations)
	}
}

func vertexAt(t *testing.T, topo *Topology, x ...float64) int {
	t.Helper()
	v, ok := topo.VertexIndex(x, 1e-12)
	if !ok {
		t.Fatalf("no vertex at %v", x)
	}
	return v
}

func sameInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
