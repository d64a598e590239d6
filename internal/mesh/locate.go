package mesh

import (
	"math"

	"meshcore/internal/topology"
)

const locateTol = 1e-10

// CellIDsForPoints returns, for each physical point, the active cell that
// contains it. Each root is tested with an inverse map; the search then
// descends through children, falling back to the child with the nearest
// centroid when no child contains the point. Points outside every root map
// to NoIndex.
func (t *Topology) CellIDsForPoints(points [][]float64) []int {
	return t.cellIDsForPoints(t, t.RootCells(), points)
}

func (t *Topology) cellIDsForPoints(s scope, roots []int, points [][]float64) []int {
	out := make([]int, len(points))
	for i, x := range points {
		out[i] = NoIndex
		for _, r := range roots {
			if t.cellContains(r, x) {
				out[i] = t.descendTo(s, r, x)
				break
			}
		}
	}
	return out
}

func (t *Topology) descendTo(s scope, cell int, x []float64) int {
	for s.IsParent(cell) {
		next, nearest := NoIndex, NoIndex
		best := math.Inf(1)
		for _, child := range t.cells[cell].children {
			if !s.IsValidCellIndex(child) {
				continue
			}
			if t.cellContains(child, x) {
				next = child
				break
			}
			if d := dist(t.CellCentroid(child), x); d < best {
				nearest, best = child, d
			}
		}
		if next == NoIndex {
			next = nearest
		}
		if next == NoIndex {
			return cell
		}
		cell = next
	}
	return cell
}

func (t *Topology) cellContains(cell int, x []float64) bool {
	c, ok := t.cells[cell]
	if !ok || len(x) != t.dim {
		return false
	}
	ref, residual, err := c.topo.PullBack(t.CellVertexCoordinates(cell), x, t.pullBackIterations(cell))
	if err != nil {
		return false
	}
	scale := 1.0
	for _, v := range x {
		scale = math.Max(scale, math.Abs(v))
	}
	return residual <= locateTol*scale && c.topo.ContainsReferencePoint(ref, locateTol)
}

// pullBackIterations grows the inverse map budget with the cell's cubature
// degree, since high-order geometry needs more Newton steps.
func (t *Topology) pullBackIterations(cell int) int {
	if t.hints == nil {
		return topology.DefaultPullBackIterations
	}
	n := 5 * t.hints.CubatureDegree(cell)
	if n < topology.DefaultPullBackIterations {
		n = topology.DefaultPullBackIterations
	}
	return n
}
