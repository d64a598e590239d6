package mesh

import (
	"math"
)

// ParametricCurve is a curve over t in [0, 1].
type ParametricCurve interface {
	Value(t float64) []float64
}

// CurveFunc adapts a function to ParametricCurve.
type CurveFunc func(t float64) []float64

// Value implements ParametricCurve.
func (f CurveFunc) Value(t float64) []float64 { return f(t) }

// Arc is a circular arc in the plane from angle Theta0 to Theta1.
type Arc struct {
	Center []float64
	Radius float64
	Theta0 float64
	Theta1 float64
}

// Value implements ParametricCurve.
func (a Arc) Value(t float64) []float64 {
	theta := a.Theta0 + t*(a.Theta1-a.Theta0)
	return []float64{a.Center[0] + a.Radius*math.Cos(theta), a.Center[1] + a.Radius*math.Sin(theta)}
}

type subCurve struct {
	parent ParametricCurve
	t0, t1 float64
}

func (s subCurve) Value(t float64) []float64 {
	return s.parent.Value(s.t0 + t*(s.t1-s.t0))
}

// SubCurve reparameterizes the portion of c between t0 and t1 onto [0, 1].
// t1 < t0 traverses the portion backwards.
func SubCurve(c ParametricCurve, t0, t1 float64) ParametricCurve {
	if s, ok := c.(subCurve); ok {
		span := s.t1 - s.t0
		return subCurve{parent: s.parent, t0: s.t0 + t0*span, t1: s.t0 + t1*span}
	}
	return subCurve{parent: c, t0: t0, t1: t1}
}

// ReverseCurve traverses c from t = 1 to t = 0.
func ReverseCurve(c ParametricCurve) ParametricCurve { return SubCurve(c, 1, 0) }

type edgeKey struct{ v0, v1 int }

// curveTol bounds how far a curve endpoint may sit from its edge vertex.
const curveTol = 1e-12

// SetEdgeCurve attaches curve to the edge running from vertex v0 to v1.
// The curve must start at v0 and end at v1, and the edge must not be refined
// yet. Cells containing the edge are treated as curved from then on.
func (t *Topology) SetEdgeCurve(v0, v1 int, curve ParametricCurve) error {
	if t.dim < 2 {
		return preconditionf("edge curves need a mesh of dimension 2 or more")
	}
	if curve == nil {
		return preconditionf("nil curve for edge (%d,%d)", v0, v1)
	}
	if !t.validVertex(v0) || !t.validVertex(v1) {
		return preconditionf("edge (%d,%d) references an unknown vertex", v0, v1)
	}
	edge, ok := t.entities[1].known[entityKey([]int{v0, v1})]
	if !ok {
		return preconditionf("edge (%d,%d) not found", v0, v1)
	}
	if len(t.ChildEntities(1, edge)) > 0 {
		return preconditionf("edge (%d,%d) is already refined; set curves on its pieces", v0, v1)
	}
	if dist(curve.Value(0), t.vertices.coords[v0]) > curveTol || dist(curve.Value(1), t.vertices.coords[v1]) > curveTol {
		return preconditionf("curve endpoints do not match edge (%d,%d)", v0, v1)
	}
	t.curves[edgeKey{v0, v1}] = curve
	t.curves[edgeKey{v1, v0}] = ReverseCurve(curve)
	for _, ref := range t.entities[1].active[edge] {
		t.curvedCells[ref.Cell] = struct{}{}
	}
	return nil
}

// EdgeCurve returns the curve attached to the directed edge (v0, v1).
func (t *Topology) EdgeCurve(v0, v1 int) (ParametricCurve, bool) {
	c, ok := t.curves[edgeKey{v0, v1}]
	return c, ok
}

// CellHasCurvedEdges reports whether any edge of cell carries a curve.
func (t *Topology) CellHasCurvedEdges(cell int) bool {
	c, ok := t.cells[cell]
	if !ok || t.dim < 2 || len(t.curves) == 0 {
		return false
	}
	for e := 0; e < c.topo.SubcellCount(1); e++ {
		nodes := c.topo.SubcellNodes(1, e)
		if _, ok := t.curves[edgeKey{c.vertices[nodes[0]], c.vertices[nodes[1]]}]; ok {
			return true
		}
	}
	return false
}

// snapToCurves moves points lying on a curved edge of c onto the curve.
func (t *Topology) snapToCurves(c *Cell, ref, physical [][]float64) {
	line := c.topo.Subcell(1, 0)
	for e := 0; e < c.topo.SubcellCount(1); e++ {
		nodes := c.topo.SubcellNodes(1, e)
		curve, ok := t.curves[edgeKey{c.vertices[nodes[0]], c.vertices[nodes[1]]}]
		if !ok {
			continue
		}
		embedding := [][]float64{c.topo.ReferenceNode(nodes[0]), c.topo.ReferenceNode(nodes[1])}
		for i, p := range ref {
			s, residual, err := line.PullBack(embedding, p, 0)
			if err != nil || residual > 1e-10 || !line.ContainsReferencePoint(s, 1e-10) {
				continue
			}
			physical[i] = curve.Value((s[0] + 1) / 2)
		}
	}
}

// splitCurves attaches sub-curves to the children of every curved edge of a
// freshly refined cell.
func (t *Topology) splitCurves(c *Cell) error {
	for e := 0; e < c.topo.SubcellCount(1); e++ {
		parent := c.entities[1][e]
		groups := t.entities[1].children[parent]
		if len(groups) == 0 {
			continue
		}
		children := groups[0].Children
		if len(children) != 2 {
			return internalf("edge %d has %d children, want 2", parent, len(children))
		}
		pv := t.entities[1].ordering[parent]
		curve, ok := t.curves[edgeKey{pv[0], pv[1]}]
		if !ok {
			continue
		}
		n := float64(len(children))
		for _, child := range children {
			cv := t.entities[1].ordering[child]
			var t0, t1 float64
			switch {
			case cv[0] == pv[0]:
				t0, t1 = 0, 1/n
			case cv[0] == pv[1]:
				t0, t1 = 1, 1/n
			case cv[1] == pv[0]:
				t0, t1 = 1/n, 0
			case cv[1] == pv[1]:
				t0, t1 = 1/n, 1
			default:
				return internalf("child edge %d does not share a vertex with parent edge %d", child, parent)
			}
			if err := t.SetEdgeCurve(cv[0], cv[1], SubCurve(curve, t0, t1)); err != nil {
				return err
			}
		}
	}
	return nil
}

func dist(a, b []float64) float64 {
	s := 0.0
	for k := range a {
		d := a[k] - b[k]
		s += d * d
	}
	return math.Sqrt(s)
}
