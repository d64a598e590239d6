// Package refinement defines how a reference cell subdivides into children
// and derives, from the child node geometry alone, every child/parent subcell
// relation the mesh needs when it refines a cell.
package refinement

import (
	"fmt"
	"math"

	"meshcore/internal/topology"
)

// Key names a registered pattern, for example "quadrilateral/regular".
type Key string

const geomTol = 1e-10

// SideChild identifies one child side lying on a parent side.
type SideChild struct {
	Child int
	Side  int
}

type subcellRef struct {
	dim int
	ord int
}

// Pattern is an immutable subdivision rule for one parent topology.
type Pattern struct {
	key      Key
	parent   *topology.CellTopology
	childTop []*topology.CellTopology
	refNodes [][][]float64

	vertices      [][]float64
	childVertices [][]int

	// childToParent[child][d][ord] is the lowest-dimensional parent subcell
	// containing child subcell (d, ord).
	childToParent    [][][]subcellRef
	childrenForSides [][]SideChild
	parentSideLookup []map[int]int
	interior         []bool
	subPatterns      [][]*Pattern
}

// NewPattern derives a pattern from a parent topology and the reference
// coordinates of each child's nodes. Sub-patterns are looked up among the
// patterns already registered for the parent's subcell shapes.
func NewPattern(key Key, parent *topology.CellTopology, children []*topology.CellTopology, refNodes [][][]float64) (*Pattern, error) {
	if len(children) == 0 || len(children) != len(refNodes) {
		return nil, fmt.Errorf("refinement: pattern %s needs one node list per child", key)
	}
	p := &Pattern{
		key:      key,
		parent:   parent,
		childTop: children,
		refNodes: refNodes,
	}
	for i, c := range children {
		if c.NodeCount() != len(refNodes[i]) {
			return nil, fmt.Errorf("refinement: pattern %s child %d has %d nodes, want %d", key, i, len(refNodes[i]), c.NodeCount())
		}
	}
	p.collectVertices()
	if err := p.mapChildSubcells(); err != nil {
		return nil, err
	}
	p.mapSides()
	if err := p.matchSubPatterns(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pattern) collectVertices() {
	p.childVertices = make([][]int, len(p.refNodes))
	for c, nodes := range p.refNodes {
		p.childVertices[c] = make([]int, len(nodes))
		for n, x := range nodes {
			idx := -1
			for v, existing := range p.vertices {
				if samePoint(existing, x) {
					idx = v
					break
				}
			}
			if idx < 0 {
				idx = len(p.vertices)
				p.vertices = append(p.vertices, append([]float64(nil), x...))
			}
			p.childVertices[c][n] = idx
		}
	}
}

func (p *Pattern) mapChildSubcells() error {
	dim := p.parent.Dimension()
	p.childToParent = make([][][]subcellRef, len(p.childTop))
	for c, ct := range p.childTop {
		p.childToParent[c] = make([][]subcellRef, dim+1)
		for d := 0; d <= dim; d++ {
			p.childToParent[c][d] = make([]subcellRef, ct.SubcellCount(d))
			for ord := range p.childToParent[c][d] {
				pts := p.childSubcellPoints(c, d, ord)
				p.childToParent[c][d][ord] = p.containingParentSubcell(d, pts)
			}
		}
	}
	return nil
}

func (p *Pattern) childSubcellPoints(child, d, ord int) [][]float64 {
	nodes := p.childTop[child].SubcellNodes(d, ord)
	pts := make([][]float64, len(nodes))
	for i, n := range nodes {
		pts[i] = p.refNodes[child][n]
	}
	return pts
}

func (p *Pattern) containingParentSubcell(d int, pts [][]float64) subcellRef {
	dim := p.parent.Dimension()
	for pd := d; pd < dim; pd++ {
		for po := 0; po < p.parent.SubcellCount(pd); po++ {
			if p.subcellContains(pd, po, pts) {
				return subcellRef{dim: pd, ord: po}
			}
		}
	}
	return subcellRef{dim: dim, ord: 0}
}

func (p *Pattern) subcellEmbedding(pd, po int) [][]float64 {
	nodes := p.parent.SubcellNodes(pd, po)
	out := make([][]float64, len(nodes))
	for i, n := range nodes {
		out[i] = p.parent.ReferenceNode(n)
	}
	return out
}

func (p *Pattern) subcellContains(pd, po int, pts [][]float64) bool {
	embedding := p.subcellEmbedding(pd, po)
	sub := p.parent.Subcell(pd, po)
	for _, x := range pts {
		if pd == 0 {
			if !samePoint(embedding[0], x) {
				return false
			}
			continue
		}
		ref, residual, err := sub.PullBack(embedding, x, 0)
		if err != nil || residual > geomTol || !sub.ContainsReferencePoint(ref, geomTol) {
			return false
		}
	}
	return true
}

func (p *Pattern) mapSides() {
	dim := p.parent.Dimension()
	p.childrenForSides = make([][]SideChild, p.parent.SideCount())
	p.parentSideLookup = make([]map[int]int, len(p.childTop))
	p.interior = make([]bool, len(p.childTop))
	if dim == 0 {
		return
	}
	for c, ct := range p.childTop {
		p.parentSideLookup[c] = make(map[int]int)
		for s := 0; s < ct.SideCount(); s++ {
			ref := p.childToParent[c][dim-1][s]
			if ref.dim != dim-1 {
				continue
			}
			p.childrenForSides[ref.ord] = append(p.childrenForSides[ref.ord], SideChild{Child: c, Side: s})
			p.parentSideLookup[c][s] = ref.ord
		}
		p.interior[c] = len(p.parentSideLookup[c]) == 0
	}
}

// matchSubPatterns identifies, for each parent subcell of dimension 1..dim-1,
// the registered pattern of that subcell shape that the children induce.
func (p *Pattern) matchSubPatterns() error {
	dim := p.parent.Dimension()
	p.subPatterns = make([][]*Pattern, dim+1)
	for d := 0; d <= dim; d++ {
		p.subPatterns[d] = make([]*Pattern, p.parent.SubcellCount(d))
		for ord := range p.subPatterns[d] {
			switch {
			case d == dim:
				p.subPatterns[d][ord] = p
			case d == 0:
				p.subPatterns[d][ord] = nullPattern(topology.Point())
			default:
				sub, err := p.inducedPattern(d, ord)
				if err != nil {
					return err
				}
				p.subPatterns[d][ord] = sub
			}
		}
	}
	return nil
}

func (p *Pattern) inducedPattern(d, ord int) (*Pattern, error) {
	subTopo := p.parent.Subcell(d, ord)
	embedding := p.subcellEmbedding(d, ord)
	var pieces [][][]float64
	for c, ct := range p.childTop {
		for cs := 0; cs < ct.SubcellCount(d); cs++ {
			if p.childToParent[c][d][cs] != (subcellRef{dim: d, ord: ord}) {
				continue
			}
			var local [][]float64
			for _, x := range p.childSubcellPoints(c, d, cs) {
				ref, _, err := subTopo.PullBack(embedding, x, 0)
				if err != nil {
					return nil, err
				}
				local = append(local, ref)
			}
			if !containsPointSet(pieces, local) {
				pieces = append(pieces, local)
			}
		}
	}
	for _, candidate := range candidatesFor(subTopo.Key()) {
		if candidate.matchesPieces(pieces) {
			return candidate, nil
		}
	}
	return nil, fmt.Errorf("refinement: pattern %s induces no known pattern on subcell (%d,%d)", p.key, d, ord)
}

func (p *Pattern) matchesPieces(pieces [][][]float64) bool {
	if len(pieces) != len(p.refNodes) {
		return false
	}
	for _, child := range p.refNodes {
		if !containsPointSet(pieces, child) {
			return false
		}
	}
	return true
}

// Key returns the registry key.
func (p *Pattern) Key() Key { return p.key }

// ParentTopology returns the topology the pattern subdivides.
func (p *Pattern) ParentTopology() *topology.CellTopology { return p.parent }

// NumChildren returns the number of children produced.
func (p *Pattern) NumChildren() int { return len(p.childTop) }

// IsNull reports whether the pattern leaves the parent undivided.
func (p *Pattern) IsNull() bool { return len(p.childTop) == 1 }

// ChildTopology returns the topology of child i.
func (p *Pattern) ChildTopology(i int) *topology.CellTopology { return p.childTop[i] }

// RefinedNodes returns the reference coordinates of every child's nodes.
func (p *Pattern) RefinedNodes() [][][]float64 { return p.refNodes }

// Vertices returns the distinct reference points over all children.
func (p *Pattern) Vertices() [][]float64 { return p.vertices }

// ChildVertexOrdinals maps child i's nodes to ordinals into Vertices.
func (p *Pattern) ChildVertexOrdinals(i int) []int { return p.childVertices[i] }

// MapSubcellFromChildToParent returns the lowest-dimensional parent subcell
// containing subcell (d, ord) of child. Interior subcells map to
// (parentDim, 0).
func (p *Pattern) MapSubcellFromChildToParent(child, d, ord int) (int, int) {
	ref := p.childToParent[child][d][ord]
	return ref.dim, ref.ord
}

// MapSubcellOrdinalFromChildToParent returns the parent subcell ordinal of the
// same dimension that contains child subcell (d, ord), or -1 when that
// subcell lies in a higher-dimensional parent subcell.
func (p *Pattern) MapSubcellOrdinalFromChildToParent(child, d, ord int) int {
	ref := p.childToParent[child][d][ord]
	if ref.dim != d {
		return -1
	}
	return ref.ord
}

// ChildrenForSides lists, per parent side, the (child, childSide) pairs that
// tile it, in child order.
func (p *Pattern) ChildrenForSides() [][]SideChild { return p.childrenForSides }

// ChildrenForSide lists the children tiling parent side s.
func (p *Pattern) ChildrenForSide(s int) []SideChild { return p.childrenForSides[s] }

// ParentSideLookupForChild maps child sides that lie on a parent side to that
// parent side ordinal.
func (p *Pattern) ParentSideLookupForChild(child int) map[int]int { return p.parentSideLookup[child] }

// ChildIsInterior reports whether no side of the child lies on a parent side.
func (p *Pattern) ChildIsInterior(child int) bool { return p.interior[child] }

// PatternForSubcell returns the pattern the refinement induces on parent
// subcell (d, ord).
func (p *Pattern) PatternForSubcell(d, ord int) *Pattern { return p.subPatterns[d][ord] }

func (p *Pattern) String() string { return string(p.key) }

func samePoint(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if math.Abs(a[k]-b[k]) > geomTol {
			return false
		}
	}
	return true
}

func samePointSet(a, b [][]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for _, x := range a {
		found := false
		for _, y := range b {
			if samePoint(x, y) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsPointSet(sets [][][]float64, s [][]float64) bool {
	for _, existing := range sets {
		if samePointSet(existing, s) {
			return true
		}
	}
	return false
}
