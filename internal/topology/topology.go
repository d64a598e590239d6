// Package topology describes the reference cells a mesh is assembled from:
// node coordinates in a reference domain, the node sets of every subcell, and
// the shape functions mapping reference points into physical space.
package topology

import (
	"fmt"
	"sync"
)

// Key identifies a reference cell shape.
type Key string

const (
	KeyPoint         Key = "point"
	KeyLine          Key = "line"
	KeyTriangle      Key = "triangle"
	KeyQuadrilateral Key = "quadrilateral"
	KeyHexahedron    Key = "hexahedron"
)

// CellTopology is an immutable reference cell.
//
// Subcell node lists are expressed in the cell's node ordinals and follow the
// conventional Shards ordering for every shape.
type CellTopology struct {
	key      Key
	dim      int
	nodes    [][]float64
	subcells [][][]int
	subTopos [][]*CellTopology
	tensor   bool

	permOnce sync.Once
	perms    [][]int
}

var (
	pointTopo = &CellTopology{
		key:    KeyPoint,
		dim:    0,
		nodes:  [][]float64{{}},
		tensor: true,
	}
	lineTopo = &CellTopology{
		key:    KeyLine,
		dim:    1,
		nodes:  [][]float64{{-1}, {1}},
		tensor: true,
	}
	triangleTopo = &CellTopology{
		key:   KeyTriangle,
		dim:   2,
		nodes: [][]float64{{0, 0}, {1, 0}, {0, 1}},
	}
	quadTopo = &CellTopology{
		key:    KeyQuadrilateral,
		dim:    2,
		nodes:  [][]float64{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}},
		tensor: true,
	}
	hexTopo = &CellTopology{
		key: KeyHexahedron,
		dim: 3,
		nodes: [][]float64{
			{-1, -1, -1}, {1, -1, -1}, {1, 1, -1}, {-1, 1, -1},
			{-1, -1, 1}, {1, -1, 1}, {1, 1, 1}, {-1, 1, 1},
		},
		tensor: true,
	}
)

func init() {
	pointTopo.build(nil)
	lineTopo.build([][][]int{
		nil,
	})
	triangleTopo.build([][][]int{
		nil,
		{{0, 1}, {1, 2}, {2, 0}},
	})
	quadTopo.build([][][]int{
		nil,
		{{0, 1}, {1, 2}, {2, 3}, {3, 0}},
	})
	hexTopo.build([][][]int{
		nil,
		{
			{0, 1}, {1, 2}, {2, 3}, {3, 0},
			{4, 5}, {5, 6}, {6, 7}, {7, 4},
			{0, 4}, {1, 5}, {2, 6}, {3, 7},
		},
		{
			{0, 1, 5, 4}, {1, 2, 6, 5}, {2, 3, 7, 6},
			{0, 4, 7, 3}, {0, 3, 2, 1}, {4, 5, 6, 7},
		},
	})
}

// build fills the vertex and self entries around the explicit edge/face lists.
func (t *CellTopology) build(explicit [][][]int) {
	t.subcells = make([][][]int, t.dim+1)
	t.subTopos = make([][]*CellTopology, t.dim+1)
	for d := 0; d <= t.dim; d++ {
		switch {
		case d == t.dim:
			all := make([]int, len(t.nodes))
			for i := range all {
				all[i] = i
			}
			t.subcells[d] = [][]int{all}
			t.subTopos[d] = []*CellTopology{t}
		case d == 0:
			for i := range t.nodes {
				t.subcells[0] = append(t.subcells[0], []int{i})
				t.subTopos[0] = append(t.subTopos[0], pointTopo)
			}
		default:
			t.subcells[d] = explicit[d]
			for _, nodes := range explicit[d] {
				t.subTopos[d] = append(t.subTopos[d], shapeForNodeCount(d, len(nodes)))
			}
		}
	}
}

func shapeForNodeCount(dim, n int) *CellTopology {
	switch {
	case dim == 0:
		return pointTopo
	case dim == 1:
		return lineTopo
	case dim == 2 && n == 3:
		return triangleTopo
	case dim == 2 && n == 4:
		return quadTopo
	case dim == 3 && n == 8:
		return hexTopo
	}
	panic(fmt.Sprintf("topology: no shape with dimension %d and %d nodes", dim, n))
}

// Point returns the zero-dimensional topology.
func Point() *CellTopology { return pointTopo }

// Line returns the reference line on [-1,1].
func Line() *CellTopology { return lineTopo }

// Triangle returns the reference triangle with nodes (0,0), (1,0), (0,1).
func Triangle() *CellTopology { return triangleTopo }

// Quadrilateral returns the reference square [-1,1]^2.
func Quadrilateral() *CellTopology { return quadTopo }

// Hexahedron returns the reference cube [-1,1]^3.
func Hexahedron() *CellTopology { return hexTopo }

// ByKey resolves a topology from its key.
func ByKey(key Key) (*CellTopology, error) {
	switch key {
	case KeyPoint:
		return pointTopo, nil
	case KeyLine:
		return lineTopo, nil
	case KeyTriangle:
		return triangleTopo, nil
	case KeyQuadrilateral:
		return quadTopo, nil
	case KeyHexahedron:
		return hexTopo, nil
	}
	return nil, fmt.Errorf("topology: unknown key %q", key)
}

func (t *CellTopology) Key() Key        { return t.key }
func (t *CellTopology) Dimension() int  { return t.dim }
func (t *CellTopology) NodeCount() int  { return len(t.nodes) }
func (t *CellTopology) String() string  { return string(t.key) }
func (t *CellTopology) IsSimplex() bool { return !t.tensor }

// SideCount is the number of (dim-1)-dimensional subcells; zero for a point.
func (t *CellTopology) SideCount() int {
	if t.dim == 0 {
		return 0
	}
	return len(t.subcells[t.dim-1])
}

// SubcellCount returns the number of subcells of dimension d.
func (t *CellTopology) SubcellCount(d int) int {
	if d < 0 || d > t.dim {
		return 0
	}
	return len(t.subcells[d])
}

// SubcellNodes returns the cell node ordinals of subcell (d, ord). The slice
// is shared and must not be modified.
func (t *CellTopology) SubcellNodes(d, ord int) []int {
	return t.subcells[d][ord]
}

// Subcell returns the topology of subcell (d, ord).
func (t *CellTopology) Subcell(d, ord int) *CellTopology {
	return t.subTopos[d][ord]
}

// ReferenceNodes returns the reference coordinates of every node.
func (t *CellTopology) ReferenceNodes() [][]float64 {
	out := make([][]float64, len(t.nodes))
	for i, n := range t.nodes {
		out[i] = append([]float64(nil), n...)
	}
	return out
}

// ReferenceNode returns the reference coordinates of node i.
func (t *CellTopology) ReferenceNode(i int) []float64 {
	return append([]float64(nil), t.nodes[i]...)
}

// ReferenceCentroid is the average of the reference nodes.
func (t *CellTopology) ReferenceCentroid() []float64 {
	c := make([]float64, t.dim)
	for _, n := range t.nodes {
		for k := range c {
			c[k] += n[k]
		}
	}
	for k := range c {
		c[k] /= float64(len(t.nodes))
	}
	return c
}

// FindSubcellOrdinal returns the ordinal of the subcell of dimension d whose
// node set equals nodes (in any order), or -1.
func (t *CellTopology) FindSubcellOrdinal(d int, nodes []int) int {
	if d < 0 || d > t.dim {
		return -1
	}
	for ord, sub := range t.subcells[d] {
		if sameSet(sub, nodes) {
			return ord
		}
	}
	return -1
}

// SubcellOrdinalMap translates subcell (subD, subOrd) of subcell (d, ord) into
// the ordinal of the same subcell within t.
func (t *CellTopology) SubcellOrdinalMap(d, ord, subD, subOrd int) int {
	if subD == d {
		return ord
	}
	sub := t.subTopos[d][ord]
	local := sub.SubcellNodes(subD, subOrd)
	parentNodes := t.subcells[d][ord]
	mapped := make([]int, len(local))
	for i, n := range local {
		mapped[i] = parentNodes[n]
	}
	return t.FindSubcellOrdinal(subD, mapped)
}

// SubcellsContainingNodes lists the ordinals of the dimension-d subcells whose
// node sets include all of nodes.
func (t *CellTopology) SubcellsContainingNodes(d int, nodes []int) []int {
	var out []int
	for ord, sub := range t.subcells[d] {
		if containsAll(sub, nodes) {
			out = append(out, ord)
		}
	}
	return out
}

func sameSet(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	return containsAll(a, b)
}

func containsAll(haystack, needles []int) bool {
	for _, n := range needles {
		found := false
		for _, h := range haystack {
			if h == n {
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
