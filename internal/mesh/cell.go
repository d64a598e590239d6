package mesh

import (
	"meshcore/internal/refinement"
	"meshcore/internal/topology"
)

// Cell is one node of the refinement forest. Cells are owned by their
// Topology and addressed by index; relationships are stored as indices.
type Cell struct {
	index    int
	topo     *topology.CellTopology
	vertices []int
	level    int
	parent   int
	children []int
	pattern  *refinement.Pattern

	// entities[d][ord] and perms[d][ord] for d below the cell dimension.
	entities [][]int
	perms    [][]int
	// neighbors[side] is the neighbor cell and its side ordinal.
	neighbors []CellRef
}

// Index returns the cell index.
func (c *Cell) Index() int { return c.index }

// Topology returns the reference shape.
func (c *Cell) Topology() *topology.CellTopology { return c.topo }

// Vertices returns the vertex indices in reference node order.
func (c *Cell) Vertices() []int { return append([]int(nil), c.vertices...) }

// Level is 0 for roots and parent level plus one otherwise.
func (c *Cell) Level() int { return c.level }

// Parent returns the parent index or NoIndex.
func (c *Cell) Parent() int { return c.parent }

// Children returns the child indices in pattern order.
func (c *Cell) Children() []int { return append([]int(nil), c.children...) }

// RefinementPattern returns the pattern the cell was refined with, or nil.
func (c *Cell) RefinementPattern() *refinement.Pattern { return c.pattern }

// SideCount returns the number of sides.
func (c *Cell) SideCount() int { return c.topo.SideCount() }

// EntityIndex returns the index of subcell (d, ord). The cell itself is
// subcell (dim, 0).
func (c *Cell) EntityIndex(d, ord int) int {
	if d == c.topo.Dimension() {
		return c.index
	}
	if d < 0 || d > c.topo.Dimension() || ord < 0 || ord >= len(c.entities[d]) {
		return NoIndex
	}
	return c.entities[d][ord]
}

// EntityIndices returns the indices of every subcell of dimension d.
func (c *Cell) EntityIndices(d int) []int {
	if d == c.topo.Dimension() {
		return []int{c.index}
	}
	return append([]int(nil), c.entities[d]...)
}

// EntityPermutation returns the permutation relating the stored ordering of
// subcell (d, ord) to its ordering within this cell.
func (c *Cell) EntityPermutation(d, ord int) int {
	if d == 0 || d == c.topo.Dimension() {
		return 0
	}
	return c.perms[d][ord]
}

// SideEntity returns the side entity index of side ord.
func (c *Cell) SideEntity(ord int) int {
	return c.EntityIndex(c.topo.Dimension()-1, ord)
}

// FindSubcellOrdinal returns the ordinal of entity e among the cell's
// subcells of dimension d, or NoIndex.
func (c *Cell) FindSubcellOrdinal(d, e int) int {
	if d == c.topo.Dimension() {
		if e == c.index {
			return 0
		}
		return NoIndex
	}
	for ord, idx := range c.entities[d] {
		if idx == e {
			return ord
		}
	}
	return NoIndex
}

// Neighbor returns the stored neighbor link of a side. The link may name an
// ancestor of the true neighbor, or be stale on the coarse side of a hanging
// interface; NeighborInfo resolves it.
func (c *Cell) Neighbor(side int) CellRef { return c.neighbors[side] }

// IsChildless reports whether the cell has never been refined.
func (c *Cell) IsChildless() bool { return len(c.children) == 0 }

// SideChild names a child cell and the child side lying on a parent side.
type SideChild struct {
	Cell int
	Side int
}

// ChildrenForSide lists the children tiling side, with their side ordinals.
func (c *Cell) ChildrenForSide(side int) []SideChild {
	if c.pattern == nil || len(c.children) == 0 {
		return nil
	}
	var out []SideChild
	for _, sc := range c.pattern.ChildrenForSide(side) {
		out = append(out, SideChild{Cell: c.children[sc.Child], Side: sc.Side})
	}
	return out
}

// SubcellPermutation returns the permutation of subcell (d, ord), the same
// as EntityPermutation.
func (c *Cell) SubcellPermutation(d, ord int) int { return c.EntityPermutation(d, ord) }

func (c *Cell) clone() *Cell {
	cp := *c
	cp.vertices = append([]int(nil), c.vertices...)
	cp.children = append([]int(nil), c.children...)
	cp.neighbors = append([]CellRef(nil), c.neighbors...)
	cp.entities = make([][]int, len(c.entities))
	cp.perms = make([][]int, len(c.perms))
	for d := range c.entities {
		cp.entities[d] = append([]int(nil), c.entities[d]...)
		cp.perms[d] = append([]int(nil), c.perms[d]...)
	}
	return &cp
}
