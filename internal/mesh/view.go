package mesh

import (
	"sort"
)

// View is a read-only restriction of a Topology to a set of active cells,
// typically a coarser mesh sharing the same forest. Cells valid in the view
// are the given active cells and their ancestors.
type View struct {
	base     *Topology
	ordinal  int
	active   map[int]struct{}
	valid    map[int]struct{}
	roots    map[int]struct{}
	entities []map[int][]CellRef
}

// GetView builds a view whose active cells are activeCells. Every cell must
// be known to the topology.
func (t *Topology) GetView(activeCells []int) (*View, error) {
	v := &View{
		base:     t,
		ordinal:  t.pruningOrdinal,
		active:   make(map[int]struct{}, len(activeCells)),
		valid:    make(map[int]struct{}),
		roots:    make(map[int]struct{}),
		entities: make([]map[int][]CellRef, t.dim),
	}
	for d := range v.entities {
		v.entities[d] = make(map[int][]CellRef)
	}
	for _, idx := range activeCells {
		c, ok := t.cells[idx]
		if !ok {
			return nil, preconditionf("view cell %d is not known", idx)
		}
		v.active[idx] = struct{}{}
		for cur := c; cur != nil; {
			v.valid[cur.index] = struct{}{}
			if cur.parent == NoIndex {
				v.roots[cur.index] = struct{}{}
				break
			}
			cur = t.cells[cur.parent]
		}
		for d := 0; d < t.dim; d++ {
			for j, e := range c.entities[d] {
				ref := CellRef{Cell: idx, Ordinal: j}
				for _, a := range t.aliases(d, e) {
					v.entities[d][a] = insertCellRef(v.entities[d][a], ref)
				}
			}
		}
	}
	for idx := range v.active {
		if v.IsParent(idx) {
			return nil, preconditionf("view cell %d has a descendant that is also in the view", idx)
		}
	}
	return v, nil
}

// GetView restricts the view further. activeCells must be valid in v.
func (v *View) GetView(activeCells []int) (*View, error) {
	for _, c := range activeCells {
		if !v.IsValidCellIndex(c) {
			return nil, preconditionf("cell %d is not valid in the view", c)
		}
	}
	return v.base.GetView(activeCells)
}

// Base returns the topology the view restricts.
func (v *View) Base() *Topology { return v.base }

// Stale reports whether the base topology has been pruned since the view
// was built.
func (v *View) Stale() bool { return v.base.pruningOrdinal != v.ordinal }

// IsValidCellIndex reports whether the cell is active in the view or an
// ancestor of an active cell.
func (v *View) IsValidCellIndex(cell int) bool {
	_, ok := v.valid[cell]
	return ok
}

// IsParent reports whether some child of the cell is valid in the view.
func (v *View) IsParent(cell int) bool {
	c, ok := v.base.cells[cell]
	if !ok {
		return false
	}
	for _, child := range c.children {
		if _, ok := v.valid[child]; ok {
			return true
		}
	}
	return false
}

func (v *View) activeCellsFor(d, e int) []CellRef { return v.entities[d][e] }

// ActiveCells lists the view's active cells in ascending order.
func (v *View) ActiveCells() []int { return sortedKeys(v.active) }

// ActiveCellCount returns the number of active cells in the view.
func (v *View) ActiveCellCount() int { return len(v.active) }

// RootCells lists the roots of the view's cells.
func (v *View) RootCells() []int { return sortedKeys(v.roots) }

// ValidCells lists every cell valid in the view.
func (v *View) ValidCells() []int { return sortedKeys(v.valid) }

// Cell returns a cell valid in the view, or nil.
func (v *View) Cell(index int) *Cell {
	if !v.IsValidCellIndex(index) {
		return nil
	}
	return v.base.cells[index]
}

// ActiveCellsForEntity lists the view's active cells containing (d, e).
func (v *View) ActiveCellsForEntity(d, e int) []CellRef {
	if d < 0 || d >= v.base.dim {
		return nil
	}
	return append([]CellRef(nil), v.entities[d][e]...)
}

// MyActiveCells lists the view's active cells owned by this process, or all
// of them when ownership has not been assigned.
func (v *View) MyActiveCells() []int {
	var out []int
	for c := range v.active {
		if !v.base.distributed {
			out = append(out, c)
			continue
		}
		if _, ok := v.base.owned[c]; ok {
			out = append(out, c)
		}
	}
	sort.Ints(out)
	return out
}

// ConstrainingEntity resolves constraints against the view's active cells.
func (v *View) ConstrainingEntity(d, e int) EntityRef { return v.base.constrainingEntity(v, d, e) }

// ConstrainingEntityOfLikeDimension resolves same-dimension constraints
// against the view's active cells.
func (v *View) ConstrainingEntityOfLikeDimension(d, e int) int {
	if v.base.checkEntity(d, e) != nil {
		return NoIndex
	}
	return v.base.constrainingEntityOfLikeDimension(v, d, e)
}

// ConstrainingSideAncestry resolves side ancestry against the view.
func (v *View) ConstrainingSideAncestry(side int) []EntityRef {
	if side < 0 || side >= len(v.base.cellsForSide) {
		return nil
	}
	return v.base.constrainingSideAncestry(v, side)
}

// CheckSide validates a (cell, side ordinal) pair against the view.
func (v *View) CheckSide(cell, side int) error { return v.base.checkSide(v, cell, side) }

// NeighborInfo resolves a neighbor to a cell valid in the view.
func (v *View) NeighborInfo(cell, side int) CellRef { return v.base.neighborInfo(v, cell, side) }

// OwnsSide applies the side ownership rule within the view.
func (v *View) OwnsSide(cell, side int) bool { return v.base.ownsSide(v, cell, side) }

// DescendantsForSide lists descendants valid in the view along a side.
func (v *View) DescendantsForSide(cell, side int, leafOnly bool) []CellRef {
	return v.base.scopedDescendantsForSide(v, cell, side, leafOnly)
}

// ActiveNeighborIndices lists the view's active cells sharing an entity of
// dimension d with cell.
func (v *View) ActiveNeighborIndices(cell, d int) []int {
	return v.base.activeNeighborIndices(v, cell, d)
}

// OwningCellForConstrainingEntity is the view counterpart of
// Topology.OwningCellForConstrainingEntity.
func (v *View) OwningCellForConstrainingEntity(d, e int) (int, int) {
	return v.base.owningCellForConstrainingEntity(v, d, e)
}

// CellIDsForPoints locates points among the view's cells.
func (v *View) CellIDsForPoints(points [][]float64) []int {
	return v.base.cellIDsForPoints(v, v.RootCells(), points)
}
