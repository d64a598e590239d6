package mesh

import (
	"sort"

	"meshcore/internal/refinement"
)

// scope decides which cells count as present and active. The Topology is
// its own scope; a View restricts it.
type scope interface {
	IsValidCellIndex(cell int) bool
	IsParent(cell int) bool
	activeCellsFor(d, e int) []CellRef
}

func (t *Topology) activeCellsFor(d, e int) []CellRef {
	if d < 0 || d >= t.dim || e < 0 || e >= t.entities[d].count() {
		return nil
	}
	return t.entities[d].active[e]
}

// sideActive reports whether an active cell contains some side containing
// entity (d, e).
func (t *Topology) sideActive(s scope, d, e int) bool {
	sd := t.sideDim()
	if d == sd {
		return len(s.activeCellsFor(sd, e)) > 0
	}
	for _, side := range t.entities[d].sides[e] {
		if len(s.activeCellsFor(sd, side)) > 0 {
			return true
		}
	}
	return false
}

// constrainingEntityOfLikeDimension returns the coarsest same-dimension
// ancestor of (d, e) that still lies on an active side, or e.
func (t *Topology) constrainingEntityOfLikeDimension(s scope, d, e int) int {
	if d == 0 {
		return e
	}
	result := e
	for p := t.entityParent(d, e); p != NoIndex; p = t.entityParent(d, p) {
		if t.sideActive(s, d, p) {
			result = p
		}
	}
	return result
}

func (t *Topology) constrainingEntity(s scope, d, e int) EntityRef {
	result := EntityRef{Dim: d, Index: e}
	if t.checkEntity(d, e) != nil {
		return result
	}
	gd, ge := d, e
	for gd <= t.sideDim() {
		if like := t.constrainingEntityOfLikeDimension(s, gd, ge); like != ge {
			result = EntityRef{Dim: gd, Index: like}
		} else if t.sideActive(s, gd, ge) {
			result = EntityRef{Dim: gd, Index: ge}
		}
		for p := t.entityParent(gd, ge); p != NoIndex; p = t.entityParent(gd, ge) {
			ge = p
		}
		gp, ok := t.entities[gd].genParent[ge]
		if !ok || gp.Dim <= gd {
			break
		}
		gd, ge = gp.Dim, gp.Index
	}
	return result
}

// ConstrainingEntity returns the entity that governs continuity across the
// interface containing (d, e): its coarsest ancestor, possibly of higher
// dimension, that still lies on an active side. An unconstrained entity is
// its own constraining entity.
func (t *Topology) ConstrainingEntity(d, e int) EntityRef { return t.constrainingEntity(t, d, e) }

// ConstrainingEntityOfLikeDimension is ConstrainingEntity restricted to
// same-dimension ancestors.
func (t *Topology) ConstrainingEntityOfLikeDimension(d, e int) int {
	if t.checkEntity(d, e) != nil {
		return NoIndex
	}
	return t.constrainingEntityOfLikeDimension(t, d, e)
}

func (t *Topology) constrainingSideAncestry(s scope, side int) []EntityRef {
	sd := t.sideDim()
	if t.IsBoundarySide(side) || len(s.activeCellsFor(sd, side)) == 2 {
		return nil
	}
	var ancestry []EntityRef
	for p := t.entityParent(sd, side); p != NoIndex; p = t.entityParent(sd, p) {
		ancestry = append(ancestry, EntityRef{Dim: sd, Index: p})
		if len(s.activeCellsFor(sd, p)) > 0 {
			return ancestry
		}
	}
	return nil
}

// ConstrainingSideAncestry lists the ancestors of a hanging side up to and
// including the active side that constrains it. Boundary, conforming and
// parent sides yield nil.
func (t *Topology) ConstrainingSideAncestry(side int) []EntityRef {
	if side < 0 || side >= len(t.cellsForSide) {
		return nil
	}
	return t.constrainingSideAncestry(t, side)
}

func (t *Topology) neighborInfo(s scope, cell, side int) CellRef {
	c, ok := t.cells[cell]
	if !ok || side < 0 || side >= len(c.neighbors) {
		return noCell
	}
	nb := c.neighbors[side]
	if nb.Cell == NoIndex {
		return noCell
	}
	if s.IsValidCellIndex(nb.Cell) {
		return nb
	}
	if !t.IsValidCellIndex(nb.Cell) {
		return noCell
	}
	cur := nb
	for {
		child := t.cells[cur.Cell]
		if child.parent == NoIndex {
			return noCell
		}
		p, ok := t.cells[child.parent]
		if !ok || p.pattern == nil {
			return noCell
		}
		childOrd := NoIndex
		for i, ch := range p.children {
			if ch == child.index {
				childOrd = i
				break
			}
		}
		if childOrd == NoIndex {
			return noCell
		}
		parentSide, ok := p.pattern.ParentSideLookupForChild(childOrd)[cur.Ordinal]
		if !ok {
			return noCell
		}
		if back := t.neighborInfo(t, p.index, parentSide); back.Cell != cell {
			return noCell
		}
		cur = CellRef{Cell: p.index, Ordinal: parentSide}
		if s.IsValidCellIndex(p.index) {
			return cur
		}
	}
}

func (t *Topology) checkSide(s scope, cell, side int) error {
	c, ok := t.cells[cell]
	if !ok || !s.IsValidCellIndex(cell) {
		return preconditionf("cell %d is not known", cell)
	}
	if n := c.SideCount(); side < 0 || side >= n {
		return preconditionf("side ordinal %d out of range for cell %d with %d sides", side, cell, n)
	}
	return nil
}

// CheckSide validates a (cell, side ordinal) pair before it is handed to
// NeighborInfo or OwnsSide, which do not report bad arguments.
func (t *Topology) CheckSide(cell, side int) error { return t.checkSide(t, cell, side) }

// NeighborInfo resolves the neighbor across a side: the neighbor cell and
// its side ordinal, or a Cell of NoIndex on the boundary. An unknown cell or
// side ordinal also yields NoIndex; use CheckSide to tell them apart.
func (t *Topology) NeighborInfo(cell, side int) CellRef { return t.neighborInfo(t, cell, side) }

func (t *Topology) ownsSide(s scope, cell, side int) bool {
	if t.checkSide(s, cell, side) != nil {
		return false
	}
	nb := t.neighborInfo(s, cell, side)
	if nb.Cell == NoIndex {
		return true
	}
	back := t.neighborInfo(s, nb.Cell, nb.Ordinal)
	peer := back.Cell == cell
	neighborIsParent := s.IsParent(nb.Cell)
	switch {
	case peer && nb.Cell == cell:
		// a periodic cell bordering itself
		return side < nb.Ordinal
	case peer && !neighborIsParent:
		return cell < nb.Cell
	case peer:
		return true
	case !neighborIsParent:
		return false
	default:
		// Anisotropic case: compares the neighbor's resolved neighbor with
		// the neighbor itself rather than with this cell's ancestor.
		return back.Cell < nb.Cell
	}
}

// OwnsSide reports whether cell is the one of the cells bordering side that
// is responsible for it. It is false for an unknown cell or side ordinal.
func (t *Topology) OwnsSide(cell, side int) bool { return t.ownsSide(t, cell, side) }

func (t *Topology) descendantsForSide(cell, side int, leafOnly bool) []CellRef {
	return t.scopedDescendantsForSide(t, cell, side, leafOnly)
}

func (t *Topology) scopedDescendantsForSide(s scope, cell, side int, leafOnly bool) []CellRef {
	c, ok := t.cells[cell]
	if !ok {
		return nil
	}
	if !s.IsParent(cell) {
		return []CellRef{{Cell: cell, Ordinal: side}}
	}
	var out []CellRef
	for _, sc := range c.ChildrenForSide(side) {
		valid := s.IsValidCellIndex(sc.Cell)
		parent := valid && s.IsParent(sc.Cell)
		if (valid && !parent) || !leafOnly {
			out = append(out, CellRef{Cell: sc.Cell, Ordinal: sc.Side})
		}
		if parent {
			out = append(out, t.scopedDescendantsForSide(s, sc.Cell, sc.Side, leafOnly)...)
		}
	}
	return out
}

// DescendantsForSide lists the descendants of cell lying on side, parents
// before their children. With leafOnly only unrefined descendants are
// listed. An unrefined cell yields itself.
func (t *Topology) DescendantsForSide(cell, side int, leafOnly bool) []CellRef {
	return t.scopedDescendantsForSide(t, cell, side, leafOnly)
}

// BranchStep is one level of a refinement branch: the pattern applied to an
// ancestor and the ordinal of the child taken.
type BranchStep struct {
	Pattern *refinement.Pattern
	Child   int
}

// RefinementBranchForSubcell returns the refinement steps, coarse to fine,
// from the ancestor containing the constraining entity of subcell (d, ord)
// down to cell. Its length is the irregularity of that subcell.
func (t *Topology) RefinementBranchForSubcell(cell, d, ord int) ([]BranchStep, error) {
	branch, _, err := t.refinementBranch(cell, d, ord)
	return branch, err
}

func (t *Topology) refinementBranch(cell, d, ord int) ([]BranchStep, EntityRef, error) {
	c, ok := t.cells[cell]
	if !ok {
		return nil, EntityRef{}, preconditionf("cell %d is not known", cell)
	}
	if d < 0 || d >= t.dim || ord < 0 || ord >= c.topo.SubcellCount(d) {
		return nil, EntityRef{}, preconditionf("subcell (%d,%d) out of range for cell %d", d, ord, cell)
	}
	entity := c.entities[d][ord]
	target := t.ConstrainingEntity(d, entity)
	var branch []BranchStep
	curDim, curOrd, curEntity := d, ord, entity
	for curDim != target.Dim || curEntity != target.Index {
		if c.parent == NoIndex {
			return nil, EntityRef{}, internalf("cell %d has no ancestor containing constraining entity (%d,%d) of subcell (%d,%d)", cell, target.Dim, target.Index, d, ord)
		}
		p, ok := t.cells[c.parent]
		if !ok {
			return nil, EntityRef{}, internalf("parent %d of cell %d is not known", c.parent, c.index)
		}
		childOrd := NoIndex
		for i, ch := range p.children {
			if ch == c.index {
				childOrd = i
				break
			}
		}
		branch = append(branch, BranchStep{Pattern: p.pattern, Child: childOrd})
		if parentOrd := p.pattern.MapSubcellOrdinalFromChildToParent(childOrd, curDim, curOrd); parentOrd != NoIndex {
			curOrd = parentOrd
			curEntity = p.EntityIndex(curDim, parentOrd)
		} else {
			gp, ok := t.EntityGeneralizedParent(curDim, curEntity)
			if !ok || gp.Dim <= curDim {
				return nil, EntityRef{}, internalf("entity (%d,%d) lies inside cell %d but has no generalized parent", curDim, curEntity, p.index)
			}
			curDim, curEntity = gp.Dim, gp.Index
			curOrd = p.FindSubcellOrdinal(curDim, curEntity)
			if curOrd == NoIndex {
				return nil, EntityRef{}, internalf("generalized parent (%d,%d) is not a subcell of cell %d", curDim, curEntity, p.index)
			}
		}
		c = p
	}
	for i, j := 0, len(branch)-1; i < j; i, j = i+1, j-1 {
		branch[i], branch[j] = branch[j], branch[i]
	}
	return branch, EntityRef{Dim: curDim, Index: curOrd}, nil
}

// AncestralCellForSubcell returns the ancestor of cell at the root of the
// refinement branch of subcell (d, ord).
func (t *Topology) AncestralCellForSubcell(cell, d, ord int) (int, error) {
	branch, _, err := t.refinementBranch(cell, d, ord)
	if err != nil {
		return NoIndex, err
	}
	anc := cell
	for range branch {
		anc = t.cells[anc].parent
	}
	return anc, nil
}

// AncestralSubcell returns the dimension and ordinal, within the ancestral
// cell, of the subcell holding the constraining entity of (d, ord).
func (t *Topology) AncestralSubcell(cell, d, ord int) (int, int, error) {
	_, ref, err := t.refinementBranch(cell, d, ord)
	if err != nil {
		return NoIndex, NoIndex, err
	}
	return ref.Dim, ref.Index, nil
}

func (t *Topology) activeNeighborIndices(s scope, cell, d int) []int {
	c, ok := t.cells[cell]
	if !ok || d < 0 || d >= t.dim {
		return nil
	}
	found := make(map[int]struct{})
	sd := t.sideDim()
	if d == sd {
		for side := 0; side < c.topo.SideCount(); side++ {
			nb := t.neighborInfo(s, cell, side)
			if nb.Cell == NoIndex {
				continue
			}
			for _, ref := range t.scopedDescendantsForSide(s, nb.Cell, nb.Ordinal, true) {
				found[ref.Cell] = struct{}{}
			}
		}
	} else {
		entities := make(map[int]struct{})
		for _, e := range c.entities[d] {
			entities[e] = struct{}{}
		}
		for side := 0; side < c.topo.SideCount(); side++ {
			for _, child := range t.Descendants(sd, c.entities[sd][side]) {
				sideTopo := t.entities[sd].topo[child]
				for j := 0; j < sideTopo.SubcellCount(d); j++ {
					if e, err := t.SubEntityIndex(sd, child, d, j); err == nil && e != NoIndex {
						entities[e] = struct{}{}
					}
				}
			}
		}
		for e := range entities {
			constraining := t.constrainingEntity(s, d, e)
			for _, ref := range s.activeCellsFor(d, e) {
				found[ref.Cell] = struct{}{}
			}
			if constraining.Dim < t.dim {
				for _, ref := range s.activeCellsFor(constraining.Dim, constraining.Index) {
					found[ref.Cell] = struct{}{}
				}
			}
		}
	}
	delete(found, cell)
	var out []int
	for n := range found {
		if s.IsValidCellIndex(n) && !s.IsParent(n) {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

// ActiveNeighborIndices lists the active cells sharing an entity of
// dimension d with cell, including fine cells across hanging interfaces.
func (t *Topology) ActiveNeighborIndices(cell, d int) []int {
	return t.activeNeighborIndices(t, cell, d)
}

// PeerNeighborIndices lists the cells at the same refinement level as cell
// that share an entity of dimension d with it. Finer neighbors are
// represented by their ancestor at that level.
func (t *Topology) PeerNeighborIndices(cell, d int) []int {
	c, ok := t.cells[cell]
	if !ok || d < 0 || d >= t.dim {
		return nil
	}
	mine := make(map[int]struct{})
	for _, e := range c.entities[d] {
		mine[e] = struct{}{}
	}
	candidates := make(map[int]struct{})
	for _, e := range c.entities[d] {
		for _, ref := range t.entities[d].active[e] {
			candidates[ref.Cell] = struct{}{}
		}
	}
	for _, n := range t.ActiveNeighborIndices(cell, d) {
		candidates[n] = struct{}{}
	}
	peers := make(map[int]struct{})
	for n := range candidates {
		nc := t.cells[n]
		for nc != nil && nc.level > c.level && nc.parent != NoIndex {
			nc = t.cells[nc.parent]
		}
		if nc == nil || nc.level != c.level || nc.index == cell {
			continue
		}
		for _, e := range nc.entities[d] {
			if _, shared := mine[e]; shared {
				peers[nc.index] = struct{}{}
				break
			}
		}
	}
	return sortedKeys(peers)
}

func (t *Topology) owningCellForConstrainingEntity(s scope, d, e int) (int, int) {
	if t.checkEntity(d, e) != nil {
		return NoIndex, NoIndex
	}
	tier := []int{e}
	for len(tier) > 0 {
		least, leastEntity := NoIndex, NoIndex
		var next []int
		for _, entity := range tier {
			for _, alias := range t.aliases(d, entity) {
				for _, ref := range s.activeCellsFor(d, alias) {
					if least == NoIndex || ref.Cell < least {
						least, leastEntity = ref.Cell, entity
					}
				}
			}
			next = append(next, t.ChildEntities(d, entity)...)
		}
		if least != NoIndex {
			return least, leastEntity
		}
		tier = next
	}
	return NoIndex, NoIndex
}

// OwningCellForConstrainingEntity walks the refinement tiers of entity
// (d, e) and returns the least active cell index found on the first tier
// that has one, with the entity it contains. Both are NoIndex when no tier
// has an active cell.
func (t *Topology) OwningCellForConstrainingEntity(d, e int) (int, int) {
	return t.owningCellForConstrainingEntity(t, d, e)
}
