package mesh

import (
	"sort"

	"meshcore/internal/refinement"
	"meshcore/internal/telemetry"
)

// RefineCell subdivides cell with pattern, numbering the children
// contiguously from firstChild. Refining a cell that is not known locally
// only advances the index allocator, so every process can apply the same
// sequence of refinements.
func (t *Topology) RefineCell(cell int, pattern *refinement.Pattern, firstChild int) error {
	return t.instrument(telemetry.OpRefineCell, func() error {
		return t.refineCell(cell, pattern, firstChild)
	})
}

func (t *Topology) refineCell(cell int, pattern *refinement.Pattern, firstChild int) error {
	if pattern == nil {
		return preconditionf("nil refinement pattern for cell %d", cell)
	}
	if firstChild < 0 {
		return preconditionf("first child index %d is negative", firstChild)
	}
	c, ok := t.cells[cell]
	if ok && pattern.ParentTopology() != c.topo {
		return preconditionf("pattern %s does not apply to %s cell %d", pattern, c.topo, cell)
	}
	if ok && len(c.children) > 0 && (c.pattern != pattern || c.children[0] != firstChild) {
		return preconditionf("cell %d is already refined with %s from child %d", cell, c.pattern, c.children[0])
	}
	n := pattern.NumChildren()
	if firstChild >= t.next {
		t.next = firstChild + n
		t.globalActive += n - 1
	}
	if !ok {
		t.recordRefinement(cell, pattern, firstChild)
		return nil
	}
	newRefinement := len(c.children) == 0

	physical := t.physicalPoints(c, pattern.Vertices())
	patternVerts := make([]int, len(physical))
	for i, x := range physical {
		v, err := t.VertexIndexAdding(x, t.tol)
		if err != nil {
			return err
		}
		patternVerts[i] = v
	}
	if err := t.refineCellEntities(c, pattern); err != nil {
		return err
	}
	c.pattern = pattern
	if newRefinement {
		t.deactivateCell(c)
	}

	children := make([]int, n)
	for i := range children {
		children[i] = firstChild + i
		if _, known := t.cells[children[i]]; known {
			continue
		}
		ords := pattern.ChildVertexOrdinals(i)
		verts := make([]int, len(ords))
		for k, o := range ords {
			verts[k] = patternVerts[o]
		}
		if _, err := t.addCell(children[i], pattern.ChildTopology(i), verts, cell); err != nil {
			return err
		}
	}
	c.children = children

	if err := t.determineGeneralizedParents(c, pattern); err != nil {
		return err
	}
	if newRefinement && len(t.curves) > 0 {
		if err := t.splitCurves(c); err != nil {
			return err
		}
	}
	if _, owned := t.owned[cell]; owned {
		for _, child := range children {
			t.owned[child] = struct{}{}
		}
	}
	t.recordRefinement(cell, pattern, firstChild)
	t.logger.Debug("cell refined", "cell", cell, "pattern", pattern.String(), "first_child", firstChild)
	return nil
}

// physicalPoints maps reference points of c to physical space, placing
// points that lie on curved edges onto their curves.
func (t *Topology) physicalPoints(c *Cell, ref [][]float64) [][]float64 {
	nodes := t.CellVertexCoordinates(c.index)
	out := make([][]float64, len(ref))
	for i, p := range ref {
		out[i] = c.topo.MapToPhysical(nodes, p)
	}
	if len(t.curves) > 0 {
		t.snapToCurves(c, ref, out)
	}
	if t.geometry != nil {
		out = t.geometry.CorrectPoints(c.index, ref, out)
	}
	return out
}

func childrenKnown(groups []ChildGroup) bool {
	if len(groups) == 0 {
		return false
	}
	for _, c := range groups[0].Children {
		if c == NoIndex {
			return false
		}
	}
	return true
}

// refineCellEntities creates the child entities that pattern induces on
// every subcell of c between dimension 1 and the side dimension.
func (t *Topology) refineCellEntities(c *Cell, pattern *refinement.Pattern) error {
	for d := 1; d < t.dim; d++ {
		table := t.entities[d]
		for ord := 0; ord < c.topo.SubcellCount(d); ord++ {
			sub := pattern.PatternForSubcell(d, ord)
			if sub.NumChildren() == 1 {
				continue
			}
			parent := c.entities[d][ord]
			if childrenKnown(table.children[parent]) {
				continue
			}
			childIdxs := make([]int, sub.NumChildren())
			for i, nodes := range sub.RefinedNodes() {
				physical := t.physicalPoints(c, c.topo.MapToReferenceSubcell(d, ord, nodes))
				verts := make([]int, len(physical))
				for k, x := range physical {
					v, err := t.VertexIndexAdding(x, t.tol)
					if err != nil {
						return err
					}
					verts[k] = v
				}
				idx, _, err := t.addEntity(sub.ChildTopology(i), verts)
				if err != nil {
					return err
				}
				childIdxs[i] = idx
				if idx != parent {
					table.parents[idx] = []ParentRef{{Entity: parent, Group: 0}}
				}
			}
			table.children[parent] = []ChildGroup{{Pattern: sub, Children: childIdxs}}
			if d == t.sideDim() && t.IsBoundarySide(parent) {
				for _, child := range childIdxs {
					t.boundary[child] = struct{}{}
				}
			}
		}
	}
	return nil
}

// determineGeneralizedParents records, for every entity a refinement
// introduces inside a parent subcell, the lowest-dimensional parent entity
// it came from.
func (t *Topology) determineGeneralizedParents(c *Cell, pattern *refinement.Pattern) error {
	for d := 1; d < t.dim; d++ {
		table := t.entities[d]
		for ord := 0; ord < c.topo.SubcellCount(d); ord++ {
			if pattern.PatternForSubcell(d, ord).NumChildren() == 1 {
				continue
			}
			parent := c.entities[d][ord]
			groups := table.children[parent]
			if len(groups) == 0 {
				continue
			}
			parentVerts := make(map[int]struct{})
			for _, v := range table.ordering[parent] {
				parentVerts[t.CanonicalVertex(v)] = struct{}{}
			}
			for _, child := range groups[0].Children {
				if child == NoIndex || child == parent {
					continue
				}
				if err := t.setGeneralizedParent(d, child, d, parent); err != nil {
					return err
				}
				childTopo := table.topo[child]
				for subD := 0; subD < d; subD++ {
					for j := 0; j < childTopo.SubcellCount(subD); j++ {
						s, err := t.SubEntityIndex(d, child, subD, j)
						if err != nil {
							return err
						}
						if s == NoIndex {
							continue
						}
						if subD == 0 {
							if _, corner := parentVerts[s]; corner {
								continue
							}
						}
						if gp, ok := t.entities[subD].genParent[s]; ok && gp.Dim <= d {
							continue
						}
						if err := t.setGeneralizedParent(subD, s, d, parent); err != nil {
							return err
						}
					}
				}
			}
		}
	}
	return nil
}

// HRefine refines cells with pattern in ascending index order, allocating
// contiguous child indices from CellCount. Cells that are already parents
// are skipped; unknown cells only advance the allocator.
func (t *Topology) HRefine(cells []int, pattern *refinement.Pattern) error {
	sorted := append([]int(nil), cells...)
	sort.Ints(sorted)
	var refined []int
	for i, cell := range sorted {
		if i > 0 && cell == sorted[i-1] {
			continue
		}
		if t.IsParent(cell) {
			continue
		}
		if err := t.RefineCell(cell, pattern, t.next); err != nil {
			return err
		}
		if t.IsValidCellIndex(cell) {
			refined = append(refined, cell)
		}
	}
	if t.geometry != nil && len(refined) > 0 {
		t.geometry.DidRefine(refined)
	}
	if len(refined) > 0 {
		t.logger.Info("cells refined", "pattern", pattern.String(), "count", len(refined), "active", t.globalActive)
	}
	return nil
}

// IsInteriorChild reports whether no side of the cell lies on a side of its
// parent.
func (t *Topology) IsInteriorChild(cell int) bool {
	c, ok := t.cells[cell]
	if !ok || c.parent == NoIndex {
		return false
	}
	p, ok := t.cells[c.parent]
	if !ok || p.pattern == nil {
		return false
	}
	for i, child := range p.children {
		if child == cell {
			return p.pattern.ChildIsInterior(i)
		}
	}
	return false
}

// ChildOrdinal returns the position of cell among its parent's children,
// or NoIndex for roots.
func (t *Topology) ChildOrdinal(cell int) int {
	c, ok := t.cells[cell]
	if !ok || c.parent == NoIndex {
		return NoIndex
	}
	p, ok := t.cells[c.parent]
	if !ok {
		return NoIndex
	}
	for i, child := range p.children {
		if child == cell {
			return i
		}
	}
	return NoIndex
}
