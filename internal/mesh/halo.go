package mesh

import (
	"sort"

	"meshcore/internal/telemetry"
)

// CellHalo expands owned to the cells a process must keep: owned cells and
// their ancestors, every cell sharing an entity of dimension neighborDim
// with one of those, and every cell carrying a curved edge. The result is
// closed under ancestors and the children of each ancestor.
func (t *Topology) CellHalo(owned []int, neighborDim int) []int {
	if neighborDim < 0 || neighborDim >= t.dim {
		neighborDim = t.sideDim()
	}
	lineage := make(map[int]struct{})
	for _, c := range owned {
		for p := c; p != NoIndex && t.IsValidCellIndex(p); p = t.cells[p].parent {
			if _, seen := lineage[p]; seen {
				break
			}
			lineage[p] = struct{}{}
		}
	}
	halo := make(map[int]struct{}, len(lineage))
	for c := range lineage {
		halo[c] = struct{}{}
		for _, n := range t.ActiveNeighborIndices(c, neighborDim) {
			if !t.descendsFrom(n, c) {
				halo[n] = struct{}{}
			}
		}
	}
	for c := range t.curvedCells {
		if t.IsValidCellIndex(c) {
			halo[c] = struct{}{}
		}
	}
	for changed := true; changed; {
		changed = false
		for c := range halo {
			parent := t.cells[c].parent
			if parent == NoIndex {
				continue
			}
			if _, ok := halo[parent]; !ok {
				halo[parent] = struct{}{}
				changed = true
			}
			for _, sibling := range t.cells[parent].children {
				if _, ok := halo[sibling]; !ok && t.IsValidCellIndex(sibling) {
					halo[sibling] = struct{}{}
					changed = true
				}
			}
		}
	}
	return sortedKeys(halo)
}

func (t *Topology) descendsFrom(cell, ancestor int) bool {
	for p := t.cells[cell].parent; p != NoIndex; p = t.cells[p].parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

// PruneToOwned keeps only the halo of the owned cells.
func (t *Topology) PruneToOwned(neighborDim int) error {
	return t.PruneToInclude(t.CellHalo(t.OwnedCells(), neighborDim))
}

// HaloCells returns the halo of the last prune, or nil when the topology has
// never been pruned.
func (t *Topology) HaloCells() []int { return append([]int(nil), t.halo...) }

// PruneToInclude discards every cell outside halo, together with the
// entities only discarded cells referenced, and compacts entity and vertex
// indices. Cell indices are preserved. Ancestors of halo cells and cells
// with curved edges are always kept. A halo covering every known cell leaves
// the topology untouched.
func (t *Topology) PruneToInclude(halo []int) error {
	return t.instrument(telemetry.OpPrune, func() error { return t.pruneToInclude(halo) })
}

type pruneMaps struct {
	// order[d] lists the surviving old indices; remap[d] inverts it.
	order [][]int
	remap []map[int]int
}

func (m pruneMaps) lookup(d, old int) int {
	if n, ok := m.remap[d][old]; ok {
		return n
	}
	return NoIndex
}

func (t *Topology) pruneToInclude(halo []int) error {
	keep := make(map[int]struct{}, len(halo))
	for _, c := range halo {
		if !t.IsValidCellIndex(c) {
			return preconditionf("halo cell %d is not known", c)
		}
		keep[c] = struct{}{}
	}
	for c := range t.curvedCells {
		if t.IsValidCellIndex(c) {
			keep[c] = struct{}{}
		}
	}
	for c := range keep {
		for p := t.cells[c].parent; p != NoIndex; p = t.cells[p].parent {
			keep[p] = struct{}{}
		}
	}
	if len(keep) == len(t.cells) {
		return nil
	}

	maps := t.survivingEntities(keep)
	next := &Topology{}
	next.entities = make([]*entityTable, t.dim)
	for d := 0; d < t.dim; d++ {
		next.entities[d] = t.compactTable(d, keep, maps)
	}
	next.cellsForSide = t.compactSideClaims(keep, maps)
	next.boundary = make(map[int]struct{})
	for side := range t.boundary {
		if n := maps.lookup(t.sideDim(), side); n != NoIndex {
			next.boundary[n] = struct{}{}
		}
	}
	next.pstate = t.compactPeriodic(maps)
	next.curves = make(map[edgeKey]ParametricCurve)
	for k, c := range t.curves {
		v0, v1 := maps.lookup(0, k.v0), maps.lookup(0, k.v1)
		if v0 != NoIndex && v1 != NoIndex {
			next.curves[edgeKey{v0, v1}] = c
		}
	}
	next.curvedCells = make(map[int]struct{})
	for c := range t.curvedCells {
		if _, ok := keep[c]; ok {
			next.curvedCells[c] = struct{}{}
		}
	}
	next.cells = make(map[int]*Cell, len(keep))
	next.active = make(map[int]struct{})
	next.roots = make(map[int]struct{})
	next.owned = make(map[int]struct{})
	for idx := range keep {
		c := t.cells[idx].clone()
		for i, v := range c.vertices {
			c.vertices[i] = maps.lookup(0, v)
		}
		for d := range c.entities {
			for j, e := range c.entities[d] {
				c.entities[d][j] = maps.lookup(d, e)
			}
		}
		next.cells[idx] = c
		if len(c.children) == 0 {
			next.active[idx] = struct{}{}
		}
		if c.parent == NoIndex {
			next.roots[idx] = struct{}{}
		}
		if _, ok := t.owned[idx]; ok {
			next.owned[idx] = struct{}{}
		}
	}
	coords := make([][]float64, len(maps.order[0]))
	for i, old := range maps.order[0] {
		coords[i] = t.vertices.coords[old]
	}

	before := len(t.cells)
	t.vertices.rebuild(coords)
	t.entities = next.entities
	t.cellsForSide = next.cellsForSide
	t.boundary = next.boundary
	t.pstate = next.pstate
	t.curves = next.curves
	t.curvedCells = next.curvedCells
	t.cells = next.cells
	t.active = next.active
	t.roots = next.roots
	t.owned = next.owned
	t.halo = sortedKeys(keep)
	t.pruningOrdinal++
	t.logger.Info("topology pruned", "cells_before", before, "cells_after", len(t.cells), "vertices", len(coords), "pruning_ordinal", t.pruningOrdinal)
	return nil
}

// survivingEntities collects the entities referenced by kept cells, plus
// the vertices those entities are stored with.
func (t *Topology) survivingEntities(keep map[int]struct{}) pruneMaps {
	sets := make([]map[int]struct{}, t.dim)
	for d := range sets {
		sets[d] = make(map[int]struct{})
	}
	for idx := range keep {
		c := t.cells[idx]
		for d := 0; d < t.dim; d++ {
			for _, e := range c.entities[d] {
				sets[d][e] = struct{}{}
			}
		}
		for _, v := range c.vertices {
			sets[0][v] = struct{}{}
		}
	}
	for d := 1; d < t.dim; d++ {
		for e := range sets[d] {
			for _, v := range t.entities[d].ordering[e] {
				sets[0][v] = struct{}{}
			}
		}
	}
	maps := pruneMaps{order: make([][]int, t.dim), remap: make([]map[int]int, t.dim)}
	for d := range sets {
		maps.order[d] = sortedKeys(sets[d])
		maps.remap[d] = make(map[int]int, len(maps.order[d]))
		for i, old := range maps.order[d] {
			maps.remap[d][old] = i
		}
	}
	return maps
}

func (t *Topology) compactTable(d int, keep map[int]struct{}, maps pruneMaps) *entityTable {
	old := t.entities[d]
	nt := newEntityTable()
	for newIdx, o := range maps.order[d] {
		ordering := make([]int, len(old.ordering[o]))
		if d == 0 {
			ordering[0] = newIdx
		} else {
			for i, v := range old.ordering[o] {
				ordering[i] = maps.lookup(0, v)
			}
		}
		nt.topo = append(nt.topo, old.topo[o])
		nt.ordering = append(nt.ordering, ordering)
		nt.sorted = append(nt.sorted, sortedCopy(ordering))
		if d > 0 {
			nt.known[entityKey(ordering)] = newIdx
		}
		var active []CellRef
		for _, ref := range old.active[o] {
			if _, ok := keep[ref.Cell]; ok {
				active = append(active, ref)
			}
		}
		nt.active = append(nt.active, active)
		var sides []int
		for _, s := range old.sides[o] {
			if n := maps.lookup(t.sideDim(), s); n != NoIndex {
				sides = append(sides, n)
			}
		}
		sort.Ints(sides)
		nt.sides = append(nt.sides, sides)

		for _, p := range old.parents[o] {
			if n := maps.lookup(d, p.Entity); n != NoIndex {
				nt.parents[newIdx] = append(nt.parents[newIdx], ParentRef{Entity: n, Group: p.Group})
			}
		}
		if gp, ok := old.genParent[o]; ok {
			switch {
			case gp.Dim == t.dim:
				if _, kept := keep[gp.Index]; kept {
					nt.genParent[newIdx] = gp
				}
			default:
				if n := maps.lookup(gp.Dim, gp.Index); n != NoIndex {
					nt.genParent[newIdx] = EntityRef{Dim: gp.Dim, Index: n}
				}
			}
		}
		for _, g := range old.children[o] {
			children := make([]int, len(g.Children))
			for i, c := range g.Children {
				children[i] = NoIndex
				if c != NoIndex {
					children[i] = maps.lookup(d, c)
				}
			}
			nt.children[newIdx] = append(nt.children[newIdx], ChildGroup{Pattern: g.Pattern, Children: children})
		}
	}
	return nt
}

// compactSideClaims rewrites side claimants. A claimant outside the halo is
// replaced by its nearest kept ancestor when that ancestor has the side.
func (t *Topology) compactSideClaims(keep map[int]struct{}, maps pruneMaps) [][2]CellRef {
	sd := t.sideDim()
	out := make([][2]CellRef, len(maps.order[sd]))
	for newIdx, old := range maps.order[sd] {
		slots := t.cellsForSide[old]
		for i := range slots {
			ref := slots[i]
			if ref.Cell == NoIndex {
				continue
			}
			if _, ok := keep[ref.Cell]; ok {
				continue
			}
			slots[i] = noCell
			for p := t.cells[ref.Cell].parent; p != NoIndex; p = t.cells[p].parent {
				if _, ok := keep[p]; ok {
					if ord := t.cells[p].FindSubcellOrdinal(sd, old); ord != NoIndex {
						slots[i] = CellRef{Cell: p, Ordinal: ord}
					}
					break
				}
			}
		}
		if slots[0].Cell == NoIndex {
			slots[0], slots[1] = slots[1], slots[0]
		}
		out[newIdx] = slots
	}
	return out
}

func (t *Topology) compactPeriodic(maps pruneMaps) periodicState {
	ps := newPeriodicState()
	for v, c := range t.pstate.canonical {
		nv, nc := maps.lookup(0, v), maps.lookup(0, c)
		if nv != NoIndex && nc != NoIndex {
			ps.canonical[nv] = nc
		}
	}
	for k, partner := range t.pstate.equivalent {
		nv, np := maps.lookup(0, k.vertex), maps.lookup(0, partner)
		if nv == NoIndex || np == NoIndex {
			continue
		}
		ps.equivalent[vertexBC{vertex: nv, bcSide: k.bcSide}] = np
		ps.addMatch(nv, k.bcSide)
	}
	return ps
}
