// Package mesh holds the topology of an adaptively refined, possibly
// distributed, unstructured mesh: deduplicated vertices and entities of
// every dimension, a forest of cells refined by patterns, the neighbor and
// constraint queries built on them, and halo pruning.
package mesh

import (
	"context"
	"errors"
	"sort"

	"meshcore/internal/telemetry"
	"meshcore/internal/topology"
)

// Topology is the mesh topology of one process. It is not safe for
// concurrent use.
type Topology struct {
	dim int
	tol float64

	vertices vertexStore
	periodic []PeriodicBC
	pstate   periodicState

	entities     []*entityTable
	cellsForSide [][2]CellRef
	boundary     map[int]struct{}

	cells  map[int]*Cell
	active map[int]struct{}
	roots  map[int]struct{}
	owned  map[int]struct{}
	// distributed is set once ownership has been assigned.
	distributed bool
	next        int
	// globalActive tracks the active cell count across all processes,
	// maintained by the index allocator.
	globalActive int

	curves      map[edgeKey]ParametricCurve
	curvedCells map[int]struct{}

	geometry GeometryCorrector
	hints    CubatureHints
	logger   telemetry.Logger
	metrics  telemetry.MetricsRecorder
	tracer   telemetry.Tracer

	history        []HistoryEntry
	halo           []int
	pruningOrdinal int
}

// New returns an empty topology of dimension spaceDim (1, 2 or 3).
func New(spaceDim int, opts ...Option) (*Topology, error) {
	if spaceDim < 1 || spaceDim > 3 {
		return nil, preconditionf("space dimension %d not in [1,3]", spaceDim)
	}
	t := &Topology{
		dim:         spaceDim,
		tol:         DefaultVertexTolerance,
		pstate:      newPeriodicState(),
		boundary:    make(map[int]struct{}),
		cells:       make(map[int]*Cell),
		active:      make(map[int]struct{}),
		roots:       make(map[int]struct{}),
		owned:       make(map[int]struct{}),
		curves:      make(map[edgeKey]ParametricCurve),
		curvedCells: make(map[int]struct{}),
		logger:      telemetry.NopLogger(),
		metrics:     telemetry.NopMetrics(),
		tracer:      telemetry.NopTracer(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.vertices = newVertexStore(t.tol)
	t.entities = make([]*entityTable, spaceDim)
	for d := range t.entities {
		t.entities[d] = newEntityTable()
	}
	return t, nil
}

// Dimension returns the space dimension.
func (t *Topology) Dimension() int { return t.dim }

func (t *Topology) sideDim() int { return t.dim - 1 }

// Tolerance returns the vertex matching tolerance.
func (t *Topology) Tolerance() float64 { return t.tol }

// PeriodicBCs returns the registered periodic rules.
func (t *Topology) PeriodicBCs() []PeriodicBC { return append([]PeriodicBC(nil), t.periodic...) }

func (t *Topology) instrument(op string, fn func() error) error {
	err := telemetry.Instrument(context.Background(), t.tracer, t.metrics, op, func(context.Context) error {
		return fn()
	})
	if err != nil {
		t.logger.Error("topology operation failed", "op", op, "precondition", errors.Is(err, ErrPrecondition), "err", err)
	}
	return err
}

// AddCell inserts a root cell at the next free index, adding its vertices.
func (t *Topology) AddCell(topo *topology.CellTopology, coords [][]float64) (*Cell, error) {
	verts := make([]int, len(coords))
	for i, x := range coords {
		v, err := t.VertexIndexAdding(x, t.tol)
		if err != nil {
			t.logger.Error("root cell rejected", "index", t.next, "err", err)
			return nil, err
		}
		verts[i] = v
	}
	return t.InsertCell(t.next, topo, verts, NoIndex)
}

// InsertCell inserts a cell with a caller-chosen index. The index must be
// unused and no larger than CellCount. parent is NoIndex for roots.
func (t *Topology) InsertCell(index int, topo *topology.CellTopology, verts []int, parent int) (*Cell, error) {
	var cell *Cell
	err := t.instrument(telemetry.OpAddCell, func() error {
		var err error
		cell, err = t.addCell(index, topo, verts, parent)
		return err
	})
	return cell, err
}

func subcellVertices(topo *topology.CellTopology, verts []int, d, ord int) []int {
	local := topo.SubcellNodes(d, ord)
	out := make([]int, len(local))
	for i, n := range local {
		out[i] = verts[n]
	}
	return out
}

func (t *Topology) addCell(index int, topo *topology.CellTopology, verts []int, parent int) (*Cell, error) {
	if topo == nil || topo.Dimension() != t.dim {
		return nil, preconditionf("cell topology %v does not match space dimension %d", topo, t.dim)
	}
	if len(verts) != topo.NodeCount() {
		return nil, preconditionf("%s needs %d vertices, got %d", topo, topo.NodeCount(), len(verts))
	}
	for _, v := range verts {
		if !t.validVertex(v) {
			return nil, preconditionf("vertex %d out of range", v)
		}
	}
	if hasRepeats(verts) {
		return nil, preconditionf("cell vertices repeat: %v", verts)
	}
	if _, ok := t.cells[index]; ok {
		return nil, preconditionf("cell %d already exists", index)
	}
	if index < 0 || index > t.next {
		return nil, preconditionf("cell index %d is neither known nor the next index %d", index, t.next)
	}
	var parentCell *Cell
	if parent != NoIndex {
		p, ok := t.cells[parent]
		if !ok {
			return nil, preconditionf("parent cell %d does not exist", parent)
		}
		parentCell = p
	}
	if err := t.checkSideClaims(index, topo, verts, parent); err != nil {
		return nil, err
	}

	if index == t.next {
		t.next++
		t.globalActive++
	}
	sd := t.sideDim()
	c := &Cell{
		index:     index,
		topo:      topo,
		vertices:  append([]int(nil), verts...),
		parent:    parent,
		entities:  make([][]int, t.dim),
		perms:     make([][]int, t.dim),
		neighbors: make([]CellRef, topo.SideCount()),
	}
	for s := range c.neighbors {
		c.neighbors[s] = noCell
	}
	for d := 0; d < t.dim; d++ {
		n := topo.SubcellCount(d)
		c.entities[d] = make([]int, n)
		c.perms[d] = make([]int, n)
		for j := 0; j < n; j++ {
			idx, perm, err := t.addEntity(topo.Subcell(d, j), subcellVertices(topo, verts, d, j))
			if err != nil {
				return nil, err
			}
			c.entities[d][j] = idx
			c.perms[d][j] = perm
			for _, a := range t.aliases(d, idx) {
				t.entities[d].active[a] = insertCellRef(t.entities[d].active[a], CellRef{Cell: index, Ordinal: j})
			}
		}
	}

	t.cells[index] = c
	t.active[index] = struct{}{}
	if parentCell == nil {
		t.roots[index] = struct{}{}
	} else {
		c.level = parentCell.level + 1
	}

	for s := 0; s < topo.SideCount(); s++ {
		if err := t.addCellForSide(index, s, c.entities[sd][s], parent); err != nil {
			return nil, err
		}
	}
	for s := 0; s < topo.SideCount(); s++ {
		side := c.entities[sd][s]
		for d := 0; d < sd; d++ {
			for j := 0; j < topo.Subcell(sd, s).SubcellCount(d); j++ {
				e := c.entities[d][topo.SubcellOrdinalMap(sd, s, d, j)]
				for _, a := range t.aliases(d, e) {
					t.addSideForEntity(d, a, side)
				}
			}
		}
		t.addSideForEntity(sd, side, side)
	}
	for s := 0; s < topo.SideCount(); s++ {
		if err := t.linkSide(c, s); err != nil {
			return nil, err
		}
	}

	if parentCell == nil {
		t.recordRoot(c)
	}
	t.logger.Debug("cell added", "cell", index, "topology", topo.String(), "parent", parent)
	return c, nil
}

// checkSideClaims verifies that no side of the new cell would gain a third
// claimant, before anything is mutated.
func (t *Topology) checkSideClaims(index int, topo *topology.CellTopology, verts []int, parent int) error {
	sd := t.sideDim()
	pending := make(map[int][2]CellRef)
	for s := 0; s < topo.SideCount(); s++ {
		side := t.entityIndex(sd, subcellVertices(topo, verts, sd, s))
		if side == NoIndex {
			continue
		}
		slots, ok := pending[side]
		if !ok {
			slots = t.cellsForSide[side]
		}
		ref := CellRef{Cell: index, Ordinal: s}
		switch {
		case slots[0].Cell == NoIndex || slots[0].Cell == parent:
			slots[0] = ref
		case slots[1].Cell == NoIndex || slots[1].Cell == parent:
			slots[1] = ref
		default:
			return internalf("side %d already has claimants %d and %d; cell %d cannot claim it", side, slots[0].Cell, slots[1].Cell, index)
		}
		pending[side] = slots
	}
	return nil
}

// addCellForSide records cell as a claimant of side, replacing its parent
// when the parent claimed it.
func (t *Topology) addCellForSide(cell, sideOrd, side, parent int) error {
	slots := &t.cellsForSide[side]
	ref := CellRef{Cell: cell, Ordinal: sideOrd}
	switch {
	case slots[0].Cell == NoIndex || slots[0].Cell == parent:
		slots[0] = ref
	case slots[1].Cell == NoIndex || slots[1].Cell == parent:
		slots[1] = ref
	default:
		return internalf("side %d already has claimants %d and %d", side, slots[0].Cell, slots[1].Cell)
	}
	return nil
}

// linkSide sets the neighbor links that become known once c claims side s.
func (t *Topology) linkSide(c *Cell, s int) error {
	side := c.entities[t.sideDim()][s]
	claims := t.CellsForSide(side)
	switch {
	case len(claims) == 2:
		a, b := claims[0], claims[1]
		t.cells[a.Cell].neighbors[a.Ordinal] = b
		t.cells[b.Cell].neighbors[b.Ordinal] = a
		if t.IsBoundarySide(side) {
			for _, desc := range t.Descendants(t.sideDim(), side) {
				delete(t.boundary, desc)
			}
			delete(t.boundary, side)
		}
		for _, pair := range [][2]CellRef{{a, b}, {b, a}} {
			if len(t.cells[pair[0].Cell].children) == 0 {
				continue
			}
			for _, desc := range t.descendantsForSide(pair[0].Cell, pair[0].Ordinal, false) {
				if dc, ok := t.cells[desc.Cell]; ok {
					dc.neighbors[desc.Ordinal] = pair[1]
				}
			}
		}
	case len(claims) == 1 && c.parent == NoIndex:
		t.boundary[side] = struct{}{}
	case len(claims) == 1:
		ancestry := t.constrainingSideAncestry(t, side)
		if len(ancestry) == 0 {
			return nil
		}
		last := ancestry[len(ancestry)-1]
		refs := t.entities[t.sideDim()].active[last.Index]
		if len(refs) != 1 {
			return internalf("constraining side %d of side %d has %d active cells, want 1", last.Index, side, len(refs))
		}
		c.neighbors[s] = refs[0]
	}
	return nil
}

func (t *Topology) deactivateCell(c *Cell) {
	for d := 0; d < t.dim; d++ {
		for j, idx := range c.entities[d] {
			ref := CellRef{Cell: c.index, Ordinal: j}
			for _, a := range t.aliases(d, idx) {
				t.entities[d].active[a] = removeCellRef(t.entities[d].active[a], ref)
			}
		}
	}
	delete(t.active, c.index)
}

// Cell returns the cell with the given index, or nil.
func (t *Topology) Cell(index int) *Cell { return t.cells[index] }

// CellCount returns the next cell index to be allocated, which bounds
// every cell index known to any process.
func (t *Topology) CellCount() int { return t.next }

// ActiveCellCount returns the number of active cells across all processes.
func (t *Topology) ActiveCellCount() int { return t.globalActive }

// ActiveCells lists the locally known active cells in ascending order.
func (t *Topology) ActiveCells() []int { return sortedKeys(t.active) }

// RootCells lists the locally known root cells in ascending order.
func (t *Topology) RootCells() []int { return sortedKeys(t.roots) }

// KnownCells lists every locally known cell in ascending order.
func (t *Topology) KnownCells() []int {
	out := make([]int, 0, len(t.cells))
	for i := range t.cells {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// OwnedCells lists the cells this process is authoritative for.
func (t *Topology) OwnedCells() []int { return sortedKeys(t.owned) }

// IsDistributed reports whether ownership has been assigned.
func (t *Topology) IsDistributed() bool { return t.distributed }

// SetOwnedCells assigns the cells this process owns.
func (t *Topology) SetOwnedCells(cells []int) error {
	owned := make(map[int]struct{}, len(cells))
	for _, c := range cells {
		if _, ok := t.cells[c]; !ok {
			return preconditionf("owned cell %d is not known", c)
		}
		owned[c] = struct{}{}
	}
	t.owned = owned
	t.distributed = true
	return nil
}

// MyActiveCells lists the active cells this process owns, or every active
// cell when ownership has not been assigned.
func (t *Topology) MyActiveCells() []int {
	if !t.distributed {
		return t.ActiveCells()
	}
	var out []int
	for _, c := range t.OwnedCells() {
		if _, ok := t.active[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// IsValidCellIndex reports whether the cell is known locally.
func (t *Topology) IsValidCellIndex(cell int) bool {
	_, ok := t.cells[cell]
	return ok
}

// IsParent reports whether the cell has been refined.
func (t *Topology) IsParent(cell int) bool {
	c, ok := t.cells[cell]
	return ok && len(c.children) > 0
}

// IsActive reports whether the cell is a locally known leaf.
func (t *Topology) IsActive(cell int) bool {
	_, ok := t.active[cell]
	return ok
}

// CellVertexCoordinates returns the physical vertices of a cell.
func (t *Topology) CellVertexCoordinates(cell int) [][]float64 {
	c, ok := t.cells[cell]
	if !ok {
		return nil
	}
	out := make([][]float64, len(c.vertices))
	for i, v := range c.vertices {
		out[i] = t.Vertex(v)
	}
	return out
}

// CellCentroid returns the vertex average of a cell.
func (t *Topology) CellCentroid(cell int) []float64 {
	coords := t.CellVertexCoordinates(cell)
	if coords == nil {
		return nil
	}
	out := make([]float64, t.dim)
	for _, x := range coords {
		for k := range out {
			out[k] += x[k]
		}
	}
	for k := range out {
		out[k] /= float64(len(coords))
	}
	return out
}

// CellEntityIndex returns the entity index of subcell (d, ord) of cell.
func (t *Topology) CellEntityIndex(cell, d, ord int) int {
	c, ok := t.cells[cell]
	if !ok {
		return NoIndex
	}
	return c.EntityIndex(d, ord)
}

// CellEntityPermutation returns the orientation of subcell (d, ord) of cell.
func (t *Topology) CellEntityPermutation(cell, d, ord int) int {
	c, ok := t.cells[cell]
	if !ok || d < 0 || d > t.dim || ord < 0 || ord >= c.topo.SubcellCount(d) {
		return NoIndex
	}
	return c.EntityPermutation(d, ord)
}

// FindSubcellOrdinal returns the ordinal of entity (d, e) within cell, or
// NoIndex.
func (t *Topology) FindSubcellOrdinal(cell, d, e int) int {
	c, ok := t.cells[cell]
	if !ok {
		return NoIndex
	}
	return c.FindSubcellOrdinal(d, e)
}

// PruningOrdinal increases with every prune that changes the structure.
func (t *Topology) PruningOrdinal() int { return t.pruningOrdinal }
