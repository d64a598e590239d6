package mesh

import (
	"sort"
	"strconv"
	"strings"

	"meshcore/internal/refinement"
	"meshcore/internal/topology"
)

var pointTopology = topology.Point()

// CellRef names a cell together with an ordinal inside it. Entity listings
// use the ordinal of the entity within the cell; neighbor links use the side
// ordinal within the neighbor.
type CellRef struct {
	Cell    int
	Ordinal int
}

var noCell = CellRef{Cell: NoIndex, Ordinal: NoIndex}

// EntityRef names an entity of any dimension. Dim equal to the mesh
// dimension names a cell.
type EntityRef struct {
	Dim   int
	Index int
}

// ParentRef records that an entity is a child of Entity under the child
// group Group of that entity.
type ParentRef struct {
	Entity int
	Group  int
}

// ChildGroup is one refinement of an entity. Children entries of NoIndex
// refer to entities pruned away from this process.
type ChildGroup struct {
	Pattern  *refinement.Pattern
	Children []int
}

// entityTable stores every entity of one dimension. Vertices are their own
// dimension-0 entities, so the dimension-0 table is indexed by vertex.
type entityTable struct {
	topo     []*topology.CellTopology
	sorted   [][]int
	ordering [][]int
	known    map[string]int
	active   [][]CellRef
	sides    [][]int

	parents   map[int][]ParentRef
	genParent map[int]EntityRef
	children  map[int][]ChildGroup
}

func newEntityTable() *entityTable {
	return &entityTable{
		known:     make(map[string]int),
		parents:   make(map[int][]ParentRef),
		genParent: make(map[int]EntityRef),
		children:  make(map[int][]ChildGroup),
	}
}

func (e *entityTable) count() int { return len(e.ordering) }

func sortedCopy(nodes []int) []int {
	out := append([]int(nil), nodes...)
	sort.Ints(out)
	return out
}

func entityKey(nodes []int) string {
	sorted := sortedCopy(nodes)
	var b strings.Builder
	for i, v := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(v))
	}
	return b.String()
}

func hasRepeats(nodes []int) bool {
	seen := make(map[int]struct{}, len(nodes))
	for _, v := range nodes {
		if _, ok := seen[v]; ok {
			return true
		}
		seen[v] = struct{}{}
	}
	return false
}

func (t *Topology) appendEntity(d int, topo *topology.CellTopology, nodes []int) int {
	table := t.entities[d]
	idx := table.count()
	table.topo = append(table.topo, topo)
	table.sorted = append(table.sorted, sortedCopy(nodes))
	table.ordering = append(table.ordering, append([]int(nil), nodes...))
	table.active = append(table.active, nil)
	table.sides = append(table.sides, nil)
	if d > 0 {
		table.known[entityKey(nodes)] = idx
	}
	if d == t.sideDim() {
		t.cellsForSide = append(t.cellsForSide, [2]CellRef{noCell, noCell})
	}
	return idx
}

// addEntity resolves the entity spanned by verts, creating it when unseen,
// and returns its index together with the permutation taking its stored
// ordering to verts.
func (t *Topology) addEntity(topo *topology.CellTopology, verts []int) (int, int, error) {
	d := topo.Dimension()
	if hasRepeats(verts) {
		return NoIndex, 0, preconditionf("entity of dimension %d repeats a vertex: %v", d, verts)
	}
	if d == 0 {
		return t.entityIndex(0, verts), 0, nil
	}
	idx := t.entityIndex(d, verts)
	if idx == NoIndex {
		return t.appendEntity(d, topo, verts), 0, nil
	}
	perm := topo.PermutationMatchingOrder(t.entities[d].ordering[idx], t.canonicalNodes(d, verts))
	if perm < 0 {
		return NoIndex, 0, internalf("no %s permutation maps %v onto entity %d", topo, verts, idx)
	}
	return idx, perm, nil
}

// entityIndex looks up an entity by its vertices, returning NoIndex when
// none is known.
func (t *Topology) entityIndex(d int, nodes []int) int {
	if d == 0 {
		return t.CanonicalVertex(nodes[0])
	}
	table := t.entities[d]
	if idx, ok := table.known[entityKey(nodes)]; ok {
		return idx
	}
	if len(t.periodic) == 0 {
		return NoIndex
	}
	if canon := t.canonicalNodes(d, nodes); canon != nil {
		return table.known[entityKey(canon)]
	}
	return NoIndex
}

// canonicalNodes relabels nodes through periodic identification until the
// result names a known entity. Nil means no relabeling is known.
func (t *Topology) canonicalNodes(d int, nodes []int) []int {
	if d == 0 {
		return []int{t.CanonicalVertex(nodes[0])}
	}
	table := t.entities[d]
	if _, ok := table.known[entityKey(nodes)]; ok {
		return nodes
	}
	var common []bcSide
	for i, v := range nodes {
		m := t.pstate.matches[v]
		if len(m) == 0 {
			return nil
		}
		if i == 0 {
			common = m
		} else {
			common = intersectMatches(common, m)
		}
	}
	for _, m := range common {
		sub := make([]int, len(nodes))
		for i, v := range nodes {
			sub[i] = t.pstate.equivalent[vertexBC{vertex: v, bcSide: m}]
		}
		if _, ok := table.known[entityKey(sub)]; ok {
			return sub
		}
	}
	return nil
}

// aliases lists idx and, for vertices, its periodic partners.
func (t *Topology) aliases(d, idx int) []int {
	if d != 0 || len(t.periodic) == 0 {
		return []int{idx}
	}
	return append([]int{idx}, t.pstate.equivalents(idx)...)
}

func insertCellRef(list []CellRef, ref CellRef) []CellRef {
	i := sort.Search(len(list), func(i int) bool { return !refLess(list[i], ref) })
	if i < len(list) && list[i] == ref {
		return list
	}
	list = append(list, CellRef{})
	copy(list[i+1:], list[i:])
	list[i] = ref
	return list
}

func removeCellRef(list []CellRef, ref CellRef) []CellRef {
	for i, r := range list {
		if r == ref {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func refLess(a, b CellRef) bool {
	if a.Cell != b.Cell {
		return a.Cell < b.Cell
	}
	return a.Ordinal < b.Ordinal
}

func insertInt(list []int, v int) []int {
	i := sort.SearchInts(list, v)
	if i < len(list) && list[i] == v {
		return list
	}
	list = append(list, 0)
	copy(list[i+1:], list[i:])
	list[i] = v
	return list
}

func (t *Topology) addSideForEntity(d, entity, side int) {
	table := t.entities[d]
	table.sides[entity] = insertInt(table.sides[entity], side)
}

// EntityCount returns the number of entities of dimension d. Dimension d
// equal to the mesh dimension counts cell indices.
func (t *Topology) EntityCount(d int) int {
	if d == t.dim {
		return t.next
	}
	if d < 0 || d > t.dim {
		return 0
	}
	return t.entities[d].count()
}

func (t *Topology) checkEntity(d, e int) error {
	if d < 0 || d >= t.dim {
		return preconditionf("entity dimension %d out of range [0,%d)", d, t.dim)
	}
	if e < 0 || e >= t.entities[d].count() {
		return preconditionf("entity (%d,%d) out of range", d, e)
	}
	return nil
}

// EntityVertices returns the first-seen vertex ordering of an entity.
func (t *Topology) EntityVertices(d, e int) []int {
	if d == t.dim {
		if c, ok := t.cells[e]; ok {
			return append([]int(nil), c.vertices...)
		}
		return nil
	}
	if t.checkEntity(d, e) != nil {
		return nil
	}
	return append([]int(nil), t.entities[d].ordering[e]...)
}

// EntityTopology returns the reference shape of an entity.
func (t *Topology) EntityTopology(d, e int) *topology.CellTopology {
	if d == t.dim {
		if c, ok := t.cells[e]; ok {
			return c.topo
		}
		return nil
	}
	if t.checkEntity(d, e) != nil {
		return nil
	}
	return t.entities[d].topo[e]
}

// EntityIndex returns the entity spanned by nodes, or NoIndex.
func (t *Topology) EntityIndex(d int, nodes []int) int {
	if d < 0 || d >= t.dim || len(nodes) == 0 {
		return NoIndex
	}
	for _, v := range nodes {
		if !t.validVertex(v) {
			return NoIndex
		}
	}
	return t.entityIndex(d, nodes)
}

func (t *Topology) subEntityNodes(d, e, subD, subOrd int) ([]int, *topology.CellTopology, error) {
	if err := t.checkEntity(d, e); err != nil {
		return nil, nil, err
	}
	topo := t.entities[d].topo[e]
	if subD < 0 || subD > d || subOrd < 0 || subOrd >= topo.SubcellCount(subD) {
		return nil, nil, preconditionf("subcell (%d,%d) out of range for %s", subD, subOrd, topo)
	}
	ordering := t.entities[d].ordering[e]
	local := topo.SubcellNodes(subD, subOrd)
	nodes := make([]int, len(local))
	for i, n := range local {
		nodes[i] = ordering[n]
	}
	return nodes, topo.Subcell(subD, subOrd), nil
}

// SubEntityIndex returns the index of subcell (subD, subOrd) of entity (d, e).
func (t *Topology) SubEntityIndex(d, e, subD, subOrd int) (int, error) {
	if subD == d {
		return e, t.checkEntity(d, e)
	}
	nodes, _, err := t.subEntityNodes(d, e, subD, subOrd)
	if err != nil {
		return NoIndex, err
	}
	return t.entityIndex(subD, nodes), nil
}

// SubEntityPermutation returns the permutation relating the stored ordering
// of subcell (subD, subOrd) to its ordering as seen from entity (d, e).
func (t *Topology) SubEntityPermutation(d, e, subD, subOrd int) (int, error) {
	if subD == 0 || subD == d {
		return 0, t.checkEntity(d, e)
	}
	nodes, subTopo, err := t.subEntityNodes(d, e, subD, subOrd)
	if err != nil {
		return 0, err
	}
	idx := t.entityIndex(subD, nodes)
	if idx == NoIndex {
		return 0, internalf("subcell (%d,%d) of entity (%d,%d) is unknown", subD, subOrd, d, e)
	}
	perm := subTopo.PermutationMatchingOrder(t.entities[subD].ordering[idx], t.canonicalNodes(subD, nodes))
	if perm < 0 {
		return 0, internalf("no permutation for subcell (%d,%d) of entity (%d,%d)", subD, subOrd, d, e)
	}
	return perm, nil
}

// EntityParents lists the parents of an entity.
func (t *Topology) EntityParents(d, e int) []ParentRef {
	if t.checkEntity(d, e) != nil {
		return nil
	}
	return append([]ParentRef(nil), t.entities[d].parents[e]...)
}

func (t *Topology) entityParent(d, e int) int {
	if d == 0 || d >= t.dim {
		return NoIndex
	}
	if p := t.entities[d].parents[e]; len(p) > 0 {
		return p[0].Entity
	}
	return NoIndex
}

// EntityGeneralizedParent returns the entity an entity was created inside
// of. Entities interior to a cell, and cells themselves, report the parent
// cell with Dim equal to the mesh dimension.
func (t *Topology) EntityGeneralizedParent(d, e int) (EntityRef, bool) {
	if d == t.dim {
		if c, ok := t.cells[e]; ok && c.parent != NoIndex {
			return EntityRef{Dim: t.dim, Index: c.parent}, true
		}
		return EntityRef{Dim: NoIndex, Index: NoIndex}, false
	}
	if t.checkEntity(d, e) != nil {
		return EntityRef{Dim: NoIndex, Index: NoIndex}, false
	}
	if gp, ok := t.entities[d].genParent[e]; ok {
		return gp, true
	}
	if p := t.entityParent(d, e); p != NoIndex {
		return EntityRef{Dim: d, Index: p}, true
	}
	return EntityRef{Dim: NoIndex, Index: NoIndex}, false
}

func (t *Topology) setGeneralizedParent(d, e, pd, p int) error {
	if d == pd && e == p {
		return internalf("entity (%d,%d) cannot be its own generalized parent", d, e)
	}
	for _, alias := range t.aliases(d, e) {
		t.entities[d].genParent[alias] = EntityRef{Dim: pd, Index: p}
	}
	return nil
}

// ChildEntities lists the children of an entity over all of its refinements.
func (t *Topology) ChildEntities(d, e int) []int {
	if t.checkEntity(d, e) != nil {
		return nil
	}
	var out []int
	for _, g := range t.entities[d].children[e] {
		for _, c := range g.Children {
			if c != NoIndex {
				out = append(out, c)
			}
		}
	}
	return out
}

// ChildGroups returns the refinements recorded for an entity.
func (t *Topology) ChildGroups(d, e int) []ChildGroup {
	if t.checkEntity(d, e) != nil {
		return nil
	}
	return append([]ChildGroup(nil), t.entities[d].children[e]...)
}

// Descendants lists every known descendant of an entity, excluding itself.
func (t *Topology) Descendants(d, e int) []int {
	var out []int
	seen := map[int]struct{}{e: {}}
	queue := []int{e}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range t.ChildEntities(d, cur) {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
			queue = append(queue, c)
		}
	}
	sort.Ints(out)
	return out
}

// EntityIsAncestor reports whether ancestor is a strict same-dimension
// ancestor of descendant.
func (t *Topology) EntityIsAncestor(d, ancestor, descendant int) bool {
	if d == t.dim {
		c, ok := t.cells[descendant]
		for ok && c.parent != NoIndex {
			if c.parent == ancestor {
				return true
			}
			c, ok = t.cells[c.parent]
		}
		return false
	}
	if t.checkEntity(d, descendant) != nil {
		return false
	}
	queue := []int{descendant}
	seen := map[int]struct{}{}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, p := range t.entities[d].parents[cur] {
			if p.Entity == ancestor {
				return true
			}
			if _, ok := seen[p.Entity]; !ok {
				seen[p.Entity] = struct{}{}
				queue = append(queue, p.Entity)
			}
		}
	}
	return false
}

// EntityIsGeneralizedAncestor follows generalized parents from the
// descendant and reports whether the ancestor is reached.
func (t *Topology) EntityIsGeneralizedAncestor(ancestorDim, ancestor, descendantDim, descendant int) bool {
	d, e := descendantDim, descendant
	for d <= ancestorDim {
		if d == ancestorDim && (e == ancestor || t.EntityIsAncestor(d, ancestor, e)) {
			return true
		}
		gp, ok := t.EntityGeneralizedParent(d, e)
		if !ok {
			return false
		}
		d, e = gp.Dim, gp.Index
	}
	return false
}

// MaxConstraint returns whichever of two same-dimension entities is an
// ancestor of (or equal to) the other, or NoIndex when they are unrelated.
func (t *Topology) MaxConstraint(d, e1, e2 int) int {
	switch {
	case e1 == e2:
		return e1
	case t.EntityIsAncestor(d, e1, e2):
		return e1
	case t.EntityIsAncestor(d, e2, e1):
		return e2
	}
	return NoIndex
}

// ActiveCellsForEntity lists the active cells containing an entity, with the
// entity's ordinal in each.
func (t *Topology) ActiveCellsForEntity(d, e int) []CellRef {
	if d == t.dim {
		if _, ok := t.active[e]; ok {
			return []CellRef{{Cell: e, Ordinal: 0}}
		}
		return nil
	}
	if t.checkEntity(d, e) != nil {
		return nil
	}
	return append([]CellRef(nil), t.entities[d].active[e]...)
}

// SidesContainingEntity lists the sides that have the entity as a subcell.
func (t *Topology) SidesContainingEntity(d, e int) []int {
	if t.checkEntity(d, e) != nil {
		return nil
	}
	return append([]int(nil), t.entities[d].sides[e]...)
}

// CellsForSide lists the cells that claim a side: the coarsest known cells
// on either side of it.
func (t *Topology) CellsForSide(side int) []CellRef {
	if side < 0 || side >= len(t.cellsForSide) {
		return nil
	}
	var out []CellRef
	for _, ref := range t.cellsForSide[side] {
		if ref.Cell != NoIndex {
			out = append(out, ref)
		}
	}
	return out
}

// IsBoundarySide reports whether a side lies on the domain boundary.
func (t *Topology) IsBoundarySide(side int) bool {
	_, ok := t.boundary[side]
	return ok
}

// BoundarySides lists the boundary side indices in ascending order.
func (t *Topology) BoundarySides() []int { return sortedKeys(t.boundary) }

// ActiveBoundaryCells lists active cells with a boundary side, paired with
// that side's ordinal.
func (t *Topology) ActiveBoundaryCells() []CellRef {
	var out []CellRef
	for _, side := range t.BoundarySides() {
		for _, ref := range t.entities[t.sideDim()].active[side] {
			out = insertCellRef(out, ref)
		}
	}
	return out
}

func sortedKeys(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
