package mesh

import (
	"math"
	"sort"
)

// PeriodicBC identifies two parts of the boundary. Side 0 is the "from"
// part and side 1 the "to" part.
type PeriodicBC interface {
	// MatchingSides lists the sides (0, 1 or both) on which x lies.
	MatchingSides(x []float64) []int
	// MatchingPoint maps x, lying on side, to its image on the other side.
	MatchingPoint(x []float64, side int) []float64
}

// AxisPeriodicBC identifies the plane x[Axis] == From with x[Axis] == To.
type AxisPeriodicBC struct {
	Axis int
	From float64
	To   float64
	// Tol is the distance within which a point counts as lying on a side.
	// Zero selects 1e-12.
	Tol float64
}

func (bc AxisPeriodicBC) tol() float64 {
	if bc.Tol > 0 {
		return bc.Tol
	}
	return 1e-12
}

// MatchingSides implements PeriodicBC.
func (bc AxisPeriodicBC) MatchingSides(x []float64) []int {
	var sides []int
	if math.Abs(x[bc.Axis]-bc.From) <= bc.tol() {
		sides = append(sides, 0)
	}
	if math.Abs(x[bc.Axis]-bc.To) <= bc.tol() {
		sides = append(sides, 1)
	}
	return sides
}

// MatchingPoint implements PeriodicBC.
func (bc AxisPeriodicBC) MatchingPoint(x []float64, side int) []float64 {
	out := append([]float64(nil), x...)
	if side == 0 {
		out[bc.Axis] = bc.To
	} else {
		out[bc.Axis] = bc.From
	}
	return out
}

// bcSide names one side of one periodic rule.
type bcSide struct {
	bc   int
	side int
}

type vertexBC struct {
	vertex int
	bcSide
}

// periodicState is the vertex identification built as vertices are added.
type periodicState struct {
	// canonical maps a matched vertex to its representative known vertex.
	canonical map[int]int
	// equivalent maps (vertex, bc, side) to the partner vertex.
	equivalent map[vertexBC]int
	// matches is the sorted set of (bc, side) pairs a vertex participates in.
	matches map[int][]bcSide
}

func newPeriodicState() periodicState {
	return periodicState{
		canonical:  make(map[int]int),
		equivalent: make(map[vertexBC]int),
		matches:    make(map[int][]bcSide),
	}
}

func (p *periodicState) addMatch(v int, m bcSide) {
	list := p.matches[v]
	i := sort.Search(len(list), func(i int) bool { return !bcLess(list[i], m) })
	if i < len(list) && list[i] == m {
		return
	}
	list = append(list, bcSide{})
	copy(list[i+1:], list[i:])
	list[i] = m
	p.matches[v] = list
}

// equivalents lists the partner vertices of v under every rule it matches.
func (p *periodicState) equivalents(v int) []int {
	var out []int
	for _, m := range p.matches[v] {
		out = append(out, p.equivalent[vertexBC{vertex: v, bcSide: m}])
	}
	return out
}

func bcLess(a, b bcSide) bool {
	if a.bc != b.bc {
		return a.bc < b.bc
	}
	return a.side < b.side
}

func intersectMatches(a, b []bcSide) []bcSide {
	var out []bcSide
	for _, x := range a {
		for _, y := range b {
			if x == y {
				out = append(out, x)
				break
			}
		}
	}
	return out
}
