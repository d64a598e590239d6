package mesh

import (
	"math"
)

type bucketKey [3]int64

// vertexStore holds vertex coordinates with a spatial hash for tolerance
// matching. Buckets are much wider than the tolerance, so only adjacent
// buckets need probing.
type vertexStore struct {
	coords  [][]float64
	width   float64
	buckets map[bucketKey][]int
}

func newVertexStore(tol float64) vertexStore {
	return vertexStore{
		width:   math.Max(tol*1024, 1e-9),
		buckets: make(map[bucketKey][]int),
	}
}

func (s *vertexStore) key(x []float64) bucketKey {
	var k bucketKey
	for i := 0; i < len(x) && i < len(k); i++ {
		k[i] = int64(math.Floor(x[i] / s.width))
	}
	return k
}

// nearest returns the closest stored vertex strictly within tol of x.
func (s *vertexStore) nearest(x []float64, tol float64) int {
	base := s.key(x)
	best, bestDist := NoIndex, tol
	var probe func(axis int, k bucketKey)
	probe = func(axis int, k bucketKey) {
		if axis == len(x) || axis == len(k) {
			for _, v := range s.buckets[k] {
				if d := dist(s.coords[v], x); d < bestDist {
					best, bestDist = v, d
				}
			}
			return
		}
		for off := int64(-1); off <= 1; off++ {
			k[axis] = base[axis] + off
			probe(axis+1, k)
		}
	}
	probe(0, base)
	return best
}

func (s *vertexStore) add(x []float64) int {
	v := len(s.coords)
	s.coords = append(s.coords, append([]float64(nil), x...))
	k := s.key(x)
	s.buckets[k] = append(s.buckets[k], v)
	return v
}

func (s *vertexStore) rebuild(coords [][]float64) {
	s.coords = nil
	s.buckets = make(map[bucketKey][]int)
	for _, x := range coords {
		s.add(x)
	}
}

// VertexCount returns the number of stored vertices.
func (t *Topology) VertexCount() int { return len(t.vertices.coords) }

// Vertex returns a copy of the coordinates of vertex v.
func (t *Topology) Vertex(v int) []float64 {
	return append([]float64(nil), t.vertices.coords[v]...)
}

func (t *Topology) validVertex(v int) bool { return v >= 0 && v < len(t.vertices.coords) }

// VertexIndex returns the vertex nearest to x within tol. A non-positive tol
// selects the topology tolerance.
func (t *Topology) VertexIndex(x []float64, tol float64) (int, bool) {
	if tol <= 0 {
		tol = t.tol
	}
	v := t.vertices.nearest(x, tol)
	return v, v != NoIndex
}

// VertexIndexAdding returns the vertex matching x, inserting one when none is
// within tol. New vertices lying on a periodic side are identified with the
// image vertex on the opposite side when that vertex already exists.
func (t *Topology) VertexIndexAdding(x []float64, tol float64) (int, error) {
	if len(x) != t.dim {
		return NoIndex, preconditionf("vertex has %d coordinates, want %d", len(x), t.dim)
	}
	if v, ok := t.VertexIndex(x, tol); ok {
		return v, nil
	}
	if tol <= 0 {
		tol = t.tol
	}
	v := t.vertices.add(x)
	t.appendEntity(0, pointTopology, []int{v})
	for i, bc := range t.periodic {
		for _, side := range bc.MatchingSides(x) {
			e := t.vertices.nearest(bc.MatchingPoint(x, side), tol)
			if e == NoIndex || e == v {
				continue
			}
			if c, ok := t.pstate.canonical[e]; ok {
				t.pstate.canonical[v] = c
			} else {
				t.pstate.canonical[v] = e
			}
			t.pstate.equivalent[vertexBC{vertex: v, bcSide: bcSide{i, side}}] = e
			t.pstate.equivalent[vertexBC{vertex: e, bcSide: bcSide{i, 1 - side}}] = v
			t.pstate.addMatch(v, bcSide{i, side})
			t.pstate.addMatch(e, bcSide{i, 1 - side})
		}
	}
	return v, nil
}

// CanonicalVertex returns the representative of v under periodic
// identification, v itself when it has none.
func (t *Topology) CanonicalVertex(v int) int {
	if c, ok := t.pstate.canonical[v]; ok {
		return c
	}
	return v
}

// EquivalentVertices lists the periodic partners of v.
func (t *Topology) EquivalentVertices(v int) []int { return t.pstate.equivalents(v) }
