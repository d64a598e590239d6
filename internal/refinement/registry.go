package refinement

import (
	"fmt"
	"sort"

	"meshcore/internal/topology"
)

var registry = struct {
	byKey  map[Key]*Pattern
	byTopo map[topology.Key][]*Pattern
}{
	byKey:  make(map[Key]*Pattern),
	byTopo: make(map[topology.Key][]*Pattern),
}

// Patterns are registered bottom-up so that every pattern finds the patterns
// of its subcell shapes when matching induced sub-patterns.
func init() {
	for _, topo := range []*topology.CellTopology{topology.Point(), topology.Line()} {
		mustRegister(nullKey(topo.Key()), topo, []*topology.CellTopology{topo}, [][][]float64{topo.ReferenceNodes()})
	}
	line := topology.Line()
	mustRegister(regularKey(topology.KeyLine), line, repeat(line, 2), [][][]float64{
		{{-1}, {0}},
		{{0}, {1}},
	})

	tri := topology.Triangle()
	mustRegister(nullKey(topology.KeyTriangle), tri, []*topology.CellTopology{tri}, [][][]float64{tri.ReferenceNodes()})
	mustRegister(regularKey(topology.KeyTriangle), tri, repeat(tri, 4), [][][]float64{
		{{0, 0}, {0.5, 0}, {0, 0.5}},
		{{0.5, 0}, {1, 0}, {0.5, 0.5}},
		{{0, 0.5}, {0.5, 0.5}, {0, 1}},
		{{0.5, 0}, {0.5, 0.5}, {0, 0.5}},
	})

	quad := topology.Quadrilateral()
	mustRegister(nullKey(topology.KeyQuadrilateral), quad, []*topology.CellTopology{quad}, [][][]float64{quad.ReferenceNodes()})
	mustRegister(regularKey(topology.KeyQuadrilateral), quad, repeat(quad, 4), [][][]float64{
		{{-1, -1}, {0, -1}, {0, 0}, {-1, 0}},
		{{0, -1}, {1, -1}, {1, 0}, {0, 0}},
		{{0, 0}, {1, 0}, {1, 1}, {0, 1}},
		{{-1, 0}, {0, 0}, {0, 1}, {-1, 1}},
	})
	mustRegister(KeyQuadCutX, quad, repeat(quad, 2), [][][]float64{
		{{-1, -1}, {0, -1}, {0, 1}, {-1, 1}},
		{{0, -1}, {1, -1}, {1, 1}, {0, 1}},
	})
	mustRegister(KeyQuadCutY, quad, repeat(quad, 2), [][][]float64{
		{{-1, -1}, {1, -1}, {1, 0}, {-1, 0}},
		{{-1, 0}, {1, 0}, {1, 1}, {-1, 1}},
	})

	hex := topology.Hexahedron()
	mustRegister(nullKey(topology.KeyHexahedron), hex, []*topology.CellTopology{hex}, [][][]float64{hex.ReferenceNodes()})
	var octants [][][]float64
	for _, z := range []float64{-1, 0} {
		for _, y := range []float64{-1, 0} {
			for _, x := range []float64{-1, 0} {
				octants = append(octants, [][]float64{
					{x, y, z}, {x + 1, y, z}, {x + 1, y + 1, z}, {x, y + 1, z},
					{x, y, z + 1}, {x + 1, y, z + 1}, {x + 1, y + 1, z + 1}, {x, y + 1, z + 1},
				})
			}
		}
	}
	mustRegister(regularKey(topology.KeyHexahedron), hex, repeat(hex, 8), octants)
}

const (
	// KeyQuadCutX splits a quadrilateral with a cut at xi = 0.
	KeyQuadCutX Key = "quadrilateral/cut-x"
	// KeyQuadCutY splits a quadrilateral with a cut at eta = 0.
	KeyQuadCutY Key = "quadrilateral/cut-y"
)

func regularKey(t topology.Key) Key { return Key(string(t) + "/regular") }
func nullKey(t topology.Key) Key    { return Key(string(t) + "/null") }

func repeat(t *topology.CellTopology, n int) []*topology.CellTopology {
	out := make([]*topology.CellTopology, n)
	for i := range out {
		out[i] = t
	}
	return out
}

func mustRegister(key Key, parent *topology.CellTopology, children []*topology.CellTopology, nodes [][][]float64) {
	p, err := NewPattern(key, parent, children, nodes)
	if err != nil {
		panic(err)
	}
	registry.byKey[key] = p
	registry.byTopo[parent.Key()] = append(registry.byTopo[parent.Key()], p)
}

func candidatesFor(key topology.Key) []*Pattern { return registry.byTopo[key] }

func nullPattern(t *topology.CellTopology) *Pattern { return registry.byKey[nullKey(t.Key())] }

// Null returns the non-subdividing pattern of topo.
func Null(topo *topology.CellTopology) *Pattern { return nullPattern(topo) }

// Regular returns the isotropic pattern of topo. A point has no subdivision,
// so its regular pattern is the null one.
func Regular(topo *topology.CellTopology) *Pattern {
	if p, ok := registry.byKey[regularKey(topo.Key())]; ok {
		return p
	}
	return nullPattern(topo)
}

// QuadCutX returns the anisotropic quadrilateral split across xi.
func QuadCutX() *Pattern { return registry.byKey[KeyQuadCutX] }

// QuadCutY returns the anisotropic quadrilateral split across eta.
func QuadCutY() *Pattern { return registry.byKey[KeyQuadCutY] }

// ByKey resolves a registered pattern.
func ByKey(key Key) (*Pattern, error) {
	if p, ok := registry.byKey[key]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("refinement: unknown pattern %q", key)
}

// Candidates lists the registered patterns of a topology, null first.
func Candidates(key topology.Key) []*Pattern {
	return append([]*Pattern(nil), registry.byTopo[key]...)
}

// Keys lists every registered pattern key in ascending order. Positions in
// this list are stable for a given build and serve as wire identifiers.
func Keys() []Key {
	keys := make([]Key, 0, len(registry.byKey))
	for k := range registry.byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
