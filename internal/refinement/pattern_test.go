package refinement

import (
	"testing"

	"meshcore/internal/topology"
)

func TestRegularQuadDerivedMaps(t *testing.T) {
	p := Regular(topology.Quadrilateral())
	if p.NumChildren() != 4 {
		t.Fatalf("expected 4 children, got %d", p.NumChildren())
	}
	if got := len(p.Vertices()); got != 9 {
		t.Fatalf("expected 9 distinct vertices, got %d", got)
	}
	for s, pairs := range p.ChildrenForSides() {
		if len(pairs) != 2 {
			t.Fatalf("side %d expected 2 children, got %v", s, pairs)
		}
	}
	// child 0 (bottom-left) touches parent sides 0 (bottom) and 3 (left)
	lookup := p.ParentSideLookupForChild(0)
	if lookup[0] != 0 || lookup[3] != 3 || len(lookup) != 2 {
		t.Fatalf("unexpected side lookup for child 0: %v", lookup)
	}
	if d, ord := p.MapSubcellFromChildToParent(0, 0, 0); d != 0 || ord != 0 {
		t.Fatalf("child 0 vertex 0 should be parent vertex 0, got (%d,%d)", d, ord)
	}
	if d, ord := p.MapSubcellFromChildToParent(0, 0, 2); d != 2 || ord != 0 {
		t.Fatalf("child 0 vertex 2 should be interior, got (%d,%d)", d, ord)
	}
	if got := p.MapSubcellOrdinalFromChildToParent(0, 0, 1); got != -1 {
		t.Fatalf("edge midpoint should not map to a parent vertex, got %d", got)
	}
	for e := 0; e < 4; e++ {
		if sub := p.PatternForSubcell(1, e); sub != Regular(topology.Line()) {
			t.Fatalf("edge %d expected regular line pattern, got %s", e, sub)
		}
	}
	for c := 0; c < 4; c++ {
		if p.ChildIsInterior(c) {
			t.Fatalf("quad child %d unexpectedly interior", c)
		}
	}
}

func TestRegularTriangleInteriorChild(t *testing.T) {
	p := Regular(topology.Triangle())
	if p.NumChildren() != 4 {
		t.Fatalf("expected 4 children")
	}
	for c := 0; c < 3; c++ {
		if p.ChildIsInterior(c) {
			t.Fatalf("corner child %d should not be interior", c)
		}
	}
	if !p.ChildIsInterior(3) {
		t.Fatalf("center child should be interior")
	}
	if got := len(p.Vertices()); got != 6 {
		t.Fatalf("expected 6 vertices, got %d", got)
	}
}

func TestQuadCutSubPatterns(t *testing.T) {
	p := QuadCutX()
	regular := Regular(topology.Line())
	null := Null(topology.Line())
	// bottom and top edges are cut, left and right are not
	want := []*Pattern{regular, null, regular, null}
	for e, w := range want {
		if got := p.PatternForSubcell(1, e); got != w {
			t.Fatalf("edge %d expected %s, got %s", e, w, got)
		}
	}
	if len(p.ChildrenForSide(1)) != 1 || len(p.ChildrenForSide(0)) != 2 {
		t.Fatalf("unexpected side tiling: %v", p.ChildrenForSides())
	}
	q := QuadCutY()
	if q.PatternForSubcell(1, 1) != regular || q.PatternForSubcell(1, 0) != null {
		t.Fatalf("cut-y sub-patterns wrong")
	}
}

func TestRegularHexFaces(t *testing.T) {
	p := Regular(topology.Hexahedron())
	if p.NumChildren() != 8 {
		t.Fatalf("expected 8 children")
	}
	regularQuad := Regular(topology.Quadrilateral())
	for f := 0; f < 6; f++ {
		if p.PatternForSubcell(2, f) != regularQuad {
			t.Fatalf("face %d expected regular quad sub-pattern", f)
		}
		if got := len(p.ChildrenForSide(f)); got != 4 {
			t.Fatalf("face %d expected 4 child faces, got %d", f, got)
		}
	}
	for e := 0; e < 12; e++ {
		if p.PatternForSubcell(1, e) != Regular(topology.Line()) {
			t.Fatalf("edge %d expected regular line sub-pattern", e)
		}
	}
	if got := len(p.Vertices()); got != 27 {
		t.Fatalf("expected 27 vertices, got %d", got)
	}
}

func TestNullPatterns(t *testing.T) {
	for _, topo := range []*topology.CellTopology{topology.Line(), topology.Triangle(), topology.Quadrilateral(), topology.Hexahedron()} {
		p := Null(topo)
		if !p.IsNull() {
			t.Fatalf("%s null pattern reports children %d", topo, p.NumChildren())
		}
		for s := 0; s < topo.SideCount(); s++ {
			if len(p.ChildrenForSide(s)) != 1 {
				t.Fatalf("%s null pattern side %d tiling %v", topo, s, p.ChildrenForSide(s))
			}
		}
	}
	if !Regular(topology.Point()).IsNull() {
		t.Fatalf("point regular pattern should be null")
	}
}

func TestByKey(t *testing.T) {
	p, err := ByKey(Regular(topology.Quadrilateral()).Key())
	if err != nil || p != Regular(topology.Quadrilateral()) {
		t.Fatalf("lookup failed: %v", err)
	}
	if _, err := ByKey("prism/regular"); err == nil {
		t.Fatalf("expected error for unknown key")
	}
	if got := len(Candidates(topology.KeyQuadrilateral)); got != 4 {
		t.Fatalf("expected 4 quad patterns, got %d", got)
	}
}

func TestKeysSorted(t *testing.T) {
	keys := Keys()
	if len(keys) != 11 {
		t.Fatalf("expected 11 registered patterns, got %d: %v", len(keys), keys)
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("keys not strictly ascending at %d: %v", i, keys)
		}
	}
}
