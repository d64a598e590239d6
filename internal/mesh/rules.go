package mesh

import (
	"context"
	"fmt"

	"meshcore/pkg/domain"
)

// Rule checks one structural invariant of a topology.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, t *Topology) (domain.Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// NewDefaultRulesEngine builds an engine with every built-in invariant.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(UniqueEntityKeysRule())
	engine.Register(SideClaimantsRule())
	engine.Register(ParentChildInverseRule())
	engine.Register(ActiveExcludesParentsRule())
	engine.Register(NeighborSymmetryRule())
	return engine
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, t *Topology) (domain.Result, error) {
	var combined domain.Result
	for _, rule := range e.rules {
		if err := ctx.Err(); err != nil {
			return domain.Result{}, err
		}
		res, err := rule.Evaluate(ctx, t)
		if err != nil {
			return domain.Result{}, fmt.Errorf("rule %s: %w", rule.Name(), err)
		}
		combined.Merge(res)
	}
	return combined, nil
}

// Validate runs the default rules. Blocking violations are returned both in
// the result and as a domain.RuleViolationError.
func (t *Topology) Validate(ctx context.Context) (domain.Result, error) {
	res, err := NewDefaultRulesEngine().Evaluate(ctx, t)
	if err != nil {
		return res, err
	}
	if res.HasBlocking() {
		t.logger.Warn("topology validation failed", "violations", len(res.Violations))
		return res, domain.RuleViolationError{Result: res}
	}
	return res, nil
}

type ruleFunc struct {
	name string
	fn   func(t *Topology, res *domain.Result)
}

func (r ruleFunc) Name() string { return r.name }

func (r ruleFunc) Evaluate(_ context.Context, t *Topology) (domain.Result, error) {
	res := domain.Result{}
	r.fn(t, &res)
	return res, nil
}

func violation(rule string, subject domain.SubjectKind, dim, index int, format string, args ...any) domain.Violation {
	return domain.Violation{
		Rule:      rule,
		Severity:  domain.SeverityBlock,
		Message:   fmt.Sprintf(format, args...),
		Subject:   subject,
		Dimension: dim,
		Index:     index,
	}
}

// UniqueEntityKeysRule checks that every entity is found again by its own
// vertices and that no two entities share a vertex set.
func UniqueEntityKeysRule() Rule {
	const name = "unique_entity_keys"
	return ruleFunc{name: name, fn: func(t *Topology, res *domain.Result) {
		for d := 1; d < t.dim; d++ {
			table := t.entities[d]
			seen := make(map[string]int, table.count())
			for e := 0; e < table.count(); e++ {
				key := entityKey(table.ordering[e])
				if other, dup := seen[key]; dup {
					res.Violations = append(res.Violations, violation(name, domain.SubjectEntity, d, e, "entity (%d,%d) duplicates entity %d", d, e, other))
					continue
				}
				seen[key] = e
				if got := t.entityIndex(d, table.ordering[e]); got != e {
					res.Violations = append(res.Violations, violation(name, domain.SubjectEntity, d, e, "entity (%d,%d) resolves to %d", d, e, got))
				}
			}
		}
	}}
}

// SideClaimantsRule checks that side claimants are known cells having the
// side at the recorded ordinal.
func SideClaimantsRule() Rule {
	const name = "side_claimants"
	return ruleFunc{name: name, fn: func(t *Topology, res *domain.Result) {
		sd := t.sideDim()
		for side, slots := range t.cellsForSide {
			for _, ref := range slots {
				if ref.Cell == NoIndex {
					continue
				}
				c, ok := t.cells[ref.Cell]
				if !ok {
					res.Violations = append(res.Violations, violation(name, domain.SubjectSide, sd, side, "side %d claimed by unknown cell %d", side, ref.Cell))
					continue
				}
				if ref.Ordinal < 0 || ref.Ordinal >= c.topo.SideCount() || c.entities[sd][ref.Ordinal] != side {
					res.Violations = append(res.Violations, violation(name, domain.SubjectSide, sd, side, "cell %d side %d is not side %d", ref.Cell, ref.Ordinal, side))
				}
			}
			if slots[0].Cell == NoIndex && slots[1].Cell != NoIndex {
				res.Violations = append(res.Violations, violation(name, domain.SubjectSide, sd, side, "side %d has an empty first claimant slot", side))
			}
		}
	}}
}

// ParentChildInverseRule checks that parent and child links agree, that
// levels increase by one, and that child counts match patterns.
func ParentChildInverseRule() Rule {
	const name = "parent_child_inverse"
	return ruleFunc{name: name, fn: func(t *Topology, res *domain.Result) {
		for _, idx := range t.KnownCells() {
			c := t.cells[idx]
			if c.parent != NoIndex {
				p, ok := t.cells[c.parent]
				switch {
				case !ok:
					res.Violations = append(res.Violations, violation(name, domain.SubjectCell, t.dim, idx, "cell %d has unknown parent %d", idx, c.parent))
				case !containsInt(p.children, idx):
					res.Violations = append(res.Violations, violation(name, domain.SubjectCell, t.dim, idx, "parent %d does not list child %d", c.parent, idx))
				case p.level+1 != c.level:
					res.Violations = append(res.Violations, violation(name, domain.SubjectCell, t.dim, idx, "cell %d level %d under parent level %d", idx, c.level, p.level))
				}
			}
			if len(c.children) == 0 {
				continue
			}
			if c.pattern == nil || len(c.children) != c.pattern.NumChildren() {
				res.Violations = append(res.Violations, violation(name, domain.SubjectCell, t.dim, idx, "cell %d has %d children for pattern %v", idx, len(c.children), c.pattern))
			}
			for _, child := range c.children {
				if cc, ok := t.cells[child]; ok && cc.parent != idx {
					res.Violations = append(res.Violations, violation(name, domain.SubjectCell, t.dim, child, "child %d of cell %d names parent %d", child, idx, cc.parent))
				}
			}
		}
	}}
}

// ActiveExcludesParentsRule checks that the active set is exactly the set
// of childless cells and that entity active lists name only active cells.
func ActiveExcludesParentsRule() Rule {
	const name = "active_excludes_parents"
	return ruleFunc{name: name, fn: func(t *Topology, res *domain.Result) {
		for _, idx := range t.KnownCells() {
			_, active := t.active[idx]
			childless := len(t.cells[idx].children) == 0
			if active != childless {
				res.Violations = append(res.Violations, violation(name, domain.SubjectCell, t.dim, idx, "cell %d active=%t with %d children", idx, active, len(t.cells[idx].children)))
			}
		}
		for d := 0; d < t.dim; d++ {
			for e, refs := range t.entities[d].active {
				for _, ref := range refs {
					if _, ok := t.active[ref.Cell]; !ok {
						res.Violations = append(res.Violations, violation(name, domain.SubjectEntity, d, e, "entity (%d,%d) lists inactive cell %d", d, e, ref.Cell))
					}
				}
			}
		}
	}}
}

// NeighborSymmetryRule checks that active cells sharing a side entity point
// at each other.
func NeighborSymmetryRule() Rule {
	const name = "neighbor_symmetry"
	return ruleFunc{name: name, fn: func(t *Topology, res *domain.Result) {
		sd := t.sideDim()
		for _, idx := range t.ActiveCells() {
			c := t.cells[idx]
			for s, nb := range c.neighbors {
				if nb.Cell == NoIndex {
					continue
				}
				n, ok := t.cells[nb.Cell]
				if !ok || !t.IsActive(nb.Cell) || n.entities[sd][nb.Ordinal] != c.entities[sd][s] {
					continue
				}
				if back := n.neighbors[nb.Ordinal]; back.Cell != idx || back.Ordinal != s {
					res.Violations = append(res.Violations, violation(name, domain.SubjectCell, t.dim, idx, "cell %d side %d points at %d side %d, which points at %d side %d", idx, s, nb.Cell, nb.Ordinal, back.Cell, back.Ordinal))
				}
			}
		}
	}}
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
