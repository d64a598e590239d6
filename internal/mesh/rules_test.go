package mesh

import (
	"context"
	"errors"
	"testing"

	"meshcore/pkg/domain"
)

func TestValidateDetectsCorruption(t *testing.T) {
	topo := newGrid(t, 2, 1)
	if res, err := topo.Validate(context.Background()); err != nil || len(res.Violations) != 0 {
		t.Fatalf("clean grid reported %v %+v", err, res.Violations)
	}

	topo.entities[1].active[0] = append(topo.entities[1].active[0], CellRef{Cell: 1, Ordinal: 0})
	delete(topo.active, 1)
	res, err := topo.Validate(context.Background())
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("expected a rule violation error, got %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking violations")
	}
	found := false
	for _, v := range res.Violations {
		if v.Rule == "active_excludes_parents" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected active_excludes_parents violation, got %+v", res.Violations)
	}
}

func TestSideClaimantsRuleFlagsMismatchedOrdinal(t *testing.T) {
	topo := twoQuads(t)
	shared := topo.Cell(0).SideEntity(1)
	topo.cellsForSide[shared][1] = CellRef{Cell: 1, Ordinal: 0}
	res, err := SideClaimantsRule().Evaluate(context.Background(), topo)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Violations) != 1 || res.Violations[0].Subject != domain.SubjectSide {
		t.Fatalf("expected one side violation, got %+v", res.Violations)
	}
}

type warnRule struct{}

func (warnRule) Name() string { return "always_warn" }

func (warnRule) Evaluate(context.Context, *Topology) (domain.Result, error) {
	return domain.Result{Violations: []domain.Violation{{Rule: "always_warn", Severity: domain.SeverityWarn}}}, nil
}

func TestRulesEngineCustomRules(t *testing.T) {
	topo := newGrid(t, 1, 1)
	engine := NewDefaultRulesEngine()
	engine.Register(warnRule{})
	res, err := engine.Evaluate(context.Background(), topo)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Violations) != 1 || res.HasBlocking() {
		t.Fatalf("expected a single warning, got %+v", res.Violations)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := engine.Evaluate(ctx, topo); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
