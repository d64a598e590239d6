package irregularity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"meshcore/internal/comm"
	"meshcore/internal/mesh"
	"meshcore/internal/refinement"
	"meshcore/internal/telemetry"
	"meshcore/internal/topology"
)

// buildDeepStrip builds a 4x1 strip of quads and refines toward cell 2 so
// that level 3 cells border the unrefined cell 2. Roots are owned
// round-robin and children inherit ownership.
func buildDeepStrip(rank, size int) (*mesh.Topology, error) {
	topo, err := mesh.New(2)
	if err != nil {
		return nil, err
	}
	for i := 0; i < 4; i++ {
		x0 := float64(i) / 4
		coords := [][]float64{{x0, 0}, {x0 + 0.25, 0}, {x0 + 0.25, 1}, {x0, 1}}
		if _, err := topo.AddCell(topology.Quadrilateral(), coords); err != nil {
			return nil, err
		}
	}
	var owned []int
	for i := 0; i < 4; i++ {
		if i%size == rank {
			owned = append(owned, i)
		}
	}
	if err := topo.SetOwnedCells(owned); err != nil {
		return nil, err
	}
	regular := refinement.Regular(topology.Quadrilateral())
	for _, cell := range []int{1, 5, 9} {
		if err := topo.HRefine([]int{cell}, regular); err != nil {
			return nil, err
		}
	}
	return topo, nil
}

func deepStrip(t *testing.T) *mesh.Topology {
	t.Helper()
	topo, err := buildDeepStrip(0, 1)
	if err != nil {
		t.Fatalf("build strip: %v", err)
	}
	return topo
}

func TestEnforceSerial(t *testing.T) {
	topo := deepStrip(t)
	e := &Enforcer{Topology: topo}
	ctx := context.Background()
	before, err := e.Irregularity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if before != 3 {
		t.Fatalf("expected irregularity 3 before enforcement, got %d", before)
	}
	report, err := e.Enforce(ctx)
	if err != nil {
		t.Fatalf("enforce: %v", err)
	}
	if report.Rounds != 3 || report.Refined != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if !topo.IsParent(2) || !topo.IsParent(16) {
		t.Fatalf("expected cells 2 and 16 refined, active %v", topo.ActiveCells())
	}
	after, err := e.Irregularity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if after > 1 {
		t.Fatalf("irregularity %d after enforcement", after)
	}
	if res, err := topo.Validate(ctx); err != nil {
		t.Fatalf("validate: %v %+v", err, res.Violations)
	}
}

func TestEnforceAcrossWorkers(t *testing.T) {
	serial := deepStrip(t)
	if _, err := (&Enforcer{Topology: serial}).Enforce(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := serial.ActiveCells()

	for _, size := range []int{1, 2, 4} {
		t.Run(fmt.Sprintf("ranks=%d", size), func(t *testing.T) {
			var mu sync.Mutex
			actives := make(map[int][]int)
			err := comm.Run(context.Background(), size, func(ctx context.Context, c comm.Communicator) error {
				topo, err := buildDeepStrip(c.Rank(), size)
				if err != nil {
					return err
				}
				e := &Enforcer{Topology: topo, Comm: c}
				if _, err := e.Enforce(ctx); err != nil {
					return err
				}
				irr, err := e.Irregularity(ctx)
				if err != nil {
					return err
				}
				if irr > 1 {
					return fmt.Errorf("rank %d: irregularity %d", c.Rank(), irr)
				}
				global, err := topo.GlobalActiveCellIndices(ctx, c)
				if err != nil {
					return err
				}
				if !equalInts(global, topo.ActiveCells()) {
					return fmt.Errorf("rank %d: owned union %v differs from active %v", c.Rank(), global, topo.ActiveCells())
				}
				mu.Lock()
				actives[c.Rank()] = topo.ActiveCells()
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			for rank, got := range actives {
				if !equalInts(got, want) {
					t.Fatalf("rank %d active %v, want %v", rank, got, want)
				}
			}
		})
	}
}

func TestEnforceInteriorChild(t *testing.T) {
	topo, err := mesh.New(2)
	if err != nil {
		t.Fatal(err)
	}
	for _, coords := range [][][]float64{
		{{0, 0}, {1, 0}, {0, 1}},
		{{1, 0}, {1, 1}, {0, 1}},
	} {
		if _, err := topo.AddCell(topology.Triangle(), coords); err != nil {
			t.Fatal(err)
		}
	}
	regular := refinement.Regular(topology.Triangle())
	if err := topo.HRefine([]int{0}, regular); err != nil {
		t.Fatal(err)
	}
	center := topo.Cell(0).Children()[3]
	if !topo.IsInteriorChild(center) {
		t.Fatalf("cell %d should be interior", center)
	}
	if err := topo.HRefine([]int{center}, regular); err != nil {
		t.Fatal(err)
	}
	report, err := (&Enforcer{Topology: topo}).Enforce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !topo.IsParent(1) {
		t.Fatalf("grandparent neighbor should be refined, report %+v", report)
	}
	if report.Rounds != 2 || report.Refined != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestEnforceMaxRounds(t *testing.T) {
	topo := deepStrip(t)
	metrics := telemetry.NewExpvarMetricsRecorder("")
	e := &Enforcer{Topology: topo, MaxRounds: 1, Metrics: metrics}
	report, err := e.Enforce(context.Background())
	if !errors.Is(err, ErrMaxRoundsExceeded) {
		t.Fatalf("expected max rounds error, got %v", err)
	}
	if report.Rounds != 1 || report.Refined != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if got := metrics.Snapshot().Results[telemetry.OpIrregularityRound]["success"]; got != 1 {
		t.Fatalf("expected one observed round, got %d", got)
	}
}

func TestEnforceOneDimensional(t *testing.T) {
	topo, err := mesh.New(1)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := topo.AddCell(topology.Line(), [][]float64{{float64(i)}, {float64(i + 1)}}); err != nil {
			t.Fatal(err)
		}
	}
	line := refinement.Regular(topology.Line())
	for _, cell := range []int{0, 3, 5} {
		if err := topo.HRefine([]int{cell}, line); err != nil {
			t.Fatal(err)
		}
	}
	e := &Enforcer{Topology: topo}
	report, err := e.Enforce(context.Background())
	if err != nil || report.Rounds != 0 {
		t.Fatalf("one-dimensional enforce ran %+v, %v", report, err)
	}
	if irr, err := e.Irregularity(context.Background()); err != nil || irr != 0 {
		t.Fatalf("irregularity %d, %v", irr, err)
	}
}

func TestEnforceHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&Enforcer{Topology: deepStrip(t)}).Enforce(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
