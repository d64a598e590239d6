package mesh

import (
	"errors"
	"testing"

	"meshcore/internal/refinement"
	"meshcore/internal/telemetry"
	"meshcore/internal/topology"
)

func TestOperationsAreInstrumented(t *testing.T) {
	metrics := telemetry.NewExpvarMetricsRecorder("")
	tracer := telemetry.NewJSONTracer(nil)
	topo := newGrid(t, 2, 1, WithMetrics(metrics), WithTracer(tracer))
	refine(t, topo, 0, refinement.Regular(topology.Quadrilateral()))
	if err := topo.RefineCell(0, refinement.QuadCutX(), 2); err == nil {
		t.Fatalf("expected a failed refinement")
	}
	if err := topo.PruneToInclude([]int{1}); err != nil {
		t.Fatal(err)
	}

	snap := metrics.Snapshot()
	if got := snap.Results[telemetry.OpAddCell]["success"]; got != 2 {
		t.Fatalf("expected 2 successful root insertions, got %d", got)
	}
	if snap.Results[telemetry.OpRefineCell]["success"] != 1 || snap.Results[telemetry.OpRefineCell]["error"] != 1 {
		t.Fatalf("refine outcomes %v", snap.Results[telemetry.OpRefineCell])
	}
	if snap.Results[telemetry.OpPrune]["success"] != 1 {
		t.Fatalf("prune outcomes %v", snap.Results[telemetry.OpPrune])
	}
	var failed int
	for _, e := range tracer.Entries() {
		if e.Error != "" {
			failed++
		}
	}
	if failed != 1 {
		t.Fatalf("expected one failed span, got %d", failed)
	}
}

type logEntry struct {
	level string
	msg   string
	kv    []any
}

type recordingLogger struct{ entries []logEntry }

func (l *recordingLogger) add(level, msg string, kv []any) {
	l.entries = append(l.entries, logEntry{level: level, msg: msg, kv: kv})
}

func (l *recordingLogger) Debug(msg string, kv ...any) { l.add("debug", msg, kv) }
func (l *recordingLogger) Info(msg string, kv ...any)  { l.add("info", msg, kv) }
func (l *recordingLogger) Warn(msg string, kv ...any)  { l.add("warn", msg, kv) }
func (l *recordingLogger) Error(msg string, kv ...any) { l.add("error", msg, kv) }

func (l *recordingLogger) errorEntries() []logEntry {
	var out []logEntry
	for _, e := range l.entries {
		if e.level == "error" {
			out = append(out, e)
		}
	}
	return out
}

func TestFailedMutationsAreLogged(t *testing.T) {
	logger := &recordingLogger{}
	topo := twoQuads(t, WithLogger(logger))
	if len(logger.errorEntries()) != 0 {
		t.Fatalf("successful insertions logged errors: %+v", logger.errorEntries())
	}

	err := topo.RefineCell(0, nil, topo.CellCount())
	if !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected a precondition error, got %v", err)
	}
	if _, err := topo.InsertCell(0, topology.Quadrilateral(), []int{0, 1, 2, 3}, NoIndex); err == nil {
		t.Fatalf("expected a duplicate index error")
	}
	if _, err := topo.AddCell(topology.Quadrilateral(), [][]float64{{0}, {1}, {1}, {0}}); err == nil {
		t.Fatalf("expected a coordinate dimension error")
	}

	logged := logger.errorEntries()
	if len(logged) != 3 {
		t.Fatalf("expected 3 error entries, got %+v", logged)
	}
	first := logged[0]
	if first.kv[0] != "op" || first.kv[1] != telemetry.OpRefineCell || first.kv[2] != "precondition" || first.kv[3] != true {
		t.Fatalf("refine failure logged as %+v", first)
	}
	if logged[1].kv[1] != telemetry.OpAddCell {
		t.Fatalf("insert failure logged as %+v", logged[1])
	}
}
