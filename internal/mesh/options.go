package mesh

import (
	"meshcore/internal/telemetry"
)

// DefaultVertexTolerance is the matching distance used when no tolerance is
// configured.
const DefaultVertexTolerance = 1e-14

// GeometryCorrector adjusts the physical position of points produced by
// refinement, for example to follow a curved boundary.
type GeometryCorrector interface {
	// CorrectPoints receives the reference points of cell and their
	// straight-sided images and returns the corrected physical points.
	CorrectPoints(cell int, refPoints, physical [][]float64) [][]float64
	// DidRefine is called once HRefine has refined the given cells.
	DidRefine(cells []int)
}

// CubatureHints supplies the polynomial degree associated with a cell. Point
// location uses it to bound the inverse map iteration count.
type CubatureHints interface {
	CubatureDegree(cell int) int
}

// Option configures a Topology.
type Option func(*Topology)

// WithPeriodicBCs registers periodic identification rules. Rules must be
// supplied before any vertex is added.
func WithPeriodicBCs(bcs ...PeriodicBC) Option {
	return func(t *Topology) {
		t.periodic = append(t.periodic, bcs...)
	}
}

// WithGeometry installs a geometry corrector.
func WithGeometry(g GeometryCorrector) Option {
	return func(t *Topology) { t.geometry = g }
}

// WithCubatureHints installs a cubature degree provider.
func WithCubatureHints(h CubatureHints) Option {
	return func(t *Topology) { t.hints = h }
}

// WithVertexTolerance overrides DefaultVertexTolerance.
func WithVertexTolerance(tol float64) Option {
	return func(t *Topology) {
		if tol > 0 {
			t.tol = tol
		}
	}
}

// WithLogger routes topology logging to logger.
func WithLogger(logger telemetry.Logger) Option {
	return func(t *Topology) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetrics records add, refine and prune timings.
func WithMetrics(m telemetry.MetricsRecorder) Option {
	return func(t *Topology) {
		if m != nil {
			t.metrics = m
		}
	}
}

// WithTracer wraps add, refine and prune in spans.
func WithTracer(tr telemetry.Tracer) Option {
	return func(t *Topology) {
		if tr != nil {
			t.tracer = tr
		}
	}
}
