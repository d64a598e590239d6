// Package telemetry carries the logging, metrics and tracing hooks shared by
// the mesh, irregularity and checkpoint packages.
package telemetry

import (
	"context"
	"time"
)

// Logger is the structured logger accepted by every component. Key/value
// pairs follow the message.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// MetricsRecorder receives one observation per instrumented operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around instrumented operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is closed with the operation's outcome.
type TraceSpan interface {
	End(err error)
}

// Operation names observed by the recorders.
const (
	OpAddCell           = "mesh.add_cell"
	OpRefineCell        = "mesh.refine_cell"
	OpPrune             = "mesh.prune"
	OpIrregularityRound = "irregularity.round"
	OpCheckpointSave    = "checkpoint.save"
	OpCheckpointLoad    = "checkpoint.load"
)

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// NopLogger discards everything.
func NopLogger() Logger { return noopLogger{} }

// NopMetrics discards observations.
func NopMetrics() MetricsRecorder { return noopMetrics{} }

// NopTracer produces spans that record nothing.
func NopTracer() Tracer { return noopTracer{} }

// Instrument wraps fn with a span and a metrics observation.
func Instrument(ctx context.Context, tracer Tracer, metrics MetricsRecorder, operation string, fn func(context.Context) error) error {
	if tracer == nil {
		tracer = noopTracer{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	start := time.Now()
	spanCtx, span := tracer.Start(ctx, operation)
	err := fn(spanCtx)
	span.End(err)
	metrics.Observe(spanCtx, operation, err == nil, time.Since(start))
	return err
}
