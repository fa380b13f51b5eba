// Package telemetry wraps OpenTelemetry span/metric recording around the
// recurring "a batch of work passed through a named node" shape that shows up
// at the function-block callback boundary (C8), the reader poll loop (C9),
// and the RPC dispatch boundary (C10). It mirrors the instrumentation
// machine.vertex.span/metrics installs around every vertex handler, but
// exposes it as a small reusable Recorder instead of re-wrapping a handler
// closure at every call site.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/trace"
)

var (
	meter  = global.Meter("daqrun")
	tracer = otel.GetTracerProvider().Tracer("daqrun")

	incoming = metric.Must(meter).NewInt64ValueRecorder("daqrun.incoming")
	outgoing = metric.Must(meter).NewInt64ValueRecorder("daqrun.outgoing")
	errs     = metric.Must(meter).NewInt64ValueRecorder("daqrun.errors")
	duration = metric.Must(meter).NewInt64ValueRecorder("daqrun.duration")
)

// Recorder instruments one named pipeline stage (a function block's
// onPacketReceived, a reader's poll loop, an RPC command dispatch).
type Recorder struct {
	component attribute.KeyValue
	kind      attribute.KeyValue
}

// NewRecorder builds a Recorder for a component at componentPath performing
// work of the given kind ("functionblock", "reader", "rpc").
func NewRecorder(componentPath, kind string) *Recorder {
	return &Recorder{
		component: attribute.String("component_path", componentPath),
		kind:      attribute.String("kind", kind),
	}
}

// Span starts a trace span for one unit of work (one packet batch, one read
// call, one RPC request) and returns it alongside a derived context.
func (r *Recorder) Span(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(r.component, r.kind))
}

// Observe records count/duration/error metrics for one unit of work, the way
// vertex.metrics records inCounter/outCounter/errorsCounter/batchDuration
// around the wrapped handler.
func (r *Recorder) Observe(ctx context.Context, in, out, failures int, elapsed time.Duration) {
	incoming.Record(ctx, int64(in), r.component, r.kind)
	outgoing.Record(ctx, int64(out), r.component, r.kind)
	errs.Record(ctx, int64(failures), r.component, r.kind)
	duration.Record(ctx, int64(elapsed), r.component, r.kind)
}

// Timed runs fn, recording its duration and any error under name.
func Timed(ctx context.Context, r *Recorder, name string, fn func() error) error {
	ctx, span := r.Span(ctx, name)
	defer span.End()

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	failures := 0
	if err != nil {
		failures = 1
		span.AddEvent("error")
	}

	r.Observe(ctx, 1, 1, failures, elapsed)
	return err
}
