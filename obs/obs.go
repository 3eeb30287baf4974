// Package obs carries the ambient stack SPEC_FULL.md §10 calls for:
// structured logging, OpenTelemetry tracing, and Prometheus metrics
// for the runtime's own lifecycle events. None of it participates in
// the dispatch invariants; it is a pure side channel.
package obs

import (
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Runtime bundles the observability handles a runtime.Runtime threads
// through its own lifecycle events. Grounded on internal/
// observability/observability.go's Config/Init shape and pkg/
// observability/metrics.go's counter/histogram set, trimmed from
// HTTP/MCP/gRPC-specific instrumentation down to the runtime's own
// envelope/instance/reaper events.
type Runtime struct {
	logger        *slog.Logger
	tracer        trace.Tracer
	metrics       *Metrics
	metricsOn     bool
	tracingOn     bool
}

// NewRuntime constructs the observability bundle. metricsEnabled gates
// whether the Prometheus collectors are registered and updated at all,
// matching internal/runtime/runtime.go's EnableMetrics toggle;
// tracingEnabled is recorded, but no method here consults it.
func NewRuntime(metricsEnabled, tracingEnabled bool) *Runtime {
	r := &Runtime{
		logger:    slog.New(slog.NewJSONHandler(os.Stderr, nil)),
		tracer:    otel.Tracer("github.com/aixgo-dev/agentrt/runtime"),
		metricsOn: metricsEnabled,
		tracingOn: tracingEnabled,
	}
	if metricsEnabled {
		RegisterDefault()
		r.metrics = defaultMetrics
	}
	return r
}

// Logger returns the structured logger agents and the runtime log
// through.
func (r *Runtime) Logger() *slog.Logger {
	return r.logger
}

// Tracer returns the runtime's otel tracer; the runtime itself opens
// no spans with it. Until an SDK TracerProvider has been installed via
// InitTracing, otel's default global provider returns a no-op tracer.
func (r *Runtime) Tracer() trace.Tracer {
	return r.tracer
}

// InstanceActivated records an agent activation.
func (r *Runtime) InstanceActivated(name string) {
	if r.metrics != nil {
		r.metrics.instancesActive.WithLabelValues(name).Inc()
		r.metrics.activations.WithLabelValues(name).Inc()
	}
}

// InstanceDeactivated records an agent deactivation.
func (r *Runtime) InstanceDeactivated(name string) {
	if r.metrics != nil {
		r.metrics.instancesActive.WithLabelValues(name).Dec()
		r.metrics.deactivations.WithLabelValues(name).Inc()
	}
}

// ReceiveDuration records how long one Receive call took for name.
func (r *Runtime) ReceiveDuration(name string, d time.Duration) {
	if r.metrics != nil {
		r.metrics.receiveDuration.WithLabelValues(name).Observe(d.Seconds())
	}
}

// EnvelopeRejected records a publish/activation rejected with the
// given error kind (NoAgent, BadEnvelope, ...).
func (r *Runtime) EnvelopeRejected(kind string) {
	if r.metrics != nil {
		r.metrics.envelopesRejected.WithLabelValues(kind).Inc()
	}
}

// ReaperSwept records one reaper tick stopping n idle instances.
func (r *Runtime) ReaperSwept(n int) {
	if r.metrics != nil {
		r.metrics.reaperSweeps.Inc()
		r.metrics.reaperReaped.Add(float64(n))
	}
}
