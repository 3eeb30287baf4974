package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors the runtime registers.
// Trimmed from pkg/observability/metrics.go's HTTP/MCP/gRPC counters
// down to the runtime's own envelope/instance/reaper events.
type Metrics struct {
	instancesActive   *prometheus.GaugeVec
	activations       *prometheus.CounterVec
	deactivations     *prometheus.CounterVec
	receiveDuration   *prometheus.HistogramVec
	envelopesRejected *prometheus.CounterVec
	reaperSweeps      prometheus.Counter
	reaperReaped      prometheus.Counter
}

var (
	defaultMetrics *Metrics
	registerOnce   sync.Once
)

func init() {
	defaultMetrics = &Metrics{
		instancesActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agentrt_instances_active",
			Help: "Number of live agent instances, by agent name.",
		}, []string{"agent"}),
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrt_activations_total",
			Help: "Total number of agent instance activations, by agent name.",
		}, []string{"agent"}),
		deactivations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrt_deactivations_total",
			Help: "Total number of agent instance deactivations, by agent name.",
		}, []string{"agent"}),
		receiveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentrt_receive_duration_seconds",
			Help:    "Duration of an agent's receive hook, by agent name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"agent"}),
		envelopesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrt_envelopes_rejected_total",
			Help: "Total number of envelopes rejected, by error kind.",
		}, []string{"kind"}),
		reaperSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentrt_reaper_sweeps_total",
			Help: "Total number of idle-reaper ticks.",
		}),
		reaperReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentrt_reaper_instances_reaped_total",
			Help: "Total number of instances deactivated by the idle reaper.",
		}),
	}
}

// RegisterDefault registers the default metrics with Prometheus's
// default registry. Safe to call multiple times; registration only
// happens once.
func RegisterDefault() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			defaultMetrics.instancesActive,
			defaultMetrics.activations,
			defaultMetrics.deactivations,
			defaultMetrics.receiveDuration,
			defaultMetrics.envelopesRejected,
			defaultMetrics.reaperSweeps,
			defaultMetrics.reaperReaped,
		)
	})
}
