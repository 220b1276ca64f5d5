// Package metrics exposes the daemon's Prometheus instrumentation (spec
// §7 observability): event-queue depth, per-event dispatch latency, and
// enforcement retry counts. Grounded on the registry-scoped
// collector-struct construction of internal/metrics/websocket_metrics.go
// and internal/metrics/metrics_module.go's fx-wired registry/handler.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects every collector the daemon exports.
type Metrics struct {
	queueDepth         prometheus.GaugeFunc
	dispatchLatency    prometheus.Histogram
	enforcementRetries prometheus.Counter
}

// New builds Metrics and registers every collector with registry.
// queueDepth is sampled lazily on every scrape rather than pushed on
// every enqueue/dequeue, so it never lags or contends with the queue's
// own mutex outside a scrape.
func New(registry prometheus.Registerer, queueDepth func() float64) *Metrics {
	m := &Metrics{
		queueDepth: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "riskguard_queue_depth",
			Help: "Current depth of the event core's priority queue.",
		}, queueDepth),
		dispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "riskguard_dispatch_latency_seconds",
			Help:    "Time from an event's own timestamp to dispatch completion.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		enforcementRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riskguard_enforcement_retries_total",
			Help: "Total enforcement action dispatch attempts beyond the first.",
		}),
	}
	registry.MustRegister(m.queueDepth, m.dispatchLatency, m.enforcementRetries)
	return m
}

// ObserveDispatch records the dispatch latency of one processed event.
func (m *Metrics) ObserveDispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchLatency.Observe(d.Seconds())
}

// IncEnforcementRetry records one enforcement action retry attempt.
func (m *Metrics) IncEnforcementRetry() {
	if m == nil {
		return
	}
	m.enforcementRetries.Inc()
}
