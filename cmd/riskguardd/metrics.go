package main

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/kestrel-trading/riskguard/internal/eventcore"
	"github.com/kestrel-trading/riskguard/internal/metrics"
)

// metricsAddr is the dedicated /metrics listener address, separate from
// the control surface (spec §7 observability is read-only and
// unauthenticated-at-this-layer like every other control query, but kept
// off the command routes' rate limiter).
const metricsAddr = ":9090"

// NewPrometheusRegistry builds the registry every collector registers
// into, mirroring the teacher's metrics.Module registry-first wiring.
func NewPrometheusRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// NewMetrics builds the daemon's Prometheus collectors, sampling queue
// depth lazily from the live Queue on every scrape.
func NewMetrics(registry *prometheus.Registry, queue *eventcore.Queue) *metrics.Metrics {
	return metrics.New(registry, func() float64 { return float64(queue.Depth()) })
}

// RegisterMetricsHandler serves registry on metricsAddr for the whole
// daemon lifetime, the same lifecycle-hook shape as the teacher's
// internal/metrics/metrics_module.go RegisterMetricsHandler.
func RegisterMetricsHandler(lifecycle fx.Lifecycle, registry *prometheus.Registry, logger *zap.Logger) {
	server := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{})}

	lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("riskguardd: metrics server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}
