package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the simulation API. Each
// server carries its own registry so repeated construction never collides
// on metric registration.
type Metrics struct {
	registry    *prometheus.Registry
	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram
}

// NewMetrics builds a registry with process collectors and the run metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	return &Metrics{
		registry: registry,
		runsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_runs_total",
			Help: "Simulation runs by terminal status.",
		}, []string{"status"}),
		runDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "backtest_run_duration_seconds",
			Help:    "Wall-clock duration of simulation requests.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
}

// Registry exposes the underlying registry for the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(status string, elapsed time.Duration) {
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}
