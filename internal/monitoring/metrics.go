package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var (
	// RecordingsTotal counts processed recordings by outcome
	// (ok, failed, timeout, cancelled, skipped).
	RecordingsTotal = register(prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spt_recordings_total",
		Help: "Recordings handed to the detection engine, by outcome.",
	}, []string{"outcome"}))

	// TaskDuration observes wall-clock time spent supervising bounded tasks.
	TaskDuration = register(prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "spt_task_duration_seconds",
		Help:    "Wall-clock duration of bounded tasks.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
	}))

	// FitTotal counts Tau fits by status.
	FitTotal = register(prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spt_fit_total",
		Help: "Tau curve fits, by status.",
	}, []string{"status"}))

	// SweepRunsTotal counts sweep sandbox runs by outcome.
	SweepRunsTotal = register(prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spt_sweep_runs_total",
		Help: "Sweep sandbox runs, by outcome.",
	}, []string{"outcome"}))

	// ConcatenationsTotal counts table concatenations by outcome.
	ConcatenationsTotal = register(prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spt_concatenations_total",
		Help: "Table concatenations, by outcome.",
	}, []string{"outcome"}))
)

func register[T prometheus.Collector](c T) T {
	registry.MustRegister(c)
	return c
}

// MetricsHandler serves the private registry in the Prometheus text format.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry for tests.
func Registry() *prometheus.Registry {
	return registry
}
