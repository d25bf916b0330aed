package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sawpanic/firescore/internal/metric"
)

// Metrics holds the Prometheus collectors for scoring runs
type Metrics struct {
	registry *prometheus.Registry

	Runs        *prometheus.CounterVec
	Rows        *prometheus.CounterVec
	Score       prometheus.Histogram
	RunDuration prometheus.Histogram
}

// NewMetrics creates collectors registered on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "firescore_runs_total",
				Help: "Total number of scoring runs by status",
			},
			[]string{"status"},
		),

		Rows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "firescore_rows_total",
				Help: "Total number of joined rows scored by prediction class",
			},
			[]string{"class"},
		),

		Score: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "firescore_score",
				Help:    "Distribution of submission scores (clamped mean absolute log error)",
				Buckets: prometheus.LinearBuckets(0, 1, 11),
			},
		),

		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "firescore_run_duration_seconds",
				Help:    "Duration of a scoring run in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
		),
	}

	m.registry.MustRegister(m.Runs, m.Rows, m.Score, m.RunDuration)
	m.registry.MustRegister(collectors.NewGoCollector())

	return m
}

// Observe records a successful run
func (m *Metrics) Observe(result *metric.Result, duration time.Duration) {
	m.Runs.WithLabelValues("ok").Inc()
	m.Rows.WithLabelValues(string(metric.ClassValid)).Add(float64(result.Valid))
	m.Rows.WithLabelValues(string(metric.ClassMissing)).Add(float64(result.Missing))
	m.Rows.WithLabelValues(string(metric.ClassInvalid)).Add(float64(result.Invalid))
	m.Score.Observe(result.Score)
	m.RunDuration.Observe(duration.Seconds())
}

// ObserveFailure records a run rejected by validation or IO
func (m *Metrics) ObserveFailure() {
	m.Runs.WithLabelValues("error").Inc()
}

// Registry exposes the underlying registry for gathering
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the current values in text exposition format, for node_exporter's textfile collector
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
