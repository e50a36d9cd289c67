package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus registry and collectors for the
// orchestration core. Constructed once and injected; no global registry.
type Metrics struct {
	registry *prometheus.Registry

	JobsStarted      *prometheus.CounterVec
	JobsFinished     *prometheus.CounterVec
	JobDuration      *prometheus.HistogramVec
	EntityOutcome    *prometheus.CounterVec
	LockAcquires     *prometheus.CounterVec
	EntitiesInFlight prometheus.Gauge
}

// New creates a Metrics instance with all collectors registered
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		JobsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drover_jobs_started_total",
				Help: "Jobs accepted for execution, by task type",
			},
			[]string{"task_type"},
		),
		JobsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drover_jobs_finished_total",
				Help: "Jobs reaching a terminal state, by task type and status",
			},
			[]string{"task_type", "status"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "drover_job_duration_seconds",
				Help:    "Wall time from job start to terminal state",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"task_type"},
		),
		EntityOutcome: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drover_entity_outcomes_total",
				Help: "Per-entity processing outcomes, by task type and outcome",
			},
			[]string{"task_type", "outcome"}, // success | failure | skipped
		),
		LockAcquires: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drover_lock_acquires_total",
				Help: "Lock acquire attempts, by result",
			},
			[]string{"result"}, // granted | contended | unavailable
		),
		EntitiesInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "drover_entities_in_flight",
				Help: "Entities currently being processed",
			},
		),
	}

	m.registry.MustRegister(
		m.JobsStarted,
		m.JobsFinished,
		m.JobDuration,
		m.EntityOutcome,
		m.LockAcquires,
		m.EntitiesInFlight,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
