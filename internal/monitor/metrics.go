package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's Prometheus instruments.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal       *prometheus.CounterVec
	domainRunsTotal *prometheus.CounterVec
	repairAttempts  prometheus.Counter
	safetyScores    prometheus.Histogram
	layerDuration   prometheus.Histogram
	conflictsTotal  *prometheus.CounterVec
}

// New creates the instruments in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crewd",
			Name:      "runs_total",
			Help:      "Pipeline runs by merge decision.",
		}, []string{"decision"}),
		domainRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crewd",
			Name:      "domain_runs_total",
			Help:      "Domain workflows by terminal outcome.",
		}, []string{"outcome"}),
		repairAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "crewd",
			Name:      "repair_attempts_total",
			Help:      "QA-driven repair attempts across all domains.",
		}),
		safetyScores: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "crewd",
			Name:      "safety_score",
			Help:      "Safety scores of scored change sets.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		layerDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "crewd",
			Name:      "layer_duration_seconds",
			Help:      "Wall time per execution layer.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
		conflictsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crewd",
			Name:      "conflicts_total",
			Help:      "Detected cross-domain conflicts by severity.",
		}, []string{"severity"}),
	}
}

// RecordRun counts a completed run under its merge decision.
func (m *Metrics) RecordRun(decision string) {
	m.runsTotal.WithLabelValues(decision).Inc()
}

// RecordDomain counts a terminal domain outcome and its cost.
func (m *Metrics) RecordDomain(outcome string, retries int, safetyScore float64) {
	m.domainRunsTotal.WithLabelValues(outcome).Inc()
	if retries > 0 {
		m.repairAttempts.Add(float64(retries))
	}
	m.safetyScores.Observe(safetyScore)
}

// ObserveLayer records one layer's wall time.
func (m *Metrics) ObserveLayer(index, size int, elapsed time.Duration) {
	m.layerDuration.Observe(elapsed.Seconds())
}

// RecordConflict counts a detected conflict by severity.
func (m *Metrics) RecordConflict(severity string) {
	m.conflictsTotal.WithLabelValues(severity).Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
