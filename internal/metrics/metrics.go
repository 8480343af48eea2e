// Package metrics exposes Prometheus collectors for the pipeline.
//
// A nil *Metrics is valid and records nothing, so components built without
// metrics (tests, CLI helpers) need no guards.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bookture"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Metrics holds the registered collectors.
type Metrics struct {
	registry        *prometheus.Registry
	stageDuration   *prometheus.HistogramVec
	externalCalls   *prometheus.CounterVec
	retries         *prometheus.CounterVec
	progressEvents  *prometheus.CounterVec
	intakeDecisions *prometheus.CounterVec
	activePipelines prometheus.Gauge
}

// New registers collectors on a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stage executions.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stage", "outcome"}),
		externalCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_calls_total",
			Help:      "External capability calls by outcome.",
		}, []string{"capability", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Transient failures that were retried.",
		}, []string{"operation"}),
		progressEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_events_total",
			Help:      "Progress events emitted by type.",
		}, []string{"type"}),
		intakeDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intake_decisions_total",
			Help:      "Intake guard decisions by outcome.",
		}, []string{"outcome"}),
		activePipelines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_pipelines",
			Help:      "Pipelines currently running in this process.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.stageDuration,
		m.externalCalls,
		m.retries,
		m.progressEvents,
		m.intakeDecisions,
		m.activePipelines,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveStage(stage, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) ExternalCall(capability, outcome string) {
	if m == nil {
		return
	}
	m.externalCalls.WithLabelValues(capability, outcome).Inc()
}

func (m *Metrics) Retry(operation string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(operation).Inc()
}

func (m *Metrics) ProgressEvent(eventType string) {
	if m == nil {
		return
	}
	m.progressEvents.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IntakeDecision(outcome string) {
	if m == nil {
		return
	}
	m.intakeDecisions.WithLabelValues(outcome).Inc()
}

// PipelineStarted and PipelineFinished bracket a background run.
func (m *Metrics) PipelineStarted() {
	if m == nil {
		return
	}
	m.activePipelines.Inc()
}

func (m *Metrics) PipelineFinished() {
	if m == nil {
		return
	}
	m.activePipelines.Dec()
}
