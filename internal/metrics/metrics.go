// Package metrics holds the Prometheus instrumentation for the pipeline,
// following the promauto-with-namespace-and-Record-helper pattern of
// tracing/metrics.go, adapted from trace/GDPR-domain counters to
// cycle/stage counters.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics emitted by one cycle.
type Metrics struct {
	CycleDuration   prometheus.Histogram
	CyclesTotal     *prometheus.CounterVec
	CycleAborted    prometheus.Counter

	ReadingsFetched *prometheus.CounterVec
	StageErrors     *prometheus.CounterVec

	ClustersFound    prometheus.Histogram
	IncidentsCreated prometheus.Counter
	IncidentsDuplicate prometheus.Counter

	EmbeddingFailures prometheus.Counter
	GraphWriteFailures prometheus.Counter
	DocumentStoreWriteFailures prometheus.Counter

	UpstreamCallDuration *prometheus.HistogramVec
	UpstreamCallTotal    *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "riverwatch"
	}

	return &Metrics{
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one orchestrator cycle in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		CyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of cycles completed, by outcome",
		}, []string{"outcome"}),
		CycleAborted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_aborted_total",
			Help:      "Total number of cycles aborted by cancellation or deadline",
		}),

		ReadingsFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_fetched_total",
			Help:      "Total readings fetched, by source",
		}, []string{"source"}),
		StageErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Total stage errors recorded, by stage",
		}, []string{"stage"}),

		ClustersFound: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "clusters_found",
			Help:      "Number of clusters found per cycle",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),
		IncidentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_created_total",
			Help:      "Total incidents newly persisted",
		}),
		IncidentsDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_duplicate_total",
			Help:      "Total incidents recognised as duplicates",
		}),

		EmbeddingFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_failures_total",
			Help:      "Total terminal embedding-service failures",
		}),
		GraphWriteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_write_failures_total",
			Help:      "Total graph-store write failures",
		}),
		DocumentStoreWriteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_store_write_failures_total",
			Help:      "Total document-store write failures",
		}),

		UpstreamCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_call_duration_seconds",
			Help:      "Duration of calls to upstream HTTP APIs",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"}),
		UpstreamCallTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_calls_total",
			Help:      "Total calls to upstream HTTP APIs, by service and status",
		}, []string{"service", "status"}),
	}
}

// RecordCycle records the completion of one cycle.
func (m *Metrics) RecordCycle(duration time.Duration, aborted bool) {
	m.CycleDuration.Observe(duration.Seconds())
	outcome := "completed"
	if aborted {
		outcome = "aborted"
		m.CycleAborted.Inc()
	}
	m.CyclesTotal.WithLabelValues(outcome).Inc()
}

// RecordStageError increments the per-stage error counter.
func (m *Metrics) RecordStageError(stage string) {
	m.StageErrors.WithLabelValues(stage).Inc()
}

// RecordUpstreamCall records one upstream HTTP call's latency and outcome.
func (m *Metrics) RecordUpstreamCall(service, status string, duration time.Duration) {
	m.UpstreamCallDuration.WithLabelValues(service).Observe(duration.Seconds())
	m.UpstreamCallTotal.WithLabelValues(service, status).Inc()
}
