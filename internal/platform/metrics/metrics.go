package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the match service.
type Metrics struct {
	Mutations      *prometheus.CounterVec
	CommitLatency  prometheus.Histogram
	MatrixRows     prometheus.Histogram
	AuditFailures  prometheus.Counter
	RequestLatency *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		Mutations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "linkage_mutations_total",
			Help: "Graph mutation operations by operation and outcome code",
		}, []string{"operation", "outcome"}),
		CommitLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "linkage_batch_commit_seconds",
			Help:    "Latency of record store batch commits",
			Buckets: prometheus.DefBuckets,
		}),
		MatrixRows: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "linkage_score_matrix_rows",
			Help:    "Rows produced per score matrix request",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		}),
		AuditFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "linkage_audit_failures_total",
			Help: "Audit entries that could not be persisted",
		}),
		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "linkage_http_request_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// RecordMutation counts one mutation operation with its outcome code.
func (m *Metrics) RecordMutation(operation, outcome string) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(operation, outcome).Inc()
}
