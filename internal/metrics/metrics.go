package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Embedding metrics
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refcite_embedding_requests_total",
			Help: "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "refcite_embedding_latency_seconds",
			Help:    "Embedding request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	// Index metrics
	ChunksIndexed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "refcite_chunks_indexed_total",
			Help: "Total number of reference chunks embedded into a similarity index",
		},
	)

	IndexBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "refcite_index_build_duration_seconds",
			Help:    "Similarity index build duration in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)

	// Decision metrics
	CitationDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refcite_citation_decisions_total",
			Help: "Total number of paragraph citation decisions by outcome",
		},
		[]string{"outcome"},
	)

	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refcite_pipeline_runs_total",
			Help: "Total number of citation pipeline runs",
		},
		[]string{"status"},
	)
)

// RecordEmbeddingMetrics records embedding metrics
func RecordEmbeddingMetrics(model, status string, durationSeconds float64) {
	EmbeddingRequests.WithLabelValues(model, status).Inc()
	if durationSeconds > 0 {
		EmbeddingLatency.WithLabelValues(model).Observe(durationSeconds)
	}
}

// RecordDecision counts one matcher outcome ("cited", "below_threshold", "repetition_blocked").
func RecordDecision(outcome string) {
	CitationDecisions.WithLabelValues(outcome).Inc()
}
