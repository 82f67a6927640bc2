package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RetrievalMetrics tracks health of the reference-example retrieval path.
type RetrievalMetrics struct {
	queries        *prometheus.CounterVec
	results        prometheus.Histogram
	embedCacheHits *prometheus.CounterVec
}

var (
	defaultRetrievalMetrics     *RetrievalMetrics
	defaultRetrievalMetricsOnce sync.Once
)

// NewRetrievalMetrics builds a RetrievalMetrics recorder using the default registry.
func NewRetrievalMetrics() *RetrievalMetrics {
	defaultRetrievalMetricsOnce.Do(func() {
		defaultRetrievalMetrics = newRetrievalMetrics(prometheus.DefaultRegisterer)
	})
	return defaultRetrievalMetrics
}

// NewRetrievalMetricsWithRegisterer allows tests to provide a dedicated registry.
func NewRetrievalMetricsWithRegisterer(reg prometheus.Registerer) *RetrievalMetrics {
	return newRetrievalMetrics(reg)
}

func newRetrievalMetrics(reg prometheus.Registerer) *RetrievalMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &RetrievalMetrics{
		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mathviz",
			Subsystem: "rag",
			Name:      "queries_total",
			Help:      "Retrieval queries by collection and status",
		}, []string{"collection", "status"}),
		results: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mathviz",
			Subsystem: "rag",
			Name:      "results",
			Help:      "Snippets returned per retrieval call after merging",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		}),
		embedCacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mathviz",
			Subsystem: "rag",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache lookups by result",
		}, []string{"result"}),
	}
}

// RecordQuery counts a query against one collection.
func (m *RetrievalMetrics) RecordQuery(collection string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.queries.WithLabelValues(collection, status).Inc()
}

// RecordResults observes how many snippets a merged retrieval returned.
func (m *RetrievalMetrics) RecordResults(n int) {
	if m == nil {
		return
	}
	m.results.Observe(float64(n))
}

// RecordEmbeddingCache tracks embedding cache hits and misses.
func (m *RetrievalMetrics) RecordEmbeddingCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.embedCacheHits.WithLabelValues("hit").Inc()
		return
	}
	m.embedCacheHits.WithLabelValues("miss").Inc()
}
