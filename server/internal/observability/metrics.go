package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrygo/soulmap/store"
)

// Outcome labels for finish and extraction counters.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeDegraded = "degraded"
	OutcomeEmpty    = "empty"
)

// Metrics holds the Prometheus collectors of the process on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	FinishTotal     *prometheus.CounterVec
	ExtractionTotal *prometheus.CounterVec

	NodesCreated prometheus.Counter
	NodesReused  prometheus.Counter
	EdgesCreated prometheus.Counter
	EdgesUpdated prometheus.Counter
	EdgesSkipped prometheus.Counter

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	EmbeddingsBackfilled prometheus.Counter
}

// NewMetrics creates and registers every collector under namespace.
func NewMetrics(namespace string) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		FinishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finish_total",
			Help:      "Finished journal entries by outcome",
		}, []string{"outcome"}),
		ExtractionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_extractions_total",
			Help:      "Graph extractions by outcome",
		}, []string{"outcome"}),
		NodesCreated:         counter("graph_nodes_created_total", "Graph nodes created by merges"),
		NodesReused:          counter("graph_nodes_reused_total", "Existing graph nodes matched by merges"),
		EdgesCreated:         counter("graph_edges_created_total", "Graph edges created by merges"),
		EdgesUpdated:         counter("graph_edges_updated_total", "Existing graph edges updated by merges"),
		EdgesSkipped:         counter("graph_edges_skipped_total", "Extracted edges dropped for naming an unknown label"),
		CacheHits:            counter("cache_hits_total", "Soul Map cache hits"),
		CacheMisses:          counter("cache_misses_total", "Soul Map cache misses"),
		EmbeddingsBackfilled: counter("embeddings_backfilled_total", "Journal entries embedded by the backfill runner"),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.FinishTotal,
		m.ExtractionTotal,
		m.NodesCreated,
		m.NodesReused,
		m.EdgesCreated,
		m.EdgesUpdated,
		m.EdgesSkipped,
		m.CacheHits,
		m.CacheMisses,
		m.EmbeddingsBackfilled,
	)
	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordMerge adds the counts of one graph merge. A nil receiver is a no-op.
func (m *Metrics) RecordMerge(stats *store.MergeStats) {
	if m == nil || stats == nil {
		return
	}
	m.NodesCreated.Add(float64(stats.NodesCreated))
	m.NodesReused.Add(float64(stats.NodesReused))
	m.EdgesCreated.Add(float64(stats.EdgesCreated))
	m.EdgesUpdated.Add(float64(stats.EdgesUpdated))
	m.EdgesSkipped.Add(float64(stats.EdgesSkipped))
}

// RecordExtraction counts one extraction outcome. A nil receiver is a no-op.
func (m *Metrics) RecordExtraction(outcome string) {
	if m == nil {
		return
	}
	m.ExtractionTotal.WithLabelValues(outcome).Inc()
}

// RecordFinish counts one finish outcome. A nil receiver is a no-op.
func (m *Metrics) RecordFinish(outcome string) {
	if m == nil {
		return
	}
	m.FinishTotal.WithLabelValues(outcome).Inc()
}

// RecordCache counts a cache lookup. A nil receiver is a no-op.
func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
		return
	}
	m.CacheMisses.Inc()
}
