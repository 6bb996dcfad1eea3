package metrics

import (
	"github.com/OFFIS-RIT/kgraph/pkg/trace"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics turns trace events into prometheus series. It implements
// trace.Tracer so it can sit next to the log tracer in a MultiTracer.
type PipelineMetrics struct {
	ExtractionDuration prometheus.Histogram
	EntitiesExtracted  *prometheus.CounterVec
	RelationshipsBuilt *prometheus.CounterVec
	Embeddings         *prometheus.CounterVec
	FallbackEmbeddings *prometheus.CounterVec
	EmbeddingTokens    *prometheus.CounterVec
	EmbeddingRequests  *prometheus.CounterVec
	EnrichmentFailures prometheus.Counter
	CapsApplied        *prometheus.CounterVec
	Searches           prometheus.Counter
	GraphQueries       *prometheus.HistogramVec
	GraphNodes         *prometheus.GaugeVec
	GraphEdges         *prometheus.GaugeVec
}

// NewPipelineMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which tests use.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		ExtractionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kgraph_extraction_duration_seconds",
			Help:    "Time spent extracting entities from one text",
			Buckets: prometheus.DefBuckets,
		}),
		EntitiesExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kgraph_entities_extracted_total",
			Help: "Entities returned by the extractor",
		}, []string{"entity_type"}),
		RelationshipsBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kgraph_relationships_built_total",
			Help: "Relationships persisted by the builder",
		}, []string{"relationship_type"}),
		Embeddings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kgraph_embeddings_total",
			Help: "Vectors generated",
		}, []string{"model", "strategy"}),
		FallbackEmbeddings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kgraph_fallback_embeddings_total",
			Help: "Vectors generated with the deterministic hash strategy",
		}, []string{"model"}),
		EmbeddingTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kgraph_embedding_tokens_total",
			Help: "Tokens billed by remote embedding models",
		}, []string{"model"}),
		EmbeddingRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kgraph_embedding_requests_total",
			Help: "Requests sent to remote embedding models",
		}, []string{"model"}),
		EnrichmentFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kgraph_enrichment_failures_total",
			Help: "Failed knowledge-base enrichment calls",
		}),
		CapsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kgraph_caps_applied_total",
			Help: "Times an input was truncated to a configured cap",
		}, []string{"operation"}),
		Searches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kgraph_semantic_searches_total",
			Help: "Semantic search calls",
		}),
		GraphQueries: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kgraph_graph_query_duration_seconds",
			Help:    "Graph service call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		GraphNodes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kgraph_graph_nodes",
			Help: "Entities per type at the last statistics call",
		}, []string{"entity_type"}),
		GraphEdges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kgraph_graph_edges",
			Help: "Relationships per type at the last statistics call",
		}, []string{"relationship_type"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ExtractionDuration,
			m.EntitiesExtracted,
			m.RelationshipsBuilt,
			m.Embeddings,
			m.FallbackEmbeddings,
			m.EmbeddingTokens,
			m.EmbeddingRequests,
			m.EnrichmentFailures,
			m.CapsApplied,
			m.Searches,
			m.GraphQueries,
			m.GraphNodes,
			m.GraphEdges,
		)
	}
	return m
}

func (m *PipelineMetrics) Record(event trace.Event) {
	switch event.Kind {
	case trace.EventExtraction:
		m.ExtractionDuration.Observe(event.Duration.Seconds())
		for t, n := range event.EntityTypes {
			m.EntitiesExtracted.WithLabelValues(t).Add(float64(n))
		}
	case trace.EventRelationshipsBuilt:
		for t, n := range event.RelationshipTypes {
			m.RelationshipsBuilt.WithLabelValues(t).Add(float64(n))
		}
	case trace.EventEmbedding:
		m.Embeddings.WithLabelValues(event.Model, event.Strategy).Add(float64(max(event.Count, 1)))
	case trace.EventEmbeddingFallback:
		m.FallbackEmbeddings.WithLabelValues(event.Model).Inc()
	case trace.EventEmbeddingUsage:
		// Limit carries the request count of the usage window.
		m.EmbeddingTokens.WithLabelValues(event.Model).Add(float64(event.Count))
		m.EmbeddingRequests.WithLabelValues(event.Model).Add(float64(event.Limit))
	case trace.EventEnrichmentFailed:
		m.EnrichmentFailures.Inc()
	case trace.EventCapApplied:
		m.CapsApplied.WithLabelValues(event.Operation).Inc()
	case trace.EventSearch:
		m.Searches.Inc()
	case trace.EventGraphQuery:
		m.GraphQueries.WithLabelValues(event.Operation).Observe(event.Duration.Seconds())
		if event.Operation == "statistics" {
			for t, n := range event.EntityTypes {
				m.GraphNodes.WithLabelValues(t).Set(float64(n))
			}
			for t, n := range event.RelationshipTypes {
				m.GraphEdges.WithLabelValues(t).Set(float64(n))
			}
		}
	}
}
