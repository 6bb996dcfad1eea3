package metrics

import (
	"testing"
	"time"

	"github.com/OFFIS-RIT/kgraph/pkg/trace"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPipelineMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipelineMetrics(reg)

	m.Record(trace.Event{
		Kind:        trace.EventExtraction,
		Duration:    20 * time.Millisecond,
		EntityTypes: map[string]int{"PERSON": 2, "EMAIL": 1},
	})
	m.Record(trace.Event{Kind: trace.EventEmbeddingFallback, Model: "all-MiniLM-L6-v2"})
	m.Record(trace.Event{Kind: trace.EventEmbeddingFallback, Model: "all-MiniLM-L6-v2"})
	m.Record(trace.Event{Kind: trace.EventCapApplied, Operation: "proximity"})
	m.Record(trace.Event{Kind: trace.EventEmbeddingUsage, Model: "text-embedding-3-small", Count: 42, Limit: 2})

	if got := testutil.ToFloat64(m.EntitiesExtracted.WithLabelValues("PERSON")); got != 2 {
		t.Fatalf("PERSON counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.FallbackEmbeddings.WithLabelValues("all-MiniLM-L6-v2")); got != 2 {
		t.Fatalf("fallback counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CapsApplied.WithLabelValues("proximity")); got != 1 {
		t.Fatalf("cap counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.EmbeddingTokens.WithLabelValues("text-embedding-3-small")); got != 42 {
		t.Fatalf("token counter = %v, want 42", got)
	}
	if got := testutil.ToFloat64(m.EmbeddingRequests.WithLabelValues("text-embedding-3-small")); got != 2 {
		t.Fatalf("request counter = %v, want 2", got)
	}
	if n := testutil.CollectAndCount(m.ExtractionDuration); n != 1 {
		t.Fatalf("histogram series = %d, want 1", n)
	}
}

func TestStatisticsGauges(t *testing.T) {
	m := NewPipelineMetrics(nil)
	m.Record(trace.Event{
		Kind:              trace.EventGraphQuery,
		Operation:         "statistics",
		EntityTypes:       map[string]int{"ORGANIZATION": 4},
		RelationshipTypes: map[string]int{"RELATES_TO": 3},
	})
	if got := testutil.ToFloat64(m.GraphNodes.WithLabelValues("ORGANIZATION")); got != 4 {
		t.Fatalf("node gauge = %v", got)
	}
	if got := testutil.ToFloat64(m.GraphEdges.WithLabelValues("RELATES_TO")); got != 3 {
		t.Fatalf("edge gauge = %v", got)
	}
}
