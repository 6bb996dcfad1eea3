package embed

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/store/memory"
	"github.com/OFFIS-RIT/kgraph/pkg/trace"
)

const testModel = "all-MiniLM-L6-v2"

func newTestEngine(t *testing.T, rec trace.Tracer) (*Engine, *memory.Store) {
	t.Helper()
	st := memory.New()
	e, err := NewEngine(NewEngineParams{
		Strategy:     NewHashStrategy(rec),
		Store:        st,
		DefaultModel: testModel,
		Tracer:       rec,
	})
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}
	return e, st
}

func TestEmbedDeterministicFallback(t *testing.T) {
	rec := &trace.Recorder{}
	e, _ := newTestEngine(t, rec)
	ctx := context.Background()

	a, err := e.Embed(ctx, "knowledge graphs", "")
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}
	b, err := e.Embed(ctx, "knowledge graphs", "")
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}

	if a.Dimensions != 384 || len(a.Vector) != 384 {
		t.Fatalf("unexpected dimensions: %d/%d", a.Dimensions, len(a.Vector))
	}
	if math.Abs(Norm(a.Vector)-1) > 1e-5 {
		t.Fatalf("vector is not unit length: %v", Norm(a.Vector))
	}
	if math.Abs(CosineSimilarity(a.Vector, b.Vector)-1) > 1e-5 {
		t.Fatalf("same text must give the same vector")
	}
	if !a.Fallback || a.Strategy != common.StrategyHash {
		t.Fatalf("fallback not surfaced in metadata: %+v", a)
	}
	if got := rec.Count(trace.EventEmbeddingFallback); got != 2 {
		t.Fatalf("fallback events = %d, want 2", got)
	}
}

func TestEmbedErrors(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	var embErr *common.EmbeddingError
	if _, err := e.Embed(ctx, "   ", ""); !errors.As(err, &embErr) || !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("expected invalid input embedding error, got %v", err)
	}
	if _, err := e.Embed(ctx, "text", "unknown-model"); !errors.As(err, &embErr) {
		t.Fatalf("expected embedding error for unknown model, got %v", err)
	}
}

type shortStrategy struct{}

func (shortStrategy) Name() common.EmbeddingStrategyName { return common.StrategyRemote }

func (shortStrategy) Embed(_ context.Context, _ ModelSpec, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func TestEmbedDimensionMismatch(t *testing.T) {
	e, err := NewEngine(NewEngineParams{Strategy: shortStrategy{}, DefaultModel: testModel})
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}
	var embErr *common.EmbeddingError
	if _, err := e.Embed(context.Background(), "text", ""); !errors.As(err, &embErr) {
		t.Fatalf("expected embedding error, got %v", err)
	}
}

type meteredStrategy struct {
	UsageCounter
}

func (*meteredStrategy) Name() common.EmbeddingStrategyName { return common.StrategyRemote }

func (s *meteredStrategy) Embed(ctx context.Context, model ModelSpec, texts []string) ([][]float32, error) {
	s.Add(Usage{TotalTokens: 3 * len(texts), Requests: 1, DurationMs: 5})
	return NewHashStrategy(nil).Embed(ctx, model, texts)
}

func TestEmbedReportsUsage(t *testing.T) {
	rec := &trace.Recorder{}
	strategy := &meteredStrategy{}
	e, err := NewEngine(NewEngineParams{Strategy: strategy, DefaultModel: testModel, Tracer: rec})
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}
	if _, err := e.EmbedBatch(context.Background(), []string{"a", "b"}, ""); err != nil {
		t.Fatalf("EmbedBatch returned error: %v", err)
	}

	var usage []trace.Event
	for _, ev := range rec.Events() {
		if ev.Kind == trace.EventEmbeddingUsage {
			usage = append(usage, ev)
		}
	}
	if len(usage) != 1 {
		t.Fatalf("usage events = %d, want 1", len(usage))
	}
	if usage[0].Count != 6 || usage[0].Limit != 1 || usage[0].Model != testModel {
		t.Fatalf("unexpected usage event: %+v", usage[0])
	}
	if left := strategy.TakeUsage(); left.Requests != 0 || left.TotalTokens != 0 {
		t.Fatalf("usage not reset after report: %+v", left)
	}
}

func TestChunkAndEmbed(t *testing.T) {
	e, st := newTestEngine(t, nil)
	ctx := context.Background()

	ids, err := e.ChunkAndEmbed(ctx, "doc1", "one two three four five six seven eight nine ten", 4, 1)
	if err != nil {
		t.Fatalf("ChunkAndEmbed returned error: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(ids))
	}

	// vectors of another model survive re-chunking
	other := common.EmbeddingVector{ID: "emb_other", DocumentID: "doc1", Model: "bge-base-en-v1.5", Text: "x", Vector: []float32{1, 0}}
	if err := st.SaveEmbeddings(ctx, []common.EmbeddingVector{other}); err != nil {
		t.Fatalf("SaveEmbeddings returned error: %v", err)
	}

	// re-chunking replaces the old vectors
	if _, err := e.ChunkAndEmbed(ctx, "doc1", "one two three four five six seven eight nine ten", 4, 1); err != nil {
		t.Fatalf("ChunkAndEmbed returned error: %v", err)
	}

	vectors, err := st.FindCandidates(ctx, storeFilter("doc1"))
	if err != nil {
		t.Fatalf("FindCandidates returned error: %v", err)
	}
	if len(vectors) != 4 || vectors[0].ID != "emb_other" {
		t.Fatalf("expected the other model's vector plus 3 chunks, got %d", len(vectors))
	}
	vectors = vectors[1:]
	if len(vectors) != 3 {
		t.Fatalf("expected 3 stored vectors, got %d", len(vectors))
	}
	for _, v := range vectors {
		if v.Metadata.TotalChunks != 3 || !v.Metadata.Fallback {
			t.Fatalf("unexpected chunk metadata: %+v", v.Metadata)
		}
		if math.Abs(Norm(v.Vector)-1) > 1e-5 {
			t.Fatalf("stored vector not unit length")
		}
	}
}

func TestSemanticSearch(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	docs := map[string]string{
		"d1": "graph databases store nodes and edges",
		"d2": "the weather is sunny today",
		"d3": "vector search ranks by cosine similarity",
	}
	for id, text := range docs {
		if _, err := e.ChunkAndEmbed(ctx, id, text, 50, 0); err != nil {
			t.Fatalf("ChunkAndEmbed(%s) returned error: %v", id, err)
		}
	}

	res, err := e.SemanticSearch(ctx, "the weather is sunny today", SearchOptions{Threshold: -1, Limit: 2})
	if err != nil {
		t.Fatalf("SemanticSearch returned error: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res))
	}
	if res[0].DocumentID != "d2" || math.Abs(res[0].Similarity-1) > 1e-5 {
		t.Fatalf("exact text must rank first with similarity 1, got %+v", res[0])
	}
	if res[0].Similarity < res[1].Similarity {
		t.Fatalf("results not sorted descending")
	}

	filtered, err := e.SemanticSearch(ctx, "the weather is sunny today", SearchOptions{
		Threshold: -1,
		Filters:   Filters{DocumentIDs: []string{"d1"}},
	})
	if err != nil {
		t.Fatalf("SemanticSearch returned error: %v", err)
	}
	if len(filtered) != 1 || filtered[0].DocumentID != "d1" {
		t.Fatalf("document filter not applied: %+v", filtered)
	}

	strict, err := e.SemanticSearch(ctx, "the weather is sunny today", SearchOptions{Threshold: 0.99})
	if err != nil {
		t.Fatalf("SemanticSearch returned error: %v", err)
	}
	if len(strict) != 1 {
		t.Fatalf("threshold not applied: %+v", strict)
	}

	if _, err := e.SemanticSearch(ctx, "x", SearchOptions{Threshold: 2}); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("expected invalid input for threshold 2, got %v", err)
	}
}

func TestDocumentSimilarity(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := e.ChunkAndEmbed(ctx, "d1", "alpha beta gamma", 50, 0); err != nil {
		t.Fatalf("ChunkAndEmbed returned error: %v", err)
	}
	q, err := e.Embed(ctx, "alpha beta gamma", "")
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}

	best, found, err := e.DocumentSimilarity(ctx, q, "d1")
	if err != nil || !found || math.Abs(best-1) > 1e-5 {
		t.Fatalf("DocumentSimilarity = %v, %v, %v", best, found, err)
	}
	if _, found, _ := e.DocumentSimilarity(ctx, q, "missing"); found {
		t.Fatalf("expected no match for unknown document")
	}
}
