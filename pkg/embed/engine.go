package embed

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/OFFIS-RIT/kgraph/internal/util"
	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/logger"
	"github.com/OFFIS-RIT/kgraph/pkg/store"
	"github.com/OFFIS-RIT/kgraph/pkg/trace"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultSearchLimit   = 10
	DefaultChunkSize     = 200
	DefaultOverlapSize   = 40
	candidateMultiplier  = 10
	defaultMaxConcurrent = 4
	chunkBatchSize       = 16
)

// Embedding is a single unit-length vector plus how it was produced.
type Embedding struct {
	Vector     []float32                    `json:"vector"`
	Model      string                       `json:"model"`
	Dimensions int                          `json:"dimensions"`
	Strategy   common.EmbeddingStrategyName `json:"strategy"`
	Fallback   bool                         `json:"fallback"`
}

// Filters narrow the candidate set of a search before scoring.
type Filters struct {
	DocumentIDs []string  `json:"document_ids"`
	EntityIDs   []string  `json:"entity_ids"`
	FileTypes   []string  `json:"file_types"`
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
}

type SearchOptions struct {
	Model     string  `json:"model"`
	Threshold float64 `json:"threshold" validate:"gte=-1,lte=1"`
	Limit     int     `json:"limit" validate:"gte=0,lte=1000"`
	Filters   Filters `json:"filters"`
}

type SearchResult struct {
	ID         string                   `json:"id"`
	Text       string                   `json:"text"`
	Similarity float64                  `json:"similarity"`
	DocumentID string                   `json:"document_id,omitempty"`
	EntityID   string                   `json:"entity_id,omitempty"`
	Metadata   common.EmbeddingMetadata `json:"metadata"`
}

// Engine embeds text with the configured strategy and answers similarity
// queries over a vector store. It is safe for concurrent use.
type Engine struct {
	strategy      Strategy
	store         store.VectorStore
	defaultModel  string
	maxConcurrent int
	tracer        trace.Tracer
	log           logger.ComponentLogger
}

type NewEngineParams struct {
	Strategy     Strategy
	Store        store.VectorStore
	DefaultModel string
	// MaxConcurrent bounds parallel strategy calls while chunking.
	MaxConcurrent int
	Tracer        trace.Tracer
}

func NewEngine(params NewEngineParams) (*Engine, error) {
	if params.Strategy == nil {
		return nil, errors.New("embedding strategy is required")
	}
	if _, err := LookupModel(params.DefaultModel); err != nil {
		return nil, err
	}
	maxConcurrent := params.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	return &Engine{
		strategy:      params.Strategy,
		store:         params.Store,
		defaultModel:  params.DefaultModel,
		maxConcurrent: maxConcurrent,
		tracer:        params.Tracer,
		log:           logger.Component("Embed"),
	}, nil
}

func (e *Engine) DefaultModel() string {
	return e.defaultModel
}

func (e *Engine) model(name string) (ModelSpec, error) {
	if name == "" {
		name = e.defaultModel
	}
	spec, err := LookupModel(name)
	if err != nil {
		return ModelSpec{}, common.NewEmbeddingError("resolve model", name, err)
	}
	return spec, nil
}

// Embed returns the unit vector of text. An empty model selects the default.
func (e *Engine) Embed(ctx context.Context, text, model string) (*Embedding, error) {
	out, err := e.EmbedBatch(ctx, []string{text}, model)
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// EmbedBatch embeds several texts in one strategy call.
func (e *Engine) EmbedBatch(ctx context.Context, texts []string, model string) ([]Embedding, error) {
	spec, err := e.model(model)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, common.NewEmbeddingError("embed", spec.Name, fmt.Errorf("%w: text %d is empty", common.ErrInvalidInput, i))
		}
	}

	start := time.Now()
	vectors, err := e.strategy.Embed(ctx, spec, texts)
	if err != nil {
		trace.Record(e.tracer, trace.Event{Kind: trace.EventEmbedding, Model: spec.Name, Strategy: string(e.strategy.Name()), Error: err.Error()})
		return nil, common.NewEmbeddingError("embed", spec.Name, err)
	}
	if len(vectors) != len(texts) {
		return nil, common.NewEmbeddingError("embed", spec.Name, fmt.Errorf("strategy returned %d vectors for %d texts", len(vectors), len(texts)))
	}

	name := e.strategy.Name()
	out := make([]Embedding, len(vectors))
	for i, v := range vectors {
		if len(v) != spec.Dimensions {
			return nil, common.NewEmbeddingError("embed", spec.Name, fmt.Errorf("got %d dimensions, model declares %d", len(v), spec.Dimensions))
		}
		if !Normalize(v) {
			return nil, common.NewEmbeddingError("normalize", spec.Name, fmt.Errorf("vector %d has no direction", i))
		}
		out[i] = Embedding{
			Vector:     v,
			Model:      spec.Name,
			Dimensions: spec.Dimensions,
			Strategy:   name,
			Fallback:   name == common.StrategyHash,
		}
	}

	trace.Record(e.tracer, trace.Event{
		Kind:     trace.EventEmbedding,
		Model:    spec.Name,
		Strategy: string(name),
		Count:    len(out),
		Duration: time.Since(start),
	})
	e.reportUsage(spec.Name)
	return out, nil
}

// reportUsage forwards the token counters of remote strategies.
func (e *Engine) reportUsage(model string) {
	r, ok := e.strategy.(usageReporter)
	if !ok {
		return
	}
	u := r.TakeUsage()
	if u.Requests == 0 {
		return
	}
	trace.Record(e.tracer, trace.Event{
		Kind:     trace.EventEmbeddingUsage,
		Model:    model,
		Strategy: string(e.strategy.Name()),
		Count:    u.TotalTokens,
		Limit:    u.Requests,
		Duration: time.Duration(u.DurationMs) * time.Millisecond,
	})
}

// ChunkAndEmbed splits content into overlapping word windows, embeds every
// window with the default model and stores the vectors. Chunks stored for
// the document with the same model are replaced. It returns the ids of the new vectors.
func (e *Engine) ChunkAndEmbed(ctx context.Context, documentID, content string, chunkSize, overlapSize int) ([]string, error) {
	return e.ChunkAndEmbedDocument(ctx, common.Document{ID: documentID, Content: content}, chunkSize, overlapSize)
}

// ChunkAndEmbedDocument is ChunkAndEmbed that also tags the vectors with the
// document's file type.
func (e *Engine) ChunkAndEmbedDocument(ctx context.Context, doc common.Document, chunkSize, overlapSize int) ([]string, error) {
	if e.store == nil {
		return nil, common.NewEmbeddingError("chunk", e.defaultModel, errors.New("no vector store configured"))
	}
	chunks, err := ChunkWords(doc.Content, chunkSize, overlapSize)
	if err != nil {
		return nil, common.NewEmbeddingError("chunk", e.defaultModel, err)
	}
	if len(chunks) == 0 {
		return []string{}, nil
	}

	embeddings := make([]Embedding, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrent)
	err = store.ChunkRange(len(chunks), chunkBatchSize, func(start, end int) error {
		g.Go(func() error {
			res, err := e.EmbedBatch(gctx, chunks[start:end], "")
			if err != nil {
				return err
			}
			copy(embeddings[start:end], res)
			return nil
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	vectors := make([]common.EmbeddingVector, len(chunks))
	ids := make([]string, len(chunks))
	for i, emb := range embeddings {
		ids[i] = util.NewID("emb")
		vectors[i] = common.EmbeddingVector{
			ID:         ids[i],
			DocumentID: doc.ID,
			Text:       chunks[i],
			Vector:     emb.Vector,
			Model:      emb.Model,
			Dimensions: emb.Dimensions,
			Metadata: common.EmbeddingMetadata{
				ChunkIndex:  i,
				TotalChunks: len(chunks),
				Strategy:    emb.Strategy,
				Fallback:    emb.Fallback,
				FileType:    doc.FileType,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	if err := e.store.ReplaceEmbeddings(ctx, doc.ID, e.defaultModel, vectors); err != nil {
		return nil, common.NewEmbeddingError("store chunks", e.defaultModel, err)
	}
	e.log.Debug("stored chunk embeddings", "document_id", doc.ID, "chunks", len(chunks))
	return ids, nil
}

// SemanticSearch ranks stored vectors by cosine similarity to query. The
// store only narrows candidates by the filters and a cap of ten times the
// limit; scoring is an exact scan over that set.
func (e *Engine) SemanticSearch(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	if err := validate.Struct(opts); err != nil {
		return nil, common.NewEmbeddingError("search", opts.Model, fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}
	if e.store == nil {
		return nil, common.NewEmbeddingError("search", opts.Model, errors.New("no vector store configured"))
	}
	limit := opts.Limit
	if limit == 0 {
		limit = DefaultSearchLimit
	}

	start := time.Now()
	q, err := e.Embed(ctx, query, opts.Model)
	if err != nil {
		return nil, err
	}

	candidates, err := e.store.FindCandidates(ctx, store.VectorFilter{
		Model:       q.Model,
		DocumentIDs: opts.Filters.DocumentIDs,
		EntityIDs:   opts.Filters.EntityIDs,
		FileTypes:   opts.Filters.FileTypes,
		From:        opts.Filters.From,
		To:          opts.Filters.To,
		Limit:       limit * candidateMultiplier,
	})
	if err != nil {
		return nil, common.NewEmbeddingError("load candidates", q.Model, err)
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Vector) != len(q.Vector) {
			continue
		}
		sim := CosineSimilarity(q.Vector, c.Vector)
		if sim < opts.Threshold {
			continue
		}
		results = append(results, SearchResult{
			ID:         c.ID,
			Text:       c.Text,
			Similarity: sim,
			DocumentID: c.DocumentID,
			EntityID:   c.EntityID,
			Metadata:   c.Metadata,
		})
	}
	slices.SortStableFunc(results, func(a, b SearchResult) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(results) > limit {
		results = results[:limit]
	}

	trace.Record(e.tracer, trace.Event{
		Kind:     trace.EventSearch,
		Model:    q.Model,
		Count:    len(results),
		Limit:    limit,
		Duration: time.Since(start),
	})
	return results, nil
}

// DocumentSimilarity scores query against every stored chunk of a document
// and returns the best match. found is false when the document has no
// vectors for the query's model.
func (e *Engine) DocumentSimilarity(ctx context.Context, query *Embedding, documentID string) (best float64, found bool, err error) {
	if e.store == nil {
		return 0, false, nil
	}
	candidates, err := e.store.FindCandidates(ctx, store.VectorFilter{
		Model:       query.Model,
		DocumentIDs: []string{documentID},
	})
	if err != nil {
		return 0, false, common.NewEmbeddingError("load document vectors", query.Model, err)
	}
	for _, c := range candidates {
		if len(c.Vector) != len(query.Vector) {
			continue
		}
		sim := CosineSimilarity(query.Vector, c.Vector)
		if !found || sim > best {
			best = sim
			found = true
		}
	}
	return best, found, nil
}
