// Package pipeline runs the per-document ingestion steps: extract entities,
// persist them, embed the document chunks and derive relationships.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OFFIS-RIT/kgraph/internal/util"
	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/embed"
	"github.com/OFFIS-RIT/kgraph/pkg/extract"
	"github.com/OFFIS-RIT/kgraph/pkg/logger"
	"github.com/OFFIS-RIT/kgraph/pkg/relate"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultChunkSize    = 200
	DefaultChunkOverlap = 40
	retryBackoff        = 500 * time.Millisecond
)

// Store is what the pipeline reads documents from and writes entities to.
type Store interface {
	GetDocuments(ctx context.Context, ids []string) ([]common.Document, error)
	SaveEntities(ctx context.Context, entities []common.Entity) ([]common.Entity, error)
	DeleteDocument(ctx context.Context, id string) error
}

type Options struct {
	Extract      extract.Options `json:"extract"`
	Relate       relate.Options  `json:"relate"`
	ChunkSize    int             `json:"chunk_size"`
	ChunkOverlap int             `json:"chunk_overlap"`
	// SkipEmbeddings leaves the document's vectors untouched.
	SkipEmbeddings bool `json:"skip_embeddings"`
}

func DefaultOptions() Options {
	return Options{
		Extract:      extract.DefaultOptions(),
		Relate:       relate.DefaultOptions(),
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
	}
}

// Clone returns a copy that shares no slices with o.
func (o Options) Clone() Options {
	o.Extract = o.Extract.Clone()
	o.Relate = o.Relate.Clone()
	return o
}

// DocumentResult summarizes one processed document. Err is set when the
// document failed inside a batch.
type DocumentResult struct {
	DocumentID    string        `json:"document_id"`
	Entities      int           `json:"entities"`
	Chunks        int           `json:"chunks"`
	Relationships int           `json:"relationships"`
	Duration      time.Duration `json:"duration"`
	Err           error         `json:"-"`
}

// Pipeline wires the extractor, embedding engine and relationship builder
// together. A Pipeline should be created using New.
type Pipeline struct {
	store     Store
	extractor *extract.Extractor
	engine    *embed.Engine
	builder   *relate.Builder

	parallelDocuments int
	maxRetries        int
	log               logger.ComponentLogger
}

type NewPipelineParams struct {
	Store     Store
	Extractor *extract.Extractor
	// Engine may be nil, chunk embedding is skipped then.
	Engine  *embed.Engine
	Builder *relate.Builder
	// ParallelDocuments bounds ProcessBatch, default 4.
	ParallelDocuments int
	// MaxRetries applies to the embedding step, default 3.
	MaxRetries int
}

func New(params NewPipelineParams) *Pipeline {
	parallel := params.ParallelDocuments
	if parallel <= 0 {
		parallel = 4
	}
	retries := params.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &Pipeline{
		store:             params.Store,
		extractor:         params.Extractor,
		engine:            params.Engine,
		builder:           params.Builder,
		parallelDocuments: parallel,
		maxRetries:        retries,
		log:               logger.Component("Pipeline"),
	}
}

// ProcessDocument runs every step for one stored document. Relationships
// are built for the document alone; cross-document links are left to Link.
func (p *Pipeline) ProcessDocument(ctx context.Context, documentID string, opts Options) (*DocumentResult, error) {
	start := time.Now()
	docs, err := p.store.GetDocuments(ctx, []string{documentID})
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", documentID, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("document %s: %w", documentID, common.ErrNotFound)
	}
	doc := docs[0]
	res := &DocumentResult{DocumentID: doc.ID}

	extracted, err := p.extractor.Extract(ctx, doc.Content, opts.Extract)
	if err != nil {
		return nil, err
	}
	for i := range extracted.Entities {
		extracted.Entities[i].DocumentID = doc.ID
	}
	saved, err := p.store.SaveEntities(ctx, extracted.Entities)
	if err != nil {
		return nil, fmt.Errorf("failed to save entities of %s: %w", doc.ID, err)
	}
	res.Entities = len(saved)

	if p.engine != nil && !opts.SkipEmbeddings {
		chunkSize, overlap := opts.ChunkSize, opts.ChunkOverlap
		if chunkSize <= 0 {
			chunkSize, overlap = DefaultChunkSize, DefaultChunkOverlap
		}
		ids, err := util.RetryWithContext(ctx, p.maxRetries, retryBackoff, func(ctx context.Context) ([]string, error) {
			return p.engine.ChunkAndEmbedDocument(ctx, doc, chunkSize, overlap)
		})
		if err != nil {
			return nil, err
		}
		res.Chunks = len(ids)
	}

	relOpts := opts.Relate
	relOpts.UseSemanticSimilarity = false
	built, err := p.builder.Build(ctx, []string{doc.ID}, relOpts)
	if err != nil {
		return nil, err
	}
	res.Relationships = len(built.Relationships)
	res.Duration = time.Since(start)

	p.log.Info("Processed document", "document_id", doc.ID, "entities", res.Entities, "chunks", res.Chunks, "relationships", res.Relationships, "duration", res.Duration)
	return res, nil
}

// ProcessBatch processes documents in parallel. A failing document does not
// stop the others; its error is reported in its result. The returned error
// joins all document errors and is nil when every document succeeded.
func (p *Pipeline) ProcessBatch(ctx context.Context, documentIDs []string, opts Options) ([]DocumentResult, error) {
	results := make([]DocumentResult, len(documentIDs))
	var (
		mu   sync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelDocuments)
	for i, id := range documentIDs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = DocumentResult{DocumentID: id, Err: err}
				return nil
			}
			res, err := p.ProcessDocument(gctx, id, opts)
			if err != nil {
				p.log.Error("Failed to process document", "document_id", id, "err", err)
				results[i] = DocumentResult{DocumentID: id, Err: err}
				mu.Lock()
				errs = append(errs, fmt.Errorf("document %s: %w", id, err))
				mu.Unlock()
				return nil
			}
			results[i] = *res
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, errors.Join(errs...)
}

// Link builds relationships across documentIDs, or across every document
// when documentIDs is empty, including cross-document similarity.
func (p *Pipeline) Link(ctx context.Context, documentIDs []string, opts relate.Options) (*relate.Result, error) {
	res, err := p.builder.Build(ctx, documentIDs, opts)
	if err != nil {
		return nil, err
	}
	p.log.Info("Linked documents", "documents", res.DocumentsProcessed, "relationships", len(res.Relationships))
	return res, nil
}

// DeleteDocument removes a document with its entities and embeddings.
func (p *Pipeline) DeleteDocument(ctx context.Context, documentID string) error {
	if err := p.store.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	p.log.Info("Deleted document", "document_id", documentID)
	return nil
}
