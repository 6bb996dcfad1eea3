package relate

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/OFFIS-RIT/kgraph/internal/util"
	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/embed"
	"github.com/OFFIS-RIT/kgraph/pkg/logger"
	"github.com/OFFIS-RIT/kgraph/pkg/store"
	"github.com/OFFIS-RIT/kgraph/pkg/trace"
)

// Store is the persistence the builder reads documents and entities from
// and writes relationships to.
type Store interface {
	GetDocuments(ctx context.Context, ids []string) ([]common.Document, error)
	ListDocumentIDs(ctx context.Context) ([]string, error)
	ListEntities(ctx context.Context, filter store.EntityFilter) ([]common.Entity, error)
	UpsertRelationships(ctx context.Context, rels []common.Relationship) ([]common.Relationship, error)
}

// Embedder is the part of the embedding engine used for cross-document
// similarity.
type Embedder interface {
	Embed(ctx context.Context, text, model string) (*embed.Embedding, error)
	DocumentSimilarity(ctx context.Context, query *embed.Embedding, documentID string) (float64, bool, error)
}

// Result is the outcome of one Build call. Relationships are the stored
// rows, sorted by strength descending.
type Result struct {
	Relationships      []common.Relationship `json:"relationships"`
	Confidence         float64               `json:"confidence"`
	ProcessingTime     time.Duration         `json:"processing_time"`
	EntitiesProcessed  int                   `json:"entities_processed"`
	DocumentsProcessed int                   `json:"documents_processed"`
}

// Builder derives relationships from stored documents and entities.
type Builder struct {
	store    Store
	embedder Embedder
	triggers []compiledTrigger
	tracer   trace.Tracer
	log      logger.ComponentLogger
}

type NewBuilderParams struct {
	Store Store
	// Embedder may be nil, cross-document similarity is skipped then.
	Embedder Embedder
	// Triggers replaces DefaultTriggers.
	Triggers []Trigger
	Tracer   trace.Tracer
}

func NewBuilder(params NewBuilderParams) (*Builder, error) {
	triggers := params.Triggers
	if triggers == nil {
		triggers = DefaultTriggers()
	}
	compiled, err := compileTriggers(triggers)
	if err != nil {
		return nil, err
	}
	return &Builder{
		store:    params.Store,
		embedder: params.Embedder,
		triggers: compiled,
		tracer:   params.Tracer,
		log:      logger.Component("Relate"),
	}, nil
}

// Build derives relationships for documentIDs, or for every document when
// documentIDs is empty, and persists them in one atomic upsert. Any store or
// embedding failure aborts the whole call.
func (b *Builder) Build(ctx context.Context, documentIDs []string, opts Options) (*Result, error) {
	start := time.Now()
	if err := opts.validate(); err != nil {
		return nil, common.NewRelationshipBuildError("validate options", err)
	}

	ids := store.DedupeStrings(documentIDs)
	if len(ids) == 0 {
		all, err := b.store.ListDocumentIDs(ctx)
		if err != nil {
			return nil, common.NewRelationshipBuildError("list documents", err)
		}
		ids = all
	}
	docs, err := b.store.GetDocuments(ctx, ids)
	if err != nil {
		return nil, common.NewRelationshipBuildError("load documents", err)
	}

	var rels []common.Relationship
	entitiesProcessed := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, common.NewRelationshipBuildError("build", err)
		}
		entities, err := b.documentEntities(ctx, doc.ID, opts)
		if err != nil {
			return nil, err
		}
		entitiesProcessed += len(entities)

		rels = append(rels, mentionEdges(doc, entities)...)
		rels = append(rels, patternEdges(doc, entities, b.triggers)...)
		rels = append(rels, proximityEdges(doc, entities, opts.MaxDistance)...)
	}

	if opts.UseSemanticSimilarity && b.embedder != nil && len(docs) > 1 {
		similar, err := b.crossDocumentEdges(ctx, docs, opts)
		if err != nil {
			return nil, err
		}
		rels = append(rels, similar...)
	}

	rels = b.finalize(rels, opts)

	stored := []common.Relationship{}
	if len(rels) > 0 {
		stored, err = b.store.UpsertRelationships(ctx, rels)
		if err != nil {
			return nil, common.NewRelationshipBuildError("persist relationships", err)
		}
		sortByStrength(stored)
	}

	res := &Result{
		Relationships:      stored,
		Confidence:         meanConfidence(stored),
		ProcessingTime:     time.Since(start),
		EntitiesProcessed:  entitiesProcessed,
		DocumentsProcessed: len(docs),
	}

	trace.Record(b.tracer, trace.Event{
		Kind:              trace.EventRelationshipsBuilt,
		RelationshipTypes: histogram(stored),
		Count:             len(stored),
		Duration:          res.ProcessingTime,
	})
	b.log.Debug("built relationships", "documents", len(docs), "entities", entitiesProcessed, "relationships", len(stored))

	return res, nil
}

// documentEntities loads the entities of one document that pass the
// confidence floor, sorted by position and capped.
func (b *Builder) documentEntities(ctx context.Context, documentID string, opts Options) ([]common.Entity, error) {
	all, err := b.store.ListEntities(ctx, store.EntityFilter{DocumentID: documentID})
	if err != nil {
		return nil, common.NewRelationshipBuildError("load entities", err)
	}
	entities := make([]common.Entity, 0, len(all))
	for _, e := range all {
		if e.Confidence >= opts.MinConfidence {
			entities = append(entities, e)
		}
	}
	slices.SortStableFunc(entities, func(a, b common.Entity) int {
		if c := cmp.Compare(a.StartPos, b.StartPos); c != 0 {
			return c
		}
		return cmp.Compare(a.EndPos, b.EndPos)
	})
	if len(entities) > opts.MaxEntitiesPerDocument {
		b.log.Warn("entity cap applied", "document_id", documentID, "entities", len(entities), "limit", opts.MaxEntitiesPerDocument)
		trace.RecordCapApplied(b.tracer, "entities_per_document", len(entities), opts.MaxEntitiesPerDocument)
		entities = entities[:opts.MaxEntitiesPerDocument]
	}
	return entities, nil
}

// finalize collapses duplicate keys, applies the confidence floor and the
// type filter, assigns ids and sorts by strength.
func (b *Builder) finalize(rels []common.Relationship, opts Options) []common.Relationship {
	now := time.Now().UTC()
	for i := range rels {
		rels[i].Evidence = common.MergeEvidence(nil, rels[i].Evidence)
	}
	rels = store.CollapseRelationships(rels)

	out := rels[:0]
	for _, r := range rels {
		if r.Confidence < opts.MinConfidence || !opts.keeps(r.Type) {
			continue
		}
		if r.ID == "" {
			r.ID = util.NewID("rel")
		}
		r.CreatedAt, r.UpdatedAt = now, now
		common.SummarizeEvidence(&r)
		out = append(out, r)
	}
	sortByStrength(out)
	return out
}

func sortByStrength(rels []common.Relationship) {
	slices.SortStableFunc(rels, func(a, b common.Relationship) int {
		if c := cmp.Compare(b.Strength, a.Strength); c != 0 {
			return c
		}
		return cmp.Compare(a.Key().String(), b.Key().String())
	})
}

func meanConfidence(rels []common.Relationship) float64 {
	if len(rels) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range rels {
		sum += r.Confidence
	}
	return common.Clamp01(sum / float64(len(rels)))
}

func histogram(rels []common.Relationship) map[string]int {
	h := make(map[string]int)
	for _, r := range rels {
		h[string(r.Type)]++
	}
	return h
}
