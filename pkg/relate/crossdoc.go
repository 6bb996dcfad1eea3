package relate

import (
	"context"
	"strings"

	"github.com/OFFIS-RIT/kgraph/internal/util"
	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/embed"
	"github.com/OFFIS-RIT/kgraph/pkg/trace"
)

// crossDocumentEdges compares every unordered pair of documents. The prefix
// of the first document is the query; it is scored against the stored
// chunks of the second, or against its prefix when nothing is stored.
func (b *Builder) crossDocumentEdges(ctx context.Context, docs []common.Document, opts Options) ([]common.Relationship, error) {
	if len(docs) > opts.MaxCrossDocuments {
		b.log.Warn("cross document cap applied", "documents", len(docs), "limit", opts.MaxCrossDocuments)
		trace.RecordCapApplied(b.tracer, "cross_documents", len(docs), opts.MaxCrossDocuments)
		docs = docs[:opts.MaxCrossDocuments]
	}

	prefixes := make([]string, len(docs))
	queries := make([]*embed.Embedding, len(docs))
	query := func(i int) (*embed.Embedding, error) {
		if queries[i] != nil {
			return queries[i], nil
		}
		q, err := b.embedder.Embed(ctx, prefixes[i], opts.Model)
		if err != nil {
			return nil, common.NewRelationshipBuildError("embed document prefix", err)
		}
		queries[i] = q
		return q, nil
	}
	for i, d := range docs {
		prefixes[i] = strings.TrimSpace(util.Prefix(d.Content, opts.SimilarityPrefix))
	}

	var out []common.Relationship
	for i := range docs {
		if prefixes[i] == "" {
			continue
		}
		for j := i + 1; j < len(docs); j++ {
			if prefixes[j] == "" {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, common.NewRelationshipBuildError("cross document similarity", err)
			}
			qa, err := query(i)
			if err != nil {
				return nil, err
			}
			sim, found, err := b.embedder.DocumentSimilarity(ctx, qa, docs[j].ID)
			if err != nil {
				return nil, common.NewRelationshipBuildError("score document similarity", err)
			}
			if !found {
				qb, err := query(j)
				if err != nil {
					return nil, err
				}
				sim = embed.CosineSimilarity(qa.Vector, qb.Vector)
			}
			sim = common.Clamp01(sim)
			if sim < opts.MinConfidence {
				continue
			}

			score := sim
			out = append(out, common.Relationship{
				SourceID:   docs[i].ID,
				TargetID:   docs[j].ID,
				SourceType: common.NodeDocument,
				TargetType: common.NodeDocument,
				Type:       common.RelSimilarTo,
				Confidence: sim,
				Strength:   sim,
				Evidence: []common.Evidence{{
					DocumentID: docs[i].ID,
					Context:    util.Prefix(prefixes[i], 200),
					Position:   0,
					Confidence: sim,
				}},
				Metadata: common.RelationshipMetadata{
					Kind:       common.KindSimilarity,
					Similarity: &score,
					Extra:      map[string]any{"model": qa.Model, "fallback": qa.Fallback},
				},
			})
		}
	}
	return out, nil
}
