package graph

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/graph/interchange"
	"github.com/OFFIS-RIT/kgraph/pkg/store"
)

type ImportResult struct {
	Entities      int `json:"entities"`
	Relationships int `json:"relationships"`
}

// Snapshot returns every entity and relationship in the store.
func (s *Service) Snapshot(ctx context.Context) (*interchange.Graph, error) {
	entities, err := s.store.ListEntities(ctx, store.EntityFilter{})
	if err != nil {
		return nil, err
	}
	rels, err := s.store.ListRelationships(ctx, store.RelationshipFilter{})
	if err != nil {
		return nil, err
	}
	return &interchange.Graph{Entities: entities, Relationships: rels}, nil
}

// Export writes the whole graph to w in the given format.
func (s *Service) Export(ctx context.Context, format interchange.Format, w io.Writer) (err error) {
	start := time.Now()
	count := 0
	defer func() { s.record("export", start, count, err) }()

	g, err := s.Snapshot(ctx)
	if err != nil {
		return common.NewGraphQueryError("export", err)
	}
	count = len(g.Entities)
	if err := interchange.Write(w, format, g); err != nil {
		return common.NewGraphQueryError("export", err)
	}
	return nil
}

// Import reads a graph from r and merges it into the store. Entities that
// belong to a document are matched by span and may receive the id of an
// existing entity; relationship endpoints are rewritten accordingly.
// Relationships follow the usual upsert rules.
func (s *Service) Import(ctx context.Context, format interchange.Format, r io.Reader) (res *ImportResult, err error) {
	start := time.Now()
	defer func() {
		n := 0
		if res != nil {
			n = res.Entities
		}
		s.record("import", start, n, err)
	}()

	g, err := interchange.Read(r, format)
	if err != nil {
		return nil, common.NewGraphQueryError("import", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}

	ids := make(map[string]string, len(g.Entities))
	incoming := make([]common.Entity, len(g.Entities))
	for i, e := range g.Entities {
		if e.DocumentID != "" {
			e.ID = ""
		}
		e.CreatedAt, e.UpdatedAt = time.Time{}, time.Time{}
		e.Confidence = common.Clamp01(e.Confidence)
		incoming[i] = e
	}
	saved, err := s.store.SaveEntities(ctx, incoming)
	if err != nil {
		return nil, common.NewGraphQueryError("import", err)
	}
	for i, e := range saved {
		ids[g.Entities[i].ID] = e.ID
	}

	remap := func(id string, kind common.NodeKind) string {
		if kind == common.NodeDocument {
			return id
		}
		if mapped, ok := ids[id]; ok {
			return mapped
		}
		return id
	}
	var dangling []string
	rels := make([]common.Relationship, 0, len(g.Relationships))
	for _, rel := range g.Relationships {
		rel.ID = ""
		rel.CreatedAt, rel.UpdatedAt = time.Time{}, time.Time{}
		rel.SourceID = remap(rel.SourceID, rel.SourceType)
		rel.TargetID = remap(rel.TargetID, rel.TargetType)
		if rel.SourceID == rel.TargetID {
			continue
		}
		rel.Confidence = common.Clamp01(rel.Confidence)
		rel.Strength = common.Clamp01(rel.Strength)
		if len(rel.Evidence) == 0 {
			rel.Evidence = []common.Evidence{{Context: "imported", Confidence: rel.Confidence}}
		}
		if rel.SourceType != common.NodeDocument {
			dangling = append(dangling, rel.SourceID)
		}
		if rel.TargetType != common.NodeDocument {
			dangling = append(dangling, rel.TargetID)
		}
		rels = append(rels, rel)
	}
	if len(dangling) > 0 {
		if err := s.store.EnsureEntities(ctx, store.DedupeStrings(dangling)); err != nil {
			return nil, common.NewGraphQueryError("import", err)
		}
	}
	stored, err := s.store.UpsertRelationships(ctx, rels)
	if err != nil {
		return nil, common.NewGraphQueryError("import", err)
	}

	s.log.Info("Imported graph", "format", format, "entities", len(saved), "relationships", len(stored))
	return &ImportResult{Entities: len(saved), Relationships: len(stored)}, nil
}
