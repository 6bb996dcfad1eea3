package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/store"
)

func ev(doc string, pos int, conf float64) []common.Evidence {
	return []common.Evidence{{DocumentID: doc, Position: pos, Confidence: conf}}
}

func TestSaveEntitiesKeepsIDForSameSpan(t *testing.T) {
	ctx := context.Background()
	s := New()
	first, err := s.SaveEntities(ctx, []common.Entity{{Text: "Acme Corp", Type: common.EntityOrganization, DocumentID: "d1", StartPos: 0, EndPos: 9}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	second, err := s.SaveEntities(ctx, []common.Entity{{Text: "Acme Corp", Type: common.EntityOrganization, DocumentID: "d1", StartPos: 0, EndPos: 9, Confidence: 0.9}})
	if err != nil {
		t.Fatalf("save again: %v", err)
	}
	if first[0].ID == "" || first[0].ID != second[0].ID {
		t.Fatalf("expected stable id, got %q and %q", first[0].ID, second[0].ID)
	}
	all, _ := s.ListEntities(ctx, store.EntityFilter{})
	if len(all) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(all))
	}
}

func TestUpsertRelationshipsConfidenceMerge(t *testing.T) {
	ctx := context.Background()
	s := New()

	weak := common.Relationship{SourceID: "a", TargetID: "b", Type: common.RelRelatesTo, Confidence: 0.4, Strength: 0.4, Evidence: ev("d1", 1, 0.4)}
	strong := weak
	strong.Confidence, strong.Strength, strong.Evidence = 0.8, 0.9, ev("d2", 5, 0.8)

	if _, err := s.UpsertRelationships(ctx, []common.Relationship{strong}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	out, err := s.UpsertRelationships(ctx, []common.Relationship{weak})
	if err != nil {
		t.Fatalf("upsert weak: %v", err)
	}
	if out[0].Confidence != 0.8 || out[0].Strength != 0.9 {
		t.Fatalf("weaker write overwrote stronger row: %+v", out[0])
	}
	if len(out[0].Evidence) != 2 || out[0].Metadata.EvidenceCount != 2 {
		t.Fatalf("evidence not unioned: %+v", out[0].Evidence)
	}

	all, _ := s.ListRelationships(ctx, store.RelationshipFilter{})
	if len(all) != 1 {
		t.Fatalf("expected a single row per key, got %d", len(all))
	}
}

func TestUpsertRejectsMissingEvidence(t *testing.T) {
	s := New()
	_, err := s.UpsertRelationships(context.Background(), []common.Relationship{{SourceID: "a", TargetID: "b", Type: common.RelPartOf}})
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestConcurrentUpsertsKeepHighestConfidence(t *testing.T) {
	ctx := context.Background()
	s := New()
	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conf := float64(i) / 20
			_, _ = s.UpsertRelationships(ctx, []common.Relationship{{
				SourceID: "a", TargetID: "b", Type: common.RelRelatesTo,
				Confidence: conf, Strength: conf, Evidence: ev("d", i, conf),
			}})
		}(i)
	}
	wg.Wait()
	all, _ := s.ListRelationships(ctx, store.RelationshipFilter{})
	if len(all) != 1 || all[0].Confidence != 1 {
		t.Fatalf("unexpected result after concurrent upserts: %+v", all)
	}
	if len(all[0].Evidence) != 20 {
		t.Fatalf("evidence lost: %d", len(all[0].Evidence))
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.SaveDocument(ctx, common.Document{ID: "d1", Content: "x"})
	_ = s.SaveDocument(ctx, common.Document{ID: "d2", Content: "y"})
	_, _ = s.SaveEntities(ctx, []common.Entity{
		{Text: "A", Type: common.EntityConcept, DocumentID: "d1", StartPos: 0, EndPos: 1},
		{Text: "B", Type: common.EntityConcept, DocumentID: "d2", StartPos: 0, EndPos: 1},
	})
	_ = s.SaveEmbeddings(ctx, []common.EmbeddingVector{{DocumentID: "d1"}, {DocumentID: "d2"}})
	_, _ = s.UpsertRelationships(ctx, []common.Relationship{{SourceID: "x", TargetID: "d1", Type: common.RelMentionedIn, TargetType: common.NodeDocument, Evidence: ev("d1", 0, 1)}})

	if err := s.DeleteDocument(ctx, "d1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ents, _ := s.ListEntities(ctx, store.EntityFilter{})
	if len(ents) != 1 || ents[0].DocumentID != "d2" {
		t.Fatalf("entities not cascaded: %+v", ents)
	}
	vecs, _ := s.FindCandidates(ctx, store.VectorFilter{})
	if len(vecs) != 1 || vecs[0].DocumentID != "d2" {
		t.Fatalf("vectors not cascaded: %+v", vecs)
	}
	rels, _ := s.ListRelationships(ctx, store.RelationshipFilter{})
	if len(rels) != 1 {
		t.Fatalf("relationships must survive document deletion, got %d", len(rels))
	}
	if err := s.DeleteDocument(ctx, "d1"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMergeEntities(t *testing.T) {
	ctx := context.Background()
	s := New()
	saved, _ := s.SaveEntities(ctx, []common.Entity{
		{Text: "IBM", Type: common.EntityOrganization, DocumentID: "d1", StartPos: 0, EndPos: 3, Mentions: 1},
		{Text: "International Business Machines", Type: common.EntityOrganization, DocumentID: "d2", StartPos: 0, EndPos: 31, Mentions: 2},
		{Text: "Armonk", Type: common.EntityLocation, DocumentID: "d2", StartPos: 40, EndPos: 46},
	})
	target, source, city := saved[0].ID, saved[1].ID, saved[2].ID
	_, _ = s.UpsertRelationships(ctx, []common.Relationship{
		{SourceID: source, TargetID: city, Type: common.RelOrgLocatedIn, Confidence: 0.9, Evidence: ev("d2", 0, 0.9)},
		{SourceID: source, TargetID: target, Type: common.RelRelatesTo, Confidence: 0.5, Evidence: ev("d2", 1, 0.5)},
	})

	merged, err := s.MergeEntities(ctx, target, []string{source})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(merged.Aliases) != 1 || merged.Aliases[0] != "International Business Machines" {
		t.Fatalf("aliases = %v", merged.Aliases)
	}
	if merged.Mentions != 3 {
		t.Fatalf("mentions = %d", merged.Mentions)
	}
	rels, _ := s.ListRelationships(ctx, store.RelationshipFilter{})
	if len(rels) != 1 || rels[0].SourceID != target || rels[0].TargetID != city {
		t.Fatalf("relationships not re-pointed: %+v", rels)
	}
	if _, err := s.MergeEntities(ctx, target, []string{source}); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for removed source, got %v", err)
	}
}

func TestEnsureEntitiesCreatesPlaceholders(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.SaveDocument(ctx, common.Document{ID: "doc"})
	if err := s.EnsureEntities(ctx, []string{"ghost", "ghost", "doc"}); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	ents, _ := s.ListEntities(ctx, store.EntityFilter{})
	if len(ents) != 1 || !ents[0].Metadata.Placeholder || ents[0].Type != common.EntityUnknown {
		t.Fatalf("unexpected entities: %+v", ents)
	}
}

func TestEntityDegreesRanking(t *testing.T) {
	ctx := context.Background()
	s := New()
	saved, _ := s.SaveEntities(ctx, []common.Entity{
		{ID: "a", Text: "A", Type: common.EntityPerson},
		{ID: "b", Text: "B", Type: common.EntityPerson},
		{ID: "c", Text: "C", Type: common.EntityConcept},
	})
	if len(saved) != 3 {
		t.Fatalf("save failed")
	}
	_, _ = s.UpsertRelationships(ctx, []common.Relationship{
		{SourceID: "a", TargetID: "b", Type: common.RelRelatesTo, Evidence: ev("d", 0, 1)},
		{SourceID: "a", TargetID: "c", Type: common.RelRelatesTo, Evidence: ev("d", 1, 1)},
	})
	got, _ := s.EntityDegrees(ctx, store.DegreeQuery{Limit: 2})
	if len(got) != 2 || got[0].Entity.ID != "a" || got[0].Degree != 2 || got[1].Entity.ID != "b" {
		t.Fatalf("unexpected ranking: %+v", got)
	}
	onlyConcepts, _ := s.EntityDegrees(ctx, store.DegreeQuery{Types: []common.EntityType{common.EntityConcept}})
	if len(onlyConcepts) != 1 || onlyConcepts[0].Entity.ID != "c" {
		t.Fatalf("type filter ignored: %+v", onlyConcepts)
	}
}

func TestReplaceEmbeddingsKeepsOtherModels(t *testing.T) {
	ctx := context.Background()
	s := New()
	err := s.SaveEmbeddings(ctx, []common.EmbeddingVector{
		{ID: "old_a", DocumentID: "d1", Model: "a", Vector: []float32{1, 0}},
		{ID: "old_b", DocumentID: "d1", Model: "b", Vector: []float32{0, 1}},
		{ID: "other", DocumentID: "d2", Model: "a", Vector: []float32{1, 0}},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	err = s.ReplaceEmbeddings(ctx, "d1", "a", []common.EmbeddingVector{
		{ID: "new_a", DocumentID: "d1", Model: "a", Vector: []float32{0.6, 0.8}},
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, err := s.FindCandidates(ctx, store.VectorFilter{})
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	ids := make(map[string]bool, len(got))
	for _, v := range got {
		ids[v.ID] = true
	}
	if len(got) != 3 || !ids["old_b"] || !ids["other"] || !ids["new_a"] || ids["old_a"] {
		t.Fatalf("unexpected vectors after replace: %v", ids)
	}
}
