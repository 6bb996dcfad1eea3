package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/OFFIS-RIT/kgraph/internal/util"
	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/store"
)

type spanKey struct {
	documentID string
	typ        common.EntityType
	start, end int
}

// Store keeps the whole graph in process memory. It backs tests and the
// STORE_BACKEND=memory mode of the binaries.
//
// Store is safe for concurrent use; every method holds the lock for its whole
// duration, so relationship upserts are atomic.
type Store struct {
	mu sync.RWMutex

	documents   map[string]common.Document
	docOrder    []string
	entities    map[string]common.Entity
	entityOrder []string
	spans       map[spanKey]string

	relationships map[string]common.Relationship
	relOrder      []string
	relKeys       map[common.RelationshipKey]string

	vectors     map[string]common.EmbeddingVector
	vectorOrder []string

	now func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		documents:     make(map[string]common.Document),
		entities:      make(map[string]common.Entity),
		spans:         make(map[spanKey]string),
		relationships: make(map[string]common.Relationship),
		relKeys:       make(map[common.RelationshipKey]string),
		vectors:       make(map[string]common.EmbeddingVector),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) SaveDocument(_ context.Context, doc common.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id is empty: %w", common.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[doc.ID]; !ok {
		s.docOrder = append(s.docOrder, doc.ID)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now()
	}
	s.documents[doc.ID] = doc
	return nil
}

func (s *Store) GetDocuments(_ context.Context, ids []string) ([]common.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Document, 0, len(ids))
	for _, id := range ids {
		doc, ok := s.documents[id]
		if !ok {
			return nil, fmt.Errorf("document %s: %w", id, common.ErrNotFound)
		}
		out = append(out, doc)
	}
	return out, nil
}

func (s *Store) ListDocumentIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.docOrder), nil
}

func (s *Store) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return fmt.Errorf("document %s: %w", id, common.ErrNotFound)
	}
	delete(s.documents, id)
	s.docOrder = slices.DeleteFunc(s.docOrder, func(d string) bool { return d == id })

	s.deleteEntitiesLocked(id)
	s.deleteVectorsLocked(id)
	return nil
}

func (s *Store) DeleteDocumentEntities(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteEntitiesLocked(documentID)
	return nil
}

func (s *Store) deleteEntitiesLocked(documentID string) {
	s.entityOrder = slices.DeleteFunc(s.entityOrder, func(eid string) bool {
		e := s.entities[eid]
		if e.DocumentID != documentID {
			return false
		}
		delete(s.entities, eid)
		delete(s.spans, spanKey{e.DocumentID, e.Type, e.StartPos, e.EndPos})
		return true
	})
}

func (s *Store) SaveEntities(_ context.Context, entities []common.Entity) ([]common.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make([]common.Entity, 0, len(entities))
	for _, e := range entities {
		key := spanKey{e.DocumentID, e.Type, e.StartPos, e.EndPos}
		if existingID, ok := s.spans[key]; ok && e.DocumentID != "" {
			existing := s.entities[existingID]
			e.ID = existing.ID
			e.CreatedAt = existing.CreatedAt
		} else if _, ok := s.entities[e.ID]; ok && e.ID != "" {
			e.CreatedAt = s.entities[e.ID].CreatedAt
		} else {
			if e.ID == "" {
				e.ID = util.NewID("ent")
			}
			e.CreatedAt = now
			s.entityOrder = append(s.entityOrder, e.ID)
		}
		e.UpdatedAt = now
		s.entities[e.ID] = e
		if e.DocumentID != "" {
			s.spans[key] = e.ID
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) ListEntities(_ context.Context, f store.EntityFilter) ([]common.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Entity, 0)
	if len(f.IDs) > 0 {
		for _, id := range f.IDs {
			if e, ok := s.entities[id]; ok && matchEntity(e, f) {
				out = append(out, e)
			}
		}
	} else {
		for _, id := range s.entityOrder {
			if e := s.entities[id]; matchEntity(e, f) {
				out = append(out, e)
			}
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matchEntity(e common.Entity, f store.EntityFilter) bool {
	if f.DocumentID != "" && e.DocumentID != f.DocumentID {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, e.Type) {
		return false
	}
	return true
}

func (s *Store) EnsureEntities(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range store.DedupeStrings(ids) {
		if _, ok := s.entities[id]; ok {
			continue
		}
		if _, ok := s.documents[id]; ok {
			continue
		}
		s.entities[id] = common.PlaceholderEntity(id)
		s.entityOrder = append(s.entityOrder, id)
	}
	return nil
}

func (s *Store) MergeEntities(_ context.Context, targetID string, sourceIDs []string) (common.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.entities[targetID]
	if !ok {
		return common.Entity{}, fmt.Errorf("entity %s: %w", targetID, common.ErrNotFound)
	}
	sources := make(map[string]struct{}, len(sourceIDs))
	for _, id := range sourceIDs {
		if id == targetID {
			continue
		}
		src, ok := s.entities[id]
		if !ok {
			return common.Entity{}, fmt.Errorf("entity %s: %w", id, common.ErrNotFound)
		}
		sources[id] = struct{}{}
		store.FoldEntity(&target, src)
	}

	var touched []common.Relationship
	for _, rid := range slices.Clone(s.relOrder) {
		r := s.relationships[rid]
		_, fromSrc := sources[r.SourceID]
		_, toSrc := sources[r.TargetID]
		if !fromSrc && !toSrc {
			continue
		}
		s.deleteRelationshipLocked(rid)
		touched = append(touched, r)
	}
	s.upsertLocked(store.RepointRelationships(touched, targetID, sources))

	for id := range sources {
		e := s.entities[id]
		delete(s.entities, id)
		delete(s.spans, spanKey{e.DocumentID, e.Type, e.StartPos, e.EndPos})
	}
	s.entityOrder = slices.DeleteFunc(s.entityOrder, func(id string) bool {
		_, gone := sources[id]
		return gone
	})

	target.UpdatedAt = s.now()
	s.entities[targetID] = target
	return target, nil
}

func (s *Store) UpsertRelationships(_ context.Context, rels []common.Relationship) ([]common.Relationship, error) {
	for _, r := range rels {
		if len(r.Evidence) == 0 {
			return nil, fmt.Errorf("relationship %s has no evidence: %w", r.Key(), common.ErrInvalidInput)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(store.CollapseRelationships(rels)), nil
}

func (s *Store) upsertLocked(rels []common.Relationship) []common.Relationship {
	now := s.now()
	out := make([]common.Relationship, 0, len(rels))
	for _, r := range rels {
		if id, ok := s.relKeys[r.Key()]; ok {
			merged := common.MergeRelationship(s.relationships[id], r)
			merged.UpdatedAt = now
			s.relationships[id] = merged
			out = append(out, merged)
			continue
		}
		if r.ID == "" {
			r.ID = util.NewID("rel")
		}
		r.CreatedAt = now
		r.UpdatedAt = now
		common.SummarizeEvidence(&r)
		s.relationships[r.ID] = r
		s.relKeys[r.Key()] = r.ID
		s.relOrder = append(s.relOrder, r.ID)
		out = append(out, r)
	}
	return out
}

func (s *Store) GetRelationship(_ context.Context, id string) (common.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.relationships[id]
	if !ok {
		return common.Relationship{}, fmt.Errorf("relationship %s: %w", id, common.ErrNotFound)
	}
	return r, nil
}

func (s *Store) UpdateRelationship(_ context.Context, id string, patch store.RelationshipPatch) (common.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.relationships[id]
	if !ok {
		return common.Relationship{}, fmt.Errorf("relationship %s: %w", id, common.ErrNotFound)
	}
	oldKey := r.Key()
	store.ApplyPatch(&r, patch)
	if newKey := r.Key(); newKey != oldKey {
		if other, taken := s.relKeys[newKey]; taken && other != id {
			return common.Relationship{}, fmt.Errorf("relationship %s already exists: %w", newKey, common.ErrInvalidInput)
		}
		delete(s.relKeys, oldKey)
		s.relKeys[newKey] = id
	}
	r.UpdatedAt = s.now()
	s.relationships[id] = r
	return r, nil
}

func (s *Store) DeleteRelationship(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.relationships[id]; !ok {
		return fmt.Errorf("relationship %s: %w", id, common.ErrNotFound)
	}
	s.deleteRelationshipLocked(id)
	return nil
}

func (s *Store) deleteRelationshipLocked(id string) {
	r := s.relationships[id]
	delete(s.relationships, id)
	delete(s.relKeys, r.Key())
	s.relOrder = slices.DeleteFunc(s.relOrder, func(rid string) bool { return rid == id })
}

func (s *Store) ListRelationships(_ context.Context, f store.RelationshipFilter) ([]common.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Relationship, 0)
	for _, id := range s.relOrder {
		r := s.relationships[id]
		if !store.MatchesRelationship(r, f) {
			continue
		}
		out = append(out, r)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) EntityDegrees(_ context.Context, q store.DegreeQuery) ([]store.EntityDegree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	degree := make(map[string]int, len(s.entities))
	for _, r := range s.relationships {
		if r.SourceType != common.NodeDocument {
			degree[r.SourceID]++
		}
		if r.TargetType != common.NodeDocument {
			degree[r.TargetID]++
		}
	}
	out := make([]store.EntityDegree, 0, len(s.entities))
	for _, id := range s.entityOrder {
		e := s.entities[id]
		if len(q.Types) > 0 && !slices.Contains(q.Types, e.Type) {
			continue
		}
		out = append(out, store.EntityDegree{Entity: e, Degree: degree[id]})
	}
	slices.SortStableFunc(out, func(a, b store.EntityDegree) int {
		if c := cmp.Compare(b.Degree, a.Degree); c != 0 {
			return c
		}
		return cmp.Compare(a.Entity.ID, b.Entity.ID)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) Counts(_ context.Context) (store.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := store.Counts{
		TotalEntities:      len(s.entities),
		TotalRelationships: len(s.relationships),
		EntityTypes:        make(map[common.EntityType]int),
		RelationshipTypes:  make(map[common.RelationshipType]int),
	}
	for _, e := range s.entities {
		c.EntityTypes[e.Type]++
	}
	for _, r := range s.relationships {
		c.RelationshipTypes[r.Type]++
	}
	return c, nil
}

func (s *Store) SaveEmbeddings(_ context.Context, vectors []common.EmbeddingVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveVectorsLocked(vectors)
	return nil
}

func (s *Store) ReplaceEmbeddings(_ context.Context, documentID, model string, vectors []common.EmbeddingVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectorOrder = slices.DeleteFunc(s.vectorOrder, func(id string) bool {
		v := s.vectors[id]
		if v.DocumentID != documentID || v.Model != model {
			return false
		}
		delete(s.vectors, id)
		return true
	})
	s.saveVectorsLocked(vectors)
	return nil
}

func (s *Store) saveVectorsLocked(vectors []common.EmbeddingVector) {
	now := s.now()
	for _, v := range vectors {
		if v.ID == "" {
			v.ID = util.NewID("emb")
		}
		if _, ok := s.vectors[v.ID]; !ok {
			s.vectorOrder = append(s.vectorOrder, v.ID)
			v.CreatedAt = now
		}
		v.UpdatedAt = now
		s.vectors[v.ID] = v
	}
}

func (s *Store) FindCandidates(_ context.Context, f store.VectorFilter) ([]common.EmbeddingVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.EmbeddingVector, 0)
	for _, id := range s.vectorOrder {
		v := s.vectors[id]
		if f.Model != "" && v.Model != f.Model {
			continue
		}
		if len(f.DocumentIDs) > 0 && !slices.Contains(f.DocumentIDs, v.DocumentID) {
			continue
		}
		if len(f.EntityIDs) > 0 && !slices.Contains(f.EntityIDs, v.EntityID) {
			continue
		}
		if len(f.FileTypes) > 0 && !slices.Contains(f.FileTypes, s.fileTypeLocked(v)) {
			continue
		}
		if !f.From.IsZero() && v.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && v.CreatedAt.After(f.To) {
			continue
		}
		out = append(out, v)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) fileTypeLocked(v common.EmbeddingVector) string {
	if v.Metadata.FileType != "" {
		return v.Metadata.FileType
	}
	return s.documents[v.DocumentID].FileType
}

func (s *Store) DeleteEmbeddings(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteVectorsLocked(documentID)
	return nil
}

func (s *Store) deleteVectorsLocked(documentID string) {
	s.vectorOrder = slices.DeleteFunc(s.vectorOrder, func(id string) bool {
		if s.vectors[id].DocumentID != documentID {
			return false
		}
		delete(s.vectors, id)
		return true
	})
}
