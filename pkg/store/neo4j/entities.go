package neo4j

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/kgraph/internal/util"
	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/store"

	neo4jdriver "github.com/neo4j/neo4j-go-driver/v4/neo4j"
)

// Entities of a document are merged on their span, free-standing ones on id.
const (
	mergeEntityBySpan = `
MERGE (e:Entity {document_id: $document_id, type: $type, start_pos: $start_pos, end_pos: $end_pos})
ON CREATE SET e.id = $id, e.created_at = $now
SET e += $props
RETURN properties(e) AS e`

	mergeEntityByID = `
MERGE (e:Entity {id: $id})
ON CREATE SET e.created_at = $now, e.start_pos = $start_pos, e.end_pos = $end_pos
SET e += $props
RETURN properties(e) AS e`

	ensureEntities = `
UNWIND $ids AS id
OPTIONAL MATCH (d:Document {id: id})
WITH id, d WHERE d IS NULL
MERGE (e:Entity {id: id})
ON CREATE SET e += $placeholder, e.text = id, e.created_at = $now, e.updated_at = $now`
)

func mergeEntity(tx neo4jdriver.Transaction, e common.Entity) (common.Entity, error) {
	now := utcNow()
	if e.ID == "" {
		e.ID = util.NewID("ent")
	}
	props, err := entityProps(e, now)
	if err != nil {
		return common.Entity{}, err
	}
	params := map[string]any{
		"id":        e.ID,
		"type":      string(e.Type),
		"start_pos": int64(e.StartPos),
		"end_pos":   int64(e.EndPos),
		"now":       now,
		"props":     props,
	}
	cypher := mergeEntityByID
	if e.DocumentID != "" {
		cypher = mergeEntityBySpan
		params["document_id"] = e.DocumentID
	}
	records, err := collect(tx, cypher, params)
	if err != nil {
		return common.Entity{}, err
	}
	if len(records) != 1 {
		return common.Entity{}, fmt.Errorf("entity merge returned %d rows", len(records))
	}
	return entityFromRecord(records[0], "e")
}

func entityFromRecord(rec *neo4jdriver.Record, key string) (common.Entity, error) {
	v, _ := rec.Get(key)
	props, _ := v.(map[string]any)
	return entityFromProps(props)
}

func (s *GraphStorage) SaveEntities(ctx context.Context, entities []common.Entity) ([]common.Entity, error) {
	if len(entities) == 0 {
		return []common.Entity{}, nil
	}
	out := make([]common.Entity, 0, len(entities))
	err := s.write(ctx, func(tx neo4jdriver.Transaction) error {
		out = out[:0]
		for _, e := range entities {
			saved, err := mergeEntity(tx, e)
			if err != nil {
				return fmt.Errorf("failed to save entity %q: %w", e.Text, err)
			}
			out = append(out, saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("Saved entities", "count", len(out))
	return out, nil
}

// entityQuery builds the cypher for ListEntities.
func entityQuery(f store.EntityFilter) (string, map[string]any) {
	var where []string
	params := map[string]any{}
	if len(f.IDs) > 0 {
		where = append(where, "e.id IN $ids")
		params["ids"] = f.IDs
	}
	if f.DocumentID != "" {
		where = append(where, "e.document_id = $document_id")
		params["document_id"] = f.DocumentID
	}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		where = append(where, "e.type IN $types")
		params["types"] = types
	}
	var b strings.Builder
	b.WriteString("MATCH (e:Entity)")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" RETURN properties(e) AS e ORDER BY e.created_at, e.id")
	if f.Limit > 0 {
		b.WriteString(" LIMIT $limit")
		params["limit"] = int64(f.Limit)
	}
	return b.String(), params
}

func (s *GraphStorage) ListEntities(ctx context.Context, f store.EntityFilter) ([]common.Entity, error) {
	cypher, params := entityQuery(f)
	var entities []common.Entity
	err := s.read(ctx, func(tx neo4jdriver.Transaction) error {
		records, err := collect(tx, cypher, params)
		if err != nil {
			return err
		}
		entities = make([]common.Entity, 0, len(records))
		for _, rec := range records {
			e, err := entityFromRecord(rec, "e")
			if err != nil {
				return err
			}
			entities = append(entities, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	if len(f.IDs) > 0 {
		entities = orderByIDs(entities, f.IDs)
	}
	return entities, nil
}

func orderByIDs(entities []common.Entity, ids []string) []common.Entity {
	byID := make(map[string]common.Entity, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
	}
	out := make([]common.Entity, 0, len(entities))
	for _, id := range store.DedupeStrings(ids) {
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

func placeholderProps() (map[string]any, error) {
	props, err := entityProps(common.Entity{
		Type:     common.EntityUnknown,
		Metadata: common.EntityMetadata{Source: common.SourcePlaceholder, Placeholder: true},
	}, utcNow())
	if err != nil {
		return nil, err
	}
	props["start_pos"] = int64(0)
	props["end_pos"] = int64(0)
	delete(props, "updated_at")
	return props, nil
}

func (s *GraphStorage) EnsureEntities(ctx context.Context, ids []string) error {
	ids = store.DedupeStrings(ids)
	if len(ids) == 0 {
		return nil
	}
	placeholder, err := placeholderProps()
	if err != nil {
		return err
	}
	err = s.write(ctx, func(tx neo4jdriver.Transaction) error {
		_, err := exec(tx, ensureEntities, map[string]any{
			"ids":         ids,
			"placeholder": placeholder,
			"now":         utcNow(),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to ensure entities: %w", err)
	}
	return nil
}

// DeleteDocumentEntities removes the entities of a document with their
// relationships.
func (s *GraphStorage) DeleteDocumentEntities(ctx context.Context, documentID string) error {
	err := s.write(ctx, func(tx neo4jdriver.Transaction) error {
		_, err := exec(tx, `MATCH (e:Entity {document_id: $id}) DETACH DELETE e`, map[string]any{"id": documentID})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete entities of %s: %w", documentID, err)
	}
	return nil
}

// MergeEntities folds sourceIDs into targetID in one write transaction.
func (s *GraphStorage) MergeEntities(ctx context.Context, targetID string, sourceIDs []string) (common.Entity, error) {
	var merged common.Entity
	err := s.write(ctx, func(tx neo4jdriver.Transaction) error {
		records, err := collect(tx, `MATCH (e:Entity {id: $id}) RETURN properties(e) AS e`, map[string]any{"id": targetID})
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return fmt.Errorf("entity %s: %w", targetID, common.ErrNotFound)
		}
		target, err := entityFromRecord(records[0], "e")
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(sourceIDs))
		for _, id := range store.DedupeStrings(sourceIDs) {
			if id != targetID {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			merged = target
			return nil
		}
		records, err = collect(tx, `MATCH (e:Entity) WHERE e.id IN $ids RETURN properties(e) AS e`, map[string]any{"ids": ids})
		if err != nil {
			return err
		}
		sourceSet := make(map[string]struct{}, len(records))
		sources := make([]common.Entity, 0, len(records))
		for _, rec := range records {
			e, err := entityFromRecord(rec, "e")
			if err != nil {
				return err
			}
			sources = append(sources, e)
			sourceSet[e.ID] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := sourceSet[id]; !ok {
				return fmt.Errorf("entity %s: %w", id, common.ErrNotFound)
			}
		}
		for _, src := range orderByIDs(sources, ids) {
			store.FoldEntity(&target, src)
		}

		touched, err := matchRelationships(tx,
			`MATCH (s)-[r:RELATED]->(t) WHERE s.id IN $ids OR t.id IN $ids`, map[string]any{"ids": ids})
		if err != nil {
			return err
		}
		if _, err := exec(tx, `MATCH (e:Entity) WHERE e.id IN $ids DETACH DELETE e`, map[string]any{"ids": ids}); err != nil {
			return err
		}
		for _, r := range store.CollapseRelationships(store.RepointRelationships(touched, targetID, sourceSet)) {
			if _, err := mergeRelationship(tx, r); err != nil {
				return err
			}
		}
		merged, err = mergeEntity(tx, target)
		return err
	})
	if err != nil {
		return common.Entity{}, err
	}
	s.log.Info("Merged entities", "target", targetID, "sources", len(sourceIDs))
	return merged, nil
}
