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

const returnRelationship = ` RETURN properties(r) AS r, s.id AS source, t.id AS target`

// mergeEdge takes the key slot. Endpoints that do not exist yet become
// placeholder nodes. Neo4j cannot put a uniqueness constraint on a
// relationship, so both endpoints are write locked before the edge MERGE.
// A concurrent writer of the same slot blocks until commit and then
// matches the edge instead of creating a second one.
const mergeEdge = `
MERGE (s:%s {id: $source})
ON CREATE SET s += $source_placeholder
MERGE (t:%s {id: $target})
ON CREATE SET t += $target_placeholder
SET s._lock = true, t._lock = true
MERGE (s)-[r:RELATED {type: $type}]->(t)
ON CREATE SET r.id = $id, r.created_at = $now
REMOVE s._lock, t._lock` + returnRelationship

const setEdge = `
MATCH (s)-[r:RELATED {id: $id}]->(t)
SET r += $props` + returnRelationship

func matchRelationships(tx neo4jdriver.Transaction, match string, params map[string]any) ([]common.Relationship, error) {
	records, err := collect(tx, match+returnRelationship, params)
	if err != nil {
		return nil, err
	}
	rels := make([]common.Relationship, 0, len(records))
	for _, rec := range records {
		r, _, err := relationshipFromRecord(rec)
		if err != nil {
			return nil, err
		}
		rels = append(rels, r)
	}
	return rels, nil
}

func relationshipFromRecord(rec *neo4jdriver.Record) (common.Relationship, bool, error) {
	v, _ := rec.Get("r")
	props, _ := v.(map[string]any)
	source, _ := rec.Get("source")
	target, _ := rec.Get("target")
	sourceID, _ := source.(string)
	targetID, _ := target.(string)
	return relationshipFromProps(props, sourceID, targetID)
}

func endpointPlaceholder(kind common.NodeKind) (map[string]any, error) {
	if kind == common.NodeDocument {
		return map[string]any{}, nil
	}
	return placeholderProps()
}

// mergeRelationship writes r onto its key slot, resolving against the
// stored edge with the higher confidence rule.
func mergeRelationship(tx neo4jdriver.Transaction, r common.Relationship) (common.Relationship, error) {
	now := utcNow()
	if r.SourceType == "" {
		r.SourceType = common.NodeEntity
	}
	if r.TargetType == "" {
		r.TargetType = common.NodeEntity
	}
	if r.ID == "" {
		r.ID = util.NewID("rel")
	}
	sourcePlaceholder, err := endpointPlaceholder(r.SourceType)
	if err != nil {
		return common.Relationship{}, err
	}
	targetPlaceholder, err := endpointPlaceholder(r.TargetType)
	if err != nil {
		return common.Relationship{}, err
	}
	sourcePlaceholder["text"], targetPlaceholder["text"] = r.SourceID, r.TargetID
	if r.SourceType == common.NodeDocument {
		delete(sourcePlaceholder, "text")
	}
	if r.TargetType == common.NodeDocument {
		delete(targetPlaceholder, "text")
	}

	records, err := collect(tx, fmt.Sprintf(mergeEdge, label(r.SourceType), label(r.TargetType)), map[string]any{
		"source":             r.SourceID,
		"target":             r.TargetID,
		"source_placeholder": sourcePlaceholder,
		"target_placeholder": targetPlaceholder,
		"type":               string(r.Type),
		"id":                 r.ID,
		"now":                now,
	})
	if err != nil {
		return common.Relationship{}, err
	}
	if len(records) != 1 {
		return common.Relationship{}, fmt.Errorf("relationship merge returned %d rows", len(records))
	}
	existing, found, err := relationshipFromRecord(records[0])
	if err != nil {
		return common.Relationship{}, err
	}
	if found {
		r = common.MergeRelationship(existing, r)
	} else {
		r.ID, r.CreatedAt = existing.ID, existing.CreatedAt
		common.SummarizeEvidence(&r)
	}
	return setRelationship(tx, r)
}

func setRelationship(tx neo4jdriver.Transaction, r common.Relationship) (common.Relationship, error) {
	props, err := relationshipProps(r, utcNow())
	if err != nil {
		return common.Relationship{}, err
	}
	records, err := collect(tx, setEdge, map[string]any{"id": r.ID, "props": props})
	if err != nil {
		return common.Relationship{}, err
	}
	if len(records) == 0 {
		return common.Relationship{}, fmt.Errorf("relationship %s: %w", r.ID, common.ErrNotFound)
	}
	stored, _, err := relationshipFromRecord(records[0])
	return stored, err
}

// UpsertRelationships writes rels in one write transaction.
func (s *GraphStorage) UpsertRelationships(ctx context.Context, rels []common.Relationship) ([]common.Relationship, error) {
	if len(rels) == 0 {
		return []common.Relationship{}, nil
	}
	for _, r := range rels {
		if len(r.Evidence) == 0 {
			return nil, fmt.Errorf("relationship %s has no evidence: %w", r.Key(), common.ErrInvalidInput)
		}
	}
	collapsed := store.CollapseRelationships(rels)
	var stored []common.Relationship
	err := s.write(ctx, func(tx neo4jdriver.Transaction) error {
		stored = make([]common.Relationship, 0, len(collapsed))
		for _, r := range collapsed {
			saved, err := mergeRelationship(tx, r)
			if err != nil {
				return fmt.Errorf("failed to upsert relationship %s: %w", r.Key(), err)
			}
			stored = append(stored, saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("Upserted relationships", "count", len(stored))
	return stored, nil
}

func (s *GraphStorage) GetRelationship(ctx context.Context, id string) (common.Relationship, error) {
	var rels []common.Relationship
	err := s.read(ctx, func(tx neo4jdriver.Transaction) error {
		var err error
		rels, err = matchRelationships(tx, `MATCH (s)-[r:RELATED {id: $id}]->(t)`, map[string]any{"id": id})
		return err
	})
	if err != nil {
		return common.Relationship{}, fmt.Errorf("failed to load relationship %s: %w", id, err)
	}
	if len(rels) == 0 {
		return common.Relationship{}, fmt.Errorf("relationship %s: %w", id, common.ErrNotFound)
	}
	return rels[0], nil
}

// UpdateRelationship applies patch. A type change moves the edge to a new
// key slot, which must be free.
func (s *GraphStorage) UpdateRelationship(ctx context.Context, id string, patch store.RelationshipPatch) (common.Relationship, error) {
	var updated common.Relationship
	err := s.write(ctx, func(tx neo4jdriver.Transaction) error {
		rels, err := matchRelationships(tx, `MATCH (s)-[r:RELATED {id: $id}]->(t)`, map[string]any{"id": id})
		if err != nil {
			return err
		}
		if len(rels) == 0 {
			return fmt.Errorf("relationship %s: %w", id, common.ErrNotFound)
		}
		r := rels[0]
		oldType := r.Type
		store.ApplyPatch(&r, patch)

		if r.Type != oldType {
			taken, err := matchRelationships(tx,
				`MATCH (s {id: $source})-[r:RELATED {type: $type}]->(t {id: $target})`,
				map[string]any{"source": r.SourceID, "target": r.TargetID, "type": string(r.Type)})
			if err != nil {
				return err
			}
			if len(taken) > 0 {
				return fmt.Errorf("relationship %s already exists: %w", r.Key(), common.ErrInvalidInput)
			}
			// The type is part of the edge identity, so the edge is recreated.
			if _, err := exec(tx, `MATCH ()-[r:RELATED {id: $id}]->() DELETE r`, map[string]any{"id": id}); err != nil {
				return err
			}
			updated, err = mergeRelationship(tx, r)
			return err
		}
		updated, err = setRelationship(tx, r)
		return err
	})
	if err != nil {
		return common.Relationship{}, err
	}
	return updated, nil
}

func (s *GraphStorage) DeleteRelationship(ctx context.Context, id string) error {
	var deleted int
	err := s.write(ctx, func(tx neo4jdriver.Transaction) error {
		summary, err := exec(tx, `MATCH ()-[r:RELATED {id: $id}]->() DELETE r`, map[string]any{"id": id})
		if err != nil {
			return err
		}
		deleted = summary.Counters().RelationshipsDeleted()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete relationship %s: %w", id, err)
	}
	if deleted == 0 {
		return fmt.Errorf("relationship %s: %w", id, common.ErrNotFound)
	}
	return nil
}

// relationshipQuery builds the cypher for ListRelationships.
func relationshipQuery(f store.RelationshipFilter) (string, map[string]any) {
	var where []string
	params := map[string]any{}
	if len(f.NodeIDs) > 0 {
		params["nodes"] = f.NodeIDs
		switch f.Direction {
		case store.DirectionOut:
			where = append(where, "s.id IN $nodes")
		case store.DirectionIn:
			where = append(where, "t.id IN $nodes")
		default:
			where = append(where, "(s.id IN $nodes OR t.id IN $nodes)")
		}
	}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		where = append(where, "r.type IN $types")
		params["types"] = types
	}
	if f.MinStrength > 0 {
		where = append(where, "r.strength >= $min_strength")
		params["min_strength"] = f.MinStrength
	}

	var b strings.Builder
	b.WriteString("MATCH (s)-[r:RELATED]->(t)")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" WITH s, r, t ORDER BY r.created_at, r.id")
	if f.Limit > 0 {
		b.WriteString(" LIMIT $limit")
		params["limit"] = int64(f.Limit)
	}
	return b.String(), params
}

func (s *GraphStorage) ListRelationships(ctx context.Context, f store.RelationshipFilter) ([]common.Relationship, error) {
	match, params := relationshipQuery(f)
	var rels []common.Relationship
	err := s.read(ctx, func(tx neo4jdriver.Transaction) error {
		var err error
		rels, err = matchRelationships(tx, match, params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	return rels, nil
}
