package pgx

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/kgraph/internal/util"
	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const relationshipColumns = `id, source_id, target_id, source_type, target_type, type, confidence,
    strength, evidence, metadata, created_at, updated_at`

// upsertRelationshipsSQL writes a whole batch in one statement. On a key
// conflict the row with the higher confidence provides the values and the
// evidence lists are unioned by document and position.
const upsertRelationshipsSQL = `
INSERT INTO relationships AS rel (` + relationshipColumns + `)
SELECT r.id, r.source_id, r.target_id, r.source_type, r.target_type, r.type, r.confidence,
    r.strength, r.evidence::jsonb, r.metadata::jsonb, $11, $11
FROM unnest(
    $1::text[], $2::text[], $3::text[], $4::text[], $5::text[],
    $6::text[], $7::float8[], $8::float8[], $9::text[], $10::text[]
) AS r(id, source_id, target_id, source_type, target_type, type, confidence, strength, evidence, metadata)
ON CONFLICT (source_id, target_id, type) DO UPDATE SET
    confidence = GREATEST(rel.confidence, EXCLUDED.confidence),
    strength = CASE WHEN EXCLUDED.confidence > rel.confidence THEN EXCLUDED.strength ELSE rel.strength END,
    metadata = CASE WHEN EXCLUDED.confidence > rel.confidence THEN EXCLUDED.metadata ELSE rel.metadata END,
    evidence = (
        SELECT jsonb_agg(d.e ORDER BY d.ord)
        FROM (
            SELECT DISTINCT ON (t.e->>'document_id', t.e->>'position') t.e, t.ord
            FROM jsonb_array_elements(rel.evidence || EXCLUDED.evidence) WITH ORDINALITY AS t(e, ord)
            ORDER BY t.e->>'document_id', t.e->>'position', t.ord
        ) d
    ),
    updated_at = EXCLUDED.updated_at
RETURNING ` + relationshipColumns

const updateRelationshipSQL = `
UPDATE relationships SET
    type = $2,
    confidence = $3,
    strength = $4,
    evidence = $5,
    metadata = $6,
    updated_at = $7
WHERE id = $1
RETURNING ` + relationshipColumns

const uniqueViolation = "23505"

func scanRelationship(row pgxv5.Row) (common.Relationship, error) {
	var (
		r                      common.Relationship
		sourceType, targetType string
		typ                    string
		evidence, metadata     []byte
	)
	err := row.Scan(
		&r.ID, &r.SourceID, &r.TargetID, &sourceType, &targetType, &typ, &r.Confidence,
		&r.Strength, &evidence, &metadata, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return common.Relationship{}, err
	}
	r.SourceType = common.NodeKind(sourceType)
	r.TargetType = common.NodeKind(targetType)
	r.Type = common.RelationshipType(typ)
	if err := unmarshalJSON(evidence, &r.Evidence); err != nil {
		return common.Relationship{}, err
	}
	if err := unmarshalJSON(metadata, &r.Metadata); err != nil {
		return common.Relationship{}, err
	}
	common.SummarizeEvidence(&r)
	return r, nil
}

func collectRelationships(rows pgxv5.Rows) ([]common.Relationship, error) {
	return pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.Relationship, error) {
		return scanRelationship(row)
	})
}

func upsertRelationships(ctx context.Context, q querier, rels []common.Relationship) ([]common.Relationship, error) {
	rels = store.CollapseRelationships(rels)
	n := len(rels)
	var (
		ids, sources, targets     = make([]string, n), make([]string, n), make([]string, n)
		sourceTypes, targetTypes  = make([]string, n), make([]string, n)
		types, evidence, metadata = make([]string, n), make([]string, n), make([]string, n)
		confidences, strengths    = make([]float64, n), make([]float64, n)
	)
	for i, r := range rels {
		if r.ID == "" {
			r.ID = util.NewID("rel")
		}
		if r.SourceType == "" {
			r.SourceType = common.NodeEntity
		}
		if r.TargetType == "" {
			r.TargetType = common.NodeEntity
		}
		common.SummarizeEvidence(&r)
		ev, err := marshalJSON(r.Evidence)
		if err != nil {
			return nil, err
		}
		meta, err := marshalJSON(r.Metadata)
		if err != nil {
			return nil, err
		}
		ids[i], sources[i], targets[i] = r.ID, r.SourceID, r.TargetID
		sourceTypes[i], targetTypes[i] = string(r.SourceType), string(r.TargetType)
		types[i], evidence[i], metadata[i] = string(r.Type), util.SanitizePostgresText(string(ev)), string(meta)
		confidences[i], strengths[i] = common.Clamp01(r.Confidence), common.Clamp01(r.Strength)
	}

	rows, err := q.Query(ctx, upsertRelationshipsSQL,
		ids, sources, targets, sourceTypes, targetTypes, types, confidences, strengths, evidence, metadata, utcNow())
	if err != nil {
		return nil, fmt.Errorf("failed to upsert relationships: %w", err)
	}
	stored, err := collectRelationships(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert relationships: %w", err)
	}
	return stored, nil
}

// UpsertRelationships writes rels in one atomic statement.
func (s *GraphDBStorage) UpsertRelationships(ctx context.Context, rels []common.Relationship) ([]common.Relationship, error) {
	if len(rels) == 0 {
		return []common.Relationship{}, nil
	}
	for _, r := range rels {
		if len(r.Evidence) == 0 {
			return nil, fmt.Errorf("relationship %s has no evidence: %w", r.Key(), common.ErrInvalidInput)
		}
	}
	stored, err := upsertRelationships(ctx, s.conn, rels)
	if err != nil {
		return nil, err
	}
	s.log.Debug("Upserted relationships", "count", len(stored))
	return stored, nil
}

func (s *GraphDBStorage) GetRelationship(ctx context.Context, id string) (common.Relationship, error) {
	r, err := scanRelationship(s.conn.QueryRow(ctx,
		"SELECT "+relationshipColumns+" FROM relationships WHERE id = $1", id))
	if err != nil {
		return common.Relationship{}, notFound("relationship", id, err)
	}
	return r, nil
}

func (s *GraphDBStorage) UpdateRelationship(ctx context.Context, id string, patch store.RelationshipPatch) (common.Relationship, error) {
	var updated common.Relationship
	err := s.withTx(ctx, func(tx pgxv5.Tx) error {
		r, err := scanRelationship(tx.QueryRow(ctx,
			"SELECT "+relationshipColumns+" FROM relationships WHERE id = $1 FOR UPDATE", id))
		if err != nil {
			return notFound("relationship", id, err)
		}
		store.ApplyPatch(&r, patch)
		evidence, err := marshalJSON(r.Evidence)
		if err != nil {
			return err
		}
		metadata, err := marshalJSON(r.Metadata)
		if err != nil {
			return err
		}
		updated, err = scanRelationship(tx.QueryRow(ctx, updateRelationshipSQL,
			id, string(r.Type), r.Confidence, r.Strength, evidence, metadata, utcNow()))
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("relationship %s already exists: %w", r.Key(), common.ErrInvalidInput)
			}
			return fmt.Errorf("failed to update relationship %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return common.Relationship{}, err
	}
	return updated, nil
}

func (s *GraphDBStorage) DeleteRelationship(ctx context.Context, id string) error {
	tag, err := s.conn.Exec(ctx, `DELETE FROM relationships WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete relationship %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("relationship %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func (s *GraphDBStorage) ListRelationships(ctx context.Context, f store.RelationshipFilter) ([]common.Relationship, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(f.NodeIDs) > 0 {
		nodes := arg(f.NodeIDs)
		switch f.Direction {
		case store.DirectionOut:
			where = append(where, "source_id = ANY("+nodes+")")
		case store.DirectionIn:
			where = append(where, "target_id = ANY("+nodes+")")
		default:
			where = append(where, "(source_id = ANY("+nodes+") OR target_id = ANY("+nodes+"))")
		}
	}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		where = append(where, "type = ANY("+arg(types)+")")
	}
	if f.MinStrength > 0 {
		where = append(where, "strength >= "+arg(f.MinStrength))
	}

	query := "SELECT " + relationshipColumns + " FROM relationships"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id LIMIT " + arg(limitArg(f.Limit))

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	rels, err := collectRelationships(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan relationships: %w", err)
	}
	return rels, nil
}
