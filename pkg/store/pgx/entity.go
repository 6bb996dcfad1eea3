package pgx

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/kgraph/internal/util"
	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

const entityColumns = `id, document_id, text, type, start_pos, end_pos, confidence, context,
    normalized_value, mentions, aliases, metadata, created_at, updated_at`

const insertEntitySQL = `
INSERT INTO entities (` + entityColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
`

const entityUpdateSet = ` DO UPDATE SET
    text = EXCLUDED.text,
    confidence = EXCLUDED.confidence,
    context = EXCLUDED.context,
    normalized_value = EXCLUDED.normalized_value,
    mentions = EXCLUDED.mentions,
    aliases = EXCLUDED.aliases,
    metadata = EXCLUDED.metadata,
    updated_at = EXCLUDED.updated_at
RETURNING ` + entityColumns

// Entities of a document are keyed by span, free-standing ones by id.
const (
	upsertEntityBySpanSQL = insertEntitySQL +
		`ON CONFLICT (document_id, type, start_pos, end_pos) WHERE document_id IS NOT NULL` + entityUpdateSet
	upsertEntityByIDSQL = insertEntitySQL + `ON CONFLICT (id)` + entityUpdateSet
)

const ensureEntitiesSQL = `
INSERT INTO entities (id, text, type, confidence, metadata, created_at, updated_at)
SELECT u.id, u.id, $2, 0, $3, $4, $4
FROM unnest($1::text[]) AS u(id)
WHERE NOT EXISTS (SELECT 1 FROM documents d WHERE d.id = u.id)
ON CONFLICT (id) DO NOTHING`

func scanEntity(row pgxv5.Row) (common.Entity, error) {
	var (
		e          common.Entity
		documentID *string
		typ        string
		metadata   []byte
	)
	err := row.Scan(
		&e.ID, &documentID, &e.Text, &typ, &e.StartPos, &e.EndPos, &e.Confidence, &e.Context,
		&e.NormalizedValue, &e.Mentions, &e.Aliases, &metadata, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return common.Entity{}, err
	}
	e.DocumentID = deref(documentID)
	e.Type = common.EntityType(typ)
	if err := unmarshalJSON(metadata, &e.Metadata); err != nil {
		return common.Entity{}, err
	}
	return e, nil
}

func collectEntities(rows pgxv5.Rows) ([]common.Entity, error) {
	return pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.Entity, error) {
		return scanEntity(row)
	})
}

func upsertEntity(ctx context.Context, q querier, e common.Entity) (common.Entity, error) {
	if e.ID == "" {
		e.ID = util.NewID("ent")
	}
	if e.Aliases == nil {
		e.Aliases = []string{}
	}
	metadata, err := marshalJSON(e.Metadata)
	if err != nil {
		return common.Entity{}, err
	}
	query := upsertEntityByIDSQL
	if e.DocumentID != "" {
		query = upsertEntityBySpanSQL
	}
	return scanEntity(q.QueryRow(ctx, query,
		e.ID, nullable(e.DocumentID), util.SanitizePostgresText(e.Text), string(e.Type),
		e.StartPos, e.EndPos, e.Confidence, util.SanitizePostgresText(e.Context),
		util.SanitizePostgresText(e.NormalizedValue), e.Mentions, e.Aliases, metadata, utcNow(),
	))
}

// SaveEntities upserts entities in one transaction. An entity that matches
// a stored span keeps the stored id.
func (s *GraphDBStorage) SaveEntities(ctx context.Context, entities []common.Entity) ([]common.Entity, error) {
	if len(entities) == 0 {
		return []common.Entity{}, nil
	}
	out := make([]common.Entity, 0, len(entities))
	err := s.withTx(ctx, func(tx pgxv5.Tx) error {
		for _, e := range entities {
			saved, err := upsertEntity(ctx, tx, e)
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

func (s *GraphDBStorage) ListEntities(ctx context.Context, f store.EntityFilter) ([]common.Entity, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(f.IDs) > 0 {
		where = append(where, "id = ANY("+arg(f.IDs)+")")
	}
	if f.DocumentID != "" {
		where = append(where, "document_id = "+arg(f.DocumentID))
	}
	if len(f.Types) > 0 {
		where = append(where, "type = ANY("+arg(entityTypeStrings(f.Types))+")")
	}

	query := "SELECT " + entityColumns + " FROM entities"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id LIMIT " + arg(limitArg(f.Limit))

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	entities, err := collectEntities(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan entities: %w", err)
	}
	if len(f.IDs) > 0 {
		entities = orderByIDs(entities, f.IDs)
	}
	return entities, nil
}

// orderByIDs returns entities in the order of ids.
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

func entityTypeStrings(types []common.EntityType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

// EnsureEntities inserts placeholders for ids that are neither entities nor
// documents.
func (s *GraphDBStorage) EnsureEntities(ctx context.Context, ids []string) error {
	ids = store.DedupeStrings(ids)
	if len(ids) == 0 {
		return nil
	}
	metadata, err := marshalJSON(common.EntityMetadata{Source: common.SourcePlaceholder, Placeholder: true})
	if err != nil {
		return err
	}
	if _, err := s.conn.Exec(ctx, ensureEntitiesSQL, ids, string(common.EntityUnknown), metadata, utcNow()); err != nil {
		return fmt.Errorf("failed to ensure entities: %w", err)
	}
	return nil
}

// MergeEntities folds sourceIDs into targetID inside one transaction.
func (s *GraphDBStorage) MergeEntities(ctx context.Context, targetID string, sourceIDs []string) (common.Entity, error) {
	var merged common.Entity
	err := s.withTx(ctx, func(tx pgxv5.Tx) error {
		target, err := scanEntity(tx.QueryRow(ctx,
			"SELECT "+entityColumns+" FROM entities WHERE id = $1 FOR UPDATE", targetID))
		if err != nil {
			return notFound("entity", targetID, err)
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
		rows, err := tx.Query(ctx, "SELECT "+entityColumns+" FROM entities WHERE id = ANY($1) FOR UPDATE", ids)
		if err != nil {
			return fmt.Errorf("failed to load merge sources: %w", err)
		}
		sources, err := collectEntities(rows)
		if err != nil {
			return fmt.Errorf("failed to scan merge sources: %w", err)
		}
		sources = orderByIDs(sources, ids)
		if len(sources) != len(ids) {
			for _, id := range ids {
				if !containsEntity(sources, id) {
					return fmt.Errorf("entity %s: %w", id, common.ErrNotFound)
				}
			}
		}
		sourceSet := make(map[string]struct{}, len(sources))
		for _, src := range sources {
			sourceSet[src.ID] = struct{}{}
			store.FoldEntity(&target, src)
		}

		rows, err = tx.Query(ctx,
			"DELETE FROM relationships WHERE source_id = ANY($1) OR target_id = ANY($1) RETURNING "+relationshipColumns, ids)
		if err != nil {
			return fmt.Errorf("failed to detach relationships: %w", err)
		}
		touched, err := collectRelationships(rows)
		if err != nil {
			return fmt.Errorf("failed to scan detached relationships: %w", err)
		}
		if moved := store.RepointRelationships(touched, targetID, sourceSet); len(moved) > 0 {
			if _, err := upsertRelationships(ctx, tx, moved); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(ctx, `DELETE FROM entities WHERE id = ANY($1)`, ids); err != nil {
			return fmt.Errorf("failed to delete merged entities: %w", err)
		}
		merged, err = upsertEntity(ctx, tx, target)
		return err
	})
	if err != nil {
		return common.Entity{}, err
	}
	s.log.Info("Merged entities", "target", targetID, "sources", len(sourceIDs))
	return merged, nil
}

func containsEntity(entities []common.Entity, id string) bool {
	for _, e := range entities {
		if e.ID == id {
			return true
		}
	}
	return false
}
