package pgx

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

// Only entity endpoints add to a degree.
const entityDegreesSQL = `
WITH endpoints AS (
    SELECT source_id AS id FROM relationships WHERE source_type = 'entity'
    UNION ALL
    SELECT target_id AS id FROM relationships WHERE target_type = 'entity'
), degrees AS (
    SELECT id, count(*) AS degree FROM endpoints GROUP BY id
)
SELECT %s, COALESCE(d.degree, 0)
FROM entities e
LEFT JOIN degrees d ON d.id = e.id
%s
ORDER BY COALESCE(d.degree, 0) DESC, e.id
LIMIT $%d`

func (s *GraphDBStorage) EntityDegrees(ctx context.Context, q store.DegreeQuery) ([]store.EntityDegree, error) {
	columns := make([]string, 0, 14)
	for _, c := range strings.Split(entityColumns, ",") {
		columns = append(columns, "e."+strings.TrimSpace(c))
	}
	var (
		where string
		args  []any
	)
	if len(q.Types) > 0 {
		args = append(args, entityTypeStrings(q.Types))
		where = "WHERE e.type = ANY($1)"
	}
	args = append(args, limitArg(q.Limit))
	query := fmt.Sprintf(entityDegreesSQL, strings.Join(columns, ", "), where, len(args))

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to rank entities by degree: %w", err)
	}
	degrees, err := pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (store.EntityDegree, error) {
		var (
			d          store.EntityDegree
			documentID *string
			typ        string
			metadata   []byte
		)
		e := &d.Entity
		err := row.Scan(
			&e.ID, &documentID, &e.Text, &typ, &e.StartPos, &e.EndPos, &e.Confidence, &e.Context,
			&e.NormalizedValue, &e.Mentions, &e.Aliases, &metadata, &e.CreatedAt, &e.UpdatedAt,
			&d.Degree,
		)
		if err != nil {
			return d, err
		}
		e.DocumentID = deref(documentID)
		e.Type = common.EntityType(typ)
		return d, unmarshalJSON(metadata, &e.Metadata)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan entity degrees: %w", err)
	}
	return degrees, nil
}

func (s *GraphDBStorage) Counts(ctx context.Context) (store.Counts, error) {
	c := store.Counts{
		EntityTypes:       make(map[common.EntityType]int),
		RelationshipTypes: make(map[common.RelationshipType]int),
	}

	rows, err := s.conn.Query(ctx, `SELECT type, count(*) FROM entities GROUP BY type`)
	if err != nil {
		return store.Counts{}, fmt.Errorf("failed to count entities: %w", err)
	}
	err = forEachCount(rows, func(typ string, n int) {
		c.EntityTypes[common.EntityType(typ)] = n
		c.TotalEntities += n
	})
	if err != nil {
		return store.Counts{}, fmt.Errorf("failed to count entities: %w", err)
	}

	rows, err = s.conn.Query(ctx, `SELECT type, count(*) FROM relationships GROUP BY type`)
	if err != nil {
		return store.Counts{}, fmt.Errorf("failed to count relationships: %w", err)
	}
	err = forEachCount(rows, func(typ string, n int) {
		c.RelationshipTypes[common.RelationshipType(typ)] = n
		c.TotalRelationships += n
	})
	if err != nil {
		return store.Counts{}, fmt.Errorf("failed to count relationships: %w", err)
	}
	return c, nil
}

func forEachCount(rows pgxv5.Rows, fn func(typ string, n int)) error {
	var (
		typ string
		n   int
	)
	_, err := pgxv5.ForEachRow(rows, []any{&typ, &n}, func() error {
		fn(typ, n)
		return nil
	})
	return err
}
