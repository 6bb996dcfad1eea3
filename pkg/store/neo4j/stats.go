package neo4j

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/store"

	neo4jdriver "github.com/neo4j/neo4j-go-driver/v4/neo4j"
)

func degreeQuery(q store.DegreeQuery) (string, map[string]any) {
	params := map[string]any{}
	cypher := "MATCH (e:Entity)"
	if len(q.Types) > 0 {
		types := make([]string, len(q.Types))
		for i, t := range q.Types {
			types[i] = string(t)
		}
		cypher += " WHERE e.type IN $types"
		params["types"] = types
	}
	cypher += `
OPTIONAL MATCH (e)-[r:RELATED]-()
WITH e, count(r) AS degree
RETURN properties(e) AS e, degree
ORDER BY degree DESC, e.id`
	if q.Limit > 0 {
		cypher += " LIMIT $limit"
		params["limit"] = int64(q.Limit)
	}
	return cypher, params
}

func (s *GraphStorage) EntityDegrees(ctx context.Context, q store.DegreeQuery) ([]store.EntityDegree, error) {
	cypher, params := degreeQuery(q)
	var out []store.EntityDegree
	err := s.read(ctx, func(tx neo4jdriver.Transaction) error {
		records, err := collect(tx, cypher, params)
		if err != nil {
			return err
		}
		out = make([]store.EntityDegree, 0, len(records))
		for _, rec := range records {
			e, err := entityFromRecord(rec, "e")
			if err != nil {
				return err
			}
			degree, _ := rec.Get("degree")
			n, _ := degree.(int64)
			out = append(out, store.EntityDegree{Entity: e, Degree: int(n)})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to rank entities by degree: %w", err)
	}
	return out, nil
}

func (s *GraphStorage) Counts(ctx context.Context) (store.Counts, error) {
	c := store.Counts{
		EntityTypes:       make(map[common.EntityType]int),
		RelationshipTypes: make(map[common.RelationshipType]int),
	}
	err := s.read(ctx, func(tx neo4jdriver.Transaction) error {
		err := forEachCount(tx, `MATCH (e:Entity) RETURN e.type AS type, count(*) AS n`, func(typ string, n int) {
			c.EntityTypes[common.EntityType(typ)] = n
			c.TotalEntities += n
		})
		if err != nil {
			return err
		}
		return forEachCount(tx, `MATCH ()-[r:RELATED]->() RETURN r.type AS type, count(*) AS n`, func(typ string, n int) {
			c.RelationshipTypes[common.RelationshipType(typ)] = n
			c.TotalRelationships += n
		})
	})
	if err != nil {
		return store.Counts{}, fmt.Errorf("failed to count graph: %w", err)
	}
	return c, nil
}

func forEachCount(tx neo4jdriver.Transaction, cypher string, fn func(typ string, n int)) error {
	records, err := collect(tx, cypher, nil)
	if err != nil {
		return err
	}
	for _, rec := range records {
		typ, _ := rec.Get("type")
		n, _ := rec.Get("n")
		t, _ := typ.(string)
		count, _ := n.(int64)
		fn(t, int(count))
	}
	return nil
}
