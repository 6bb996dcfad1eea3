package graph

import (
	"context"
	"time"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
)

type Statistics struct {
	TotalEntities      int                             `json:"total_entities"`
	TotalRelationships int                             `json:"total_relationships"`
	EntityTypes        map[common.EntityType]int       `json:"entity_types"`
	RelationshipTypes  map[common.RelationshipType]int `json:"relationship_types"`
	Density            float64                         `json:"density"`
	AverageDegree      float64                         `json:"average_degree"`
}

// density is 2E/(N(N-1)), zero for graphs with fewer than two nodes.
func density(nodes, edges int) float64 {
	if nodes < 2 {
		return 0
	}
	return 2 * float64(edges) / (float64(nodes) * float64(nodes-1))
}

func averageDegree(nodes, edges int) float64 {
	if nodes == 0 {
		return 0
	}
	return 2 * float64(edges) / float64(nodes)
}

// GetGraphStatistics returns totals and type histograms of the whole store.
func (s *Service) GetGraphStatistics(ctx context.Context) (stats *Statistics, err error) {
	start := time.Now()
	defer func() {
		n := 0
		if stats != nil {
			n = stats.TotalEntities
		}
		s.record("statistics", start, n, err)
	}()

	counts, err := s.store.Counts(ctx)
	if err != nil {
		return nil, common.NewGraphQueryError("statistics", err)
	}
	entityTypes := counts.EntityTypes
	if entityTypes == nil {
		entityTypes = map[common.EntityType]int{}
	}
	relTypes := counts.RelationshipTypes
	if relTypes == nil {
		relTypes = map[common.RelationshipType]int{}
	}
	return &Statistics{
		TotalEntities:      counts.TotalEntities,
		TotalRelationships: counts.TotalRelationships,
		EntityTypes:        entityTypes,
		RelationshipTypes:  relTypes,
		Density:            density(counts.TotalEntities, counts.TotalRelationships),
		AverageDegree:      averageDegree(counts.TotalEntities, counts.TotalRelationships),
	}, nil
}
