package graph

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/store"

	mapset "github.com/deckarep/golang-set/v2"
)

const (
	DefaultDepth             = 2
	DefaultMaxNodes          = 100
	DefaultNeighborhoodLimit = 50
)

// KnowledgeGraphQuery selects a subgraph. Without CenterNodeID the most
// connected entities are returned.
type KnowledgeGraphQuery struct {
	CenterNodeID string              `json:"center_node_id"`
	Depth        int                 `json:"depth" validate:"gte=0,lte=10"`
	MinWeight    float64             `json:"min_weight" validate:"gte=0,lte=1"`
	MaxNodes     int                 `json:"max_nodes" validate:"gte=0,lte=10000"`
	Types        []common.EntityType `json:"types"`
}

type NeighborhoodQuery struct {
	Depth             int                       `json:"depth" validate:"gte=0,lte=5"`
	Direction         store.Direction           `json:"direction" validate:"omitempty,oneof=in out both"`
	RelationshipTypes []common.RelationshipType `json:"relationship_types"`
	Limit             int                       `json:"limit" validate:"gte=0,lte=10000"`
}

type Neighborhood struct {
	Center        Node                  `json:"center"`
	Nodes         []Node                `json:"nodes"`
	Relationships []common.Relationship `json:"relationships"`
}

// GetKnowledgeGraph returns a bounded subgraph. With a center node it is a
// breadth-first expansion of at most Depth hops; otherwise the MaxNodes
// entities with the most relationships. Only edges with strength of at least
// MinWeight between two returned nodes are included.
func (s *Service) GetKnowledgeGraph(ctx context.Context, q KnowledgeGraphQuery) (res *KnowledgeGraph, err error) {
	start := time.Now()
	defer func() { s.record("knowledge_graph", start, nodeCount(res), err) }()

	if err := validate.Struct(q); err != nil {
		return nil, common.NewGraphQueryError("knowledge graph", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}
	if q.MaxNodes == 0 {
		q.MaxNodes = DefaultMaxNodes
	}

	if q.CenterNodeID == "" {
		return s.topGraph(ctx, q)
	}

	depth := q.Depth
	if depth == 0 {
		depth = DefaultDepth
	}
	ids, rels, err := s.expand(ctx, q.CenterNodeID, depth, store.DirectionBoth, nil, q.MinWeight, q.MaxNodes)
	if err != nil {
		return nil, common.NewGraphQueryError("knowledge graph", err)
	}
	nodes, err := s.nodesFor(ctx, ids, endpointKinds(rels))
	if err != nil {
		return nil, common.NewGraphQueryError("knowledge graph", err)
	}
	if len(rels) == 0 && nodes[0].Placeholder {
		return nil, common.NewGraphQueryError("knowledge graph", fmt.Errorf("node %s: %w", q.CenterNodeID, common.ErrNotFound))
	}
	if len(q.Types) > 0 {
		nodes = slices.DeleteFunc(nodes, func(n Node) bool {
			return n.ID != q.CenterNodeID && !slices.Contains(q.Types, n.Type)
		})
	}
	return assemble(nodes, rels), nil
}

func (s *Service) topGraph(ctx context.Context, q KnowledgeGraphQuery) (*KnowledgeGraph, error) {
	ranked, err := s.store.EntityDegrees(ctx, store.DegreeQuery{Types: q.Types, Limit: q.MaxNodes})
	if err != nil {
		return nil, common.NewGraphQueryError("knowledge graph", err)
	}
	nodes := make([]Node, 0, len(ranked))
	ids := make([]string, 0, len(ranked))
	for _, r := range ranked {
		nodes = append(nodes, entityNode(r.Entity))
		ids = append(ids, r.Entity.ID)
	}
	if len(ids) == 0 {
		return &KnowledgeGraph{Nodes: []Node{}, Edges: []Edge{}}, nil
	}
	rels, err := s.store.ListRelationships(ctx, store.RelationshipFilter{
		NodeIDs:     ids,
		Direction:   store.DirectionBoth,
		MinStrength: q.MinWeight,
	})
	if err != nil {
		return nil, common.NewGraphQueryError("knowledge graph", err)
	}
	return assemble(nodes, rels), nil
}

// GetNeighborhood returns the entities reachable from entityID within Depth
// hops (default 1) and the relationships connecting them.
func (s *Service) GetNeighborhood(ctx context.Context, entityID string, q NeighborhoodQuery) (res *Neighborhood, err error) {
	start := time.Now()
	defer func() {
		n := 0
		if res != nil {
			n = len(res.Nodes)
		}
		s.record("neighborhood", start, n, err)
	}()

	if err := validate.Struct(q); err != nil {
		return nil, common.NewGraphQueryError("neighborhood", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}
	if q.Depth == 0 {
		q.Depth = 1
	}
	if q.Direction == "" {
		q.Direction = store.DirectionBoth
	}
	if q.Limit == 0 {
		q.Limit = DefaultNeighborhoodLimit
	}

	ids, rels, err := s.expand(ctx, entityID, q.Depth, q.Direction, q.RelationshipTypes, 0, q.Limit+1)
	if err != nil {
		return nil, common.NewGraphQueryError("neighborhood", err)
	}
	nodes, err := s.nodesFor(ctx, ids, endpointKinds(rels))
	if err != nil {
		return nil, common.NewGraphQueryError("neighborhood", err)
	}
	if len(rels) == 0 && nodes[0].Placeholder {
		return nil, common.NewGraphQueryError("neighborhood", fmt.Errorf("entity %s: %w", entityID, common.ErrNotFound))
	}

	g := assemble(nodes, rels)
	in := mapset.NewThreadUnsafeSet[string]()
	for _, e := range g.Edges {
		in.Add(e.ID)
	}
	kept := make([]common.Relationship, 0, len(g.Edges))
	for _, r := range rels {
		if in.Contains(r.ID) {
			kept = append(kept, r)
			in.Remove(r.ID)
		}
	}

	return &Neighborhood{
		Center:        g.Nodes[0],
		Nodes:         g.Nodes[1:],
		Relationships: kept,
	}, nil
}

// expand walks breadth first from startID for at most depth hops. It stops
// admitting nodes once maxNodes are known (0 means no bound). The returned
// ids start with startID.
func (s *Service) expand(ctx context.Context, startID string, depth int, dir store.Direction, types []common.RelationshipType, minStrength float64, maxNodes int) ([]string, []common.Relationship, error) {
	visited := mapset.NewThreadUnsafeSet(startID)
	order := []string{startID}
	frontier := []string{startID}
	var rels []common.Relationship

	full := func() bool { return maxNodes > 0 && len(order) >= maxNodes }

	for hop := 0; hop < depth && len(frontier) > 0 && !full(); hop++ {
		found, err := s.store.ListRelationships(ctx, store.RelationshipFilter{
			NodeIDs:     frontier,
			Direction:   dir,
			Types:       types,
			MinStrength: minStrength,
		})
		if err != nil {
			return nil, nil, err
		}
		current := mapset.NewThreadUnsafeSet(frontier...)
		var next []string
		for _, r := range found {
			rels = append(rels, r)
			for _, n := range neighborsOf(r, current, dir) {
				if visited.Contains(n) || full() {
					continue
				}
				visited.Add(n)
				order = append(order, n)
				next = append(next, n)
			}
		}
		frontier = next
	}
	return order, rels, nil
}

func neighborsOf(r common.Relationship, from mapset.Set[string], dir store.Direction) []string {
	var out []string
	if dir != store.DirectionIn && from.Contains(r.SourceID) {
		out = append(out, r.TargetID)
	}
	if dir != store.DirectionOut && from.Contains(r.TargetID) {
		out = append(out, r.SourceID)
	}
	return out
}

func nodeCount(g *KnowledgeGraph) int {
	if g == nil {
		return 0
	}
	return len(g.Nodes)
}
