package graph

import (
	"cmp"
	"context"
	"math"
	"slices"
	"time"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/logger"
	"github.com/OFFIS-RIT/kgraph/pkg/store"
	"github.com/OFFIS-RIT/kgraph/pkg/trace"

	"github.com/go-playground/validator"
)

const (
	minNodeSize  = 10.0
	nodeSizeStep = 4.0
	maxNodeSize  = 50.0
)

var validate = validator.New()

// Node is a vertex of a returned graph. Documents and unknown relationship
// endpoints appear as nodes too.
type Node struct {
	ID          string            `json:"id"`
	Label       string            `json:"label"`
	Kind        common.NodeKind   `json:"kind"`
	Type        common.EntityType `json:"type"`
	Confidence  float64           `json:"confidence"`
	Degree      int               `json:"degree"`
	Size        float64           `json:"size"`
	Placeholder bool              `json:"placeholder,omitempty"`
	DocumentID  string            `json:"document_id,omitempty"`
}

// Edge is a relationship as seen by a graph view.
type Edge struct {
	ID         string                  `json:"id"`
	Source     string                  `json:"source"`
	Target     string                  `json:"target"`
	Type       common.RelationshipType `json:"type"`
	Weight     float64                 `json:"weight"`
	Confidence float64                 `json:"confidence"`
}

type KnowledgeGraph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Service answers structural and analytical queries over a GraphStore and
// performs relationship mutations.
type Service struct {
	store  store.GraphStore
	tracer trace.Tracer
	log    logger.ComponentLogger
}

type NewServiceParams struct {
	Store  store.GraphStore
	Tracer trace.Tracer
}

func NewService(params NewServiceParams) *Service {
	return &Service{
		store:  params.Store,
		tracer: params.Tracer,
		log:    logger.Component("Graph"),
	}
}

// NodeSize maps a connection count to a display size.
func NodeSize(degree int) float64 {
	return math.Min(maxNodeSize, minNodeSize+nodeSizeStep*math.Sqrt(float64(degree)))
}

func (s *Service) record(op string, start time.Time, count int, err error) {
	ev := trace.Event{Kind: trace.EventGraphQuery, Operation: op, Count: count, Duration: time.Since(start)}
	if err != nil {
		ev.Error = err.Error()
	}
	trace.Record(s.tracer, ev)
}

func toEdge(r common.Relationship) Edge {
	return Edge{
		ID:         r.ID,
		Source:     r.SourceID,
		Target:     r.TargetID,
		Type:       r.Type,
		Weight:     r.Strength,
		Confidence: r.Confidence,
	}
}

func entityNode(e common.Entity) Node {
	label := e.NormalizedValue
	if label == "" {
		label = e.Text
	}
	return Node{
		ID:          e.ID,
		Label:       label,
		Kind:        common.NodeEntity,
		Type:        e.Type,
		Confidence:  e.Confidence,
		Placeholder: e.Metadata.Placeholder,
		DocumentID:  e.DocumentID,
	}
}

// endpointKinds remembers for every id seen in rels whether it was used as
// a document endpoint.
func endpointKinds(rels []common.Relationship) map[string]common.NodeKind {
	kinds := make(map[string]common.NodeKind)
	for _, r := range rels {
		kinds[r.SourceID] = r.SourceType
		kinds[r.TargetID] = r.TargetType
	}
	return kinds
}

// nodesFor materializes nodes for ids. Entities come from the store,
// document endpoints become document nodes and anything else a placeholder.
func (s *Service) nodesFor(ctx context.Context, ids []string, kinds map[string]common.NodeKind) ([]Node, error) {
	if len(ids) == 0 {
		return []Node{}, nil
	}
	entities, err := s.store.ListEntities(ctx, store.EntityFilter{IDs: ids})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]common.Entity, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
	}
	out := make([]Node, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, entityNode(e))
			continue
		}
		if kinds[id] == common.NodeDocument {
			out = append(out, Node{ID: id, Label: id, Kind: common.NodeDocument, Type: common.EntityDocument, Confidence: 1})
			continue
		}
		out = append(out, entityNode(common.PlaceholderEntity(id)))
	}
	return out, nil
}

// assemble keeps the edges between nodes, sets degrees and sizes and sorts
// the result deterministically.
func assemble(nodes []Node, rels []common.Relationship) *KnowledgeGraph {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}
	seen := make(map[string]struct{}, len(rels))
	edges := make([]Edge, 0, len(rels))
	for _, r := range rels {
		si, okS := index[r.SourceID]
		ti, okT := index[r.TargetID]
		if !okS || !okT {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		nodes[si].Degree++
		nodes[ti].Degree++
		edges = append(edges, toEdge(r))
	}
	for i := range nodes {
		nodes[i].Size = NodeSize(nodes[i].Degree)
	}
	slices.SortStableFunc(edges, func(a, b Edge) int {
		if c := cmp.Compare(b.Weight, a.Weight); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return &KnowledgeGraph{Nodes: nodes, Edges: edges}
}
