package graph

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/graph/interchange"
	"github.com/OFFIS-RIT/kgraph/pkg/store"
	"github.com/OFFIS-RIT/kgraph/pkg/store/memory"
	"github.com/OFFIS-RIT/kgraph/pkg/trace"
)

func entity(id string, typ common.EntityType) common.Entity {
	return common.Entity{ID: id, Text: id, Type: typ, Confidence: 0.9}
}

func rel(src, dst string, typ common.RelationshipType, strength float64) common.Relationship {
	return common.Relationship{
		SourceID:   src,
		TargetID:   dst,
		SourceType: common.NodeEntity,
		TargetType: common.NodeEntity,
		Type:       typ,
		Confidence: strength,
		Strength:   strength,
		Evidence:   []common.Evidence{{DocumentID: "doc1", Position: 0, Confidence: strength}},
	}
}

// newTestService seeds a store with the graph
//
//	a -> b -> c -> d      e (isolated)
//	a -> d (weak)
func newTestService(t *testing.T) (*Service, *memory.Store, *trace.Recorder) {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	_, err := st.SaveEntities(ctx, []common.Entity{
		entity("a", common.EntityPerson),
		entity("b", common.EntityOrganization),
		entity("c", common.EntityPerson),
		entity("d", common.EntityLocation),
		entity("e", common.EntityConcept),
	})
	if err != nil {
		t.Fatalf("seed entities: %v", err)
	}
	_, err = st.UpsertRelationships(ctx, []common.Relationship{
		rel("a", "b", common.RelPersonWorksFor, 0.9),
		rel("b", "c", common.RelRelatesTo, 0.9),
		rel("c", "d", common.RelPersonLocatedIn, 0.9),
		rel("a", "d", common.RelRelatesTo, 0.1),
	})
	if err != nil {
		t.Fatalf("seed relationships: %v", err)
	}
	rec := trace.NewRecorder()
	return NewService(NewServiceParams{Store: st, Tracer: rec}), st, rec
}

func TestGraphStatistics(t *testing.T) {
	ctx := context.Background()

	t.Run("density", func(t *testing.T) {
		st := memory.New()
		_, _ = st.SaveEntities(ctx, []common.Entity{
			entity("a", common.EntityPerson),
			entity("b", common.EntityPerson),
			entity("c", common.EntityPerson),
			entity("d", common.EntityPerson),
		})
		_, _ = st.UpsertRelationships(ctx, []common.Relationship{
			rel("a", "b", common.RelRelatesTo, 0.8),
			rel("b", "c", common.RelRelatesTo, 0.8),
			rel("c", "d", common.RelRelatesTo, 0.8),
		})
		s := NewService(NewServiceParams{Store: st})
		stats, err := s.GetGraphStatistics(ctx)
		if err != nil {
			t.Fatalf("statistics: %v", err)
		}
		if stats.Density != 0.5 {
			t.Fatalf("density = %v, want 0.5", stats.Density)
		}
		if stats.AverageDegree != 1.5 {
			t.Fatalf("average degree = %v, want 1.5", stats.AverageDegree)
		}
		if stats.EntityTypes[common.EntityPerson] != 4 || stats.RelationshipTypes[common.RelRelatesTo] != 3 {
			t.Fatalf("unexpected histograms: %+v", stats)
		}
	})

	t.Run("empty store", func(t *testing.T) {
		s := NewService(NewServiceParams{Store: memory.New()})
		stats, err := s.GetGraphStatistics(ctx)
		if err != nil {
			t.Fatalf("statistics: %v", err)
		}
		if stats.Density != 0 || stats.AverageDegree != 0 || stats.EntityTypes == nil {
			t.Fatalf("unexpected empty statistics: %+v", stats)
		}
	})

	t.Run("single entity", func(t *testing.T) {
		if got := density(1, 0); got != 0 {
			t.Fatalf("density(1, 0) = %v", got)
		}
	})
}

func TestFindPaths(t *testing.T) {
	ctx := context.Background()
	s, _, rec := newTestService(t)

	tests := []struct {
		name      string
		src, dst  string
		query     PathQuery
		wantPaths int
		wantNodes []string
	}{
		{"shortest takes the direct edge", "a", "d", PathQuery{}, 1, []string{"a", "d"}},
		{"dijkstra prefers strong edges", "a", "d", PathQuery{Algorithm: PathDijkstra}, 1, []string{"a", "b", "c", "d"}},
		{"all paths ordered by length", "a", "d", PathQuery{Algorithm: PathAll}, 2, []string{"a", "d"}},
		{"depth bound", "a", "c", PathQuery{MaxDepth: 1, Directed: true}, 0, nil},
		{"unreachable", "a", "e", PathQuery{}, 0, nil},
		{"directed blocks reverse travel", "d", "a", PathQuery{Directed: true}, 0, nil},
		{"same node", "b", "b", PathQuery{}, 1, []string{"b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paths, err := s.FindPaths(ctx, tt.src, tt.dst, tt.query)
			if err != nil {
				t.Fatalf("find paths: %v", err)
			}
			if paths == nil {
				t.Fatalf("expected empty slice, got nil")
			}
			if len(paths) != tt.wantPaths {
				t.Fatalf("paths = %d, want %d: %+v", len(paths), tt.wantPaths, paths)
			}
			if tt.wantPaths == 0 {
				return
			}
			got := paths[0].Nodes
			if len(got) != len(tt.wantNodes) {
				t.Fatalf("nodes = %v, want %v", got, tt.wantNodes)
			}
			for i := range got {
				if got[i] != tt.wantNodes[i] {
					t.Fatalf("nodes = %v, want %v", got, tt.wantNodes)
				}
			}
			if paths[0].Length != len(paths[0].Relationships) {
				t.Fatalf("length %d does not match relationships %d", paths[0].Length, len(paths[0].Relationships))
			}
		})
	}

	if rec.Count(trace.EventGraphQuery) != len(tests) {
		t.Fatalf("expected one trace event per query, got %d", rec.Count(trace.EventGraphQuery))
	}

	_, err := s.FindPaths(ctx, "a", "d", PathQuery{Algorithm: "astar"})
	if !errors.Is(err, common.ErrUnsupportedAlgorithm) {
		t.Fatalf("expected ErrUnsupportedAlgorithm, got %v", err)
	}
	var gqe *common.GraphQueryError
	if !errors.As(err, &gqe) {
		t.Fatalf("expected GraphQueryError, got %T", err)
	}
}

func TestDijkstraCost(t *testing.T) {
	s, _, _ := newTestService(t)
	paths, err := s.FindPaths(context.Background(), "a", "d", PathQuery{Algorithm: PathDijkstra})
	if err != nil {
		t.Fatalf("find paths: %v", err)
	}
	want := 3 / 0.9
	if math.Abs(paths[0].Cost-want) > 1e-9 {
		t.Fatalf("cost = %v, want %v", paths[0].Cost, want)
	}
}

func TestCalculateCentrality(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(t)

	t.Run("degree", func(t *testing.T) {
		scores, err := s.CalculateCentrality(ctx, CentralityDegree, 2)
		if err != nil {
			t.Fatalf("centrality: %v", err)
		}
		if len(scores) != 2 {
			t.Fatalf("expected 2 scores, got %d", len(scores))
		}
		for _, sc := range scores {
			if sc.Score != 2 {
				t.Fatalf("unexpected degree score: %+v", sc)
			}
		}
		if scores[0].Node.ID != "a" || scores[1].Node.ID != "b" {
			t.Fatalf("ties should be ordered by id: %s, %s", scores[0].Node.ID, scores[1].Node.ID)
		}
	})

	t.Run("pagerank", func(t *testing.T) {
		scores, err := s.CalculateCentrality(ctx, CentralityPageRank, 0)
		if err != nil {
			t.Fatalf("centrality: %v", err)
		}
		if len(scores) != 5 {
			t.Fatalf("expected all 5 entities, got %d", len(scores))
		}
		sum := 0.0
		for i, sc := range scores {
			sum += sc.Score
			if i > 0 && sc.Score > scores[i-1].Score {
				t.Fatalf("scores not sorted descending")
			}
		}
		if math.Abs(sum-1) > 1e-3 {
			t.Fatalf("pagerank should sum to 1, got %v", sum)
		}
		if scores[0].Node.ID != "d" {
			t.Fatalf("expected sink d to rank first, got %s", scores[0].Node.ID)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		for _, alg := range []CentralityAlgorithm{CentralityBetweenness, CentralityCloseness} {
			if _, err := s.CalculateCentrality(ctx, alg, 10); !errors.Is(err, common.ErrUnsupportedAlgorithm) {
				t.Fatalf("%s: expected ErrUnsupportedAlgorithm, got %v", alg, err)
			}
		}
	})
}

func TestDetectCommunities(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	_, _ = st.SaveEntities(ctx, []common.Entity{
		entity("a", common.EntityPerson),
		entity("b", common.EntityPerson),
		entity("c", common.EntityPerson),
		entity("x", common.EntityPerson),
		entity("y", common.EntityPerson),
		entity("z", common.EntityPerson),
	})
	_, _ = st.UpsertRelationships(ctx, []common.Relationship{
		rel("a", "b", common.RelRelatesTo, 0.9),
		rel("b", "c", common.RelRelatesTo, 0.9),
		rel("a", "c", common.RelRelatesTo, 0.9),
		rel("x", "y", common.RelRelatesTo, 0.9),
	})
	s := NewService(NewServiceParams{Store: st})

	for _, alg := range []CommunityAlgorithm{CommunityLabelPropagation, CommunityConnectedComponents} {
		t.Run(string(alg), func(t *testing.T) {
			got, err := s.DetectCommunities(ctx, alg, 0, 0)
			if err != nil {
				t.Fatalf("communities: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("expected 2 communities, got %+v", got)
			}
			if got[0].Size != 3 || got[1].Size != 2 {
				t.Fatalf("unexpected sizes %d, %d", got[0].Size, got[1].Size)
			}
			if got[0].Density != 1 {
				t.Fatalf("triangle density = %v, want 1", got[0].Density)
			}
		})
	}

	got, err := s.DetectCommunities(ctx, CommunityConnectedComponents, 0, 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("maxCommunities not applied: %v, %d", err, len(got))
	}

	if _, err := s.DetectCommunities(ctx, CommunityLouvain, 0, 0); !errors.Is(err, common.ErrUnsupportedAlgorithm) {
		t.Fatalf("expected ErrUnsupportedAlgorithm, got %v", err)
	}
}

func TestGetKnowledgeGraph(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(t)

	t.Run("center with depth", func(t *testing.T) {
		g, err := s.GetKnowledgeGraph(ctx, KnowledgeGraphQuery{CenterNodeID: "b", Depth: 1})
		if err != nil {
			t.Fatalf("knowledge graph: %v", err)
		}
		if len(g.Nodes) != 3 || g.Nodes[0].ID != "b" {
			t.Fatalf("unexpected nodes: %+v", g.Nodes)
		}
		if len(g.Edges) != 2 {
			t.Fatalf("unexpected edges: %+v", g.Edges)
		}
		if g.Nodes[0].Degree != 2 || g.Nodes[0].Size != NodeSize(2) {
			t.Fatalf("unexpected center degree: %+v", g.Nodes[0])
		}
	})

	t.Run("min weight", func(t *testing.T) {
		g, err := s.GetKnowledgeGraph(ctx, KnowledgeGraphQuery{MinWeight: 0.5})
		if err != nil {
			t.Fatalf("knowledge graph: %v", err)
		}
		for _, e := range g.Edges {
			if e.Weight < 0.5 {
				t.Fatalf("edge below min weight: %+v", e)
			}
		}
		if len(g.Edges) != 3 {
			t.Fatalf("expected 3 strong edges, got %d", len(g.Edges))
		}
	})

	t.Run("unknown center", func(t *testing.T) {
		_, err := s.GetKnowledgeGraph(ctx, KnowledgeGraphQuery{CenterNodeID: "nope"})
		if !errors.Is(err, common.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestNodeSize(t *testing.T) {
	tests := []struct {
		degree int
		want   float64
	}{
		{0, 10},
		{4, 18},
		{100, 50},
	}
	for _, tt := range tests {
		if got := NodeSize(tt.degree); got != tt.want {
			t.Errorf("NodeSize(%d) = %v, want %v", tt.degree, got, tt.want)
		}
	}
}

func TestGetNeighborhood(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(t)

	n, err := s.GetNeighborhood(ctx, "a", NeighborhoodQuery{Direction: store.DirectionOut})
	if err != nil {
		t.Fatalf("neighborhood: %v", err)
	}
	if n.Center.ID != "a" || len(n.Nodes) != 2 || len(n.Relationships) != 2 {
		t.Fatalf("unexpected neighborhood: %+v", n)
	}

	n, err = s.GetNeighborhood(ctx, "a", NeighborhoodQuery{RelationshipTypes: []common.RelationshipType{common.RelPersonWorksFor}})
	if err != nil {
		t.Fatalf("neighborhood: %v", err)
	}
	if len(n.Nodes) != 1 || n.Nodes[0].ID != "b" {
		t.Fatalf("type filter not applied: %+v", n.Nodes)
	}

	if _, err := s.GetNeighborhood(ctx, "a", NeighborhoodQuery{Direction: "sideways"}); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCreateRelationship(t *testing.T) {
	ctx := context.Background()
	s, st, _ := newTestService(t)

	rels, err := s.CreateRelationship(ctx, RelationshipInput{
		SourceID:      "a",
		TargetID:      "ghost",
		Type:          common.RelCollaboratesWith,
		Confidence:    0.7,
		Bidirectional: true,
		Context:       "entered by hand",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(rels) != 2 {
		t.Fatalf("expected two rows, got %d", len(rels))
	}
	if rels[1].SourceID != "ghost" || rels[1].TargetID != "a" {
		t.Fatalf("reverse row not stored: %+v", rels[1])
	}
	if rels[0].Metadata.Kind != common.KindManual || len(rels[0].Evidence) != 1 {
		t.Fatalf("unexpected metadata: %+v", rels[0])
	}

	ghost, err := st.ListEntities(ctx, store.EntityFilter{IDs: []string{"ghost"}})
	if err != nil || len(ghost) != 1 || !ghost[0].Metadata.Placeholder {
		t.Fatalf("placeholder not created: %+v, %v", ghost, err)
	}

	_, err = s.CreateRelationship(ctx, RelationshipInput{SourceID: "a", TargetID: "a"})
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for self loop, got %v", err)
	}
}

func TestUpdateAndDeleteRelationship(t *testing.T) {
	ctx := context.Background()
	s, st, _ := newTestService(t)
	all, _ := st.ListRelationships(ctx, store.RelationshipFilter{})
	id := all[0].ID

	strength := 0.3
	updated, err := s.UpdateRelationship(ctx, id, store.RelationshipPatch{Strength: &strength})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Strength != 0.3 {
		t.Fatalf("strength = %v", updated.Strength)
	}

	bad := 2.0
	if _, err := s.UpdateRelationship(ctx, id, store.RelationshipPatch{Confidence: &bad}); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	if err := s.DeleteRelationship(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteRelationship(ctx, id); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestMergeEntities(t *testing.T) {
	ctx := context.Background()
	s, st, _ := newTestService(t)

	merged, err := s.MergeEntities(ctx, "a", []string{"c"})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(merged.Aliases) != 1 || merged.Aliases[0] != "c" {
		t.Fatalf("aliases = %v", merged.Aliases)
	}
	rels, _ := st.ListRelationships(ctx, store.RelationshipFilter{NodeIDs: []string{"c"}})
	if len(rels) != 0 {
		t.Fatalf("relationships still point at merged entity: %+v", rels)
	}

	if _, err := s.MergeEntities(ctx, "a", nil); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(t)

	var buf bytes.Buffer
	if err := s.Export(ctx, interchange.FormatGraphML, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}

	target := NewService(NewServiceParams{Store: memory.New()})
	res, err := target.Import(ctx, interchange.FormatGraphML, &buf)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Entities != 5 || res.Relationships != 4 {
		t.Fatalf("unexpected import result: %+v", res)
	}

	stats, err := target.GetGraphStatistics(ctx)
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if stats.TotalEntities != 5 || stats.TotalRelationships != 4 {
		t.Fatalf("imported graph differs: %+v", stats)
	}

	if _, err := target.Import(ctx, interchange.FormatCSV, &bytes.Buffer{}); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for csv import, got %v", err)
	}
}
