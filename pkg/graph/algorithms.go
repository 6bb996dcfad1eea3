package graph

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/store"
)

type CentralityAlgorithm string

const (
	CentralityDegree      CentralityAlgorithm = "degree"
	CentralityPageRank    CentralityAlgorithm = "pagerank"
	CentralityBetweenness CentralityAlgorithm = "betweenness"
	CentralityCloseness   CentralityAlgorithm = "closeness"
)

type CommunityAlgorithm string

const (
	CommunityLabelPropagation    CommunityAlgorithm = "label_propagation"
	CommunityConnectedComponents CommunityAlgorithm = "connected_components"
	CommunityLouvain             CommunityAlgorithm = "louvain"
)

const (
	pageRankDamping    = 0.85
	pageRankIterations = 100
	pageRankTolerance  = 1e-6

	labelPropagationRounds = 20

	DefaultCentralityLimit  = 20
	DefaultMinCommunitySize = 2
	DefaultMaxCommunities   = 10
)

type CentralityScore struct {
	Node  Node    `json:"node"`
	Score float64 `json:"score"`
}

// Community is a group of entities. Density is the share of possible member
// pairs that are connected.
type Community struct {
	ID      int     `json:"id"`
	Members []Node  `json:"members"`
	Size    int     `json:"size"`
	Density float64 `json:"density"`
}

// CalculateCentrality ranks entities by degree or PageRank. Document nodes
// and placeholders are not ranked.
func (s *Service) CalculateCentrality(ctx context.Context, algorithm CentralityAlgorithm, limit int) (scores []CentralityScore, err error) {
	start := time.Now()
	defer func() { s.record("centrality", start, len(scores), err) }()

	if limit < 0 {
		return nil, common.NewGraphQueryError("centrality", fmt.Errorf("%w: negative limit", common.ErrInvalidInput))
	}
	if limit == 0 {
		limit = DefaultCentralityLimit
	}

	switch algorithm {
	case CentralityDegree, "":
		scores, err = s.degreeCentrality(ctx, limit)
	case CentralityPageRank:
		scores, err = s.pageRank(ctx, limit)
	default:
		return nil, common.NewGraphQueryError("centrality", fmt.Errorf("%w: %s", common.ErrUnsupportedAlgorithm, algorithm))
	}
	if err != nil {
		return nil, common.NewGraphQueryError("centrality", err)
	}
	return scores, nil
}

func (s *Service) degreeCentrality(ctx context.Context, limit int) ([]CentralityScore, error) {
	degrees, err := s.store.EntityDegrees(ctx, store.DegreeQuery{Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]CentralityScore, 0, len(degrees))
	for _, d := range degrees {
		n := entityNode(d.Entity)
		n.Degree = d.Degree
		n.Size = NodeSize(d.Degree)
		out = append(out, CentralityScore{Node: n, Score: float64(d.Degree)})
	}
	return out, nil
}

// entityGraph loads all entities and the relationships between two of them.
func (s *Service) entityGraph(ctx context.Context) ([]common.Entity, []common.Relationship, error) {
	entities, err := s.store.ListEntities(ctx, store.EntityFilter{})
	if err != nil {
		return nil, nil, err
	}
	rels, err := s.store.ListRelationships(ctx, store.RelationshipFilter{})
	if err != nil {
		return nil, nil, err
	}
	known := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		known[e.ID] = struct{}{}
	}
	kept := rels[:0]
	for _, r := range rels {
		if r.SourceType == common.NodeDocument || r.TargetType == common.NodeDocument {
			continue
		}
		_, okS := known[r.SourceID]
		_, okT := known[r.TargetID]
		if okS && okT && r.SourceID != r.TargetID {
			kept = append(kept, r)
		}
	}
	slices.SortFunc(entities, func(a, b common.Entity) int { return cmp.Compare(a.ID, b.ID) })
	return entities, kept, nil
}

func (s *Service) pageRank(ctx context.Context, limit int) ([]CentralityScore, error) {
	entities, rels, err := s.entityGraph(ctx)
	if err != nil {
		return nil, err
	}
	n := len(entities)
	if n == 0 {
		return []CentralityScore{}, nil
	}

	index := make(map[string]int, n)
	for i, e := range entities {
		index[e.ID] = i
	}
	outWeight := make([]float64, n)
	incoming := make([][]struct {
		from   int
		weight float64
	}, n)
	degree := make([]int, n)
	for _, r := range rels {
		from, to := index[r.SourceID], index[r.TargetID]
		w := r.Strength
		if w <= 0 {
			w = 1e-9
		}
		outWeight[from] += w
		incoming[to] = append(incoming[to], struct {
			from   int
			weight float64
		}{from, w})
		degree[from]++
		degree[to]++
	}

	rank := make([]float64, n)
	for i := range rank {
		rank[i] = 1 / float64(n)
	}
	next := make([]float64, n)
	base := (1 - pageRankDamping) / float64(n)
	for range pageRankIterations {
		dangling := 0.0
		for i := range n {
			if outWeight[i] == 0 {
				dangling += rank[i]
			}
		}
		delta := 0.0
		for i := range n {
			sum := 0.0
			for _, in := range incoming[i] {
				sum += rank[in.from] * in.weight / outWeight[in.from]
			}
			next[i] = base + pageRankDamping*(sum+dangling/float64(n))
			delta += math.Abs(next[i] - rank[i])
		}
		rank, next = next, rank
		if delta < pageRankTolerance {
			break
		}
	}

	out := make([]CentralityScore, n)
	for i, e := range entities {
		node := entityNode(e)
		node.Degree = degree[i]
		node.Size = NodeSize(degree[i])
		out[i] = CentralityScore{Node: node, Score: rank[i]}
	}
	slices.SortStableFunc(out, func(a, b CentralityScore) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Node.ID, b.Node.ID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DetectCommunities groups entities connected through entity-entity
// relationships. Communities smaller than minSize are dropped and at most
// maxCommunities are returned, largest first.
func (s *Service) DetectCommunities(ctx context.Context, algorithm CommunityAlgorithm, minSize, maxCommunities int) (communities []Community, err error) {
	start := time.Now()
	defer func() { s.record("communities", start, len(communities), err) }()

	if minSize < 0 || maxCommunities < 0 {
		return nil, common.NewGraphQueryError("communities", fmt.Errorf("%w: negative size", common.ErrInvalidInput))
	}
	if minSize == 0 {
		minSize = DefaultMinCommunitySize
	}
	if maxCommunities == 0 {
		maxCommunities = DefaultMaxCommunities
	}
	if algorithm == "" {
		algorithm = CommunityLabelPropagation
	}
	if algorithm != CommunityLabelPropagation && algorithm != CommunityConnectedComponents {
		return nil, common.NewGraphQueryError("communities", fmt.Errorf("%w: %s", common.ErrUnsupportedAlgorithm, algorithm))
	}

	entities, rels, err := s.entityGraph(ctx)
	if err != nil {
		return nil, common.NewGraphQueryError("communities", err)
	}

	var labels map[string]string
	if algorithm == CommunityConnectedComponents {
		labels = connectedComponents(entities, rels)
	} else {
		labels = labelPropagation(entities, rels)
	}

	groups := make(map[string][]common.Entity)
	for _, e := range entities {
		groups[labels[e.ID]] = append(groups[labels[e.ID]], e)
	}
	keys := make([]string, 0, len(groups))
	for k, members := range groups {
		if len(members) >= minSize {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, func(a, b string) int {
		if c := cmp.Compare(len(groups[b]), len(groups[a])); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if len(keys) > maxCommunities {
		keys = keys[:maxCommunities]
	}

	communities = make([]Community, 0, len(keys))
	for i, k := range keys {
		members := groups[k]
		ids := make(map[string]struct{}, len(members))
		for _, m := range members {
			ids[m.ID] = struct{}{}
		}
		var internal []common.Relationship
		for _, r := range rels {
			_, okS := ids[r.SourceID]
			_, okT := ids[r.TargetID]
			if okS && okT {
				internal = append(internal, r)
			}
		}
		nodes := make([]Node, len(members))
		for j, m := range members {
			nodes[j] = entityNode(m)
		}
		g := assemble(nodes, internal)
		communities = append(communities, Community{
			ID:      i,
			Members: g.Nodes,
			Size:    len(members),
			Density: density(len(members), countPairs(internal)),
		})
	}
	return communities, nil
}

// countPairs counts connected unordered pairs, so parallel and reverse edges
// count once.
func countPairs(rels []common.Relationship) int {
	type pair struct{ a, b string }
	seen := make(map[pair]struct{}, len(rels))
	for _, r := range rels {
		a, b := r.SourceID, r.TargetID
		if a > b {
			a, b = b, a
		}
		seen[pair{a, b}] = struct{}{}
	}
	return len(seen)
}

func connectedComponents(entities []common.Entity, rels []common.Relationship) map[string]string {
	parent := make(map[string]string, len(entities))
	for _, e := range entities {
		parent[e.ID] = e.ID
	}
	var find func(string) string
	find = func(x string) string {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for _, r := range rels {
		a, b := find(r.SourceID), find(r.TargetID)
		if a == b {
			continue
		}
		// The smaller id becomes the root so labels are deterministic.
		if b < a {
			a, b = b, a
		}
		parent[b] = a
	}
	labels := make(map[string]string, len(entities))
	for _, e := range entities {
		labels[e.ID] = find(e.ID)
	}
	return labels
}

// labelPropagation visits nodes in id order and adopts the label with the
// highest summed edge strength among neighbours. Ties go to the smallest
// label.
func labelPropagation(entities []common.Entity, rels []common.Relationship) map[string]string {
	neighbours := make(map[string]map[string]float64, len(entities))
	for _, e := range entities {
		neighbours[e.ID] = make(map[string]float64)
	}
	for _, r := range rels {
		w := r.Strength
		if w <= 0 {
			w = 1e-9
		}
		neighbours[r.SourceID][r.TargetID] += w
		neighbours[r.TargetID][r.SourceID] += w
	}

	labels := make(map[string]string, len(entities))
	for _, e := range entities {
		labels[e.ID] = e.ID
	}
	for range labelPropagationRounds {
		changed := false
		for _, e := range entities {
			if len(neighbours[e.ID]) == 0 {
				continue
			}
			weights := make(map[string]float64)
			for nb, w := range neighbours[e.ID] {
				weights[labels[nb]] += w
			}
			best, bestWeight := labels[e.ID], weights[labels[e.ID]]
			for label, w := range weights {
				if w > bestWeight || (w == bestWeight && label < best) {
					best, bestWeight = label, w
				}
			}
			if best != labels[e.ID] {
				labels[e.ID] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return labels
}
