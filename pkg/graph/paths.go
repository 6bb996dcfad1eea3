package graph

import (
	"cmp"
	"container/heap"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/store"

	mapset "github.com/deckarep/golang-set/v2"
)

type PathAlgorithm string

const (
	PathShortest PathAlgorithm = "shortest"
	PathDijkstra PathAlgorithm = "dijkstra"
	PathAll      PathAlgorithm = "all"
)

const (
	DefaultMaxDepth  = 5
	DefaultPathLimit = 10
)

type PathQuery struct {
	MaxDepth  int           `json:"max_depth" validate:"gte=0,lte=10"`
	Algorithm PathAlgorithm `json:"algorithm"`
	Limit     int           `json:"limit" validate:"gte=0,lte=1000"`
	// Directed follows relationships from source to target only.
	Directed bool `json:"directed"`
}

// Path is a walk between two nodes. Cost is the sum of 1/strength over its
// relationships.
type Path struct {
	Nodes         []string              `json:"nodes"`
	Relationships []common.Relationship `json:"relationships"`
	Length        int                   `json:"length"`
	Cost          float64               `json:"cost"`
}

// adjacency is an in-memory view of relationships for traversal.
type adjacency struct {
	steps map[string][]step
}

type step struct {
	to  string
	rel common.Relationship
}

func newAdjacency(rels []common.Relationship, directed bool) *adjacency {
	a := &adjacency{steps: make(map[string][]step)}
	for _, r := range rels {
		a.steps[r.SourceID] = append(a.steps[r.SourceID], step{to: r.TargetID, rel: r})
		if !directed {
			a.steps[r.TargetID] = append(a.steps[r.TargetID], step{to: r.SourceID, rel: r})
		}
	}
	return a
}

func (a *adjacency) nodes() []string {
	seen := mapset.NewThreadUnsafeSet[string]()
	for from, steps := range a.steps {
		seen.Add(from)
		for _, st := range steps {
			seen.Add(st.to)
		}
	}
	out := seen.ToSlice()
	slices.Sort(out)
	return out
}

func edgeCost(r common.Relationship) float64 {
	if r.Strength <= 0 {
		return 1e9
	}
	return 1 / r.Strength
}

// FindPaths returns paths from sourceID to targetID of at most MaxDepth
// relationships. Unconnected nodes yield an empty list, not an error.
func (s *Service) FindPaths(ctx context.Context, sourceID, targetID string, q PathQuery) (paths []Path, err error) {
	start := time.Now()
	defer func() { s.record("paths", start, len(paths), err) }()

	if err := validate.Struct(q); err != nil {
		return nil, common.NewGraphQueryError("paths", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}
	if q.MaxDepth == 0 {
		q.MaxDepth = DefaultMaxDepth
	}
	if q.Limit == 0 {
		q.Limit = DefaultPathLimit
	}
	if q.Algorithm == "" {
		q.Algorithm = PathShortest
	}
	if !slices.Contains([]PathAlgorithm{PathShortest, PathDijkstra, PathAll}, q.Algorithm) {
		return nil, common.NewGraphQueryError("paths", fmt.Errorf("%w: %s", common.ErrUnsupportedAlgorithm, q.Algorithm))
	}

	if sourceID == targetID {
		return []Path{{Nodes: []string{sourceID}, Relationships: []common.Relationship{}}}, nil
	}

	rels, err := s.store.ListRelationships(ctx, store.RelationshipFilter{})
	if err != nil {
		return nil, common.NewGraphQueryError("paths", err)
	}
	adj := newAdjacency(rels, q.Directed)

	switch q.Algorithm {
	case PathDijkstra:
		paths = adj.cheapest(sourceID, targetID, q.MaxDepth)
	case PathAll:
		paths = adj.all(sourceID, targetID, q.MaxDepth, q.Limit)
	default:
		paths = adj.shortest(sourceID, targetID, q.MaxDepth)
	}
	if paths == nil {
		paths = []Path{}
	}
	return paths, nil
}

func newPath(nodes []string, rels []common.Relationship) Path {
	p := Path{
		Nodes:         nodes,
		Relationships: rels,
		Length:        len(rels),
	}
	for _, r := range rels {
		p.Cost += edgeCost(r)
	}
	return p
}

// shortest is a breadth first search for the path with fewest hops.
func (a *adjacency) shortest(src, dst string, maxDepth int) []Path {
	type prev struct {
		node string
		rel  common.Relationship
	}
	parent := map[string]prev{}
	depth := map[string]int{src: 0}
	queue := []string{src}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == dst {
			break
		}
		if depth[cur] >= maxDepth {
			continue
		}
		for _, st := range a.steps[cur] {
			if _, ok := depth[st.to]; ok {
				continue
			}
			depth[st.to] = depth[cur] + 1
			parent[st.to] = prev{node: cur, rel: st.rel}
			queue = append(queue, st.to)
		}
	}
	if _, ok := depth[dst]; !ok {
		return nil
	}

	nodes := []string{dst}
	var rels []common.Relationship
	for cur := dst; cur != src; {
		p := parent[cur]
		rels = append(rels, p.rel)
		nodes = append(nodes, p.node)
		cur = p.node
	}
	slices.Reverse(nodes)
	slices.Reverse(rels)
	return []Path{newPath(nodes, rels)}
}

type dijkstraItem struct {
	node  string
	cost  float64
	hops  int
	index int
}

type dijkstraQueue []*dijkstraItem

func (q dijkstraQueue) Len() int { return len(q) }
func (q dijkstraQueue) Less(i, j int) bool {
	if q[i].cost != q[j].cost {
		return q[i].cost < q[j].cost
	}
	return q[i].node < q[j].node
}
func (q dijkstraQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *dijkstraQueue) Push(x any) {
	item := x.(*dijkstraItem)
	item.index = len(*q)
	*q = append(*q, item)
}
func (q *dijkstraQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// cheapest runs Dijkstra with cost 1/strength per relationship. Strong
// relationships are cheap to traverse.
func (a *adjacency) cheapest(src, dst string, maxDepth int) []Path {
	type prev struct {
		node string
		rel  common.Relationship
	}
	dist := map[string]float64{src: 0}
	parent := map[string]prev{}
	done := mapset.NewThreadUnsafeSet[string]()

	pq := &dijkstraQueue{}
	heap.Push(pq, &dijkstraItem{node: src})
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(*dijkstraItem)
		if done.Contains(cur.node) {
			continue
		}
		done.Add(cur.node)
		if cur.node == dst {
			break
		}
		if cur.hops >= maxDepth {
			continue
		}
		for _, st := range a.steps[cur.node] {
			if done.Contains(st.to) {
				continue
			}
			nd := cur.cost + edgeCost(st.rel)
			if d, ok := dist[st.to]; ok && d <= nd {
				continue
			}
			dist[st.to] = nd
			parent[st.to] = prev{node: cur.node, rel: st.rel}
			heap.Push(pq, &dijkstraItem{node: st.to, cost: nd, hops: cur.hops + 1})
		}
	}
	if !done.Contains(dst) {
		return nil
	}

	nodes := []string{dst}
	var rels []common.Relationship
	for cur := dst; cur != src; {
		p := parent[cur]
		rels = append(rels, p.rel)
		nodes = append(nodes, p.node)
		cur = p.node
	}
	slices.Reverse(nodes)
	slices.Reverse(rels)
	return []Path{newPath(nodes, rels)}
}

// all enumerates simple paths by depth first search, shortest and cheapest
// first, up to limit paths.
func (a *adjacency) all(src, dst string, maxDepth, limit int) []Path {
	var out []Path
	onPath := mapset.NewThreadUnsafeSet(src)
	nodes := []string{src}
	var rels []common.Relationship

	var walk func(cur string)
	walk = func(cur string) {
		if cur == dst {
			out = append(out, newPath(slices.Clone(nodes), slices.Clone(rels)))
			return
		}
		if len(rels) >= maxDepth {
			return
		}
		for _, st := range a.steps[cur] {
			if onPath.Contains(st.to) {
				continue
			}
			onPath.Add(st.to)
			nodes = append(nodes, st.to)
			rels = append(rels, st.rel)
			walk(st.to)
			nodes = nodes[:len(nodes)-1]
			rels = rels[:len(rels)-1]
			onPath.Remove(st.to)
		}
	}
	walk(src)

	slices.SortStableFunc(out, func(a, b Path) int {
		if c := cmp.Compare(a.Length, b.Length); c != 0 {
			return c
		}
		return cmp.Compare(a.Cost, b.Cost)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
