package extract

import (
	"cmp"
	"slices"

	"github.com/OFFIS-RIT/kgraph/internal/util"
	"github.com/OFFIS-RIT/kgraph/pkg/common"
)

func attachContext(text string, entities []common.Entity, window int) {
	for i := range entities {
		entities[i].Context = util.Window(text, entities[i].StartPos, entities[i].EndPos, window)
	}
}

func filterConfidence(entities []common.Entity, minConfidence float64) []common.Entity {
	out := entities[:0]
	for _, e := range entities {
		if e.Confidence >= minConfidence {
			out = append(out, e)
		}
	}
	return out
}

// mergeOverlapping collapses same-type entities with intersecting spans. The
// longer text wins, the span becomes the union and the confidence the
// maximum. The result contains no two overlapping entities of one type.
func mergeOverlapping(entities []common.Entity) []common.Entity {
	byType := make(map[common.EntityType][]common.Entity)
	var order []common.EntityType
	for _, e := range entities {
		if _, ok := byType[e.Type]; !ok {
			order = append(order, e.Type)
		}
		byType[e.Type] = append(byType[e.Type], e)
	}

	out := make([]common.Entity, 0, len(entities))
	for _, t := range order {
		group := byType[t]
		slices.SortStableFunc(group, compareSpan)
		merged := []common.Entity{group[0]}
		for _, e := range group[1:] {
			last := &merged[len(merged)-1]
			if !last.Overlaps(e) {
				merged = append(merged, e)
				continue
			}
			*last = mergePair(*last, e)
		}
		out = append(out, merged...)
	}
	return out
}

func mergePair(a, b common.Entity) common.Entity {
	keep := a
	if len(b.Text) > len(a.Text) {
		keep = b
	}
	keep.StartPos = min(a.StartPos, b.StartPos)
	keep.EndPos = max(a.EndPos, b.EndPos)
	keep.Confidence = max(a.Confidence, b.Confidence)
	return keep
}

func compareSpan(a, b common.Entity) int {
	if c := cmp.Compare(a.StartPos, b.StartPos); c != 0 {
		return c
	}
	return cmp.Compare(b.EndPos, a.EndPos)
}

func normalizeAll(entities []common.Entity) {
	for i := range entities {
		entities[i].NormalizedValue = Normalize(entities[i].Type, entities[i].Text)
	}
}

// countMentions sets Mentions to the number of entities in the same result
// sharing type and normalized value.
func countMentions(entities []common.Entity) {
	type key struct {
		t common.EntityType
		v string
	}
	counts := make(map[key]int, len(entities))
	for _, e := range entities {
		counts[key{e.Type, e.NormalizedValue}]++
	}
	for i := range entities {
		entities[i].Mentions = counts[key{entities[i].Type, entities[i].NormalizedValue}]
	}
}

func sortByStart(entities []common.Entity) {
	slices.SortStableFunc(entities, func(a, b common.Entity) int {
		if c := compareSpan(a, b); c != 0 {
			return c
		}
		return cmp.Compare(a.Type, b.Type)
	})
}
