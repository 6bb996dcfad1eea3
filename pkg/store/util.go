package store

import (
	"slices"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
)

func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}

func DedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// CollapseRelationships resolves rows sharing a key inside one batch with the
// same confidence rule the stores apply against existing rows. Order of first
// appearance is kept.
func CollapseRelationships(rels []common.Relationship) []common.Relationship {
	idx := make(map[common.RelationshipKey]int, len(rels))
	out := make([]common.Relationship, 0, len(rels))
	for _, r := range rels {
		k := r.Key()
		if i, ok := idx[k]; ok {
			out[i] = common.MergeRelationship(out[i], r)
			continue
		}
		idx[k] = len(out)
		out = append(out, r)
	}
	return out
}

// MatchesRelationship reports whether r passes the non-node parts of f.
func MatchesRelationship(r common.Relationship, f RelationshipFilter) bool {
	if r.Strength < f.MinStrength {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, r.Type) {
		return false
	}
	if len(f.NodeIDs) == 0 {
		return true
	}
	switch f.Direction {
	case DirectionOut:
		return slices.Contains(f.NodeIDs, r.SourceID)
	case DirectionIn:
		return slices.Contains(f.NodeIDs, r.TargetID)
	default:
		return slices.Contains(f.NodeIDs, r.SourceID) || slices.Contains(f.NodeIDs, r.TargetID)
	}
}

// ApplyPatch applies p to r in place.
func ApplyPatch(r *common.Relationship, p RelationshipPatch) {
	if p.Type != nil {
		r.Type = *p.Type
	}
	if p.Confidence != nil {
		r.Confidence = common.Clamp01(*p.Confidence)
	}
	if p.Strength != nil {
		r.Strength = common.Clamp01(*p.Strength)
	}
	if p.Metadata != nil {
		r.Metadata = *p.Metadata
	}
	if len(p.Evidence) > 0 {
		r.Evidence = common.MergeEvidence(r.Evidence, p.Evidence)
	}
	common.SummarizeEvidence(r)
}

// FoldEntity merges src into target: src's text and aliases become aliases
// of target, mentions add up and the higher confidence is kept.
func FoldEntity(target *common.Entity, src common.Entity) {
	for _, alias := range append([]string{src.Text}, src.Aliases...) {
		if alias != target.Text && !slices.Contains(target.Aliases, alias) {
			target.Aliases = append(target.Aliases, alias)
		}
	}
	target.Mentions += max(src.Mentions, 1)
	target.Confidence = max(target.Confidence, src.Confidence)
}

// RepointRelationships rewrites endpoints in sources to targetID. Self loops
// produced by the rewrite are dropped.
func RepointRelationships(rels []common.Relationship, targetID string, sources map[string]struct{}) []common.Relationship {
	out := make([]common.Relationship, 0, len(rels))
	for _, r := range rels {
		if _, ok := sources[r.SourceID]; ok {
			r.SourceID = targetID
		}
		if _, ok := sources[r.TargetID]; ok {
			r.TargetID = targetID
		}
		if r.SourceID == r.TargetID {
			continue
		}
		out = append(out, r)
	}
	return out
}
