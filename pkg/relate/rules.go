package relate

import (
	"strings"

	"github.com/OFFIS-RIT/kgraph/internal/util"
	"github.com/OFFIS-RIT/kgraph/pkg/common"
)

const (
	patternBase          = 0.5
	longPhraseBonus      = 0.1
	longPhraseLength     = 10
	compatibleTypesBonus = 0.15
	proximityCap         = 0.7
	proximityScale       = 100.0
)

// mentionEdges links every entity to its document.
func mentionEdges(doc common.Document, entities []common.Entity) []common.Relationship {
	out := make([]common.Relationship, 0, len(entities))
	for _, e := range entities {
		c := common.Clamp01(e.Confidence)
		out = append(out, common.Relationship{
			SourceID:   e.ID,
			TargetID:   doc.ID,
			SourceType: common.NodeEntity,
			TargetType: common.NodeDocument,
			Type:       common.RelMentionedIn,
			Confidence: c,
			Strength:   c,
			Evidence: []common.Evidence{{
				DocumentID: doc.ID,
				Context:    evidenceContext(doc.Content, e.StartPos, e.EndPos, e.Context),
				Position:   e.StartPos,
				Confidence: c,
			}},
			Metadata: common.RelationshipMetadata{Kind: common.KindMention},
		})
	}
	return out
}

// patternEdges runs the trigger phrases over the document and resolves both
// captured spans to extracted entities.
func patternEdges(doc common.Document, entities []common.Entity, triggers []compiledTrigger) []common.Relationship {
	var out []common.Relationship
	for _, t := range triggers {
		for _, loc := range t.re.FindAllStringSubmatchIndex(doc.Content, -1) {
			srcSpan, tgtSpan, ok := t.spans(loc)
			if !ok {
				continue
			}
			src, ok := resolveSpan(doc.Content, srcSpan, entities)
			if !ok {
				continue
			}
			tgt, ok := resolveSpan(doc.Content, tgtSpan, entities)
			if !ok || tgt.ID == src.ID {
				continue
			}

			matched := doc.Content[loc[0]:loc[1]]
			compatible := t.compatible(src.Type, tgt.Type)
			c := patternConfidence(src.Confidence, tgt.Confidence, t.Bonus, len(matched), compatible)

			out = append(out, common.Relationship{
				SourceID:   src.ID,
				TargetID:   tgt.ID,
				SourceType: common.NodeEntity,
				TargetType: common.NodeEntity,
				Type:       t.Type,
				Confidence: c,
				Strength:   c,
				Evidence: []common.Evidence{{
					DocumentID: doc.ID,
					Context:    util.Window(doc.Content, loc[0], loc[1], DefaultEvidenceWindow),
					Position:   loc[0],
					Confidence: c,
				}},
				Metadata: common.RelationshipMetadata{
					Kind:        common.KindPattern,
					Pattern:     t.Name,
					MatchedText: matched,
					Extra:       map[string]any{"types_compatible": compatible},
				},
			})
		}
	}
	return out
}

func patternConfidence(a, b, bonus float64, phraseLen int, compatible bool) float64 {
	c := patternBase + (a+b)/2/2 + bonus
	if phraseLen > longPhraseLength {
		c += longPhraseBonus
	}
	if compatible {
		c += compatibleTypesBonus
	}
	return common.Clamp01(c)
}

// resolveSpan finds the entity a captured span refers to: its text must
// contain the entity text or be contained in it. Entities overlapping the
// span are preferred, then the longest text.
func resolveSpan(content string, span [2]int, entities []common.Entity) (common.Entity, bool) {
	text := strings.ToLower(strings.TrimSpace(content[span[0]:span[1]]))
	if text == "" {
		return common.Entity{}, false
	}
	var best common.Entity
	bestScore := -1
	for _, e := range entities {
		et := strings.ToLower(e.Text)
		if et == "" || !(strings.Contains(text, et) || strings.Contains(et, text)) {
			continue
		}
		score := len(et)
		if e.StartPos < span[1] && span[0] < e.EndPos {
			score += len(content) + 1
		}
		if score > bestScore {
			best, bestScore = e, score
		}
	}
	return best, bestScore >= 0
}

// gap is the number of characters between two spans, 0 when they touch or
// overlap.
func gap(a, b common.Entity) int {
	if a.StartPos > b.StartPos {
		a, b = b, a
	}
	return max(0, b.StartPos-a.EndPos)
}

func proximityConfidence(distance int, a, b float64) float64 {
	c := 0.4*(1-float64(distance)/proximityScale) + 0.3*((a+b)/2)
	return common.Clamp01(min(proximityCap, c))
}

// proximityEdges links entities whose gap is at most maxDistance. entities
// must be sorted by start position.
func proximityEdges(doc common.Document, entities []common.Entity, maxDistance int) []common.Relationship {
	var out []common.Relationship
	for i, a := range entities {
		for _, b := range entities[i+1:] {
			if b.StartPos-a.EndPos > maxDistance {
				break
			}
			if a.ID == b.ID || (a.Type == b.Type && a.NormalizedValue != "" && a.NormalizedValue == b.NormalizedValue) {
				continue
			}
			d := gap(a, b)
			c := proximityConfidence(d, a.Confidence, b.Confidence)
			distance := d
			out = append(out, common.Relationship{
				SourceID:   a.ID,
				TargetID:   b.ID,
				SourceType: common.NodeEntity,
				TargetType: common.NodeEntity,
				Type:       common.RelRelatesTo,
				Confidence: c,
				Strength:   common.Clamp01(1 - float64(d)/float64(maxDistance+1)),
				Evidence: []common.Evidence{{
					DocumentID: doc.ID,
					Context:    util.Window(doc.Content, min(a.StartPos, b.StartPos), max(a.EndPos, b.EndPos), DefaultEvidenceWindow),
					Position:   a.StartPos,
					Confidence: c,
				}},
				Metadata: common.RelationshipMetadata{
					Kind:     common.KindProximity,
					Distance: &distance,
				},
			})
		}
	}
	return out
}

func evidenceContext(content string, start, end int, fallback string) string {
	if start >= 0 && end <= len(content) && start < end {
		return util.Window(content, start, end, DefaultEvidenceWindow)
	}
	return fallback
}
