package extract

import (
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/kgraph/pkg/common"

	"github.com/jdkato/prose/v2"
)

const nerConfidence = 0.65

var nerLabels = map[string]common.EntityType{
	"PERSON": common.EntityPerson,
	"GPE":    common.EntityLocation,
	"LOC":    common.EntityLocation,
	"ORG":    common.EntityOrganization,
}

// extractNER runs the prose named-entity model. prose does not report
// offsets, so each entity is located by searching forward from the previous
// occurrence of the same text.
func extractNER(text string, enabled func(common.EntityType) bool) ([]common.Entity, error) {
	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		return nil, fmt.Errorf("failed to run named entity recognition: %w", err)
	}

	cursor := make(map[string]int)
	var out []common.Entity
	for _, ent := range doc.Entities() {
		typ, ok := nerLabels[ent.Label]
		if !ok || !enabled(typ) {
			continue
		}
		from := cursor[ent.Text]
		idx := strings.Index(text[from:], ent.Text)
		if idx < 0 {
			continue
		}
		start := from + idx
		end := start + len(ent.Text)
		cursor[ent.Text] = end
		out = append(out, common.Entity{
			Text:       ent.Text,
			Type:       typ,
			StartPos:   start,
			EndPos:     end,
			Confidence: nerConfidence,
			Metadata: common.EntityMetadata{
				Source:  common.SourceNER,
				Pattern: ent.Label,
			},
		})
	}
	return out, nil
}
