package interchange

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var (
	entityColumns       = []string{"id", "text", "type", "normalized_value", "confidence", "document_id", "start_pos", "end_pos", "mentions", "aliases"}
	relationshipColumns = []string{"id", "source_id", "target_id", "source_type", "target_type", "relationship_type", "confidence", "strength", "evidence_count"}
)

// WriteCSV writes two sections, entities then relationships, each opened by
// a "# name" marker row and a header row and separated by an empty line.
func WriteCSV(w io.Writer, g *Graph) error {
	g = normalized(g)
	cw := csv.NewWriter(w)

	records := [][]string{{"# entities"}, entityColumns}
	for _, e := range g.Entities {
		records = append(records, []string{
			e.ID,
			e.Text,
			string(e.Type),
			e.NormalizedValue,
			formatFloat(e.Confidence),
			e.DocumentID,
			strconv.Itoa(e.StartPos),
			strconv.Itoa(e.EndPos),
			strconv.Itoa(e.Mentions),
			strings.Join(e.Aliases, "|"),
		})
	}
	records = append(records, []string{}, []string{"# relationships"}, relationshipColumns)
	for _, r := range g.Relationships {
		records = append(records, []string{
			r.ID,
			r.SourceID,
			r.TargetID,
			string(r.SourceType),
			string(r.TargetType),
			string(r.Type),
			formatFloat(r.Confidence),
			formatFloat(r.Strength),
			strconv.Itoa(len(r.Evidence)),
		})
	}

	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}
