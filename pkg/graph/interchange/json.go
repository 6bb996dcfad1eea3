package interchange

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
)

func WriteJSON(w io.Writer, g *Graph) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(normalized(g)); err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}
	return nil
}

func ReadJSON(r io.Reader) (*Graph, error) {
	var g Graph
	if err := json.NewDecoder(r).Decode(&g); err != nil {
		return nil, fmt.Errorf("failed to decode graph: %w", err)
	}
	return normalized(&g), nil
}

// normalized replaces nil slices so exports always carry both arrays.
func normalized(g *Graph) *Graph {
	out := Graph{}
	if g != nil {
		out = *g
	}
	if out.Entities == nil {
		out.Entities = []common.Entity{}
	}
	if out.Relationships == nil {
		out.Relationships = []common.Relationship{}
	}
	return &out
}
