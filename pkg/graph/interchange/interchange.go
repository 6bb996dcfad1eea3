// Package interchange reads and writes whole graphs in exchange formats.
package interchange

import (
	"fmt"
	"io"
	"strings"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
)

type Format string

const (
	FormatJSON    Format = "json"
	FormatGraphML Format = "graphml"
	FormatCSV     Format = "csv"
	FormatHTML    Format = "html"
)

// Graph is the exchanged document: every entity and relationship.
type Graph struct {
	Entities      []common.Entity       `json:"entities"`
	Relationships []common.Relationship `json:"relationships"`
}

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatGraphML, FormatCSV, FormatHTML:
		return f, nil
	case "":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", common.ErrInvalidInput, s)
	}
}

// ContentType is the MIME type of an exported document.
func (f Format) ContentType() string {
	switch f {
	case FormatGraphML:
		return "application/graphml+xml"
	case FormatCSV:
		return "text/csv"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "application/json"
	}
}

func (f Format) Extension() string {
	if f == FormatGraphML {
		return ".graphml"
	}
	return "." + string(f)
}

// Importable reports whether Read supports f.
func (f Format) Importable() bool {
	return f == FormatJSON || f == FormatGraphML
}

func Write(w io.Writer, f Format, g *Graph) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, g)
	case FormatGraphML:
		return WriteGraphML(w, g)
	case FormatCSV:
		return WriteCSV(w, g)
	case FormatHTML:
		return WriteHTML(w, g)
	default:
		return fmt.Errorf("%w: unknown format %q", common.ErrInvalidInput, f)
	}
}

func Read(r io.Reader, f Format) (*Graph, error) {
	switch f {
	case FormatJSON:
		return ReadJSON(r)
	case FormatGraphML:
		return ReadGraphML(r)
	default:
		return nil, fmt.Errorf("%w: format %q cannot be imported", common.ErrInvalidInput, f)
	}
}
