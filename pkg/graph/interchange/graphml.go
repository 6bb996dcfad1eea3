package interchange

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/OFFIS-RIT/kgraph/pkg/common"

	"github.com/beevik/etree"
)

const graphMLNamespace = "http://graphml.graphdrawing.org/xmlns"

type graphMLKey struct {
	id, target, typ string
}

var graphMLKeys = []graphMLKey{
	{"text", "node", "string"},
	{"type", "node", "string"},
	{"normalized_value", "node", "string"},
	{"confidence", "node", "double"},
	{"start_pos", "node", "int"},
	{"end_pos", "node", "int"},
	{"document_id", "node", "string"},
	{"context", "node", "string"},
	{"mentions", "node", "int"},
	{"aliases", "node", "string"},
	{"entity_metadata", "node", "string"},
	{"relationship_type", "edge", "string"},
	{"source_type", "edge", "string"},
	{"target_type", "edge", "string"},
	{"edge_confidence", "edge", "double"},
	{"strength", "edge", "double"},
	{"evidence", "edge", "string"},
	{"relationship_metadata", "edge", "string"},
}

func addData(el *etree.Element, key, value string) {
	if value == "" {
		return
	}
	d := el.CreateElement("data")
	d.CreateAttr("key", key)
	d.SetText(value)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func jsonText(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WriteGraphML writes g as a directed GraphML document. Structured fields
// such as evidence are stored as JSON text in data elements.
func WriteGraphML(w io.Writer, g *Graph) error {
	g = normalized(g)

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("graphml")
	root.CreateAttr("xmlns", graphMLNamespace)
	for _, k := range graphMLKeys {
		key := root.CreateElement("key")
		key.CreateAttr("id", k.id)
		key.CreateAttr("for", k.target)
		key.CreateAttr("attr.name", k.id)
		key.CreateAttr("attr.type", k.typ)
	}

	graph := root.CreateElement("graph")
	graph.CreateAttr("id", "G")
	graph.CreateAttr("edgedefault", "directed")

	for _, e := range g.Entities {
		n := graph.CreateElement("node")
		n.CreateAttr("id", e.ID)
		addData(n, "text", e.Text)
		addData(n, "type", string(e.Type))
		addData(n, "normalized_value", e.NormalizedValue)
		addData(n, "confidence", formatFloat(e.Confidence))
		addData(n, "start_pos", strconv.Itoa(e.StartPos))
		addData(n, "end_pos", strconv.Itoa(e.EndPos))
		addData(n, "document_id", e.DocumentID)
		addData(n, "context", e.Context)
		addData(n, "mentions", strconv.Itoa(e.Mentions))
		if len(e.Aliases) > 0 {
			aliases, err := jsonText(e.Aliases)
			if err != nil {
				return fmt.Errorf("failed to encode aliases of %s: %w", e.ID, err)
			}
			addData(n, "aliases", aliases)
		}
		meta, err := jsonText(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata of %s: %w", e.ID, err)
		}
		addData(n, "entity_metadata", meta)
	}

	for _, r := range g.Relationships {
		ed := graph.CreateElement("edge")
		ed.CreateAttr("id", r.ID)
		ed.CreateAttr("source", r.SourceID)
		ed.CreateAttr("target", r.TargetID)
		addData(ed, "relationship_type", string(r.Type))
		addData(ed, "source_type", string(r.SourceType))
		addData(ed, "target_type", string(r.TargetType))
		addData(ed, "edge_confidence", formatFloat(r.Confidence))
		addData(ed, "strength", formatFloat(r.Strength))
		evidence, err := jsonText(r.Evidence)
		if err != nil {
			return fmt.Errorf("failed to encode evidence of %s: %w", r.ID, err)
		}
		addData(ed, "evidence", evidence)
		meta, err := jsonText(r.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata of %s: %w", r.ID, err)
		}
		addData(ed, "relationship_metadata", meta)
	}

	doc.Indent(2)
	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write graphml: %w", err)
	}
	return nil
}

func dataMap(el *etree.Element) map[string]string {
	out := make(map[string]string)
	for _, d := range el.SelectElements("data") {
		out[d.SelectAttrValue("key", "")] = d.Text()
	}
	return out
}

func parseFloat(data map[string]string, key string) (float64, error) {
	v, ok := data[key]
	if !ok || v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", common.ErrInvalidInput, key, v)
	}
	return f, nil
}

func parseInt(data map[string]string, key string) (int, error) {
	v, ok := data[key]
	if !ok || v == "" {
		return 0, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", common.ErrInvalidInput, key, v)
	}
	return i, nil
}

func parseJSON(data map[string]string, key string, dst any) error {
	v, ok := data[key]
	if !ok || v == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(v), dst); err != nil {
		return fmt.Errorf("%w: %s: %v", common.ErrInvalidInput, key, err)
	}
	return nil
}

// ReadGraphML reads a document written by WriteGraphML. Foreign GraphML is
// accepted too: nodes without a type become UNKNOWN entities and edges
// without a type become RELATES_TO.
func ReadGraphML(r io.Reader) (*Graph, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("%w: failed to parse graphml: %v", common.ErrInvalidInput, err)
	}
	root := doc.SelectElement("graphml")
	if root == nil {
		return nil, fmt.Errorf("%w: missing graphml element", common.ErrInvalidInput)
	}
	graph := root.SelectElement("graph")
	if graph == nil {
		return nil, fmt.Errorf("%w: missing graph element", common.ErrInvalidInput)
	}

	g := &Graph{Entities: []common.Entity{}, Relationships: []common.Relationship{}}
	for _, n := range graph.SelectElements("node") {
		data := dataMap(n)
		e := common.Entity{
			ID:              n.SelectAttrValue("id", ""),
			Text:            data["text"],
			Type:            common.ParseEntityType(data["type"]),
			NormalizedValue: data["normalized_value"],
			DocumentID:      data["document_id"],
			Context:         data["context"],
		}
		if e.ID == "" {
			return nil, fmt.Errorf("%w: node without id", common.ErrInvalidInput)
		}
		if e.Text == "" {
			e.Text = e.ID
		}
		var err error
		if e.Confidence, err = parseFloat(data, "confidence"); err != nil {
			return nil, err
		}
		if e.StartPos, err = parseInt(data, "start_pos"); err != nil {
			return nil, err
		}
		if e.EndPos, err = parseInt(data, "end_pos"); err != nil {
			return nil, err
		}
		if e.Mentions, err = parseInt(data, "mentions"); err != nil {
			return nil, err
		}
		if err := parseJSON(data, "aliases", &e.Aliases); err != nil {
			return nil, err
		}
		if err := parseJSON(data, "entity_metadata", &e.Metadata); err != nil {
			return nil, err
		}
		g.Entities = append(g.Entities, e)
	}

	for _, ed := range graph.SelectElements("edge") {
		data := dataMap(ed)
		rel := common.Relationship{
			ID:         ed.SelectAttrValue("id", ""),
			SourceID:   ed.SelectAttrValue("source", ""),
			TargetID:   ed.SelectAttrValue("target", ""),
			Type:       common.RelationshipType(data["relationship_type"]),
			SourceType: common.NodeKind(data["source_type"]),
			TargetType: common.NodeKind(data["target_type"]),
		}
		if rel.SourceID == "" || rel.TargetID == "" {
			return nil, fmt.Errorf("%w: edge without endpoints", common.ErrInvalidInput)
		}
		if rel.Type == "" {
			rel.Type = common.RelRelatesTo
		}
		if rel.SourceType == "" {
			rel.SourceType = common.NodeEntity
		}
		if rel.TargetType == "" {
			rel.TargetType = common.NodeEntity
		}
		var err error
		if rel.Confidence, err = parseFloat(data, "edge_confidence"); err != nil {
			return nil, err
		}
		if rel.Strength, err = parseFloat(data, "strength"); err != nil {
			return nil, err
		}
		if err := parseJSON(data, "evidence", &rel.Evidence); err != nil {
			return nil, err
		}
		if err := parseJSON(data, "relationship_metadata", &rel.Metadata); err != nil {
			return nil, err
		}
		g.Relationships = append(g.Relationships, rel)
	}
	return g, nil
}
