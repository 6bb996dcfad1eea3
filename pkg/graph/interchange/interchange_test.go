package interchange

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
)

func sampleGraph() *Graph {
	return &Graph{
		Entities: []common.Entity{
			{
				ID: "ent_a", Text: "Jane Roe", Type: common.EntityPerson, NormalizedValue: "Jane Roe",
				Confidence: 0.8, StartPos: 0, EndPos: 8, DocumentID: "doc1", Mentions: 2,
				Aliases:  []string{"J. Roe"},
				Metadata: common.EntityMetadata{Source: common.SourceHeuristic},
			},
			{
				ID: "ent_b", Text: "Acme Corp", Type: common.EntityOrganization,
				Confidence: 0.8, StartPos: 22, EndPos: 31, DocumentID: "doc1",
			},
		},
		Relationships: []common.Relationship{
			{
				ID: "rel_1", SourceID: "ent_a", TargetID: "ent_b",
				SourceType: common.NodeEntity, TargetType: common.NodeEntity,
				Type: common.RelPersonWorksFor, Confidence: 0.9, Strength: 0.9,
				Evidence: []common.Evidence{{DocumentID: "doc1", Context: "Jane Roe works for Acme Corp", Position: 0, Confidence: 0.9}},
				Metadata: common.RelationshipMetadata{Kind: common.KindPattern, Pattern: "works_for"},
			},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	for _, f := range []Format{FormatJSON, FormatGraphML} {
		t.Run(string(f), func(t *testing.T) {
			var buf bytes.Buffer
			if err := Write(&buf, f, sampleGraph()); err != nil {
				t.Fatalf("write: %v", err)
			}
			got, err := Read(&buf, f)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if len(got.Entities) != 2 || len(got.Relationships) != 1 {
				t.Fatalf("unexpected sizes: %d entities, %d relationships", len(got.Entities), len(got.Relationships))
			}
			e := got.Entities[0]
			if e.ID != "ent_a" || e.Type != common.EntityPerson || e.EndPos != 8 || e.Confidence != 0.8 {
				t.Fatalf("entity not preserved: %+v", e)
			}
			if len(e.Aliases) != 1 || e.Aliases[0] != "J. Roe" {
				t.Fatalf("aliases not preserved: %v", e.Aliases)
			}
			if e.Metadata.Source != common.SourceHeuristic {
				t.Fatalf("metadata not preserved: %+v", e.Metadata)
			}
			r := got.Relationships[0]
			if r.SourceID != "ent_a" || r.TargetID != "ent_b" || r.Type != common.RelPersonWorksFor {
				t.Fatalf("relationship not preserved: %+v", r)
			}
			if len(r.Evidence) != 1 || r.Evidence[0].Context != "Jane Roe works for Acme Corp" {
				t.Fatalf("evidence not preserved: %+v", r.Evidence)
			}
			if r.Metadata.Pattern != "works_for" {
				t.Fatalf("relationship metadata not preserved: %+v", r.Metadata)
			}
		})
	}
}

func TestReadForeignGraphML(t *testing.T) {
	src := `<?xml version="1.0"?>
<graphml xmlns="http://graphml.graphdrawing.org/xmlns">
  <graph edgedefault="undirected">
    <node id="n1"/>
    <node id="n2"><data key="type">location</data></node>
    <edge source="n1" target="n2"/>
  </graph>
</graphml>`
	g, err := ReadGraphML(strings.NewReader(src))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if g.Entities[0].Type != common.EntityUnknown || g.Entities[0].Text != "n1" {
		t.Fatalf("unexpected first node: %+v", g.Entities[0])
	}
	if g.Entities[1].Type != common.EntityLocation {
		t.Fatalf("unexpected second node type: %s", g.Entities[1].Type)
	}
	if g.Relationships[0].Type != common.RelRelatesTo || g.Relationships[0].SourceType != common.NodeEntity {
		t.Fatalf("unexpected edge defaults: %+v", g.Relationships[0])
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		input  string
	}{
		{"broken json", FormatJSON, `{"entities": [`},
		{"not graphml", FormatGraphML, `<root/>`},
		{"bad number", FormatGraphML, `<graphml><graph><node id="a"><data key="confidence">high</data></node></graph></graphml>`},
		{"csv import", FormatCSV, "id\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Read(strings.NewReader(tt.input), tt.format); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	_, err := Read(strings.NewReader(""), FormatHTML)
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestWriteCSVSections(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleGraph()); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	entities := strings.Index(out, "# entities")
	rels := strings.Index(out, "# relationships")
	if entities != 0 || rels < entities {
		t.Fatalf("sections missing or out of order:\n%s", out)
	}
	if !strings.Contains(out, "ent_a,Jane Roe,PERSON,Jane Roe,0.8,doc1,0,8,2,J. Roe") {
		t.Fatalf("entity row missing:\n%s", out)
	}
	if !strings.Contains(out, "rel_1,ent_a,ent_b,entity,entity,PERSON_WORKS_FOR,0.9,0.9,1") {
		t.Fatalf("relationship row missing:\n%s", out)
	}
}

func TestWriteHTMLEmbedsData(t *testing.T) {
	g := sampleGraph()
	g.Relationships = append(g.Relationships, common.Relationship{SourceID: "ent_a", TargetID: "doc1", Type: common.RelMentionedIn})

	var buf bytes.Buffer
	if err := WriteHTML(&buf, g); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"id":"ent_a"`) || !strings.Contains(out, "d3.forceSimulation") {
		t.Fatalf("graph data not embedded:\n%s", out)
	}
	if strings.Contains(out, `"target":"doc1"`) {
		t.Fatalf("link to missing node was kept")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"GraphML", FormatGraphML, false},
		{" csv ", FormatCSV, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}
