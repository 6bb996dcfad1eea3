package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/trace"
)

func findEntity(entities []common.Entity, typ common.EntityType) (common.Entity, bool) {
	for _, e := range entities {
		if e.Type == typ {
			return e, true
		}
	}
	return common.Entity{}, false
}

func TestExtractContactLine(t *testing.T) {
	x := NewExtractor(NewExtractorParams{})
	res, err := x.Extract(context.Background(), "Contact John Doe at john.doe@example.com or call 555-123-4567", DefaultOptions())
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}

	email, ok := findEntity(res.Entities, common.EntityEmail)
	if !ok {
		t.Fatalf("expected an EMAIL entity, got %+v", res.Entities)
	}
	if email.Text != "john.doe@example.com" || email.Confidence < 0.9 {
		t.Fatalf("unexpected email entity: %+v", email)
	}

	phone, ok := findEntity(res.Entities, common.EntityPhone)
	if !ok {
		t.Fatalf("expected a PHONE entity, got %+v", res.Entities)
	}
	if phone.NormalizedValue != "5551234567" {
		t.Fatalf("phone normalized to %q", phone.NormalizedValue)
	}

	person, ok := findEntity(res.Entities, common.EntityPerson)
	if !ok {
		t.Fatalf("expected a PERSON entity, got %+v", res.Entities)
	}
	if person.Text != "John Doe" {
		t.Fatalf("person text = %q, want John Doe", person.Text)
	}

	if _, ok := findEntity(res.Entities, common.EntityNumber); ok {
		t.Fatalf("phone digits must not be reported as numbers: %+v", res.Entities)
	}
	if res.TokensProcessed != 8 {
		t.Fatalf("tokens processed = %d, want 8", res.TokensProcessed)
	}
}

func TestExtractInvariants(t *testing.T) {
	texts := []string{
		"Jane Smith works for Acme Widgets Inc in Berlin since 2021-03-04.",
		"Revenue grew 15% to $3.5 million. Machine learning and machine   learning again.",
		"Visit https://Example.com/Path, or write to INFO@EXAMPLE.COM before 10:30 am on March 5, 2024.",
		"Peter Parker met Mary Jane Watson on Baker Street near Central Park. Call +49 441 123 4567.",
		"",
	}
	x := NewExtractor(NewExtractorParams{})
	for _, text := range texts {
		res, err := x.Extract(context.Background(), text, DefaultOptions())
		if err != nil {
			t.Fatalf("Extract(%q) returned error: %v", text, err)
		}
		for i, e := range res.Entities {
			if e.Confidence < 0 || e.Confidence > 1 {
				t.Fatalf("confidence out of range: %+v", e)
			}
			if e.Confidence < DefaultMinConfidence {
				t.Fatalf("entity below min confidence kept: %+v", e)
			}
			if i > 0 && res.Entities[i-1].StartPos > e.StartPos {
				t.Fatalf("entities not sorted by start: %+v", res.Entities)
			}
			if text[e.StartPos:e.EndPos] == "" {
				t.Fatalf("empty span: %+v", e)
			}
			for _, o := range res.Entities[i+1:] {
				if o.Type == e.Type && o.Overlaps(e) {
					t.Fatalf("overlapping %s entities after merge: %+v and %+v", e.Type, e, o)
				}
			}
		}
		if res.Confidence < 0 || res.Confidence > 1 {
			t.Fatalf("result confidence out of range: %v", res.Confidence)
		}
	}
}

func TestExtractHeuristics(t *testing.T) {
	text := "Jane Smith joined Acme Widgets Inc and moved to Baker Street in Berlin to study machine learning."
	x := NewExtractor(NewExtractorParams{})
	res, err := x.Extract(context.Background(), text, DefaultOptions())
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}

	want := map[common.EntityType]string{
		common.EntityPerson:       "Jane Smith",
		common.EntityOrganization: "Acme Widgets Inc",
		common.EntityConcept:      "machine learning",
	}
	for typ, text := range want {
		e, ok := findEntity(res.Entities, typ)
		if !ok {
			t.Fatalf("expected %s entity, got %+v", typ, res.Entities)
		}
		if e.Text != text {
			t.Fatalf("%s text = %q, want %q", typ, e.Text, text)
		}
	}

	var locations []string
	for _, e := range res.Entities {
		if e.Type == common.EntityLocation {
			locations = append(locations, e.Text)
		}
	}
	if strings.Join(locations, "|") != "Baker Street|Berlin" {
		t.Fatalf("locations = %v", locations)
	}
}

func TestExtractTypeFilter(t *testing.T) {
	opts := DefaultOptions()
	opts.Types = []common.EntityType{common.EntityEmail}

	x := NewExtractor(NewExtractorParams{})
	res, err := x.Extract(context.Background(), "Contact John Doe at john.doe@example.com or call 555-123-4567", opts)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(res.Entities) != 1 || res.Entities[0].Type != common.EntityEmail {
		t.Fatalf("expected only the email, got %+v", res.Entities)
	}
}

func TestExtractErrors(t *testing.T) {
	x := NewExtractor(NewExtractorParams{})

	tests := []struct {
		name string
		ctx  func() context.Context
		text string
		opts func() Options
	}{
		{
			name: "invalid utf8",
			ctx:  context.Background,
			text: "bad \xff\xfe bytes",
			opts: DefaultOptions,
		},
		{
			name: "confidence above one",
			ctx:  context.Background,
			text: "text",
			opts: func() Options {
				o := DefaultOptions()
				o.MinConfidence = 1.5
				return o
			},
		},
		{
			name: "unknown type",
			ctx:  context.Background,
			text: "text",
			opts: func() Options {
				o := DefaultOptions()
				o.Types = []common.EntityType{common.EntityDocument}
				return o
			},
		},
		{
			name: "cancelled context",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			text: "text",
			opts: DefaultOptions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := x.Extract(tt.ctx(), tt.text, tt.opts())
			var extractionErr *common.ExtractionError
			if !errors.As(err, &extractionErr) {
				t.Fatalf("expected ExtractionError, got %v", err)
			}
		})
	}
}

type failingEnricher struct{}

func (failingEnricher) Enrich(context.Context, []common.Entity) (map[int]Enrichment, error) {
	return nil, errors.New("knowledge base offline")
}

type aliasEnricher struct{}

func (aliasEnricher) Enrich(_ context.Context, entities []common.Entity) (map[int]Enrichment, error) {
	out := make(map[int]Enrichment)
	for i, e := range entities {
		if e.Type == common.EntityPerson {
			out[i] = Enrichment{Mentions: 7, Aliases: []string{"J. Doe"}}
		}
	}
	return out, nil
}

func TestExtractEnrichment(t *testing.T) {
	text := "Contact John Doe at john.doe@example.com"

	t.Run("failure is not fatal", func(t *testing.T) {
		rec := &trace.Recorder{}
		x := NewExtractor(NewExtractorParams{Enricher: failingEnricher{}, Tracer: rec})
		res, err := x.Extract(context.Background(), text, DefaultOptions())
		if err != nil {
			t.Fatalf("Extract returned error: %v", err)
		}
		if len(res.Entities) == 0 {
			t.Fatalf("expected entities despite enrichment failure")
		}
		if rec.Count(trace.EventEnrichmentFailed) != 1 {
			t.Fatalf("expected one enrichment failure event")
		}
		if rec.Count(trace.EventExtraction) != 1 {
			t.Fatalf("expected one extraction event")
		}
	})

	t.Run("applies mentions and aliases", func(t *testing.T) {
		x := NewExtractor(NewExtractorParams{Enricher: aliasEnricher{}})
		res, err := x.Extract(context.Background(), text, DefaultOptions())
		if err != nil {
			t.Fatalf("Extract returned error: %v", err)
		}
		person, ok := findEntity(res.Entities, common.EntityPerson)
		if !ok {
			t.Fatalf("expected a person")
		}
		if person.Mentions != 7 || len(person.Aliases) != 1 {
			t.Fatalf("enrichment not applied: %+v", person)
		}
	})
}

func TestMergeOverlapping(t *testing.T) {
	in := []common.Entity{
		{Text: "Acme", Type: common.EntityOrganization, StartPos: 0, EndPos: 4, Confidence: 0.9},
		{Text: "Acme Widgets Inc", Type: common.EntityOrganization, StartPos: 0, EndPos: 16, Confidence: 0.8},
		{Text: "Widgets", Type: common.EntityConcept, StartPos: 5, EndPos: 12, Confidence: 0.9},
	}
	out := mergeOverlapping(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 entities, got %+v", out)
	}
	org := out[0]
	if org.Text != "Acme Widgets Inc" || org.StartPos != 0 || org.EndPos != 16 || org.Confidence != 0.9 {
		t.Fatalf("unexpected merged entity: %+v", org)
	}
}

func TestLoadVocabulary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	data := "concepts:\n  energy: [\"heat pump\"]\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write vocabulary: %v", err)
	}
	v, err := LoadVocabulary(path)
	if err != nil {
		t.Fatalf("LoadVocabulary returned error: %v", err)
	}
	if len(v.Locations) == 0 || len(v.Stopwords) == 0 {
		t.Fatalf("missing sections must fall back to defaults")
	}

	x := NewExtractor(NewExtractorParams{Vocabulary: &v})
	res, err := x.Extract(context.Background(), "The new Heat   Pump runs quietly.", DefaultOptions())
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	c, ok := findEntity(res.Entities, common.EntityConcept)
	if !ok {
		t.Fatalf("expected concept, got %+v", res.Entities)
	}
	if c.NormalizedValue != "Heat Pump" || c.Metadata.Extra["category"] != "energy" {
		t.Fatalf("unexpected concept: %+v", c)
	}
}
