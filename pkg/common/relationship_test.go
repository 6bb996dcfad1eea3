package common

import (
	"errors"
	"testing"
)

func TestMergeRelationship(t *testing.T) {
	existing := Relationship{
		ID:         "r1",
		SourceID:   "a",
		TargetID:   "b",
		Type:       RelRelatesTo,
		Confidence: 0.6,
		Strength:   0.4,
		Evidence:   []Evidence{{DocumentID: "d1", Position: 10, Confidence: 0.6}},
	}

	tests := []struct {
		name           string
		incoming       Relationship
		wantConfidence float64
		wantEvidence   int
	}{
		{
			name: "stronger incoming wins values",
			incoming: Relationship{
				ID: "r2", SourceID: "a", TargetID: "b", Type: RelRelatesTo,
				Confidence: 0.9, Strength: 0.8,
				Evidence: []Evidence{{DocumentID: "d2", Position: 3, Confidence: 0.9}},
			},
			wantConfidence: 0.9,
			wantEvidence:   2,
		},
		{
			name: "weaker incoming keeps existing values",
			incoming: Relationship{
				SourceID: "a", TargetID: "b", Type: RelRelatesTo,
				Confidence: 0.2,
				Evidence:   []Evidence{{DocumentID: "d1", Position: 10, Confidence: 0.2}},
			},
			wantConfidence: 0.6,
			wantEvidence:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeRelationship(existing, tt.incoming)
			if got.ID != "r1" {
				t.Fatalf("expected existing id to be kept, got %q", got.ID)
			}
			if got.Confidence != tt.wantConfidence {
				t.Fatalf("confidence = %v, want %v", got.Confidence, tt.wantConfidence)
			}
			if len(got.Evidence) != tt.wantEvidence {
				t.Fatalf("evidence = %d, want %d", len(got.Evidence), tt.wantEvidence)
			}
			if got.Metadata.EvidenceCount != tt.wantEvidence {
				t.Fatalf("evidence count metadata = %d, want %d", got.Metadata.EvidenceCount, tt.wantEvidence)
			}
		})
	}
}

func TestReversed(t *testing.T) {
	r := Relationship{ID: "x", SourceID: "a", TargetID: "doc", SourceType: NodeEntity, TargetType: NodeDocument}
	rev := r.Reversed()
	if rev.ID != "" || rev.SourceID != "doc" || rev.TargetID != "a" {
		t.Fatalf("unexpected reversed relationship: %+v", rev)
	}
	if rev.SourceType != NodeDocument || rev.TargetType != NodeEntity {
		t.Fatalf("endpoint kinds not swapped: %+v", rev)
	}
}

func TestParseEntityType(t *testing.T) {
	tests := []struct {
		in   string
		want EntityType
	}{
		{"person", EntityPerson},
		{" EMAIL ", EntityEmail},
		{"document", EntityDocument},
		{"spaceship", EntityUnknown},
	}
	for _, tt := range tests {
		if got := ParseEntityType(tt.in); got != tt.want {
			t.Errorf("ParseEntityType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTypedErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")
	errs := []error{
		NewExtractionError("validate", cause),
		NewRelationshipBuildError("persist", cause),
		NewEmbeddingError("forward", "m", cause),
		NewGraphQueryError("statistics", cause),
	}
	for _, err := range errs {
		if !errors.Is(err, cause) {
			t.Errorf("%T does not wrap its cause", err)
		}
	}

	var gqe *GraphQueryError
	if !errors.As(errs[3], &gqe) || gqe.Op != "statistics" {
		t.Fatalf("errors.As failed for GraphQueryError")
	}
}
