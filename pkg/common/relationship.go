package common

import (
	"fmt"
	"time"
)

// NodeKind tells whether a relationship endpoint is an entity or a document.
type NodeKind string

const (
	NodeEntity   NodeKind = "entity"
	NodeDocument NodeKind = "document"
)

// RelationshipType is the label of an edge.
type RelationshipType string

const (
	RelMentionedIn      RelationshipType = "MENTIONED_IN"
	RelRelatesTo        RelationshipType = "RELATES_TO"
	RelSimilarTo        RelationshipType = "SIMILAR_TO"
	RelPersonWorksFor   RelationshipType = "PERSON_WORKS_FOR"
	RelPersonFounded    RelationshipType = "PERSON_FOUNDED"
	RelPersonLocatedIn  RelationshipType = "PERSON_LOCATED_IN"
	RelOrgLocatedIn     RelationshipType = "ORG_LOCATED_IN"
	RelOrgAcquired      RelationshipType = "ORG_ACQUIRED"
	RelPartOf           RelationshipType = "PART_OF"
	RelCollaboratesWith RelationshipType = "COLLABORATES_WITH"
	RelHasContact       RelationshipType = "HAS_CONTACT"
	RelOccurredOn       RelationshipType = "OCCURRED_ON"
	RelCustom           RelationshipType = "CUSTOM"
)

// RelationshipKind names the rule that created a relationship.
type RelationshipKind string

const (
	KindMention    RelationshipKind = "mention"
	KindPattern    RelationshipKind = "pattern"
	KindProximity  RelationshipKind = "proximity"
	KindSimilarity RelationshipKind = "similarity"
	KindManual     RelationshipKind = "manual"
)

// Evidence records one occurrence supporting a relationship.
type Evidence struct {
	DocumentID string  `json:"document_id"`
	Context    string  `json:"context"`
	Position   int     `json:"position"`
	Confidence float64 `json:"confidence"`
}

// RelationshipMetadata carries the well-known attributes of a relationship.
type RelationshipMetadata struct {
	Kind                   RelationshipKind `json:"kind,omitempty"`
	Pattern                string           `json:"pattern,omitempty"`
	MatchedText            string           `json:"matched_text,omitempty"`
	Distance               *int             `json:"distance,omitempty"`
	Similarity             *float64         `json:"similarity,omitempty"`
	EvidenceCount          int              `json:"evidence_count,omitempty"`
	MeanEvidenceConfidence float64          `json:"mean_evidence_confidence,omitempty"`
	Bidirectional          bool             `json:"bidirectional,omitempty"`
	Extra                  map[string]any   `json:"extra,omitempty"`
}

// Relationship is a directed, typed and evidence-backed edge between two
// entities, an entity and a document, or two documents.
//
// The store keeps at most one relationship per Key. When two writers race on
// the same key the higher confidence wins.
type Relationship struct {
	ID         string               `json:"id"`
	SourceID   string               `json:"source_id"`
	TargetID   string               `json:"target_id"`
	SourceType NodeKind             `json:"source_type"`
	TargetType NodeKind             `json:"target_type"`
	Type       RelationshipType     `json:"relationship_type"`
	Confidence float64              `json:"confidence"`
	Strength   float64              `json:"strength"`
	Evidence   []Evidence           `json:"evidence"`
	Metadata   RelationshipMetadata `json:"metadata"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// RelationshipKey identifies the unique slot a relationship occupies.
type RelationshipKey struct {
	SourceID string
	TargetID string
	Type     RelationshipType
}

func (k RelationshipKey) String() string {
	return fmt.Sprintf("%s-[%s]->%s", k.SourceID, k.Type, k.TargetID)
}

// Key returns the uniqueness key of r.
func (r Relationship) Key() RelationshipKey {
	return RelationshipKey{SourceID: r.SourceID, TargetID: r.TargetID, Type: r.Type}
}

// Reversed returns a copy of r with swapped endpoints and a fresh id slot.
func (r Relationship) Reversed() Relationship {
	rev := r
	rev.ID = ""
	rev.SourceID, rev.TargetID = r.TargetID, r.SourceID
	rev.SourceType, rev.TargetType = r.TargetType, r.SourceType
	rev.Evidence = append([]Evidence(nil), r.Evidence...)
	return rev
}

// MergeEvidence returns the union of a and b. Entries are identified by
// document and position, the first occurrence wins.
func MergeEvidence(a, b []Evidence) []Evidence {
	type key struct {
		doc string
		pos int
	}
	seen := make(map[key]struct{}, len(a)+len(b))
	out := make([]Evidence, 0, len(a)+len(b))
	for _, list := range [][]Evidence{a, b} {
		for _, ev := range list {
			k := key{ev.DocumentID, ev.Position}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, ev)
		}
	}
	return out
}

// SummarizeEvidence fills the evidence aggregates of r.Metadata.
func SummarizeEvidence(r *Relationship) {
	r.Metadata.EvidenceCount = len(r.Evidence)
	if len(r.Evidence) == 0 {
		r.Metadata.MeanEvidenceConfidence = 0
		return
	}
	sum := 0.0
	for _, ev := range r.Evidence {
		sum += ev.Confidence
	}
	r.Metadata.MeanEvidenceConfidence = sum / float64(len(r.Evidence))
}

// MergeRelationship resolves two relationships with the same key. The one
// with the higher confidence provides the values, evidence is unioned.
func MergeRelationship(existing, incoming Relationship) Relationship {
	winner, loser := existing, incoming
	if incoming.Confidence > existing.Confidence {
		winner, loser = incoming, existing
	}
	winner.ID = existing.ID
	if winner.ID == "" {
		winner.ID = loser.ID
	}
	if !existing.CreatedAt.IsZero() {
		winner.CreatedAt = existing.CreatedAt
	}
	winner.Evidence = MergeEvidence(existing.Evidence, incoming.Evidence)
	SummarizeEvidence(&winner)
	return winner
}
