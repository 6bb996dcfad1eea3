package common

import (
	"slices"
	"strings"
	"time"
)

// EntityType classifies an entity mention.
type EntityType string

const (
	EntityPerson       EntityType = "PERSON"
	EntityOrganization EntityType = "ORGANIZATION"
	EntityLocation     EntityType = "LOCATION"
	EntityDate         EntityType = "DATE"
	EntityTime         EntityType = "TIME"
	EntityEmail        EntityType = "EMAIL"
	EntityPhone        EntityType = "PHONE"
	EntityURL          EntityType = "URL"
	EntityMoney        EntityType = "MONEY"
	EntityPercent      EntityType = "PERCENT"
	EntityNumber       EntityType = "NUMBER"
	EntityConcept      EntityType = "CONCEPT"

	// EntityDocument is only used for graph nodes that stand for a document.
	EntityDocument EntityType = "DOCUMENT"
	// EntityUnknown marks placeholder entities materialized for dangling
	// relationship endpoints.
	EntityUnknown EntityType = "UNKNOWN"
)

// ExtractableEntityTypes lists every type the extractor can produce.
var ExtractableEntityTypes = []EntityType{
	EntityPerson,
	EntityOrganization,
	EntityLocation,
	EntityDate,
	EntityTime,
	EntityEmail,
	EntityPhone,
	EntityURL,
	EntityMoney,
	EntityPercent,
	EntityNumber,
	EntityConcept,
}

// ParseEntityType converts a free-form string into an EntityType. Unknown
// values map to EntityUnknown.
func ParseEntityType(s string) EntityType {
	t := EntityType(strings.ToUpper(strings.TrimSpace(s)))
	if slices.Contains(ExtractableEntityTypes, t) || t == EntityDocument {
		return t
	}
	return EntityUnknown
}

// EntitySource names the strategy that produced an entity.
type EntitySource string

const (
	SourcePattern     EntitySource = "pattern"
	SourceHeuristic   EntitySource = "heuristic"
	SourceConcept     EntitySource = "concept"
	SourceNER         EntitySource = "ner"
	SourceManual      EntitySource = "manual"
	SourcePlaceholder EntitySource = "placeholder"
)

// EntityMetadata carries the well-known attributes of an entity. Anything
// else lands in Extra.
type EntityMetadata struct {
	Source      EntitySource   `json:"source,omitempty"`
	Pattern     string         `json:"pattern,omitempty"`
	Placeholder bool           `json:"placeholder,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// Entity is a typed mention detected in a document. An entity is owned by
// the document it was found in and lives until that document is deleted.
//
// StartPos and EndPos are byte offsets into the document text, EndPos is
// exclusive. Entities that refer to the same real-world thing in different
// documents stay separate rows until they are merged explicitly.
type Entity struct {
	ID              string         `json:"id"`
	Text            string         `json:"text"`
	Type            EntityType     `json:"type"`
	StartPos        int            `json:"start_pos"`
	EndPos          int            `json:"end_pos"`
	Confidence      float64        `json:"confidence"`
	Context         string         `json:"context,omitempty"`
	NormalizedValue string         `json:"normalized_value,omitempty"`
	Metadata        EntityMetadata `json:"metadata"`
	DocumentID      string         `json:"document_id,omitempty"`
	Mentions        int            `json:"mentions"`
	Aliases         []string       `json:"aliases,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Overlaps reports whether the spans of e and o intersect.
func (e Entity) Overlaps(o Entity) bool {
	return e.StartPos < o.EndPos && o.StartPos < e.EndPos
}

// PlaceholderEntity returns the stand-in entity used when a relationship
// points at an id the store does not know.
func PlaceholderEntity(id string) Entity {
	now := time.Now().UTC()
	return Entity{
		ID:         id,
		Text:       id,
		Type:       EntityUnknown,
		Confidence: 0,
		Metadata: EntityMetadata{
			Source:      SourcePlaceholder,
			Placeholder: true,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Document is the read-only input record handed to the pipeline.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	FileType  string    `json:"file_type"`
	CreatedAt time.Time `json:"created_at"`
}

// Clamp01 limits v to the closed interval [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
