package store

import (
	"context"
	"time"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
)

// Direction selects which incident edges of a node a traversal follows.
type Direction string

const (
	DirectionOut  Direction = "out"
	DirectionIn   Direction = "in"
	DirectionBoth Direction = "both"
)

// EntityFilter narrows ListEntities. Empty fields do not filter.
type EntityFilter struct {
	IDs        []string
	DocumentID string
	Types      []common.EntityType
	Limit      int
}

// RelationshipFilter narrows ListRelationships. NodeIDs combined with
// Direction selects edges incident to those nodes. Empty fields do not filter.
type RelationshipFilter struct {
	NodeIDs     []string
	Direction   Direction
	Types       []common.RelationshipType
	MinStrength float64
	Limit       int
}

// RelationshipPatch describes a partial update. Nil fields are kept, Evidence
// is appended.
type RelationshipPatch struct {
	Type       *common.RelationshipType
	Confidence *float64
	Strength   *float64
	Evidence   []common.Evidence
	Metadata   *common.RelationshipMetadata
}

// DegreeQuery asks for entities ranked by number of incident relationships.
type DegreeQuery struct {
	Types []common.EntityType
	Limit int
}

// EntityDegree pairs an entity with its incident relationship count.
type EntityDegree struct {
	Entity common.Entity
	Degree int
}

// Counts holds the type histograms behind graph statistics.
type Counts struct {
	TotalEntities      int
	TotalRelationships int
	EntityTypes        map[common.EntityType]int
	RelationshipTypes  map[common.RelationshipType]int
}

// VectorFilter narrows FindCandidates before any similarity is computed.
type VectorFilter struct {
	Model       string
	DocumentIDs []string
	EntityIDs   []string
	FileTypes   []string
	From        time.Time
	To          time.Time
	Limit       int
}

// DocumentStore is the read side of the document collaborator plus the
// minimal write path used by the API and tests.
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc common.Document) error
	GetDocuments(ctx context.Context, ids []string) ([]common.Document, error)
	ListDocumentIDs(ctx context.Context) ([]string, error)
	// DeleteDocument removes the document together with its entities and
	// embeddings. Relationships are left alone.
	DeleteDocument(ctx context.Context, id string) error
}

// EntityStore persists extracted entities.
type EntityStore interface {
	// SaveEntities upserts entities keyed by document, type and span. Existing
	// rows keep their id. The stored rows are returned in input order.
	SaveEntities(ctx context.Context, entities []common.Entity) ([]common.Entity, error)
	ListEntities(ctx context.Context, filter EntityFilter) ([]common.Entity, error)
	// EnsureEntities creates placeholder entities for ids that do not exist.
	EnsureEntities(ctx context.Context, ids []string) error
	// MergeEntities folds sourceIDs into targetID: relationships are
	// re-pointed, texts become aliases and the sources are removed.
	MergeEntities(ctx context.Context, targetID string, sourceIDs []string) (common.Entity, error)
}

// RelationshipStore persists relationships.
type RelationshipStore interface {
	// UpsertRelationships writes all rows in one atomic operation. Rows with
	// an existing (source, target, type) key are only overwritten by a higher
	// confidence, evidence is always unioned. The stored rows are returned.
	UpsertRelationships(ctx context.Context, rels []common.Relationship) ([]common.Relationship, error)
	GetRelationship(ctx context.Context, id string) (common.Relationship, error)
	UpdateRelationship(ctx context.Context, id string, patch RelationshipPatch) (common.Relationship, error)
	DeleteRelationship(ctx context.Context, id string) error
	ListRelationships(ctx context.Context, filter RelationshipFilter) ([]common.Relationship, error)
}

// GraphStore is what the graph service reads and mutates.
type GraphStore interface {
	RelationshipStore
	ListEntities(ctx context.Context, filter EntityFilter) ([]common.Entity, error)
	EnsureEntities(ctx context.Context, ids []string) error
	SaveEntities(ctx context.Context, entities []common.Entity) ([]common.Entity, error)
	MergeEntities(ctx context.Context, targetID string, sourceIDs []string) (common.Entity, error)
	EntityDegrees(ctx context.Context, query DegreeQuery) ([]EntityDegree, error)
	Counts(ctx context.Context) (Counts, error)
}

// VectorStore persists embedding vectors and hands out filtered candidates.
// It never ranks by similarity.
type VectorStore interface {
	SaveEmbeddings(ctx context.Context, vectors []common.EmbeddingVector) error
	FindCandidates(ctx context.Context, filter VectorFilter) ([]common.EmbeddingVector, error)
	DeleteEmbeddings(ctx context.Context, documentID string) error
	// ReplaceEmbeddings swaps the document's vectors of one model for
	// vectors. Vectors of other models are kept.
	ReplaceEmbeddings(ctx context.Context, documentID, model string, vectors []common.EmbeddingVector) error
}

// Store bundles every persistence concern. The postgres and memory
// implementations satisfy it.
type Store interface {
	DocumentStore
	EntityStore
	RelationshipStore
	VectorStore
	EntityDegrees(ctx context.Context, query DegreeQuery) ([]EntityDegree, error)
	Counts(ctx context.Context) (Counts, error)
}
