package common

import "time"

// EmbeddingStrategyName identifies how a vector was produced.
type EmbeddingStrategyName string

const (
	StrategyInference EmbeddingStrategyName = "inference"
	StrategyRemote    EmbeddingStrategyName = "remote"
	StrategyHash      EmbeddingStrategyName = "hash-fallback"
)

// EmbeddingMetadata carries the well-known attributes of a stored vector.
type EmbeddingMetadata struct {
	ChunkIndex  int                   `json:"chunk_index"`
	TotalChunks int                   `json:"total_chunks"`
	Strategy    EmbeddingStrategyName `json:"strategy,omitempty"`
	Fallback    bool                  `json:"fallback,omitempty"`
	FileType    string                `json:"file_type,omitempty"`
	Extra       map[string]any        `json:"extra,omitempty"`
}

// EmbeddingVector is a unit-length vector for a chunk of text.
//
// Dimensions always equals len(Vector) and the declared dimensionality of
// Model.
type EmbeddingVector struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id,omitempty"`
	EntityID   string            `json:"entity_id,omitempty"`
	Text       string            `json:"text"`
	Vector     []float32         `json:"vector"`
	Model      string            `json:"model"`
	Dimensions int               `json:"dimensions"`
	Metadata   EmbeddingMetadata `json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}
