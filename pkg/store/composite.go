package store

import (
	"context"
	"errors"
	"fmt"
)

// GraphBackend is a GraphStore that can drop the entities of a document.
type GraphBackend interface {
	GraphStore
	DeleteDocumentEntities(ctx context.Context, documentID string) error
}

// Composite assembles a Store from separate document, graph and vector
// backends, for example Postgres documents with a Neo4j graph and Qdrant
// vectors.
type Composite struct {
	DocumentStore
	GraphBackend
	VectorStore
}

var _ Store = (*Composite)(nil)

// NewComposite wires the three backends together. None may be nil.
func NewComposite(docs DocumentStore, graph GraphBackend, vectors VectorStore) (*Composite, error) {
	if docs == nil || graph == nil || vectors == nil {
		return nil, errors.New("composite store needs document, graph and vector backends")
	}
	return &Composite{DocumentStore: docs, GraphBackend: graph, VectorStore: vectors}, nil
}

// DeleteDocument removes the document and cascades to the graph and vector
// backends. Relationships are left alone.
func (c *Composite) DeleteDocument(ctx context.Context, id string) error {
	if err := c.DocumentStore.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if err := c.GraphBackend.DeleteDocumentEntities(ctx, id); err != nil {
		return fmt.Errorf("failed to cascade delete of %s: %w", id, err)
	}
	if err := c.VectorStore.DeleteEmbeddings(ctx, id); err != nil {
		return fmt.Errorf("failed to cascade delete of %s: %w", id, err)
	}
	return nil
}
