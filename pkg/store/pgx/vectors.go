package pgx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/kgraph/internal/util"
	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

const embeddingColumns = `id, document_id, entity_id, text, embedding, model, dimensions, metadata,
    created_at, updated_at`

const upsertEmbeddingSQL = `
INSERT INTO embeddings (` + embeddingColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
ON CONFLICT (id) DO UPDATE SET
    text = EXCLUDED.text,
    embedding = EXCLUDED.embedding,
    model = EXCLUDED.model,
    dimensions = EXCLUDED.dimensions,
    metadata = EXCLUDED.metadata,
    updated_at = EXCLUDED.updated_at`

// SaveEmbeddings stores vectors in one transaction. Vectors without an id
// get one.
func (s *GraphDBStorage) SaveEmbeddings(ctx context.Context, vectors []common.EmbeddingVector) error {
	if len(vectors) == 0 {
		return nil
	}
	err := s.withTx(ctx, func(tx pgxv5.Tx) error {
		return saveEmbeddings(ctx, tx, vectors)
	})
	if err != nil {
		return err
	}
	s.log.Debug("Saved embeddings", "count", len(vectors))
	return nil
}

// ReplaceEmbeddings deletes the document's vectors of model and saves the
// new ones in the same transaction.
func (s *GraphDBStorage) ReplaceEmbeddings(ctx context.Context, documentID, model string, vectors []common.EmbeddingVector) error {
	err := s.withTx(ctx, func(tx pgxv5.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM embeddings WHERE document_id = $1 AND model = $2`, documentID, model)
		if err != nil {
			return fmt.Errorf("failed to delete %s embeddings of %s: %w", model, documentID, err)
		}
		return saveEmbeddings(ctx, tx, vectors)
	})
	if err != nil {
		return err
	}
	s.log.Debug("Replaced embeddings", "document_id", documentID, "model", model, "count", len(vectors))
	return nil
}

func saveEmbeddings(ctx context.Context, tx pgxv5.Tx, vectors []common.EmbeddingVector) error {
	now := utcNow()
	for _, v := range vectors {
		if v.ID == "" {
			v.ID = util.NewID("emb")
		}
		metadata, err := marshalJSON(v.Metadata)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, upsertEmbeddingSQL,
			v.ID, nullable(v.DocumentID), nullable(v.EntityID), util.SanitizePostgresText(v.Text),
			pgvector.NewVector(v.Vector), v.Model, len(v.Vector), metadata, now,
		)
		if err != nil {
			return fmt.Errorf("failed to save embedding %s: %w", v.ID, err)
		}
	}
	return nil
}

// FindCandidates returns the vectors that pass f in insertion order. The
// file type falls back to the owning document when the vector carries none.
func (s *GraphDBStorage) FindCandidates(ctx context.Context, f store.VectorFilter) ([]common.EmbeddingVector, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Model != "" {
		where = append(where, "v.model = "+arg(f.Model))
	}
	if len(f.DocumentIDs) > 0 {
		where = append(where, "v.document_id = ANY("+arg(f.DocumentIDs)+")")
	}
	if len(f.EntityIDs) > 0 {
		where = append(where, "v.entity_id = ANY("+arg(f.EntityIDs)+")")
	}
	if len(f.FileTypes) > 0 {
		where = append(where,
			"COALESCE(NULLIF(v.metadata->>'file_type', ''), d.file_type) = ANY("+arg(f.FileTypes)+")")
	}
	if !f.From.IsZero() {
		where = append(where, "v.created_at >= "+arg(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "v.created_at <= "+arg(f.To))
	}

	columns := make([]string, 0, 10)
	for _, c := range strings.Split(embeddingColumns, ",") {
		columns = append(columns, "v."+strings.TrimSpace(c))
	}
	query := "SELECT " + strings.Join(columns, ", ") +
		" FROM embeddings v LEFT JOIN documents d ON d.id = v.document_id"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY v.created_at, v.id LIMIT " + arg(limitArg(f.Limit))

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedding candidates: %w", err)
	}
	vectors, err := pgxv5.CollectRows(rows, scanEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to scan embeddings: %w", err)
	}
	return vectors, nil
}

func scanEmbedding(row pgxv5.CollectableRow) (common.EmbeddingVector, error) {
	var (
		v                    common.EmbeddingVector
		documentID, entityID *string
		vec                  pgvector.Vector
		metadata             []byte
		createdAt, updatedAt time.Time
	)
	err := row.Scan(
		&v.ID, &documentID, &entityID, &v.Text, &vec, &v.Model, &v.Dimensions, &metadata,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return v, err
	}
	v.DocumentID = deref(documentID)
	v.EntityID = deref(entityID)
	v.Vector = vec.Slice()
	v.CreatedAt, v.UpdatedAt = createdAt, updatedAt
	return v, unmarshalJSON(metadata, &v.Metadata)
}

func (s *GraphDBStorage) DeleteEmbeddings(ctx context.Context, documentID string) error {
	if _, err := s.conn.Exec(ctx, `DELETE FROM embeddings WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("failed to delete embeddings of %s: %w", documentID, err)
	}
	return nil
}
