package pgx

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/kgraph/internal/util"
	"github.com/OFFIS-RIT/kgraph/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
)

const upsertDocumentSQL = `
INSERT INTO documents (id, title, content, file_type, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    title = EXCLUDED.title,
    content = EXCLUDED.content,
    file_type = EXCLUDED.file_type`

func (s *GraphDBStorage) SaveDocument(ctx context.Context, doc common.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document without id: %w", common.ErrInvalidInput)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = utcNow()
	}
	_, err := s.conn.Exec(ctx, upsertDocumentSQL,
		doc.ID, doc.Title, util.SanitizePostgresText(doc.Content), doc.FileType, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
	}
	return nil
}

// GetDocuments returns the documents in the order of ids. A missing id is
// an ErrNotFound.
func (s *GraphDBStorage) GetDocuments(ctx context.Context, ids []string) ([]common.Document, error) {
	if len(ids) == 0 {
		return []common.Document{}, nil
	}
	rows, err := s.conn.Query(ctx,
		`SELECT id, title, content, file_type, created_at FROM documents WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	found, err := pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.Document, error) {
		var d common.Document
		err := row.Scan(&d.ID, &d.Title, &d.Content, &d.FileType, &d.CreatedAt)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan documents: %w", err)
	}

	byID := make(map[string]common.Document, len(found))
	for _, d := range found {
		byID[d.ID] = d
	}
	out := make([]common.Document, 0, len(ids))
	for _, id := range ids {
		d, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("document %s: %w", id, common.ErrNotFound)
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *GraphDBStorage) ListDocumentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, `SELECT id FROM documents ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	ids, err := pgxv5.CollectRows(rows, pgxv5.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan document ids: %w", err)
	}
	return ids, nil
}

// DeleteDocument removes the document with its entities and embeddings in
// one transaction.
func (s *GraphDBStorage) DeleteDocument(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx pgxv5.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM embeddings WHERE document_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete embeddings of %s: %w", id, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM entities WHERE document_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete entities of %s: %w", id, err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete document %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("document %s: %w", id, common.ErrNotFound)
		}
		return nil
	})
}

// DeleteDocumentEntities removes the entities of a document and leaves the
// document row alone.
func (s *GraphDBStorage) DeleteDocumentEntities(ctx context.Context, documentID string) error {
	if _, err := s.conn.Exec(ctx, `DELETE FROM entities WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("failed to delete entities of %s: %w", documentID, err)
	}
	return nil
}
