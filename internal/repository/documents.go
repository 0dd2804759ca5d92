package repository

import (
	"context"
	"fmt"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/ayo6706/delivery-marketplace/internal/models"
	"github.com/google/uuid"
)

const documentColumns = `id, user_id, type, status, storage_key, file_name, content_type,
	rejection_reason, reviewed_by, reviewed_at, created_at, updated_at`

func scanDocument(row rowScanner) (models.Document, error) {
	var d models.Document
	err := row.Scan(&d.ID, &d.UserID, &d.Type, &d.Status, &d.StorageKey, &d.FileName, &d.ContentType,
		&d.RejectionReason, &d.ReviewedBy, &d.ReviewedAt, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (q *Queries) CreateDocument(ctx context.Context, d *models.Document) error {
	query := `INSERT INTO documents (id, user_id, type, status, storage_key, file_name, content_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at, updated_at`
	err := q.db.QueryRow(ctx, query, d.ID, d.UserID, d.Type, d.Status, d.StorageKey, d.FileName, d.ContentType).
		Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (q *Queries) GetDocument(ctx context.Context, id uuid.UUID) (models.Document, error) {
	return scanDocument(q.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
}

func (q *Queries) GetDocumentForUpdate(ctx context.Context, id uuid.UUID) (models.Document, error) {
	return scanDocument(q.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`, id))
}

// UpdateDocumentReview records a decision on a PENDING document.
func (q *Queries) UpdateDocumentReview(ctx context.Context, arg UpdateDocumentReviewParams) (int64, error) {
	return execRows(ctx, q.db, `
		UPDATE documents
		SET status = $2, rejection_reason = $3, reviewed_by = $4, reviewed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`,
		arg.ID, arg.Status, arg.RejectionReason, arg.ReviewedBy)
}

// ListLatestDocumentsByUser returns the newest document of each type.
func (q *Queries) ListLatestDocumentsByUser(ctx context.Context, userID uuid.UUID) ([]models.Document, error) {
	rows, err := q.db.Query(ctx, `
		SELECT DISTINCT ON (type) `+documentColumns+`
		FROM documents
		WHERE user_id = $1
		ORDER BY type, created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list latest documents: %w", err)
	}
	return collect(rows, scanDocument)
}

func (q *Queries) ListDocumentsByUser(ctx context.Context, userID uuid.UUID) ([]models.Document, error) {
	rows, err := q.db.Query(ctx, `SELECT `+documentColumns+` FROM documents WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return collect(rows, scanDocument)
}

func (q *Queries) ListDocumentsByStatus(ctx context.Context, status domain.DocumentStatus, limit, offset int32) ([]models.Document, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list documents by status: %w", err)
	}
	return collect(rows, scanDocument)
}
