package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/plantops/workflow-api/internal/models"
)

// AttachmentRepository provides database access for attachment metadata.
// The file bytes live in blob storage under the attachment's storage key.
type AttachmentRepository struct {
	db *sqlx.DB
}

// NewAttachmentRepository creates a new instance of AttachmentRepository.
func NewAttachmentRepository(db *sqlx.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// Create persists attachment metadata.
func (r *AttachmentRepository) Create(ctx context.Context, attachment *models.Attachment) error {
	if attachment.ID == "" {
		attachment.ID = uuid.NewString()
	}
	attachment.UploadedAt = time.Now().UTC()

	const query = `INSERT INTO attachments (id, application_id, filename, storage_key, file_size, uploaded_by, uploaded_at)
		VALUES (:id, :application_id, :filename, :storage_key, :file_size, :uploaded_by, :uploaded_at)`
	if _, err := r.db.NamedExecContext(ctx, query, attachment); err != nil {
		return fmt.Errorf("create attachment: %w", err)
	}
	return nil
}

// GetByID returns an attachment by identifier.
func (r *AttachmentRepository) GetByID(ctx context.Context, id string) (*models.Attachment, error) {
	const query = `SELECT id, application_id, filename, storage_key, file_size, uploaded_by, uploaded_at
		FROM attachments WHERE id = $1 LIMIT 1`
	var attachment models.Attachment
	if err := r.db.GetContext(ctx, &attachment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find attachment: %w", err)
	}
	return &attachment, nil
}

// ListByApplication returns all attachments of an application, newest first.
func (r *AttachmentRepository) ListByApplication(ctx context.Context, applicationID string) ([]models.Attachment, error) {
	const query = `SELECT id, application_id, filename, storage_key, file_size, uploaded_by, uploaded_at
		FROM attachments WHERE application_id = $1 ORDER BY uploaded_at DESC`
	var attachments []models.Attachment
	if err := r.db.SelectContext(ctx, &attachments, query, applicationID); err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return attachments, nil
}

// Delete removes attachment metadata. Callers delete the blob afterwards.
func (r *AttachmentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
