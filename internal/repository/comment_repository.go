package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/plantops/workflow-api/internal/models"
)

// CommentRepository provides database access for application comments.
type CommentRepository struct {
	db *sqlx.DB
}

// NewCommentRepository creates a new instance of CommentRepository.
func NewCommentRepository(db *sqlx.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

// Create persists a comment.
func (r *CommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	comment.CreatedAt = time.Now().UTC()

	const query = `INSERT INTO comments (id, application_id, user_id, content, created_at)
		VALUES (:id, :application_id, :user_id, :content, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, comment); err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

// ListByApplication returns all comments of an application in creation order.
func (r *CommentRepository) ListByApplication(ctx context.Context, applicationID string) ([]models.Comment, error) {
	const query = `SELECT id, application_id, user_id, content, created_at
		FROM comments WHERE application_id = $1 ORDER BY created_at`
	var comments []models.Comment
	if err := r.db.SelectContext(ctx, &comments, query, applicationID); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}
