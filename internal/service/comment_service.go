package service

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/plantops/workflow-api/internal/dto"
	"github.com/plantops/workflow-api/internal/models"
	appErrors "github.com/plantops/workflow-api/pkg/errors"
)

type commentRepo interface {
	Create(ctx context.Context, comment *models.Comment) error
	ListByApplication(ctx context.Context, applicationID string) ([]models.Comment, error)
}

// CommentService manages commentary on applications. Vendors may only
// comment on their own applications; staff and admins on any.
type CommentService struct {
	comments commentRepo
	apps     attachmentApplicationReader
	logger   *zap.Logger
}

// NewCommentService constructs CommentService.
func NewCommentService(comments commentRepo, apps attachmentApplicationReader, logger *zap.Logger) *CommentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommentService{comments: comments, apps: apps, logger: logger}
}

// Create adds a comment to an application.
func (s *CommentService) Create(ctx context.Context, user *models.User, applicationID string, req dto.CreateCommentRequest) (*models.Comment, error) {
	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if user.Role == models.RoleVendor && app.ApplicantID != user.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "vendors may only comment on their own applications")
	}

	comment := &models.Comment{
		ApplicationID: applicationID,
		UserID:        user.ID,
		Content:       req.Content,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create comment")
	}
	return comment, nil
}

// List returns the comments of an application in creation order.
func (s *CommentService) List(ctx context.Context, applicationID string) ([]models.Comment, error) {
	comments, err := s.comments.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list comments")
	}
	return comments, nil
}
