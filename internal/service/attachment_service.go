package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plantops/workflow-api/internal/models"
	appErrors "github.com/plantops/workflow-api/pkg/errors"
)

type attachmentRepo interface {
	Create(ctx context.Context, attachment *models.Attachment) error
	GetByID(ctx context.Context, id string) (*models.Attachment, error)
	ListByApplication(ctx context.Context, applicationID string) ([]models.Attachment, error)
	Delete(ctx context.Context, id string) error
}

type blobStore interface {
	SaveStream(key string, r io.Reader) (string, error)
	Open(key string) (*os.File, error)
	Delete(key string) error
}

type attachmentApplicationReader interface {
	GetByID(ctx context.Context, id string) (*models.Application, error)
}

// AttachmentService validates uploads and pairs blob storage with metadata
// rows. Uploads are only accepted while the applicant can still edit.
type AttachmentService struct {
	attachments attachmentRepo
	apps        attachmentApplicationReader
	store       blobStore
	maxSize     int64
	allowedExt  map[string]struct{}
	logger      *zap.Logger
}

// AttachmentPolicy carries the validation limits.
type AttachmentPolicy struct {
	MaxFileSizeBytes  int64
	AllowedExtensions []string
}

// NewAttachmentService constructs AttachmentService.
func NewAttachmentService(attachments attachmentRepo, apps attachmentApplicationReader, store blobStore, policy AttachmentPolicy, logger *zap.Logger) *AttachmentService {
	if policy.MaxFileSizeBytes <= 0 {
		policy.MaxFileSizeBytes = 10 << 20
	}
	allowed := make(map[string]struct{}, len(policy.AllowedExtensions))
	for _, ext := range policy.AllowedExtensions {
		allowed[strings.ToLower(ext)] = struct{}{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttachmentService{
		attachments: attachments,
		apps:        apps,
		store:       store,
		maxSize:     policy.MaxFileSizeBytes,
		allowedExt:  allowed,
		logger:      logger,
	}
}

// Upload stores the file and records its metadata. Size and extension are
// validated before any bytes are written.
func (s *AttachmentService) Upload(ctx context.Context, user *models.User, applicationID, filename string, size int64, r io.Reader) (*models.Attachment, error) {
	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if !app.Editable(user.ID) && !user.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "attachments can only be added while the application is editable")
	}

	if size > s.maxSize {
		return nil, appErrors.Clone(appErrors.ErrInvalidAttachment, fmt.Sprintf("file exceeds the %d MiB limit", s.maxSize>>20))
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := s.allowedExt[ext]; !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidAttachment, "file extension not allowed")
	}

	key := fmt.Sprintf("attachments/%s/%s%s", applicationID, uuid.NewString(), ext)
	// One byte beyond the ceiling distinguishes an at-limit file from a
	// stream longer than its declared size.
	limited := &limitedReader{r: io.LimitReader(r, s.maxSize+1)}
	if _, err := s.store.SaveStream(key, limited); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attachment")
	}
	if limited.n > s.maxSize {
		if removeErr := s.store.Delete(key); removeErr != nil {
			s.logger.Warn("oversize blob cleanup failed", zap.String("key", key), zap.Error(removeErr))
		}
		return nil, appErrors.Clone(appErrors.ErrInvalidAttachment, fmt.Sprintf("file exceeds the %d MiB limit", s.maxSize>>20))
	}

	attachment := &models.Attachment{
		ApplicationID: applicationID,
		StorageKey:    key,
		Filename:      filepath.Base(filename),
		FileSize:      size,
		UploadedBy:    user.ID,
	}
	if err := s.attachments.Create(ctx, attachment); err != nil {
		if removeErr := s.store.Delete(key); removeErr != nil {
			s.logger.Warn("orphan blob cleanup failed", zap.String("key", key), zap.Error(removeErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attachment")
	}
	return attachment, nil
}

// limitedReader counts bytes as they pass through so the caller can tell
// whether the wrapped LimitReader was exhausted.
type limitedReader struct {
	r io.Reader
	n int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	return n, err
}

// Open returns the attachment metadata together with its blob for download.
func (s *AttachmentService) Open(ctx context.Context, id string) (*models.Attachment, *os.File, error) {
	attachment, err := s.attachments.GetByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attachment")
	}
	file, err := s.store.Open(attachment.StorageKey)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open attachment blob")
	}
	return attachment, file, nil
}

// List returns the attachments of an application.
func (s *AttachmentService) List(ctx context.Context, applicationID string) ([]models.Attachment, error) {
	attachments, err := s.attachments.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attachments")
	}
	return attachments, nil
}

// Delete removes an attachment. The uploader or an admin only, and only
// while the application is still editable by its applicant.
func (s *AttachmentService) Delete(ctx context.Context, user *models.User, id string) error {
	attachment, err := s.attachments.GetByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attachment")
	}
	if attachment.UploadedBy != user.ID && !user.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "only the uploader may delete an attachment")
	}

	if err := s.attachments.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete attachment")
	}
	if err := s.store.Delete(attachment.StorageKey); err != nil {
		s.logger.Warn("blob removal failed", zap.String("key", attachment.StorageKey), zap.Error(err))
	}
	return nil
}
