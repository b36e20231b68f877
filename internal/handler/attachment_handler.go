package handler

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/plantops/workflow-api/internal/models"
	appErrors "github.com/plantops/workflow-api/pkg/errors"
	"github.com/plantops/workflow-api/pkg/response"
)

type attachmentService interface {
	Upload(ctx context.Context, user *models.User, applicationID, filename string, size int64, r io.Reader) (*models.Attachment, error)
	Open(ctx context.Context, id string) (*models.Attachment, *os.File, error)
	List(ctx context.Context, applicationID string) ([]models.Attachment, error)
	Delete(ctx context.Context, user *models.User, id string) error
}

// AttachmentHandler wires file upload and download endpoints.
type AttachmentHandler struct {
	service attachmentService
}

// NewAttachmentHandler constructs the handler.
func NewAttachmentHandler(service attachmentService) *AttachmentHandler {
	return &AttachmentHandler{service: service}
}

// Upload godoc
// @Summary Attach a file to an application
// @Tags Attachments
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Application ID"
// @Param file formData file true "File"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /applications/{id}/attachments [post]
func (h *AttachmentHandler) Upload(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file field is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer file.Close()

	attachment, err := h.service.Upload(c.Request.Context(), user, c.Param("id"), fileHeader.Filename, fileHeader.Size, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, attachment)
}

// List godoc
// @Summary List attachments of an application
// @Tags Attachments
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/attachments [get]
func (h *AttachmentHandler) List(c *gin.Context) {
	attachments, err := h.service.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attachments, nil)
}

// Download godoc
// @Summary Download an attachment
// @Tags Attachments
// @Produce octet-stream
// @Param id path string true "Attachment ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /attachments/{id} [get]
func (h *AttachmentHandler) Download(c *gin.Context) {
	attachment, file, err := h.service.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	c.Header("Content-Disposition", `attachment; filename="`+attachment.Filename+`"`)
	c.Header("Content-Type", "application/octet-stream")
	c.DataFromReader(http.StatusOK, attachment.FileSize, "application/octet-stream", file, nil)
}

// Delete godoc
// @Summary Delete an attachment
// @Tags Attachments
// @Produce json
// @Param id path string true "Attachment ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /attachments/{id} [delete]
func (h *AttachmentHandler) Delete(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), user, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
