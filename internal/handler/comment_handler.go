package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/plantops/workflow-api/internal/dto"
	"github.com/plantops/workflow-api/internal/models"
	appErrors "github.com/plantops/workflow-api/pkg/errors"
	"github.com/plantops/workflow-api/pkg/response"
)

type commentService interface {
	Create(ctx context.Context, user *models.User, applicationID string, req dto.CreateCommentRequest) (*models.Comment, error)
	List(ctx context.Context, applicationID string) ([]models.Comment, error)
}

// CommentHandler wires commentary endpoints.
type CommentHandler struct {
	service commentService
}

// NewCommentHandler constructs the handler.
func NewCommentHandler(service commentService) *CommentHandler {
	return &CommentHandler{service: service}
}

// Create godoc
// @Summary Comment on an application
// @Tags Comments
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.CreateCommentRequest true "Comment payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /applications/{id}/comments [post]
func (h *CommentHandler) Create(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid comment payload"))
		return
	}
	comment, err := h.service.Create(c.Request.Context(), user, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comment)
}

// List godoc
// @Summary List comments of an application
// @Tags Comments
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/comments [get]
func (h *CommentHandler) List(c *gin.Context) {
	comments, err := h.service.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, comments, nil)
}
