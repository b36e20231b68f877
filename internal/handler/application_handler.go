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

type workflowService interface {
	Create(ctx context.Context, user *models.User, req dto.CreateApplicationRequest) (*models.Application, error)
	Update(ctx context.Context, user *models.User, id string, req dto.UpdateApplicationRequest) (*models.Application, error)
	Get(ctx context.Context, user *models.User, id string) (*dto.ApplicationDetail, error)
	Submit(ctx context.Context, user *models.User, id string, comment string) (*models.Application, error)
	Receive(ctx context.Context, user *models.User, id string, comment string) (*models.Application, error)
	Return(ctx context.Context, user *models.User, id string, comment string) (*models.Application, error)
	Approve(ctx context.Context, user *models.User, id string, comment string) (*models.Application, error)
	Reject(ctx context.Context, user *models.User, id string, comment string) (*models.Application, error)
}

type capabilityService interface {
	Capabilities(ctx context.Context, user *models.User) (*models.CapabilitySet, error)
}

// ApplicationHandler wires lifecycle endpoints to the workflow service.
type ApplicationHandler struct {
	workflow     workflowService
	capabilities capabilityService
}

// NewApplicationHandler constructs the handler.
func NewApplicationHandler(workflow workflowService, capabilities capabilityService) *ApplicationHandler {
	return &ApplicationHandler{workflow: workflow, capabilities: capabilities}
}

// Create godoc
// @Summary Create an application
// @Description Create a draft, or submit directly when the payload sets submit=true
// @Tags Applications
// @Accept json
// @Produce json
// @Param payload body dto.CreateApplicationRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /applications [post]
func (h *ApplicationHandler) Create(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid application payload"))
		return
	}
	app, err := h.workflow.Create(c.Request.Context(), user, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// Get godoc
// @Summary Application detail
// @Description Application with audit trail, comments, attachments and action flags
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	detail, err := h.workflow.Get(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Update godoc
// @Summary Edit a draft or returned application
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.UpdateApplicationRequest true "Application payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id} [put]
func (h *ApplicationHandler) Update(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid application payload"))
		return
	}
	app, err := h.workflow.Update(c.Request.Context(), user, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Submit godoc
// @Summary Submit an application
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.TransitionRequest false "Optional comment"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id}/submit [post]
func (h *ApplicationHandler) Submit(c *gin.Context) {
	h.transition(c, h.workflow.Submit)
}

// Receive godoc
// @Summary Receive a submitted application
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.TransitionRequest false "Optional comment"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id}/receive [post]
func (h *ApplicationHandler) Receive(c *gin.Context) {
	h.transition(c, h.workflow.Receive)
}

// Return godoc
// @Summary Return a submitted application for rework
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.TransitionRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id}/return [post]
func (h *ApplicationHandler) Return(c *gin.Context) {
	h.transition(c, h.workflow.Return)
}

// Approve godoc
// @Summary Approve a received application
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.TransitionRequest false "Optional comment"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id}/approve [post]
func (h *ApplicationHandler) Approve(c *gin.Context) {
	h.transition(c, h.workflow.Approve)
}

// Reject godoc
// @Summary Reject a submitted or received application
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.TransitionRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id}/reject [post]
func (h *ApplicationHandler) Reject(c *gin.Context) {
	h.transition(c, h.workflow.Reject)
}

// Capabilities godoc
// @Summary Resolved type sets of the current user
// @Tags Applications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /capabilities [get]
func (h *ApplicationHandler) Capabilities(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	set, err := h.capabilities.Capabilities(c.Request.Context(), user)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.CapabilitiesResponse{Receivable: set.Receivable, Approvable: set.Approvable}, nil)
}

type transitionFunc func(ctx context.Context, user *models.User, id string, comment string) (*models.Application, error)

func (h *ApplicationHandler) transition(c *gin.Context, fn transitionFunc) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.TransitionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid transition payload"))
			return
		}
	}
	app, err := fn(c.Request.Context(), user, c.Param("id"), req.Comment)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}
