package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/plantops/workflow-api/internal/dto"
	"github.com/plantops/workflow-api/internal/models"
	"github.com/plantops/workflow-api/internal/service"
	appErrors "github.com/plantops/workflow-api/pkg/errors"
	"github.com/plantops/workflow-api/pkg/response"
)

type dashboardService interface {
	Dashboard(ctx context.Context, user *models.User, filter models.ApplicationFilter) (*service.DashboardPage, error)
	Summary(ctx context.Context, user *models.User) (*dto.DashboardSummary, error)
	PendingReceive(ctx context.Context, user *models.User) ([]models.Application, error)
	PendingApprove(ctx context.Context, user *models.User) ([]models.Application, error)
}

// DashboardHandler wires the work queues to HTTP endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// List godoc
// @Summary Combined dashboard listing
// @Description Union of own applications and both pending queues
// @Tags Dashboard
// @Produce json
// @Param q query string false "Search in number, title and company"
// @Param status query string false "Status filter"
// @Param type query string false "Type filter"
// @Param page query int false "Page, starting at 1"
// @Param page_size query int false "Page size, max 100"
// @Success 200 {object} response.Envelope
// @Router /dashboard [get]
func (h *DashboardHandler) List(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.ApplicationFilter{
		Search: strings.TrimSpace(c.Query("q")),
		Status: models.ApplicationStatus(c.Query("status")),
		Type:   models.ApplicationType(c.Query("type")),
	}
	if filter.Status != "" && !models.ValidApplicationStatus(filter.Status) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown status filter"))
		return
	}
	if filter.Type != "" && !models.ValidApplicationType(filter.Type) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown type filter"))
		return
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	page, err := h.service.Dashboard(c.Request.Context(), user, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := &models.Pagination{Page: page.Page, PageSize: page.PageSize, TotalCount: page.Total}
	response.JSON(c, http.StatusOK, page.Applications, pagination)
}

// Summary godoc
// @Summary Dashboard counters
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/summary [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	summary, err := h.service.Summary(c.Request.Context(), user)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// PendingReceive godoc
// @Summary Receive queue
// @Description Submitted applications of the caller's receivable types, oldest first
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/pending-receive [get]
func (h *DashboardHandler) PendingReceive(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	apps, err := h.service.PendingReceive(c.Request.Context(), user)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, nil)
}

// PendingApprove godoc
// @Summary Approve queue
// @Description Received applications of the caller's approvable types, oldest first
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/pending-approve [get]
func (h *DashboardHandler) PendingApprove(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	apps, err := h.service.PendingApprove(c.Request.Context(), user)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, nil)
}
