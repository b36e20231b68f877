package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/plantops/workflow-api/internal/models"
	appErrors "github.com/plantops/workflow-api/pkg/errors"
	"github.com/plantops/workflow-api/pkg/response"
)

type exportService interface {
	DashboardCSV(ctx context.Context, user *models.User, filter models.ApplicationFilter) ([]byte, string, error)
	AuditTrailPDF(ctx context.Context, user *models.User, applicationID string) ([]byte, string, error)
}

// ExportHandler wires file export endpoints.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// DashboardCSV godoc
// @Summary Export the dashboard listing as CSV
// @Tags Export
// @Produce text/csv
// @Param q query string false "Search in number, title and company"
// @Param status query string false "Status filter"
// @Param type query string false "Type filter"
// @Success 200 {file} binary
// @Router /export/applications.csv [get]
func (h *ExportHandler) DashboardCSV(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := models.ApplicationFilter{
		Search: c.Query("q"),
		Status: models.ApplicationStatus(c.Query("status")),
		Type:   models.ApplicationType(c.Query("type")),
	}
	payload, filename, err := h.service.DashboardCSV(c.Request.Context(), user, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv", payload)
}

// AuditTrailPDF godoc
// @Summary Export an application's audit trail as PDF
// @Tags Export
// @Produce application/pdf
// @Param id path string true "Application ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /applications/{id}/audit.pdf [get]
func (h *ExportHandler) AuditTrailPDF(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	payload, filename, err := h.service.AuditTrailPDF(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", payload)
}
