package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/plantops/workflow-api/internal/dto"
	"github.com/plantops/workflow-api/internal/models"
	appErrors "github.com/plantops/workflow-api/pkg/errors"
	"github.com/plantops/workflow-api/pkg/export"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportService renders application listings and audit trails as files.
type ExportService struct {
	workflow  *WorkflowService
	dashboard *DashboardService
	csv       csvRenderer
	pdf       pdfRenderer
	logger    *zap.Logger
}

// NewExportService constructs ExportService.
func NewExportService(workflow *WorkflowService, dashboard *DashboardService, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{workflow: workflow, dashboard: dashboard, csv: csv, pdf: pdf, logger: logger}
}

// DashboardCSV renders the caller's dashboard listing as CSV.
func (s *ExportService) DashboardCSV(ctx context.Context, user *models.User, filter models.ApplicationFilter) ([]byte, string, error) {
	filter.PageSize = 100
	if filter.Page < 1 {
		filter.Page = 1
	}
	page, err := s.dashboard.Dashboard(ctx, user, filter)
	if err != nil {
		return nil, "", err
	}

	data := export.Dataset{
		Headers: []string{"number", "type", "status", "title", "company", "applicant_id", "created_at", "submitted_at"},
	}
	for _, app := range page.Applications {
		data.Rows = append(data.Rows, map[string]string{
			"number":       app.Number,
			"type":         string(app.Type),
			"status":       string(app.Status),
			"title":        app.Title,
			"company":      app.CompanyName,
			"applicant_id": app.ApplicantID,
			"created_at":   app.CreatedAt.Format(time.RFC3339),
			"submitted_at": formatTimePtr(app.SubmittedAt),
		})
	}

	payload, err := s.csv.Render(data)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	filename := fmt.Sprintf("applications-%s.csv", time.Now().UTC().Format("20060102-150405"))
	return payload, filename, nil
}

// AuditTrailPDF renders an application's audit trail as a PDF document.
func (s *ExportService) AuditTrailPDF(ctx context.Context, user *models.User, applicationID string) ([]byte, string, error) {
	detail, err := s.workflow.Get(ctx, user, applicationID)
	if err != nil {
		return nil, "", err
	}
	return s.renderAuditPDF(detail)
}

func (s *ExportService) renderAuditPDF(detail *dto.ApplicationDetail) ([]byte, string, error) {
	app := detail.Application
	data := export.Dataset{
		Headers: []string{"step", "actor", "result", "comment", "processed_at"},
	}
	for _, step := range detail.Steps {
		data.Rows = append(data.Rows, map[string]string{
			"step":         string(step.StepType),
			"actor":        step.ActorID,
			"result":       string(step.Status),
			"comment":      step.Comment,
			"processed_at": step.ProcessedAt.Format(time.RFC3339),
		})
	}

	title := fmt.Sprintf("%s %s (%s)", app.Number, app.Title, app.Status)
	payload, err := s.pdf.Render(data, title)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
	}
	filename := fmt.Sprintf("audit-%s.pdf", app.Number)
	return payload, filename, nil
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
