package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantops/workflow-api/internal/models"
	"github.com/plantops/workflow-api/pkg/export"
)

type csvRendererStub struct {
	data export.Dataset
}

func (s *csvRendererStub) Render(data export.Dataset) ([]byte, error) {
	s.data = data
	return []byte("csv"), nil
}

type pdfRendererStub struct {
	data  export.Dataset
	title string
}

func (s *pdfRendererStub) Render(data export.Dataset, title string) ([]byte, error) {
	s.data = data
	s.title = title
	return []byte("pdf"), nil
}

func TestDashboardCSVRendersListing(t *testing.T) {
	app := draftApp("a1", "u1")
	repo := &dashboardRepoStub{apps: []models.Application{*app}, total: 1}
	dashboard := NewDashboardService(repo, &capResolverStub{}, nil)
	csv := &csvRendererStub{}
	svc := NewExportService(nil, dashboard, csv, &pdfRendererStub{}, nil)

	payload, filename, err := svc.DashboardCSV(context.Background(), staffUser("u1"), models.ApplicationFilter{})
	require.NoError(t, err)
	assert.Equal(t, []byte("csv"), payload)
	assert.Contains(t, filename, "applications-")
	assert.Equal(t, 100, repo.lastFilter.PageSize)
	require.Len(t, csv.data.Rows, 1)
	assert.Equal(t, "APP20250901001", csv.data.Rows[0]["number"])
	assert.Equal(t, string(models.StatusDraft), csv.data.Rows[0]["status"])
}

func TestAuditTrailPDFTitleAndFilename(t *testing.T) {
	app := draftApp("a1", "u1")
	app.Title = "pump maintenance"
	repo := newAppRepoStub(app)
	workflow := newWorkflow(repo, nil, nil, nil)

	_, err := workflow.Submit(context.Background(), staffUser("u1"), "a1", "")
	require.NoError(t, err)

	pdf := &pdfRendererStub{}
	svc := NewExportService(workflow, nil, &csvRendererStub{}, pdf, nil)

	payload, filename, err := svc.AuditTrailPDF(context.Background(), staffUser("u1"), "a1")
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf"), payload)
	assert.Equal(t, "audit-APP20250901001.pdf", filename)
	assert.Contains(t, pdf.title, "APP20250901001 pump maintenance")
	require.Len(t, pdf.data.Rows, 1)
	assert.Equal(t, string(models.StepSubmit), pdf.data.Rows[0]["step"])
}
