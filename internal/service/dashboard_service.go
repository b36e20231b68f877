package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/plantops/workflow-api/internal/dto"
	"github.com/plantops/workflow-api/internal/models"
	appErrors "github.com/plantops/workflow-api/pkg/errors"
)

type dashboardApplicationRepo interface {
	Dashboard(ctx context.Context, userID string, receivable, approvable []models.ApplicationType, filter models.ApplicationFilter) ([]models.Application, int, error)
	PendingByStatus(ctx context.Context, status models.ApplicationStatus, types []models.ApplicationType, excludeUser string) ([]models.Application, error)
	CountByApplicant(ctx context.Context, userID string, status models.ApplicationStatus) (int, error)
	CountPending(ctx context.Context, status models.ApplicationStatus, types []models.ApplicationType, excludeUser string) (int, error)
}

// DashboardService composes the three work queues into the listing and
// counters the UI renders.
type DashboardService struct {
	apps         dashboardApplicationRepo
	capabilities capabilityResolver
	logger       *zap.Logger
}

// NewDashboardService constructs DashboardService.
func NewDashboardService(apps dashboardApplicationRepo, capabilities capabilityResolver, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{apps: apps, capabilities: capabilities, logger: logger}
}

// DashboardPage is one page of the combined listing.
type DashboardPage struct {
	Applications []models.Application `json:"applications"`
	Total        int                  `json:"total"`
	Page         int                  `json:"page"`
	PageSize     int                  `json:"page_size"`
}

// Dashboard returns the union of the user's own applications, the submitted
// queue of types they receive and the received queue of types they approve.
func (s *DashboardService) Dashboard(ctx context.Context, user *models.User, filter models.ApplicationFilter) (*DashboardPage, error) {
	receivable, approvable, err := s.typeSets(ctx, user)
	if err != nil {
		return nil, err
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	apps, total, err := s.apps.Dashboard(ctx, user.ID, receivable, approvable, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list dashboard")
	}
	return &DashboardPage{Applications: apps, Total: total, Page: filter.Page, PageSize: filter.PageSize}, nil
}

// Summary returns the counters above the queues: the user's own draft,
// submitted and approved counts plus the sizes of both pending queues.
func (s *DashboardService) Summary(ctx context.Context, user *models.User) (*dto.DashboardSummary, error) {
	receivable, approvable, err := s.typeSets(ctx, user)
	if err != nil {
		return nil, err
	}

	summary := &dto.DashboardSummary{}
	for status, dest := range map[models.ApplicationStatus]*int{
		models.StatusDraft:     &summary.MyDraftCount,
		models.StatusSubmitted: &summary.MySubmittedCount,
		models.StatusApproved:  &summary.MyApprovedCount,
	} {
		count, err := s.apps.CountByApplicant(ctx, user.ID, status)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count applications")
		}
		*dest = count
	}

	pendingReceive, err := s.apps.CountPending(ctx, models.StatusSubmitted, receivable, user.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count pending receive queue")
	}
	summary.PendingReceiveCount = pendingReceive

	pendingApprove, err := s.apps.CountPending(ctx, models.StatusReceived, approvable, user.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count pending approve queue")
	}
	summary.PendingApproveCount = pendingApprove

	return summary, nil
}

// PendingReceive lists submitted applications of the user's receivable
// types, oldest submission first.
func (s *DashboardService) PendingReceive(ctx context.Context, user *models.User) ([]models.Application, error) {
	receivable, _, err := s.typeSets(ctx, user)
	if err != nil {
		return nil, err
	}
	apps, err := s.apps.PendingByStatus(ctx, models.StatusSubmitted, receivable, user.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list receive queue")
	}
	return apps, nil
}

// PendingApprove lists received applications of the user's approvable
// types, oldest reception first.
func (s *DashboardService) PendingApprove(ctx context.Context, user *models.User) ([]models.Application, error) {
	_, approvable, err := s.typeSets(ctx, user)
	if err != nil {
		return nil, err
	}
	apps, err := s.apps.PendingByStatus(ctx, models.StatusReceived, approvable, user.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approve queue")
	}
	return apps, nil
}

func (s *DashboardService) typeSets(ctx context.Context, user *models.User) (receivable, approvable []models.ApplicationType, err error) {
	receivable, err = s.capabilities.ReceivableTypes(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	approvable, err = s.capabilities.ApprovableTypes(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return receivable, approvable, nil
}
