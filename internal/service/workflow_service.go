package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/plantops/workflow-api/internal/dto"
	"github.com/plantops/workflow-api/internal/models"
	appErrors "github.com/plantops/workflow-api/pkg/errors"
)

type applicationRepo interface {
	Create(ctx context.Context, app *models.Application, step *models.WorkflowStep) error
	GetByID(ctx context.Context, id string) (*models.Application, error)
	UpdateDraft(ctx context.Context, app *models.Application) error
	Transition(ctx context.Context, applicationID string, from, to models.ApplicationStatus, step *models.WorkflowStep) error
	ListSteps(ctx context.Context, applicationID string) ([]models.WorkflowStep, error)
}

type capabilityResolver interface {
	ReceivableTypes(ctx context.Context, user *models.User) ([]models.ApplicationType, error)
	ApprovableTypes(ctx context.Context, user *models.User) ([]models.ApplicationType, error)
	AuthorizedFor(ctx context.Context, user *models.User, appType models.ApplicationType, direction models.CapabilityDirection) (bool, error)
}

type roleKindChecker interface {
	HasActiveRoleOfKind(ctx context.Context, userID string, kind models.RoleKind) (bool, error)
}

type commentReader interface {
	ListByApplication(ctx context.Context, applicationID string) ([]models.Comment, error)
}

type attachmentReader interface {
	ListByApplication(ctx context.Context, applicationID string) ([]models.Attachment, error)
}

type notifierPort interface {
	Dispatch(kind NotificationKind, app *models.Application, comment string)
}

// WorkflowService owns the application lifecycle: creation, draft editing
// and the five transitions. Authorization questions about type sets are
// delegated to the capability resolver.
type WorkflowService struct {
	apps         applicationRepo
	capabilities capabilityResolver
	roles        roleKindChecker
	comments     commentReader
	attachments  attachmentReader
	notifier     notifierPort
	metrics      *MetricsService
	logger       *zap.Logger
}

// NewWorkflowService constructs WorkflowService. notifier may be nil.
func NewWorkflowService(apps applicationRepo, capabilities capabilityResolver, roles roleKindChecker, comments commentReader, attachments attachmentReader, notifier notifierPort, metrics *MetricsService, logger *zap.Logger) *WorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowService{
		apps:         apps,
		capabilities: capabilities,
		roles:        roles,
		comments:     comments,
		attachments:  attachments,
		notifier:     notifier,
		metrics:      metrics,
		logger:       logger,
	}
}

func isUniqueViolationErr(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Create persists a new application as a draft, or submits it immediately
// when the payload asks for direct submission.
func (s *WorkflowService) Create(ctx context.Context, user *models.User, req dto.CreateApplicationRequest) (*models.Application, error) {
	if !models.ValidApplicationType(req.Type) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown application type")
	}

	app := &models.Application{
		Type:           req.Type,
		Status:         models.StatusDraft,
		Title:          req.Title,
		Content:        req.Content,
		ApplicantID:    user.ID,
		CompanyName:    user.CompanyName,
		WorkLocation:   req.WorkLocation,
		WorkStartDate:  req.WorkStartDate,
		WorkEndDate:    req.WorkEndDate,
		WorkerCount:    req.WorkerCount,
		ContractorName: req.ContractorName,
		ToolList:       req.ToolList,
		RestrictedArea: req.RestrictedArea,
		EntryPurpose:   req.EntryPurpose,
		EntryMembers:   req.EntryMembers,
	}
	var step *models.WorkflowStep
	if req.Submit {
		now := time.Now().UTC()
		app.Status = models.StatusSubmitted
		app.SubmittedAt = &now
		step = &models.WorkflowStep{
			StepType: models.StepSubmit,
			ActorID:  user.ID,
			Status:   models.StepCompleted,
		}
	}

	if err := s.apps.Create(ctx, app, step); err != nil {
		if isUniqueViolationErr(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "application number collision")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}

	if req.Submit {
		s.metrics.RecordTransition(app.Type, models.StatusSubmitted)
		if s.notifier != nil {
			s.notifier.Dispatch(NotifySubmitted, app, "")
		}
	}

	s.logger.Info("application created",
		zap.String("application_id", app.ID),
		zap.String("number", app.Number),
		zap.String("status", string(app.Status)))
	return app, nil
}

// Update edits a draft or returned application. Only the applicant may edit,
// and only before re-submission.
func (s *WorkflowService) Update(ctx context.Context, user *models.User, id string, req dto.UpdateApplicationRequest) (*models.Application, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.ApplicantID != user.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the applicant may edit")
	}
	if !app.Editable(user.ID) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "application is no longer editable")
	}

	app.Title = req.Title
	app.Content = req.Content
	app.WorkLocation = req.WorkLocation
	app.WorkStartDate = req.WorkStartDate
	app.WorkEndDate = req.WorkEndDate
	app.WorkerCount = req.WorkerCount
	app.ContractorName = req.ContractorName
	app.ToolList = req.ToolList
	app.RestrictedArea = req.RestrictedArea
	app.EntryPurpose = req.EntryPurpose
	app.EntryMembers = req.EntryMembers

	if err := s.apps.UpdateDraft(ctx, app); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "application is no longer editable")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application")
	}
	return app, nil
}

// Submit moves a draft or returned application to submitted. Applicant only.
func (s *WorkflowService) Submit(ctx context.Context, user *models.User, id string, comment string) (*models.Application, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != models.StatusDraft && app.Status != models.StatusReturned {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only draft or returned applications can be submitted")
	}
	if app.ApplicantID != user.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the applicant may submit")
	}
	if app.Status == models.StatusReturned && comment == "" {
		comment = "re-submission"
	}
	return s.transition(ctx, app, user, models.StatusSubmitted, models.StepSubmit, models.StepCompleted, comment, NotifySubmitted)
}

// Receive acknowledges a submitted application. Admins, members of the
// receiver role the type routes to, or any active receiver when the type
// is unrouted.
func (s *WorkflowService) Receive(ctx context.Context, user *models.User, id string, comment string) (*models.Application, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != models.StatusSubmitted {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only submitted applications can be received")
	}
	ok, err := s.typeAuthorized(ctx, user, app.Type, models.DirectionReceive)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not authorized to receive this application type")
	}
	return s.transition(ctx, app, user, models.StatusReceived, models.StepReceive, models.StepCompleted, comment, NotifyReceived)
}

// Return sends a submitted application back to the applicant for rework.
// Admins or holders of any active receiver role.
func (s *WorkflowService) Return(ctx context.Context, user *models.User, id string, comment string) (*models.Application, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != models.StatusSubmitted {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only submitted applications can be returned")
	}
	if !user.IsAdmin() {
		holds, err := s.roles.HasActiveRoleOfKind(ctx, user.ID, models.RoleKindReceiver)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check receiver role")
		}
		if !holds {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not authorized to return applications")
		}
	}
	return s.transition(ctx, app, user, models.StatusReturned, models.StepReturn, models.StepCompleted, comment, NotifyReturned)
}

// Approve finalizes a received application. Admins, members of the
// approver role the type routes to, or any active approver when the type
// is unrouted.
func (s *WorkflowService) Approve(ctx context.Context, user *models.User, id string, comment string) (*models.Application, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != models.StatusReceived {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only received applications can be approved")
	}
	ok, err := s.typeAuthorized(ctx, user, app.Type, models.DirectionApprove)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not authorized to approve this application type")
	}
	return s.transition(ctx, app, user, models.StatusApproved, models.StepApprove, models.StepCompleted, comment, NotifyApproved)
}

// Reject terminates a submitted or received application. The authorization
// side follows the current status: receive-side for submitted, approve-side
// for received.
func (s *WorkflowService) Reject(ctx context.Context, user *models.User, id string, comment string) (*models.Application, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	var direction models.CapabilityDirection
	switch app.Status {
	case models.StatusSubmitted:
		direction = models.DirectionReceive
	case models.StatusReceived:
		direction = models.DirectionApprove
	default:
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only submitted or received applications can be rejected")
	}

	ok, err := s.typeAuthorized(ctx, user, app.Type, direction)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not authorized to reject this application")
	}
	return s.transition(ctx, app, user, models.StatusRejected, models.StepReject, models.StepRejected, comment, NotifyRejected)
}

// Get returns the application with its audit trail, child records and the
// action flags for the calling user.
func (s *WorkflowService) Get(ctx context.Context, user *models.User, id string) (*dto.ApplicationDetail, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	visible, err := s.canView(ctx, user, app)
	if err != nil {
		return nil, err
	}
	if !visible {
		// Hidden applications read as absent.
		return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
	}

	steps, err := s.apps.ListSteps(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow steps")
	}
	comments, err := s.comments.ListByApplication(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load comments")
	}
	attachments, err := s.attachments.ListByApplication(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attachments")
	}

	permissions, err := s.permissions(ctx, user, app)
	if err != nil {
		return nil, err
	}

	return &dto.ApplicationDetail{
		Application: app,
		Steps:       steps,
		Comments:    comments,
		Attachments: attachments,
		Permissions: permissions,
	}, nil
}

func (s *WorkflowService) load(ctx context.Context, id string) (*models.Application, error) {
	app, err := s.apps.GetByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return app, nil
}

// canView mirrors the dashboard visibility rule: the applicant, admins and
// anyone whose resolved type sets cover the application may read it.
func (s *WorkflowService) canView(ctx context.Context, user *models.User, app *models.Application) (bool, error) {
	if user.IsAdmin() || app.ApplicantID == user.ID {
		return true, nil
	}
	if ok, err := s.typeInSet(ctx, user, app.Type, models.DirectionReceive); err != nil || ok {
		return ok, err
	}
	return s.typeInSet(ctx, user, app.Type, models.DirectionApprove)
}

// typeInSet checks the resolved dashboard type set, including its allow-all
// fallback. Listing visibility only, never transition authorization.
func (s *WorkflowService) typeInSet(ctx context.Context, user *models.User, appType models.ApplicationType, direction models.CapabilityDirection) (bool, error) {
	var (
		types []models.ApplicationType
		err   error
	)
	if direction == models.DirectionReceive {
		types, err = s.capabilities.ReceivableTypes(ctx, user)
	} else {
		types, err = s.capabilities.ApprovableTypes(ctx, user)
	}
	if err != nil {
		return false, err
	}
	for _, t := range types {
		if t == appType {
			return true, nil
		}
	}
	return false, nil
}

// typeAuthorized gates transitions. It follows the active route for the
// type, so an unrouted role holder cannot act on a routed type.
func (s *WorkflowService) typeAuthorized(ctx context.Context, user *models.User, appType models.ApplicationType, direction models.CapabilityDirection) (bool, error) {
	if user.IsAdmin() {
		return true, nil
	}
	return s.capabilities.AuthorizedFor(ctx, user, appType, direction)
}

// transition commits the status change and audit step atomically, then fires
// the notification. The conditional update loses cleanly when another actor
// moved the application first.
func (s *WorkflowService) transition(ctx context.Context, app *models.Application, actor *models.User, to models.ApplicationStatus, stepType models.StepType, stepStatus models.StepStatus, comment string, notifyKind NotificationKind) (*models.Application, error) {
	step := &models.WorkflowStep{
		StepType: stepType,
		ActorID:  actor.ID,
		Status:   stepStatus,
		Comment:  comment,
	}
	if err := s.apps.Transition(ctx, app.ID, app.Status, to, step); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "application status changed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply transition")
	}

	now := step.ProcessedAt
	app.Status = to
	app.UpdatedAt = now
	switch to {
	case models.StatusSubmitted:
		app.SubmittedAt = &now
	case models.StatusReceived:
		app.ReceivedAt = &now
	case models.StatusApproved:
		app.ApprovedAt = &now
	}

	s.metrics.RecordTransition(app.Type, to)
	s.logger.Info("application transitioned",
		zap.String("application_id", app.ID),
		zap.String("number", app.Number),
		zap.String("to", string(to)),
		zap.String("actor_id", actor.ID))

	if s.notifier != nil {
		s.notifier.Dispatch(notifyKind, app, comment)
	}
	return app, nil
}

func (s *WorkflowService) permissions(ctx context.Context, user *models.User, app *models.Application) (dto.ActionPermissions, error) {
	perms := dto.ActionPermissions{
		CanEdit:   app.Editable(user.ID),
		CanSubmit: app.Editable(user.ID),
	}

	switch app.Status {
	case models.StatusSubmitted:
		canReceive, err := s.typeAuthorized(ctx, user, app.Type, models.DirectionReceive)
		if err != nil {
			return perms, err
		}
		perms.CanReceive = canReceive
		perms.CanReject = canReceive
		if user.IsAdmin() {
			perms.CanReturn = true
		} else {
			holds, err := s.roles.HasActiveRoleOfKind(ctx, user.ID, models.RoleKindReceiver)
			if err != nil {
				return perms, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check receiver role")
			}
			perms.CanReturn = holds
		}
	case models.StatusReceived:
		canApprove, err := s.typeAuthorized(ctx, user, app.Type, models.DirectionApprove)
		if err != nil {
			return perms, err
		}
		perms.CanApprove = canApprove
		perms.CanReject = canApprove
	}
	return perms, nil
}
