package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantops/workflow-api/internal/dto"
	"github.com/plantops/workflow-api/internal/models"
	appErrors "github.com/plantops/workflow-api/pkg/errors"
)

type appRepoStub struct {
	apps          map[string]*models.Application
	steps         []*models.WorkflowStep
	createErr     error
	transitionErr error
	nextID        int
}

func newAppRepoStub(apps ...*models.Application) *appRepoStub {
	s := &appRepoStub{apps: map[string]*models.Application{}}
	for _, app := range apps {
		s.apps[app.ID] = app
	}
	return s
}

func (s *appRepoStub) Create(_ context.Context, app *models.Application, step *models.WorkflowStep) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.nextID++
	if app.ID == "" {
		app.ID = "app-" + string(rune('0'+s.nextID))
	}
	app.Number = "APP20250901001"
	s.apps[app.ID] = app
	if step != nil {
		step.ApplicationID = app.ID
		s.steps = append(s.steps, step)
	}
	return nil
}

func (s *appRepoStub) GetByID(_ context.Context, id string) (*models.Application, error) {
	app, ok := s.apps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *app
	return &clone, nil
}

func (s *appRepoStub) UpdateDraft(_ context.Context, app *models.Application) error {
	stored, ok := s.apps[app.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if stored.Status != models.StatusDraft && stored.Status != models.StatusReturned {
		return sql.ErrNoRows
	}
	s.apps[app.ID] = app
	return nil
}

func (s *appRepoStub) Transition(_ context.Context, applicationID string, from, to models.ApplicationStatus, step *models.WorkflowStep) error {
	if s.transitionErr != nil {
		return s.transitionErr
	}
	stored, ok := s.apps[applicationID]
	if !ok || stored.Status != from {
		return sql.ErrNoRows
	}
	stored.Status = to
	step.ApplicationID = applicationID
	s.steps = append(s.steps, step)
	return nil
}

func (s *appRepoStub) ListSteps(_ context.Context, applicationID string) ([]models.WorkflowStep, error) {
	var steps []models.WorkflowStep
	for _, step := range s.steps {
		if step.ApplicationID == applicationID {
			steps = append(steps, *step)
		}
	}
	return steps, nil
}

type capResolverStub struct {
	receivable []models.ApplicationType
	approvable []models.ApplicationType
	err        error
}

func (s *capResolverStub) ReceivableTypes(context.Context, *models.User) ([]models.ApplicationType, error) {
	return s.receivable, s.err
}

func (s *capResolverStub) ApprovableTypes(context.Context, *models.User) ([]models.ApplicationType, error) {
	return s.approvable, s.err
}

func (s *capResolverStub) AuthorizedFor(_ context.Context, _ *models.User, appType models.ApplicationType, direction models.CapabilityDirection) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	set := s.receivable
	if direction == models.DirectionApprove {
		set = s.approvable
	}
	for _, t := range set {
		if t == appType {
			return true, nil
		}
	}
	return false, nil
}

type roleCheckerStub struct {
	kinds map[models.RoleKind]bool
}

func (s *roleCheckerStub) HasActiveRoleOfKind(_ context.Context, _ string, kind models.RoleKind) (bool, error) {
	return s.kinds[kind], nil
}

type childReaderStub struct{}

func (childReaderStub) ListByApplication(context.Context, string) ([]models.Comment, error) {
	return nil, nil
}

type attachmentReaderStub struct{}

func (attachmentReaderStub) ListByApplication(context.Context, string) ([]models.Attachment, error) {
	return nil, nil
}

type notifierStub struct {
	kinds    []NotificationKind
	comments []string
}

func (s *notifierStub) Dispatch(kind NotificationKind, _ *models.Application, comment string) {
	s.kinds = append(s.kinds, kind)
	s.comments = append(s.comments, comment)
}

func newWorkflow(apps *appRepoStub, caps *capResolverStub, roles *roleCheckerStub, notifier *notifierStub) *WorkflowService {
	if caps == nil {
		caps = &capResolverStub{}
	}
	if roles == nil {
		roles = &roleCheckerStub{}
	}
	if notifier == nil {
		notifier = &notifierStub{}
	}
	return NewWorkflowService(apps, caps, roles, childReaderStub{}, attachmentReaderStub{}, notifier, nil, nil)
}

func draftApp(id, applicant string) *models.Application {
	return &models.Application{ID: id, Number: "APP20250901001", Type: models.TypeWork, Status: models.StatusDraft, ApplicantID: applicant}
}

func TestCreateDraft(t *testing.T) {
	repo := newAppRepoStub()
	notifier := &notifierStub{}
	svc := newWorkflow(repo, nil, nil, notifier)

	app, err := svc.Create(context.Background(), staffUser("u1"), dto.CreateApplicationRequest{
		Type: models.TypeWork, Title: "pump maintenance", Content: "details",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, app.Status)
	assert.NotEmpty(t, app.Number)
	assert.Nil(t, app.SubmittedAt)
	assert.Empty(t, repo.steps)
	assert.Empty(t, notifier.kinds)
}

func TestCreateDirectSubmit(t *testing.T) {
	repo := newAppRepoStub()
	notifier := &notifierStub{}
	svc := newWorkflow(repo, nil, nil, notifier)

	app, err := svc.Create(context.Background(), staffUser("u1"), dto.CreateApplicationRequest{
		Type: models.TypeWork, Title: "pump maintenance", Content: "details", Submit: true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, app.Status)
	assert.NotNil(t, app.SubmittedAt)
	require.Len(t, repo.steps, 1)
	assert.Equal(t, models.StepSubmit, repo.steps[0].StepType)
	assert.Equal(t, []NotificationKind{NotifySubmitted}, notifier.kinds)
}

func TestCreateUnknownType(t *testing.T) {
	svc := newWorkflow(newAppRepoStub(), nil, nil, nil)
	_, err := svc.Create(context.Background(), staffUser("u1"), dto.CreateApplicationRequest{Type: "BOGUS", Title: "x", Content: "y"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestCreateNumberCollisionMapsToConflict(t *testing.T) {
	repo := newAppRepoStub()
	repo.createErr = &pq.Error{Code: "23505"}
	svc := newWorkflow(repo, nil, nil, nil)

	_, err := svc.Create(context.Background(), staffUser("u1"), dto.CreateApplicationRequest{Type: models.TypeWork, Title: "x", Content: "y"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestSubmitByApplicant(t *testing.T) {
	repo := newAppRepoStub(draftApp("a1", "u1"))
	notifier := &notifierStub{}
	svc := newWorkflow(repo, nil, nil, notifier)

	app, err := svc.Submit(context.Background(), staffUser("u1"), "a1", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, app.Status)
	assert.NotNil(t, app.SubmittedAt)
	require.Len(t, repo.steps, 1)
	assert.Equal(t, models.StepSubmit, repo.steps[0].StepType)
	assert.Equal(t, "u1", repo.steps[0].ActorID)
	assert.Equal(t, []NotificationKind{NotifySubmitted}, notifier.kinds)
}

func TestSubmitByOtherUserForbidden(t *testing.T) {
	repo := newAppRepoStub(draftApp("a1", "u1"))
	svc := newWorkflow(repo, nil, nil, nil)

	_, err := svc.Submit(context.Background(), staffUser("u2"), "a1", "")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	assert.Equal(t, models.StatusDraft, repo.apps["a1"].Status)
	assert.Empty(t, repo.steps)
}

func TestSubmitFromWrongState(t *testing.T) {
	app := draftApp("a1", "u1")
	app.Status = models.StatusApproved
	svc := newWorkflow(newAppRepoStub(app), nil, nil, nil)

	_, err := svc.Submit(context.Background(), staffUser("u1"), "a1", "")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
}

func TestResubmissionGetsDefaultComment(t *testing.T) {
	app := draftApp("a1", "u1")
	app.Status = models.StatusReturned
	repo := newAppRepoStub(app)
	svc := newWorkflow(repo, nil, nil, nil)

	_, err := svc.Submit(context.Background(), staffUser("u1"), "a1", "")
	require.NoError(t, err)
	require.Len(t, repo.steps, 1)
	assert.Equal(t, "re-submission", repo.steps[0].Comment)
}

func TestReceiveAuthorizedByType(t *testing.T) {
	app := draftApp("a1", "u1")
	app.Status = models.StatusSubmitted
	repo := newAppRepoStub(app)
	caps := &capResolverStub{receivable: []models.ApplicationType{models.TypeWork}}
	notifier := &notifierStub{}
	svc := newWorkflow(repo, caps, nil, notifier)

	got, err := svc.Receive(context.Background(), staffUser("u2"), "a1", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReceived, got.Status)
	assert.NotNil(t, got.ReceivedAt)
	assert.Equal(t, []NotificationKind{NotifyReceived}, notifier.kinds)
}

func TestReceiveUnroutedTypeForbidden(t *testing.T) {
	app := draftApp("a1", "u1")
	app.Status = models.StatusSubmitted
	repo := newAppRepoStub(app)
	caps := &capResolverStub{receivable: []models.ApplicationType{models.TypeConstruction}}
	svc := newWorkflow(repo, caps, nil, nil)

	_, err := svc.Receive(context.Background(), staffUser("u2"), "a1", "")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	assert.Equal(t, models.StatusSubmitted, repo.apps["a1"].Status)
	assert.Empty(t, repo.steps)
}

func TestReceiveRoutedTypeRequiresMembership(t *testing.T) {
	// Wires the real capability service so the receive check follows the
	// active route rather than the dashboard type-set fallback.
	app := draftApp("a1", "u1")
	app.Status = models.StatusSubmitted
	repo := newAppRepoStub(app)
	roles := &roleReaderStub{}
	routes := &routeReaderStub{routes: map[models.ApplicationType]*models.TypeRoute{
		models.TypeWork: {ApplicationType: models.TypeWork, ReceiverRoleID: "r-recv", ApproverRoleID: "r-appr", Active: true},
	}}
	caps := NewCapabilityService(roles, routes, nil, nil, time.Hour, nil)
	svc := NewWorkflowService(repo, caps, nil, childReaderStub{}, attachmentReaderStub{}, &notifierStub{}, nil, nil)

	_, err := svc.Receive(context.Background(), staffUser("u2"), "a1", "")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	assert.Equal(t, models.StatusSubmitted, repo.apps["a1"].Status)
	assert.Empty(t, repo.steps)

	roles.members = map[string][]string{"r-recv": {"u2"}}
	received, err := svc.Receive(context.Background(), staffUser("u2"), "a1", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReceived, received.Status)
}

func TestReceiveAdminBypass(t *testing.T) {
	app := draftApp("a1", "u1")
	app.Status = models.StatusSubmitted
	repo := newAppRepoStub(app)
	caps := &capResolverStub{err: assert.AnError}
	svc := newWorkflow(repo, caps, nil, nil)

	_, err := svc.Receive(context.Background(), &models.User{ID: "adm", Role: models.RoleAdmin}, "a1", "")
	require.NoError(t, err)
}

func TestReceiveLosesRace(t *testing.T) {
	app := draftApp("a1", "u1")
	app.Status = models.StatusSubmitted
	repo := newAppRepoStub(app)
	caps := &capResolverStub{receivable: []models.ApplicationType{models.TypeWork}}
	svc := newWorkflow(repo, caps, nil, nil)

	// another receiver wins between load and the conditional update
	repo.transitionErr = sql.ErrNoRows
	_, err := svc.Receive(context.Background(), staffUser("u2"), "a1", "")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
}

func TestReturnRequiresReceiverRole(t *testing.T) {
	app := draftApp("a1", "u1")
	app.Status = models.StatusSubmitted
	repo := newAppRepoStub(app)
	svc := newWorkflow(repo, nil, &roleCheckerStub{}, nil)

	_, err := svc.Return(context.Background(), staffUser("u2"), "a1", "missing info")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestReturnByReceiverRoleHolder(t *testing.T) {
	app := draftApp("a1", "u1")
	app.Status = models.StatusSubmitted
	repo := newAppRepoStub(app)
	roles := &roleCheckerStub{kinds: map[models.RoleKind]bool{models.RoleKindReceiver: true}}
	notifier := &notifierStub{}
	svc := newWorkflow(repo, nil, roles, notifier)

	got, err := svc.Return(context.Background(), staffUser("u2"), "a1", "missing info")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReturned, got.Status)
	require.Len(t, repo.steps, 1)
	assert.Equal(t, "missing info", repo.steps[0].Comment)
	assert.Equal(t, []NotificationKind{NotifyReturned}, notifier.kinds)
}

func TestApproveAuthorizedByType(t *testing.T) {
	app := draftApp("a1", "u1")
	app.Status = models.StatusReceived
	repo := newAppRepoStub(app)
	caps := &capResolverStub{approvable: []models.ApplicationType{models.TypeWork}}
	svc := newWorkflow(repo, caps, nil, nil)

	got, err := svc.Approve(context.Background(), staffUser("u3"), "a1", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.NotNil(t, got.ApprovedAt)
}

func TestApproveFromWrongState(t *testing.T) {
	app := draftApp("a1", "u1")
	app.Status = models.StatusSubmitted
	svc := newWorkflow(newAppRepoStub(app), &capResolverStub{approvable: []models.ApplicationType{models.TypeWork}}, nil, nil)

	_, err := svc.Approve(context.Background(), staffUser("u3"), "a1", "")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
}

func TestRejectSubmittedUsesReceiveSide(t *testing.T) {
	app := draftApp("a1", "u1")
	app.Status = models.StatusSubmitted
	repo := newAppRepoStub(app)
	caps := &capResolverStub{receivable: []models.ApplicationType{models.TypeWork}}
	svc := newWorkflow(repo, caps, nil, nil)

	got, err := svc.Reject(context.Background(), staffUser("u2"), "a1", "not needed")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, got.Status)
	require.Len(t, repo.steps, 1)
	assert.Equal(t, models.StepRejected, repo.steps[0].Status)
}

func TestRejectReceivedUsesApproveSide(t *testing.T) {
	app := draftApp("a1", "u1")
	app.Status = models.StatusReceived
	repo := newAppRepoStub(app)
	caps := &capResolverStub{receivable: []models.ApplicationType{models.TypeWork}}
	svc := newWorkflow(repo, caps, nil, nil)

	_, err := svc.Reject(context.Background(), staffUser("u2"), "a1", "")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestRejectFromTerminalState(t *testing.T) {
	app := draftApp("a1", "u1")
	app.Status = models.StatusApproved
	svc := newWorkflow(newAppRepoStub(app), nil, nil, nil)

	_, err := svc.Reject(context.Background(), &models.User{ID: "adm", Role: models.RoleAdmin}, "a1", "")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
}

func TestFullApprovalFlow(t *testing.T) {
	repo := newAppRepoStub(draftApp("a1", "u1"))
	caps := &capResolverStub{
		receivable: []models.ApplicationType{models.TypeWork},
		approvable: []models.ApplicationType{models.TypeWork},
	}
	svc := newWorkflow(repo, caps, nil, nil)

	_, err := svc.Submit(context.Background(), staffUser("u1"), "a1", "")
	require.NoError(t, err)
	_, err = svc.Receive(context.Background(), staffUser("u2"), "a1", "")
	require.NoError(t, err)
	got, err := svc.Approve(context.Background(), staffUser("u3"), "a1", "")
	require.NoError(t, err)

	assert.Equal(t, models.StatusApproved, got.Status)
	require.Len(t, repo.steps, 3)
	assert.Equal(t, models.StepSubmit, repo.steps[0].StepType)
	assert.Equal(t, models.StepReceive, repo.steps[1].StepType)
	assert.Equal(t, models.StepApprove, repo.steps[2].StepType)
}

func TestUpdateAfterSubmissionRejected(t *testing.T) {
	app := draftApp("a1", "u1")
	app.Status = models.StatusSubmitted
	svc := newWorkflow(newAppRepoStub(app), nil, nil, nil)

	_, err := svc.Update(context.Background(), staffUser("u1"), "a1", dto.UpdateApplicationRequest{Title: "x", Content: "y"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
}

func TestGetNotFound(t *testing.T) {
	svc := newWorkflow(newAppRepoStub(), nil, nil, nil)
	_, err := svc.Get(context.Background(), staffUser("u1"), "missing")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.False(t, errors.Is(err, sql.ErrNoRows))
}

func TestGetHiddenFromUnrelatedUser(t *testing.T) {
	repo := newAppRepoStub()
	repo.apps["a1"] = draftApp("a1", "owner")
	svc := newWorkflow(repo, &capResolverStub{}, nil, nil)

	_, err := svc.Get(context.Background(), staffUser("stranger"), "a1")

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestGetVisibleToTypeHolder(t *testing.T) {
	repo := newAppRepoStub()
	repo.apps["a1"] = draftApp("a1", "owner")
	caps := &capResolverStub{approvable: []models.ApplicationType{models.TypeWork}}
	svc := newWorkflow(repo, caps, nil, nil)

	detail, err := svc.Get(context.Background(), staffUser("approver"), "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", detail.Application.ID)
}
