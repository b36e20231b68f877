package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plantops/workflow-api/internal/models"
	"github.com/plantops/workflow-api/pkg/jobs"
)

// NotificationKind identifies the workflow event behind a notification.
type NotificationKind string

const (
	NotifySubmitted NotificationKind = "application_submitted"
	NotifyReceived  NotificationKind = "application_received"
	NotifyReturned  NotificationKind = "application_returned"
	NotifyRejected  NotificationKind = "application_rejected"
	NotifyApproved  NotificationKind = "application_approved"
)

// Notification is one outbound message with resolved recipients.
type Notification struct {
	Kind       NotificationKind       `json:"kind"`
	Number     string                 `json:"number"`
	Type       models.ApplicationType `json:"type"`
	Title      string                 `json:"title"`
	Company    string                 `json:"company"`
	Comment    string                 `json:"comment,omitempty"`
	DetailURL  string                 `json:"detail_url"`
	Recipients []string               `json:"recipients"`
}

// Notifier delivers a notification. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the structured log instead of an
// external channel. The default sink in development deployments.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Send logs the notification payload.
func (n *LogNotifier) Send(_ context.Context, msg Notification) error {
	n.logger.Info("notification",
		zap.String("kind", string(msg.Kind)),
		zap.String("number", msg.Number),
		zap.Strings("recipients", msg.Recipients),
	)
	return nil
}

type notificationRoleReader interface {
	MemberUserIDs(ctx context.Context, roleID string) ([]string, error)
	MemberIDsOfKind(ctx context.Context, kind models.RoleKind) ([]string, error)
}

type notificationRouteReader interface {
	ActiveRoute(ctx context.Context, appType models.ApplicationType) (*models.TypeRoute, error)
}

type notificationUserReader interface {
	EmailsByIDs(ctx context.Context, ids []string) ([]string, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// NotificationService resolves recipients for workflow events and hands the
// messages to a background queue. Delivery is best effort: failures are
// logged once and dropped, never surfaced to the transition caller.
type NotificationService struct {
	roles    notificationRoleReader
	routes   notificationRouteReader
	users    notificationUserReader
	notifier Notifier
	metrics  *MetricsService
	queue    *jobs.Queue
	baseURL  string
	enabled  bool
	logger   *zap.Logger
}

// NotificationConfig tunes the dispatch queue.
type NotificationConfig struct {
	Enabled    bool
	Workers    int
	BufferSize int
	BaseURL    string
}

// NewNotificationService constructs NotificationService.
func NewNotificationService(roles notificationRoleReader, routes notificationRouteReader, users notificationUserReader, notifier Notifier, metrics *MetricsService, cfg NotificationConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	s := &NotificationService{
		roles:    roles,
		routes:   routes,
		users:    users,
		notifier: notifier,
		metrics:  metrics,
		baseURL:  cfg.BaseURL,
		enabled:  cfg.Enabled,
		logger:   logger,
	}
	s.queue = jobs.NewQueue("notifications", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: 1,
		Logger:     logger,
	})
	return s
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	if s.enabled {
		s.queue.Start(ctx)
	}
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	if s.enabled {
		s.queue.Stop()
	}
}

// Dispatch queues a notification for the given event. Errors never reach the
// caller.
func (s *NotificationService) Dispatch(kind NotificationKind, app *models.Application, comment string) {
	if !s.enabled || app == nil {
		return
	}
	job := jobs.Job{
		ID:   uuid.NewString(),
		Type: string(kind),
		Payload: notificationJob{
			Kind:          kind,
			ApplicationID: app.ID,
			Number:        app.Number,
			AppType:       app.Type,
			Title:         app.Title,
			Company:       app.CompanyName,
			ApplicantID:   app.ApplicantID,
			Comment:       comment,
		},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("notification enqueue failed",
			zap.String("kind", string(kind)),
			zap.String("application_id", app.ID),
			zap.Error(err))
	}
}

type notificationJob struct {
	Kind          NotificationKind
	ApplicationID string
	Number        string
	AppType       models.ApplicationType
	Title         string
	Company       string
	ApplicantID   string
	Comment       string
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(notificationJob)
	if !ok {
		s.logger.Error("notification job with unexpected payload", zap.String("job_id", job.ID))
		return nil
	}

	recipients, err := s.recipients(ctx, payload)
	if err != nil {
		s.metrics.RecordNotification(string(payload.Kind), false)
		return fmt.Errorf("resolve recipients: %w", err)
	}
	if len(recipients) == 0 {
		return nil
	}

	msg := Notification{
		Kind:       payload.Kind,
		Number:     payload.Number,
		Type:       payload.AppType,
		Title:      payload.Title,
		Company:    payload.Company,
		Comment:    payload.Comment,
		DetailURL:  fmt.Sprintf("%s/applications/%s", s.baseURL, payload.ApplicationID),
		Recipients: recipients,
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.metrics.RecordNotification(string(payload.Kind), false)
		return fmt.Errorf("send notification: %w", err)
	}
	s.metrics.RecordNotification(string(payload.Kind), true)
	return nil
}

// recipients maps each event to its audience. Submit goes to the type's
// receiver role members, receive to the approver role members plus the
// applicant, everything else to the applicant only. When the type has no
// active route, members of every active role of the needed kind are used.
func (s *NotificationService) recipients(ctx context.Context, payload notificationJob) ([]string, error) {
	switch payload.Kind {
	case NotifySubmitted:
		return s.roleSideEmails(ctx, payload.AppType, models.RoleKindReceiver)
	case NotifyReceived:
		emails, err := s.roleSideEmails(ctx, payload.AppType, models.RoleKindApprover)
		if err != nil {
			return nil, err
		}
		applicant, err := s.applicantEmail(ctx, payload.ApplicantID)
		if err != nil {
			return nil, err
		}
		return appendUnique(emails, applicant), nil
	default:
		email, err := s.applicantEmail(ctx, payload.ApplicantID)
		if err != nil {
			return nil, err
		}
		if email == "" {
			return nil, nil
		}
		return []string{email}, nil
	}
}

func (s *NotificationService) roleSideEmails(ctx context.Context, appType models.ApplicationType, kind models.RoleKind) ([]string, error) {
	route, err := s.routes.ActiveRoute(ctx, appType)
	if err != nil {
		return nil, err
	}

	var userIDs []string
	if route != nil {
		roleID := route.ReceiverRoleID
		if kind == models.RoleKindApprover {
			roleID = route.ApproverRoleID
		}
		userIDs, err = s.roles.MemberUserIDs(ctx, roleID)
	} else {
		userIDs, err = s.roles.MemberIDsOfKind(ctx, kind)
	}
	if err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return nil, nil
	}
	return s.users.EmailsByIDs(ctx, userIDs)
}

func (s *NotificationService) applicantEmail(ctx context.Context, applicantID string) (string, error) {
	user, err := s.users.FindByID(ctx, applicantID)
	if err != nil {
		return "", err
	}
	return user.Email, nil
}

func appendUnique(emails []string, extra string) []string {
	if extra == "" {
		return emails
	}
	for _, e := range emails {
		if e == extra {
			return emails
		}
	}
	return append(emails, extra)
}
