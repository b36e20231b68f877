package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/plantops/workflow-api/internal/models"
)

// ApplicationRepository provides database access for applications and their
// audit trail.
type ApplicationRepository struct {
	db            *sqlx.DB
	numberPrefix  string
	numberRetries int
}

// NewApplicationRepository creates a new instance of ApplicationRepository.
func NewApplicationRepository(db *sqlx.DB, numberPrefix string, numberRetries int) *ApplicationRepository {
	if numberPrefix == "" {
		numberPrefix = "APP"
	}
	if numberRetries <= 0 {
		numberRetries = 3
	}
	return &ApplicationRepository{db: db, numberPrefix: numberPrefix, numberRetries: numberRetries}
}

const applicationColumns = `id, number, type, status, title, content, applicant_id, company_name,
	work_location, work_start_date, work_end_date, worker_count, contractor_name,
	tool_list, restricted_area, entry_purpose, entry_members,
	created_at, updated_at, submitted_at, received_at, approved_at`

const applicationInsert = `INSERT INTO applications (id, number, type, status, title, content, applicant_id, company_name,
	work_location, work_start_date, work_end_date, worker_count, contractor_name,
	tool_list, restricted_area, entry_purpose, entry_members,
	created_at, updated_at, submitted_at, received_at, approved_at)
	VALUES (:id, :number, :type, :status, :title, :content, :applicant_id, :company_name,
	:work_location, :work_start_date, :work_end_date, :worker_count, :contractor_name,
	:tool_list, :restricted_area, :entry_purpose, :entry_members,
	:created_at, :updated_at, :submitted_at, :received_at, :approved_at)`

const stepInsert = `INSERT INTO workflow_steps (id, application_id, step_type, actor_id, status, comment, processed_at, created_at)
	VALUES (:id, :application_id, :step_type, :actor_id, :status, :comment, :processed_at, :created_at)`

// Create persists a new application, generating its unique per-day number.
// The number is the prefix, UTC date and a 3-digit counter continuing from
// the lexicographic maximum of existing numbers with the same prefix.
// Concurrent creates race on the unique index; losers retry with a fresh
// counter up to the configured bound. A non-nil step is written in the same
// transaction, so a directly submitted application never lands without its
// audit record.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application, step *models.WorkflowStep) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	app.CreatedAt = now
	app.UpdatedAt = now

	prefix := r.numberPrefix + now.Format("20060102")

	var lastErr error
	for attempt := 0; attempt < r.numberRetries; attempt++ {
		number, err := r.nextNumber(ctx, prefix)
		if err != nil {
			return err
		}
		app.Number = number

		err = r.insert(ctx, app, step, now)
		if err == nil {
			return nil
		}
		if !isUniqueViolation(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (r *ApplicationRepository) insert(ctx context.Context, app *models.Application, step *models.WorkflowStep, now time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.NamedExecContext(ctx, applicationInsert, app); err != nil {
		if isUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("create application: %w", err)
	}

	if step != nil {
		if step.ID == "" {
			step.ID = uuid.NewString()
		}
		step.ApplicationID = app.ID
		step.ProcessedAt = now
		step.CreatedAt = now
		if _, err := tx.NamedExecContext(ctx, stepInsert, step); err != nil {
			return fmt.Errorf("record submission step: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create: %w", err)
	}
	return nil
}

func (r *ApplicationRepository) nextNumber(ctx context.Context, prefix string) (string, error) {
	const query = `SELECT COALESCE(MAX(number), '') FROM applications WHERE number LIKE $1`
	var last string
	if err := r.db.GetContext(ctx, &last, query, prefix+"%"); err != nil {
		return "", fmt.Errorf("scan last application number: %w", err)
	}

	counter := 1
	if last != "" && len(last) > 3 {
		var n int
		if _, err := fmt.Sscanf(last[len(last)-3:], "%03d", &n); err == nil {
			counter = n + 1
		}
	}
	return fmt.Sprintf("%s%03d", prefix, counter), nil
}

// GetByID returns an application by identifier.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE id = $1 LIMIT 1`, applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find application: %w", err)
	}
	return &app, nil
}

// UpdateDraft replaces the editable payload fields. Callers gate on
// Editable(); the WHERE clause re-checks the status to lose races cleanly.
func (r *ApplicationRepository) UpdateDraft(ctx context.Context, app *models.Application) error {
	app.UpdatedAt = time.Now().UTC()
	const query = `UPDATE applications SET title = :title, content = :content,
		work_location = :work_location, work_start_date = :work_start_date, work_end_date = :work_end_date,
		worker_count = :worker_count, contractor_name = :contractor_name, tool_list = :tool_list,
		restricted_area = :restricted_area, entry_purpose = :entry_purpose, entry_members = :entry_members,
		updated_at = :updated_at
		WHERE id = :id AND status IN ('DRAFT', 'RETURNED')`
	result, err := r.db.NamedExecContext(ctx, query, app)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// timestamp column stamped alongside each target status.
var stampColumns = map[models.ApplicationStatus]string{
	models.StatusSubmitted: "submitted_at",
	models.StatusReceived:  "received_at",
	models.StatusApproved:  "approved_at",
}

// Transition applies a status change and writes the audit step in a single
// transaction. Returns sql.ErrNoRows when the application was not in the
// expected source status, which happens when a concurrent transition won.
func (r *ApplicationRepository) Transition(ctx context.Context, applicationID string, from, to models.ApplicationStatus, step *models.WorkflowStep) error {
	now := time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	set := "status = $2, updated_at = $3"
	if column, ok := stampColumns[to]; ok {
		set += ", " + column + " = $3"
	}
	query := fmt.Sprintf(`UPDATE applications SET %s WHERE id = $1 AND status = $4`, set)
	result, err := tx.ExecContext(ctx, query, applicationID, to, now, from)
	if err != nil {
		return fmt.Errorf("transition application: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition application: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	if step.ID == "" {
		step.ID = uuid.NewString()
	}
	step.ApplicationID = applicationID
	step.ProcessedAt = now
	step.CreatedAt = now

	if _, err := tx.NamedExecContext(ctx, stepInsert, step); err != nil {
		return fmt.Errorf("record workflow step: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

// ListSteps returns the audit trail of an application in creation order.
func (r *ApplicationRepository) ListSteps(ctx context.Context, applicationID string) ([]models.WorkflowStep, error) {
	const query = `SELECT id, application_id, step_type, actor_id, status, comment, processed_at, created_at
		FROM workflow_steps WHERE application_id = $1 ORDER BY created_at`
	var steps []models.WorkflowStep
	if err := r.db.SelectContext(ctx, &steps, query, applicationID); err != nil {
		return nil, fmt.Errorf("list workflow steps: %w", err)
	}
	return steps, nil
}

// Dashboard returns the union of the caller's own applications, the
// submitted applications of types they may receive, and the received
// applications of types they may approve, newest first.
func (r *ApplicationRepository) Dashboard(ctx context.Context, userID string, receivable, approvable []models.ApplicationType, filter models.ApplicationFilter) ([]models.Application, int, error) {
	conditions := []string{"applicant_id = $1"}
	args := []interface{}{userID}

	if len(receivable) > 0 {
		conditions = append(conditions, fmt.Sprintf("(status = 'SUBMITTED' AND type = ANY($%d) AND applicant_id <> $1)", len(args)+1))
		args = append(args, pq.Array(typeStrings(receivable)))
	}
	if len(approvable) > 0 {
		conditions = append(conditions, fmt.Sprintf("(status = 'RECEIVED' AND type = ANY($%d) AND applicant_id <> $1)", len(args)+1))
		args = append(args, pq.Array(typeStrings(approvable)))
	}

	baseQuery := `FROM applications WHERE (` + strings.Join(conditions, " OR ") + `)`

	if filter.Search != "" {
		baseQuery += fmt.Sprintf(" AND (LOWER(number) LIKE $%d OR LOWER(title) LIKE $%d OR LOWER(company_name) LIKE $%d)",
			len(args)+1, len(args)+1, len(args)+1)
		args = append(args, "%"+escapeLike(strings.ToLower(filter.Search))+"%")
	}
	if filter.Status != "" {
		baseQuery += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		baseQuery += fmt.Sprintf(" AND type = $%d", len(args)+1)
		args = append(args, filter.Type)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", applicationColumns, baseQuery, pageSize, offset)

	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list dashboard applications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count dashboard applications: %w", err)
	}

	return apps, total, nil
}

// PendingByStatus returns the work queue of applications in the given
// status restricted to the provided types, excluding the caller's own,
// oldest first by the status timestamp.
func (r *ApplicationRepository) PendingByStatus(ctx context.Context, status models.ApplicationStatus, types []models.ApplicationType, excludeUser string) ([]models.Application, error) {
	if len(types) == 0 {
		return nil, nil
	}
	orderColumn := "submitted_at"
	if status == models.StatusReceived {
		orderColumn = "received_at"
	}
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE status = $1 AND type = ANY($2) AND applicant_id <> $3 ORDER BY %s`, applicationColumns, orderColumn)
	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, query, status, pq.Array(typeStrings(types)), excludeUser); err != nil {
		return nil, fmt.Errorf("list pending applications: %w", err)
	}
	return apps, nil
}

// CountByApplicant returns the number of the user's applications in a status.
func (r *ApplicationRepository) CountByApplicant(ctx context.Context, userID string, status models.ApplicationStatus) (int, error) {
	const query = `SELECT COUNT(*) FROM applications WHERE applicant_id = $1 AND status = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID, status); err != nil {
		return 0, fmt.Errorf("count applications by applicant: %w", err)
	}
	return count, nil
}

// CountPending returns the size of a work queue.
func (r *ApplicationRepository) CountPending(ctx context.Context, status models.ApplicationStatus, types []models.ApplicationType, excludeUser string) (int, error) {
	if len(types) == 0 {
		return 0, nil
	}
	const query = `SELECT COUNT(*) FROM applications WHERE status = $1 AND type = ANY($2) AND applicant_id <> $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, status, pq.Array(typeStrings(types)), excludeUser); err != nil {
		return 0, fmt.Errorf("count pending applications: %w", err)
	}
	return count, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike neutralizes LIKE metacharacters so user input matches literally.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func typeStrings(types []models.ApplicationType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
