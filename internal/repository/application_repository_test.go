package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantops/workflow-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func applicationRows(id, number string, status models.ApplicationStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "number", "type", "status", "title", "content", "applicant_id", "company_name",
		"work_location", "work_start_date", "work_end_date", "worker_count", "contractor_name",
		"tool_list", "restricted_area", "entry_purpose", "entry_members",
		"created_at", "updated_at", "submitted_at", "received_at", "approved_at",
	}).AddRow(id, number, string(models.TypeWork), string(status), "pump maintenance", "details", "u1", "Plant Co",
		"", nil, nil, nil, "", "", "", "", "", now, now, nil, nil, nil)
}

func newApplication() *models.Application {
	return &models.Application{
		Type:        models.TypeWork,
		Status:      models.StatusDraft,
		Title:       "pump maintenance",
		Content:     "details",
		ApplicantID: "u1",
		CompanyName: "Plant Co",
	}
}

func TestCreateGeneratesFirstNumberOfDay(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db, "APP", 3)

	prefix := "APP" + time.Now().UTC().Format("20060102")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(number), '') FROM applications WHERE number LIKE $1")).
		WithArgs(prefix + "%").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(""))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO applications").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	app := newApplication()
	require.NoError(t, repo.Create(context.Background(), app, nil))
	assert.Equal(t, prefix+"001", app.Number)
	assert.NotEmpty(t, app.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateContinuesDailyCounter(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db, "APP", 3)

	prefix := "APP" + time.Now().UTC().Format("20060102")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(number), '') FROM applications WHERE number LIKE $1")).
		WithArgs(prefix + "%").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(prefix + "041"))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO applications").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	app := newApplication()
	require.NoError(t, repo.Create(context.Background(), app, nil))
	assert.Equal(t, prefix+"042", app.Number)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRetriesOnNumberCollision(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db, "APP", 3)

	prefix := "APP" + time.Now().UTC().Format("20060102")
	numberQuery := regexp.QuoteMeta("SELECT COALESCE(MAX(number), '') FROM applications WHERE number LIKE $1")

	mock.ExpectQuery(numberQuery).WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(prefix + "001"))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO applications").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()
	mock.ExpectQuery(numberQuery).WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(prefix + "002"))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO applications").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	app := newApplication()
	require.NoError(t, repo.Create(context.Background(), app, nil))
	assert.Equal(t, prefix+"003", app.Number)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateGivesUpAfterRetries(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db, "APP", 2)

	prefix := "APP" + time.Now().UTC().Format("20060102")
	numberQuery := regexp.QuoteMeta("SELECT COALESCE(MAX(number), '') FROM applications WHERE number LIKE $1")
	for i := 0; i < 2; i++ {
		mock.ExpectQuery(numberQuery).WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(prefix + "001"))
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO applications").WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()
	}

	err := repo.Create(context.Background(), newApplication(), nil)
	var pqErr *pq.Error
	require.ErrorAs(t, err, &pqErr)
	assert.Equal(t, pq.ErrorCode("23505"), pqErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWritesSubmissionStepInSameTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db, "APP", 3)

	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(""))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO applications").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO workflow_steps").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	app := newApplication()
	app.Status = models.StatusSubmitted
	step := &models.WorkflowStep{StepType: models.StepSubmit, ActorID: "u1", Status: models.StepCompleted}
	require.NoError(t, repo.Create(context.Background(), app, step))
	assert.Equal(t, app.ID, step.ApplicationID)
	assert.NotEmpty(t, step.ID)
	assert.False(t, step.ProcessedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRollsBackWhenStepFails(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db, "APP", 3)

	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(""))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO applications").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO workflow_steps").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	app := newApplication()
	app.Status = models.StatusSubmitted
	step := &models.WorkflowStep{StepType: models.StepSubmit, ActorID: "u1", Status: models.StepCompleted}
	err := repo.Create(context.Background(), app, step)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record submission step")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetApplicationByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db, "APP", 3)

	query := fmt.Sprintf(`SELECT %s FROM applications WHERE id = $1 LIMIT 1`, applicationColumns)
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs("a1").
		WillReturnRows(applicationRows("a1", "APP20250901001", models.StatusDraft))

	app, err := repo.GetByID(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "APP20250901001", app.Number)
	assert.Equal(t, models.StatusDraft, app.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetApplicationMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db, "APP", 3)

	mock.ExpectQuery("SELECT .+ FROM applications WHERE id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDraftOutsideEditableStates(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db, "APP", 3)

	mock.ExpectExec("UPDATE applications SET title").WillReturnResult(sqlmock.NewResult(0, 0))

	app := newApplication()
	app.ID = "a1"
	err := repo.UpdateDraft(context.Background(), app)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStampsStatusAndStep(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db, "APP", 3)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET status = $2, updated_at = $3, received_at = $3 WHERE id = $1 AND status = $4")).
		WithArgs("a1", models.StatusReceived, sqlmock.AnyArg(), models.StatusSubmitted).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO workflow_steps").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	step := &models.WorkflowStep{StepType: models.StepReceive, ActorID: "u2", Status: models.StepCompleted}
	err := repo.Transition(context.Background(), "a1", models.StatusSubmitted, models.StatusReceived, step)
	require.NoError(t, err)
	assert.Equal(t, "a1", step.ApplicationID)
	assert.NotEmpty(t, step.ID)
	assert.False(t, step.ProcessedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionLosesRace(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db, "APP", 3)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE applications SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	step := &models.WorkflowStep{StepType: models.StepReceive, ActorID: "u2", Status: models.StepCompleted}
	err := repo.Transition(context.Background(), "a1", models.StatusSubmitted, models.StatusReceived, step)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardCombinesQueues(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db, "APP", 3)

	base := `FROM applications WHERE (applicant_id = $1 OR (status = 'SUBMITTED' AND type = ANY($2) AND applicant_id <> $1) OR (status = 'RECEIVED' AND type = ANY($3) AND applicant_id <> $1))`
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT 20 OFFSET 0", applicationColumns, base)
	mock.ExpectQuery(regexp.QuoteMeta(listQuery)).
		WillReturnRows(applicationRows("a1", "APP20250901001", models.StatusSubmitted))
	mock.ExpectQuery(regexp.QuoteMeta(fmt.Sprintf("SELECT COUNT(*) %s", base))).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	apps, total, err := repo.Dashboard(context.Background(), "u1",
		[]models.ApplicationType{models.TypeWork},
		[]models.ApplicationType{models.TypeConstruction},
		models.ApplicationFilter{})
	require.NoError(t, err)
	assert.Len(t, apps, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardSearchFilter(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db, "APP", 3)

	base := `FROM applications WHERE (applicant_id = $1) AND (LOWER(number) LIKE $2 OR LOWER(title) LIKE $2 OR LOWER(company_name) LIKE $2) AND status = $3`
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT 20 OFFSET 0", applicationColumns, base)
	mock.ExpectQuery(regexp.QuoteMeta(listQuery)).
		WithArgs("u1", "%pump%", models.StatusDraft).
		WillReturnRows(applicationRows("a1", "APP20250901001", models.StatusDraft))
	mock.ExpectQuery(regexp.QuoteMeta(fmt.Sprintf("SELECT COUNT(*) %s", base))).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	apps, total, err := repo.Dashboard(context.Background(), "u1", nil, nil, models.ApplicationFilter{
		Search: "Pump",
		Status: models.StatusDraft,
	})
	require.NoError(t, err)
	assert.Len(t, apps, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardSearchEscapesLikeMetacharacters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db, "APP", 3)

	base := `FROM applications WHERE (applicant_id = $1) AND (LOWER(number) LIKE $2 OR LOWER(title) LIKE $2 OR LOWER(company_name) LIKE $2)`
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT 20 OFFSET 0", applicationColumns, base)
	mock.ExpectQuery(regexp.QuoteMeta(listQuery)).
		WithArgs("u1", `%100\% load\_test%`).
		WillReturnRows(applicationRows("a1", "APP20250901001", models.StatusDraft))
	mock.ExpectQuery(regexp.QuoteMeta(fmt.Sprintf("SELECT COUNT(*) %s", base))).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, _, err := repo.Dashboard(context.Background(), "u1", nil, nil, models.ApplicationFilter{
		Search: "100% load_test",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPendingByStatusEmptyTypes(t *testing.T) {
	db, _, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db, "APP", 3)

	apps, err := repo.PendingByStatus(context.Background(), models.StatusSubmitted, nil, "u1")
	require.NoError(t, err)
	assert.Nil(t, apps)
}

func TestPendingByStatusOrdersByStatusTimestamp(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db, "APP", 3)

	query := fmt.Sprintf(`SELECT %s FROM applications WHERE status = $1 AND type = ANY($2) AND applicant_id <> $3 ORDER BY received_at`, applicationColumns)
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WillReturnRows(applicationRows("a1", "APP20250901001", models.StatusReceived))

	apps, err := repo.PendingByStatus(context.Background(), models.StatusReceived, []models.ApplicationType{models.TypeWork}, "u1")
	require.NoError(t, err)
	assert.Len(t, apps, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountPendingEmptyTypes(t *testing.T) {
	db, _, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db, "APP", 3)

	count, err := repo.CountPending(context.Background(), models.StatusSubmitted, nil, "u1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCountByApplicant(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db, "APP", 3)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM applications WHERE applicant_id = $1 AND status = $2")).
		WithArgs("u1", models.StatusDraft).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountByApplicant(context.Background(), "u1", models.StatusDraft)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListStepsInCreationOrder(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db, "APP", 3)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "application_id", "step_type", "actor_id", "status", "comment", "processed_at", "created_at"}).
		AddRow("s1", "a1", string(models.StepSubmit), "u1", string(models.StepCompleted), "", now, now).
		AddRow("s2", "a1", string(models.StepReceive), "u2", string(models.StepCompleted), "", now, now)
	mock.ExpectQuery("SELECT .+ FROM workflow_steps WHERE application_id").
		WithArgs("a1").
		WillReturnRows(rows)

	steps, err := repo.ListSteps(context.Background(), "a1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, models.StepSubmit, steps[0].StepType)
	assert.Equal(t, models.StepReceive, steps[1].StepType)
	assert.NoError(t, mock.ExpectationsWereMet())
}
