package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/plantops/workflow-api/internal/dto"
	"github.com/plantops/workflow-api/internal/models"
	appErrors "github.com/plantops/workflow-api/pkg/errors"
)

type fakeWorkflowSrv struct {
	app         *models.Application
	detail      *dto.ApplicationDetail
	err         error
	lastID      string
	lastComment string
	lastCreate  dto.CreateApplicationRequest
}

func (f *fakeWorkflowSrv) Create(_ context.Context, _ *models.User, req dto.CreateApplicationRequest) (*models.Application, error) {
	f.lastCreate = req
	return f.app, f.err
}

func (f *fakeWorkflowSrv) Update(_ context.Context, _ *models.User, id string, _ dto.UpdateApplicationRequest) (*models.Application, error) {
	f.lastID = id
	return f.app, f.err
}

func (f *fakeWorkflowSrv) Get(_ context.Context, _ *models.User, id string) (*dto.ApplicationDetail, error) {
	f.lastID = id
	return f.detail, f.err
}

func (f *fakeWorkflowSrv) Submit(_ context.Context, _ *models.User, id, comment string) (*models.Application, error) {
	f.lastID, f.lastComment = id, comment
	return f.app, f.err
}

func (f *fakeWorkflowSrv) Receive(_ context.Context, _ *models.User, id, comment string) (*models.Application, error) {
	f.lastID, f.lastComment = id, comment
	return f.app, f.err
}

func (f *fakeWorkflowSrv) Return(_ context.Context, _ *models.User, id, comment string) (*models.Application, error) {
	f.lastID, f.lastComment = id, comment
	return f.app, f.err
}

func (f *fakeWorkflowSrv) Approve(_ context.Context, _ *models.User, id, comment string) (*models.Application, error) {
	f.lastID, f.lastComment = id, comment
	return f.app, f.err
}

func (f *fakeWorkflowSrv) Reject(_ context.Context, _ *models.User, id, comment string) (*models.Application, error) {
	f.lastID, f.lastComment = id, comment
	return f.app, f.err
}

type fakeCapabilitySrv struct {
	set *models.CapabilitySet
	err error
}

func (f *fakeCapabilitySrv) Capabilities(context.Context, *models.User) (*models.CapabilitySet, error) {
	return f.set, f.err
}

func authedJSONContext(rec *httptest.ResponseRecorder, method, target, body string) *gin.Context {
	c := authedContext(rec, method, target)
	if body != "" {
		c.Request = httptest.NewRequest(method, target, strings.NewReader(body))
		c.Request.Header.Set("Content-Type", "application/json")
	}
	return c
}

func TestApplicationHandlerCreateRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewApplicationHandler(&fakeWorkflowSrv{}, &fakeCapabilitySrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/applications", nil)

	handler.Create(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestApplicationHandlerCreateRejectsBadPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewApplicationHandler(&fakeWorkflowSrv{}, &fakeCapabilitySrv{})

	rec := httptest.NewRecorder()
	c := authedJSONContext(rec, http.MethodPost, "/applications", `{"type":"WORK"}`)

	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var envelope responseEnvelope
	_ = json.Unmarshal(rec.Body.Bytes(), &envelope)
	assert.Equal(t, "VALIDATION_ERROR", envelope.Error["code"])
}

func TestApplicationHandlerCreateSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeWorkflowSrv{app: &models.Application{ID: "a1", Number: "WRK20250901001"}}
	handler := NewApplicationHandler(srv, &fakeCapabilitySrv{})

	rec := httptest.NewRecorder()
	payload := `{"type":"WORK","title":"Pump maintenance","content":"Replace seals","submit":true}`
	c := authedJSONContext(rec, http.MethodPost, "/applications", payload)

	handler.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, models.TypeWork, srv.lastCreate.Type)
	assert.True(t, srv.lastCreate.Submit)
	var envelope responseEnvelope
	_ = json.Unmarshal(rec.Body.Bytes(), &envelope)
	data, ok := envelope.Data.(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, "WRK20250901001", data["number"])
}

func TestApplicationHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewApplicationHandler(&fakeWorkflowSrv{err: appErrors.ErrNotFound}, &fakeCapabilitySrv{})

	rec := httptest.NewRecorder()
	c := authedContext(rec, http.MethodGet, "/applications/missing")
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Get(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApplicationHandlerSubmitPassesComment(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeWorkflowSrv{app: &models.Application{ID: "a1", Status: models.StatusSubmitted}}
	handler := NewApplicationHandler(srv, &fakeCapabilitySrv{})

	rec := httptest.NewRecorder()
	c := authedJSONContext(rec, http.MethodPost, "/applications/a1/submit", `{"comment":"urgent"}`)
	c.Params = gin.Params{{Key: "id", Value: "a1"}}

	handler.Submit(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a1", srv.lastID)
	assert.Equal(t, "urgent", srv.lastComment)
}

func TestApplicationHandlerSubmitWithoutBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeWorkflowSrv{app: &models.Application{ID: "a1", Status: models.StatusSubmitted}}
	handler := NewApplicationHandler(srv, &fakeCapabilitySrv{})

	rec := httptest.NewRecorder()
	c := authedContext(rec, http.MethodPost, "/applications/a1/submit")
	c.Params = gin.Params{{Key: "id", Value: "a1"}}

	handler.Submit(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", srv.lastComment)
}

func TestApplicationHandlerApproveConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewApplicationHandler(&fakeWorkflowSrv{err: appErrors.ErrInvalidTransition}, &fakeCapabilitySrv{})

	rec := httptest.NewRecorder()
	c := authedContext(rec, http.MethodPost, "/applications/a1/approve")
	c.Params = gin.Params{{Key: "id", Value: "a1"}}

	handler.Approve(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	var envelope responseEnvelope
	_ = json.Unmarshal(rec.Body.Bytes(), &envelope)
	assert.Equal(t, "INVALID_TRANSITION", envelope.Error["code"])
}

func TestApplicationHandlerRejectForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewApplicationHandler(&fakeWorkflowSrv{err: appErrors.ErrForbidden}, &fakeCapabilitySrv{})

	rec := httptest.NewRecorder()
	c := authedContext(rec, http.MethodPost, "/applications/a1/reject")
	c.Params = gin.Params{{Key: "id", Value: "a1"}}

	handler.Reject(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestApplicationHandlerCapabilities(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewApplicationHandler(&fakeWorkflowSrv{}, &fakeCapabilitySrv{
		set: &models.CapabilitySet{
			Receivable: []models.ApplicationType{models.TypeWork},
			Approvable: []models.ApplicationType{models.TypeWork, models.TypeConstruction},
		},
	})

	rec := httptest.NewRecorder()
	c := authedContext(rec, http.MethodGet, "/capabilities")

	handler.Capabilities(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	_ = json.Unmarshal(rec.Body.Bytes(), &envelope)
	data, ok := envelope.Data.(map[string]interface{})
	assert.True(t, ok)
	assert.Len(t, data["approvable"], 2)
}
