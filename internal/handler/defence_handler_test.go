package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pg-defence-api/internal/authz"
	"github.com/noah-isme/pg-defence-api/internal/models"
	"github.com/noah-isme/pg-defence-api/internal/service"
	appErrors "github.com/noah-isme/pg-defence-api/pkg/errors"
)

type tokenStub map[string]*models.JWTClaims

func (s tokenStub) ValidateToken(token, _ string) (*models.JWTClaims, error) {
	claims, ok := s[token]
	if !ok {
		return nil, appErrors.ErrUnauthenticated
	}
	return claims, nil
}

var testTokens = tokenStub{
	"lecturer": {UserID: "u-lect", Roles: []models.Role{models.RoleLecturer}},
	"hod":      {UserID: "u-hod", Roles: []models.Role{models.RoleLecturer, models.RoleHOD}},
}

type defenceServiceMock struct {
	scheduled  []service.ScheduleDefenceRequest
	actor      string
	panelist   string
	startErr   error
	exportFile *service.ExportFile
}

func (m *defenceServiceMock) Schedule(_ context.Context, req service.ScheduleDefenceRequest, actorID string) (*models.Defence, error) {
	m.scheduled = append(m.scheduled, req)
	m.actor = actorID
	return &models.Defence{ID: "d-1", Stage: req.Stage, Program: req.Program}, nil
}

func (m *defenceServiceMock) Start(_ context.Context, id string) (*models.Defence, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	return &models.Defence{ID: id, Started: true}, nil
}

func (m *defenceServiceMock) End(_ context.Context, id string) (*models.Defence, error) {
	return &models.Defence{ID: id, Started: true, Ended: true}, nil
}

func (m *defenceServiceMock) SubmitScore(_ context.Context, defenceID, panelMemberID string, req service.SubmitScoreRequest) (*models.ScoreEntry, error) {
	m.panelist = panelMemberID
	return &models.ScoreEntry{DefenceID: defenceID, StudentID: req.StudentID, PanelMemberID: panelMemberID}, nil
}

func (m *defenceServiceMock) Approve(_ context.Context, studentID, _ string) (*service.StageDecision, error) {
	return &service.StageDecision{StudentID: studentID, Completed: true}, nil
}

func (m *defenceServiceMock) Reject(_ context.Context, studentID, _ string) (*service.StageDecision, error) {
	return &service.StageDecision{StudentID: studentID}, nil
}

func (m *defenceServiceMock) Get(_ context.Context, id string) (*models.Defence, error) {
	return &models.Defence{ID: id}, nil
}

func (m *defenceServiceMock) List(context.Context, models.DefenceFilter) ([]models.Defence, *models.Pagination, error) {
	return []models.Defence{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (m *defenceServiceMock) ListForPanelMember(_ context.Context, identityID string, _ models.DefenceFilter) ([]models.Defence, *models.Pagination, error) {
	m.panelist = identityID
	return []models.Defence{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (m *defenceServiceMock) Results(_ context.Context, id string) (*models.DefenceResults, error) {
	return &models.DefenceResults{Defence: &models.Defence{ID: id}}, nil
}

func (m *defenceServiceMock) Export(context.Context, string, string) (*service.ExportFile, error) {
	return m.exportFile, nil
}

func newDefenceRouter(svc *defenceServiceMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	router := &Router{Defences: NewDefenceHandler(svc), Tokens: testTokens, Policy: authz.DefaultPolicy()}
	router.Register(r.Group("/api/v1"))
	return r
}

func doJSON(r *gin.Engine, method, path, token string, payload interface{}) *httptest.ResponseRecorder {
	var body bytes.Buffer
	if payload != nil {
		_ = json.NewEncoder(&body).Encode(payload)
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func schedulePayload() service.ScheduleDefenceRequest {
	return service.ScheduleDefenceRequest{
		Stage:          models.StageProposal,
		Program:        models.ProgramMSc,
		SessionID:      "sess-1",
		Date:           "2024-03-01",
		Time:           "10:00",
		Venue:          "Senate Hall",
		PanelMemberIDs: []string{"p1"},
	}
}

func TestScheduleForbiddenForLecturer(t *testing.T) {
	svc := &defenceServiceMock{}
	r := newDefenceRouter(svc)

	w := doJSON(r, http.MethodPost, "/api/v1/defence", "lecturer", schedulePayload())
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, svc.scheduled)
}

func TestScheduleRequiresAuthentication(t *testing.T) {
	svc := &defenceServiceMock{}
	r := newDefenceRouter(svc)

	w := doJSON(r, http.MethodPost, "/api/v1/defence", "", schedulePayload())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, svc.scheduled)
}

func TestScheduleByHODCreatesDefence(t *testing.T) {
	svc := &defenceServiceMock{}
	r := newDefenceRouter(svc)

	w := doJSON(r, http.MethodPost, "/api/v1/defence", "hod", schedulePayload())
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, svc.scheduled, 1)
	assert.Equal(t, "u-hod", svc.actor)

	var env struct {
		Success bool           `json:"success"`
		Data    models.Defence `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.True(t, env.Success)
	assert.Equal(t, "d-1", env.Data.ID)
}

func TestScheduleInvalidBody(t *testing.T) {
	svc := &defenceServiceMock{}
	r := newDefenceRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/defence", bytes.NewBufferString("{invalid"))
	req.Header.Set("Authorization", "Bearer hod")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.scheduled)
}

func TestStartConflictMapsToStateCode(t *testing.T) {
	svc := &defenceServiceMock{startErr: appErrors.ErrAlreadyStarted}
	r := newDefenceRouter(svc)

	w := doJSON(r, http.MethodPost, "/api/v1/defence/d-1/start", "hod", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "ALREADY_STARTED")
}

func TestSubmitScoreUsesCallerAsPanelMember(t *testing.T) {
	svc := &defenceServiceMock{}
	r := newDefenceRouter(svc)

	payload := service.SubmitScoreRequest{StudentID: "s1", Scores: []models.ScoreItem{{CriterionID: "c1", Score: 70}}}
	w := doJSON(r, http.MethodPost, "/api/v1/defence/d-1/score", "lecturer", payload)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-lect", svc.panelist)
}

func TestListMineUsesCaller(t *testing.T) {
	svc := &defenceServiceMock{}
	r := newDefenceRouter(svc)

	w := doJSON(r, http.MethodGet, "/api/v1/defence/panel", "lecturer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-lect", svc.panelist)
}

func TestExportWritesAttachment(t *testing.T) {
	svc := &defenceServiceMock{exportFile: &service.ExportFile{
		Filename:    "defence-d-1-results.csv",
		ContentType: "text/csv",
		Content:     []byte("Matric No\n"),
	}}
	r := newDefenceRouter(svc)

	w := doJSON(r, http.MethodGet, "/api/v1/defence/d-1/results/export?format=csv", "lecturer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "defence-d-1-results.csv")
	assert.Equal(t, "Matric No\n", w.Body.String())
}

func TestApproveRequiresPermission(t *testing.T) {
	svc := &defenceServiceMock{}
	r := newDefenceRouter(svc)

	assert.Equal(t, http.StatusForbidden, doJSON(r, http.MethodPost, "/api/v1/defence/students/s1/approve", "lecturer", nil).Code)
	w := doJSON(r, http.MethodPost, "/api/v1/defence/students/s1/approve", "hod", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"completed":true`)
}
