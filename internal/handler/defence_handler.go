package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/pg-defence-api/internal/models"
	"github.com/noah-isme/pg-defence-api/internal/service"
	"github.com/noah-isme/pg-defence-api/pkg/response"
)

type defenceService interface {
	Schedule(ctx context.Context, req service.ScheduleDefenceRequest, actorID string) (*models.Defence, error)
	Start(ctx context.Context, id string) (*models.Defence, error)
	End(ctx context.Context, id string) (*models.Defence, error)
	SubmitScore(ctx context.Context, defenceID, panelMemberID string, req service.SubmitScoreRequest) (*models.ScoreEntry, error)
	Approve(ctx context.Context, studentID, actorID string) (*service.StageDecision, error)
	Reject(ctx context.Context, studentID, actorID string) (*service.StageDecision, error)
	Get(ctx context.Context, id string) (*models.Defence, error)
	List(ctx context.Context, filter models.DefenceFilter) ([]models.Defence, *models.Pagination, error)
	ListForPanelMember(ctx context.Context, identityID string, filter models.DefenceFilter) ([]models.Defence, *models.Pagination, error)
	Results(ctx context.Context, id string) (*models.DefenceResults, error)
	Export(ctx context.Context, id, format string) (*service.ExportFile, error)
}

// DefenceHandler exposes the defence lifecycle.
type DefenceHandler struct {
	defences defenceService
}

// NewDefenceHandler constructs DefenceHandler.
func NewDefenceHandler(defences defenceService) *DefenceHandler {
	return &DefenceHandler{defences: defences}
}

// Schedule godoc
// @Summary Schedule a defence
// @Description Creates a defence for every student at the stage in the session. Student ids in the payload are ignored.
// @Tags Defences
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.ScheduleDefenceRequest true "Schedule payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /defence [post]
func (h *DefenceHandler) Schedule(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var req service.ScheduleDefenceRequest
	if !bindJSON(c, &req) {
		return
	}
	defence, err := h.defences.Schedule(c.Request.Context(), req, principal.IdentityID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, defence)
}

// Start godoc
// @Summary Start a defence
// @Tags Defences
// @Produce json
// @Security BearerAuth
// @Param id path string true "Defence ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /defence/{id}/start [post]
func (h *DefenceHandler) Start(c *gin.Context) {
	defence, err := h.defences.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, defence, nil)
}

// End godoc
// @Summary End a defence
// @Tags Defences
// @Produce json
// @Security BearerAuth
// @Param id path string true "Defence ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /defence/{id}/end [post]
func (h *DefenceHandler) End(c *gin.Context) {
	defence, err := h.defences.End(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, defence, nil)
}

// SubmitScore godoc
// @Summary Submit panel scores for a student
// @Description Resubmission by the same panel member replaces the earlier scores.
// @Tags Defences
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Defence ID"
// @Param payload body service.SubmitScoreRequest true "Scores"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /defence/{id}/score [post]
func (h *DefenceHandler) SubmitScore(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var req service.SubmitScoreRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := h.defences.SubmitScore(c.Request.Context(), c.Param("id"), principal.IdentityID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Approve godoc
// @Summary Approve a student's defence
// @Description Advances the student one stage. At the final stage the response reports completion and nothing changes.
// @Tags Defences
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /defence/students/{studentId}/approve [post]
func (h *DefenceHandler) Approve(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	decision, err := h.defences.Approve(c.Request.Context(), c.Param("studentId"), principal.IdentityID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decision, nil)
}

// Reject godoc
// @Summary Reject a student's defence
// @Tags Defences
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /defence/students/{studentId}/reject [post]
func (h *DefenceHandler) Reject(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	decision, err := h.defences.Reject(c.Request.Context(), c.Param("studentId"), principal.IdentityID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decision, nil)
}

// Get godoc
// @Summary Get defence detail
// @Tags Defences
// @Produce json
// @Security BearerAuth
// @Param id path string true "Defence ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /defence/{id} [get]
func (h *DefenceHandler) Get(c *gin.Context) {
	defence, err := h.defences.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, defence, nil)
}

// List godoc
// @Summary List defences
// @Tags Defences
// @Produce json
// @Security BearerAuth
// @Param stage query string false "Stage"
// @Param program query string false "Program"
// @Param sessionId query string false "Session"
// @Param department query string false "Department"
// @Param status query string false "scheduled, started or ended"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /defence [get]
func (h *DefenceHandler) List(c *gin.Context) {
	defences, pagination, err := h.defences.List(c.Request.Context(), defenceFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, defences, pagination)
}

// ListMine godoc
// @Summary List defences on which the caller sits
// @Tags Defences
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /defence/panel [get]
func (h *DefenceHandler) ListMine(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	defences, pagination, err := h.defences.ListForPanelMember(c.Request.Context(), principal.IdentityID, defenceFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, defences, pagination)
}

// Results godoc
// @Summary Aggregate results of a defence
// @Tags Defences
// @Produce json
// @Security BearerAuth
// @Param id path string true "Defence ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /defence/{id}/results [get]
func (h *DefenceHandler) Results(c *gin.Context) {
	results, err := h.defences.Results(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}

// Export godoc
// @Summary Export defence results
// @Tags Defences
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Defence ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /defence/{id}/results/export [get]
func (h *DefenceHandler) Export(c *gin.Context) {
	file, err := h.defences.Export(c.Request.Context(), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Content)
}

func defenceFilter(c *gin.Context) models.DefenceFilter {
	page, size := pageParams(c)
	return models.DefenceFilter{
		Stage:      models.Stage(c.Query("stage")),
		Program:    models.Program(c.Query("program")),
		SessionID:  c.Query("sessionId"),
		Department: c.Query("department"),
		Status:     c.Query("status"),
		Page:       page,
		PageSize:   size,
	}
}
