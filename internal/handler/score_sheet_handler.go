package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/pg-defence-api/internal/models"
	"github.com/noah-isme/pg-defence-api/internal/service"
	"github.com/noah-isme/pg-defence-api/pkg/response"
)

// ScoreSheetHandler serves one score sheet scope. Department routes and the general
// route each get their own instance.
type ScoreSheetHandler struct {
	sheets *service.ScoreSheetService
	scope  models.ScoreSheetScope
}

// NewScoreSheetHandler constructs a handler bound to scope.
func NewScoreSheetHandler(sheets *service.ScoreSheetService, scope models.ScoreSheetScope) *ScoreSheetHandler {
	return &ScoreSheetHandler{sheets: sheets, scope: scope}
}

func (h *ScoreSheetHandler) key(c *gin.Context, department string) (models.ScoreSheetKey, bool) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return models.ScoreSheetKey{}, false
	}
	if department == "" {
		department = c.Query("department")
	}
	key, err := h.sheets.ResolveKey(c.Request.Context(), h.scope, department, principal.IdentityID)
	if err != nil {
		response.Error(c, err)
		return models.ScoreSheetKey{}, false
	}
	return key, true
}

// Get godoc
// @Summary Get a score sheet
// @Tags ScoreSheets
// @Produce json
// @Security BearerAuth
// @Param department query string false "Department, defaults to the caller's department"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /scoresheet/department [get]
// @Router /scoresheet/general [get]
func (h *ScoreSheetHandler) Get(c *gin.Context) {
	key, ok := h.key(c, "")
	if !ok {
		return
	}
	sheet, err := h.sheets.Get(c.Request.Context(), key)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}

// Set godoc
// @Summary Create or replace the criteria of a score sheet
// @Tags ScoreSheets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.SetCriteriaRequest true "Criteria"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /scoresheet/department [put]
// @Router /scoresheet/general [put]
func (h *ScoreSheetHandler) Set(c *gin.Context) {
	var req service.SetCriteriaRequest
	if !bindJSON(c, &req) {
		return
	}
	key, ok := h.key(c, req.Department)
	if !ok {
		return
	}
	sheet, err := h.sheets.SetCriteria(c.Request.Context(), key, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}

// AddCriterion godoc
// @Summary Add a criterion
// @Tags ScoreSheets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.AddCriterionRequest true "Criterion"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /scoresheet/department/criteria [post]
// @Router /scoresheet/general/criteria [post]
func (h *ScoreSheetHandler) AddCriterion(c *gin.Context) {
	var req service.AddCriterionRequest
	if !bindJSON(c, &req) {
		return
	}
	key, ok := h.key(c, req.Department)
	if !ok {
		return
	}
	sheet, err := h.sheets.AddCriterion(c.Request.Context(), key, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sheet)
}

// UpdateCriterion godoc
// @Summary Update a criterion
// @Tags ScoreSheets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param criterionId path string true "Criterion ID"
// @Param payload body service.UpdateCriterionRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /scoresheet/department/criteria/{criterionId} [patch]
// @Router /scoresheet/general/criteria/{criterionId} [patch]
func (h *ScoreSheetHandler) UpdateCriterion(c *gin.Context) {
	var req service.UpdateCriterionRequest
	if !bindJSON(c, &req) {
		return
	}
	key, ok := h.key(c, req.Department)
	if !ok {
		return
	}
	sheet, err := h.sheets.UpdateCriterion(c.Request.Context(), key, c.Param("criterionId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}

// DeleteCriterion godoc
// @Summary Delete a criterion
// @Tags ScoreSheets
// @Produce json
// @Security BearerAuth
// @Param criterionId path string true "Criterion ID"
// @Param department query string false "Department"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /scoresheet/department/criteria/{criterionId} [delete]
// @Router /scoresheet/general/criteria/{criterionId} [delete]
func (h *ScoreSheetHandler) DeleteCriterion(c *gin.Context) {
	key, ok := h.key(c, "")
	if !ok {
		return
	}
	sheet, err := h.sheets.DeleteCriterion(c.Request.Context(), key, c.Param("criterionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}
