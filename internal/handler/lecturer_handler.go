package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/pg-defence-api/internal/models"
	"github.com/noah-isme/pg-defence-api/internal/service"
	"github.com/noah-isme/pg-defence-api/pkg/response"
)

// LecturerHandler exposes lecturer endpoints.
type LecturerHandler struct {
	lecturers *service.LecturerService
}

// NewLecturerHandler constructs LecturerHandler.
func NewLecturerHandler(lecturers *service.LecturerService) *LecturerHandler {
	return &LecturerHandler{lecturers: lecturers}
}

// List godoc
// @Summary List lecturers
// @Tags Lecturers
// @Produce json
// @Security BearerAuth
// @Param department query string false "Filter by department"
// @Param panelMember query bool false "Filter by panel eligibility"
// @Param search query string false "Search by name or staff id"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /lecturers [get]
func (h *LecturerHandler) List(c *gin.Context) {
	page, size := pageParams(c)
	filter := models.LecturerFilter{
		Department: c.Query("department"),
		Search:     strings.TrimSpace(c.Query("search")),
		Page:       page,
		PageSize:   size,
	}
	if raw := c.Query("panelMember"); raw != "" {
		if flag, err := strconv.ParseBool(raw); err == nil {
			filter.PanelMember = &flag
		}
	}
	lecturers, pagination, err := h.lecturers.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lecturers, pagination)
}

// Get godoc
// @Summary Get lecturer detail
// @Tags Lecturers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Lecturer ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lecturers/{id} [get]
func (h *LecturerHandler) Get(c *gin.Context) {
	lecturer, err := h.lecturers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lecturer, nil)
}

// Create godoc
// @Summary Create lecturer
// @Tags Lecturers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateLecturerRequest true "Lecturer payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /lecturers [post]
func (h *LecturerHandler) Create(c *gin.Context) {
	var req service.CreateLecturerRequest
	if !bindJSON(c, &req) {
		return
	}
	lecturer, err := h.lecturers.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lecturer)
}

// Delete godoc
// @Summary Delete lecturer and its identity
// @Tags Lecturers
// @Security BearerAuth
// @Param id path string true "Lecturer ID"
// @Success 204
// @Router /lecturers/{id} [delete]
func (h *LecturerHandler) Delete(c *gin.Context) {
	if err := h.lecturers.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SetPanelMember godoc
// @Summary Toggle panel eligibility
// @Tags Lecturers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Lecturer ID"
// @Param payload body service.PanelMemberRequest true "Flag"
// @Success 200 {object} response.Envelope
// @Router /lecturers/{id}/panel [patch]
func (h *LecturerHandler) SetPanelMember(c *gin.Context) {
	var req service.PanelMemberRequest
	if !bindJSON(c, &req) {
		return
	}
	lecturer, err := h.lecturers.SetPanelMember(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lecturer, nil)
}

// GrantRole godoc
// @Summary Grant a role
// @Tags Lecturers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Lecturer ID"
// @Param payload body service.RoleRequest true "Role"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /lecturers/{id}/roles [post]
func (h *LecturerHandler) GrantRole(c *gin.Context) {
	var req service.RoleRequest
	if !bindJSON(c, &req) {
		return
	}
	lecturer, err := h.lecturers.GrantRole(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lecturer, nil)
}

// RevokeRole godoc
// @Summary Revoke a role
// @Tags Lecturers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Lecturer ID"
// @Param role path string true "Role"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /lecturers/{id}/roles/{role} [delete]
func (h *LecturerHandler) RevokeRole(c *gin.Context) {
	req := service.RoleRequest{Role: models.Role(c.Param("role"))}
	lecturer, err := h.lecturers.RevokeRole(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lecturer, nil)
}
