package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/pg-defence-api/internal/service"
	"github.com/noah-isme/pg-defence-api/pkg/response"
)

// OrgHandler exposes faculties, departments and sessions.
type OrgHandler struct {
	org *service.OrgService
}

// NewOrgHandler constructs OrgHandler.
func NewOrgHandler(org *service.OrgService) *OrgHandler {
	return &OrgHandler{org: org}
}

// ListFaculties godoc
// @Summary List faculties
// @Tags Org
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /faculties [get]
func (h *OrgHandler) ListFaculties(c *gin.Context) {
	faculties, err := h.org.ListFaculties(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, faculties, nil)
}

// CreateFaculty godoc
// @Summary Create faculty
// @Tags Org
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateFacultyRequest true "Faculty"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /faculties [post]
func (h *OrgHandler) CreateFaculty(c *gin.Context) {
	var req service.CreateFacultyRequest
	if !bindJSON(c, &req) {
		return
	}
	faculty, err := h.org.CreateFaculty(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, faculty)
}

// DeleteFaculty godoc
// @Summary Delete faculty
// @Tags Org
// @Security BearerAuth
// @Param id path string true "Faculty ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /faculties/{id} [delete]
func (h *OrgHandler) DeleteFaculty(c *gin.Context) {
	if err := h.org.DeleteFaculty(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListDepartments godoc
// @Summary List departments
// @Tags Org
// @Produce json
// @Security BearerAuth
// @Param facultyId query string false "Filter by faculty"
// @Success 200 {object} response.Envelope
// @Router /departments [get]
func (h *OrgHandler) ListDepartments(c *gin.Context) {
	departments, err := h.org.ListDepartments(c.Request.Context(), c.Query("facultyId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, departments, nil)
}

// CreateDepartment godoc
// @Summary Create department
// @Tags Org
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateDepartmentRequest true "Department"
// @Success 201 {object} response.Envelope
// @Router /departments [post]
func (h *OrgHandler) CreateDepartment(c *gin.Context) {
	var req service.CreateDepartmentRequest
	if !bindJSON(c, &req) {
		return
	}
	department, err := h.org.CreateDepartment(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, department)
}

// DeleteDepartment godoc
// @Summary Delete department
// @Tags Org
// @Security BearerAuth
// @Param id path string true "Department ID"
// @Success 204
// @Router /departments/{id} [delete]
func (h *OrgHandler) DeleteDepartment(c *gin.Context) {
	if err := h.org.DeleteDepartment(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListSessions godoc
// @Summary List academic sessions
// @Tags Org
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *OrgHandler) ListSessions(c *gin.Context) {
	sessions, err := h.org.ListSessions(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// CreateSession godoc
// @Summary Create academic session
// @Tags Org
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateSessionRequest true "Session"
// @Success 201 {object} response.Envelope
// @Router /sessions [post]
func (h *OrgHandler) CreateSession(c *gin.Context) {
	var req service.CreateSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.org.CreateSession(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// ActivateSession godoc
// @Summary Mark a session as the active one
// @Tags Org
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/activate [post]
func (h *OrgHandler) ActivateSession(c *gin.Context) {
	session, err := h.org.ActivateSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// DeleteSession godoc
// @Summary Delete academic session
// @Tags Org
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 204
// @Router /sessions/{id} [delete]
func (h *OrgHandler) DeleteSession(c *gin.Context) {
	if err := h.org.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
