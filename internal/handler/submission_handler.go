package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/pg-defence-api/internal/service"
	appErrors "github.com/noah-isme/pg-defence-api/pkg/errors"
	"github.com/noah-isme/pg-defence-api/pkg/response"
)

// SubmissionHandler exposes project uploads and their review trail.
type SubmissionHandler struct {
	submissions *service.SubmissionService
}

// NewSubmissionHandler constructs SubmissionHandler.
func NewSubmissionHandler(submissions *service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions}
}

// Upload godoc
// @Summary Upload a project draft
// @Tags Projects
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param title formData string true "Title"
// @Param file formData file true "Project file"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /projects [post]
func (h *SubmissionHandler) Upload(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unable to read upload"))
		return
	}
	defer file.Close()

	version, err := h.submissions.Upload(c.Request.Context(), principal.IdentityID, service.UploadInput{
		Title:    strings.TrimSpace(c.PostForm("title")),
		Filename: header.Filename,
		Size:     header.Size,
		Content:  file,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, version)
}

// ListMine godoc
// @Summary List the caller's project versions
// @Tags Projects
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /projects/mine [get]
func (h *SubmissionHandler) ListMine(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	versions, err := h.submissions.ListMine(c.Request.Context(), principal.IdentityID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, versions, nil)
}

// ListByStudent godoc
// @Summary List a student's project versions
// @Tags Projects
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /projects/students/{studentId} [get]
func (h *SubmissionHandler) ListByStudent(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	versions, err := h.submissions.ListByStudent(c.Request.Context(), principal, c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, versions, nil)
}

// Comment godoc
// @Summary Comment on a project version
// @Tags Projects
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Version ID"
// @Param payload body service.CommentRequest true "Comment"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /projects/{id}/comments [post]
func (h *SubmissionHandler) Comment(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var req service.CommentRequest
	if !bindJSON(c, &req) {
		return
	}
	comment, err := h.submissions.Comment(c.Request.Context(), principal, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comment)
}

// ListComments godoc
// @Summary List comments on a project version
// @Tags Projects
// @Produce json
// @Security BearerAuth
// @Param id path string true "Version ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/comments [get]
func (h *SubmissionHandler) ListComments(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	comments, err := h.submissions.ListComments(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, comments, nil)
}

// Approve godoc
// @Summary Approve a project version
// @Tags Projects
// @Produce json
// @Security BearerAuth
// @Param id path string true "Version ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /projects/{id}/approve [post]
func (h *SubmissionHandler) Approve(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	version, err := h.submissions.Approve(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, version, nil)
}

// DownloadLink godoc
// @Summary Issue a short-lived download link
// @Tags Projects
// @Produce json
// @Security BearerAuth
// @Param id path string true "Version ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/download-link [get]
func (h *SubmissionHandler) DownloadLink(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	link, err := h.submissions.DownloadLink(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Download a project file with a signed token
// @Tags Projects
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /projects/download [get]
func (h *SubmissionHandler) Download(c *gin.Context) {
	file, err := h.submissions.Download(c.Request.Context(), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.File.Close()

	size := file.Version.SizeBytes
	if info, statErr := file.File.Stat(); statErr == nil {
		size = info.Size()
	}
	name := fmt.Sprintf("v%d-%s%s", file.Version.Version, file.Version.StudentID, filepath.Ext(file.Version.FilePath))
	c.DataFromReader(http.StatusOK, size, file.Version.MimeType, file.File, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, name),
	})
}
