package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/pg-defence-api/internal/models"
	"github.com/noah-isme/pg-defence-api/internal/service"
	"github.com/noah-isme/pg-defence-api/pkg/response"
)

// ActivityHandler exposes the activity log.
type ActivityHandler struct {
	activity *service.ActivityService
}

// NewActivityHandler constructs ActivityHandler.
func NewActivityHandler(activity *service.ActivityService) *ActivityHandler {
	return &ActivityHandler{activity: activity}
}

// List godoc
// @Summary List activity logs
// @Tags Activity
// @Produce json
// @Security BearerAuth
// @Param actorId query string false "Filter by actor"
// @Param resource query string false "Filter by resource"
// @Param action query string false "Filter by action"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /activity-logs [get]
func (h *ActivityHandler) List(c *gin.Context) {
	page, size := pageParams(c)
	logs, pagination, err := h.activity.List(c.Request.Context(), models.ActivityFilter{
		ActorID:  c.Query("actorId"),
		Resource: c.Query("resource"),
		Action:   c.Query("action"),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}
