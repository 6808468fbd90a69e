package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/pg-defence-api/internal/authz"
	"github.com/noah-isme/pg-defence-api/internal/middleware"
	appErrors "github.com/noah-isme/pg-defence-api/pkg/errors"
	"github.com/noah-isme/pg-defence-api/pkg/response"
)

// principalOrAbort returns the authenticated principal, writing a 401 when absent.
func principalOrAbort(c *gin.Context) (*authz.Principal, bool) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return nil, false
	}
	return principal, true
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}

func pageParams(c *gin.Context) (page, size int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	return page, size
}
