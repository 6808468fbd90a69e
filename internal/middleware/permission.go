package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/pg-defence-api/internal/authz"
	appErrors "github.com/noah-isme/pg-defence-api/pkg/errors"
	"github.com/noah-isme/pg-defence-api/pkg/response"
)

// RequirePermission aborts with 403 unless the principal holds perm. It must run after JWT.
func RequirePermission(perm authz.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthenticated)
			c.Abort()
			return
		}
		if !principal.Can(perm) {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "missing permission "+string(perm)))
			c.Abort()
			return
		}
		c.Next()
	}
}
