package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/pg-defence-api/internal/authz"
	"github.com/noah-isme/pg-defence-api/internal/models"
	appErrors "github.com/noah-isme/pg-defence-api/pkg/errors"
	"github.com/noah-isme/pg-defence-api/pkg/response"
)

// ContextPrincipalKey is the gin context key storing the authenticated principal.
const ContextPrincipalKey = "principal"

// TokenValidator verifies bearer tokens.
type TokenValidator interface {
	ValidateToken(token, purpose string) (*models.JWTClaims, error)
}

// JWT protects routes by requiring a valid session token. Permissions are recomputed
// from the token's roles through policy; permissions carried in the token are ignored.
func JWT(validator TokenValidator, policy *authz.Policy) gin.HandlerFunc {
	if policy == nil {
		policy = authz.DefaultPolicy()
	}
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthenticated)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthenticated, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(strings.TrimSpace(parts[1]), models.TokenPurposeSession)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		SetPrincipal(c, &authz.Principal{
			IdentityID:  claims.UserID,
			Email:       claims.Email,
			Roles:       claims.Roles,
			Permissions: policy.Resolve(claims.Roles),
		})
		c.Next()
	}
}

// SetPrincipal attaches principal to the request context.
func SetPrincipal(c *gin.Context, principal *authz.Principal) {
	c.Set(ContextPrincipalKey, principal)
}

// PrincipalFrom returns the principal attached by JWT.
func PrincipalFrom(c *gin.Context) (*authz.Principal, bool) {
	value, ok := c.Get(ContextPrincipalKey)
	if !ok {
		return nil, false
	}
	principal, ok := value.(*authz.Principal)
	return principal, ok && principal != nil
}
