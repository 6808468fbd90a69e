package authz

import "github.com/noah-isme/pg-defence-api/internal/models"

// Principal is the authenticated caller attached to a request.
type Principal struct {
	IdentityID  string
	Email       string
	Roles       []models.Role
	Permissions []Permission
}

// Can reports whether the principal holds perm.
func (p *Principal) Can(perm Permission) bool {
	if p == nil {
		return false
	}
	for _, held := range p.Permissions {
		if held == perm {
			return true
		}
	}
	return false
}

// HasRole reports whether the principal holds any of roles.
func (p *Principal) HasRole(roles ...models.Role) bool {
	if p == nil {
		return false
	}
	for _, held := range p.Roles {
		for _, r := range roles {
			if held == r {
				return true
			}
		}
	}
	return false
}
