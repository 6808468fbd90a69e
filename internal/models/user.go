package models

import (
	"time"

	"github.com/lib/pq"
)

// Role is a role tag held by an identity.
type Role string

const (
	RoleAdmin            Role = "admin"
	RoleProvost          Role = "provost"
	RoleDean             Role = "dean"
	RoleHOD              Role = "hod"
	RolePGCoord          Role = "pgcoord"
	RoleLecturer         Role = "lecturer"
	RoleMajorSupervisor  Role = "major_supervisor"
	RoleMinorSupervisor  Role = "minor_supervisor"
	RoleInternalExaminer Role = "internal_examiner"
	RoleCollegeRep       Role = "college_rep"
	RoleStudent          Role = "student"
)

var knownRoles = map[Role]struct{}{
	RoleAdmin: {}, RoleProvost: {}, RoleDean: {}, RoleHOD: {}, RolePGCoord: {}, RoleLecturer: {},
	RoleMajorSupervisor: {}, RoleMinorSupervisor: {}, RoleInternalExaminer: {}, RoleCollegeRep: {},
	RoleStudent: {},
}

// Valid reports whether r is a known role tag.
func (r Role) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

// User is an authenticated identity stored in the users table.
type User struct {
	ID            string         `db:"id" json:"id"`
	Email         string         `db:"email" json:"email"`
	PasswordHash  string         `db:"password_hash" json:"-"`
	Roles         pq.StringArray `db:"roles" json:"roles"`
	IsPanelMember bool           `db:"is_panel_member" json:"is_panel_member"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// RoleList returns the identity roles as typed tags.
func (u *User) RoleList() []Role {
	if u == nil {
		return nil
	}
	roles := make([]Role, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, Role(r))
	}
	return roles
}

// HasRole reports whether the identity holds any of roles.
func (u *User) HasRole(roles ...Role) bool {
	if u == nil {
		return false
	}
	for _, held := range u.Roles {
		for _, r := range roles {
			if Role(held) == r {
				return true
			}
		}
	}
	return false
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// NewPagination normalises page inputs the same way repositories do.
func NewPagination(page, size, total int) *Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return &Pagination{Page: page, PageSize: size, TotalCount: total}
}

// Offset returns the row offset for the page.
func (p *Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}
