// Package authz holds the role to permission policy table and the authenticated
// principal attached to each request.
package authz

import (
	"sort"

	"github.com/noah-isme/pg-defence-api/internal/models"
)

// Permission is a capability checked before a route handler runs.
type Permission string

const (
	PermScheduleDefense Permission = "SCHEDULE_DEFENSE"
	PermStartDefense    Permission = "START_DEFENSE"
	PermEndDefense      Permission = "END_DEFENSE"
	PermApproveDefense  Permission = "APPROVE_DEFENSE"
	PermScoreStudent    Permission = "SCORE_STUDENT"
	PermViewDefense     Permission = "VIEW_DEFENSE"

	PermManageDeptScoreSheet    Permission = "MANAGE_DEPT_SCORESHEET"
	PermManageGeneralScoreSheet Permission = "MANAGE_GENERAL_SCORESHEET"
	PermViewScoreSheet          Permission = "VIEW_SCORESHEET"

	PermManageStudents   Permission = "MANAGE_STUDENTS"
	PermViewStudents     Permission = "VIEW_STUDENTS"
	PermAssignSupervisor Permission = "ASSIGN_SUPERVISOR"
	PermManageLecturers  Permission = "MANAGE_LECTURERS"
	PermViewLecturers    Permission = "VIEW_LECTURERS"
	PermManagePanel      Permission = "MANAGE_PANEL"
	PermGrantRoles       Permission = "GRANT_ROLES"

	PermManageOrg Permission = "MANAGE_ORG"
	PermViewOrg   Permission = "VIEW_ORG"

	PermUploadProject  Permission = "UPLOAD_PROJECT"
	PermViewProjects   Permission = "VIEW_PROJECTS"
	PermCommentProject Permission = "COMMENT_PROJECT"
	PermApproveProject Permission = "APPROVE_PROJECT"

	PermViewActivityLogs  Permission = "VIEW_ACTIVITY_LOGS"
	PermViewNotifications Permission = "VIEW_NOTIFICATIONS"
)

// Policy maps role tags to permission sets. It is built once at start-up and only read
// afterwards, so it is safe for concurrent use.
type Policy struct {
	grants map[models.Role]map[Permission]struct{}
}

// NewPolicy builds a policy from a role to permission table. The table is copied.
func NewPolicy(table map[models.Role][]Permission) *Policy {
	grants := make(map[models.Role]map[Permission]struct{}, len(table))
	for role, perms := range table {
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		grants[role] = set
	}
	return &Policy{grants: grants}
}

// Resolve returns the sorted, deduplicated union of permissions held by roles.
// Unknown roles contribute nothing.
func (p *Policy) Resolve(roles []models.Role) []Permission {
	if p == nil {
		return nil
	}
	union := make(map[Permission]struct{})
	for _, role := range roles {
		for perm := range p.grants[role] {
			union[perm] = struct{}{}
		}
	}
	out := make([]Permission, 0, len(union))
	for perm := range union {
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var everyone = []Permission{PermViewNotifications}

var staff = []Permission{PermViewDefense, PermViewScoreSheet, PermViewStudents, PermViewLecturers, PermViewOrg, PermViewProjects, PermScoreStudent}

var supervision = []Permission{PermViewProjects, PermCommentProject, PermViewStudents}

// DefaultTable is the production role to permission table.
func DefaultTable() map[models.Role][]Permission {
	return map[models.Role][]Permission{
		models.RoleAdmin: join(everyone, []Permission{
			PermManageStudents, PermViewStudents, PermManageLecturers, PermViewLecturers,
			PermGrantRoles, PermManageOrg, PermViewOrg, PermViewActivityLogs, PermViewDefense,
			PermViewScoreSheet,
		}),
		models.RoleProvost: join(everyone, staff, []Permission{
			PermScheduleDefense, PermStartDefense, PermEndDefense, PermApproveDefense,
			PermManageGeneralScoreSheet, PermManageDeptScoreSheet, PermManageStudents,
			PermManageLecturers, PermManagePanel, PermGrantRoles, PermAssignSupervisor,
			PermCommentProject, PermViewActivityLogs,
		}),
		models.RoleDean: join(everyone, staff, []Permission{
			PermManageStudents, PermManageLecturers, PermGrantRoles, PermViewActivityLogs,
		}),
		models.RoleHOD: join(everyone, staff, []Permission{
			PermScheduleDefense, PermStartDefense, PermEndDefense, PermApproveDefense,
			PermManageDeptScoreSheet, PermManageStudents, PermManageLecturers, PermManagePanel,
			PermAssignSupervisor, PermCommentProject, PermViewActivityLogs,
		}),
		models.RolePGCoord: join(everyone, staff, []Permission{
			PermManageStudents, PermAssignSupervisor, PermManagePanel, PermCommentProject,
		}),
		models.RoleLecturer:         join(everyone, staff),
		models.RoleMajorSupervisor:  join(everyone, supervision, []Permission{PermApproveProject}),
		models.RoleMinorSupervisor:  join(everyone, supervision),
		models.RoleInternalExaminer: join(everyone, supervision),
		models.RoleCollegeRep:       join(everyone, supervision),
		models.RoleStudent:          join(everyone, []Permission{PermUploadProject, PermViewProjects}),
	}
}

// DefaultPolicy returns a policy built from DefaultTable.
func DefaultPolicy() *Policy {
	return NewPolicy(DefaultTable())
}

func join(groups ...[]Permission) []Permission {
	var out []Permission
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
