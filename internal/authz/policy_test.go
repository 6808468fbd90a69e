package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/pg-defence-api/internal/models"
)

func TestResolveUnionIsDeduplicatedAndSorted(t *testing.T) {
	policy := NewPolicy(map[models.Role][]Permission{
		"a": {PermViewDefense, PermScoreStudent},
		"b": {PermScoreStudent, PermApproveDefense},
	})

	perms := policy.Resolve([]models.Role{"a", "b", "unknown"})
	assert.Equal(t, []Permission{PermApproveDefense, PermScoreStudent, PermViewDefense}, perms)
}

func TestScheduleDefenseHeldOnlyByHODAndProvost(t *testing.T) {
	policy := DefaultPolicy()
	for role := range DefaultTable() {
		allowed := (&Principal{Permissions: policy.Resolve([]models.Role{role})}).Can(PermScheduleDefense)
		expected := role == models.RoleHOD || role == models.RoleProvost
		assert.Equal(t, expected, allowed, "role %s", role)
	}
}

func TestNewPolicyCopiesTable(t *testing.T) {
	table := map[models.Role][]Permission{models.RoleLecturer: {PermViewDefense}}
	policy := NewPolicy(table)
	table[models.RoleLecturer] = append(table[models.RoleLecturer], PermScheduleDefense)

	assert.Equal(t, []Permission{PermViewDefense}, policy.Resolve([]models.Role{models.RoleLecturer}))
}

func TestPrincipalCan(t *testing.T) {
	p := &Principal{Roles: []models.Role{models.RoleLecturer}, Permissions: DefaultPolicy().Resolve([]models.Role{models.RoleLecturer})}
	assert.True(t, p.Can(PermScoreStudent))
	assert.False(t, p.Can(PermScheduleDefense))
	assert.True(t, p.HasRole(models.RoleHOD, models.RoleLecturer))

	var nilPrincipal *Principal
	assert.False(t, nilPrincipal.Can(PermViewNotifications))
}
