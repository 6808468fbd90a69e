package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pg-defence-api/internal/models"
	appErrors "github.com/noah-isme/pg-defence-api/pkg/errors"
)

func newLecturerFixture() (*LecturerService, *mockLecturerRepo, *mockIdentityRepo) {
	lecturers := newMockLecturerRepo(models.LecturerDetail{Lecturer: models.Lecturer{ID: "lec-1", UserID: "u-lec-1", StaffID: "SP-1"}, Roles: []string{"lecturer"}})
	users := newMockIdentityRepo(models.User{ID: "u-lec-1", Email: "kola@uni.edu", Roles: []string{"lecturer"}})
	org := &mockOrg{departments: map[string]models.Department{"dept-cs": {ID: "dept-cs", Name: "Computer Science", FacultyName: "Science"}}}
	return NewLecturerService(lecturers, users, org, nil, nil, nil), lecturers, users
}

func TestCreateLecturerWithExtraRoles(t *testing.T) {
	svc, repo, _ := newLecturerFixture()
	detail, err := svc.Create(context.Background(), CreateLecturerRequest{
		Email:         "hod@uni.edu",
		StaffID:       "SP-2",
		Title:         "Prof.",
		FirstName:     "Bisi",
		LastName:      "Lawal",
		DepartmentID:  "dept-cs",
		Roles:         []models.Role{models.RoleHOD, models.RoleLecturer},
		IsPanelMember: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"lecturer", "hod"}, []string(detail.Roles))
	assert.True(t, detail.IsPanelMember)
	assert.Equal(t, "Computer Science", detail.Department)
	assert.Len(t, repo.lecturers, 2)
}

func TestCreateLecturerRejectsStudentRoleAndDuplicates(t *testing.T) {
	svc, _, _ := newLecturerFixture()
	_, err := svc.Create(context.Background(), CreateLecturerRequest{Email: "x@uni.edu", StaffID: "SP-3", FirstName: "X", LastName: "Y", DepartmentID: "dept-cs", Roles: []models.Role{models.RoleStudent}})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(context.Background(), CreateLecturerRequest{Email: "x@uni.edu", StaffID: "SP-1", FirstName: "X", LastName: "Y", DepartmentID: "dept-cs"})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestCreateLecturerNormalizesIdentity(t *testing.T) {
	svc, _, _ := newLecturerFixture()
	detail, err := svc.Create(context.Background(), CreateLecturerRequest{
		Email: "  Tunde@Uni.EDU ", StaffID: " SP-7 ", FirstName: "Tunde", LastName: "Ige", DepartmentID: "dept-cs",
	})
	require.NoError(t, err)
	assert.Equal(t, "tunde@uni.edu", detail.Email)
	assert.Equal(t, "SP-7", detail.StaffID)

	_, err = svc.Create(context.Background(), CreateLecturerRequest{
		Email: "kola2@uni.edu", StaffID: "  ", FirstName: "K", LastName: "A", DepartmentID: "dept-cs",
	})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestGrantAndRevokeRole(t *testing.T) {
	svc, _, users := newLecturerFixture()
	_, err := svc.GrantRole(context.Background(), "lec-1", RoleRequest{Role: models.RolePGCoord})
	require.NoError(t, err)
	assert.Equal(t, []string{"u-lec-1:pgcoord"}, users.granted)

	_, err = svc.GrantRole(context.Background(), "lec-1", RoleRequest{Role: "dean_of_everything"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.RevokeRole(context.Background(), "lec-1", RoleRequest{Role: models.RoleLecturer})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.RevokeRole(context.Background(), "lec-1", RoleRequest{Role: models.RolePGCoord})
	require.NoError(t, err)
	assert.Equal(t, []string{"u-lec-1:pgcoord"}, users.revoked)

	_, err = svc.GrantRole(context.Background(), "lec-missing", RoleRequest{Role: models.RolePGCoord})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestSetPanelMember(t *testing.T) {
	svc, _, users := newLecturerFixture()
	flag := true
	_, err := svc.SetPanelMember(context.Background(), "lec-1", PanelMemberRequest{IsPanelMember: &flag})
	require.NoError(t, err)
	assert.True(t, users.users["u-lec-1"].IsPanelMember)

	_, err = svc.SetPanelMember(context.Background(), "lec-1", PanelMemberRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
