package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/pg-defence-api/internal/models"
	appErrors "github.com/noah-isme/pg-defence-api/pkg/errors"
)

type studentFixture struct {
	svc       *StudentService
	repo      *mockStudentRepo
	users     *mockIdentityRepo
	lecturers *mockLecturerRepo
	notifier  *mockNotifier
	cache     *mockCacheRepo
}

func newStudentFixture() *studentFixture {
	repo := newMockStudentRepo(models.StudentDetail{Student: models.Student{
		ID: "stu-1", UserID: "u-stu-1", MatricNo: "PG/001", FirstName: "Ada", LastName: "Obi",
		Program: models.ProgramMSc, CurrentStage: models.StageProposal, SessionID: "sess-1", Department: "Computer Science",
	}, Email: "ada@uni.edu"})
	users := newMockIdentityRepo(
		models.User{ID: "u-stu-1", Email: "ada@uni.edu"},
		models.User{ID: "u-lec-1", Email: "kola@uni.edu", Roles: []string{"lecturer"}},
		models.User{ID: "u-hod", Email: "hod@uni.edu", Roles: []string{"lecturer", "hod"}},
	)
	lecturers := newMockLecturerRepo(
		models.LecturerDetail{Lecturer: models.Lecturer{ID: "lec-1", UserID: "u-lec-1", Title: "Dr.", FirstName: "Kola", LastName: "Ade"}, Roles: []string{"lecturer"}},
		models.LecturerDetail{Lecturer: models.Lecturer{ID: "lec-hod", UserID: "u-hod", Title: "Prof.", FirstName: "Bisi"}, Roles: []string{"lecturer", "hod"}},
	)
	org := &mockOrg{
		departments: map[string]models.Department{"dept-cs": {ID: "dept-cs", Name: "Computer Science", FacultyName: "Science"}},
		sessions:    map[string]models.AcademicSession{"sess-1": {ID: "sess-1", Name: "2023/2024"}},
	}
	notifier := &mockNotifier{}
	cacheRepo := newMockCacheRepo()
	cache := NewCacheService(cacheRepo, nil, 0, nil, true)
	svc := NewStudentService(repo, users, lecturers, org, notifier, cache, nil, nil)
	return &studentFixture{svc: svc, repo: repo, users: users, lecturers: lecturers, notifier: notifier, cache: cacheRepo}
}

func TestCreateStudentDefaultsPasswordAndStage(t *testing.T) {
	f := newStudentFixture()
	detail, err := f.svc.Create(context.Background(), CreateStudentRequest{
		Email:        " Musa@Uni.edu ",
		MatricNo:     "PG/002",
		FirstName:    "Musa",
		LastName:     "Bello",
		Program:      models.ProgramPhD,
		SessionID:    "sess-1",
		DepartmentID: "dept-cs",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StageFirstSeminar, detail.CurrentStage)
	assert.Equal(t, "Computer Science", detail.Department)
	assert.Equal(t, "Science", detail.Faculty)

	require.Len(t, f.repo.created, 1)
	user := f.repo.created[0]
	assert.Equal(t, "musa@uni.edu", user.Email)
	assert.Equal(t, []string{"student"}, []string(user.Roles))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("PG/002")))
	assert.Contains(t, f.cache.deleted, "list:students:*")
}

func TestCreateStudentConflicts(t *testing.T) {
	f := newStudentFixture()
	base := CreateStudentRequest{Email: "new@uni.edu", MatricNo: "PG/009", FirstName: "A", LastName: "B", Program: models.ProgramMSc, SessionID: "sess-1", DepartmentID: "dept-cs"}

	dupEmail := base
	dupEmail.Email = "ada@uni.edu"
	_, err := f.svc.Create(context.Background(), dupEmail)
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	dupMatric := base
	dupMatric.MatricNo = "pg/001"
	_, err = f.svc.Create(context.Background(), dupMatric)
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	badStage := base
	badStage.Stage = models.StageThirdSeminar
	_, err = f.svc.Create(context.Background(), badStage)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	badDept := base
	badDept.DepartmentID = "dept-missing"
	_, err = f.svc.Create(context.Background(), badDept)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Empty(t, f.repo.created)
}

func TestCreateStudentRejectsBlankMatricNo(t *testing.T) {
	f := newStudentFixture()
	_, err := f.svc.Create(context.Background(), CreateStudentRequest{
		Email: "blank@uni.edu", MatricNo: "   ", FirstName: "A", LastName: "B",
		Program: models.ProgramMSc, SessionID: "sess-1", DepartmentID: "dept-cs",
	})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Empty(t, f.repo.created)
}

func TestAssignSupervisorGrantsRoleAndNotifies(t *testing.T) {
	f := newStudentFixture()
	detail, err := f.svc.AssignSupervisor(context.Background(), AssignSupervisorRequest{LecturerID: "lec-1", Type: models.SupervisorMajor, StudentID: "stu-1"})
	require.NoError(t, err)
	require.NotNil(t, detail.MajorSupervisorID)
	assert.Equal(t, "lec-1", *detail.MajorSupervisorID)
	assert.Equal(t, []string{"u-lec-1:major_supervisor"}, f.users.granted)
	assert.Equal(t, []string{"u-lec-1", "u-stu-1"}, f.notifier.recipients(models.NotificationSupervisorAssign))
}

func TestAssignSupervisorKeepsHodRoles(t *testing.T) {
	f := newStudentFixture()
	_, err := f.svc.AssignSupervisor(context.Background(), AssignSupervisorRequest{LecturerID: "lec-hod", Type: models.SupervisorCollegeRep, StudentID: "stu-1"})
	require.NoError(t, err)
	assert.Empty(t, f.users.granted)
	assert.Equal(t, "lec-hod", *f.repo.students["stu-1"].CollegeRepID)
}

func TestAssignSupervisorValidation(t *testing.T) {
	f := newStudentFixture()
	_, err := f.svc.AssignSupervisor(context.Background(), AssignSupervisorRequest{LecturerID: "lec-1", Type: "co_supervisor", StudentID: "stu-1"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.AssignSupervisor(context.Background(), AssignSupervisorRequest{LecturerID: "lec-missing", Type: models.SupervisorMinor, StudentID: "stu-1"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Empty(t, f.notifier.sent)
}

func TestListSupervisedUsesLecturerID(t *testing.T) {
	f := newStudentFixture()
	_, err := f.svc.AssignSupervisor(context.Background(), AssignSupervisorRequest{LecturerID: "lec-1", Type: models.SupervisorMinor, StudentID: "stu-1"})
	require.NoError(t, err)

	items, pagination, err := f.svc.ListSupervised(context.Background(), "u-lec-1", models.StudentFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "stu-1", items[0].ID)
	assert.Equal(t, 1, pagination.TotalCount)

	items, _, err = f.svc.ListSupervised(context.Background(), "u-hod", models.StudentFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)

	_, _, err = f.svc.ListSupervised(context.Background(), "u-stu-1", models.StudentFilter{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestStudentListServedFromCache(t *testing.T) {
	f := newStudentFixture()
	first, _, err := f.svc.List(context.Background(), models.StudentFilter{Page: 1})
	require.NoError(t, err)
	require.Len(t, first, 1)

	delete(f.repo.students, "stu-1")
	cached, _, err := f.svc.List(context.Background(), models.StudentFilter{Page: 1})
	require.NoError(t, err)
	assert.Len(t, cached, 1)
}

func TestDeleteStudent(t *testing.T) {
	f := newStudentFixture()
	require.NoError(t, f.svc.Delete(context.Background(), "stu-1"))
	_, err := f.svc.Get(context.Background(), "stu-1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(context.Background(), "stu-1"), appErrors.ErrNotFound)
}
