package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pg-defence-api/internal/models"
)

var studentRowColumns = []string{"id", "user_id", "matric_no", "first_name", "last_name", "program", "current_stage", "session_id",
	"department", "faculty", "major_supervisor_id", "minor_supervisor_id", "internal_examiner_id", "college_rep_id",
	"stage_scores", "created_at", "updated_at"}

func TestStudentRepositoryListCohort(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(studentRowColumns).
		AddRow("s1", "u1", "PG/001", "Ada", "Obi", "msc", "proposal", "sess", "Computer Science", "Science", "l1", nil, nil, nil, `{}`, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM students s WHERE s.current_stage = $1 AND s.program = $2 AND s.session_id = $3 AND s.department = $4 ORDER BY s.matric_no")).
		WithArgs("proposal", "msc", "sess", "Computer Science").
		WillReturnRows(rows)

	students, err := repo.ListCohort(context.Background(), models.CohortFilter{
		Stage: models.StageProposal, Program: models.ProgramMSc, SessionID: "sess", Department: "Computer Science",
	})
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.True(t, students[0].IsSupervisedBy("l1"))
	assert.NotNil(t, students[0].StageScores)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreateWithIdentityUsesTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO students").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user := &models.User{Email: "ada@uni.edu", PasswordHash: "hash"}
	student := &models.Student{MatricNo: "PG/001", FirstName: "Ada", Program: models.ProgramMSc, CurrentStage: models.StageProposal}
	require.NoError(t, repo.CreateWithIdentity(context.Background(), user, student))
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, user.ID, student.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreateWithIdentityRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO students").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.CreateWithIdentity(context.Background(), &models.User{Email: "x@uni.edu"}, &models.Student{MatricNo: "PG/002"})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryAdvanceStageIsConditional(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND current_stage = $2")).
		WithArgs("s1", "proposal", "internal", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	moved, err := repo.AdvanceStage(context.Background(), "s1", models.StageProposal, models.StageInternal, models.StageOutcome{Status: models.StageOutcomeApproved})
	require.NoError(t, err)
	assert.False(t, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryAssignSupervisorUsesSlotColumn(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET college_rep_id = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("s1", "l9", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AssignSupervisor(context.Background(), "s1", models.SupervisorCollegeRep, "l9"))
	require.Error(t, repo.AssignSupervisor(context.Background(), "s1", models.SupervisorType("bogus"), "l9"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListBySupervisor(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND $1 IN (s.major_supervisor_id, s.minor_supervisor_id, s.internal_examiner_id, s.college_rep_id) ORDER BY s.created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("l1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students s WHERE 1=1 AND $1 IN")).
		WithArgs("l1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, total, err := repo.List(context.Background(), models.StudentFilter{SupervisorID: "l1"})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
