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

func TestDefenceRepositoryStartIsConditional(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDefenceRepository(db)

	query := regexp.QuoteMeta("UPDATE defences SET started = TRUE, started_at = $2 WHERE id = $1 AND started = FALSE")
	mock.ExpectExec(query).WithArgs("d1", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("d1", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Start(context.Background(), "d1", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Start(context.Background(), "d1", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDefenceRepositoryEndRequiresStarted(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDefenceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND started AND NOT ended")).
		WithArgs("d1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.End(context.Background(), "d1", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDefenceRepositoryUpsertScoreKeepsStoredIdentity(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDefenceRepository(db)

	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE EXISTS (SELECT 1 FROM defences WHERE id = $2 AND started AND NOT ended)")).
		WithArgs(sqlmock.AnyArg(), "d1", "s1", "p1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("score-original", created))

	entry := &models.ScoreEntry{
		ID:            "not-persisted",
		DefenceID:     "d1",
		StudentID:     "s1",
		PanelMemberID: "p1",
		Scores:        models.ScoreItems{{CriterionID: "a", Score: 80}},
	}
	ok, err := repo.UpsertScore(context.Background(), entry)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "score-original", entry.ID)
	assert.Equal(t, created, entry.CreatedAt)
	assert.False(t, entry.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDefenceRepositoryUpsertScoreGuardedByState(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDefenceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("RETURNING id, created_at")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}))

	ok, err := repo.UpsertScore(context.Background(), &models.ScoreEntry{DefenceID: "d1", StudentID: "s1", PanelMemberID: "p1"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDefenceRepositoryFindByIDScansArrays(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDefenceRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "stage", "program", "session_id", "department", "venue", "scheduled_at", "started", "ended",
		"started_at", "ended_at", "student_ids", "panel_member_ids", "created_by", "created_at"}).
		AddRow("d1", "proposal", "msc", "sess", nil, "Hall A", now, true, false, now, nil, "{s1,s2}", "{p1}", "hod", now)
	mock.ExpectQuery("FROM defences WHERE id = \\$1").WithArgs("d1").WillReturnRows(rows)

	defence, err := repo.FindByID(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, models.DefenceStarted, defence.Status())
	assert.True(t, defence.HasStudent("s2"))
	assert.True(t, defence.HasPanelMember("p1"))
	assert.Nil(t, defence.Department)
}

func TestDefenceRepositoryListFiltersByPanelAndStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDefenceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM defences WHERE 1=1 AND $1 = ANY(panel_member_ids) AND ended ORDER BY scheduled_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM defences WHERE 1=1 AND $1 = ANY(panel_member_ids) AND ended")).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, total, err := repo.List(context.Background(), models.DefenceFilter{PanelMember: "p1", Status: "ended"})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
