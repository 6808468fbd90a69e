package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pg-defence-api/internal/models"
	appErrors "github.com/noah-isme/pg-defence-api/pkg/errors"
)

type defenceFixture struct {
	svc      *DefenceService
	repo     *mockDefenceRepo
	students *mockStudentRepo
	users    *mockIdentityRepo
	sheets   *mockSheetRepo
	notifier *mockNotifier
}

func newDefenceFixture(t *testing.T) *defenceFixture {
	t.Helper()
	students := newMockStudentRepo(
		models.StudentDetail{Student: models.Student{ID: "stu-1", UserID: "u-stu-1", MatricNo: "PG/001", FirstName: "Ada", LastName: "Obi", Program: models.ProgramMSc, CurrentStage: models.StageProposal, SessionID: "sess-1", Department: "Computer Science"}},
		models.StudentDetail{Student: models.Student{ID: "stu-2", UserID: "u-stu-2", MatricNo: "PG/002", FirstName: "Musa", LastName: "Bello", Program: models.ProgramMSc, CurrentStage: models.StageProposal, SessionID: "sess-1", Department: "Physics"}},
		models.StudentDetail{Student: models.Student{ID: "stu-3", UserID: "u-stu-3", MatricNo: "PG/003", FirstName: "Ife", Program: models.ProgramMSc, CurrentStage: models.StageInternal, SessionID: "sess-1", Department: "Physics"}},
		models.StudentDetail{Student: models.Student{ID: "stu-4", UserID: "u-stu-4", MatricNo: "PG/004", FirstName: "Zara", Program: models.ProgramPhD, CurrentStage: models.StageExternalDefence, SessionID: "sess-1", Department: "Physics"}},
	)
	users := newMockIdentityRepo(
		models.User{ID: "panel-1", Email: "p1@uni.edu", IsPanelMember: true},
		models.User{ID: "panel-2", Email: "p2@uni.edu", IsPanelMember: true},
		models.User{ID: "lect-3", Email: "l3@uni.edu", IsPanelMember: false},
	)
	sheets := newMockSheetRepo()
	repo := newMockDefenceRepo()
	notifier := &mockNotifier{}
	svc := NewDefenceService(repo, students, users, sheets, notifier, nil, nil, nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC) }
	return &defenceFixture{svc: svc, repo: repo, students: students, users: users, sheets: sheets, notifier: notifier}
}

func (f *defenceFixture) schedule(t *testing.T) *models.Defence {
	t.Helper()
	defence, err := f.svc.Schedule(context.Background(), ScheduleDefenceRequest{
		Stage:          models.StageProposal,
		Program:        models.ProgramMSc,
		SessionID:      "sess-1",
		Date:           "2024-05-02",
		Time:           "09:30",
		Venue:          "Senate Hall",
		PanelMemberIDs: []string{"panel-1", "panel-2"},
	}, "hod-1")
	require.NoError(t, err)
	return defence
}

func TestDefenceScheduleBuildsCohortAndNotifies(t *testing.T) {
	f := newDefenceFixture(t)
	defence, err := f.svc.Schedule(context.Background(), ScheduleDefenceRequest{
		Stage:          models.StageProposal,
		Program:        models.ProgramMSc,
		SessionID:      "sess-1",
		Date:           "2024-05-02",
		Time:           "09:30",
		StudentIDs:     []string{"stu-3"},
		PanelMemberIDs: []string{"panel-1", "panel-2", "panel-1"},
	}, "hod-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"stu-1", "stu-2"}, []string(defence.StudentIDs))
	assert.Equal(t, []string{"panel-1", "panel-2"}, []string(defence.PanelMemberIDs))
	assert.Equal(t, time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC), defence.ScheduledAt)
	assert.Equal(t, models.DefenceScheduled, defence.Status())
	assert.Equal(t, []string{"panel-1", "panel-2", "u-stu-1", "u-stu-2"}, f.notifier.recipients(models.NotificationDefenceScheduled))
}

func TestDefenceScheduleEmptyCohortHasNoSideEffects(t *testing.T) {
	f := newDefenceFixture(t)
	_, err := f.svc.Schedule(context.Background(), ScheduleDefenceRequest{
		Stage:          models.StageExternal,
		Program:        models.ProgramMSc,
		SessionID:      "sess-1",
		Date:           "2024-05-02",
		Time:           "09:30",
		StudentIDs:     []string{"stu-1"},
		PanelMemberIDs: []string{"panel-1"},
	}, "hod-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrNoEligibleStudents)
	assert.Empty(t, f.repo.defences)
	assert.Empty(t, f.notifier.sent)
}

func TestDefenceScheduleRejectsNonPanelMember(t *testing.T) {
	f := newDefenceFixture(t)
	_, err := f.svc.Schedule(context.Background(), ScheduleDefenceRequest{
		Stage:          models.StageProposal,
		Program:        models.ProgramMSc,
		SessionID:      "sess-1",
		Date:           "2024-05-02",
		Time:           "09:30",
		PanelMemberIDs: []string{"panel-1", "lect-3"},
	}, "hod-1")
	assert.ErrorIs(t, err, appErrors.ErrInvalidPanelMember)
	assert.Empty(t, f.repo.defences)
	assert.Empty(t, f.notifier.sent)
}

func TestDefenceScheduleValidatesDateAndTime(t *testing.T) {
	f := newDefenceFixture(t)
	_, err := f.svc.Schedule(context.Background(), ScheduleDefenceRequest{
		Stage:          models.StageProposal,
		Program:        models.ProgramMSc,
		SessionID:      "sess-1",
		Date:           "02/05/2024",
		Time:           "09:30",
		PanelMemberIDs: []string{"panel-1"},
	}, "hod-1")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestDefenceSecondStartConflicts(t *testing.T) {
	f := newDefenceFixture(t)
	defence := f.schedule(t)

	started, err := f.svc.Start(context.Background(), defence.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefenceStarted, started.Status())

	_, err = f.svc.Start(context.Background(), defence.ID)
	assert.ErrorIs(t, err, appErrors.ErrAlreadyStarted)
	assert.True(t, appErrors.IsStateConflict(err))

	current, err := f.svc.Get(context.Background(), defence.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefenceStarted, current.Status())
}

func TestDefenceStartUnknownIsNotFound(t *testing.T) {
	f := newDefenceFixture(t)
	_, err := f.svc.Start(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestDefenceEndRequiresStart(t *testing.T) {
	f := newDefenceFixture(t)
	defence := f.schedule(t)

	_, err := f.svc.End(context.Background(), defence.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotStarted)

	_, err = f.svc.Start(context.Background(), defence.ID)
	require.NoError(t, err)
	ended, err := f.svc.End(context.Background(), defence.ID)
	require.NoError(t, err)
	assert.True(t, ended.Started && ended.Ended)
	assert.Equal(t, []string{"panel-1", "panel-2", "u-stu-1", "u-stu-2"}, f.notifier.recipients(models.NotificationResultsReady))

	_, err = f.svc.End(context.Background(), defence.ID)
	assert.ErrorIs(t, err, appErrors.ErrAlreadyEnded)
}

func TestDefenceSubmitScoreLifecycleChecks(t *testing.T) {
	f := newDefenceFixture(t)
	defence := f.schedule(t)
	req := SubmitScoreRequest{StudentID: "stu-1", Scores: []models.ScoreItem{{CriterionID: "a", Score: 80}}}

	_, err := f.svc.SubmitScore(context.Background(), defence.ID, "panel-1", req)
	assert.ErrorIs(t, err, appErrors.ErrNotStarted)

	_, err = f.svc.Start(context.Background(), defence.ID)
	require.NoError(t, err)

	_, err = f.svc.SubmitScore(context.Background(), defence.ID, "lect-3", req)
	assert.ErrorIs(t, err, appErrors.ErrInvalidSubmission)

	_, err = f.svc.SubmitScore(context.Background(), defence.ID, "panel-1", SubmitScoreRequest{StudentID: "stu-3", Scores: req.Scores})
	assert.ErrorIs(t, err, appErrors.ErrInvalidSubmission)

	_, err = f.svc.SubmitScore(context.Background(), defence.ID, "panel-1", SubmitScoreRequest{StudentID: "stu-1", Scores: []models.ScoreItem{{CriterionID: "a", Score: 101}}})
	assert.ErrorIs(t, err, appErrors.ErrInvalidSubmission)

	_, err = f.svc.SubmitScore(context.Background(), defence.ID, "panel-1", SubmitScoreRequest{StudentID: "stu-1", Scores: []models.ScoreItem{{CriterionID: "a", Score: 50}, {CriterionID: "a", Score: 60}}})
	assert.ErrorIs(t, err, appErrors.ErrInvalidSubmission)

	_, err = f.svc.End(context.Background(), defence.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitScore(context.Background(), defence.ID, "panel-1", req)
	assert.ErrorIs(t, err, appErrors.ErrAlreadyEnded)
	assert.Empty(t, f.repo.scores)
}

func TestDefenceResubmissionReplacesEntry(t *testing.T) {
	f := newDefenceFixture(t)
	defence := f.schedule(t)
	_, err := f.svc.Start(context.Background(), defence.ID)
	require.NoError(t, err)

	_, err = f.svc.SubmitScore(context.Background(), defence.ID, "panel-1", SubmitScoreRequest{StudentID: "stu-1", Scores: []models.ScoreItem{{CriterionID: "a", Score: 40}}})
	require.NoError(t, err)
	_, err = f.svc.SubmitScore(context.Background(), defence.ID, "panel-1", SubmitScoreRequest{StudentID: "stu-1", Scores: []models.ScoreItem{{CriterionID: "a", Score: 90}}})
	require.NoError(t, err)

	entries, err := f.repo.ListScores(context.Background(), defence.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 90.0, entries[0].Scores[0].Score)
}

func TestDefenceResultsWeightedAggregate(t *testing.T) {
	f := newDefenceFixture(t)
	f.sheets.put(models.DepartmentSheet("Computer Science"),
		models.Criterion{ID: "a", Name: "A", Weight: 70},
		models.Criterion{ID: "b", Name: "B", Weight: 30},
	)
	f.sheets.put(models.GeneralSheet, models.Criterion{ID: "g", Name: "General", Weight: 100})
	defence := f.schedule(t)
	_, err := f.svc.Start(context.Background(), defence.ID)
	require.NoError(t, err)

	_, err = f.svc.SubmitScore(context.Background(), defence.ID, "panel-1", SubmitScoreRequest{
		StudentID: "stu-1",
		Scores:    []models.ScoreItem{{CriterionID: "a", Score: 80}, {CriterionID: "b", Score: 60}},
	})
	require.NoError(t, err)
	_, err = f.svc.SubmitScore(context.Background(), defence.ID, "panel-1", SubmitScoreRequest{
		StudentID: "stu-2",
		Scores:    []models.ScoreItem{{CriterionID: "g", Score: 50}},
	})
	require.NoError(t, err)
	_, err = f.svc.SubmitScore(context.Background(), defence.ID, "panel-2", SubmitScoreRequest{
		StudentID: "stu-2",
		Scores:    []models.ScoreItem{{CriterionID: "g", Score: 70}},
	})
	require.NoError(t, err)

	results, err := f.svc.Results(context.Background(), defence.ID)
	require.NoError(t, err)
	require.Len(t, results.Students, 2)

	first := results.Students[0]
	assert.Equal(t, "PG/001", first.MatricNo)
	assert.Equal(t, models.ScoreSheetDepartment, first.SheetScope)
	assert.InDelta(t, 74.0, first.Aggregate, 1e-9)

	second := results.Students[1]
	assert.Equal(t, models.ScoreSheetGeneral, second.SheetScope)
	assert.Equal(t, 2, second.PanelScored)
	assert.InDelta(t, 60.0, second.Aggregate, 1e-9)
}

func TestAggregateUnscoredCriterionContributesZero(t *testing.T) {
	criteria := models.Criteria{{ID: "a", Name: "A", Weight: 50}, {ID: "b", Name: "B", Weight: 50}}
	entries := []models.ScoreEntry{
		{PanelMemberID: "p1", Scores: models.ScoreItems{{CriterionID: "a", Score: 80}}},
		{PanelMemberID: "p2", Scores: models.ScoreItems{{CriterionID: "a", Score: 60}}},
	}
	result := Aggregate(criteria, entries)
	assert.InDelta(t, 35.0, result.Aggregate, 1e-9)
	require.Len(t, result.Breakdown, 2)
	assert.InDelta(t, 70.0, result.Breakdown[0].Mean, 1e-9)
	assert.Zero(t, result.Breakdown[1].Weighted)
}

func TestDefenceExportFormats(t *testing.T) {
	f := newDefenceFixture(t)
	f.sheets.put(models.GeneralSheet, models.Criterion{ID: "g", Name: "General", Weight: 100})
	defence := f.schedule(t)

	file, err := f.svc.Export(context.Background(), defence.ID, "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Contains(t, string(file.Content), "PG/001,Ada Obi")

	file, err = f.svc.Export(context.Background(), defence.ID, "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)

	_, err = f.svc.Export(context.Background(), defence.ID, "xlsx")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestApproveAdvancesStageWithScore(t *testing.T) {
	f := newDefenceFixture(t)
	f.sheets.put(models.GeneralSheet, models.Criterion{ID: "g", Name: "General", Weight: 100})
	defence := f.schedule(t)
	_, err := f.svc.Start(context.Background(), defence.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitScore(context.Background(), defence.ID, "panel-1", SubmitScoreRequest{StudentID: "stu-1", Scores: []models.ScoreItem{{CriterionID: "g", Score: 65}}})
	require.NoError(t, err)
	_, err = f.svc.End(context.Background(), defence.ID)
	require.NoError(t, err)

	decision, err := f.svc.Approve(context.Background(), "stu-1", "hod-1")
	require.NoError(t, err)
	assert.False(t, decision.Completed)
	assert.Equal(t, models.StageInternal, decision.NextStage)

	student := f.students.students["stu-1"]
	assert.Equal(t, models.StageInternal, student.CurrentStage)
	outcome := student.StageScores[models.StageProposal]
	assert.Equal(t, models.StageOutcomeApproved, outcome.Status)
	require.NotNil(t, outcome.Score)
	assert.InDelta(t, 65.0, *outcome.Score, 1e-9)
	assert.Equal(t, defence.ID, outcome.DefenceID)
	assert.Equal(t, []string{"u-stu-1"}, f.notifier.recipients(models.NotificationStageApproved))
}

func TestApproveAtFinalStageCompletes(t *testing.T) {
	f := newDefenceFixture(t)
	decision, err := f.svc.Approve(context.Background(), "stu-4", "provost-1")
	require.NoError(t, err)
	assert.True(t, decision.Completed)
	assert.Equal(t, models.StageExternalDefence, f.students.students["stu-4"].CurrentStage)
	assert.Empty(t, f.students.students["stu-4"].StageScores)
	assert.Empty(t, f.notifier.sent)
}

func TestRejectKeepsStage(t *testing.T) {
	f := newDefenceFixture(t)
	decision, err := f.svc.Reject(context.Background(), "stu-3", "hod-1")
	require.NoError(t, err)
	assert.Equal(t, models.StageInternal, decision.Stage)

	student := f.students.students["stu-3"]
	assert.Equal(t, models.StageInternal, student.CurrentStage)
	assert.Equal(t, models.StageOutcomeRejected, student.StageScores[models.StageInternal].Status)
	assert.Nil(t, student.StageScores[models.StageInternal].Score)
	assert.Equal(t, []string{"u-stu-3"}, f.notifier.recipients(models.NotificationStageRejected))
}

func TestListForPanelMember(t *testing.T) {
	f := newDefenceFixture(t)
	f.schedule(t)
	items, pagination, err := f.svc.ListForPanelMember(context.Background(), "panel-2", models.DefenceFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, pagination.TotalCount)

	items, _, err = f.svc.ListForPanelMember(context.Background(), "lect-3", models.DefenceFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)
}
