package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgramNextStage(t *testing.T) {
	next, ok := ProgramMSc.NextStage(StageProposal)
	require.True(t, ok)
	assert.Equal(t, StageInternal, next)

	_, ok = ProgramMSc.NextStage(StageExternal)
	assert.False(t, ok)
	assert.True(t, ProgramMSc.IsTerminal(StageExternal))

	next, ok = ProgramPhD.NextStage(StageThirdSeminar)
	require.True(t, ok)
	assert.Equal(t, StageExternalDefence, next)

	_, ok = ProgramPhD.NextStage(StageProposal)
	assert.False(t, ok)
	assert.False(t, ProgramPhD.HasStage(StageProposal))
	assert.Equal(t, StageFirstSeminar, ProgramPhD.FirstStage())
}

func TestStagesReturnsCopy(t *testing.T) {
	stages := ProgramMSc.Stages()
	stages[0] = "mutated"
	assert.Equal(t, StageProposal, ProgramMSc.FirstStage())
}

func TestJSONBColumnsRoundTrip(t *testing.T) {
	criteria := Criteria{{ID: "a", Name: "Presentation", Weight: 70}, {ID: "b", Name: "Methodology", Weight: 30}}
	raw, err := criteria.Value()
	require.NoError(t, err)

	var decoded Criteria
	require.NoError(t, decoded.Scan(raw))
	assert.Equal(t, criteria, decoded)
	assert.Equal(t, 100, decoded.TotalWeight())
	assert.Equal(t, 1, decoded.Index("b"))

	var empty StageScores
	require.NoError(t, empty.Scan(nil))
	assert.NotNil(t, empty)

	var items ScoreItems
	require.NoError(t, items.Scan(`[{"criterionId":"a","score":80}]`))
	assert.Equal(t, ScoreItems{{CriterionID: "a", Score: 80}}, items)

	require.Error(t, items.Scan(42))
}

func TestSupervisorTypeMapping(t *testing.T) {
	assert.Equal(t, RoleCollegeRep, SupervisorCollegeRep.Role())
	assert.Equal(t, "internal_examiner_id", SupervisorInternalExaminer.Column())
	assert.False(t, SupervisorType("co").Valid())
}

func TestLecturerDisplayName(t *testing.T) {
	l := Lecturer{Title: "Dr.", FirstName: "Ada", LastName: "Obi"}
	assert.Equal(t, "Dr. Ada Obi", l.DisplayName())
	l.Title = ""
	assert.Equal(t, "Ada Obi", l.DisplayName())
}
