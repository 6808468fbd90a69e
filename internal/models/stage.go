package models

// Program identifies a postgraduate programme with its own stage sequence.
type Program string

const (
	ProgramMSc Program = "msc"
	ProgramPhD Program = "phd"
)

// Stage is a milestone in a programme.
type Stage string

const (
	StageProposal Stage = "proposal"
	StageInternal Stage = "internal"
	StageExternal Stage = "external"

	StageFirstSeminar    Stage = "first_seminar"
	StageSecondSeminar   Stage = "second_seminar"
	StageThirdSeminar    Stage = "third_seminar"
	StageExternalDefence Stage = "external_defence"
)

var stageSequences = map[Program][]Stage{
	ProgramMSc: {StageProposal, StageInternal, StageExternal},
	ProgramPhD: {StageFirstSeminar, StageSecondSeminar, StageThirdSeminar, StageExternalDefence},
}

// Valid reports whether p is a known programme.
func (p Program) Valid() bool {
	_, ok := stageSequences[p]
	return ok
}

// Stages returns a copy of the ordered stage sequence for the programme.
func (p Program) Stages() []Stage {
	seq := stageSequences[p]
	out := make([]Stage, len(seq))
	copy(out, seq)
	return out
}

// FirstStage is where every new student of the programme starts.
func (p Program) FirstStage() Stage {
	seq := stageSequences[p]
	if len(seq) == 0 {
		return ""
	}
	return seq[0]
}

// HasStage reports whether s belongs to the programme sequence.
func (p Program) HasStage(s Stage) bool {
	return p.indexOf(s) >= 0
}

// NextStage returns the stage after s. ok is false when s is terminal or unknown.
func (p Program) NextStage(s Stage) (next Stage, ok bool) {
	idx := p.indexOf(s)
	seq := stageSequences[p]
	if idx < 0 || idx+1 >= len(seq) {
		return "", false
	}
	return seq[idx+1], true
}

// IsTerminal reports whether s is the last stage of the programme.
func (p Program) IsTerminal(s Stage) bool {
	seq := stageSequences[p]
	return len(seq) > 0 && seq[len(seq)-1] == s
}

func (p Program) indexOf(s Stage) int {
	for i, stage := range stageSequences[p] {
		if stage == s {
			return i
		}
	}
	return -1
}
