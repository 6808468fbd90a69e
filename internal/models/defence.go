package models

import (
	"database/sql/driver"
	"time"

	"github.com/lib/pq"
)

// DefenceStatus is derived from the started and ended flags.
type DefenceStatus string

const (
	DefenceScheduled DefenceStatus = "scheduled"
	DefenceStarted   DefenceStatus = "started"
	DefenceEnded     DefenceStatus = "ended"
)

// Defence is a scheduled examination event for a cohort of students.
type Defence struct {
	ID             string         `db:"id" json:"id"`
	Stage          Stage          `db:"stage" json:"stage"`
	Program        Program        `db:"program" json:"program"`
	SessionID      string         `db:"session_id" json:"session_id"`
	Department     *string        `db:"department" json:"department,omitempty"`
	Venue          string         `db:"venue" json:"venue"`
	ScheduledAt    time.Time      `db:"scheduled_at" json:"scheduled_at"`
	Started        bool           `db:"started" json:"started"`
	Ended          bool           `db:"ended" json:"ended"`
	StartedAt      *time.Time     `db:"started_at" json:"started_at,omitempty"`
	EndedAt        *time.Time     `db:"ended_at" json:"ended_at,omitempty"`
	StudentIDs     pq.StringArray `db:"student_ids" json:"student_ids"`
	PanelMemberIDs pq.StringArray `db:"panel_member_ids" json:"panel_member_ids"`
	CreatedBy      string         `db:"created_by" json:"created_by"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// Status derives the lifecycle state.
func (d *Defence) Status() DefenceStatus {
	switch {
	case d.Ended:
		return DefenceEnded
	case d.Started:
		return DefenceStarted
	default:
		return DefenceScheduled
	}
}

// HasStudent reports whether studentID is part of the cohort.
func (d *Defence) HasStudent(studentID string) bool {
	return contains(d.StudentIDs, studentID)
}

// HasPanelMember reports whether identityID sits on the panel.
func (d *Defence) HasPanelMember(identityID string) bool {
	return contains(d.PanelMemberIDs, identityID)
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// DefenceFilter captures filtering criteria for listing defences.
type DefenceFilter struct {
	Stage       Stage   `json:"stage,omitempty"`
	Program     Program `json:"program,omitempty"`
	SessionID   string  `json:"session_id,omitempty"`
	Department  string  `json:"department,omitempty"`
	Status      string  `json:"status,omitempty"`
	PanelMember string  `json:"panel_member,omitempty"`
	Page        int     `json:"page"`
	PageSize    int     `json:"page_size"`
}

// ScoreItem is one criterion score inside a submission.
type ScoreItem struct {
	CriterionID string  `json:"criterionId"`
	Score       float64 `json:"score"`
}

// ScoreItems is persisted as JSONB.
type ScoreItems []ScoreItem

// Value marshals the items for persistence.
func (s ScoreItems) Value() (driver.Value, error) {
	if s == nil {
		s = ScoreItems{}
	}
	return jsonValue([]ScoreItem(s), "score items")
}

// Scan unmarshals a JSONB payload.
func (s *ScoreItems) Scan(value interface{}) error {
	out := ScoreItems{}
	if err := scanJSON(value, &out, "score items"); err != nil {
		return err
	}
	*s = out
	return nil
}

// ScoreEntry is one panel member's scores for one student in one defence.
type ScoreEntry struct {
	ID            string     `db:"id" json:"id"`
	DefenceID     string     `db:"defence_id" json:"defence_id"`
	StudentID     string     `db:"student_id" json:"student_id"`
	PanelMemberID string     `db:"panel_member_id" json:"panel_member_id"`
	Scores        ScoreItems `db:"scores" json:"scores"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// CriterionResult is the panel mean for one criterion and its weighted contribution.
type CriterionResult struct {
	CriterionID string  `json:"criterion_id"`
	Name        string  `json:"name"`
	Weight      int     `json:"weight"`
	Mean        float64 `json:"mean"`
	Weighted    float64 `json:"weighted"`
}

// StudentResult is the aggregate defence score for a student.
type StudentResult struct {
	StudentID   string            `json:"student_id"`
	MatricNo    string            `json:"matric_no"`
	Name        string            `json:"name"`
	Department  string            `json:"department"`
	SheetScope  ScoreSheetScope   `json:"sheet_scope"`
	PanelScored int               `json:"panel_scored"`
	Aggregate   float64           `json:"aggregate"`
	Breakdown   []CriterionResult `json:"breakdown"`
}

// DefenceResults lists per-student aggregates of a defence.
type DefenceResults struct {
	Defence  *Defence        `json:"defence"`
	Students []StudentResult `json:"students"`
}
