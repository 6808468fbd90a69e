package models

import (
	"database/sql/driver"
	"time"
)

// Stage outcome statuses recorded in Student.StageScores.
const (
	StageOutcomeApproved = "approved"
	StageOutcomeRejected = "rejected"
)

// StageOutcome records the decision taken for a student at one stage.
type StageOutcome struct {
	Status     string    `json:"status"`
	Score      *float64  `json:"score,omitempty"`
	DefenceID  string    `json:"defence_id,omitempty"`
	DecidedBy  string    `json:"decided_by,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// StageScores maps a stage to its recorded outcome, persisted as JSONB.
type StageScores map[Stage]StageOutcome

// Value marshals the map for persistence.
func (s StageScores) Value() (driver.Value, error) {
	if s == nil {
		s = StageScores{}
	}
	return jsonValue(map[Stage]StageOutcome(s), "stage scores")
}

// Scan unmarshals a JSONB payload.
func (s *StageScores) Scan(value interface{}) error {
	out := StageScores{}
	if err := scanJSON(value, &out, "stage scores"); err != nil {
		return err
	}
	*s = out
	return nil
}

// Student is a postgraduate student record. Supervisor references hold lecturer ids.
type Student struct {
	ID                 string      `db:"id" json:"id"`
	UserID             string      `db:"user_id" json:"user_id"`
	MatricNo           string      `db:"matric_no" json:"matric_no"`
	FirstName          string      `db:"first_name" json:"first_name"`
	LastName           string      `db:"last_name" json:"last_name"`
	Program            Program     `db:"program" json:"program"`
	CurrentStage       Stage       `db:"current_stage" json:"current_stage"`
	SessionID          string      `db:"session_id" json:"session_id"`
	Department         string      `db:"department" json:"department"`
	Faculty            string      `db:"faculty" json:"faculty"`
	MajorSupervisorID  *string     `db:"major_supervisor_id" json:"major_supervisor_id,omitempty"`
	MinorSupervisorID  *string     `db:"minor_supervisor_id" json:"minor_supervisor_id,omitempty"`
	InternalExaminerID *string     `db:"internal_examiner_id" json:"internal_examiner_id,omitempty"`
	CollegeRepID       *string     `db:"college_rep_id" json:"college_rep_id,omitempty"`
	StageScores        StageScores `db:"stage_scores" json:"stage_scores"`
	CreatedAt          time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time   `db:"updated_at" json:"updated_at"`
}

// FullName joins first and last names.
func (s *Student) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// SupervisorIDs returns every assigned lecturer id.
func (s *Student) SupervisorIDs() []string {
	var ids []string
	for _, ref := range []*string{s.MajorSupervisorID, s.MinorSupervisorID, s.InternalExaminerID, s.CollegeRepID} {
		if ref != nil && *ref != "" {
			ids = append(ids, *ref)
		}
	}
	return ids
}

// IsSupervisedBy reports whether lecturerID is referenced by any supervisor slot.
func (s *Student) IsSupervisedBy(lecturerID string) bool {
	for _, id := range s.SupervisorIDs() {
		if id == lecturerID {
			return true
		}
	}
	return false
}

// StudentDetail enriches a student with identity and resolved supervisor names.
type StudentDetail struct {
	Student
	Email                string  `db:"email" json:"email"`
	MajorSupervisorName  *string `db:"major_supervisor_name" json:"major_supervisor_name,omitempty"`
	MinorSupervisorName  *string `db:"minor_supervisor_name" json:"minor_supervisor_name,omitempty"`
	InternalExaminerName *string `db:"internal_examiner_name" json:"internal_examiner_name,omitempty"`
	CollegeRepName       *string `db:"college_rep_name" json:"college_rep_name,omitempty"`
}

// StudentFilter captures filtering criteria for listing students.
type StudentFilter struct {
	Department   string  `json:"department,omitempty"`
	SessionID    string  `json:"session_id,omitempty"`
	Stage        Stage   `json:"stage,omitempty"`
	Program      Program `json:"program,omitempty"`
	SupervisorID string  `json:"supervisor_id,omitempty"`
	Search       string  `json:"search,omitempty"`
	Page         int     `json:"page"`
	PageSize     int     `json:"page_size"`
	SortBy       string  `json:"sort_by,omitempty"`
	SortOrder    string  `json:"sort_order,omitempty"`
}

// CohortFilter selects the students eligible for a defence.
type CohortFilter struct {
	Stage      Stage
	Program    Program
	SessionID  string
	Department string
}

// SupervisorType names a supervision slot on a student.
type SupervisorType string

const (
	SupervisorMajor            SupervisorType = "major"
	SupervisorMinor            SupervisorType = "minor"
	SupervisorInternalExaminer SupervisorType = "internal_examiner"
	SupervisorCollegeRep       SupervisorType = "college_rep"
)

var supervisorRoles = map[SupervisorType]Role{
	SupervisorMajor:            RoleMajorSupervisor,
	SupervisorMinor:            RoleMinorSupervisor,
	SupervisorInternalExaminer: RoleInternalExaminer,
	SupervisorCollegeRep:       RoleCollegeRep,
}

var supervisorColumns = map[SupervisorType]string{
	SupervisorMajor:            "major_supervisor_id",
	SupervisorMinor:            "minor_supervisor_id",
	SupervisorInternalExaminer: "internal_examiner_id",
	SupervisorCollegeRep:       "college_rep_id",
}

// Valid reports whether t is a known slot.
func (t SupervisorType) Valid() bool {
	_, ok := supervisorRoles[t]
	return ok
}

// Role returns the capability role granted to a lecturer assigned to the slot.
func (t SupervisorType) Role() Role {
	return supervisorRoles[t]
}

// Column returns the students column holding the slot reference.
func (t SupervisorType) Column() string {
	return supervisorColumns[t]
}

// Label returns a human readable slot name.
func (t SupervisorType) Label() string {
	switch t {
	case SupervisorMajor:
		return "major supervisor"
	case SupervisorMinor:
		return "minor supervisor"
	case SupervisorInternalExaminer:
		return "internal examiner"
	case SupervisorCollegeRep:
		return "college representative"
	}
	return string(t)
}
