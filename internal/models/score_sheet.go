package models

import (
	"database/sql/driver"
	"time"
)

// ScoreSheetScope distinguishes department sheets from the program-wide sheet.
type ScoreSheetScope string

const (
	ScoreSheetDepartment ScoreSheetScope = "department"
	ScoreSheetGeneral    ScoreSheetScope = "general"
)

// Criterion is a named, weighted scoring item.
type Criterion struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Weight int    `json:"weight"`
}

// Criteria is an ordered criterion list persisted as JSONB.
type Criteria []Criterion

// Value marshals criteria for persistence.
func (c Criteria) Value() (driver.Value, error) {
	if c == nil {
		c = Criteria{}
	}
	return jsonValue([]Criterion(c), "criteria")
}

// Scan unmarshals a JSONB payload.
func (c *Criteria) Scan(value interface{}) error {
	out := Criteria{}
	if err := scanJSON(value, &out, "criteria"); err != nil {
		return err
	}
	*c = out
	return nil
}

// TotalWeight sums every weight.
func (c Criteria) TotalWeight() int {
	total := 0
	for _, item := range c {
		total += item.Weight
	}
	return total
}

// Index returns the position of the criterion with id, or -1.
func (c Criteria) Index(id string) int {
	for i, item := range c {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// ScoreSheet is a scoring template. Department is empty for the general sheet.
type ScoreSheet struct {
	ID         string          `db:"id" json:"id"`
	Scope      ScoreSheetScope `db:"scope" json:"scope"`
	Department string          `db:"department" json:"department,omitempty"`
	Criteria   Criteria        `db:"criteria" json:"criteria"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// ScoreSheetKey identifies a single sheet row.
type ScoreSheetKey struct {
	Scope      ScoreSheetScope
	Department string
}

// GeneralSheet is the key of the program-wide sheet.
var GeneralSheet = ScoreSheetKey{Scope: ScoreSheetGeneral}

// DepartmentSheet returns the key of a department sheet.
func DepartmentSheet(department string) ScoreSheetKey {
	return ScoreSheetKey{Scope: ScoreSheetDepartment, Department: department}
}
