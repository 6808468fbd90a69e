package models

import "time"

// Faculty groups departments.
type Faculty struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Code      string    `db:"code" json:"code"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Department belongs to a faculty.
type Department struct {
	ID          string    `db:"id" json:"id"`
	FacultyID   string    `db:"faculty_id" json:"faculty_id"`
	FacultyName string    `db:"faculty_name" json:"faculty_name,omitempty"`
	Name        string    `db:"name" json:"name"`
	Code        string    `db:"code" json:"code"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// AcademicSession is a named academic year, e.g. 2023/2024. At most one is active.
type AcademicSession struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
