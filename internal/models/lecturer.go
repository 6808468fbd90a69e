package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// Lecturer is an academic staff record.
type Lecturer struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	StaffID    string    `db:"staff_id" json:"staff_id"`
	Title      string    `db:"title" json:"title"`
	FirstName  string    `db:"first_name" json:"first_name"`
	LastName   string    `db:"last_name" json:"last_name"`
	Department string    `db:"department" json:"department"`
	Faculty    string    `db:"faculty" json:"faculty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// DisplayName is "title first last" with empty parts skipped.
func (l *Lecturer) DisplayName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{l.Title, l.FirstName, l.LastName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// LecturerDetail adds identity fields to a lecturer.
type LecturerDetail struct {
	Lecturer
	Email         string         `db:"email" json:"email"`
	Roles         pq.StringArray `db:"roles" json:"roles"`
	IsPanelMember bool           `db:"is_panel_member" json:"is_panel_member"`
}

// LecturerFilter captures filtering criteria for listing lecturers.
type LecturerFilter struct {
	Department  string `json:"department,omitempty"`
	PanelMember *bool  `json:"panel_member,omitempty"`
	Search      string `json:"search,omitempty"`
	Page        int    `json:"page"`
	PageSize    int    `json:"page_size"`
}
