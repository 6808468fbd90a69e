package models

import "time"

// Project version statuses.
const (
	ProjectStatusSubmitted = "submitted"
	ProjectStatusApproved  = "approved"
)

// ProjectVersion is one uploaded draft of a student's project.
type ProjectVersion struct {
	ID         string     `db:"id" json:"id"`
	StudentID  string     `db:"student_id" json:"student_id"`
	Version    int        `db:"version" json:"version"`
	Title      string     `db:"title" json:"title"`
	FilePath   string     `db:"file_path" json:"-"`
	FileURL    string     `db:"file_url" json:"file_url"`
	MimeType   string     `db:"mime_type" json:"mime_type"`
	SizeBytes  int64      `db:"size_bytes" json:"size_bytes"`
	Status     string     `db:"status" json:"status"`
	ApprovedBy *string    `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// ProjectComment is feedback left on a project version.
type ProjectComment struct {
	ID        string    `db:"id" json:"id"`
	VersionID string    `db:"version_id" json:"version_id"`
	AuthorID  string    `db:"author_id" json:"author_id"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ProjectDownload is a short-lived link to a project file.
type ProjectDownload struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
