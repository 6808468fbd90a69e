package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/pg-defence-api/internal/models"
)

const projectVersionColumns = `id, student_id, version, title, file_path, file_url, mime_type, size_bytes, status,
        approved_by, approved_at, created_at`

// SubmissionRepository persists project versions and their comments.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs a SubmissionRepository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// CreateVersion inserts a project version numbered one past the student's latest.
func (r *SubmissionRepository) CreateVersion(ctx context.Context, version *models.ProjectVersion) error {
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	version.CreatedAt = time.Now().UTC()
	if version.Status == "" {
		version.Status = models.ProjectStatusSubmitted
	}
	const query = `INSERT INTO project_versions (id, student_id, version, title, file_path, file_url, mime_type, size_bytes, status, created_at)
        SELECT $1, $2, COALESCE(MAX(version), 0) + 1, $3, $4, $5, $6, $7, $8, $9 FROM project_versions WHERE student_id = $2
        RETURNING version`
	err := r.db.GetContext(ctx, &version.Version, query, version.ID, version.StudentID, version.Title, version.FilePath,
		version.FileURL, version.MimeType, version.SizeBytes, version.Status, version.CreatedAt)
	if err != nil {
		return fmt.Errorf("create project version: %w", err)
	}
	return nil
}

// FindVersion fetches a project version.
func (r *SubmissionRepository) FindVersion(ctx context.Context, id string) (*models.ProjectVersion, error) {
	var version models.ProjectVersion
	if err := r.db.GetContext(ctx, &version, `SELECT `+projectVersionColumns+` FROM project_versions WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find project version: %w", err)
	}
	return &version, nil
}

// ListByStudent returns every version for a student, newest first.
func (r *SubmissionRepository) ListByStudent(ctx context.Context, studentID string) ([]models.ProjectVersion, error) {
	var versions []models.ProjectVersion
	query := `SELECT ` + projectVersionColumns + ` FROM project_versions WHERE student_id = $1 ORDER BY version DESC`
	if err := r.db.SelectContext(ctx, &versions, query, studentID); err != nil {
		return nil, fmt.Errorf("list project versions: %w", err)
	}
	return versions, nil
}

// Approve marks a version approved.
func (r *SubmissionRepository) Approve(ctx context.Context, id, approverID string, at time.Time) error {
	const query = `UPDATE project_versions SET status = $2, approved_by = $3, approved_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, models.ProjectStatusApproved, approverID, at)
	if err != nil {
		return fmt.Errorf("approve project version: %w", err)
	}
	return expectAffected(res)
}

// CreateComment inserts a comment on a version.
func (r *SubmissionRepository) CreateComment(ctx context.Context, comment *models.ProjectComment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	comment.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO project_comments (id, version_id, author_id, body, created_at) VALUES (:id, :version_id, :author_id, :body, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, comment); err != nil {
		return fmt.Errorf("create project comment: %w", err)
	}
	return nil
}

// ListComments returns comments on a version in posting order.
func (r *SubmissionRepository) ListComments(ctx context.Context, versionID string) ([]models.ProjectComment, error) {
	var comments []models.ProjectComment
	const query = `SELECT id, version_id, author_id, body, created_at FROM project_comments WHERE version_id = $1 ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &comments, query, versionID); err != nil {
		return nil, fmt.Errorf("list project comments: %w", err)
	}
	return comments, nil
}
