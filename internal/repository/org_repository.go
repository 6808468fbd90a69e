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

// OrgRepository persists faculties, departments and academic sessions.
type OrgRepository struct {
	db *sqlx.DB
}

// NewOrgRepository constructs an OrgRepository.
func NewOrgRepository(db *sqlx.DB) *OrgRepository {
	return &OrgRepository{db: db}
}

// ListFaculties returns every faculty ordered by name.
func (r *OrgRepository) ListFaculties(ctx context.Context) ([]models.Faculty, error) {
	var faculties []models.Faculty
	if err := r.db.SelectContext(ctx, &faculties, `SELECT id, name, code, created_at FROM faculties ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list faculties: %w", err)
	}
	return faculties, nil
}

// FindFaculty fetches a faculty by id.
func (r *OrgRepository) FindFaculty(ctx context.Context, id string) (*models.Faculty, error) {
	var faculty models.Faculty
	if err := r.db.GetContext(ctx, &faculty, `SELECT id, name, code, created_at FROM faculties WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find faculty: %w", err)
	}
	return &faculty, nil
}

// CreateFaculty inserts a faculty.
func (r *OrgRepository) CreateFaculty(ctx context.Context, faculty *models.Faculty) error {
	if faculty.ID == "" {
		faculty.ID = uuid.NewString()
	}
	faculty.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO faculties (id, name, code, created_at) VALUES (:id, :name, :code, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, faculty); err != nil {
		return fmt.Errorf("create faculty: %w", err)
	}
	return nil
}

// DeleteFaculty removes a faculty. Departments referencing it block the delete.
func (r *OrgRepository) DeleteFaculty(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM faculties WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete faculty: %w", err)
	}
	return expectAffected(res)
}

const departmentSelect = `SELECT d.id, d.faculty_id, f.name AS faculty_name, d.name, d.code, d.created_at
        FROM departments d JOIN faculties f ON f.id = d.faculty_id`

// ListDepartments returns departments, optionally restricted to a faculty.
func (r *OrgRepository) ListDepartments(ctx context.Context, facultyID string) ([]models.Department, error) {
	query := departmentSelect
	var args []interface{}
	if facultyID != "" {
		query += " WHERE d.faculty_id = $1"
		args = append(args, facultyID)
	}
	query += " ORDER BY d.name"
	var departments []models.Department
	if err := r.db.SelectContext(ctx, &departments, query, args...); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return departments, nil
}

// FindDepartment fetches a department with its faculty name.
func (r *OrgRepository) FindDepartment(ctx context.Context, id string) (*models.Department, error) {
	var department models.Department
	if err := r.db.GetContext(ctx, &department, departmentSelect+" WHERE d.id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find department: %w", err)
	}
	return &department, nil
}

// CreateDepartment inserts a department.
func (r *OrgRepository) CreateDepartment(ctx context.Context, department *models.Department) error {
	if department.ID == "" {
		department.ID = uuid.NewString()
	}
	department.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO departments (id, faculty_id, name, code, created_at) VALUES (:id, :faculty_id, :name, :code, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, department); err != nil {
		return fmt.Errorf("create department: %w", err)
	}
	return nil
}

// DeleteDepartment removes a department.
func (r *OrgRepository) DeleteDepartment(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM departments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete department: %w", err)
	}
	return expectAffected(res)
}

// ListSessions returns academic sessions, newest first.
func (r *OrgRepository) ListSessions(ctx context.Context) ([]models.AcademicSession, error) {
	var sessions []models.AcademicSession
	if err := r.db.SelectContext(ctx, &sessions, `SELECT id, name, is_active, created_at FROM academic_sessions ORDER BY name DESC`); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// FindSession fetches a session by id.
func (r *OrgRepository) FindSession(ctx context.Context, id string) (*models.AcademicSession, error) {
	var session models.AcademicSession
	if err := r.db.GetContext(ctx, &session, `SELECT id, name, is_active, created_at FROM academic_sessions WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// CreateSession inserts an inactive session.
func (r *OrgRepository) CreateSession(ctx context.Context, session *models.AcademicSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	session.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO academic_sessions (id, name, is_active, created_at) VALUES (:id, :name, :is_active, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// ActivateSession marks id active and every other session inactive in one statement.
func (r *OrgRepository) ActivateSession(ctx context.Context, id string) error {
	const query = `UPDATE academic_sessions SET is_active = (id = $1)
        WHERE EXISTS (SELECT 1 FROM academic_sessions WHERE id = $1)`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("activate session: %w", err)
	}
	return expectAffected(res)
}

// DeleteSession removes a session.
func (r *OrgRepository) DeleteSession(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM academic_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return expectAffected(res)
}
