package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/pg-defence-api/internal/models"
	"github.com/noah-isme/pg-defence-api/pkg/database"
)

const lecturerDetailSelect = `SELECT l.id, l.user_id, l.staff_id, l.title, l.first_name, l.last_name, l.department, l.faculty,
        l.created_at, l.updated_at, u.email, u.roles, u.is_panel_member
        FROM lecturers l JOIN users u ON u.id = l.user_id`

// LecturerRepository manages persistence for lecturer records.
type LecturerRepository struct {
	db *sqlx.DB
}

// NewLecturerRepository constructs a LecturerRepository.
func NewLecturerRepository(db *sqlx.DB) *LecturerRepository {
	return &LecturerRepository{db: db}
}

// List returns lecturers matching the filter.
func (r *LecturerRepository) List(ctx context.Context, filter models.LecturerFilter) ([]models.LecturerDetail, int, error) {
	conditions := []string{"1=1"}
	var args []interface{}
	if filter.Department != "" {
		conditions = append(conditions, fmt.Sprintf("l.department = $%d", len(args)+1))
		args = append(args, filter.Department)
	}
	if filter.PanelMember != nil {
		conditions = append(conditions, fmt.Sprintf("u.is_panel_member = $%d", len(args)+1))
		args = append(args, *filter.PanelMember)
	}
	if filter.Search != "" {
		n := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(l.first_name || ' ' || l.last_name) LIKE $%d OR LOWER(l.staff_id) LIKE $%d)", n, n))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	where := " WHERE " + strings.Join(conditions, " AND ")
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf("%s%s ORDER BY l.last_name ASC, l.first_name ASC LIMIT %d OFFSET %d", lecturerDetailSelect, where, limit, offset)
	var lecturers []models.LecturerDetail
	if err := r.db.SelectContext(ctx, &lecturers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list lecturers: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM lecturers l JOIN users u ON u.id = l.user_id"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count lecturers: %w", err)
	}
	return lecturers, total, nil
}

// FindByID fetches a lecturer by id.
func (r *LecturerRepository) FindByID(ctx context.Context, id string) (*models.LecturerDetail, error) {
	var detail models.LecturerDetail
	if err := r.db.GetContext(ctx, &detail, lecturerDetailSelect+" WHERE l.id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find lecturer: %w", err)
	}
	return &detail, nil
}

// FindByUserID fetches the lecturer record owned by an identity.
func (r *LecturerRepository) FindByUserID(ctx context.Context, userID string) (*models.LecturerDetail, error) {
	var detail models.LecturerDetail
	if err := r.db.GetContext(ctx, &detail, lecturerDetailSelect+" WHERE l.user_id = $1", userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find lecturer by user: %w", err)
	}
	return &detail, nil
}

// ExistsByStaffID checks if a staff id is taken.
func (r *LecturerRepository) ExistsByStaffID(ctx context.Context, staffID string) (bool, error) {
	var exists int
	if err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM lecturers WHERE LOWER(staff_id) = LOWER($1) LIMIT 1`, staffID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check staff id: %w", err)
	}
	return true, nil
}

// CreateWithIdentity inserts the identity and the lecturer record in one transaction.
func (r *LecturerRepository) CreateWithIdentity(ctx context.Context, user *models.User, lecturer *models.Lecturer) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := insertUser(ctx, tx, user); err != nil {
			return err
		}
		lecturer.UserID = user.ID
		if lecturer.ID == "" {
			lecturer.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		lecturer.CreatedAt = now
		lecturer.UpdatedAt = now
		const query = `INSERT INTO lecturers (id, user_id, staff_id, title, first_name, last_name, department, faculty, created_at, updated_at)
            VALUES (:id, :user_id, :staff_id, :title, :first_name, :last_name, :department, :faculty, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, lecturer); err != nil {
			return fmt.Errorf("create lecturer: %w", err)
		}
		return nil
	})
}

// Delete removes the lecturer together with its identity. Supervisor references on
// students are cleared by the foreign keys.
func (r *LecturerRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = (SELECT user_id FROM lecturers WHERE id = $1)`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete lecturer: %w", err)
	}
	return expectAffected(res)
}
