package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/pg-defence-api/internal/models"
)

const userColumns = `id, email, password_hash, roles, is_panel_member, created_at, updated_at`

// UserRepository provides database access for identities.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1) LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// ExistsByEmail reports whether an identity already uses email.
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists int
	if err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM users WHERE LOWER(email) = LOWER($1) LIMIT 1`, email); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check email: %w", err)
	}
	return true, nil
}

// CountPanelMembers counts how many of ids belong to identities flagged as panel members.
func (r *UserRepository) CountPanelMembers(ctx context.Context, ids []string) (int, error) {
	const query = `SELECT COUNT(*) FROM users WHERE id = ANY($1) AND is_panel_member`
	var count int
	if err := r.db.GetContext(ctx, &count, query, pq.StringArray(ids)); err != nil {
		return 0, fmt.Errorf("count panel members: %w", err)
	}
	return count, nil
}

// Create inserts an identity using exec, which may be a transaction.
func (r *UserRepository) Create(ctx context.Context, exec sqlx.ExtContext, user *models.User) error {
	if exec == nil {
		exec = r.db
	}
	return insertUser(ctx, exec, user)
}

func insertUser(ctx context.Context, exec sqlx.ExtContext, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if user.Roles == nil {
		user.Roles = pq.StringArray{}
	}
	const query = `INSERT INTO users (id, email, password_hash, roles, is_panel_member, created_at, updated_at)
        VALUES (:id, :email, :password_hash, :roles, :is_panel_member, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdatePassword updates the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return expectAffected(res)
}

// GrantRole adds role to the identity atomically; the role appears once and last.
func (r *UserRepository) GrantRole(ctx context.Context, id string, role models.Role) error {
	const query = `UPDATE users SET roles = array_append(array_remove(roles, $2), $2), updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, string(role), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	return expectAffected(res)
}

// RevokeRole removes role from the identity atomically.
func (r *UserRepository) RevokeRole(ctx context.Context, id string, role models.Role) error {
	const query = `UPDATE users SET roles = array_remove(roles, $2), updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, string(role), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	return expectAffected(res)
}

// SetPanelMember toggles the panel-member flag.
func (r *UserRepository) SetPanelMember(ctx context.Context, id string, flag bool) error {
	const query = `UPDATE users SET is_panel_member = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, flag, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set panel member: %w", err)
	}
	return expectAffected(res)
}

// expectAffected maps a zero-row update to sql.ErrNoRows.
func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func pageBounds(page, size int) (limit, offset int) {
	p := models.NewPagination(page, size, 0)
	return p.PageSize, p.Offset()
}
