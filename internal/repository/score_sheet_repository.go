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
	"github.com/noah-isme/pg-defence-api/pkg/database"
)

const scoreSheetColumns = `id, scope, department, criteria, created_at, updated_at`

// ScoreSheetRepository persists scoring templates.
type ScoreSheetRepository struct {
	db *sqlx.DB
}

// NewScoreSheetRepository constructs a ScoreSheetRepository.
func NewScoreSheetRepository(db *sqlx.DB) *ScoreSheetRepository {
	return &ScoreSheetRepository{db: db}
}

// Find returns the sheet for key or sql.ErrNoRows.
func (r *ScoreSheetRepository) Find(ctx context.Context, key models.ScoreSheetKey) (*models.ScoreSheet, error) {
	const query = `SELECT ` + scoreSheetColumns + ` FROM score_sheets WHERE scope = $1 AND department = $2`
	var sheet models.ScoreSheet
	if err := r.db.GetContext(ctx, &sheet, query, string(key.Scope), key.Department); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find score sheet: %w", err)
	}
	return &sheet, nil
}

// FindForDepartments returns the department sheets for the given departments keyed by name.
func (r *ScoreSheetRepository) FindForDepartments(ctx context.Context, departments []string) (map[string]models.ScoreSheet, error) {
	out := make(map[string]models.ScoreSheet, len(departments))
	if len(departments) == 0 {
		return out, nil
	}
	const query = `SELECT ` + scoreSheetColumns + ` FROM score_sheets WHERE scope = $1 AND department = ANY($2)`
	var sheets []models.ScoreSheet
	if err := r.db.SelectContext(ctx, &sheets, query, string(models.ScoreSheetDepartment), pq.StringArray(departments)); err != nil {
		return nil, fmt.Errorf("find department sheets: %w", err)
	}
	for _, sheet := range sheets {
		out[sheet.Department] = sheet
	}
	return out, nil
}

// Mutate locks the sheet row (creating an empty sheet when absent) and replaces its
// criteria with the result of fn. When fn fails nothing is written.
func (r *ScoreSheetRepository) Mutate(ctx context.Context, key models.ScoreSheetKey, fn func(current models.Criteria) (models.Criteria, error)) (*models.ScoreSheet, error) {
	var sheet models.ScoreSheet
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		const ensure = `INSERT INTO score_sheets (id, scope, department, criteria, created_at, updated_at)
            VALUES ($1, $2, $3, '[]'::jsonb, $4, $4) ON CONFLICT (scope, department) DO NOTHING`
		if _, err := tx.ExecContext(ctx, ensure, uuid.NewString(), string(key.Scope), key.Department, now); err != nil {
			return fmt.Errorf("ensure score sheet: %w", err)
		}

		const lock = `SELECT ` + scoreSheetColumns + ` FROM score_sheets WHERE scope = $1 AND department = $2 FOR UPDATE`
		if err := tx.GetContext(ctx, &sheet, lock, string(key.Scope), key.Department); err != nil {
			return fmt.Errorf("lock score sheet: %w", err)
		}

		next, err := fn(sheet.Criteria)
		if err != nil {
			return err
		}
		if next == nil {
			next = models.Criteria{}
		}

		const update = `UPDATE score_sheets SET criteria = $2, updated_at = $3 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, update, sheet.ID, next, now); err != nil {
			return fmt.Errorf("update score sheet: %w", err)
		}
		sheet.Criteria = next
		sheet.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sheet, nil
}
