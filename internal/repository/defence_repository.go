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
)

const defenceColumns = `id, stage, program, session_id, department, venue, scheduled_at, started, ended, started_at, ended_at,
        student_ids, panel_member_ids, created_by, created_at`

// DefenceRepository persists defences and their score entries. Lifecycle transitions are
// conditional single-statement updates so concurrent requests cannot both succeed.
type DefenceRepository struct {
	db *sqlx.DB
}

// NewDefenceRepository constructs a DefenceRepository.
func NewDefenceRepository(db *sqlx.DB) *DefenceRepository {
	return &DefenceRepository{db: db}
}

// Create inserts a scheduled defence.
func (r *DefenceRepository) Create(ctx context.Context, defence *models.Defence) error {
	if defence.ID == "" {
		defence.ID = uuid.NewString()
	}
	defence.CreatedAt = time.Now().UTC()
	defence.Started = false
	defence.Ended = false
	const query = `INSERT INTO defences (id, stage, program, session_id, department, venue, scheduled_at, started, ended,
        student_ids, panel_member_ids, created_by, created_at)
        VALUES (:id, :stage, :program, :session_id, :department, :venue, :scheduled_at, :started, :ended,
        :student_ids, :panel_member_ids, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, defence); err != nil {
		return fmt.Errorf("create defence: %w", err)
	}
	return nil
}

// FindByID fetches a defence.
func (r *DefenceRepository) FindByID(ctx context.Context, id string) (*models.Defence, error) {
	var defence models.Defence
	if err := r.db.GetContext(ctx, &defence, `SELECT `+defenceColumns+` FROM defences WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find defence: %w", err)
	}
	return &defence, nil
}

// List returns defences matching filter, most recently scheduled first.
func (r *DefenceRepository) List(ctx context.Context, filter models.DefenceFilter) ([]models.Defence, int, error) {
	conditions := []string{"1=1"}
	var args []interface{}
	if filter.Stage != "" {
		conditions = append(conditions, fmt.Sprintf("stage = $%d", len(args)+1))
		args = append(args, string(filter.Stage))
	}
	if filter.Program != "" {
		conditions = append(conditions, fmt.Sprintf("program = $%d", len(args)+1))
		args = append(args, string(filter.Program))
	}
	if filter.SessionID != "" {
		conditions = append(conditions, fmt.Sprintf("session_id = $%d", len(args)+1))
		args = append(args, filter.SessionID)
	}
	if filter.Department != "" {
		conditions = append(conditions, fmt.Sprintf("department = $%d", len(args)+1))
		args = append(args, filter.Department)
	}
	if filter.PanelMember != "" {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(panel_member_ids)", len(args)+1))
		args = append(args, filter.PanelMember)
	}
	switch models.DefenceStatus(filter.Status) {
	case models.DefenceScheduled:
		conditions = append(conditions, "NOT started")
	case models.DefenceStarted:
		conditions = append(conditions, "started AND NOT ended")
	case models.DefenceEnded:
		conditions = append(conditions, "ended")
	}
	where := " WHERE " + strings.Join(conditions, " AND ")
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM defences%s ORDER BY scheduled_at DESC LIMIT %d OFFSET %d", defenceColumns, where, limit, offset)
	var defences []models.Defence
	if err := r.db.SelectContext(ctx, &defences, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list defences: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM defences"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count defences: %w", err)
	}
	return defences, total, nil
}

// Start flips started for a scheduled defence. It reports false when no row matched.
func (r *DefenceRepository) Start(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `UPDATE defences SET started = TRUE, started_at = $2 WHERE id = $1 AND started = FALSE`
	return r.transition(ctx, "start defence", query, id, at)
}

// End flips ended for a running defence. It reports false when no row matched.
func (r *DefenceRepository) End(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `UPDATE defences SET ended = TRUE, ended_at = $2 WHERE id = $1 AND started AND NOT ended`
	return r.transition(ctx, "end defence", query, id, at)
}

func (r *DefenceRepository) transition(ctx context.Context, label, query, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("%s: %w", label, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", label, err)
	}
	return affected > 0, nil
}

// UpsertScore stores a panel member's scores for a student, replacing any earlier entry.
// The write only happens while the defence is started and not ended; it reports false
// otherwise. entry carries the stored id and created_at afterwards.
func (r *DefenceRepository) UpsertScore(ctx context.Context, entry *models.ScoreEntry) (bool, error) {
	now := time.Now().UTC()
	const query = `INSERT INTO defence_scores (id, defence_id, student_id, panel_member_id, scores, created_at, updated_at)
        SELECT $1, $2, $3, $4, $5, $6, $6
        WHERE EXISTS (SELECT 1 FROM defences WHERE id = $2 AND started AND NOT ended)
        ON CONFLICT (defence_id, student_id, panel_member_id)
        DO UPDATE SET scores = EXCLUDED.scores, updated_at = EXCLUDED.updated_at
        RETURNING id, created_at`
	var stored struct {
		ID        string    `db:"id"`
		CreatedAt time.Time `db:"created_at"`
	}
	err := r.db.QueryRowxContext(ctx, query, uuid.NewString(), entry.DefenceID, entry.StudentID, entry.PanelMemberID, entry.Scores, now).
		StructScan(&stored)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("upsert score: %w", err)
	}
	entry.ID = stored.ID
	entry.CreatedAt = stored.CreatedAt
	entry.UpdatedAt = now
	return true, nil
}

// ListScores returns every score entry recorded for a defence.
func (r *DefenceRepository) ListScores(ctx context.Context, defenceID string) ([]models.ScoreEntry, error) {
	const query = `SELECT id, defence_id, student_id, panel_member_id, scores, created_at, updated_at
        FROM defence_scores WHERE defence_id = $1 ORDER BY student_id, panel_member_id`
	var entries []models.ScoreEntry
	if err := r.db.SelectContext(ctx, &entries, query, defenceID); err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	return entries, nil
}

// LatestEnded returns the most recently ended defence at stage that included the student.
func (r *DefenceRepository) LatestEnded(ctx context.Context, studentID string, stage models.Stage) (*models.Defence, error) {
	query := `SELECT ` + defenceColumns + ` FROM defences
        WHERE stage = $2 AND ended AND $1 = ANY(student_ids) ORDER BY ended_at DESC LIMIT 1`
	var defence models.Defence
	if err := r.db.GetContext(ctx, &defence, query, studentID, string(stage)); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find latest ended defence: %w", err)
	}
	return &defence, nil
}
