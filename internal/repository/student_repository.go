package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/pg-defence-api/internal/models"
	"github.com/noah-isme/pg-defence-api/pkg/database"
)

const studentColumns = `s.id, s.user_id, s.matric_no, s.first_name, s.last_name, s.program, s.current_stage, s.session_id,
        s.department, s.faculty, s.major_supervisor_id, s.minor_supervisor_id, s.internal_examiner_id, s.college_rep_id,
        s.stage_scores, s.created_at, s.updated_at`

const studentDetailSelect = `SELECT ` + studentColumns + `, u.email,
        NULLIF(CONCAT_WS(' ', NULLIF(lm.title, ''), lm.first_name, lm.last_name), '') AS major_supervisor_name,
        NULLIF(CONCAT_WS(' ', NULLIF(ln.title, ''), ln.first_name, ln.last_name), '') AS minor_supervisor_name,
        NULLIF(CONCAT_WS(' ', NULLIF(li.title, ''), li.first_name, li.last_name), '') AS internal_examiner_name,
        NULLIF(CONCAT_WS(' ', NULLIF(lc.title, ''), lc.first_name, lc.last_name), '') AS college_rep_name
        FROM students s
        JOIN users u ON u.id = s.user_id
        LEFT JOIN lecturers lm ON lm.id = s.major_supervisor_id
        LEFT JOIN lecturers ln ON ln.id = s.minor_supervisor_id
        LEFT JOIN lecturers li ON li.id = s.internal_examiner_id
        LEFT JOIN lecturers lc ON lc.id = s.college_rep_id`

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.Department != "" {
		conditions = append(conditions, fmt.Sprintf("s.department = $%d", len(args)+1))
		args = append(args, filter.Department)
	}
	if filter.SessionID != "" {
		conditions = append(conditions, fmt.Sprintf("s.session_id = $%d", len(args)+1))
		args = append(args, filter.SessionID)
	}
	if filter.Stage != "" {
		conditions = append(conditions, fmt.Sprintf("s.current_stage = $%d", len(args)+1))
		args = append(args, string(filter.Stage))
	}
	if filter.Program != "" {
		conditions = append(conditions, fmt.Sprintf("s.program = $%d", len(args)+1))
		args = append(args, string(filter.Program))
	}
	if filter.SupervisorID != "" {
		n := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("$%d IN (s.major_supervisor_id, s.minor_supervisor_id, s.internal_examiner_id, s.college_rep_id)", n))
		args = append(args, filter.SupervisorID)
	}
	if filter.Search != "" {
		n := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.first_name || ' ' || s.last_name) LIKE $%d OR LOWER(s.matric_no) LIKE $%d)", n, n))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"matric_no":  "s.matric_no",
		"last_name":  "s.last_name",
		"created_at": "s.created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "s.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf("%s%s ORDER BY %s %s LIMIT %d OFFSET %d", studentDetailSelect, where, column, order, limit, offset)
	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM students s"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student detail by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, studentDetailSelect+" WHERE s.id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &detail, nil
}

// FindByUserID fetches the student record owned by an identity.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error) {
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, studentDetailSelect+" WHERE s.user_id = $1", userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student by user: %w", err)
	}
	return &detail, nil
}

// FindByIDs loads plain student rows for ids.
func (r *StudentRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Student, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := "SELECT " + studentColumns + " FROM students s WHERE s.id = ANY($1) ORDER BY s.matric_no"
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, pq.StringArray(ids)); err != nil {
		return nil, fmt.Errorf("find students by ids: %w", err)
	}
	return students, nil
}

// ListCohort returns every student currently eligible for a defence at the given stage.
func (r *StudentRepository) ListCohort(ctx context.Context, filter models.CohortFilter) ([]models.Student, error) {
	query := "SELECT " + studentColumns + " FROM students s WHERE s.current_stage = $1 AND s.program = $2 AND s.session_id = $3"
	args := []interface{}{string(filter.Stage), string(filter.Program), filter.SessionID}
	if filter.Department != "" {
		query += " AND s.department = $4"
		args = append(args, filter.Department)
	}
	query += " ORDER BY s.matric_no"
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, fmt.Errorf("list cohort: %w", err)
	}
	return students, nil
}

// ExistsByMatricNo checks if a matric number is taken, optionally excluding a student.
func (r *StudentRepository) ExistsByMatricNo(ctx context.Context, matricNo string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM students WHERE LOWER(matric_no) = LOWER($1)"
	args := []interface{}{matricNo}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check matric no: %w", err)
	}
	return true, nil
}

// CreateWithIdentity inserts the identity and the student record in one transaction.
func (r *StudentRepository) CreateWithIdentity(ctx context.Context, user *models.User, student *models.Student) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := insertUser(ctx, tx, user); err != nil {
			return err
		}
		student.UserID = user.ID
		if student.ID == "" {
			student.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		student.CreatedAt = now
		student.UpdatedAt = now
		if student.StageScores == nil {
			student.StageScores = models.StageScores{}
		}
		const query = `INSERT INTO students (id, user_id, matric_no, first_name, last_name, program, current_stage, session_id,
            department, faculty, major_supervisor_id, minor_supervisor_id, internal_examiner_id, college_rep_id, stage_scores, created_at, updated_at)
            VALUES (:id, :user_id, :matric_no, :first_name, :last_name, :program, :current_stage, :session_id,
            :department, :faculty, :major_supervisor_id, :minor_supervisor_id, :internal_examiner_id, :college_rep_id, :stage_scores, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, student); err != nil {
			return fmt.Errorf("create student: %w", err)
		}
		return nil
	})
}

// Update modifies the descriptive fields of a student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET matric_no = :matric_no, first_name = :first_name, last_name = :last_name, session_id = :session_id,
        department = :department, faculty = :faculty, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, student)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return expectAffected(res)
}

// Delete removes the student together with its identity.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = (SELECT user_id FROM students WHERE id = $1)`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return expectAffected(res)
}

// AssignSupervisor writes lecturerID into the slot column for the student.
func (r *StudentRepository) AssignSupervisor(ctx context.Context, studentID string, slot models.SupervisorType, lecturerID string) error {
	column := slot.Column()
	if column == "" {
		return fmt.Errorf("unknown supervisor slot %q", slot)
	}
	query := fmt.Sprintf("UPDATE students SET %s = $2, updated_at = $3 WHERE id = $1", column)
	res, err := r.db.ExecContext(ctx, query, studentID, lecturerID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("assign supervisor: %w", err)
	}
	return expectAffected(res)
}

// AdvanceStage moves the student from one stage to the next and records the outcome of the
// stage being left. It returns false when the student is no longer at from.
func (r *StudentRepository) AdvanceStage(ctx context.Context, studentID string, from, to models.Stage, outcome models.StageOutcome) (bool, error) {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return false, fmt.Errorf("marshal stage outcome: %w", err)
	}
	const query = `UPDATE students SET current_stage = $3,
        stage_scores = COALESCE(stage_scores, '{}'::jsonb) || jsonb_build_object($2::text, $4::jsonb), updated_at = $5
        WHERE id = $1 AND current_stage = $2`
	res, err := r.db.ExecContext(ctx, query, studentID, string(from), string(to), string(payload), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("advance stage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// RecordStageOutcome stores outcome for stage without moving the student.
func (r *StudentRepository) RecordStageOutcome(ctx context.Context, studentID string, stage models.Stage, outcome models.StageOutcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal stage outcome: %w", err)
	}
	const query = `UPDATE students SET stage_scores = COALESCE(stage_scores, '{}'::jsonb) || jsonb_build_object($2::text, $3::jsonb), updated_at = $4
        WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, studentID, string(stage), string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record stage outcome: %w", err)
	}
	return expectAffected(res)
}
