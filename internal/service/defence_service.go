package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/pg-defence-api/internal/models"
	appErrors "github.com/noah-isme/pg-defence-api/pkg/errors"
)

const (
	defencesCacheResource = "defences"

	scheduleDateLayout = "2006-01-02"
	scheduleTimeLayout = "15:04"

	minScore = 0
	maxScore = 100
)

type defenceRepository interface {
	Create(ctx context.Context, defence *models.Defence) error
	FindByID(ctx context.Context, id string) (*models.Defence, error)
	List(ctx context.Context, filter models.DefenceFilter) ([]models.Defence, int, error)
	Start(ctx context.Context, id string, at time.Time) (bool, error)
	End(ctx context.Context, id string, at time.Time) (bool, error)
	UpsertScore(ctx context.Context, entry *models.ScoreEntry) (bool, error)
	ListScores(ctx context.Context, defenceID string) ([]models.ScoreEntry, error)
	LatestEnded(ctx context.Context, studentID string, stage models.Stage) (*models.Defence, error)
}

type cohortRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Student, error)
	ListCohort(ctx context.Context, filter models.CohortFilter) ([]models.Student, error)
	AdvanceStage(ctx context.Context, studentID string, from, to models.Stage, outcome models.StageOutcome) (bool, error)
	RecordStageOutcome(ctx context.Context, studentID string, stage models.Stage, outcome models.StageOutcome) error
}

type panelRepository interface {
	CountPanelMembers(ctx context.Context, ids []string) (int, error)
}

type sheetReader interface {
	Find(ctx context.Context, key models.ScoreSheetKey) (*models.ScoreSheet, error)
	FindForDepartments(ctx context.Context, departments []string) (map[string]models.ScoreSheet, error)
}

// ScheduleDefenceRequest creates a defence for every student at stage in the session.
// StudentIDs is accepted for compatibility and does not affect the cohort.
type ScheduleDefenceRequest struct {
	Stage          models.Stage   `json:"stage" validate:"required"`
	Program        models.Program `json:"program" validate:"required,oneof=msc phd"`
	SessionID      string         `json:"sessionId" validate:"required"`
	Department     string         `json:"department"`
	Date           string         `json:"date" validate:"required"`
	Time           string         `json:"time" validate:"required"`
	Venue          string         `json:"venue"`
	StudentIDs     []string       `json:"studentIds"`
	PanelMemberIDs []string       `json:"panelMemberIds" validate:"required,min=1,dive,required"`
}

// SubmitScoreRequest carries one panel member's scores for one student.
type SubmitScoreRequest struct {
	StudentID string             `json:"studentId" validate:"required"`
	Scores    []models.ScoreItem `json:"scores" validate:"required,min=1"`
}

// StageDecision is the outcome of approving or rejecting a student's stage.
type StageDecision struct {
	StudentID string               `json:"student_id"`
	Stage     models.Stage         `json:"stage"`
	NextStage models.Stage         `json:"next_stage,omitempty"`
	Completed bool                 `json:"completed"`
	Outcome   *models.StageOutcome `json:"outcome,omitempty"`
}

// DefenceService drives the defence lifecycle.
type DefenceService struct {
	repo      defenceRepository
	students  cohortRepository
	panel     panelRepository
	sheets    sheetReader
	notifier  Notifier
	metrics   *MetricsService
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewDefenceService constructs the defence service.
func NewDefenceService(repo defenceRepository, students cohortRepository, panel panelRepository, sheets sheetReader, notifier Notifier, metrics *MetricsService, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *DefenceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefenceService{
		repo:      repo,
		students:  students,
		panel:     panel,
		sheets:    sheets,
		notifier:  notifier,
		metrics:   metrics,
		cache:     cache,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// Schedule creates a defence for the eligible cohort and notifies students and panel.
func (s *DefenceService) Schedule(ctx context.Context, req ScheduleDefenceRequest, actorID string) (*models.Defence, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid defence payload")
	}
	if !req.Program.HasStage(req.Stage) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("stage %q is not part of the %s programme", req.Stage, req.Program))
	}
	scheduledAt, err := parseSchedule(req.Date, req.Time)
	if err != nil {
		return nil, err
	}

	department := strings.TrimSpace(req.Department)
	cohort, err := s.students.ListCohort(ctx, models.CohortFilter{
		Stage:      req.Stage,
		Program:    req.Program,
		SessionID:  req.SessionID,
		Department: department,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load cohort")
	}
	if len(cohort) == 0 {
		s.metrics.RecordDefenceTransition("schedule", "rejected")
		return nil, appErrors.ErrNoEligibleStudents
	}

	panel := uniqueStrings(req.PanelMemberIDs)
	count, err := s.panel.CountPanelMembers(ctx, panel)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify panel")
	}
	if count != len(panel) {
		s.metrics.RecordDefenceTransition("schedule", "rejected")
		return nil, appErrors.ErrInvalidPanelMember
	}

	studentIDs := make(pq.StringArray, 0, len(cohort))
	userIDs := make([]string, 0, len(cohort))
	for _, st := range cohort {
		studentIDs = append(studentIDs, st.ID)
		userIDs = append(userIDs, st.UserID)
	}
	defence := &models.Defence{
		Stage:          req.Stage,
		Program:        req.Program,
		SessionID:      req.SessionID,
		Venue:          strings.TrimSpace(req.Venue),
		ScheduledAt:    scheduledAt,
		StudentIDs:     studentIDs,
		PanelMemberIDs: pq.StringArray(panel),
		CreatedBy:      actorID,
	}
	if department != "" {
		defence.Department = &department
	}
	if err := s.repo.Create(ctx, defence); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule defence")
	}
	s.metrics.RecordDefenceTransition("schedule", "ok")
	s.cache.Invalidate(ctx, defencesCacheResource)

	s.notifier.Notify(ctx, notifyAll(append(userIDs, panel...), models.Notification{
		Type:       models.NotificationDefenceScheduled,
		Title:      "Defence scheduled",
		Message:    fmt.Sprintf("A %s defence has been scheduled for %s.", stageLabel(req.Stage), scheduledAt.Format("Mon 2 Jan 2006 15:04")),
		Resource:   "defence",
		ResourceID: &defence.ID,
	})...)
	s.logger.Info("defence scheduled",
		zap.String("defence_id", defence.ID),
		zap.String("stage", string(defence.Stage)),
		zap.Int("students", len(studentIDs)),
		zap.Int("panel", len(panel)),
	)
	return defence, nil
}

// Start moves a scheduled defence to started.
func (s *DefenceService) Start(ctx context.Context, id string) (*models.Defence, error) {
	ok, err := s.repo.Start(ctx, id, s.now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start defence")
	}
	defence, loadErr := s.Get(ctx, id)
	if !ok {
		s.metrics.RecordDefenceTransition("start", "conflict")
		if loadErr != nil {
			return nil, loadErr
		}
		return nil, appErrors.ErrAlreadyStarted
	}
	if loadErr != nil {
		return nil, loadErr
	}
	s.metrics.RecordDefenceTransition("start", "ok")
	s.cache.Invalidate(ctx, defencesCacheResource)
	s.notifyParticipants(ctx, defence, models.Notification{
		Type:    models.NotificationDefenceStarted,
		Title:   "Defence started",
		Message: fmt.Sprintf("The %s defence has started.", stageLabel(defence.Stage)),
	})
	return defence, nil
}

// End closes a started defence and announces that results are available.
func (s *DefenceService) End(ctx context.Context, id string) (*models.Defence, error) {
	ok, err := s.repo.End(ctx, id, s.now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to end defence")
	}
	defence, loadErr := s.Get(ctx, id)
	if loadErr != nil {
		if !ok {
			s.metrics.RecordDefenceTransition("end", "conflict")
		}
		return nil, loadErr
	}
	if !ok {
		s.metrics.RecordDefenceTransition("end", "conflict")
		return nil, stateError(defence)
	}
	s.metrics.RecordDefenceTransition("end", "ok")
	s.cache.Invalidate(ctx, defencesCacheResource)
	s.notifyParticipants(ctx, defence, models.Notification{
		Type:    models.NotificationResultsReady,
		Title:   "Defence results ready",
		Message: fmt.Sprintf("The %s defence has ended and results are available.", stageLabel(defence.Stage)),
	})
	return defence, nil
}

// SubmitScore records a panel member's scores for a student. A later submission by the
// same panel member for the same student replaces the earlier one.
func (s *DefenceService) SubmitScore(ctx context.Context, defenceID, panelMemberID string, req SubmitScoreRequest) (*models.ScoreEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidSubmission.Code, appErrors.ErrInvalidSubmission.Status, "invalid score payload")
	}
	defence, err := s.Get(ctx, defenceID)
	if err != nil {
		return nil, err
	}
	if defence.Status() != models.DefenceStarted {
		return nil, stateError(defence)
	}
	if err := validateScores(req.Scores); err != nil {
		return nil, err
	}
	if !defence.HasStudent(req.StudentID) {
		return nil, appErrors.Clone(appErrors.ErrInvalidSubmission, "student is not part of this defence")
	}
	if !defence.HasPanelMember(panelMemberID) {
		return nil, appErrors.Clone(appErrors.ErrInvalidSubmission, "caller is not on the panel of this defence")
	}

	entry := &models.ScoreEntry{
		DefenceID:     defence.ID,
		StudentID:     req.StudentID,
		PanelMemberID: panelMemberID,
		Scores:        models.ScoreItems(req.Scores),
	}
	ok, err := s.repo.UpsertScore(ctx, entry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store scores")
	}
	if !ok {
		current, err := s.Get(ctx, defenceID)
		if err != nil {
			return nil, err
		}
		return nil, stateError(current)
	}
	s.metrics.RecordDefenceTransition("score", "ok")
	return entry, nil
}

// Approve advances the student one stage and records the outcome with the aggregate of
// the latest ended defence at the stage being left. At the final stage nothing changes
// and the decision reports completion.
func (s *DefenceService) Approve(ctx context.Context, studentID, actorID string) (*StageDecision, error) {
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	stage := student.CurrentStage
	if student.Program.IsTerminal(stage) {
		return &StageDecision{StudentID: student.ID, Stage: stage, Completed: true}, nil
	}
	next, ok := student.Program.NextStage(stage)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("stage %q is not part of the %s programme", stage, student.Program))
	}

	outcome := s.stageOutcome(ctx, &student.Student, models.StageOutcomeApproved, actorID)
	advanced, err := s.students.AdvanceStage(ctx, student.ID, stage, next, outcome)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to advance stage")
	}
	if !advanced {
		return nil, appErrors.Clone(appErrors.ErrStateConflict, "student stage changed concurrently")
	}
	s.metrics.RecordDefenceTransition("approve", "ok")
	s.cache.Invalidate(ctx, studentsCacheResource)
	s.notifier.Notify(ctx, models.Notification{
		RecipientID: student.UserID,
		Type:        models.NotificationStageApproved,
		Title:       "Stage approved",
		Message:     fmt.Sprintf("Your %s defence has been approved. Your next stage is %s.", stageLabel(stage), stageLabel(next)),
		Resource:    "student",
		ResourceID:  &student.ID,
	})
	return &StageDecision{StudentID: student.ID, Stage: stage, NextStage: next, Outcome: &outcome}, nil
}

// Reject records a rejected outcome for the student's current stage. The stage is kept.
func (s *DefenceService) Reject(ctx context.Context, studentID, actorID string) (*StageDecision, error) {
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	stage := student.CurrentStage
	outcome := s.stageOutcome(ctx, &student.Student, models.StageOutcomeRejected, actorID)
	if err := s.students.RecordStageOutcome(ctx, student.ID, stage, outcome); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record stage outcome")
	}
	s.metrics.RecordDefenceTransition("reject", "ok")
	s.cache.Invalidate(ctx, studentsCacheResource)
	s.notifier.Notify(ctx, models.Notification{
		RecipientID: student.UserID,
		Type:        models.NotificationStageRejected,
		Title:       "Stage not approved",
		Message:     fmt.Sprintf("Your %s defence was not approved. Please consult your supervisors.", stageLabel(stage)),
		Resource:    "student",
		ResourceID:  &student.ID,
	})
	return &StageDecision{StudentID: student.ID, Stage: stage, Outcome: &outcome}, nil
}

// Get returns a defence by id.
func (s *DefenceService) Get(ctx context.Context, id string) (*models.Defence, error) {
	defence, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "defence not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load defence")
	}
	return defence, nil
}

// List returns defences with pagination metadata.
func (s *DefenceService) List(ctx context.Context, filter models.DefenceFilter) ([]models.Defence, *models.Pagination, error) {
	defences, total, err := cachedList(ctx, s.cache, defencesCacheResource, filter, func() ([]models.Defence, int, error) {
		return s.repo.List(ctx, filter)
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list defences")
	}
	return defences, paginate(filter.Page, filter.PageSize, total), nil
}

// ListForPanelMember returns the defences on which identityID sits.
func (s *DefenceService) ListForPanelMember(ctx context.Context, identityID string, filter models.DefenceFilter) ([]models.Defence, *models.Pagination, error) {
	filter.PanelMember = identityID
	return s.List(ctx, filter)
}

func (s *DefenceService) loadStudent(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// stageOutcome builds the outcome for the student's current stage. The score is the
// aggregate of the latest ended defence at that stage when one exists.
func (s *DefenceService) stageOutcome(ctx context.Context, student *models.Student, status, actorID string) models.StageOutcome {
	outcome := models.StageOutcome{Status: status, DecidedBy: actorID, RecordedAt: s.now().UTC()}
	defence, err := s.repo.LatestEnded(ctx, student.ID, student.CurrentStage)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to load latest defence", zap.String("student_id", student.ID), zap.Error(err))
		}
		return outcome
	}
	outcome.DefenceID = defence.ID
	results, err := s.results(ctx, defence, []models.Student{*student})
	if err != nil {
		s.logger.Warn("failed to aggregate stage score", zap.String("student_id", student.ID), zap.Error(err))
		return outcome
	}
	if len(results) == 1 {
		score := results[0].Aggregate
		outcome.Score = &score
	}
	return outcome
}

func (s *DefenceService) notifyParticipants(ctx context.Context, defence *models.Defence, template models.Notification) {
	recipients := append([]string{}, defence.PanelMemberIDs...)
	students, err := s.students.FindByIDs(ctx, defence.StudentIDs)
	if err != nil {
		s.logger.Warn("failed to resolve defence students", zap.String("defence_id", defence.ID), zap.Error(err))
	}
	for _, st := range students {
		recipients = append(recipients, st.UserID)
	}
	template.Resource = "defence"
	template.ResourceID = &defence.ID
	s.notifier.Notify(ctx, notifyAll(recipients, template)...)
}

// stateError maps the current lifecycle state to the conflict a rejected transition hit.
func stateError(defence *models.Defence) error {
	switch defence.Status() {
	case models.DefenceScheduled:
		return appErrors.ErrNotStarted
	case models.DefenceEnded:
		return appErrors.ErrAlreadyEnded
	default:
		return appErrors.ErrAlreadyStarted
	}
}

func validateScores(items []models.ScoreItem) error {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.CriterionID) == "" {
			return appErrors.Clone(appErrors.ErrInvalidSubmission, "criterion id is required")
		}
		if _, dup := seen[item.CriterionID]; dup {
			return appErrors.Clone(appErrors.ErrInvalidSubmission, fmt.Sprintf("criterion %q scored more than once", item.CriterionID))
		}
		seen[item.CriterionID] = struct{}{}
		if item.Score < minScore || item.Score > maxScore {
			return appErrors.Clone(appErrors.ErrInvalidSubmission, fmt.Sprintf("score for %q must be between %d and %d", item.CriterionID, minScore, maxScore))
		}
	}
	return nil
}

func parseSchedule(date, clock string) (time.Time, error) {
	day, err := time.Parse(scheduleDateLayout, strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "date must be YYYY-MM-DD")
	}
	at, err := time.Parse(scheduleTimeLayout, strings.TrimSpace(clock))
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "time must be HH:MM")
	}
	return time.Date(day.Year(), day.Month(), day.Day(), at.Hour(), at.Minute(), 0, 0, time.UTC), nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func stageLabel(stage models.Stage) string {
	return strings.ReplaceAll(string(stage), "_", " ")
}
