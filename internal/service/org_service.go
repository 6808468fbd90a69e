package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/pg-defence-api/internal/models"
	appErrors "github.com/noah-isme/pg-defence-api/pkg/errors"
)

type orgRepository interface {
	ListFaculties(ctx context.Context) ([]models.Faculty, error)
	FindFaculty(ctx context.Context, id string) (*models.Faculty, error)
	CreateFaculty(ctx context.Context, faculty *models.Faculty) error
	DeleteFaculty(ctx context.Context, id string) error
	ListDepartments(ctx context.Context, facultyID string) ([]models.Department, error)
	FindDepartment(ctx context.Context, id string) (*models.Department, error)
	CreateDepartment(ctx context.Context, department *models.Department) error
	DeleteDepartment(ctx context.Context, id string) error
	ListSessions(ctx context.Context) ([]models.AcademicSession, error)
	FindSession(ctx context.Context, id string) (*models.AcademicSession, error)
	CreateSession(ctx context.Context, session *models.AcademicSession) error
	ActivateSession(ctx context.Context, id string) error
	DeleteSession(ctx context.Context, id string) error
}

// CreateFacultyRequest is the payload for adding a faculty.
type CreateFacultyRequest struct {
	Name string `json:"name" validate:"required"`
	Code string `json:"code" validate:"required,max=16"`
}

// CreateDepartmentRequest is the payload for adding a department.
type CreateDepartmentRequest struct {
	FacultyID string `json:"facultyId" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Code      string `json:"code" validate:"required,max=16"`
}

// CreateSessionRequest is the payload for adding an academic session.
type CreateSessionRequest struct {
	Name string `json:"name" validate:"required"`
}

// OrgService manages the faculty, department and session hierarchy.
type OrgService struct {
	repo      orgRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewOrgService constructs the org service.
func NewOrgService(repo orgRepository, validate *validator.Validate, logger *zap.Logger) *OrgService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrgService{repo: repo, validator: validate, logger: logger}
}

// ListFaculties returns every faculty.
func (s *OrgService) ListFaculties(ctx context.Context) ([]models.Faculty, error) {
	items, err := s.repo.ListFaculties(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list faculties")
	}
	if items == nil {
		items = []models.Faculty{}
	}
	return items, nil
}

// CreateFaculty adds a faculty.
func (s *OrgService) CreateFaculty(ctx context.Context, req CreateFacultyRequest) (*models.Faculty, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid faculty payload")
	}
	faculty := &models.Faculty{Name: strings.TrimSpace(req.Name), Code: strings.ToUpper(strings.TrimSpace(req.Code))}
	if err := s.repo.CreateFaculty(ctx, faculty); err != nil {
		return nil, translateWriteError(err, "faculty")
	}
	return faculty, nil
}

// DeleteFaculty removes a faculty.
func (s *OrgService) DeleteFaculty(ctx context.Context, id string) error {
	return translateDeleteError(s.repo.DeleteFaculty(ctx, id), "faculty")
}

// ListDepartments returns departments, optionally for one faculty.
func (s *OrgService) ListDepartments(ctx context.Context, facultyID string) ([]models.Department, error) {
	items, err := s.repo.ListDepartments(ctx, facultyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list departments")
	}
	if items == nil {
		items = []models.Department{}
	}
	return items, nil
}

// GetDepartment returns a department with its faculty name.
func (s *OrgService) GetDepartment(ctx context.Context, id string) (*models.Department, error) {
	department, err := s.repo.FindDepartment(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	return department, nil
}

// CreateDepartment adds a department under an existing faculty.
func (s *OrgService) CreateDepartment(ctx context.Context, req CreateDepartmentRequest) (*models.Department, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}
	faculty, err := s.repo.FindFaculty(ctx, req.FacultyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "faculty not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
	}
	department := &models.Department{
		FacultyID:   faculty.ID,
		FacultyName: faculty.Name,
		Name:        strings.TrimSpace(req.Name),
		Code:        strings.ToUpper(strings.TrimSpace(req.Code)),
	}
	if err := s.repo.CreateDepartment(ctx, department); err != nil {
		return nil, translateWriteError(err, "department")
	}
	return department, nil
}

// DeleteDepartment removes a department.
func (s *OrgService) DeleteDepartment(ctx context.Context, id string) error {
	return translateDeleteError(s.repo.DeleteDepartment(ctx, id), "department")
}

// ListSessions returns every academic session.
func (s *OrgService) ListSessions(ctx context.Context) ([]models.AcademicSession, error) {
	items, err := s.repo.ListSessions(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	if items == nil {
		items = []models.AcademicSession{}
	}
	return items, nil
}

// GetSession returns one academic session.
func (s *OrgService) GetSession(ctx context.Context, id string) (*models.AcademicSession, error) {
	session, err := s.repo.FindSession(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// CreateSession adds an inactive session.
func (s *OrgService) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.AcademicSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	session := &models.AcademicSession{Name: strings.TrimSpace(req.Name)}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, translateWriteError(err, "session")
	}
	return session, nil
}

// ActivateSession makes id the single active session.
func (s *OrgService) ActivateSession(ctx context.Context, id string) (*models.AcademicSession, error) {
	if err := s.repo.ActivateSession(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate session")
	}
	return s.GetSession(ctx, id)
}

// DeleteSession removes a session.
func (s *OrgService) DeleteSession(ctx context.Context, id string) error {
	return translateDeleteError(s.repo.DeleteSession(ctx, id), "session")
}

// translateWriteError maps unique violations to Conflict.
func translateWriteError(err error, resource string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, resource+" already exists")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save "+resource)
}

// translateDeleteError maps missing rows to NotFound and foreign key violations to Conflict.
func translateDeleteError(err error, resource string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, resource+" not found")
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, resource+" is still referenced")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete "+resource)
}
