package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/pg-defence-api/internal/models"
	appErrors "github.com/noah-isme/pg-defence-api/pkg/errors"
)

const lecturersCacheResource = "lecturers"

type lecturerRepository interface {
	List(ctx context.Context, filter models.LecturerFilter) ([]models.LecturerDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.LecturerDetail, error)
	ExistsByStaffID(ctx context.Context, staffID string) (bool, error)
	CreateWithIdentity(ctx context.Context, user *models.User, lecturer *models.Lecturer) error
	Delete(ctx context.Context, id string) error
}

// CreateLecturerRequest holds payload for creating lecturers. Password defaults to the
// staff id.
type CreateLecturerRequest struct {
	Email         string        `json:"email" validate:"required,email"`
	Password      string        `json:"password" validate:"omitempty,min=6"`
	StaffID       string        `json:"staffId" validate:"required"`
	Title         string        `json:"title"`
	FirstName     string        `json:"firstName" validate:"required"`
	LastName      string        `json:"lastName" validate:"required"`
	DepartmentID  string        `json:"departmentId" validate:"required"`
	Roles         []models.Role `json:"roles"`
	IsPanelMember bool          `json:"isPanelMember"`
}

func (r *CreateLecturerRequest) normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.StaffID = strings.TrimSpace(r.StaffID)
	r.Title = strings.TrimSpace(r.Title)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
}

// RoleRequest names a role to grant or revoke.
type RoleRequest struct {
	Role models.Role `json:"role" validate:"required"`
}

// PanelMemberRequest toggles panel eligibility.
type PanelMemberRequest struct {
	IsPanelMember *bool `json:"isPanelMember" validate:"required"`
}

// LecturerService handles lecturer use-cases.
type LecturerService struct {
	repo      lecturerRepository
	users     identityRepository
	org       orgLookup
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLecturerService constructs the lecturer service.
func NewLecturerService(repo lecturerRepository, users identityRepository, org orgLookup, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *LecturerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LecturerService{repo: repo, users: users, org: org, cache: cache, validator: validate, logger: logger}
}

// List returns lecturers with pagination metadata.
func (s *LecturerService) List(ctx context.Context, filter models.LecturerFilter) ([]models.LecturerDetail, *models.Pagination, error) {
	lecturers, total, err := cachedList(ctx, s.cache, lecturersCacheResource, filter, func() ([]models.LecturerDetail, int, error) {
		return s.repo.List(ctx, filter)
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lecturers")
	}
	return lecturers, paginate(filter.Page, filter.PageSize, total), nil
}

// Get returns a lecturer by id.
func (s *LecturerService) Get(ctx context.Context, id string) (*models.LecturerDetail, error) {
	lecturer, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lecturer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer")
	}
	return lecturer, nil
}

// Create registers a lecturer together with its login identity.
func (s *LecturerService) Create(ctx context.Context, req CreateLecturerRequest) (*models.LecturerDetail, error) {
	req.normalize()
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lecturer payload")
	}
	roles := pq.StringArray{string(models.RoleLecturer)}
	for _, role := range req.Roles {
		if !role.Valid() || role == models.RoleStudent {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid role %q", role))
		}
		if role != models.RoleLecturer {
			roles = append(roles, string(role))
		}
	}

	email, staffID := req.Email, req.StaffID
	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already used")
	}
	exists, err = s.repo.ExistsByStaffID(ctx, staffID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate staff id")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "staff id already used")
	}

	department, err := s.org.FindDepartment(ctx, req.DepartmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}

	password := req.Password
	if password == "" {
		password = staffID
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{Email: email, PasswordHash: hash, Roles: roles, IsPanelMember: req.IsPanelMember}
	lecturer := &models.Lecturer{
		StaffID:    staffID,
		Title:      req.Title,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Department: department.Name,
		Faculty:    department.FacultyName,
	}
	if err := s.repo.CreateWithIdentity(ctx, user, lecturer); err != nil {
		return nil, translateWriteError(err, "lecturer")
	}
	s.cache.Invalidate(ctx, lecturersCacheResource)
	s.logger.Info("lecturer created", zap.String("lecturer_id", lecturer.ID), zap.String("staff_id", lecturer.StaffID))
	return s.Get(ctx, lecturer.ID)
}

// Delete removes a lecturer and its identity.
func (s *LecturerService) Delete(ctx context.Context, id string) error {
	if err := translateDeleteError(s.repo.Delete(ctx, id), "lecturer"); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, lecturersCacheResource)
	s.cache.Invalidate(ctx, studentsCacheResource)
	return nil
}

// SetPanelMember toggles whether the lecturer may sit on defence panels.
func (s *LecturerService) SetPanelMember(ctx context.Context, id string, req PanelMemberRequest) (*models.LecturerDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid panel payload")
	}
	lecturer, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetPanelMember(ctx, lecturer.UserID, *req.IsPanelMember); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update panel membership")
	}
	s.cache.Invalidate(ctx, lecturersCacheResource)
	return s.Get(ctx, id)
}

// GrantRole adds role to the lecturer's identity. Granting a held role is a no-op.
func (s *LecturerService) GrantRole(ctx context.Context, id string, req RoleRequest) (*models.LecturerDetail, error) {
	return s.changeRole(ctx, id, req, s.users.GrantRole)
}

// RevokeRole removes role from the lecturer's identity.
func (s *LecturerService) RevokeRole(ctx context.Context, id string, req RoleRequest) (*models.LecturerDetail, error) {
	if req.Role == models.RoleLecturer {
		return nil, appErrors.Clone(appErrors.ErrValidation, "the lecturer role cannot be revoked")
	}
	return s.changeRole(ctx, id, req, s.users.RevokeRole)
}

func (s *LecturerService) changeRole(ctx context.Context, id string, req RoleRequest, apply func(context.Context, string, models.Role) error) (*models.LecturerDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}
	if !req.Role.Valid() || req.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid role %q", req.Role))
	}
	lecturer, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(ctx, lecturer.UserID, req.Role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lecturer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update roles")
	}
	s.cache.Invalidate(ctx, lecturersCacheResource)
	return s.Get(ctx, id)
}
