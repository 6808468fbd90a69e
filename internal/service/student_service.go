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

const studentsCacheResource = "students"

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error)
	ExistsByMatricNo(ctx context.Context, matricNo string, excludeID string) (bool, error)
	CreateWithIdentity(ctx context.Context, user *models.User, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
	AssignSupervisor(ctx context.Context, studentID string, slot models.SupervisorType, lecturerID string) error
}

type identityRepository interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	GrantRole(ctx context.Context, id string, role models.Role) error
	RevokeRole(ctx context.Context, id string, role models.Role) error
	SetPanelMember(ctx context.Context, id string, flag bool) error
}

type lecturerLookup interface {
	FindByID(ctx context.Context, id string) (*models.LecturerDetail, error)
	FindByUserID(ctx context.Context, userID string) (*models.LecturerDetail, error)
}

type orgLookup interface {
	FindDepartment(ctx context.Context, id string) (*models.Department, error)
	FindSession(ctx context.Context, id string) (*models.AcademicSession, error)
}

// CreateStudentRequest holds payload for creating students. Password defaults to the
// matric number.
type CreateStudentRequest struct {
	Email        string         `json:"email" validate:"required,email"`
	Password     string         `json:"password" validate:"omitempty,min=6"`
	MatricNo     string         `json:"matricNo" validate:"required"`
	FirstName    string         `json:"firstName" validate:"required"`
	LastName     string         `json:"lastName" validate:"required"`
	Program      models.Program `json:"program" validate:"required,oneof=msc phd"`
	Stage        models.Stage   `json:"stage"`
	SessionID    string         `json:"sessionId" validate:"required"`
	DepartmentID string         `json:"departmentId" validate:"required"`
}

// UpdateStudentRequest holds payload for updating students.
type UpdateStudentRequest struct {
	MatricNo     string `json:"matricNo" validate:"required"`
	FirstName    string `json:"firstName" validate:"required"`
	LastName     string `json:"lastName" validate:"required"`
	SessionID    string `json:"sessionId" validate:"required"`
	DepartmentID string `json:"departmentId"`
}

func (r *CreateStudentRequest) normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.MatricNo = strings.TrimSpace(r.MatricNo)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
}

func (r *UpdateStudentRequest) normalize() {
	r.MatricNo = strings.TrimSpace(r.MatricNo)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
}

// AssignSupervisorRequest assigns a lecturer to a supervision slot on a student.
type AssignSupervisorRequest struct {
	LecturerID string                `json:"lecturerId" validate:"required"`
	Type       models.SupervisorType `json:"type" validate:"required,oneof=major minor internal_examiner college_rep"`
	StudentID  string                `json:"studentId" validate:"required"`
}

// StudentService handles student use-cases.
type StudentService struct {
	repo      studentRepository
	users     identityRepository
	lecturers lecturerLookup
	org       orgLookup
	notifier  Notifier
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, users identityRepository, lecturers lecturerLookup, org orgLookup, notifier Notifier, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, users: users, lecturers: lecturers, org: org, notifier: notifier, cache: cache, validator: validate, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	students, total, err := cachedList(ctx, s.cache, studentsCacheResource, filter, func() ([]models.StudentDetail, int, error) {
		return s.repo.List(ctx, filter)
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, paginate(filter.Page, filter.PageSize, total), nil
}

// ListSupervised returns the students referencing the caller's lecturer record in any slot.
func (s *StudentService) ListSupervised(ctx context.Context, userID string, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	lecturer, err := s.lecturers.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "lecturer profile not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer")
	}
	filter.SupervisorID = lecturer.ID
	return s.List(ctx, filter)
}

// Get returns detailed student information.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a student together with its login identity.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.StudentDetail, error) {
	req.normalize()
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	stage := req.Stage
	if stage == "" {
		stage = req.Program.FirstStage()
	}
	if !req.Program.HasStage(stage) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("stage %q is not part of the %s programme", stage, req.Program))
	}

	email, matric := req.Email, req.MatricNo
	if err := s.ensureUnique(ctx, email, matric, ""); err != nil {
		return nil, err
	}

	department, err := s.loadDepartment(ctx, req.DepartmentID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureSession(ctx, req.SessionID); err != nil {
		return nil, err
	}

	password := req.Password
	if password == "" {
		password = matric
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{Email: email, PasswordHash: hash, Roles: pq.StringArray{string(models.RoleStudent)}}
	student := &models.Student{
		MatricNo:     matric,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Program:      req.Program,
		CurrentStage: stage,
		SessionID:    req.SessionID,
		Department:   department.Name,
		Faculty:      department.FacultyName,
	}
	if err := s.repo.CreateWithIdentity(ctx, user, student); err != nil {
		return nil, translateWriteError(err, "student")
	}
	s.cache.Invalidate(ctx, studentsCacheResource)
	s.logger.Info("student created", zap.String("student_id", student.ID), zap.String("matric_no", student.MatricNo))
	return s.Get(ctx, student.ID)
}

// Update modifies an existing student record.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.StudentDetail, error) {
	req.normalize()
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	matric := req.MatricNo
	if !strings.EqualFold(matric, detail.MatricNo) {
		exists, err := s.repo.ExistsByMatricNo(ctx, matric, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate matric number")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "matric number already used")
		}
	}
	if req.SessionID != detail.SessionID {
		if err := s.ensureSession(ctx, req.SessionID); err != nil {
			return nil, err
		}
	}

	student := detail.Student
	student.MatricNo = matric
	student.FirstName = req.FirstName
	student.LastName = req.LastName
	student.SessionID = req.SessionID
	if req.DepartmentID != "" {
		department, err := s.loadDepartment(ctx, req.DepartmentID)
		if err != nil {
			return nil, err
		}
		student.Department = department.Name
		student.Faculty = department.FacultyName
	}
	if err := s.repo.Update(ctx, &student); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, translateWriteError(err, "student")
	}
	s.cache.Invalidate(ctx, studentsCacheResource)
	return s.Get(ctx, id)
}

// Delete removes a student and its identity.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if err := translateDeleteError(s.repo.Delete(ctx, id), "student"); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, studentsCacheResource)
	return nil
}

// AssignSupervisor stores the lecturer id in the slot, grants the slot's capability role
// and notifies both parties. Lecturers already holding hod or pgcoord keep their roles.
func (s *StudentService) AssignSupervisor(ctx context.Context, req AssignSupervisorRequest) (*models.StudentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid supervisor assignment")
	}
	student, err := s.Get(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	lecturer, err := s.lecturers.FindByID(ctx, req.LecturerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lecturer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer")
	}

	if err := s.repo.AssignSupervisor(ctx, student.ID, req.Type, lecturer.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign supervisor")
	}

	holder := models.User{Roles: lecturer.Roles}
	if !holder.HasRole(models.RoleHOD, models.RolePGCoord) {
		if err := s.users.GrantRole(ctx, lecturer.UserID, req.Type.Role()); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grant supervisor role")
		}
	}

	studentID := student.ID
	s.notifier.Notify(ctx,
		models.Notification{
			RecipientID: lecturer.UserID,
			Type:        models.NotificationSupervisorAssign,
			Title:       "New supervision assignment",
			Message:     fmt.Sprintf("You have been assigned as %s for %s (%s).", req.Type.Label(), student.FullName(), student.MatricNo),
			Resource:    "student",
			ResourceID:  &studentID,
		},
		models.Notification{
			RecipientID: student.UserID,
			Type:        models.NotificationSupervisorAssign,
			Title:       "Supervisor assigned",
			Message:     fmt.Sprintf("%s has been assigned as your %s.", lecturer.DisplayName(), req.Type.Label()),
			Resource:    "student",
			ResourceID:  &studentID,
		},
	)
	s.cache.Invalidate(ctx, studentsCacheResource)
	s.cache.Invalidate(ctx, lecturersCacheResource)
	return s.Get(ctx, student.ID)
}

func (s *StudentService) ensureUnique(ctx context.Context, email, matric, excludeID string) error {
	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate email")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "email already used")
	}
	exists, err = s.repo.ExistsByMatricNo(ctx, matric, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate matric number")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "matric number already used")
	}
	return nil
}

func (s *StudentService) loadDepartment(ctx context.Context, id string) (*models.Department, error) {
	department, err := s.org.FindDepartment(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	return department, nil
}

func (s *StudentService) ensureSession(ctx context.Context, id string) error {
	if _, err := s.org.FindSession(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return nil
}
