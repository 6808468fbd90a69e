package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/pg-defence-api/internal/models"
	appErrors "github.com/noah-isme/pg-defence-api/pkg/errors"
)

// RequiredWeightSum is the total every non-empty criterion set must reach.
const RequiredWeightSum = 100

type scoreSheetRepository interface {
	Find(ctx context.Context, key models.ScoreSheetKey) (*models.ScoreSheet, error)
	Mutate(ctx context.Context, key models.ScoreSheetKey, fn func(current models.Criteria) (models.Criteria, error)) (*models.ScoreSheet, error)
}

// CriterionInput is one criterion in a create or replace payload.
type CriterionInput struct {
	Name   string `json:"name" validate:"required"`
	Weight *int   `json:"weight" validate:"required"`
}

// SetCriteriaRequest replaces the full criterion set of a sheet.
type SetCriteriaRequest struct {
	Department string           `json:"department"`
	Criteria   []CriterionInput `json:"criteria" validate:"dive"`
}

// AddCriterionRequest appends one criterion.
type AddCriterionRequest struct {
	Department string `json:"department"`
	Name       string `json:"name" validate:"required"`
	Weight     *int   `json:"weight" validate:"required"`
}

// UpdateCriterionRequest changes the name and/or weight of one criterion.
type UpdateCriterionRequest struct {
	Department string  `json:"department"`
	Name       *string `json:"name"`
	Weight     *int    `json:"weight"`
}

// ScoreSheetService validates and stores scoring templates.
type ScoreSheetService struct {
	repo      scoreSheetRepository
	lecturers lecturerLookup
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScoreSheetService constructs the score sheet service.
func NewScoreSheetService(repo scoreSheetRepository, lecturers lecturerLookup, validate *validator.Validate, logger *zap.Logger) *ScoreSheetService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScoreSheetService{repo: repo, lecturers: lecturers, validator: validate, logger: logger}
}

// ResolveKey picks the sheet addressed by scope. Department sheets use department when
// given, else the department of the caller's lecturer record.
func (s *ScoreSheetService) ResolveKey(ctx context.Context, scope models.ScoreSheetScope, department, callerID string) (models.ScoreSheetKey, error) {
	switch scope {
	case models.ScoreSheetGeneral:
		return models.GeneralSheet, nil
	case models.ScoreSheetDepartment:
	default:
		return models.ScoreSheetKey{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown score sheet scope %q", scope))
	}
	department = strings.TrimSpace(department)
	if department != "" {
		return models.DepartmentSheet(department), nil
	}
	lecturer, err := s.lecturers.FindByUserID(ctx, callerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ScoreSheetKey{}, appErrors.Clone(appErrors.ErrValidation, "department is required")
		}
		return models.ScoreSheetKey{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve department")
	}
	if lecturer.Department == "" {
		return models.ScoreSheetKey{}, appErrors.Clone(appErrors.ErrValidation, "department is required")
	}
	return models.DepartmentSheet(lecturer.Department), nil
}

// Get returns the sheet for key.
func (s *ScoreSheetService) Get(ctx context.Context, key models.ScoreSheetKey) (*models.ScoreSheet, error) {
	sheet, err := s.repo.Find(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "score sheet not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load score sheet")
	}
	return sheet, nil
}

// SetCriteria creates the sheet or replaces its criteria.
func (s *ScoreSheetService) SetCriteria(ctx context.Context, key models.ScoreSheetKey, req SetCriteriaRequest) (*models.ScoreSheet, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid criteria payload")
	}
	next := make(models.Criteria, 0, len(req.Criteria))
	for _, in := range req.Criteria {
		next = append(next, models.Criterion{ID: uuid.NewString(), Name: strings.TrimSpace(in.Name), Weight: *in.Weight})
	}
	return s.mutate(ctx, key, "set", func(models.Criteria) (models.Criteria, error) {
		return next, nil
	})
}

// AddCriterion appends a criterion and re-validates the full set.
func (s *ScoreSheetService) AddCriterion(ctx context.Context, key models.ScoreSheetKey, req AddCriterionRequest) (*models.ScoreSheet, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid criterion payload")
	}
	added := models.Criterion{ID: uuid.NewString(), Name: strings.TrimSpace(req.Name), Weight: *req.Weight}
	return s.mutate(ctx, key, "add", func(current models.Criteria) (models.Criteria, error) {
		next := append(models.Criteria{}, current...)
		return append(next, added), nil
	})
}

// UpdateCriterion edits one criterion and re-validates the full set.
func (s *ScoreSheetService) UpdateCriterion(ctx context.Context, key models.ScoreSheetKey, id string, req UpdateCriterionRequest) (*models.ScoreSheet, error) {
	if req.Name == nil && req.Weight == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "name or weight is required")
	}
	return s.mutate(ctx, key, "update", func(current models.Criteria) (models.Criteria, error) {
		idx := current.Index(id)
		if idx < 0 {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "criterion not found")
		}
		next := append(models.Criteria{}, current...)
		if req.Name != nil {
			next[idx].Name = strings.TrimSpace(*req.Name)
		}
		if req.Weight != nil {
			next[idx].Weight = *req.Weight
		}
		return next, nil
	})
}

// DeleteCriterion removes one criterion. The remaining set must still sum to 100 unless
// it is empty.
func (s *ScoreSheetService) DeleteCriterion(ctx context.Context, key models.ScoreSheetKey, id string) (*models.ScoreSheet, error) {
	return s.mutate(ctx, key, "delete", func(current models.Criteria) (models.Criteria, error) {
		idx := current.Index(id)
		if idx < 0 {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "criterion not found")
		}
		next := make(models.Criteria, 0, len(current)-1)
		next = append(next, current[:idx]...)
		return append(next, current[idx+1:]...), nil
	})
}

func (s *ScoreSheetService) mutate(ctx context.Context, key models.ScoreSheetKey, op string, change func(models.Criteria) (models.Criteria, error)) (*models.ScoreSheet, error) {
	sheet, err := s.repo.Mutate(ctx, key, func(current models.Criteria) (models.Criteria, error) {
		next, err := change(current)
		if err != nil {
			return nil, err
		}
		if err := ValidateCriteria(next); err != nil {
			return nil, err
		}
		return next, nil
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update score sheet")
	}
	s.logger.Info("score sheet updated",
		zap.String("op", op),
		zap.String("scope", string(key.Scope)),
		zap.String("department", key.Department),
		zap.Int("criteria", len(sheet.Criteria)),
	)
	return sheet, nil
}

// ValidateCriteria checks a full criterion set: names are non-empty and unique ignoring
// case, weights are non-negative, and a non-empty set sums to exactly 100.
func ValidateCriteria(criteria models.Criteria) error {
	seen := make(map[string]struct{}, len(criteria))
	for _, c := range criteria {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" {
			return appErrors.Clone(appErrors.ErrValidation, "criterion name is required")
		}
		if _, dup := seen[name]; dup {
			return appErrors.Clone(appErrors.ErrDuplicateCriterionName, fmt.Sprintf("duplicate criterion name %q", strings.TrimSpace(c.Name)))
		}
		seen[name] = struct{}{}
		if c.Weight < 0 {
			return appErrors.Clone(appErrors.ErrWeightSumInvalid, "criterion weights must not be negative")
		}
	}
	if len(criteria) > 0 && criteria.TotalWeight() != RequiredWeightSum {
		return appErrors.Clone(appErrors.ErrWeightSumInvalid, fmt.Sprintf("criteria weights sum to %d, expected %d", criteria.TotalWeight(), RequiredWeightSum))
	}
	return nil
}
