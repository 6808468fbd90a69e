package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/pg-defence-api/internal/models"
	appErrors "github.com/noah-isme/pg-defence-api/pkg/errors"
)

// ActivityRecorder appends activity log entries.
type ActivityRecorder interface {
	Record(ctx context.Context, entry *models.ActivityLog) error
}

type activityRepository interface {
	Create(ctx context.Context, entry *models.ActivityLog) error
	List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityLog, int, error)
}

// ActivityService records and lists activity logs.
type ActivityService struct {
	repo   activityRepository
	logger *zap.Logger
}

// NewActivityService constructs the activity service.
func NewActivityService(repo activityRepository, logger *zap.Logger) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{repo: repo, logger: logger}
}

// Record appends entry.
func (s *ActivityService) Record(ctx context.Context, entry *models.ActivityLog) error {
	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record activity", zap.String("action", entry.Action), zap.String("resource", entry.Resource), zap.Error(err))
		return err
	}
	return nil
}

// List returns activity entries.
func (s *ActivityService) List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityLog, *models.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activity logs")
	}
	if items == nil {
		items = []models.ActivityLog{}
	}
	return items, paginate(filter.Page, filter.PageSize, total), nil
}
