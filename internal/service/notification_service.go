package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/pg-defence-api/internal/models"
	appErrors "github.com/noah-isme/pg-defence-api/pkg/errors"
)

// Notifier delivers notifications. Implementations never fail the caller; delivery
// problems are logged.
type Notifier interface {
	Notify(ctx context.Context, notifications ...models.Notification)
}

type notificationRepository interface {
	CreateBatch(ctx context.Context, notifications []models.Notification) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, id, recipientID string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
}

// NotificationService persists notifications and serves each recipient's inbox.
type NotificationService struct {
	repo    notificationRepository
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationService constructs the notification service.
func NewNotificationService(repo notificationRepository, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, metrics: metrics, logger: logger}
}

// Notify stores notifications addressed to a recipient. Entries without a recipient are
// dropped. Failures are logged and swallowed.
func (s *NotificationService) Notify(ctx context.Context, notifications ...models.Notification) {
	batch := make([]models.Notification, 0, len(notifications))
	for _, n := range notifications {
		if n.RecipientID == "" {
			continue
		}
		batch = append(batch, n)
	}
	if len(batch) == 0 {
		return
	}
	if err := s.repo.CreateBatch(ctx, batch); err != nil {
		s.metrics.RecordNotifications("failed", len(batch))
		s.logger.Warn("failed to persist notifications", zap.Int("count", len(batch)), zap.String("type", batch[0].Type), zap.Error(err))
		return
	}
	s.metrics.RecordNotifications("sent", len(batch))
}

// List returns the caller's notifications.
func (s *NotificationService) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	if items == nil {
		items = []models.Notification{}
	}
	return items, paginate(filter.Page, filter.PageSize, total), nil
}

// MarkRead flags one notification as read. Notifications of other recipients look missing.
func (s *NotificationService) MarkRead(ctx context.Context, id, recipientID string) error {
	if err := s.repo.MarkRead(ctx, id, recipientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update notification")
	}
	return nil
}

// MarkAllRead flags every unread notification of the recipient.
func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	count, err := s.repo.MarkAllRead(ctx, recipientID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update notifications")
	}
	return count, nil
}

// notifyAll builds one notification per recipient from a template.
func notifyAll(recipients []string, template models.Notification) []models.Notification {
	seen := make(map[string]struct{}, len(recipients))
	out := make([]models.Notification, 0, len(recipients))
	for _, r := range recipients {
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		n := template
		n.RecipientID = r
		out = append(out, n)
	}
	return out
}
