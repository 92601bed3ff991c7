package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pranavraok/hostelvoice-api/internal/models"
	appErrors "github.com/pranavraok/hostelvoice-api/pkg/errors"
	"github.com/pranavraok/hostelvoice-api/pkg/jobs"
)

type notificationRepository interface {
	CreateBatch(ctx context.Context, notifications []models.Notification) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) error
}

// NotificationService delivers in-app notifications and serves the per-user feed.
//
// Dispatch is best-effort by contract: NotifyOne and NotifyMany never return an
// error. Delivery failure is logged and swallowed so that a caller's primary
// operation (issue merge, approval decision) is never failed by notification
// problems.
type NotificationService struct {
	repo   notificationRepository
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService constructs the service. The queue is optional; when
// present, fan-out writes are dispatched asynchronously through it.
func NewNotificationService(repo notificationRepository, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, logger: logger}
}

// AttachQueue wires an optional background queue for asynchronous dispatch.
func (s *NotificationService) AttachQueue(queue *jobs.Queue) {
	s.queue = queue
}

// ProcessDispatchJob persists a queued notification batch. Used as the jobs
// queue handler.
func (s *NotificationService) ProcessDispatchJob(ctx context.Context, job jobs.Job) error {
	batch, ok := job.Payload.([]models.Notification)
	if !ok {
		s.logger.Error("notification job carried unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.repo.CreateBatch(ctx, batch)
}

// NotifyOne delivers a notification to a single user. Best-effort.
func (s *NotificationService) NotifyOne(ctx context.Context, userID string, typ models.NotificationType, title, message string, referenceID *string) {
	s.dispatch(ctx, []models.Notification{{
		UserID:      userID,
		Type:        typ,
		Title:       title,
		Message:     message,
		ReferenceID: referenceID,
	}})
}

// NotifyMany delivers the same notification to every listed user. Best-effort.
func (s *NotificationService) NotifyMany(ctx context.Context, userIDs []string, typ models.NotificationType, title, message string, referenceID *string) {
	if len(userIDs) == 0 {
		return
	}
	batch := make([]models.Notification, 0, len(userIDs))
	for _, id := range userIDs {
		batch = append(batch, models.Notification{
			UserID:      id,
			Type:        typ,
			Title:       title,
			Message:     message,
			ReferenceID: referenceID,
		})
	}
	s.dispatch(ctx, batch)
}

func (s *NotificationService) dispatch(ctx context.Context, batch []models.Notification) {
	if s.queue != nil {
		job := jobs.Job{ID: uuid.NewString(), Type: "notification_dispatch", Payload: batch, Enqueued: time.Now().UTC()}
		if err := s.queue.Enqueue(job); err == nil {
			return
		} else {
			s.logger.Warn("notification queue unavailable, writing synchronously", zap.Error(err))
		}
	}
	if err := s.repo.CreateBatch(ctx, batch); err != nil {
		s.logger.Warn("notification dispatch failed", zap.Int("recipients", len(batch)), zap.Error(err))
	}
}

// List returns a user's notification feed with pagination.
func (s *NotificationService) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return rows, pagination, nil
}

// UnreadCount returns the number of unread notifications for a user.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unread notifications")
	}
	return count, nil
}

// MarkRead flags one notification as read for the owning user.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}

// MarkAllRead flags the whole feed as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	if err := s.repo.MarkAllRead(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return nil
}
