package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/seva-hours-api/internal/models"
	appErrors "github.com/noah-isme/seva-hours-api/pkg/errors"
	"github.com/noah-isme/seva-hours-api/pkg/jobs"
)

// JobTypeNotificationDeliver identifies queued notification deliveries.
const JobTypeNotificationDeliver = "notification.deliver"

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string, userType models.UserRole) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID string, userType models.UserRole) (int, error)
	MarkRead(ctx context.Context, id, userID string, userType models.UserRole) (bool, error)
	MarkAllRead(ctx context.Context, userID string, userType models.UserRole) (int64, error)
	Delete(ctx context.Context, id, userID string, userType models.UserRole) (bool, error)
}

type notificationPublisher interface {
	Publish(ctx context.Context, key string, payload interface{}) error
}

type notificationQueue interface {
	Enqueue(job jobs.Job) error
}

type adminDirectory interface {
	ListActiveIDs(ctx context.Context) ([]string, error)
}

// notifier is what the domain services need to emit notifications.
type notifier interface {
	Notify(ctx context.Context, n models.Notification)
	NotifyAdmins(ctx context.Context, n models.Notification)
}

// NotificationServiceParams groups constructor dependencies.
type NotificationServiceParams struct {
	Store     notificationStore
	Publisher notificationPublisher
	Admins    adminDirectory
	Validator *validator.Validate
	Metrics   *MetricsService
	Logger    *zap.Logger
}

// NotificationService stores per-user notifications and mirrors them to the
// event stream. Domain events are delivered through the job queue when one
// is attached; otherwise they are written inline.
type NotificationService struct {
	store     notificationStore
	publisher notificationPublisher
	admins    adminDirectory
	queue     notificationQueue
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(params NotificationServiceParams) *NotificationService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		store:     params.Store,
		publisher: params.Publisher,
		admins:    params.Admins,
		validator: validate,
		metrics:   params.Metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// UseQueue routes Notify through q. The queue handler must be Handle.
func (s *NotificationService) UseQueue(q notificationQueue) {
	s.queue = q
}

// Notify schedules delivery of n. Failures never propagate to the caller.
func (s *NotificationService) Notify(ctx context.Context, n models.Notification) {
	if s == nil {
		return
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	if s.queue != nil {
		err := s.queue.Enqueue(jobs.Job{Type: JobTypeNotificationDeliver, Payload: n})
		if err == nil {
			return
		}
		s.logger.Warn("notification queue rejected job, delivering inline", zap.String("user_id", n.UserID), zap.Error(err))
	}
	if err := s.deliver(ctx, &n); err != nil {
		s.logger.Warn("notification delivery failed", zap.String("user_id", n.UserID), zap.Error(err))
	}
}

// NotifyAdmins sends a copy of n to every active administrator.
func (s *NotificationService) NotifyAdmins(ctx context.Context, n models.Notification) {
	if s == nil || s.admins == nil {
		return
	}
	ids, err := s.admins.ListActiveIDs(ctx)
	if err != nil {
		s.logger.Warn("failed to resolve admin recipients", zap.Error(err))
		return
	}
	for _, id := range ids {
		msg := n
		msg.UserID = id
		msg.UserType = models.RoleAdmin
		s.Notify(ctx, msg)
	}
}

// Handle is the job queue handler for notification deliveries.
func (s *NotificationService) Handle(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(models.Notification)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.Type)
	}
	return s.deliver(ctx, &n)
}

func (s *NotificationService) deliver(ctx context.Context, n *models.Notification) error {
	err := s.store.Create(ctx, n)
	s.metrics.RecordNotification("store", err)
	if err != nil {
		return err
	}
	if s.publisher != nil {
		perr := s.publisher.Publish(ctx, n.UserID, n)
		s.metrics.RecordNotification("kafka", perr)
		if perr != nil {
			s.logger.Warn("failed to publish notification", zap.String("notification_id", n.ID), zap.Error(perr))
		}
	}
	return nil
}

// List returns the caller's latest notifications and unread count.
func (s *NotificationService) List(ctx context.Context, userID string, role models.UserRole) ([]models.Notification, int, error) {
	items, err := s.store.ListByUser(ctx, userID, role)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	unread, err := s.store.CountUnread(ctx, userID, role)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	if items == nil {
		items = []models.Notification{}
	}
	return items, unread, nil
}

// UnreadCount returns the caller's unread notification count.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string, role models.UserRole) (int, error) {
	count, err := s.store.CountUnread(ctx, userID, role)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	return count, nil
}

// MarkRead marks one of the caller's notifications read.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string, role models.UserRole) error {
	ok, err := s.store.MarkRead(ctx, id, userID, role)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update notification")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	return nil
}

// MarkAllRead marks all of the caller's notifications read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string, role models.UserRole) (int64, error) {
	changed, err := s.store.MarkAllRead(ctx, userID, role)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update notifications")
	}
	return changed, nil
}

// Delete removes one of the caller's notifications.
func (s *NotificationService) Delete(ctx context.Context, id, userID string, role models.UserRole) error {
	ok, err := s.store.Delete(ctx, id, userID, role)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete notification")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	return nil
}

// Send stores an admin authored notification synchronously.
func (s *NotificationService) Send(ctx context.Context, req models.SendNotificationRequest) (*models.Notification, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Message = strings.TrimSpace(req.Message)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid notification payload")
	}
	n := &models.Notification{
		UserID:    req.UserID,
		UserType:  req.UserType,
		Title:     req.Title,
		Message:   req.Message,
		Type:      req.Type,
		Link:      req.Link,
		CreatedAt: s.now().UTC(),
	}
	if n.Type == "" {
		n.Type = models.NotificationInfo
	}
	if err := s.deliver(ctx, n); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create notification")
	}
	return n, nil
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, models.Notification)       {}
func (noopNotifier) NotifyAdmins(context.Context, models.Notification) {}
