package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/seva-hours-api/internal/models"
)

// NotificationListLimit caps how many notifications a user sees at once.
const NotificationListLimit = 50

// NotificationRepository persists per-user notifications. Every read and
// mutation is scoped to the owning user.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs a NotificationRepository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Type == "" {
		n.Type = models.NotificationInfo
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, user_id, user_type, title, message, type, link, read, created_at)
        VALUES (:id, :user_id, :user_type, :title, :message, :type, :link, :read, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListByUser returns the latest notifications of a user, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, userType models.UserRole) ([]models.Notification, error) {
	query := fmt.Sprintf(`SELECT id, user_id, user_type, title, message, type, link, read, created_at FROM notifications
        WHERE user_id = $1 AND user_type = $2 ORDER BY created_at DESC LIMIT %d`, NotificationListLimit)
	var items []models.Notification
	if err := r.db.SelectContext(ctx, &items, query, userID, userType); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}

// CountUnread counts unread notifications of a user.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string, userType models.UserRole) (int, error) {
	const query = `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND user_type = $2 AND read = FALSE`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID, userType); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead marks one notification read. It reports false when the
// notification does not belong to the user.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string, userType models.UserRole) (bool, error) {
	const query = `UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2 AND user_type = $3`
	return r.execScoped(ctx, "mark notification read", query, id, userID, userType)
}

// MarkAllRead marks every unread notification of a user read and returns how
// many changed.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string, userType models.UserRole) (int64, error) {
	const query = `UPDATE notifications SET read = TRUE WHERE user_id = $1 AND user_type = $2 AND read = FALSE`
	res, err := r.db.ExecContext(ctx, query, userID, userType)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read rows: %w", err)
	}
	return affected, nil
}

// Delete removes a notification owned by the user.
func (r *NotificationRepository) Delete(ctx context.Context, id, userID string, userType models.UserRole) (bool, error) {
	const query = `DELETE FROM notifications WHERE id = $1 AND user_id = $2 AND user_type = $3`
	return r.execScoped(ctx, "delete notification", query, id, userID, userType)
}

func (r *NotificationRepository) execScoped(ctx context.Context, op, query string, args ...interface{}) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows: %w", op, err)
	}
	return affected > 0, nil
}
