package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"agroguardian-api/internal/model"
	"agroguardian-api/internal/util"
)

// NotificationRepository persists per-user notifications clustered
// newest-first.
type NotificationRepository struct {
	client *ScyllaClient
}

func NewNotificationRepository(client *ScyllaClient, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		client: client,
	}
}

func (r *NotificationRepository) CreateNotification(ctx context.Context, n *model.Notification) error {
	if n.NotificationID == "" {
		n.NotificationID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	query := r.client.Prepared.CreateNotification.Bind(
		n.UserID, n.CreatedAt, n.NotificationID, n.Title, n.Message,
		n.Type, n.IsRead).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to create notification",
			zap.String("user_id", n.UserID),
			zap.String("type", n.Type),
			zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit int, unreadOnly bool) ([]*model.Notification, error) {
	stmt := `
        SELECT user_id, created_at, notification_id, title, message, type, is_read
        FROM notifications WHERE user_id = ? LIMIT ?`
	args := []interface{}{userID, limit}

	if unreadOnly {
		stmt = `
        SELECT user_id, created_at, notification_id, title, message, type, is_read
        FROM notifications WHERE user_id = ? AND is_read = false LIMIT ? ALLOW FILTERING`
	}

	iter := r.client.Query(stmt, args...).WithContext(ctx).Iter()

	var out []*model.Notification
	for {
		n := &model.Notification{}
		if !iter.Scan(&n.UserID, &n.CreatedAt, &n.NotificationID, &n.Title,
			&n.Message, &n.Type, &n.IsRead) {
			break
		}
		out = append(out, n)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	return out, nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, userID, notificationID string) error {
	// created_at is part of the primary key, so resolve it first.
	var createdAt time.Time
	err := r.client.Query(`
        SELECT created_at FROM notifications
        WHERE user_id = ? AND notification_id = ? ALLOW FILTERING`,
		userID, notificationID).WithContext(ctx).Scan(&createdAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return model.ErrNotFound
		}
		return fmt.Errorf("failed to resolve notification: %w", err)
	}

	query := r.client.Query(`
        UPDATE notifications SET is_read = true
        WHERE user_id = ? AND created_at = ? AND notification_id = ?`,
		userID, createdAt, notificationID).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) error {
	notifications, err := r.ListByUser(ctx, userID, 1000, true)
	if err != nil {
		return err
	}

	for _, n := range notifications {
		query := r.client.Query(`
            UPDATE notifications SET is_read = true
            WHERE user_id = ? AND created_at = ? AND notification_id = ?`,
			userID, n.CreatedAt, n.NotificationID).WithContext(ctx)
		if err := r.client.ExecuteWithRetry(query, 3); err != nil {
			util.Warn("Failed to mark notification read",
				zap.String("user_id", userID),
				zap.String("notification_id", n.NotificationID),
				zap.Error(err))
		}
	}

	return nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.client.Query(`
        SELECT COUNT(*) FROM notifications
        WHERE user_id = ? AND is_read = false ALLOW FILTERING`,
		userID).WithContext(ctx).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (r *NotificationRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck()
}
