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

// SessionRepository persists login sessions keyed by (user_id, token).
// A user holds any number of concurrent sessions; rows outlive their
// expiry until the sweep removes them, so reads re-check expires_at.
type SessionRepository struct {
	client *ScyllaClient
}

func NewSessionRepository(client *ScyllaClient, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		client: client,
	}
}

func (r *SessionRepository) CreateSession(ctx context.Context, session *model.Session) error {
	if session.SessionID == "" {
		session.SessionID = uuid.New().String()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	query := r.client.Prepared.CreateSession.Bind(
		session.UserID, session.Token, session.SessionID,
		session.DeviceInfoEnc, session.DeviceInfoDEK, session.DeviceInfoKeyID,
		session.ExpiresAt, session.CreatedAt).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to create session",
			zap.String("user_id", session.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to create session: %w", err)
	}

	util.Info("Session created",
		zap.String("user_id", session.UserID),
		zap.String("session_id", session.SessionID),
		zap.Time("expires_at", session.ExpiresAt))

	return nil
}

func (r *SessionRepository) GetSession(ctx context.Context, userID, token string) (*model.Session, error) {
	session := &model.Session{}

	query := r.client.Prepared.GetSession.Bind(userID, token).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&session.UserID, &session.Token, &session.SessionID,
		&session.DeviceInfoEnc, &session.DeviceInfoDEK, &session.DeviceInfoKeyID,
		&session.ExpiresAt, &session.CreatedAt)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, model.ErrNotFound
		}
		util.Error("Failed to get session",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// DeleteSession is idempotent: deleting an absent row is a no-op in CQL,
// which is exactly what repeated logouts need.
func (r *SessionRepository) DeleteSession(ctx context.Context, userID, token string) error {
	query := r.client.Prepared.DeleteSession.Bind(userID, token).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to delete session",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to delete session: %w", err)
	}

	util.Info("Session deleted", zap.String("user_id", userID))
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	iter := r.client.Query(`
        SELECT user_id, token, expires_at FROM user_sessions ALLOW FILTERING`).
		WithContext(ctx).Iter()

	deleted := 0
	var userID, token string
	var expiresAt time.Time

	for iter.Scan(&userID, &token, &expiresAt) {
		if expiresAt.After(now) {
			continue
		}
		if err := r.client.Query(`DELETE FROM user_sessions WHERE user_id = ? AND token = ?`,
			userID, token).WithContext(ctx).Exec(); err != nil {
			util.Warn("Failed to delete expired session",
				zap.String("user_id", userID),
				zap.Error(err))
			continue
		}
		deleted++
	}

	if err := iter.Close(); err != nil {
		return deleted, fmt.Errorf("session sweep failed: %w", err)
	}

	return deleted, nil
}

func (r *SessionRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck()
}
