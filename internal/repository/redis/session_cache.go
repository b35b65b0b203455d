package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"agroguardian-api/internal/client"
	"agroguardian-api/internal/model"
	"agroguardian-api/internal/util"
)

const sessionPrefix = "session:"

// SessionCache fronts the user_sessions table with a short-lived
// token-keyed cache. Logout deletes the entry before the row, so a
// revoked token never outlives its cache slot by more than one miss.
type SessionCache struct {
	client *client.RedisClient
}

func NewSessionCache(client *client.RedisClient) *SessionCache {
	return &SessionCache{client: client}
}

// cachedSession is the cache-internal form. The model's JSON tags hide
// the token and device fields from clients, but the cache needs them.
type cachedSession struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	DeviceInfoEnc   []byte    `json:"device_info_enc,omitempty"`
	DeviceInfoDEK   []byte    `json:"device_info_dek,omitempty"`
	DeviceInfoKeyID string    `json:"device_info_key_id,omitempty"`
	ExpiresAt       time.Time `json:"expires_at"`
	CreatedAt       time.Time `json:"created_at"`
}

func (c *SessionCache) Put(ctx context.Context, session *model.Session, ttl time.Duration) error {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	data, err := json.Marshal(cachedSession{
		SessionID:       session.SessionID,
		UserID:          session.UserID,
		DeviceInfoEnc:   session.DeviceInfoEnc,
		DeviceInfoDEK:   session.DeviceInfoDEK,
		DeviceInfoKeyID: session.DeviceInfoKeyID,
		ExpiresAt:       session.ExpiresAt,
		CreatedAt:       session.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := c.client.Set(ctx, sessionPrefix+session.Token, data, ttl); err != nil {
		util.Error("Failed to cache session",
			zap.String("user_id", session.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to cache session: %w", err)
	}

	return nil
}

func (c *SessionCache) Get(ctx context.Context, token string) (*model.Session, error) {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	val, err := c.client.Get(ctx, sessionPrefix+token)
	if err != nil {
		if errors.Is(err, client.ErrCacheMiss) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read cached session: %w", err)
	}

	var cached cachedSession
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Drop the corrupt entry and treat as a miss.
		_ = c.client.Del(ctx, sessionPrefix+token)
		return nil, model.ErrNotFound
	}

	// Token is excluded from the marshaled form; restore it from the key.
	return &model.Session{
		SessionID:       cached.SessionID,
		UserID:          cached.UserID,
		Token:           token,
		DeviceInfoEnc:   cached.DeviceInfoEnc,
		DeviceInfoDEK:   cached.DeviceInfoDEK,
		DeviceInfoKeyID: cached.DeviceInfoKeyID,
		ExpiresAt:       cached.ExpiresAt,
		CreatedAt:       cached.CreatedAt,
	}, nil
}

func (c *SessionCache) Delete(ctx context.Context, token string) error {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, sessionPrefix+token); err != nil {
		util.Error("Failed to evict cached session", zap.Error(err))
		return fmt.Errorf("failed to evict cached session: %w", err)
	}

	return nil
}
