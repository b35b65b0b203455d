package model

import (
	"context"
	"errors"
	"time"
)

// Storage-level sentinels. Services translate these into their own
// client-facing errors so callers never learn which step failed.
var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// UserRepository persists farmer accounts. Phone numbers are unique;
// CreateUser must fail with ErrAlreadyExists when the phone is taken.
type UserRepository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, userID string) (*User, error)
	GetUserByPhone(ctx context.Context, phone string) (*User, error)
	UpdateProfile(ctx context.Context, userID string, name, email, location, language string) error
	SetVerified(ctx context.Context, userID string, verified bool) error
	HealthCheck(ctx context.Context) error
}

// OTPRepository persists one-time codes. ReplaceCode atomically removes
// every prior code for the phone and installs the new one. ConsumeCode
// marks the code used and reports whether THIS call won the transition;
// concurrent consumers of the same code see at most one true.
type OTPRepository interface {
	ReplaceCode(ctx context.Context, code *OneTimeCode) error
	GetLatestByPhone(ctx context.Context, phone string) (*OneTimeCode, error)
	ConsumeCode(ctx context.Context, phone, otpID string) (bool, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	HealthCheck(ctx context.Context) error
}

// SessionRepository persists login sessions keyed by (user, token).
type SessionRepository interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, userID, token string) (*Session, error)
	DeleteSession(ctx context.Context, userID, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	HealthCheck(ctx context.Context) error
}

// DetectionRepository persists crop disease detections.
type DetectionRepository interface {
	CreateDetection(ctx context.Context, det *Detection) error
	GetDetection(ctx context.Context, userID, detectionID string) (*Detection, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*Detection, error)
	ListByUserBetween(ctx context.Context, userID string, from, to time.Time) ([]*Detection, error)
	ListSince(ctx context.Context, since time.Time) ([]*Detection, error)
	HealthCheck(ctx context.Context) error
}

// NotificationRepository persists per-user notifications.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID string, limit int, unreadOnly bool) ([]*Notification, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
	MarkAllRead(ctx context.Context, userID string) error
	CountUnread(ctx context.Context, userID string) (int, error)
	HealthCheck(ctx context.Context) error
}

// WeeklyReportRepository persists generated weekly summaries.
type WeeklyReportRepository interface {
	CreateReport(ctx context.Context, r *WeeklyReport) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*WeeklyReport, error)
	HealthCheck(ctx context.Context) error
}

// RateLimitCache counts actions inside a rolling window.
type RateLimitCache interface {
	Increment(ctx context.Context, key string, window time.Duration) (int, error)
	Count(ctx context.Context, key string) (int, error)
	Reset(ctx context.Context, key string) error
}

// OTPAttemptCache tracks failed verification attempts per phone so a
// code is retired after too many wrong guesses.
type OTPAttemptCache interface {
	RecordFailure(ctx context.Context, phone string, window time.Duration) (int, error)
	Failures(ctx context.Context, phone string) (int, error)
	Clear(ctx context.Context, phone string) error
}

// SessionCache mirrors live sessions keyed by token. It is written on
// login and evicted on logout; authorization always reads the
// repository, so a stale mirror entry is harmless.
type SessionCache interface {
	Put(ctx context.Context, session *Session, ttl time.Duration) error
	Get(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
}
