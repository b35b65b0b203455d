package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"agroguardian-api/internal/bucketing"
	"agroguardian-api/internal/model"
	"agroguardian-api/internal/util"
)

// UserRepository persists farmer accounts across the users table and the
// phone_to_user lookup table. Phone uniqueness is guarded by an LWT on
// the lookup row, not by the users partition.
type UserRepository struct {
	client  *ScyllaClient
	buckets *bucketing.BucketingManager
}

func NewUserRepository(client *ScyllaClient, buckets *bucketing.BucketingManager, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		client:  client,
		buckets: buckets,
	}
}

func (r *UserRepository) CreateUser(ctx context.Context, user *model.User) error {
	if user.UserID == "" {
		user.UserID = uuid.New().String()
	}
	user.UserBucket = r.buckets.GetUserBucket(user.UserID)

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	// Claim the phone first. The LWT loses when another request already
	// mapped this phone, which is how find-or-create stays race-free.
	var existingBucket int
	var existingID string
	applied, err := r.client.Prepared.CreatePhoneToUser.
		Bind(user.Phone, user.UserBucket, user.UserID, now).
		WithContext(ctx).
		ScanCAS(&existingBucket, &existingID)
	if err != nil {
		util.Error("Failed to claim phone mapping",
			zap.String("phone", user.Phone),
			zap.Error(err))
		return fmt.Errorf("failed to claim phone mapping: %w", err)
	}
	if !applied {
		return model.ErrAlreadyExists
	}

	query := r.client.Prepared.CreateUser.Bind(
		user.UserBucket, user.UserID, user.Phone, user.Email, user.Name,
		user.Location, user.Language, user.IsVerified, user.CreatedAt,
		user.UpdatedAt).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		// Roll back the mapping so the phone is not stranded.
		_ = r.client.Query(`DELETE FROM phone_to_user WHERE phone = ?`, user.Phone).
			WithContext(ctx).Exec()
		util.Error("Failed to create user",
			zap.String("phone", user.Phone),
			zap.String("user_id", user.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	util.Info("User created",
		zap.String("user_id", user.UserID),
		zap.Int("user_bucket", user.UserBucket))

	return nil
}

func (r *UserRepository) GetUserByID(ctx context.Context, userID string) (*model.User, error) {
	bucket := r.buckets.GetUserBucket(userID)
	user := &model.User{}

	query := r.client.Prepared.GetUserByID.Bind(bucket, userID).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&user.UserBucket, &user.UserID, &user.Phone, &user.Email, &user.Name,
		&user.Location, &user.Language, &user.IsVerified, &user.CreatedAt,
		&user.UpdatedAt)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, model.ErrNotFound
		}
		util.Error("Failed to get user by ID",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return user, nil
}

func (r *UserRepository) GetUserByPhone(ctx context.Context, phone string) (*model.User, error) {
	var bucket int
	var userID string

	query := r.client.Prepared.GetPhoneToUser.Bind(phone).WithContext(ctx)
	if err := r.client.ScanWithRetry(query, &bucket, &userID); err != nil {
		if err == gocql.ErrNotFound {
			return nil, model.ErrNotFound
		}
		util.Error("Failed to resolve phone mapping",
			zap.String("phone", phone),
			zap.Error(err))
		return nil, fmt.Errorf("failed to resolve phone mapping: %w", err)
	}

	return r.GetUserByID(ctx, userID)
}

func (r *UserRepository) UpdateProfile(ctx context.Context, userID string, name, email, location, language string) error {
	bucket := r.buckets.GetUserBucket(userID)
	now := time.Now().UTC()

	query := r.client.Prepared.UpdateUserProfile.
		Bind(name, email, location, language, now, bucket, userID).
		WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to update user profile",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to update user profile: %w", err)
	}

	util.Info("User profile updated", zap.String("user_id", userID))
	return nil
}

func (r *UserRepository) SetVerified(ctx context.Context, userID string, verified bool) error {
	bucket := r.buckets.GetUserBucket(userID)
	now := time.Now().UTC()

	query := r.client.Prepared.SetUserVerified.
		Bind(verified, now, bucket, userID).
		WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to update verification status",
			zap.String("user_id", userID),
			zap.Bool("is_verified", verified),
			zap.Error(err))
		return fmt.Errorf("failed to update verification status: %w", err)
	}

	return nil
}

func (r *UserRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck()
}
