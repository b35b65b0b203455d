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

// OTPRepository persists one-time codes keyed by phone. A phone holds at
// most one live code; issuing a new one atomically clears the old.
type OTPRepository struct {
	client *ScyllaClient
}

func NewOTPRepository(client *ScyllaClient, logger *zap.Logger) *OTPRepository {
	return &OTPRepository{
		client: client,
	}
}

// ReplaceCode removes every prior code for the phone and installs the
// new one in a single logged batch. The delete is written one
// microsecond behind the insert so the tombstone never shadows the new
// row when the batch shares its timestamp.
func (r *OTPRepository) ReplaceCode(ctx context.Context, code *model.OneTimeCode) error {
	if code.OTPID == "" {
		code.OTPID = uuid.New().String()
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now().UTC()
	}

	ts := time.Now().UnixMicro()

	batch := r.client.Batch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(`DELETE FROM otps USING TIMESTAMP ? WHERE phone = ?`,
		ts, code.Phone)

	batch.Query(`INSERT INTO otps (
            phone, otp_id, code_hash, code_salt, pepper_version,
            expires_at, is_used, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?) USING TIMESTAMP ?`,
		code.Phone, code.OTPID, code.CodeHash, code.CodeSalt,
		code.PepperVersion, code.ExpiresAt, false, code.CreatedAt, ts+1)

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to replace OTP",
			zap.String("phone", code.Phone),
			zap.Error(err))
		return fmt.Errorf("failed to replace otp: %w", err)
	}

	util.Debug("OTP replaced",
		zap.String("phone", code.Phone),
		zap.String("otp_id", code.OTPID),
		zap.Time("expires_at", code.ExpiresAt))

	return nil
}

func (r *OTPRepository) GetLatestByPhone(ctx context.Context, phone string) (*model.OneTimeCode, error) {
	code := &model.OneTimeCode{}

	query := r.client.Prepared.GetLatestOTP.Bind(phone).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&code.OTPID, &code.Phone, &code.CodeHash, &code.CodeSalt,
		&code.PepperVersion, &code.ExpiresAt, &code.IsUsed, &code.CreatedAt)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, model.ErrNotFound
		}
		util.Error("Failed to get OTP",
			zap.String("phone", phone),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get otp: %w", err)
	}

	return code, nil
}

// ConsumeCode flips is_used under a lightweight transaction. Exactly one
// of any set of concurrent callers observes applied=true.
func (r *OTPRepository) ConsumeCode(ctx context.Context, phone, otpID string) (bool, error) {
	var prevUsed bool

	applied, err := r.client.Query(`
        UPDATE otps SET is_used = true
        WHERE phone = ? AND otp_id = ? IF is_used = false`,
		phone, otpID).
		WithContext(ctx).
		ScanCAS(&prevUsed)

	if err != nil {
		if err == gocql.ErrNotFound {
			return false, nil
		}
		util.Error("Failed to consume OTP",
			zap.String("phone", phone),
			zap.Error(err))
		return false, fmt.Errorf("failed to consume otp: %w", err)
	}

	return applied, nil
}

// DeleteOlderThan sweeps codes created before the cutoff. Used and
// expired rows linger until this runs; the verify path never trusts a
// row's presence alone.
func (r *OTPRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	iter := r.client.Query(`
        SELECT phone, otp_id, created_at FROM otps ALLOW FILTERING`).
		WithContext(ctx).Iter()

	deleted := 0
	var phone, otpID string
	var createdAt time.Time

	for iter.Scan(&phone, &otpID, &createdAt) {
		if createdAt.After(cutoff) {
			continue
		}
		if err := r.client.Query(`DELETE FROM otps WHERE phone = ? AND otp_id = ?`,
			phone, otpID).WithContext(ctx).Exec(); err != nil {
			util.Warn("Failed to delete stale OTP",
				zap.String("phone", phone),
				zap.Error(err))
			continue
		}
		deleted++
	}

	if err := iter.Close(); err != nil {
		return deleted, fmt.Errorf("otp sweep failed: %w", err)
	}

	return deleted, nil
}

func (r *OTPRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck()
}
