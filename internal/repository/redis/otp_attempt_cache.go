package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"agroguardian-api/internal/client"
	"agroguardian-api/internal/util"
)

const otpAttemptPrefix = "otp_attempts:"

// OTPAttemptCache counts failed verification attempts per phone. The
// counter window matches the code TTL, so a fresh code starts clean.
type OTPAttemptCache struct {
	client *client.RedisClient
}

func NewOTPAttemptCache(client *client.RedisClient) *OTPAttemptCache {
	return &OTPAttemptCache{client: client}
}

func (c *OTPAttemptCache) RecordFailure(ctx context.Context, phone string, window time.Duration) (int, error) {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	key := otpAttemptPrefix + phone

	count, err := c.client.IncrWithExpire(ctx, key, window)
	if err != nil {
		util.Error("Failed to record OTP failure",
			zap.String("phone", phone),
			zap.Error(err))
		return 0, fmt.Errorf("failed to record otp failure: %w", err)
	}

	util.Debug("OTP failure recorded",
		zap.String("phone", phone),
		zap.Int64("count", count))

	return int(count), nil
}

func (c *OTPAttemptCache) Failures(ctx context.Context, phone string) (int, error) {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	val, err := c.client.Get(ctx, otpAttemptPrefix+phone)
	if err != nil {
		if errors.Is(err, client.ErrCacheMiss) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read otp failures: %w", err)
	}

	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("corrupt otp failure counter: %w", err)
	}
	return count, nil
}

func (c *OTPAttemptCache) Clear(ctx context.Context, phone string) error {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, otpAttemptPrefix+phone); err != nil {
		util.Error("Failed to clear OTP failures",
			zap.String("phone", phone),
			zap.Error(err))
		return fmt.Errorf("failed to clear otp failures: %w", err)
	}
	return nil
}
