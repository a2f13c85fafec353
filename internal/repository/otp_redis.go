package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/qcom/recruitauth/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type RedisOTPRepository struct {
	client    redis.UniversalClient
	retention time.Duration
	logger    *logrus.Logger
}

// NewRedisOTPRepository stores each record as JSON under otp:<phone> with a
// key TTL of retention.
func NewRedisOTPRepository(client redis.UniversalClient, retention time.Duration, logger *logrus.Logger) *RedisOTPRepository {
	return &RedisOTPRepository{
		client:    client,
		retention: retention,
		logger:    logger,
	}
}

func redisOTPKey(phone string) string {
	return fmt.Sprintf("otp:%s", phone)
}

func (r *RedisOTPRepository) Put(ctx context.Context, record models.OTPRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal OTP record: %w", err)
	}

	if err := r.client.Set(ctx, redisOTPKey(record.Phone), data, r.retention).Err(); err != nil {
		r.logger.WithError(err).Error("Failed to store OTP in Redis")
		return fmt.Errorf("failed to store OTP: %w", err)
	}
	return nil
}

func (r *RedisOTPRepository) Fetch(ctx context.Context, phone string) (*models.OTPRecord, error) {
	return decodeRedisOTP(r.client.Get(ctx, redisOTPKey(phone)))
}

func decodeRedisOTP(cmd *redis.StringCmd) (*models.OTPRecord, error) {
	data, err := cmd.Bytes()
	if err == redis.Nil {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get OTP: %w", err)
	}

	var record models.OTPRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OTP record: %w", err)
	}
	return &record, nil
}

// Update runs fn inside WATCH/MULTI so a concurrent write aborts and retries
// this one.
func (r *RedisOTPRepository) Update(ctx context.Context, phone string, fn func(*models.OTPRecord) error) (*models.OTPRecord, error) {
	key := redisOTPKey(phone)
	var updated *models.OTPRecord

	txf := func(tx *redis.Tx) error {
		record, err := decodeRedisOTP(tx.Get(ctx, key))
		if err != nil {
			return err
		}
		if err := fn(record); err != nil {
			return err
		}
		record.Version++

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal OTP record: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return err
		}
		updated = record
		return nil
	}

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			r.logger.WithField("attempt", attempt+1).Debug("OTP update conflict, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}

	return nil, fmt.Errorf("failed to update OTP after %d attempts: %w", maxUpdateRetries, errConflict)
}

func (r *RedisOTPRepository) Delete(ctx context.Context, phone string) error {
	if err := r.client.Del(ctx, redisOTPKey(phone)).Err(); err != nil {
		return fmt.Errorf("failed to delete OTP: %w", err)
	}
	return nil
}
