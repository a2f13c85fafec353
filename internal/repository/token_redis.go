package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/qcom/recruitauth/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type RedisTokenRepository struct {
	client redis.UniversalClient
	logger *logrus.Logger
}

func NewRedisTokenRepository(client redis.UniversalClient, logger *logrus.Logger) *RedisTokenRepository {
	return &RedisTokenRepository{
		client: client,
		logger: logger,
	}
}

func refreshKey(jti string) string { return fmt.Sprintf("refresh_token:%s", jti) }
func revokedKey(jti string) string { return fmt.Sprintf("revoked_token:%s", jti) }

func ttlUntil(t time.Time) time.Duration {
	ttl := time.Until(t)
	if ttl <= 0 {
		// A zero TTL would mean "no expiry" to Redis.
		return time.Second
	}
	return ttl
}

func (r *RedisTokenRepository) Save(ctx context.Context, token models.RefreshTokenData) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token data: %w", err)
	}

	if err := r.client.Set(ctx, refreshKey(token.JTI), data, ttlUntil(token.ExpiresAt)).Err(); err != nil {
		r.logger.WithError(err).Error("Failed to store refresh token")
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

func (r *RedisTokenRepository) Get(ctx context.Context, jti string) (*models.RefreshTokenData, error) {
	data, err := r.client.Get(ctx, refreshKey(jti)).Bytes()
	if err == redis.Nil {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	var token models.RefreshTokenData
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token data: %w", err)
	}
	return &token, nil
}

// MarkRevoked claims the revoked marker with SETNX, so concurrent callers
// agree on a single winner, and stores the revoked flag with the token data.
func (r *RedisTokenRepository) MarkRevoked(ctx context.Context, token models.RefreshTokenData) (bool, error) {
	token.Revoked = true
	data, err := json.Marshal(token)
	if err != nil {
		return false, fmt.Errorf("failed to marshal token data: %w", err)
	}

	ttl := ttlUntil(token.ExpiresAt)
	var claimed *redis.BoolCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		claimed = pipe.SetNX(ctx, revokedKey(token.JTI), "1", ttl)
		pipe.Set(ctx, refreshKey(token.JTI), data, ttl)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return claimed.Val(), nil
}
