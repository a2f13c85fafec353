package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qcom/recruitauth/internal/config"
	"github.com/qcom/recruitauth/internal/models"
	"github.com/qcom/recruitauth/internal/phone"
	"github.com/sirupsen/logrus"
)

// OTPRepository persists OTP records keyed by normalized phone.
//
// Fetch and Update return models.ErrNotFound when no record exists.
// Update must apply fn as an atomic read-modify-write: concurrent updates
// of the same phone are serialized or retried, never lost.
type OTPRepository interface {
	Put(ctx context.Context, record models.OTPRecord) error
	Fetch(ctx context.Context, phone string) (*models.OTPRecord, error)
	Update(ctx context.Context, phone string, fn func(*models.OTPRecord) error) (*models.OTPRecord, error)
	Delete(ctx context.Context, phone string) error
}

// OTPStore holds at most one live code per phone number.
type OTPStore struct {
	repo        OTPRepository
	ttl         time.Duration
	maxAttempts int
	countryCode string
	now         func() time.Time
	logger      *logrus.Logger
}

func NewOTPStore(repo OTPRepository, cfg *config.OTPConfig, logger *logrus.Logger) *OTPStore {
	return &OTPStore{
		repo:        repo,
		ttl:         cfg.Expiry,
		maxAttempts: cfg.MaxAttempts,
		countryCode: cfg.DefaultCountryCode,
		now:         time.Now,
		logger:      logger,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *OTPStore) WithClock(now func() time.Time) *OTPStore {
	s.now = now
	return s
}

func (s *OTPStore) TTL() time.Duration { return s.ttl }

func (s *OTPStore) MaxAttempts() int { return s.maxAttempts }

// Store replaces any record for the phone with a fresh one.
func (s *OTPStore) Store(ctx context.Context, phoneNumber, code string, source models.OTPSource) error {
	if !source.Valid() {
		return fmt.Errorf("unknown OTP source %q", source)
	}

	record := models.OTPRecord{
		Phone:    phone.Normalize(phoneNumber, s.countryCode),
		Code:     code,
		IssuedAt: s.now().UTC(),
		Source:   source,
	}

	if err := s.repo.Put(ctx, record); err != nil {
		return fmt.Errorf("failed to store OTP: %w", err)
	}
	return nil
}

// Get returns the record for the phone, marking it expired first when its
// TTL has elapsed or its attempts are exhausted. ErrOTPNotFound when absent.
func (s *OTPStore) Get(ctx context.Context, phoneNumber string) (*models.OTPRecord, error) {
	key := phone.Normalize(phoneNumber, s.countryCode)

	record, err := s.repo.Fetch(ctx, key)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrOTPNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get OTP: %w", err)
	}

	if record.Expired || !s.lapsed(record) {
		return record, nil
	}

	// The record may have been replaced since Fetch; only expire what is
	// actually lapsed.
	updated, err := s.repo.Update(ctx, key, func(r *models.OTPRecord) error {
		if s.lapsed(r) {
			r.Expired = true
		}
		return nil
	})
	switch {
	case errors.Is(err, models.ErrNotFound):
		return nil, ErrOTPNotFound
	case err != nil:
		// The record is expired regardless of whether the write landed.
		s.logger.WithError(err).WithField("phone", key).Warn("Failed to persist OTP expiry")
		record.Expired = true
		return record, nil
	}
	return updated, nil
}

// GetBySource is Get restricted to records issued through source.
func (s *OTPStore) GetBySource(ctx context.Context, phoneNumber string, source models.OTPSource) (*models.OTPRecord, error) {
	record, err := s.Get(ctx, phoneNumber)
	if err != nil {
		return nil, err
	}
	if record.Source != source {
		return nil, ErrOTPNotFound
	}
	return record, nil
}

// IncrementAttempts records a failed verification and expires the record
// once the attempt limit is reached.
func (s *OTPStore) IncrementAttempts(ctx context.Context, phoneNumber string) (*models.OTPRecord, error) {
	key := phone.Normalize(phoneNumber, s.countryCode)

	updated, err := s.repo.Update(ctx, key, func(r *models.OTPRecord) error {
		r.Attempts++
		if s.lapsed(r) {
			r.Expired = true
		}
		return nil
	})
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrOTPNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to increment OTP attempts: %w", err)
	}
	return updated, nil
}

func (s *OTPStore) Clear(ctx context.Context, phoneNumber string) error {
	if err := s.repo.Delete(ctx, phone.Normalize(phoneNumber, s.countryCode)); err != nil {
		return fmt.Errorf("failed to clear OTP: %w", err)
	}
	return nil
}

func (s *OTPStore) lapsed(r *models.OTPRecord) bool {
	return s.now().Sub(r.IssuedAt) >= s.ttl || r.Attempts >= s.maxAttempts
}
