package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/qcom/recruitauth/internal/config"
	"github.com/qcom/recruitauth/internal/models"
	"github.com/qcom/recruitauth/internal/notify"
	"github.com/qcom/recruitauth/internal/phone"
	"github.com/sirupsen/logrus"
)

// Channel selects how a code is delivered.
type Channel string

const (
	// ChannelSMS sends through the SMS gateway only.
	ChannelSMS Channel = "sms"
	// ChannelSmart prefers WhatsApp and falls back to SMS.
	ChannelSmart Channel = "smart"
)

// AttemptError is a wrong code that still leaves attempts on the record.
type AttemptError struct {
	Remaining int
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("invalid OTP, %d attempts remaining", e.Remaining)
}

func (e *AttemptError) Is(target error) bool { return target == ErrInvalidOTP }

type SendRequest struct {
	Phone    string
	ClientIP string
	Channel  Channel
}

type SendResult struct {
	Phone     string
	Source    models.OTPSource
	ExpiresIn time.Duration
}

type VerifyRequest struct {
	Phone    string
	Code     string
	ClientIP string
	// Source restricts verification to codes issued over one channel.
	Source models.OTPSource
}

type VerifyResult struct {
	Phone  string
	Source models.OTPSource
}

type OTPService struct {
	store    *OTPStore
	limiter  *RateLimiter
	senders  map[Channel]notify.Sender
	cfg      *config.OTPConfig
	limits   *config.RateLimitConfig
	now      func() time.Time
	logger   *logrus.Logger
	generate func(length int) (string, error)
}

func NewOTPService(
	store *OTPStore,
	limiter *RateLimiter,
	senders map[Channel]notify.Sender,
	cfg *config.OTPConfig,
	limits *config.RateLimitConfig,
	logger *logrus.Logger,
) *OTPService {
	return &OTPService{
		store:    store,
		limiter:  limiter,
		senders:  senders,
		cfg:      cfg,
		limits:   limits,
		now:      time.Now,
		logger:   logger,
		generate: generateRandomOTP,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *OTPService) WithClock(now func() time.Time) *OTPService {
	s.now = now
	return s
}

// WithGenerator replaces the code generator. Intended for tests.
func (s *OTPService) WithGenerator(gen func(length int) (string, error)) *OTPService {
	s.generate = gen
	return s
}

func rule(r config.Rule) Rule {
	return Rule{Window: r.Window, Max: r.Max, MinInterval: r.MinInterval}
}

func limitPrefix(c Channel) string {
	if c == ChannelSmart {
		return "whatsapp"
	}
	return "sms"
}

// SendOTP issues a fresh code for the phone unless one was sent within the
// resend cooldown.
func (s *OTPService) SendOTP(ctx context.Context, req SendRequest) (*SendResult, error) {
	phoneNumber, err := phone.Parse(req.Phone, s.cfg.DefaultCountryCode)
	if err != nil {
		return nil, err
	}

	sender, ok := s.senders[req.Channel]
	if !ok {
		return nil, fmt.Errorf("unsupported channel %q", req.Channel)
	}

	prefix := limitPrefix(req.Channel)
	err = s.limiter.AllowAll(
		Limit{Key: prefix + ":send:" + req.ClientIP, Rule: rule(s.limits.SendPerIP)},
		Limit{Key: "sms:phone:" + phoneNumber, Rule: rule(s.limits.SendPerPhone)},
	)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.Get(ctx, phoneNumber)
	switch {
	case err == nil && !existing.Expired:
		if wait := existing.IssuedAt.Add(s.cfg.ResendCooldown).Sub(s.now()); wait > 0 {
			return nil, &RateLimitError{Key: "otp:" + phoneNumber, RetryAfter: wait, Err: ErrOTPAlreadySent}
		}
	case err != nil && !errors.Is(err, ErrOTPNotFound):
		return nil, err
	}

	code, err := s.generate(s.cfg.Length)
	if err != nil {
		return nil, fmt.Errorf("failed to generate OTP: %w", err)
	}

	source, err := sender.SendOTP(ctx, notify.Message{Phone: phoneNumber, Code: code, TTL: s.store.TTL()})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	if err := s.store.Store(ctx, phoneNumber, code, source); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"phone":  phoneNumber,
		"source": source,
	}).Info("OTP issued")

	return &SendResult{
		Phone:     phoneNumber,
		Source:    source,
		ExpiresIn: s.store.TTL(),
	}, nil
}

// VerifyOTP checks a submitted code. A match consumes the record; a
// mismatch burns one attempt.
func (s *OTPService) VerifyOTP(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	prefix := "sms"
	if req.Source == models.SourceWhatsApp {
		prefix = "whatsapp"
	}
	if err := s.limiter.Allow(prefix+":verify:"+req.ClientIP, rule(s.limits.VerifyPerIP)); err != nil {
		return nil, err
	}

	phoneNumber, err := phone.Parse(req.Phone, s.cfg.DefaultCountryCode)
	if err != nil {
		return nil, err
	}

	var record *models.OTPRecord
	if req.Source != "" {
		record, err = s.store.GetBySource(ctx, phoneNumber, req.Source)
	} else {
		record, err = s.store.Get(ctx, phoneNumber)
	}
	if err != nil {
		return nil, err
	}

	if record.Expired {
		if record.Attempts >= s.store.MaxAttempts() {
			return nil, ErrTooManyAttempts
		}
		return nil, ErrOTPExpired
	}

	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(req.Code)) != 1 {
		updated, err := s.store.IncrementAttempts(ctx, phoneNumber)
		if err != nil {
			return nil, err
		}

		s.logger.WithFields(logrus.Fields{
			"phone":    phoneNumber,
			"attempts": updated.Attempts,
		}).Warn("Invalid OTP submitted")

		if updated.Attempts >= s.store.MaxAttempts() {
			return nil, ErrTooManyAttempts
		}
		if updated.Expired {
			return nil, ErrOTPExpired
		}
		return nil, &AttemptError{Remaining: s.store.MaxAttempts() - updated.Attempts}
	}

	if err := s.store.Clear(ctx, phoneNumber); err != nil {
		return nil, err
	}

	return &VerifyResult{Phone: phoneNumber, Source: record.Source}, nil
}

func generateRandomOTP(length int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n), nil
}
