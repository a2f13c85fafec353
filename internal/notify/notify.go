// Package notify delivers one-time codes over SMS and WhatsApp.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qcom/recruitauth/internal/models"
	"github.com/sirupsen/logrus"
)

// Message is one code delivery.
type Message struct {
	Phone string
	Code  string
	TTL   time.Duration
}

// Text renders the user-facing body.
func (m Message) Text() string {
	minutes := int(m.TTL.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("رمز التحقق الخاص بك هو: %s. صالح لمدة %d دقائق. لا تشاركه مع أي شخص.", m.Code, minutes)
}

// Sender delivers a code and reports the channel that carried it.
type Sender interface {
	SendOTP(ctx context.Context, msg Message) (models.OTPSource, error)
}

// Fallback tries each sender in order until one succeeds.
type Fallback struct {
	senders []Sender
	logger  *logrus.Logger
}

func NewFallback(logger *logrus.Logger, senders ...Sender) *Fallback {
	return &Fallback{senders: senders, logger: logger}
}

func (f *Fallback) SendOTP(ctx context.Context, msg Message) (models.OTPSource, error) {
	var errs []error
	for i, s := range f.senders {
		source, err := s.SendOTP(ctx, msg)
		if err == nil {
			return source, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
		if i < len(f.senders)-1 {
			f.logger.WithError(err).WithField("phone", msg.Phone).Warn("OTP delivery failed, falling back to next channel")
		}
	}
	if len(errs) == 0 {
		return "", errors.New("no senders configured")
	}
	return "", errors.Join(errs...)
}

// Console logs codes instead of sending them. Development only.
type Console struct {
	source models.OTPSource
	logger *logrus.Logger
}

func NewConsole(source models.OTPSource, logger *logrus.Logger) *Console {
	return &Console{source: source, logger: logger}
}

func (c *Console) SendOTP(_ context.Context, msg Message) (models.OTPSource, error) {
	c.logger.WithFields(logrus.Fields{
		"phone":   msg.Phone,
		"otp":     msg.Code,
		"channel": c.source,
	}).Info("OTP generated (logged for development)")
	return c.source, nil
}
