package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrOTPNotFound     = errors.New("no OTP found for this phone")
	ErrOTPExpired      = errors.New("OTP expired")
	ErrTooManyAttempts = errors.New("maximum attempts exceeded")
	ErrInvalidOTP      = errors.New("invalid OTP")
	ErrOTPAlreadySent  = errors.New("OTP already sent")
	ErrDeliveryFailed  = errors.New("failed to deliver OTP")
)

// RateLimitError is returned when a limiter rejects a request.
// Err optionally names the reason, e.g. ErrOTPAlreadySent.
type RateLimitError struct {
	Key        string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v for %s, retry after %s", e.Err, e.Key, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Key, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// RetryAfterSeconds rounds up so a client never retries early.
func RetryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	s := int(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}
