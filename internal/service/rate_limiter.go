package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Rule configures one limiter call site.
type Rule struct {
	Window      time.Duration
	Max         int
	MinInterval time.Duration
}

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type bucket struct {
	count         int
	windowStart   time.Time
	lastRequestAt time.Time
	// retention is how long the bucket still matters after its last request.
	retention time.Duration
}

// RateLimiter is a process-wide fixed-window counter with a minimum
// interval between requests per key. State is not persisted.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
	logger  *logrus.Logger
}

func NewRateLimiter(logger *logrus.Logger) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
		logger:  logger,
	}
}

// WithClock replaces the time source. Intended for tests.
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	l.now = now
	return l
}

// Limit pairs a key with the rule applied to it.
type Limit struct {
	Key  string
	Rule Rule
}

// Check records a request for key and reports whether it is allowed.
// Rejected requests do not move the window or the last-request mark.
func (l *RateLimiter) Check(key string, rule Rule) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	d := l.decide(key, rule, now)
	if d.Allowed {
		l.record(key, rule, now)
	}
	return d
}

// Allow is Check returning a *RateLimitError on rejection.
func (l *RateLimiter) Allow(key string, rule Rule) error {
	return l.AllowAll(Limit{Key: key, Rule: rule})
}

// AllowAll admits a request only if every limit allows it, and charges the
// buckets only then. On rejection it returns the *RateLimitError of the
// limit that blocks longest.
func (l *RateLimiter) AllowAll(limits ...Limit) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var blocked *RateLimitError
	for _, lim := range limits {
		d := l.decide(lim.Key, lim.Rule, now)
		if d.Allowed {
			continue
		}
		if blocked == nil || d.RetryAfter > blocked.RetryAfter {
			blocked = &RateLimitError{Key: lim.Key, RetryAfter: d.RetryAfter}
		}
	}
	if blocked != nil {
		return blocked
	}

	for _, lim := range limits {
		l.record(lim.Key, lim.Rule, now)
	}
	return nil
}

// decide must be called with mu held. It does not modify any bucket.
func (l *RateLimiter) decide(key string, rule Rule, now time.Time) Decision {
	b, ok := l.buckets[key]
	if !ok {
		return Decision{Allowed: true}
	}

	if elapsed := now.Sub(b.lastRequestAt); elapsed < rule.MinInterval {
		return Decision{RetryAfter: rule.MinInterval - elapsed}
	}

	if now.Sub(b.windowStart) < rule.Window && rule.Max > 0 && b.count >= rule.Max {
		return Decision{RetryAfter: b.windowStart.Add(rule.Window).Sub(now)}
	}
	return Decision{Allowed: true}
}

// record must be called with mu held, after decide allowed the request.
func (l *RateLimiter) record(key string, rule Rule, now time.Time) {
	retention := maxDuration(rule.Window, rule.MinInterval)
	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{count: 1, windowStart: now, lastRequestAt: now, retention: retention}
		return
	}

	if now.Sub(b.windowStart) < rule.Window {
		b.count++
	} else {
		b.count = 1
		b.windowStart = now
	}
	b.lastRequestAt = now
	b.retention = retention
}

// Sweep drops buckets that can no longer affect a decision and returns
// how many were removed.
func (l *RateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastRequestAt) >= b.retention {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (l *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				l.logger.WithField("removed", n).Debug("Swept idle rate limit buckets")
			}
		}
	}
}

func (l *RateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
