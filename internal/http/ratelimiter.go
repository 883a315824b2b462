package httpapi

import (
	"time"

	"golang.org/x/time/rate"
)

// CommandLimiter admits up to limit calls at once and refills one call every
// window/limit. It wraps a token bucket so bursts of operator commands drain it quickly.
type CommandLimiter struct {
	bucket *rate.Limiter
	now    func() time.Time
}

// NewCommandLimiter constructs a limiter allowing limit calls per window. A non-positive
// window or limit disables limiting.
func NewCommandLimiter(window time.Duration, limit int, timeSource func() time.Time) *CommandLimiter {
	if window <= 0 || limit <= 0 {
		return &CommandLimiter{}
	}
	if timeSource == nil {
		timeSource = time.Now
	}
	return &CommandLimiter{
		bucket: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit),
		now:    timeSource,
	}
}

// Allow reports whether the caller may proceed and spends a token when it may.
func (l *CommandLimiter) Allow() bool {
	if l == nil || l.bucket == nil {
		return true
	}
	return l.bucket.AllowN(l.now(), 1)
}

// Remaining reports how many whole calls the bucket would admit right now.
func (l *CommandLimiter) Remaining() int {
	if l == nil || l.bucket == nil {
		return -1
	}
	return int(l.bucket.TokensAt(l.now()))
}
