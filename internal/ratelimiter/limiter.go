package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket over outbound provider sends, shared by all
// dispatcher workers. Burst is set equal to the rate so no extra burst
// capacity is allowed beyond the configured per-second maximum.
type Limiter struct {
	l *rate.Limiter
}

// New creates a Limiter allowing ratePerSec sends per second.
func New(ratePerSec int) *Limiter {
	return &Limiter{l: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)}
}

// Wait blocks until the limiter grants a token.
// Called by each worker immediately before invoking the provider.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.l.Wait(ctx)
}
