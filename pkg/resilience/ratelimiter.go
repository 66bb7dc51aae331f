package resilience

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

var ErrRateLimited = errors.New("rate limited")

// LimiterOpts configures a token bucket. Rate <= 0 disables limiting.
type LimiterOpts struct {
	Rate  float64 // tokens per second
	Burst int     // bucket capacity
}

// Limiter is a token bucket shared by concurrent callers.
type Limiter struct {
	rl *rate.Limiter
}

// NewLimiter creates a Limiter. Burst defaults to 1.
func NewLimiter(opts LimiterOpts) *Limiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	limit := rate.Limit(opts.Rate)
	if opts.Rate <= 0 {
		limit = rate.Inf
	}
	return &Limiter{rl: rate.NewLimiter(limit, opts.Burst)}
}

// Allow takes a token if one is available.
func (l *Limiter) Allow() bool { return l.rl.Allow() }

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error { return l.rl.Wait(ctx) }

// Delay reports how long until the next token, without taking it.
func (l *Limiter) Delay() time.Duration {
	now := time.Now()
	r := l.rl.ReserveN(now, 1)
	if !r.OK() {
		return time.Duration(1<<63 - 1)
	}
	d := r.DelayFrom(now)
	r.CancelAt(now)
	return d
}
