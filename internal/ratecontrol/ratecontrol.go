package ratecontrol

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/pminervini/deep-research-mcp/internal/metrics"
)

// Limiter is a token bucket sized in tokens per minute. A new Limiter starts
// full, and refill plus debit happen atomically inside rate.Limiter.
type Limiter struct {
	capacity int
	limiter  *rate.Limiter
}

// New returns a bucket holding tokensPerMinute tokens that refills at
// tokensPerMinute/60 tokens per second. A non-positive rate disables
// limiting.
func New(tokensPerMinute int) *Limiter {
	return NewWithRefill(tokensPerMinute, float64(tokensPerMinute)/60.0)
}

// NewWithRefill allows a refill rate that is not derived from capacity.
func NewWithRefill(capacity int, perSecond float64) *Limiter {
	if capacity <= 0 || perSecond <= 0 {
		return &Limiter{capacity: 0, limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	return &Limiter{
		capacity: capacity,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), capacity),
	}
}

// Capacity returns the bucket size, 0 when unlimited.
func (l *Limiter) Capacity() int { return l.capacity }

// RefillRate returns tokens added per second.
func (l *Limiter) RefillRate() float64 { return float64(l.limiter.Limit()) }

// Acquire debits n tokens if available and reports whether it did.
func (l *Limiter) Acquire(n int) bool {
	if l.limiter.AllowN(time.Now(), n) {
		return true
	}
	metrics.RateLimitRejections.Inc()
	return false
}

// WaitAndAcquire blocks until n tokens are available or ctx is done.
func (l *Limiter) WaitAndAcquire(ctx context.Context, n int) error {
	if l.capacity > 0 && n > l.capacity {
		return fmt.Errorf("requested %d tokens exceeds bucket capacity %d", n, l.capacity)
	}
	start := time.Now()
	if err := l.limiter.WaitN(ctx, n); err != nil {
		return err
	}
	metrics.RateLimitWaitSeconds.Observe(time.Since(start).Seconds())
	return nil
}

// Available returns the current token count, refilled up to now.
func (l *Limiter) Available() float64 {
	return l.limiter.TokensAt(time.Now())
}
