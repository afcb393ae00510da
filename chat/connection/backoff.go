package connection

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
)

// RetryPolicy controls reconnection after a dropped connection.
type RetryPolicy struct {
	// Base is the delay before the second attempt; each later attempt doubles it.
	Base time.Duration
	// Max caps the delay.
	Max time.Duration
	// MaxAttempts bounds the attempts per drop. Zero means no bound.
	MaxAttempts int
}

// DefaultRetryPolicy returns base 1s, cap 30s, unbounded attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base: time.Second,
		Max:  30 * time.Second,
	}
}

// Delay returns the wait before the given 1-based attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	b := &backoff.Backoff{
		Min:    p.Base,
		Max:    p.Max,
		Factor: 2,
	}
	return b.ForAttempt(float64(attempt - 2))
}

// allows reports whether attempt is within MaxAttempts.
func (p RetryPolicy) allows(attempt int) bool {
	return p.MaxAttempts <= 0 || attempt <= p.MaxAttempts
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
