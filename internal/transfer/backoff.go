package transfer

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds automatic resubmission after transient failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy makes three attempts with jittered exponential backoff.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}

func (p RetryPolicy) attempts() int {
	return max(p.MaxAttempts, 1)
}

// delay returns a full-jitter delay in [0, min(MaxDelay, BaseDelay*2^attempt)).
func (p RetryPolicy) delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	ceiling := p.BaseDelay
	for i := 0; i < attempt; i++ {
		if (p.MaxDelay > 0 && ceiling >= p.MaxDelay) || ceiling > math.MaxInt64/2 {
			break
		}
		ceiling *= 2
	}
	if p.MaxDelay > 0 {
		ceiling = min(ceiling, p.MaxDelay)
	}
	return time.Duration(rand.Int64N(int64(ceiling)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
