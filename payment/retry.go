package payment

import (
	"context"
	"time"
)

// RetryPolicy is a bounded fixed-delay retry schedule. Transactions can take
// a few seconds to become visible on the RPC node, so lookups are retried a
// fixed number of times; the schedule is the whole of the verifier's timeout
// policy.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
	// Sleep overrides the delay implementation, letting tests run the
	// schedule against a fake clock. Nil means real sleeping.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy mirrors the RPC visibility window seen in production:
// 4 attempts, 2 seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, Interval: 2 * time.Second}
}

// Wait pauses for one interval, honoring context cancellation.
func (p RetryPolicy) Wait(ctx context.Context) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, p.Interval)
	}
	timer := time.NewTimer(p.Interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
