package ratelimit

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

const (
	defaultBaseDelay   = 1000 * time.Millisecond
	defaultMaxDelay    = 30 * time.Second
	defaultMaxAttempts = 3
)

// Limiter applies exponential backoff with jitter around provider calls.
// One Limiter is created per refresh run; it carries no cross-run state.
type Limiter struct {
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	MaxRetryAttempts int
}

func New(baseDelay time.Duration, maxAttempts int) *Limiter {
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Limiter{
		BaseDelay:        baseDelay,
		MaxDelay:         defaultMaxDelay,
		MaxRetryAttempts: maxAttempts,
	}
}

// delayFor computes the backoff before retry number attempt (1-based):
// min(base * 2^(attempt-1) + uniform[0, base/2), MaxDelay).
func (l *Limiter) delayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := float64(l.BaseDelay) * math.Pow(2, float64(attempt-1))
	jitter := rand.Float64() * float64(l.BaseDelay) / 2
	d := time.Duration(backoff + jitter)
	if d > l.MaxDelay {
		d = l.MaxDelay
	}
	return d
}

// ExecuteWithRetry runs op, retrying transient failures with escalating
// backoff until the attempt cap is reached. Cancellation is never retried.
func ExecuteWithRetry[T any](ctx context.Context, l *Limiter, op func(context.Context) (T, error), isTransient func(error) bool) (T, error) {
	var zero T
	attempt := 1
	consecutiveErrors := 0
	for {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if isCanceled(ctx, err) {
			return zero, err
		}
		if isTransient == nil || !isTransient(err) {
			return zero, err
		}
		attempt++
		consecutiveErrors++
		if attempt > l.MaxRetryAttempts || consecutiveErrors > l.MaxRetryAttempts {
			return zero, err
		}
		if serr := Sleep(ctx, l.delayFor(consecutiveErrors)); serr != nil {
			return zero, serr
		}
	}
}

// ExecuteWithDelay waits the base delay, then runs op once.
func (l *Limiter) ExecuteWithDelay(ctx context.Context, op func(context.Context) error) error {
	if err := Sleep(ctx, l.BaseDelay); err != nil {
		return err
	}
	return op(ctx)
}

// DelayAfterError pauses proportionally to a consecutive-error streak so a
// struggling provider is slowed down, not stopped.
func (l *Limiter) DelayAfterError(ctx context.Context, consecutiveErrorCount int) error {
	return Sleep(ctx, l.delayFor(consecutiveErrorCount))
}

// Sleep blocks for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isCanceled(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
