package retry

import (
	"context"
	"math/rand"
	"time"
)

// JitterStrategy defines the jitter strategy for retry delays
type JitterStrategy string

const (
	JitterNone JitterStrategy = "NONE"
	JitterFull JitterStrategy = "FULL"
)

// Policy configures bounded retry with exponential backoff. The zero value
// retries nothing; use DefaultPolicy for sensible defaults.
type Policy struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	BackoffRate float64
	Jitter      JitterStrategy
	Timeout     time.Duration
}

// DefaultPolicy returns the policy used for best-effort side effects:
// three attempts with capped exponential backoff and a per-attempt timeout.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:  2,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		BackoffRate: 2.0,
		Jitter:      JitterFull,
		Timeout:     10 * time.Second,
	}
}

// Delay returns the backoff delay before the given retry attempt (0-indexed).
func (p Policy) Delay(attempt int) time.Duration {
	delay := p.BaseDelay
	rate := p.BackoffRate
	if rate <= 1 {
		rate = 2.0
	}
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * rate)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if p.Jitter == JitterFull && delay > 0 {
		delay = time.Duration(rand.Int63n(int64(delay)))
	}
	return delay
}

// Do runs fn until it succeeds, exhausts the retry budget, or hits a
// non-recoverable error. Each attempt gets its own timeout when the policy
// defines one.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Delay(attempt - 1)):
			}
		}
		attemptCtx := ctx
		var cancel context.CancelFunc
		if p.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		err = fn(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return nil
		}
		if !IsRecoverable(err) {
			return err
		}
	}
	return err
}
