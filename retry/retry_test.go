package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecoverableError(t *testing.T) {
	err := NewRecoverableError(errors.New("test error"))
	assert.True(t, IsRecoverable(err))
	assert.False(t, IsRecoverable(errors.New("test error")))
	assert.False(t, IsRecoverable(nil))
}

func TestNonRecoverableError(t *testing.T) {
	err := NewNonRecoverableError(errors.New("connection refused"))
	assert.False(t, IsRecoverable(err))
}

func TestRecoverableHeuristics(t *testing.T) {
	assert.True(t, IsRecoverable(errors.New("connection refused")))
	assert.True(t, IsRecoverable(errors.New("rate limit exceeded")))
	assert.True(t, IsRecoverable(context.DeadlineExceeded))
	assert.False(t, IsRecoverable(context.Canceled))
	assert.False(t, IsRecoverable(errors.New("invalid payload")))
}

func TestPolicyDo(t *testing.T) {
	ctx := context.Background()
	policy := Policy{MaxRetries: 3, BaseDelay: time.Millisecond * 20}

	count := 0
	err := policy.Do(ctx, func(ctx context.Context) error {
		count++
		return NewRecoverableError(errors.New("test error"))
	})
	assert.Error(t, err)
	assert.Equal(t, "test error", err.Error())
	assert.Equal(t, 4, count)
}

func TestPolicyDoZeroMaxRetries(t *testing.T) {
	ctx := context.Background()
	policy := Policy{MaxRetries: 0, BaseDelay: time.Millisecond * 20}

	count := 0
	err := policy.Do(ctx, func(ctx context.Context) error {
		count++
		return NewRecoverableError(errors.New("test error"))
	})
	assert.Error(t, err)
	assert.Equal(t, 1, count) // Should still try once even with 0 retries
}

func TestPolicyDoStopsOnNonRecoverable(t *testing.T) {
	ctx := context.Background()
	policy := Policy{MaxRetries: 5, BaseDelay: time.Millisecond}

	count := 0
	err := policy.Do(ctx, func(ctx context.Context) error {
		count++
		return NewNonRecoverableError(errors.New("fatal"))
	})
	assert.Error(t, err)
	assert.Equal(t, 1, count)
}

func TestPolicyDoEventualSuccess(t *testing.T) {
	ctx := context.Background()
	policy := Policy{MaxRetries: 3, BaseDelay: time.Millisecond}

	count := 0
	err := policy.Do(ctx, func(ctx context.Context) error {
		count++
		if count < 3 {
			return NewRecoverableError(errors.New("transient"))
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestPolicyDelayCapped(t *testing.T) {
	policy := Policy{
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    300 * time.Millisecond,
		BackoffRate: 2.0,
		Jitter:      JitterNone,
	}
	assert.Equal(t, 100*time.Millisecond, policy.Delay(0))
	assert.Equal(t, 200*time.Millisecond, policy.Delay(1))
	assert.Equal(t, 300*time.Millisecond, policy.Delay(2))
	assert.Equal(t, 300*time.Millisecond, policy.Delay(10))
}

func TestPolicyDoRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxRetries: 10, BaseDelay: 50 * time.Millisecond}

	count := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := policy.Do(ctx, func(ctx context.Context) error {
		count++
		return NewRecoverableError(errors.New("transient"))
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, count)
}
