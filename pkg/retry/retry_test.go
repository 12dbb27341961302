package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig() Config {
	return Config{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BackoffFactor: 2,
	}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		return errors.New("down")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max retry attempts (3) exceeded")
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	permanent := errors.New("bad request")
	cfg := fastConfig()
	cfg.Retryable = func(err error) bool { return !errors.Is(err, permanent) }

	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoWithLog_ReportsAttempts(t *testing.T) {
	var logged []int
	_ = DoWithLog(context.Background(), fastConfig(), "nlp", func() error {
		return errors.New("nope")
	}, func(attempt int, err error, next time.Duration) {
		logged = append(logged, attempt)
	})

	assert.Equal(t, []int{1, 2}, logged)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, fastConfig(), func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
