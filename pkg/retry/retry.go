package retry

import (
	"context"
	"fmt"
	"time"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	MaxTotalTimeout time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Nil retries every error.
	Retryable func(error) bool
}

// DefaultConfig returns a default retry configuration with 1 minute max timeout
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     10,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		BackoffFactor:   2.0,
		MaxTotalTimeout: 60 * time.Second,
	}
}

// CollaboratorConfig is tuned for short calls to local HTTP collaborators.
func CollaboratorConfig() Config {
	return Config{
		MaxAttempts:     3,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		BackoffFactor:   2.0,
		MaxTotalTimeout: 2 * time.Minute,
	}
}

// LogFunc is called before sleeping between attempts.
type LogFunc func(attempt int, err error, nextDelay time.Duration)

// Do executes the given function with exponential backoff retry logic
func Do(ctx context.Context, cfg Config, fn func() error) error {
	return DoWithLog(ctx, cfg, "", fn, nil)
}

// DoWithLog executes the function with retry and logs each attempt
func DoWithLog(ctx context.Context, cfg Config, serviceName string, fn func() error, logFn LogFunc) error {
	if cfg.MaxTotalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.MaxTotalTimeout)
		defer cancel()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	prefix := ""
	if serviceName != "" {
		prefix = serviceName + ": "
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%sretry aborted after %d attempts: %w (last error: %v)", prefix, attempt-1, err, lastErr)
			}
			return fmt.Errorf("%sretry aborted: %w", prefix, err)
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			return fmt.Errorf("%smax retry attempts (%d) exceeded: %w", prefix, cfg.MaxAttempts, lastErr)
		}

		if logFn != nil {
			logFn(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%sretry aborted after %d attempts: %w (last error: %v)", prefix, attempt, ctx.Err(), lastErr)
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return fmt.Errorf("%smax retry attempts exceeded: %w", prefix, lastErr)
}
