package errors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"mathviz/internal/logging"
)

// RetryConfig bounds how a transient failure is retried. MaxAttempts counts
// retries after the first call, so zero means a single call.
type RetryConfig struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64 // fraction of the delay randomized in both directions
}

// DefaultRetryConfig is used for model and embedding calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second, JitterFactor: 0.25}
}

// Retry calls fn until it succeeds, returns a non-transient error, or the
// attempts run out.
func Retry(ctx context.Context, config RetryConfig, fn func(ctx context.Context) error, logger logging.Logger) error {
	_, err := RetryWithResult(ctx, config, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, logger)
	return err
}

// RetryWithResult is Retry for calls that produce a value. A backend
// Retry-After hint replaces the computed backoff when it is longer.
func RetryWithResult[T any](ctx context.Context, config RetryConfig, fn func(ctx context.Context) (T, error), logger logging.Logger) (T, error) {
	logger = logging.OrNop(logger)
	var zero T

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("context cancelled: %w", err)
		}
		result, err := fn(ctx)
		switch {
		case err == nil:
			if attempt > 0 {
				logger.Info("call succeeded on attempt %d", attempt+1)
			}
			return result, nil
		case !IsTransient(err):
			return zero, err
		case attempt >= config.MaxAttempts:
			logger.Warn("giving up after %d attempt(s): %v", attempt+1, err)
			return zero, fmt.Errorf("max retries exceeded: %w", err)
		}

		delay := backoff(attempt, config, err)
		logger.Debug("attempt %d failed (%v); retrying in %v", attempt+1, err, delay)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}
}

// backoff doubles BaseDelay per attempt, applies jitter and caps the result
// at MaxDelay.
func backoff(attempt int, config RetryConfig, cause error) time.Duration {
	delay := config.BaseDelay
	for i := 0; i < attempt && (config.MaxDelay <= 0 || delay < config.MaxDelay); i++ {
		delay *= 2
	}
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	if config.JitterFactor > 0 {
		spread := float64(delay) * config.JitterFactor
		delay += time.Duration((rand.Float64()*2 - 1) * spread)
	}

	var transient *TransientError
	if errors.As(cause, &transient) && transient.RetryAfter > 0 {
		if hint := time.Duration(transient.RetryAfter) * time.Second; hint > delay {
			delay = hint
		}
	}
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	if delay < 0 {
		delay = config.BaseDelay
	}
	return delay
}
