// Package tts talks to the speech synthesis provider.
package tts

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPermanent marks provider errors that retrying cannot fix (bad voice, auth)
var ErrPermanent = errors.New("permanent synthesis error")

// RetryConfig configures exponential backoff
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Retry runs fn until it succeeds, returns an ErrPermanent error, attempts
// run out or ctx is done.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 1
	}
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(attempt)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, ErrPermanent) {
			return zero, err
		}
		lastErr = err

		if attempt < cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		}
	}

	return zero, fmt.Errorf("failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
