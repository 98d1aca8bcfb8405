package llmgateway

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/sreforge/debate-engine/internal/incident"
)

// RetryConfig mirrors incident.RetryProfile in the shape the backoff
// calculator needs, grounded on the teacher's RetryConfig
// (internal/llm/retry.go).
type RetryConfig struct {
	MaxRetries    int
	BackoffBase   time.Duration
	JitterFactor  float64
	FatalOnExhaust bool
}

// FromProfile adapts a session's per-phase incident.RetryProfile into a
// RetryConfig.
func FromProfile(p incident.RetryProfile) RetryConfig {
	return RetryConfig{
		MaxRetries:     p.MaxRetries,
		BackoffBase:    time.Duration(p.BackoffBaseMs) * time.Millisecond,
		JitterFactor:   p.Jitter,
		FatalOnExhaust: p.FatalOnExhaust,
	}
}

// addJitter adds symmetric randomness to a duration, same shape as the
// teacher's addJitter (internal/llm/retry.go); math/rand is fine here,
// this is scheduling jitter, not a security value.
func addJitter(d time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return d
	}
	jitterRange := float64(d) * factor
	jitter := (rand.Float64() - 0.5) * 2 * jitterRange
	result := time.Duration(float64(d) + jitter)
	if result < 0 {
		return 0
	}
	return result
}

// calculateBackoff computes the delay before the given retry attempt
// (1-indexed), grounded on the teacher's CalculateBackoff.
func calculateBackoff(attempt int, cfg RetryConfig) time.Duration {
	if attempt <= 0 {
		return addJitter(cfg.BackoffBase, cfg.JitterFactor)
	}
	delay := float64(cfg.BackoffBase) * math.Pow(2, float64(attempt))
	return addJitter(time.Duration(delay), cfg.JitterFactor)
}

// ErrRetriesExhausted wraps the last error once all MaxRetries+1
// attempts have failed.
var ErrRetriesExhausted = errors.New("llmgateway: retries exhausted")

// retryableFunc is one attempt at a model call.
type retryableFunc func(ctx context.Context, attempt int) (Response, error)

// executeWithRetry runs fn up to cfg.MaxRetries+1 times with exponential
// backoff and jitter between attempts, grounded on the teacher's
// ExecuteWithRetry. onRetry, if non-nil, is invoked after every failed
// attempt that will be retried — used by Gateway to bump the
// retry_total metric and log the failed attempt.
func executeWithRetry(ctx context.Context, cfg RetryConfig, fn retryableFunc, onRetry func(attempt int, err error)) (Response, error) {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		default:
		}

		resp, err := fn(ctx, attempt)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Response{}, err
		}

		if attempt >= cfg.MaxRetries {
			break
		}

		if onRetry != nil {
			onRetry(attempt, err)
		}

		delay := calculateBackoff(attempt+1, cfg)
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	return Response{}, errors.Join(ErrRetriesExhausted, lastErr)
}
