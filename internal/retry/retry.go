// Package retry runs startup operations with exponential backoff, so the
// service can come up before its database or Redis is accepting connections.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	// ErrExhausted is returned when every attempt failed.
	ErrExhausted = errors.New("retry attempts exhausted")

	// ErrCancelled is returned when the context ends during a backoff wait.
	ErrCancelled = errors.New("context cancelled")
)

var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cms_startup_retries_total",
		Help: "Total number of startup retry attempts by operation",
	}, []string{"operation"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cms_startup_retry_exhausted_total",
		Help: "Total number of startup operations that failed after all attempts",
	}, []string{"operation"})
)

// Config holds retry configuration.
type Config struct {
	// MaxAttempts is the number of attempts, including the first one.
	MaxAttempts int

	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration

	// Multiplier grows the backoff after each failed attempt.
	Multiplier float64
}

// DefaultConfig returns 5 attempts starting at 1s, capped at 10s.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
	}
}

// Do calls fn until it succeeds, the attempts run out or ctx ends.
// Waits carry ±20% jitter.
func Do(ctx context.Context, operation string, cfg Config, logger zerolog.Logger, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}

	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("operation", operation).
					Int("attempt", attempt).
					Msg("Startup operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if attempt == cfg.MaxAttempts {
			break
		}

		retriesTotal.WithLabelValues(operation).Inc()

		wait := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		logger.Warn().
			Err(err).
			Str("operation", operation).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Startup operation failed, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w: %v", operation, ErrCancelled, ctx.Err())
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * cfg.Multiplier)
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	retryExhaustedTotal.WithLabelValues(operation).Inc()
	return fmt.Errorf("%s: %w after %d attempts: %w", operation, ErrExhausted, cfg.MaxAttempts, lastErr)
}
