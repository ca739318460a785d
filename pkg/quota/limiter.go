// Package quota implements the per-client daily action quota for
// unauthenticated callers.
//
// Unlike the edge rate limiter, counts are durable (they survive restarts
// and are shared by every instance using the same Store), windows are UTC
// calendar days, and authenticated callers are exempt entirely.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMaxDaily is the default number of actions per identity per day.
const DefaultMaxDaily = 3

// ErrStoreUnavailable indicates the durable store could not be read or
// written. Callers must fail closed: no action is admitted on this error.
var ErrStoreUnavailable = errors.New("quota store unavailable")

// Caller identifies who is asking for quota.
type Caller struct {
	// Identity is the client key (usually the client IP).
	Identity string

	// Authenticated callers bypass the quota.
	Authenticated bool
}

// Result is the outcome of Consume or Status.
type Result struct {
	// Allowed reports whether the action may run (always true for Status
	// unless the quota is spent).
	Allowed bool `json:"allowed"`

	// Unlimited is true for authenticated callers; Remaining is meaningless then.
	Unlimited bool `json:"unlimited"`

	// Remaining is the number of actions left today, after this call.
	Remaining int `json:"remaining"`

	// Day is the UTC quota day the result applies to (empty when Unlimited).
	Day string `json:"day,omitempty"`

	// ResetAt is when Day ends and the quota refills (zero when Unlimited).
	ResetAt time.Time `json:"resetAt,omitzero"`

	// ResetIn is the time left until ResetAt at the moment of the decision.
	ResetIn time.Duration `json:"-"`
}

// RemainingClicks returns Remaining, or nil for unlimited callers.
func (r Result) RemainingClicks() *int {
	if r.Unlimited {
		return nil
	}
	n := r.Remaining
	return &n
}

// Config holds limiter configuration.
type Config struct {
	// MaxDaily is the number of actions per identity per UTC day
	MaxDaily int

	// Clock returns the current time (default: time.Now)
	Clock func() time.Time
}

// DefaultConfig returns the default configuration: 3 actions per day.
func DefaultConfig() Config {
	return Config{
		MaxDaily: DefaultMaxDaily,
		Clock:    time.Now,
	}
}

// Limiter enforces the daily quota against a durable Store.
type Limiter struct {
	store  Store
	max    int
	now    func() time.Time
	logger zerolog.Logger
}

// NewLimiter creates a limiter.
func NewLimiter(store Store, cfg Config, logger zerolog.Logger) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("quota store is required")
	}
	if cfg.MaxDaily <= 0 {
		return nil, fmt.Errorf("max daily must be > 0 (got %d)", cfg.MaxDaily)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Limiter{
		store:  store,
		max:    cfg.MaxDaily,
		now:    cfg.Clock,
		logger: logger,
	}, nil
}

// MaxDaily returns the configured daily maximum.
func (l *Limiter) MaxDaily() int {
	return l.max
}

// Consume takes one action from the caller's quota for today.
//
// Authenticated callers are admitted without touching the store. For others
// the current count is read first so an exhausted caller causes no write;
// the increment itself is conditional, so concurrent calls never admit more
// than MaxDaily actions per identity and day. Store failures return
// ErrStoreUnavailable and admit nothing.
func (l *Limiter) Consume(ctx context.Context, caller Caller) (Result, error) {
	if caller.Authenticated {
		quotaRequestsTotal.WithLabelValues("bypassed").Inc()
		return Result{Allowed: true, Unlimited: true}, nil
	}

	now := l.now()
	day := Day(now)

	count, err := l.store.Count(ctx, caller.Identity, day)
	if err != nil {
		quotaStoreErrorsTotal.WithLabelValues("count").Inc()
		l.logger.Error().Err(err).Str("identity", caller.Identity).Msg("Quota lookup failed")
		return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if count >= l.max {
		return l.reject(caller.Identity, now, count), nil
	}

	newCount, ok, err := l.store.IncrementIfBelow(ctx, caller.Identity, day, l.max)
	if err != nil {
		quotaStoreErrorsTotal.WithLabelValues("increment").Inc()
		l.logger.Error().Err(err).Str("identity", caller.Identity).Msg("Quota increment failed")
		return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		// Another request took the last slot between the read and the write.
		return l.reject(caller.Identity, now, newCount), nil
	}

	quotaRequestsTotal.WithLabelValues("allowed").Inc()
	l.logger.Debug().
		Str("identity", caller.Identity).
		Str("day", day).
		Int("count", newCount).
		Msg("Quota consumed")

	return windowResult(now, true, remaining(l.max, newCount)), nil
}

// windowResult builds a result for the quota day containing now.
func windowResult(now time.Time, allowed bool, left int) Result {
	reset := NextReset(now)
	return Result{
		Allowed:   allowed,
		Remaining: left,
		Day:       Day(now),
		ResetAt:   reset,
		ResetIn:   reset.Sub(now),
	}
}

func (l *Limiter) reject(identity string, now time.Time, count int) Result {
	day := Day(now)
	quotaRequestsTotal.WithLabelValues("rejected").Inc()
	l.logger.Info().
		Str("identity", identity).
		Str("day", day).
		Int("count", count).
		Msg("Daily quota exhausted")
	return windowResult(now, false, 0)
}

// Status reports the caller's remaining quota without consuming it.
// Authenticated callers are reported as unlimited without a store read.
func (l *Limiter) Status(ctx context.Context, caller Caller) (Result, error) {
	if caller.Authenticated {
		return Result{Allowed: true, Unlimited: true}, nil
	}

	now := l.now()
	count, err := l.store.Count(ctx, caller.Identity, Day(now))
	if err != nil {
		quotaStoreErrorsTotal.WithLabelValues("count").Inc()
		return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	left := remaining(l.max, count)
	return windowResult(now, left > 0, left), nil
}

func remaining(max, count int) int {
	if count >= max {
		return 0
	}
	return max - count
}
