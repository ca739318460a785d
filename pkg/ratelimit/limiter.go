package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
)

const defaultShards = 16

// Config holds limiter configuration.
type Config struct {
	// MaxRequests is the number of requests admitted per window
	MaxRequests int

	// Window is the window length, measured from a client's first request
	Window time.Duration

	// Shards is the number of lock partitions (default: 16)
	Shards int

	// Clock returns the current time (default: time.Now)
	Clock func() time.Time
}

// DefaultConfig returns the default configuration: 100 requests per minute.
func DefaultConfig() Config {
	return Config{
		MaxRequests: DefaultMaxRequests,
		Window:      DefaultWindow,
		Shards:      defaultShards,
		Clock:       time.Now,
	}
}

// Limiter admits at most MaxRequests per Window for each client identity.
//
// The window opens on a client's first request and closes Window later;
// the next request after that opens a fresh window. Counters live in process
// memory only and reset on restart.
type Limiter struct {
	max    int
	window time.Duration
	shards []*counterShard
	now    func() time.Time
	logger zerolog.Logger
}

type counterShard struct {
	mu       sync.Mutex
	counters map[string]*Counter
}

// New creates a limiter.
func New(cfg Config, logger zerolog.Logger) (*Limiter, error) {
	if cfg.MaxRequests <= 0 {
		return nil, fmt.Errorf("max requests must be > 0 (got %d)", cfg.MaxRequests)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("window must be > 0 (got %s)", cfg.Window)
	}
	if cfg.Shards <= 0 {
		cfg.Shards = defaultShards
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	shards := make([]*counterShard, cfg.Shards)
	for i := range shards {
		shards[i] = &counterShard{counters: make(map[string]*Counter)}
	}

	return &Limiter{
		max:    cfg.MaxRequests,
		window: cfg.Window,
		shards: shards,
		now:    cfg.Clock,
		logger: logger,
	}, nil
}

// Limit returns the configured maximum per window.
func (l *Limiter) Limit() int {
	return l.max
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}

func (l *Limiter) shardFor(identity string) *counterShard {
	return l.shards[xxhash.Sum64String(identity)%uint64(len(l.shards))]
}

// Check records a request from identity and decides whether it is admitted.
//
// A rejected request is not counted and does not move the window, so a
// client hammering an exhausted window is released on schedule.
func (l *Limiter) Check(identity string) Decision {
	now := l.now()
	sh := l.shardFor(identity)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	c, ok := sh.counters[identity]
	switch c.StateAt(now, l.max) {
	case StateUnthrottled:
		if !ok {
			rateLimitClients.Inc()
		}
		c = &Counter{Identity: identity, Count: 1, ResetAt: now.Add(l.window)}
		sh.counters[identity] = c
		rateLimitRequestsTotal.WithLabelValues("allowed").Inc()
		return Decision{Allowed: true, Limit: l.max, Remaining: l.max - 1, ResetAt: c.ResetAt}

	case StateCounting:
		c.Count++
		rateLimitRequestsTotal.WithLabelValues("allowed").Inc()
		return Decision{Allowed: true, Limit: l.max, Remaining: l.max - c.Count, ResetAt: c.ResetAt}

	default:
		rateLimitRequestsTotal.WithLabelValues("rejected").Inc()
		l.logger.Warn().
			Str("identity", identity).
			Int("count", c.Count).
			Dur("reset_in", c.TimeUntilReset(now)).
			Msg("Rate limit exceeded - rejecting request")
		return Decision{Allowed: false, Limit: l.max, Remaining: 0, ResetAt: c.ResetAt}
	}
}

// peek returns a copy of the live counter for identity without recording a
// request. The second result is false if no live window exists.
func (l *Limiter) peek(identity string) (Counter, bool) {
	now := l.now()
	sh := l.shardFor(identity)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	c, ok := sh.counters[identity]
	if !ok || c.IsElapsed(now) {
		return Counter{}, false
	}
	return *c, true
}

// size returns the number of tracked counters, including elapsed ones that
// have not been swept yet.
func (l *Limiter) size() int {
	n := 0
	for _, sh := range l.shards {
		sh.mu.Lock()
		n += len(sh.counters)
		sh.mu.Unlock()
	}
	return n
}

// Sweep removes counters whose window has closed and returns how many were
// removed. Only one shard is locked at a time.
func (l *Limiter) Sweep() int {
	removed := 0
	for _, sh := range l.shards {
		now := l.now()
		sh.mu.Lock()
		for identity, c := range sh.counters {
			if c.IsElapsed(now) {
				delete(sh.counters, identity)
				removed++
			}
		}
		sh.mu.Unlock()
	}

	rateLimitClients.Sub(float64(removed))
	return removed
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
// It always returns nil so it can run inside an errgroup.
func (l *Limiter) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.logger.Info().Dur("interval", interval).Msg("Rate limit sweeper started")

	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("Rate limit sweeper stopped")
			return nil
		case <-ticker.C:
			if removed := l.Sweep(); removed > 0 {
				l.logger.Debug().Int("removed", removed).Msg("Elapsed rate limit windows swept")
			}
		}
	}
}
