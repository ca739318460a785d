package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Status describes how a read was served.
type Status string

const (
	// StatusHit means the value came from the cache.
	StatusHit Status = "HIT"

	// StatusMiss means the value was computed and stored.
	StatusMiss Status = "MISS"

	// StatusBypass means the cache was deliberately not consulted.
	StatusBypass Status = "BYPASS"
)

// ComputeFunc produces the fresh serialized value for a cache miss.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// Fetch returns the cached value for key, or computes, stores and returns it.
//
// Concurrent misses on the same key share a single compute call. The shared
// compute is detached from the cancellation of whichever caller started it;
// each caller stops waiting when its own ctx ends. Flights are keyed by the
// invalidation generation, so a read that starts after InvalidatePrefix never
// joins a compute that began before it. A value whose compute overlapped an
// invalidation is returned to the callers of that flight but not stored.
// Compute errors are returned as-is and nothing is cached.
func (s *Store) Fetch(ctx context.Context, key Key, ttl time.Duration, compute ComputeFunc) ([]byte, Status, error) {
	k := key.String()

	if value, ok := s.Get(k); ok {
		CacheHits.WithLabelValues(key.Namespace).Inc()
		s.logger.Debug().Str("key", k).Msg("Cache hit")
		return value, StatusHit, nil
	}

	CacheMisses.WithLabelValues(key.Namespace).Inc()
	gen := s.generation.Load()
	flightKey := k + "#" + strconv.FormatUint(gen, 10)
	computeCtx := context.WithoutCancel(ctx)

	ch := s.flights.DoChan(flightKey, func() (any, error) {
		value, err := compute(computeCtx)
		if err != nil {
			return nil, err
		}
		s.set(k, value, ttl, gen, true)
		return value, nil
	})

	select {
	case <-ctx.Done():
		return nil, StatusMiss, fmt.Errorf("fetch %s: %w", k, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			CacheErrors.WithLabelValues("compute").Inc()
			return nil, StatusMiss, fmt.Errorf("compute %s: %w", k, res.Err)
		}
		s.logger.Debug().Str("key", k).Dur("ttl", ttl).Msg("Cache miss")
		return res.Val.([]byte), StatusMiss, nil
	}
}

// Bypass computes a value without consulting or populating the cache. It is
// used for free-text search reads, whose key space is unbounded.
func Bypass(ctx context.Context, namespace string, compute ComputeFunc) ([]byte, Status, error) {
	CacheBypasses.WithLabelValues(namespace).Inc()

	value, err := compute(ctx)
	if err != nil {
		CacheErrors.WithLabelValues("compute").Inc()
		return nil, StatusBypass, fmt.Errorf("compute %s: %w", namespace, err)
	}
	return value, StatusBypass, nil
}
