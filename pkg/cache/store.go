package cache

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultShards is the number of independently locked partitions of a Store.
const DefaultShards = 16

// Config holds Store configuration.
type Config struct {
	// Shards is the number of lock partitions (default: DefaultShards)
	Shards int

	// Clock returns the current time (default: time.Now)
	Clock func() time.Time
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		Shards: DefaultShards,
		Clock:  time.Now,
	}
}

// Stats is a point-in-time view of the store, for observability only.
type Stats struct {
	Size int      `json:"size"`
	Keys []string `json:"keys"`
}

// Store is a process-local key/value cache with per-entry TTL.
//
// Expiry is lazy: an expired entry is purged by the next Get that touches it,
// by InvalidatePrefix, or by Sweep. State is not persisted and not shared
// between processes.
type Store struct {
	shards []*shard
	now    func() time.Time
	logger zerolog.Logger

	// generation is bumped by every explicit removal; read-through results
	// computed under an older generation are not stored.
	generation atomic.Uint64
	flights    singleflight.Group
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewStore creates an empty store.
func NewStore(cfg Config, logger zerolog.Logger) *Store {
	if cfg.Shards <= 0 {
		cfg.Shards = DefaultShards
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	shards := make([]*shard, cfg.Shards)
	for i := range shards {
		shards[i] = &shard{entries: make(map[string]*Entry)}
	}

	return &Store{
		shards: shards,
		now:    cfg.Clock,
		logger: logger,
	}
}

func (s *Store) shardFor(key string) *shard {
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

// Get returns the value stored at key if it is present and not expired.
// An expired entry is removed as a side effect. The returned slice must not
// be modified.
func (s *Store) Get(key string) ([]byte, bool) {
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, ok := sh.entries[key]
	if !ok {
		return nil, false
	}

	if entry.IsExpired(s.now()) {
		delete(sh.entries, key)
		CacheEntries.Dec()
		CacheEvictions.WithLabelValues("expired").Inc()
		return nil, false
	}

	return entry.Value, true
}

// Set stores a copy of value at key, replacing any previous entry. The entry
// expires ttl after now. A non-positive ttl stores nothing and removes any
// previous entry.
func (s *Store) Set(key string, value []byte, ttl time.Duration) {
	s.set(key, value, ttl, 0, false)
}

// set stores the entry; when checkGen is true the write is dropped if a
// removal happened after gen was observed.
func (s *Store) set(key string, value []byte, ttl time.Duration, gen uint64, checkGen bool) bool {
	if ttl <= 0 {
		s.Delete(key)
		return false
	}

	now := s.now()
	entry := &Entry{
		Value:     bytes.Clone(value),
		ExpiresAt: now.Add(ttl),
		CachedAt:  now,
	}

	sh := s.shardFor(key)
	sh.mu.Lock()
	if checkGen && s.generation.Load() != gen {
		sh.mu.Unlock()
		s.logger.Debug().Str("key", key).Msg("Cache entry dropped, invalidated during compute")
		return false
	}
	if _, exists := sh.entries[key]; !exists {
		CacheEntries.Inc()
	}
	sh.entries[key] = entry
	sh.mu.Unlock()

	s.logger.Debug().Str("key", key).Dur("ttl", ttl).Msg("Cache entry stored")
	return true
}

// Delete removes the entry at key. It is a no-op if no entry exists.
func (s *Store) Delete(key string) {
	s.generation.Add(1)

	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.entries[key]; ok {
		delete(sh.entries, key)
		CacheEntries.Dec()
		CacheEvictions.WithLabelValues("delete").Inc()
	}
}

// InvalidatePrefix removes every entry whose key starts with prefix and
// returns how many were removed. Shards are locked one at a time.
func (s *Store) InvalidatePrefix(prefix string) int {
	s.generation.Add(1)

	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key := range sh.entries {
			if strings.HasPrefix(key, prefix) {
				delete(sh.entries, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}

	CacheEntries.Sub(float64(removed))
	CacheEvictions.WithLabelValues("invalidate").Add(float64(removed))

	s.logger.Debug().
		Str("prefix", prefix).
		Int("removed", removed).
		Msg("Cache prefix invalidated")

	return removed
}

// Clear removes all entries.
func (s *Store) Clear() {
	s.generation.Add(1)

	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		removed += len(sh.entries)
		sh.entries = make(map[string]*Entry)
		sh.mu.Unlock()
	}

	CacheEntries.Sub(float64(removed))
	CacheEvictions.WithLabelValues("clear").Add(float64(removed))
}

// Stats returns the number of stored entries and their keys, sorted.
// Expired entries that have not been purged yet are included.
func (s *Store) Stats() Stats {
	keys := make([]string, 0)
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key := range sh.entries {
			keys = append(keys, key)
		}
		sh.mu.Unlock()
	}
	sort.Strings(keys)

	return Stats{Size: len(keys), Keys: keys}
}

// Sweep removes all expired entries and returns how many were removed.
// Only one shard is locked at a time, so concurrent requests on other shards
// are never stalled by a sweep.
func (s *Store) Sweep() int {
	removed := 0
	for _, sh := range s.shards {
		now := s.now()
		sh.mu.Lock()
		for key, entry := range sh.entries {
			if entry.IsExpired(now) {
				delete(sh.entries, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}

	CacheEntries.Sub(float64(removed))
	CacheEvictions.WithLabelValues("sweep").Add(float64(removed))

	return removed
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
// It always returns nil so it can run inside an errgroup.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", interval).Msg("Cache sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Cache sweeper stopped")
			return nil
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				s.logger.Debug().Int("removed", removed).Msg("Expired cache entries swept")
			}
		}
	}
}
