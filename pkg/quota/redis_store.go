package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKeyPrefix prefixes every quota key: cms:quota:<day>:<identity>.
const RedisKeyPrefix = "cms:quota:"

// incrementScript increments KEYS[1] only while it is below ARGV[1].
// ARGV[2] is the retention in seconds (0 keeps the key forever).
var incrementScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
  return {0, current}
end
local n = redis.call('INCR', KEYS[1])
local retention = tonumber(ARGV[2])
if n == 1 and retention > 0 then
  redis.call('EXPIRE', KEYS[1], retention)
end
return {1, n}
`)

// RedisStore keeps quota counters in Redis, shared by every service instance
// pointing at the same server. The check-and-increment runs as one Lua
// script, which Redis executes atomically.
type RedisStore struct {
	redis     *redis.Client
	retention time.Duration
}

// NewRedisStore creates a Redis-backed store. A zero retention keeps
// counters forever; otherwise each (identity, day) key expires retention
// after its first increment.
func NewRedisStore(redisClient *redis.Client, retention time.Duration) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{redis: redisClient, retention: retention}
}

// RedisKey returns the key holding the counter for (identity, day).
func RedisKey(identity, day string) string {
	return RedisKeyPrefix + day + ":" + identity
}

// Count returns the recorded count for (identity, day), or 0 if absent.
func (s *RedisStore) Count(ctx context.Context, identity, day string) (int, error) {
	n, err := s.redis.Get(ctx, RedisKey(identity, day)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}
	return n, nil
}

// IncrementIfBelow atomically increments the counter while it is below max.
func (s *RedisStore) IncrementIfBelow(ctx context.Context, identity, day string, max int) (int, bool, error) {
	res, err := incrementScript.Run(ctx, s.redis,
		[]string{RedisKey(identity, day)},
		max, int64(s.retention/time.Second),
	).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("redis increment: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("redis increment: unexpected reply %v", res)
	}
	return int(res[1]), res[0] == 1, nil
}
