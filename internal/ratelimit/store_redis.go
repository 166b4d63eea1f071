package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Fixed-window check-and-count as a single script so concurrent requests for
// the same key cannot interleave between read and increment. Returns
// {allowed, count, pttl_ms}.
var incrScript = redis.NewScript(`
local key = KEYS[1]
local window = tonumber(ARGV[1])
local max = tonumber(ARGV[2])
local count = tonumber(redis.call('GET', key) or '0')
local ttl = redis.call('PTTL', key)
if ttl < 0 then
  count = 0
end
if count >= max then
  return {0, count, ttl}
end
count = count + 1
if count == 1 then
  redis.call('SET', key, count, 'PX', window)
  ttl = window
else
  redis.call('SET', key, count, 'KEEPTTL')
end
return {1, count, ttl}
`)

// RedisStore is a shared Store over Redis, giving a correct request bound
// across multiple server processes. Keys expire with their window, so Sweep
// has nothing to do.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to the given Redis URL (redis://...). The prefix
// namespaces rate-limit keys away from other users of the instance.
func NewRedisStore(url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts), prefix: prefix}, nil
}

// Ping verifies connectivity at startup.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) key(k string) string {
	return s.prefix + ":" + k
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration, max int) (Decision, error) {
	res, err := incrScript.Run(ctx, s.client, []string{s.key(key)}, window.Milliseconds(), max).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit incr for %s: %w", key, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("rate limit incr for %s: unexpected script reply", key)
	}

	ttl := time.Duration(res[2]) * time.Millisecond
	if ttl < 0 {
		ttl = window
	}
	return Decision{
		Allowed: res[0] == 1,
		Count:   int(res[1]),
		ResetAt: time.Now().Add(ttl),
	}, nil
}

func (s *RedisStore) Peek(ctx context.Context, key string) (int, time.Time, bool, error) {
	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, s.key(key))
	ttlCmd := pipe.PTTL(ctx, s.key(key))
	if _, err := pipe.Exec(ctx); err != nil {
		if err == redis.Nil {
			return 0, time.Time{}, false, nil
		}
		return 0, time.Time{}, false, fmt.Errorf("rate limit peek for %s: %w", key, err)
	}

	count, err := getCmd.Int()
	if err != nil {
		return 0, time.Time{}, false, nil
	}
	ttl := ttlCmd.Val()
	if ttl <= 0 {
		return 0, time.Time{}, false, nil
	}
	return count, time.Now().Add(ttl), true, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// Sweep is a no-op: Redis expires keys with their window TTL.
func (s *RedisStore) Sweep(context.Context) error { return nil }

// Close releases the underlying client.
func (s *RedisStore) Close() error { return s.client.Close() }
