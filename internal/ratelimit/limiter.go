package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares token buckets between replicas through Redis hashes.
type RedisStore struct {
	rdb        *redis.Client
	capacity   float64
	refillRate float64
	ttl        time.Duration
	now        func() time.Time
}

// NewRedisStore creates a shared store. If rdb is nil, every take is
// admitted (fail open).
func NewRedisStore(rdb *redis.Client, capacity, refillRate float64, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb:        rdb,
		capacity:   capacity,
		refillRate: refillRate,
		ttl:        ttl,
		now:        time.Now,
	}
}

// tokenBucketScript atomically refills and takes one token.
// KEYS[1] = bucket hash key
// ARGV[1] = capacity
// ARGV[2] = refill rate (tokens per second)
// ARGV[3] = now (unix milliseconds)
// ARGV[4] = TTL milliseconds for the key
// Returns: [1=allowed/0=denied, remaining tokens as a string]
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil then
    tokens = capacity
    ts = now
end

local elapsed = (now - ts) / 1000
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
end

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'ts', now)
redis.call('PEXPIRE', key, ttl)
return {allowed, tostring(tokens)}
`)

func (s *RedisStore) Take(ctx context.Context, clientID string) (Decision, error) {
	if s.rdb == nil {
		return Decision{Allowed: true, Remaining: s.capacity - 1}, nil
	}

	key := fmt.Sprintf("contact_center:rl:%s", clientID)
	res, err := tokenBucketScript.Run(ctx, s.rdb, []string{key},
		s.capacity, s.refillRate, s.now().UnixMilli(), s.ttl.Milliseconds(),
	).Slice()
	if err != nil || len(res) != 2 {
		// Fail open on Redis errors
		slog.Warn("rate limit store unavailable, admitting request", "client_id", clientID, "error", err)
		return Decision{Allowed: true, Remaining: s.capacity - 1}, nil
	}

	allowed, _ := res[0].(int64)
	remaining := 0.0
	if str, ok := res[1].(string); ok {
		remaining, _ = strconv.ParseFloat(str, 64)
	}
	if allowed != 1 {
		remaining = 0
	}
	return Decision{Allowed: allowed == 1, Remaining: remaining}, nil
}
