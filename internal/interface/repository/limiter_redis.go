package repository

import (
	"context"
	"fmt"
	"time"

	"sustainflow-service/internal/domain/repository"

	"github.com/redis/go-redis/v9"
)

// redisTokenBucketScript refills and consumes a token bucket atomically.
// KEYS[1] = bucket key
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity
// ARGV[3] = cost
// ARGV[4] = current unix time in seconds (microsecond precision)
var redisTokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 120)

return {allowed, tostring(tokens)}
`)

// RedisLimiterStore implements LimiterStore using Redis
type RedisLimiterStore struct {
	client *redis.Client
	prefix string
	rate   float64
	burst  int
}

// NewRedisLimiterStore creates a token bucket limiter backed by the given client.
// perMinute is the refill rate, burst the bucket capacity.
func NewRedisLimiterStore(client *redis.Client, prefix string, perMinute, burst int) repository.LimiterStore {
	rate := float64(perMinute) / 60.0
	if rate <= 0 {
		rate = 1.0
	}
	if burst <= 0 {
		burst = 1
	}
	return &RedisLimiterStore{
		client: client,
		prefix: prefix,
		rate:   rate,
		burst:  burst,
	}
}

// Allow executes the Lua script to check and update the bucket
func (s *RedisLimiterStore) Allow(ctx context.Context, key string, cost int) (bool, error) {
	bucket := fmt.Sprintf("%s:%s", s.prefix, key)
	now := float64(time.Now().UnixMicro()) / 1e6

	res, err := redisTokenBucketScript.Run(ctx, s.client, []string{bucket}, s.rate, s.burst, cost, now).Result()
	if err != nil {
		return false, fmt.Errorf("redis limiter error: %w", err)
	}

	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return false, fmt.Errorf("invalid response from limiter script")
	}

	allowed, _ := results[0].(int64)
	return allowed == 1, nil
}
