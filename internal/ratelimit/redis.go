package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisLimiter shares fixed windows across replicas through Redis
// INCR/EXPIRE. Redis failures fail open.
type RedisLimiter struct {
	client  *redis.Client
	limit   int
	period  time.Duration
	prefix  string
	timeout time.Duration
}

// NewRedisLimiter connects to addr and verifies the connection.
func NewRedisLimiter(ctx context.Context, addr, password string, db, limit int, period time.Duration) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ratelimit: redis ping %s: %w", addr, err)
	}
	return NewRedisLimiterWithClient(client, limit, period), nil
}

// NewRedisLimiterWithClient uses an existing client.
func NewRedisLimiterWithClient(client *redis.Client, limit int, period time.Duration) *RedisLimiter {
	if period <= 0 {
		period = time.Minute
	}
	return &RedisLimiter{
		client:  client,
		limit:   limit,
		period:  period,
		prefix:  "loglens:ratelimit:",
		timeout: 250 * time.Millisecond,
	}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) Decision {
	if r.limit <= 0 {
		return Decision{Allowed: true}
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	redisKey := r.prefix + key
	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		log.Error().Err(err).Str("op", "incr").Msg("redis rate limiter error")
		return Decision{Allowed: true, Limit: r.limit}
	}
	if count == 1 {
		if err := r.client.Expire(ctx, redisKey, r.period).Err(); err != nil {
			log.Error().Err(err).Str("op", "expire").Msg("redis rate limiter error")
		}
	}
	ttl, err := r.client.TTL(ctx, redisKey).Result()
	if err == nil && ttl == -1 {
		// The key has no expiry, so an earlier EXPIRE was lost. Without one
		// the window never resets.
		if err := r.client.Expire(ctx, redisKey, r.period).Err(); err != nil {
			log.Error().Err(err).Str("op", "expire").Msg("redis rate limiter error")
		}
	}
	if err != nil || ttl <= 0 {
		ttl = r.period
	}

	used := int(count)
	if used > r.limit {
		used = r.limit
	}
	return Decision{
		Allowed: int(count) <= r.limit,
		Limit:   r.limit,
		Count:   used,
		ResetAt: time.Now().Add(ttl),
	}
}

func (r *RedisLimiter) Close() error {
	return r.client.Close()
}
