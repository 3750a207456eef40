// Package cache wraps the Redis client used for rate limiting and token
// revocation. Every call goes through a circuit breaker so a Redis outage
// degrades to fast failures instead of stalled requests.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aimerfeng/SkillExchange/internal/monitoring"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

const revokedPrefix = "revoked:jti:"

// Redis is a circuit-breaker protected Redis client
type Redis struct {
	Client  *redis.Client
	breaker *gobreaker.CircuitBreaker
}

// NewFromURL connects to Redis and verifies the connection
func NewFromURL(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return New(redis.NewClient(opts), DefaultBreakerConfig())
}

// New wraps an existing client
func New(client *redis.Client, cfg BreakerConfig) (*Redis, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Info().Str("addr", client.Options().Addr).Msg("Redis connection established")

	return NewUnchecked(client, cfg), nil
}

// NewUnchecked wraps client without verifying the connection
func NewUnchecked(client *redis.Client, cfg BreakerConfig) *Redis {
	return &Redis{
		Client:  client,
		breaker: newBreaker("redis", cfg),
	}
}

// Close closes the client
func (r *Redis) Close() error {
	return r.Client.Close()
}

// Health pings Redis without going through the breaker
func (r *Redis) Health(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

// Do runs fn through the circuit breaker. ErrUnavailable is returned while
// the breaker is open.
func (r *Redis) Do(ctx context.Context, fn func(ctx context.Context, c *redis.Client) error) error {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fn(ctx, r.Client)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrUnavailable
	}
	return err
}

// Get returns the value for key. ok is false when the key does not exist.
func (r *Redis) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	err = r.Do(ctx, func(ctx context.Context, c *redis.Client) error {
		v, err := c.Get(ctx, key).Result()
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores value with a TTL
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.Do(ctx, func(ctx context.Context, c *redis.Client) error {
		return c.Set(ctx, key, value, ttl).Err()
	})
}

// Delete removes keys
func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	return r.Do(ctx, func(ctx context.Context, c *redis.Client) error {
		return c.Del(ctx, keys...).Err()
	})
}

// RevokeToken marks a token id as revoked until the token would have expired
func (r *Redis) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.Set(ctx, revokedPrefix+jti, "1", ttl)
}

// IsTokenRevoked reports whether the token id was revoked
func (r *Redis) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	_, ok, err := r.Get(ctx, revokedPrefix+jti)
	if err != nil {
		return false, err
	}
	if ok {
		monitoring.RecordCacheHit("revocation")
	} else {
		monitoring.RecordCacheMiss("revocation")
	}
	return ok, nil
}
