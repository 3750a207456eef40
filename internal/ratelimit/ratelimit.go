// Package ratelimit implements a Redis sliding window limiter for the
// authentication and messaging endpoints.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/aimerfeng/SkillExchange/internal/cache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Scopes share one limiter but keep separate keys and limits
const (
	ScopeAuth    = "auth"
	ScopeMessage = "message"
)

// Result contains the result of a rate limit check
type Result struct {
	Allowed    bool
	Remaining  int64
	Limit      int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Limiter implements sliding window rate limiting using Redis sorted sets
type Limiter struct {
	redis  *cache.Redis
	window time.Duration
	now    func() time.Time
	seq    atomic.Uint64
}

// New creates a new limiter. windowSeconds defaults to 60 when not positive.
func New(redis *cache.Redis, windowSeconds int) *Limiter {
	if windowSeconds <= 0 {
		windowSeconds = 60
	}
	return &Limiter{
		redis:  redis,
		window: time.Duration(windowSeconds) * time.Second,
		now:    time.Now,
	}
}

func key(scope, subject string) string {
	return fmt.Sprintf("ratelimit:sliding:%s:%s", scope, subject)
}

// Allow records a hit for subject in scope and reports whether it fits in
// limit. Redis failures fail open.
func (l *Limiter) Allow(ctx context.Context, scope, subject string, limit int) (*Result, error) {
	now := l.now()
	windowStart := now.Add(-l.window)
	k := key(scope, subject)

	result := &Result{
		Allowed:   true,
		Remaining: int64(limit),
		Limit:     limit,
		ResetAt:   now.Add(l.window),
	}

	err := l.redis.Do(ctx, func(ctx context.Context, c *redis.Client) error {
		// Score = timestamp, Member = unique hit id
		pipe := c.Pipeline()
		pipe.ZRemRangeByScore(ctx, k, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
		countCmd := pipe.ZCard(ctx, k)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}

		current := countCmd.Val()
		if current >= int64(limit) {
			result.Allowed = false
			result.Remaining = 0
			result.RetryAfter = l.window

			// Retry once the oldest hit leaves the window
			oldest, err := c.ZRangeWithScores(ctx, k, 0, 0).Result()
			if err == nil && len(oldest) > 0 {
				oldestTime := time.Unix(0, int64(oldest[0].Score))
				result.RetryAfter = oldestTime.Add(l.window).Sub(now)
				if result.RetryAfter < time.Second {
					result.RetryAfter = time.Second
				}
			}
			return nil
		}

		member := fmt.Sprintf("%d-%d-%s", now.UnixNano(), l.seq.Add(1), subject)
		if err := c.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixNano()), Member: member}).Err(); err != nil {
			return err
		}
		c.Expire(ctx, k, l.window*2)

		result.Remaining = int64(limit) - current - 1
		if result.Remaining < 0 {
			result.Remaining = 0
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("scope", scope).Str("subject", subject).Msg("Rate limit check failed, allowing request")
		return &Result{Allowed: true, Remaining: int64(limit), Limit: limit, ResetAt: now.Add(l.window)}, nil
	}

	return result, nil
}

// Reset clears the window for subject
func (l *Limiter) Reset(ctx context.Context, scope, subject string) error {
	return l.redis.Delete(ctx, key(scope, subject))
}
