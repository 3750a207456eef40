package ratelimit

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aimerfeng/SkillExchange/internal/cache"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var testRedis *cache.Redis

func TestMain(m *testing.M) {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/15"
	}

	var err error
	testRedis, err = cache.NewFromURL(redisURL)
	if err != nil {
		fmt.Printf("Warning: Failed to connect to test redis: %v\n", err)
		testRedis = nil
	}

	code := m.Run()

	if testRedis != nil {
		testRedis.Close()
	}
	os.Exit(code)
}

// TestProperty_RateLimit_NeverExceedsLimit tests that within one window no more
// than limit calls are allowed.
func TestProperty_RateLimit_NeverExceedsLimit(t *testing.T) {
	if testRedis == nil {
		t.Skip("Test redis not available")
	}
	limiter := New(testRedis, 60)

	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		limit := rapid.IntRange(1, 10).Draw(rt, "limit")
		calls := rapid.IntRange(1, 20).Draw(rt, "calls")
		subject := uuid.NewString()
		defer limiter.Reset(ctx, ScopeAuth, subject)

		allowed := 0
		for i := 0; i < calls; i++ {
			res, err := limiter.Allow(ctx, ScopeAuth, subject, limit)
			if err != nil {
				rt.Fatalf("unexpected error: %v", err)
			}
			if res.Allowed {
				allowed++
			} else if res.RetryAfter <= 0 {
				rt.Fatal("PROPERTY VIOLATION: denied call must carry a retry delay")
			}
		}

		want := calls
		if want > limit {
			want = limit
		}
		if allowed != want {
			rt.Fatalf("PROPERTY VIOLATION: allowed %d calls, want %d", allowed, want)
		}
	})
}

func TestScopesAreIndependent(t *testing.T) {
	if testRedis == nil {
		t.Skip("Test redis not available")
	}
	ctx := context.Background()
	limiter := New(testRedis, 60)
	subject := uuid.NewString()
	defer limiter.Reset(ctx, ScopeAuth, subject)
	defer limiter.Reset(ctx, ScopeMessage, subject)

	res, err := limiter.Allow(ctx, ScopeAuth, subject, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	res, err = limiter.Allow(ctx, ScopeAuth, subject, 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	res, err = limiter.Allow(ctx, ScopeMessage, subject, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestFailsOpenWhenRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	// New pings, so build the wrapper around a dead client by hand
	dead := cache.NewUnchecked(client, cache.DefaultBreakerConfig())
	limiter := New(dead, 60)

	for i := 0; i < 3; i++ {
		res, err := limiter.Allow(context.Background(), ScopeMessage, "user", 1)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
}
