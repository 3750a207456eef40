package middleware

import (
	"context"
	"strconv"
	"time"

	apierrors "github.com/aimerfeng/SkillExchange/internal/errors"
	"github.com/aimerfeng/SkillExchange/internal/monitoring"
	"github.com/aimerfeng/SkillExchange/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// Limiter is the rate limiter used by RateLimit
type Limiter interface {
	Allow(ctx context.Context, scope, subject string, limit int) (*ratelimit.Result, error)
}

// KeyFunc selects the subject a request is counted against
type KeyFunc func(c *gin.Context) string

// ByClientIP counts requests per client address
func ByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// ByUser counts requests per authenticated user. It must run after JWTAuth.
func ByUser(c *gin.Context) string {
	if id := c.GetString(ContextKeyUserID); id != "" {
		return id
	}
	return c.ClientIP()
}

// RateLimit rejects requests over limit within the limiter's window. A nil
// limiter disables the check.
func RateLimit(limiter Limiter, scope string, limit int, keyFn KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limit <= 0 {
			c.Next()
			return
		}

		res, err := limiter.Allow(c.Request.Context(), scope, keyFn(c), limit)
		if err != nil || res == nil {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))

		if !res.Allowed {
			retryAfter := int64(res.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			monitoring.RecordRateLimitHit(scope)

			apiErr := *apierrors.ErrRateLimitedError
			apiErr.Details = map[string]int64{"retry_after_seconds": retryAfter}
			RespondWithError(c, &apiErr)
			c.Abort()
			return
		}

		c.Next()
	}
}

// Timeout bounds the request context. Handlers observe the deadline through
// c.Request.Context().
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
