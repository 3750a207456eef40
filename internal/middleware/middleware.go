package middleware

import (
	"context"
	"errors"
	"strings"

	apierrors "github.com/aimerfeng/SkillExchange/internal/errors"
	"github.com/aimerfeng/SkillExchange/internal/logging"
	"github.com/aimerfeng/SkillExchange/internal/token"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Context keys for storing user information
const (
	ContextKeyUserID        = "user_id"
	ContextKeyClaims        = "claims"
	ContextKeyRequestID     = "request_id"
	ContextKeyCorrelationID = "correlation_id"
)

// RevocationChecker reports whether a token id was revoked by logout
type RevocationChecker interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// JWTAuthenticator handles JWT token validation
type JWTAuthenticator struct {
	tokens  *token.Manager
	revoked RevocationChecker
}

// NewJWTAuthenticator creates a new JWT authenticator. revoked may be nil
// when no revocation store is configured.
func NewJWTAuthenticator(tokens *token.Manager, revoked RevocationChecker) *JWTAuthenticator {
	return &JWTAuthenticator{
		tokens:  tokens,
		revoked: revoked,
	}
}

// JWTAuth creates a middleware that validates JWT tokens from the Authorization header
// It extracts the Bearer token, validates it, and sets user information in the context
func (j *JWTAuthenticator) JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			RespondWithError(c, apierrors.ErrUnauthorizedError)
			c.Abort()
			return
		}

		tokenString, err := extractBearerToken(authHeader)
		if err != nil || tokenString == "" {
			RespondWithError(c, apierrors.ErrUnauthorizedError)
			c.Abort()
			return
		}

		claims, err := j.tokens.ParseAccess(tokenString)
		if err != nil {
			if errors.Is(err, token.ErrTokenExpired) {
				RespondWithError(c, apierrors.ErrTokenExpiredError)
			} else {
				logging.LogSecurityEvent("invalid_token", "", c.ClientIP(), err.Error())
				RespondWithError(c, apierrors.ErrUnauthorizedError)
			}
			c.Abort()
			return
		}

		if j.revoked != nil {
			revoked, err := j.revoked.IsTokenRevoked(c.Request.Context(), claims.ID)
			if err != nil {
				// Revocation store down: the token signature is still valid
				log.Warn().Err(err).Str("user_id", claims.UserID).Msg("Failed to check token revocation")
			} else if revoked {
				logging.LogSecurityEvent("revoked_token", claims.UserID, c.ClientIP(), "")
				RespondWithError(c, apierrors.ErrUnauthorizedError)
				c.Abort()
				return
			}
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyClaims, claims)

		c.Next()
	}
}

// extractBearerToken extracts the token from a Bearer authorization header
func extractBearerToken(authHeader string) (string, error) {
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", token.ErrInvalidToken
	}
	return strings.TrimSpace(authHeader[len(bearerPrefix):]), nil
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, err *apierrors.APIError) {
	response := apierrors.NewErrorResponse(
		err,
		c.GetString(ContextKeyRequestID),
		c.GetString(ContextKeyCorrelationID),
		c.Request.URL.Path,
		c.Request.Method,
	)
	c.JSON(err.HTTPStatus, response)
}

// GetUserIDFromContext extracts the user ID from the gin context
// Returns uuid.Nil if not found
func GetUserIDFromContext(c *gin.Context) uuid.UUID {
	id, err := uuid.Parse(c.GetString(ContextKeyUserID))
	if err != nil {
		return uuid.Nil
	}
	return id
}

// GetClaimsFromContext extracts the full claims from the gin context
// Returns nil if not found
func GetClaimsFromContext(c *gin.Context) *token.Claims {
	claims, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	tc, _ := claims.(*token.Claims)
	return tc
}

// RequestID adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// CorrelationID adds a correlation ID for tracing a request across services.
// It is taken from upstream when present and otherwise falls back to the request ID.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = c.GetString(ContextKeyRequestID)
			if correlationID == "" {
				correlationID = uuid.New().String()
			}
		}
		c.Set(ContextKeyCorrelationID, correlationID)
		c.Header("X-Correlation-ID", correlationID)
		c.Next()
	}
}

// GetCorrelationIDFromContext extracts the correlation ID from the gin context
func GetCorrelationIDFromContext(c *gin.Context) string {
	return c.GetString(ContextKeyCorrelationID)
}

// GetRequestIDFromContext extracts the request ID from the gin context
func GetRequestIDFromContext(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}

// CORS configures CORS headers
func CORS(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, o := range allowedOrigins {
			if o == origin || o == "*" {
				allowed = true
				break
			}
		}

		if allowed && origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID, X-Correlation-ID")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-Correlation-ID, X-RateLimit-Remaining, Retry-After")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Max-Age", "43200") // 12 hours
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
