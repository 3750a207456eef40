package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aimerfeng/SkillExchange/internal/auth"
	"github.com/aimerfeng/SkillExchange/internal/cache"
	"github.com/aimerfeng/SkillExchange/internal/chat"
	"github.com/aimerfeng/SkillExchange/internal/config"
	apierrors "github.com/aimerfeng/SkillExchange/internal/errors"
	"github.com/aimerfeng/SkillExchange/internal/exchange"
	"github.com/aimerfeng/SkillExchange/internal/logging"
	"github.com/aimerfeng/SkillExchange/internal/middleware"
	"github.com/aimerfeng/SkillExchange/internal/monitoring"
	"github.com/aimerfeng/SkillExchange/internal/profile"
	"github.com/aimerfeng/SkillExchange/internal/ratelimit"
	"github.com/aimerfeng/SkillExchange/internal/rating"
	"github.com/aimerfeng/SkillExchange/internal/store"
	"github.com/aimerfeng/SkillExchange/internal/token"
	"github.com/gin-gonic/gin"
)

// HealthCheck is a named dependency probe reported by /health
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// APIServer represents the main API server
type APIServer struct {
	config           *config.Config
	router           *gin.Engine
	authService      *auth.Service
	profileService   *profile.Service
	exchangeService  *exchange.Service
	chatService      *chat.Service
	ratingService    *rating.Service
	jwtAuthenticator *middleware.JWTAuthenticator
	limiter          middleware.Limiter
	checks           []HealthCheck
}

// NewAPIServer creates a new API server instance. redis may be nil, which
// disables token revocation and rate limiting.
func NewAPIServer(cfg *config.Config, stores *store.Stores, redis *cache.Redis, checks ...HealthCheck) *APIServer {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware in order
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	router.Use(monitoring.MetricsMiddleware())
	router.Use(logging.RequestLogger())
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	tokens := token.NewManager(&cfg.JWT)

	// Interfaces stay nil without redis so the services skip revocation
	var revoker auth.Revoker
	var revocations middleware.RevocationChecker
	var limiter middleware.Limiter
	if redis != nil {
		revoker = redis
		revocations = redis
		limiter = ratelimit.New(redis, cfg.RateLimit.WindowSeconds)
		checks = append(checks, HealthCheck{Name: "redis", Check: redis.Health})
	}

	srv := &APIServer{
		config:           cfg,
		router:           router,
		authService:      auth.NewService(stores.Users, tokens, &cfg.Password, &cfg.Limits, revoker),
		profileService:   profile.NewService(stores.Users, &cfg.Limits),
		exchangeService:  exchange.NewService(stores.Requests, stores.Users, &cfg.Limits),
		chatService:      chat.NewService(stores, &cfg.Limits),
		ratingService:    rating.NewService(stores, &cfg.Limits),
		jwtAuthenticator: middleware.NewJWTAuthenticator(tokens, revocations),
		limiter:          limiter,
		checks:           checks,
	}

	srv.setupRoutes()
	return srv
}

// Router returns the gin router
func (s *APIServer) Router() http.Handler {
	return s.router
}

// setupRoutes configures all API routes
func (s *APIServer) setupRoutes() {
	// Health check
	s.router.GET("/health", s.healthCheck)

	requireAuth := s.jwtAuthenticator.JWTAuth()
	authLimit := middleware.RateLimit(s.limiter, ratelimit.ScopeAuth, s.config.RateLimit.AuthLimit, middleware.ByClientIP)
	messageLimit := middleware.RateLimit(s.limiter, ratelimit.ScopeMessage, s.config.RateLimit.MessageLimit, middleware.ByUser)

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	{
		// Auth routes (public except logout and me)
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authLimit, s.handleRegister)
			authGroup.POST("/login", authLimit, s.handleLogin)
			authGroup.POST("/refresh", authLimit, s.handleRefresh)
			authGroup.POST("/logout", requireAuth, s.handleLogout)
			authGroup.GET("/me", requireAuth, s.handleMe)
		}

		profiles := v1.Group("/profile")
		profiles.Use(requireAuth)
		{
			profiles.GET("/me", s.handleGetProfile)
			profiles.PUT("/me", s.handleUpdateProfile)
		}

		users := v1.Group("/users")
		users.Use(requireAuth)
		{
			users.GET("/search", s.handleSearchUsers)
			users.GET("/:id", s.handleGetUser)
		}

		requests := v1.Group("/requests")
		requests.Use(requireAuth)
		{
			requests.POST("", s.handleProposeRequest)
			requests.GET("", s.handleListRequests)
			requests.GET("/:id", s.handleGetRequest)
			requests.POST("/:id/status", s.handleTransitionRequest)
		}

		messages := v1.Group("/messages")
		messages.Use(requireAuth)
		{
			messages.POST("", messageLimit, s.handleSendMessage)
			messages.GET("", s.handleListMessages)
		}

		ratings := v1.Group("/ratings")
		ratings.Use(requireAuth)
		{
			ratings.POST("", s.handleSubmitRating)
			ratings.GET("/received/:userId", s.handleListReceivedRatings)
			ratings.GET("/given/:userId", s.handleListGivenRatings)
		}
	}
}

// Health check handler
func (s *APIServer) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	components := make(gin.H, len(s.checks))
	for _, check := range s.checks {
		if err := check.Check(ctx); err != nil {
			components[check.Name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		components[check.Name] = "healthy"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":     state,
		"service":    s.config.Server.Name,
		"components": components,
	})
}

// respondError sends a standardized error response
func respondError(c *gin.Context, err *apierrors.APIError) {
	middleware.RespondWithError(c, err)
}

// respondServiceError maps an error returned by a service to its API error
func respondServiceError(c *gin.Context, err error, operation string) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondError(c, apierrors.ErrInvalidCredentialsError)
		return
	case errors.Is(err, auth.ErrTokenExpired):
		respondError(c, apierrors.ErrTokenExpiredError)
		return
	case errors.Is(err, context.DeadlineExceeded):
		respondError(c, apierrors.ErrTimeoutError)
		return
	}

	apiErr := apierrors.FromError(err)
	if apiErr.HTTPStatus >= http.StatusInternalServerError {
		logging.LogError(err,
			middleware.GetRequestIDFromContext(c),
			middleware.GetCorrelationIDFromContext(c),
			"api", operation)
	}
	respondError(c, apiErr)
}
