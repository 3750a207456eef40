package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aimerfeng/SkillExchange/internal/config"
	"github.com/aimerfeng/SkillExchange/internal/logging"
	"github.com/aimerfeng/SkillExchange/internal/models"
	"github.com/aimerfeng/SkillExchange/internal/monitoring"
	"github.com/aimerfeng/SkillExchange/internal/store"
	"github.com/aimerfeng/SkillExchange/internal/token"
	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	MinNameLength     = 2
	MinPasswordLength = 8
	// MaxEmailLength matches the users.email column
	MaxEmailLength = 255
)

// Revoker records token ids that must no longer be accepted
type Revoker interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// Service handles authentication operations
type Service struct {
	users   store.UserStore
	tokens  *token.Manager
	params  *argon2id.Params
	revoker Revoker
	limits  *config.LimitsConfig
	now     func() time.Time
}

// NewService creates a new auth service. revoker may be nil, in which case
// logout only discards tokens client side.
func NewService(users store.UserStore, tokens *token.Manager, pwCfg *config.PasswordConfig, limits *config.LimitsConfig, revoker Revoker) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		params: &argon2id.Params{
			Memory:      pwCfg.Memory,
			Iterations:  pwCfg.Iterations,
			Parallelism: pwCfg.Parallelism,
			SaltLength:  pwCfg.SaltLength,
			KeyLength:   pwCfg.KeyLength,
		},
		revoker: revoker,
		limits:  limits,
		now:     time.Now,
	}
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Name     string   `json:"name" binding:"required"`
	Email    string   `json:"email" binding:"required,email"`
	Password string   `json:"password" binding:"required,min=8"`
	Skills   []string `json:"skills" binding:"required"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest represents a token refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutRequest optionally carries the refresh token so it is revoked with
// the access token.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// AuthResponse is returned by register, login and refresh
type AuthResponse struct {
	User   *models.User `json:"user"`
	Tokens *token.Pair  `json:"tokens"`
}

// Register creates a new identity and signs it in
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	skills := models.NormalizeSkills(req.Skills)

	if utf8.RuneCountInString(name) < MinNameLength {
		return nil, fmt.Errorf("%w: name must be at least %d characters", ErrInvalidInput, MinNameLength)
	}
	if utf8.RuneCountInString(name) > s.limits.MaxNameLen {
		return nil, fmt.Errorf("%w: name must be at most %d characters", ErrInvalidInput, s.limits.MaxNameLen)
	}
	if len(email) > MaxEmailLength || !validEmail(email) {
		return nil, fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	if len(req.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	if len(skills) == 0 {
		return nil, fmt.Errorf("%w: at least one skill is required", ErrInvalidInput)
	}
	if models.LongestSkillLen(skills) > s.limits.MaxSkillLen {
		return nil, fmt.Errorf("%w: skills must be at most %d characters", ErrInvalidInput, s.limits.MaxSkillLen)
	}

	// Fast path; the unique index on lower(email) is authoritative
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailAlreadyExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email existence: %w", err)
	}

	passwordHash, err := argon2id.CreateHash(req.Password, s.params)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Skills:       skills,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	monitoring.RecordUserRegistered()
	log.Info().Str("user_id", user.ID.String()).Msg("User registered")

	tokens, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	return &AuthResponse{User: user, Tokens: tokens}, nil
}

// Login authenticates a user and returns tokens
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Return generic error to not reveal if email exists
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	match, err := argon2id.ComparePasswordAndHash(req.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !match {
		logging.LogSecurityEvent("login_failed", user.ID.String(), "", "")
		return nil, ErrInvalidCredentials
	}

	tokens, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	return &AuthResponse{User: user, Tokens: tokens}, nil
}

// Refresh exchanges a valid refresh token for a new pair. The presented
// refresh token is revoked so it cannot be replayed.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if s.revoker != nil {
		revoked, err := s.revoker.IsTokenRevoked(ctx, claims.ID)
		if err != nil {
			log.Warn().Err(err).Str("user_id", claims.UserID).Msg("Failed to check refresh token revocation")
		} else if revoked {
			logging.LogSecurityEvent("revoked_refresh_token", claims.UserID, "", "")
			return nil, ErrTokenRevoked
		}
	}

	// Ensure the identity still exists
	user, err := s.users.GetByID(ctx, claims.UserUUID())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	s.revoke(ctx, claims)

	tokens, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}
	return &AuthResponse{User: user, Tokens: tokens}, nil
}

// Logout revokes the access token and, when given, the refresh token of the
// same identity.
func (s *Service) Logout(ctx context.Context, access *token.Claims, refreshToken string) error {
	if access == nil {
		return ErrInvalidToken
	}
	s.revoke(ctx, access)

	if refreshToken == "" {
		return nil
	}
	refresh, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		// Already unusable
		return nil
	}
	if refresh.UserID != access.UserID {
		return fmt.Errorf("%w: refresh token belongs to another user", ErrInvalidToken)
	}
	s.revoke(ctx, refresh)
	return nil
}

// Me returns the authenticated identity
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

func (s *Service) revoke(ctx context.Context, claims *token.Claims) {
	if s.revoker == nil || claims.ID == "" {
		return
	}
	ttl := claims.Remaining(s.now())
	if ttl <= 0 {
		return
	}
	if err := s.revoker.RevokeToken(ctx, claims.ID, ttl); err != nil {
		log.Warn().Err(err).Str("user_id", claims.UserID).Msg("Failed to revoke token")
	}
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
