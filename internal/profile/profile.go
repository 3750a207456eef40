// Package profile serves the identity's own profile, public profiles and
// skill search.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aimerfeng/SkillExchange/internal/config"
	apierrors "github.com/aimerfeng/SkillExchange/internal/errors"
	"github.com/aimerfeng/SkillExchange/internal/models"
	"github.com/aimerfeng/SkillExchange/internal/store"
	"github.com/google/uuid"
)

const minNameLength = 2

var (
	ErrInvalidInput = apierrors.NewDomainError(apierrors.KindInvalidArgument, "invalid input")
	ErrUserNotFound = apierrors.NewDomainError(apierrors.KindNotFound, "user not found")
)

// Service handles profile reads, updates and search
type Service struct {
	users  store.UserStore
	limits *config.LimitsConfig
}

func NewService(users store.UserStore, limits *config.LimitsConfig) *Service {
	return &Service{users: users, limits: limits}
}

// UpdateRequest carries the editable profile fields. Nil fields are left
// unchanged.
type UpdateRequest struct {
	Name   *string  `json:"name"`
	Bio    *string  `json:"bio"`
	Skills []string `json:"skills"`
}

// GetMe returns the caller's full profile
func (s *Service) GetMe(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.get(ctx, userID)
}

// UpdateMe applies the update and returns the stored profile
func (s *Service) UpdateMe(ctx context.Context, userID uuid.UUID, req *UpdateRequest) (*models.User, error) {
	user, err := s.get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if utf8.RuneCountInString(name) < minNameLength {
			return nil, fmt.Errorf("%w: name must be at least %d characters", ErrInvalidInput, minNameLength)
		}
		if utf8.RuneCountInString(name) > s.limits.MaxNameLen {
			return nil, fmt.Errorf("%w: name must be at most %d characters", ErrInvalidInput, s.limits.MaxNameLen)
		}
		user.Name = name
	}
	if req.Bio != nil {
		bio := strings.TrimSpace(*req.Bio)
		if utf8.RuneCountInString(bio) > s.limits.MaxBioLen {
			return nil, fmt.Errorf("%w: bio must be at most %d characters", ErrInvalidInput, s.limits.MaxBioLen)
		}
		user.Bio = bio
	}
	if req.Skills != nil {
		skills := models.NormalizeSkills(req.Skills)
		if len(skills) == 0 {
			return nil, fmt.Errorf("%w: at least one skill is required", ErrInvalidInput)
		}
		if models.LongestSkillLen(skills) > s.limits.MaxSkillLen {
			return nil, fmt.Errorf("%w: skills must be at most %d characters", ErrInvalidInput, s.limits.MaxSkillLen)
		}
		user.Skills = skills
	}

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return user, nil
}

// GetPublic returns another member's public profile
func (s *Service) GetPublic(ctx context.Context, userID uuid.UUID) (*models.PublicProfile, error) {
	user, err := s.get(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := user.Public()
	return &p, nil
}

// Search finds members with a skill containing the term, case-insensitively.
// The caller is never included.
func (s *Service) Search(ctx context.Context, caller uuid.UUID, skill string) ([]models.PublicProfile, error) {
	term := strings.TrimSpace(skill)
	if term == "" {
		return nil, fmt.Errorf("%w: skill is required", ErrInvalidInput)
	}

	users, err := s.users.Search(ctx, term, caller, s.limits.MaxSearchResults)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}

	out := make([]models.PublicProfile, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out, nil
}

func (s *Service) get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}
