// Package store defines the persistence contracts used by the service
// packages. Drivers live in the postgres and memory subpackages; both enforce
// the same uniqueness rules so services never rely on their own pre-checks.
package store

import (
	"context"
	"errors"

	"github.com/aimerfeng/SkillExchange/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a write violates a uniqueness rule
	ErrDuplicate = errors.New("duplicate")
	// ErrStatusChanged is returned when a compare-and-set status update finds
	// a different status than expected.
	ErrStatusChanged = errors.New("status changed concurrently")
)

// UserStore persists identities
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// GetByEmail matches case-insensitively
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// Create fills ID and timestamps. Returns ErrDuplicate when the email is taken.
	Create(ctx context.Context, user *models.User) error
	// UpdateProfile writes name, bio and skills and refreshes user from storage
	UpdateProfile(ctx context.Context, user *models.User) error
	UpdateRatingAggregate(ctx context.Context, id uuid.UUID, avg decimal.Decimal, count int) error
	// Search returns users holding a skill containing the term, excluding one id
	Search(ctx context.Context, skill string, exclude uuid.UUID, limit int) ([]*models.User, error)
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

// RequestStore persists exchange requests
type RequestStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ExchangeRequest, error)
	// FindActive returns the pending or accepted request matching the tuple
	FindActive(ctx context.Context, sender, receiver uuid.UUID, skillOffered, skillRequested string) (*models.ExchangeRequest, error)
	// Create returns ErrDuplicate when an active request with the same tuple exists
	Create(ctx context.Context, req *models.ExchangeRequest) error
	// UpdateStatus moves the request from one status to another. It returns
	// ErrStatusChanged when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.RequestStatus) (*models.ExchangeRequest, error)
	// ListByReceiver and ListBySender return newest first
	ListByReceiver(ctx context.Context, receiver uuid.UUID) ([]*models.ExchangeRequest, error)
	ListBySender(ctx context.Context, sender uuid.UUID) ([]*models.ExchangeRequest, error)
}

// MessageStore persists chat messages
type MessageStore interface {
	Create(ctx context.Context, msg *models.Message) error
	// ListByRequest returns oldest first
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*models.Message, error)
}

// RatingStore persists ratings
type RatingStore interface {
	// Create returns ErrDuplicate when the rater already rated the request
	Create(ctx context.Context, rating *models.Rating) error
	GetByRequestAndRater(ctx context.Context, requestID, raterID uuid.UUID) (*models.Rating, error)
	// ListByRatee and ListByRater return newest first
	ListByRatee(ctx context.Context, ratee uuid.UUID) ([]*models.Rating, error)
	ListByRater(ctx context.Context, rater uuid.UUID) ([]*models.Rating, error)
	StarsByRatee(ctx context.Context, ratee uuid.UUID) ([]int, error)
}

// Stores bundles the driver implementations handed to services
type Stores struct {
	Users    UserStore
	Requests RequestStore
	Messages MessageStore
	Ratings  RatingStore
}
