// Package rating records ratings between participants of completed exchanges
// and keeps each identity's aggregate in step.
package rating

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aimerfeng/SkillExchange/internal/config"
	"github.com/aimerfeng/SkillExchange/internal/logging"
	"github.com/aimerfeng/SkillExchange/internal/models"
	"github.com/aimerfeng/SkillExchange/internal/monitoring"
	"github.com/aimerfeng/SkillExchange/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service handles rating submission, listings and aggregate recomputation
type Service struct {
	ratings  store.RatingStore
	requests store.RequestStore
	users    store.UserStore
	limits   *config.LimitsConfig
}

func NewService(stores *store.Stores, limits *config.LimitsConfig) *Service {
	return &Service{
		ratings:  stores.Ratings,
		requests: stores.Requests,
		users:    stores.Users,
		limits:   limits,
	}
}

// SubmitRequest represents a rating submission
type SubmitRequest struct {
	RequestID uuid.UUID `json:"request_id"`
	RateeID   uuid.UUID `json:"ratee_id"`
	Stars     int       `json:"stars"`
	Feedback  string    `json:"feedback"`
}

// ReceivedRatings is the ratings addressed to a user with its aggregate
type ReceivedRatings struct {
	Summary models.RatingSummary `json:"summary"`
	Ratings []*models.RatingView `json:"ratings"`
}

// Submit stores rater's rating of the counterpart on a completed request and
// recomputes the ratee's aggregate.
func (s *Service) Submit(ctx context.Context, rater uuid.UUID, req *SubmitRequest) (*models.RatingView, error) {
	feedback := strings.TrimSpace(req.Feedback)

	if req.RequestID == uuid.Nil || req.RateeID == uuid.Nil {
		return nil, fmt.Errorf("%w: request_id and ratee_id are required", ErrInvalidInput)
	}
	if req.Stars < models.MinStars || req.Stars > models.MaxStars {
		return nil, ErrInvalidStars
	}
	if utf8.RuneCountInString(feedback) > s.limits.MaxFeedbackLen {
		return nil, fmt.Errorf("%w: feedback must be at most %d characters", ErrInvalidInput, s.limits.MaxFeedbackLen)
	}

	exReq, err := s.requests.GetByID(ctx, req.RequestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get exchange request: %w", err)
	}
	if exReq.Status != models.RequestStatusCompleted {
		return nil, ErrRequestNotComplete
	}
	counterpart, ok := exReq.Counterpart(rater)
	if !ok {
		return nil, ErrNotParticipant
	}
	if req.RateeID != counterpart {
		return nil, ErrWrongRatee
	}

	// Fast path; the (request_id, rater_id) unique constraint is authoritative
	if _, err := s.ratings.GetByRequestAndRater(ctx, req.RequestID, rater); err == nil {
		return nil, ErrAlreadyRated
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing rating: %w", err)
	}

	rating := &models.Rating{
		RequestID: req.RequestID,
		RaterID:   rater,
		RateeID:   counterpart,
		Stars:     req.Stars,
		Feedback:  feedback,
	}
	if err := s.ratings.Create(ctx, rating); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrAlreadyRated
		}
		return nil, fmt.Errorf("failed to create rating: %w", err)
	}
	monitoring.RecordRatingSubmitted(rating.Stars)

	// The rating is stored; a failed recompute is repaired by RecomputeAll
	if _, err := s.recompute(ctx, counterpart); err != nil {
		log.Error().Err(err).
			Str("rating_id", rating.ID.String()).
			Str("ratee_id", counterpart.String()).
			Msg("Aggregate recomputation failed after rating")
	}

	users := newResolver(s.users)
	return s.view(ctx, users, rating, exReq)
}

// Recompute rebuilds the aggregate of ratee from every rating it received
func (s *Service) Recompute(ctx context.Context, ratee uuid.UUID) (*models.RatingSummary, error) {
	summary, err := s.recompute(ctx, ratee)
	avg, count := "", 0
	if summary != nil {
		avg, count = summary.AvgRating.StringFixed(1), summary.RatingsCount
	}
	logging.LogRecompute(ratee.String(), avg, count, err)
	return summary, err
}

// recompute does the work of Recompute without logging the outcome, so
// callers with more context can log it themselves.
func (s *Service) recompute(ctx context.Context, ratee uuid.UUID) (summary *models.RatingSummary, err error) {
	start := time.Now()
	defer func() { monitoring.RecordRecompute(time.Since(start), err) }()

	stars, err := s.ratings.StarsByRatee(ctx, ratee)
	if err != nil {
		return nil, fmt.Errorf("failed to load ratings: %w", err)
	}
	avg, count := ComputeAggregate(stars)
	if err := s.users.UpdateRatingAggregate(ctx, ratee, avg, count); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to update rating aggregate: %w", err)
	}
	return &models.RatingSummary{UserID: ratee, AvgRating: avg, RatingsCount: count}, nil
}

// RecomputeAll reruns Recompute for every identity. It continues past
// failures and returns how many identities were updated along with the
// first error.
func (s *Service) RecomputeAll(ctx context.Context) (int, error) {
	ids, err := s.users.ListIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list users: %w", err)
	}

	var firstErr error
	updated := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		if _, err := s.Recompute(ctx, id); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		updated++
	}
	return updated, firstErr
}

// ListReceived returns ratings addressed to identity, newest first, with its
// current aggregate.
func (s *Service) ListReceived(ctx context.Context, identity uuid.UUID) (*ReceivedRatings, error) {
	users := newResolver(s.users)
	user, err := users.get(ctx, identity)
	if err != nil {
		return nil, err
	}

	ratings, err := s.ratings.ListByRatee(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to list received ratings: %w", err)
	}
	views, err := s.views(ctx, users, ratings)
	if err != nil {
		return nil, err
	}

	return &ReceivedRatings{
		Summary: models.RatingSummary{
			UserID:       user.ID,
			AvgRating:    user.AvgRating,
			RatingsCount: user.RatingsCount,
		},
		Ratings: views,
	}, nil
}

// ListGiven returns ratings written by identity, newest first
func (s *Service) ListGiven(ctx context.Context, identity uuid.UUID) ([]*models.RatingView, error) {
	users := newResolver(s.users)
	if _, err := users.get(ctx, identity); err != nil {
		return nil, err
	}

	ratings, err := s.ratings.ListByRater(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to list given ratings: %w", err)
	}
	return s.views(ctx, users, ratings)
}

func (s *Service) views(ctx context.Context, users *resolver, ratings []*models.Rating) ([]*models.RatingView, error) {
	requests := make(map[uuid.UUID]*models.ExchangeRequest)
	out := make([]*models.RatingView, 0, len(ratings))
	for _, r := range ratings {
		exReq, ok := requests[r.RequestID]
		if !ok {
			var err error
			exReq, err = s.requests.GetByID(ctx, r.RequestID)
			if err != nil {
				return nil, fmt.Errorf("failed to get exchange request: %w", err)
			}
			requests[r.RequestID] = exReq
		}
		v, err := s.view(ctx, users, r, exReq)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) view(ctx context.Context, users *resolver, r *models.Rating, exReq *models.ExchangeRequest) (*models.RatingView, error) {
	rater, err := users.get(ctx, r.RaterID)
	if err != nil {
		return nil, err
	}
	ratee, err := users.get(ctx, r.RateeID)
	if err != nil {
		return nil, err
	}
	return &models.RatingView{
		Rating:         *r,
		Rater:          rater.NameOnly(),
		Ratee:          ratee.NameOnly(),
		SkillOffered:   exReq.SkillOffered,
		SkillRequested: exReq.SkillRequested,
	}, nil
}

// resolver memoizes user lookups for the duration of one call
type resolver struct {
	users store.UserStore
	seen  map[uuid.UUID]*models.User
}

func newResolver(users store.UserStore) *resolver {
	return &resolver{users: users, seen: make(map[uuid.UUID]*models.User)}
}

func (r *resolver) get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := r.seen[id]; ok {
		return u, nil
	}
	u, err := r.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	r.seen[id] = u
	return u, nil
}
