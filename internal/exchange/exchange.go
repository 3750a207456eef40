// Package exchange implements the exchange request lifecycle: proposals,
// status transitions and the incoming/sent listings.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aimerfeng/SkillExchange/internal/config"
	"github.com/aimerfeng/SkillExchange/internal/logging"
	"github.com/aimerfeng/SkillExchange/internal/models"
	"github.com/aimerfeng/SkillExchange/internal/monitoring"
	"github.com/aimerfeng/SkillExchange/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service handles exchange requests
type Service struct {
	requests store.RequestStore
	users    store.UserStore
	limits   *config.LimitsConfig
}

func NewService(requests store.RequestStore, users store.UserStore, limits *config.LimitsConfig) *Service {
	return &Service{requests: requests, users: users, limits: limits}
}

// ProposeRequest represents a new exchange proposal
type ProposeRequest struct {
	ReceiverID     uuid.UUID `json:"receiver_id"`
	SkillOffered   string    `json:"skill_offered" binding:"required"`
	SkillRequested string    `json:"skill_requested" binding:"required"`
	Message        string    `json:"message"`
}

// TransitionRequest asks for a status change
type TransitionRequest struct {
	Status models.RequestStatus `json:"status" binding:"required"`
}

// Propose creates a pending request from sender to the receiver
func (s *Service) Propose(ctx context.Context, sender uuid.UUID, req *ProposeRequest) (*models.RequestView, error) {
	offered := strings.TrimSpace(req.SkillOffered)
	requested := strings.TrimSpace(req.SkillRequested)
	message := strings.TrimSpace(req.Message)

	if req.ReceiverID == uuid.Nil {
		return nil, fmt.Errorf("%w: receiver_id is required", ErrInvalidInput)
	}
	if offered == "" || requested == "" {
		return nil, fmt.Errorf("%w: skill_offered and skill_requested are required", ErrInvalidInput)
	}
	if models.LongestSkillLen([]string{offered, requested}) > s.limits.MaxSkillLen {
		return nil, fmt.Errorf("%w: skills must be at most %d characters", ErrInvalidInput, s.limits.MaxSkillLen)
	}
	if utf8.RuneCountInString(message) > s.limits.MaxRequestMessageLen {
		return nil, fmt.Errorf("%w: message must be at most %d characters", ErrInvalidInput, s.limits.MaxRequestMessageLen)
	}
	if req.ReceiverID == sender {
		return nil, ErrSelfRequest
	}

	users := newResolver(s.users)
	if _, err := users.get(ctx, req.ReceiverID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrReceiverNotFound
		}
		return nil, err
	}

	// Fast path; the partial unique index on active requests is authoritative
	if _, err := s.requests.FindActive(ctx, sender, req.ReceiverID, offered, requested); err == nil {
		return nil, ErrDuplicateRequest
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for duplicate request: %w", err)
	}

	created := &models.ExchangeRequest{
		SenderID:       sender,
		ReceiverID:     req.ReceiverID,
		SkillOffered:   offered,
		SkillRequested: requested,
		Message:        message,
		Status:         models.RequestStatusPending,
	}
	if err := s.requests.Create(ctx, created); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrDuplicateRequest
		}
		return nil, fmt.Errorf("failed to create exchange request: %w", err)
	}

	monitoring.RecordRequestProposed()
	log.Info().
		Str("request_id", created.ID.String()).
		Str("sender_id", sender.String()).
		Str("receiver_id", req.ReceiverID.String()).
		Msg("Exchange request proposed")

	return s.view(ctx, users, created, sender)
}

// Transition moves the request to target on behalf of actor
func (s *Service) Transition(ctx context.Context, requestID, actor uuid.UUID, target models.RequestStatus) (*models.RequestView, error) {
	if !isTarget(target) {
		return nil, ErrInvalidTargetStatus
	}

	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := Decide(req.Status, target, req.Role(actor)); err != nil {
		return nil, err
	}

	updated, err := s.requests.UpdateStatus(ctx, requestID, req.Status, target)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrRequestNotFound
		case errors.Is(err, store.ErrStatusChanged):
			return nil, fmt.Errorf("%w: request was updated concurrently", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("failed to update request status: %w", err)
	}

	monitoring.RecordRequestTransition(string(req.Status), string(target))
	logging.LogTransition(requestID.String(), actor.String(), string(req.Status), string(target))

	return s.view(ctx, newResolver(s.users), updated, actor)
}

// Get returns one request to a participant
func (s *Service) Get(ctx context.Context, requestID, viewer uuid.UUID) (*models.RequestView, error) {
	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.IsParticipant(viewer) {
		return nil, ErrNotParticipant
	}
	return s.view(ctx, newResolver(s.users), req, viewer)
}

// ListIncoming returns requests received by identity, newest first
func (s *Service) ListIncoming(ctx context.Context, identity uuid.UUID) ([]*models.RequestView, error) {
	reqs, err := s.requests.ListByReceiver(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to list incoming requests: %w", err)
	}
	return s.views(ctx, reqs, identity)
}

// ListSent returns requests sent by identity, newest first
func (s *Service) ListSent(ctx context.Context, identity uuid.UUID) ([]*models.RequestView, error) {
	reqs, err := s.requests.ListBySender(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to list sent requests: %w", err)
	}
	return s.views(ctx, reqs, identity)
}

func (s *Service) load(ctx context.Context, requestID uuid.UUID) (*models.ExchangeRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get exchange request: %w", err)
	}
	return req, nil
}

func (s *Service) views(ctx context.Context, reqs []*models.ExchangeRequest, viewer uuid.UUID) ([]*models.RequestView, error) {
	users := newResolver(s.users)
	out := make([]*models.RequestView, 0, len(reqs))
	for _, r := range reqs {
		v, err := s.view(ctx, users, r, viewer)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) view(ctx context.Context, users *resolver, req *models.ExchangeRequest, viewer uuid.UUID) (*models.RequestView, error) {
	sender, err := users.get(ctx, req.SenderID)
	if err != nil {
		return nil, err
	}
	receiver, err := users.get(ctx, req.ReceiverID)
	if err != nil {
		return nil, err
	}
	return &models.RequestView{
		ExchangeRequest: *req,
		Sender:          sender.Summary(),
		Receiver:        receiver.Summary(),
		AllowedActions:  AllowedActions(req, viewer),
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
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	r.seen[id] = u
	return u, nil
}
