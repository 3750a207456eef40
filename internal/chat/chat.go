// Package chat gates messages on exchange requests. Clients poll List for
// new messages.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aimerfeng/SkillExchange/internal/config"
	apierrors "github.com/aimerfeng/SkillExchange/internal/errors"
	"github.com/aimerfeng/SkillExchange/internal/models"
	"github.com/aimerfeng/SkillExchange/internal/monitoring"
	"github.com/aimerfeng/SkillExchange/internal/store"
	"github.com/google/uuid"
)

var (
	ErrInvalidInput    = apierrors.NewDomainError(apierrors.KindInvalidArgument, "invalid input")
	ErrRequestNotFound = apierrors.NewDomainError(apierrors.KindNotFound, "exchange request not found")
	ErrNotConversable  = apierrors.NewDomainError(apierrors.KindInvalidState, "messages are only allowed on accepted or completed requests")
	ErrNotParticipant  = apierrors.NewDomainError(apierrors.KindForbidden, "not a participant of this exchange request")
)

// Service sends and lists messages
type Service struct {
	messages store.MessageStore
	requests store.RequestStore
	users    store.UserStore
	limits   *config.LimitsConfig
}

func NewService(stores *store.Stores, limits *config.LimitsConfig) *Service {
	return &Service{
		messages: stores.Messages,
		requests: stores.Requests,
		users:    stores.Users,
		limits:   limits,
	}
}

// SendRequest represents a message to post
type SendRequest struct {
	RequestID uuid.UUID `json:"request_id"`
	Body      string    `json:"body" binding:"required"`
}

// Send posts body on the request from sender to the other participant
func (s *Service) Send(ctx context.Context, requestID, sender uuid.UUID, body string) (*models.MessageView, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: message body is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(body) > s.limits.MaxMessageLen {
		return nil, fmt.Errorf("%w: message must be at most %d characters", ErrInvalidInput, s.limits.MaxMessageLen)
	}
	if requestID == uuid.Nil {
		return nil, fmt.Errorf("%w: request_id is required", ErrInvalidInput)
	}

	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.Status.Conversable() {
		return nil, ErrNotConversable
	}
	receiver, ok := req.Counterpart(sender)
	if !ok {
		return nil, ErrNotParticipant
	}

	msg := &models.Message{
		RequestID:  requestID,
		SenderID:   sender,
		ReceiverID: receiver,
		Body:       body,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	monitoring.RecordMessageSent()

	names, err := s.names(ctx, req)
	if err != nil {
		return nil, err
	}
	return names.view(msg), nil
}

// List returns the conversation on a request, oldest first
func (s *Service) List(ctx context.Context, requestID, viewer uuid.UUID) ([]*models.MessageView, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.IsParticipant(viewer) {
		return nil, ErrNotParticipant
	}

	msgs, err := s.messages.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	names, err := s.names(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make([]*models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, names.view(m))
	}
	return out, nil
}

func (s *Service) loadRequest(ctx context.Context, requestID uuid.UUID) (*models.ExchangeRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get exchange request: %w", err)
	}
	return req, nil
}

// participants maps the two parties of a request to their display names
type participants map[uuid.UUID]models.UserSummary

func (s *Service) names(ctx context.Context, req *models.ExchangeRequest) (participants, error) {
	p := make(participants, 2)
	for _, id := range []uuid.UUID{req.SenderID, req.ReceiverID} {
		u, err := s.users.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get participant: %w", err)
		}
		p[id] = u.NameOnly()
	}
	return p, nil
}

func (p participants) view(m *models.Message) *models.MessageView {
	return &models.MessageView{
		Message:  *m,
		Sender:   p[m.SenderID],
		Receiver: p[m.ReceiverID],
	}
}
