package models

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus represents the lifecycle state of an exchange request
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusAccepted  RequestStatus = "accepted"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusCompleted RequestStatus = "completed"
)

// Valid reports whether s is one of the known statuses
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusAccepted, RequestStatusRejected, RequestStatusCompleted:
		return true
	}
	return false
}

// Active reports whether a request in this status blocks a duplicate proposal
func (s RequestStatus) Active() bool {
	return s == RequestStatusPending || s == RequestStatusAccepted
}

// Conversable reports whether participants may exchange messages
func (s RequestStatus) Conversable() bool {
	return s == RequestStatusAccepted || s == RequestStatusCompleted
}

// ParticipantRole is the position an actor holds on a request
type ParticipantRole string

const (
	RoleNone     ParticipantRole = ""
	RoleSender   ParticipantRole = "sender"
	RoleReceiver ParticipantRole = "receiver"
)

// ExchangeRequest is a proposal from sender to receiver to swap skills
type ExchangeRequest struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	SenderID       uuid.UUID     `json:"sender_id" db:"sender_id"`
	ReceiverID     uuid.UUID     `json:"receiver_id" db:"receiver_id"`
	SkillOffered   string        `json:"skill_offered" db:"skill_offered"`
	SkillRequested string        `json:"skill_requested" db:"skill_requested"`
	Message        string        `json:"message" db:"message"`
	Status         RequestStatus `json:"status" db:"status"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// Role returns the role actor holds on the request
func (r *ExchangeRequest) Role(actor uuid.UUID) ParticipantRole {
	switch actor {
	case r.SenderID:
		return RoleSender
	case r.ReceiverID:
		return RoleReceiver
	}
	return RoleNone
}

// IsParticipant reports whether actor is the sender or the receiver
func (r *ExchangeRequest) IsParticipant(actor uuid.UUID) bool {
	return r.Role(actor) != RoleNone
}

// Counterpart returns the other participant. ok is false when actor does
// not participate in the request.
func (r *ExchangeRequest) Counterpart(actor uuid.UUID) (uuid.UUID, bool) {
	switch r.Role(actor) {
	case RoleSender:
		return r.ReceiverID, true
	case RoleReceiver:
		return r.SenderID, true
	}
	return uuid.Nil, false
}

// RequestView is an exchange request with its participants resolved
type RequestView struct {
	ExchangeRequest
	Sender         UserSummary     `json:"sender"`
	Receiver       UserSummary     `json:"receiver"`
	AllowedActions []RequestStatus `json:"allowed_actions"`
}
