package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is a chat line attached to an exchange request
type Message struct {
	ID         uuid.UUID `json:"id" db:"id"`
	RequestID  uuid.UUID `json:"request_id" db:"request_id"`
	SenderID   uuid.UUID `json:"sender_id" db:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id" db:"receiver_id"`
	Body       string    `json:"body" db:"body"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// MessageView is a message with both parties resolved
type MessageView struct {
	Message
	Sender   UserSummary `json:"sender"`
	Receiver UserSummary `json:"receiver"`
}
