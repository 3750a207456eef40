package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MinStars = 1
	MaxStars = 5
)

// Rating is one participant's score of the other after a completed exchange
type Rating struct {
	ID        uuid.UUID `json:"id" db:"id"`
	RequestID uuid.UUID `json:"request_id" db:"request_id"`
	RaterID   uuid.UUID `json:"rater_id" db:"rater_id"`
	RateeID   uuid.UUID `json:"ratee_id" db:"ratee_id"`
	Stars     int       `json:"stars" db:"stars"`
	Feedback  string    `json:"feedback" db:"feedback"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RatingView is a rating with both parties and the exchanged skills resolved
type RatingView struct {
	Rating
	Rater          UserSummary `json:"rater"`
	Ratee          UserSummary `json:"ratee"`
	SkillOffered   string      `json:"skill_offered,omitempty"`
	SkillRequested string      `json:"skill_requested,omitempty"`
}

// RatingSummary holds the derived aggregate for a user
type RatingSummary struct {
	UserID       uuid.UUID       `json:"user_id"`
	AvgRating    decimal.Decimal `json:"avg_rating"`
	RatingsCount int             `json:"ratings_count"`
}
