package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User represents a registered member of the exchange
type User struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	Name         string          `json:"name" db:"name"`
	Email        string          `json:"email" db:"email"`
	PasswordHash string          `json:"-" db:"password_hash"`
	Bio          string          `json:"bio" db:"bio"`
	Skills       []string        `json:"skills" db:"skills"`
	AvgRating    decimal.Decimal `json:"avg_rating" db:"avg_rating"`
	RatingsCount int             `json:"ratings_count" db:"ratings_count"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// PublicProfile is the view of a user shown to other members
type PublicProfile struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Bio          string          `json:"bio"`
	Skills       []string        `json:"skills"`
	AvgRating    decimal.Decimal `json:"avg_rating"`
	RatingsCount int             `json:"ratings_count"`
}

// Public strips private fields
func (u *User) Public() PublicProfile {
	return PublicProfile{
		ID:           u.ID,
		Name:         u.Name,
		Bio:          u.Bio,
		Skills:       u.Skills,
		AvgRating:    u.AvgRating,
		RatingsCount: u.RatingsCount,
	}
}

// UserSummary is the compact participant view embedded in requests,
// messages and ratings.
type UserSummary struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Email        string          `json:"email,omitempty"`
	Skills       []string        `json:"skills,omitempty"`
	AvgRating    decimal.Decimal `json:"avg_rating"`
	RatingsCount int             `json:"ratings_count"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Skills:       u.Skills,
		AvgRating:    u.AvgRating,
		RatingsCount: u.RatingsCount,
	}
}

// NameOnly is the summary used where only the display name is shown
func (u *User) NameOnly() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name}
}

// NormalizeSkills trims each entry and drops empty ones, keeping order.
// Duplicates are kept.
func NormalizeSkills(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// LongestSkillLen returns the length in characters of the longest skill
func LongestSkillLen(skills []string) int {
	longest := 0
	for _, s := range skills {
		if n := utf8.RuneCountInString(s); n > longest {
			longest = n
		}
	}
	return longest
}
