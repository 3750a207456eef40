// Package postgres implements the store contracts on top of pgx.
package postgres

import (
	"errors"

	"github.com/aimerfeng/SkillExchange/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// New returns the store set backed by pool
func New(pool *pgxpool.Pool) *store.Stores {
	return &store.Stores{
		Users:    &userStore{db: pool},
		Requests: &requestStore{db: pool},
		Messages: &messageStore{db: pool},
		Ratings:  &ratingStore{db: pool},
	}
}

// translate maps driver errors onto the store sentinels
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return store.ErrDuplicate
	}
	return err
}
