package postgres

import (
	"context"
	"fmt"

	"github.com/aimerfeng/SkillExchange/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ratingColumns = `id, request_id, rater_id, ratee_id, stars, feedback, created_at`

type ratingStore struct {
	db *pgxpool.Pool
}

func scanRating(row pgx.Row) (*models.Rating, error) {
	var r models.Rating
	if err := row.Scan(&r.ID, &r.RequestID, &r.RaterID, &r.RateeID, &r.Stars, &r.Feedback, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *ratingStore) Create(ctx context.Context, rating *models.Rating) error {
	created, err := scanRating(s.db.QueryRow(ctx, `
		INSERT INTO ratings (request_id, rater_id, ratee_id, stars, feedback)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+ratingColumns,
		rating.RequestID, rating.RaterID, rating.RateeID, rating.Stars, rating.Feedback,
	))
	if err != nil {
		return translate(err)
	}
	*rating = *created
	return nil
}

func (s *ratingStore) GetByRequestAndRater(ctx context.Context, requestID, raterID uuid.UUID) (*models.Rating, error) {
	r, err := scanRating(s.db.QueryRow(ctx,
		`SELECT `+ratingColumns+` FROM ratings WHERE request_id = $1 AND rater_id = $2`,
		requestID, raterID))
	if err != nil {
		return nil, translate(err)
	}
	return r, nil
}

func (s *ratingStore) list(ctx context.Context, column string, id uuid.UUID) ([]*models.Rating, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+ratingColumns+` FROM ratings
		WHERE `+column+` = $1
		ORDER BY created_at DESC, id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query ratings: %w", err)
	}
	defer rows.Close()

	var out []*models.Rating
	for rows.Next() {
		r, err := scanRating(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ratings: %w", err)
	}
	return out, nil
}

func (s *ratingStore) ListByRatee(ctx context.Context, ratee uuid.UUID) ([]*models.Rating, error) {
	return s.list(ctx, "ratee_id", ratee)
}

func (s *ratingStore) ListByRater(ctx context.Context, rater uuid.UUID) ([]*models.Rating, error) {
	return s.list(ctx, "rater_id", rater)
}

func (s *ratingStore) StarsByRatee(ctx context.Context, ratee uuid.UUID) ([]int, error) {
	rows, err := s.db.Query(ctx, `SELECT stars FROM ratings WHERE ratee_id = $1`, ratee)
	if err != nil {
		return nil, fmt.Errorf("failed to query stars: %w", err)
	}
	stars, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, fmt.Errorf("failed to collect stars: %w", err)
	}
	return stars, nil
}
