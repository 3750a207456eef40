package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/aimerfeng/SkillExchange/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const userColumns = `id, name, email, password_hash, bio, skills, avg_rating, ratings_count, created_at, updated_at`

type userStore struct {
	db *pgxpool.Pool
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Bio, &u.Skills,
		&u.AvgRating, &u.RatingsCount, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *userStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

func (s *userStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

func (s *userStore) Create(ctx context.Context, user *models.User) error {
	skills := user.Skills
	if skills == nil {
		skills = []string{}
	}
	created, err := scanUser(s.db.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash, bio, skills)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		user.Name, user.Email, user.PasswordHash, user.Bio, skills,
	))
	if err != nil {
		return translate(err)
	}
	*user = *created
	return nil
}

func (s *userStore) UpdateProfile(ctx context.Context, user *models.User) error {
	updated, err := scanUser(s.db.QueryRow(ctx, `
		UPDATE users SET name = $2, bio = $3, skills = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns,
		user.ID, user.Name, user.Bio, user.Skills,
	))
	if err != nil {
		return translate(err)
	}
	*user = *updated
	return nil
}

func (s *userStore) UpdateRatingAggregate(ctx context.Context, id uuid.UUID, avg decimal.Decimal, count int) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users SET avg_rating = $2, ratings_count = $3, updated_at = NOW()
		WHERE id = $1
	`, id, avg, count)
	if err != nil {
		return fmt.Errorf("failed to update rating aggregate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return translate(pgx.ErrNoRows)
	}
	return nil
}

// escapeLike makes the search term match literally inside ILIKE
func escapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}

func (s *userStore) Search(ctx context.Context, skill string, exclude uuid.UUID, limit int) ([]*models.User, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+userColumns+` FROM users u
		WHERE u.id <> $1
		  AND EXISTS (SELECT 1 FROM unnest(u.skills) AS s(skill) WHERE s.skill ILIKE '%' || $2 || '%')
		ORDER BY u.name, u.id
		LIMIT $3
	`, exclude, escapeLike(skill), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

func (s *userStore) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to collect user ids: %w", err)
	}
	return ids, nil
}
