package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/aimerfeng/SkillExchange/internal/models"
	"github.com/aimerfeng/SkillExchange/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const requestColumns = `id, sender_id, receiver_id, skill_offered, skill_requested, message, status, created_at, updated_at`

type requestStore struct {
	db *pgxpool.Pool
}

func scanRequest(row pgx.Row) (*models.ExchangeRequest, error) {
	var r models.ExchangeRequest
	err := row.Scan(
		&r.ID, &r.SenderID, &r.ReceiverID, &r.SkillOffered, &r.SkillRequested,
		&r.Message, &r.Status, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *requestStore) GetByID(ctx context.Context, id uuid.UUID) (*models.ExchangeRequest, error) {
	r, err := scanRequest(s.db.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM exchange_requests WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return r, nil
}

func (s *requestStore) FindActive(ctx context.Context, sender, receiver uuid.UUID, skillOffered, skillRequested string) (*models.ExchangeRequest, error) {
	r, err := scanRequest(s.db.QueryRow(ctx, `
		SELECT `+requestColumns+` FROM exchange_requests
		WHERE sender_id = $1 AND receiver_id = $2
		  AND skill_offered = $3 AND skill_requested = $4
		  AND status IN ('pending', 'accepted')
	`, sender, receiver, skillOffered, skillRequested))
	if err != nil {
		return nil, translate(err)
	}
	return r, nil
}

func (s *requestStore) Create(ctx context.Context, req *models.ExchangeRequest) error {
	if req.Status == "" {
		req.Status = models.RequestStatusPending
	}
	created, err := scanRequest(s.db.QueryRow(ctx, `
		INSERT INTO exchange_requests (sender_id, receiver_id, skill_offered, skill_requested, message, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+requestColumns,
		req.SenderID, req.ReceiverID, req.SkillOffered, req.SkillRequested, req.Message, req.Status,
	))
	if err != nil {
		return translate(err)
	}
	*req = *created
	return nil
}

func (s *requestStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.RequestStatus) (*models.ExchangeRequest, error) {
	r, err := scanRequest(s.db.QueryRow(ctx, `
		UPDATE exchange_requests SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+requestColumns,
		id, from, to,
	))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, translate(err)
	}

	// Nothing matched: either the row is gone or its status moved on
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM exchange_requests WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check request existence: %w", err)
	}
	if !exists {
		return nil, store.ErrNotFound
	}
	return nil, store.ErrStatusChanged
}

func (s *requestStore) list(ctx context.Context, column string, id uuid.UUID) ([]*models.ExchangeRequest, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+requestColumns+` FROM exchange_requests
		WHERE `+column+` = $1
		ORDER BY created_at DESC, id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var out []*models.ExchangeRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating requests: %w", err)
	}
	return out, nil
}

func (s *requestStore) ListByReceiver(ctx context.Context, receiver uuid.UUID) ([]*models.ExchangeRequest, error) {
	return s.list(ctx, "receiver_id", receiver)
}

func (s *requestStore) ListBySender(ctx context.Context, sender uuid.UUID) ([]*models.ExchangeRequest, error) {
	return s.list(ctx, "sender_id", sender)
}
