package postgres

import (
	"context"
	"fmt"

	"github.com/aimerfeng/SkillExchange/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type messageStore struct {
	db *pgxpool.Pool
}

func (s *messageStore) Create(ctx context.Context, msg *models.Message) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO messages (request_id, sender_id, receiver_id, body)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, msg.RequestID, msg.SenderID, msg.ReceiverID, msg.Body).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return translate(err)
	}
	return nil
}

func (s *messageStore) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*models.Message, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, request_id, sender_id, receiver_id, body, created_at
		FROM messages
		WHERE request_id = $1
		ORDER BY created_at ASC, id
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.RequestID, &m.SenderID, &m.ReceiverID, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return out, nil
}
