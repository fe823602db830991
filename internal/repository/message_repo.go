package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/models"
)

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// Insert appends a message audit record. Records are never mutated or
// deleted afterwards.
func (r *MessageRepository) Insert(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	query := `
		INSERT INTO whatsapp.messages (id, instance_id, to_number, from_number, body, type, status, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		msg.ID, msg.InstanceID, msg.To, msg.From, msg.Body, msg.Type, msg.Status, msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	return nil
}

// CountForUserSince counts message records across all of a user's
// instances with timestamp >= since (quota ledger source).
func (r *MessageRepository) CountForUserSince(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM whatsapp.messages m
		JOIN whatsapp.instances i ON i.id = m.instance_id
		WHERE i.user_id = $1 AND m.timestamp >= $2
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}

	return count, nil
}

// ListByInstance retrieves an instance's audit trail, newest first
func (r *MessageRepository) ListByInstance(ctx context.Context, instanceID string, limit, offset int) ([]*models.Message, int, error) {
	query := `
		SELECT id, instance_id, to_number, from_number, body, type, status, timestamp
		FROM whatsapp.messages
		WHERE instance_id = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, instanceID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		err := rows.Scan(&msg.ID, &msg.InstanceID, &msg.To, &msg.From,
			&msg.Body, &msg.Type, &msg.Status, &msg.Timestamp)
		if err != nil {
			return nil, 0, fmt.Errorf("scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM whatsapp.messages WHERE instance_id = $1`, instanceID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	return messages, total, nil
}
