package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/models"
)

type LimitsRepository struct {
	pool *pgxpool.Pool
}

func NewLimitsRepository(pool *pgxpool.Pool) *LimitsRepository {
	return &LimitsRepository{pool: pool}
}

// GetByUserID retrieves a user's limits record. ErrNotFound means the
// user runs on system defaults.
func (r *LimitsRepository) GetByUserID(ctx context.Context, userID string) (*models.UserLimits, error) {
	query := `
		SELECT user_id, max_instances, max_messages_per_day, max_contacts, max_groups,
			   can_use_webhooks, can_use_integrations, created_at, updated_at
		FROM whatsapp.user_limits
		WHERE user_id = $1
	`

	limits := &models.UserLimits{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&limits.UserID, &limits.MaxInstances, &limits.MaxMessagesPerDay,
		&limits.MaxContacts, &limits.MaxGroups,
		&limits.CanUseWebhooks, &limits.CanUseIntegrations,
		&limits.CreatedAt, &limits.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user limits: %w", err)
	}

	return limits, nil
}

// Upsert creates or replaces a user's limits record
func (r *LimitsRepository) Upsert(ctx context.Context, limits *models.UserLimits) error {
	query := `
		INSERT INTO whatsapp.user_limits (
			user_id, max_instances, max_messages_per_day, max_contacts, max_groups,
			can_use_webhooks, can_use_integrations
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			max_instances = EXCLUDED.max_instances,
			max_messages_per_day = EXCLUDED.max_messages_per_day,
			max_contacts = EXCLUDED.max_contacts,
			max_groups = EXCLUDED.max_groups,
			can_use_webhooks = EXCLUDED.can_use_webhooks,
			can_use_integrations = EXCLUDED.can_use_integrations,
			updated_at = now()
	`

	_, err := r.pool.Exec(ctx, query,
		limits.UserID, limits.MaxInstances, limits.MaxMessagesPerDay,
		limits.MaxContacts, limits.MaxGroups,
		limits.CanUseWebhooks, limits.CanUseIntegrations,
	)
	if err != nil {
		return fmt.Errorf("upsert user limits: %w", err)
	}

	return nil
}

// Delete removes a user's limits record
func (r *LimitsRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM whatsapp.user_limits WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete user limits: %w", err)
	}
	return nil
}
