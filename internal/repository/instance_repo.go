package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/models"
)

var ErrNotFound = errors.New("not found")

const instanceColumns = `id, user_id, name, adapter, token, status, phone_number,
	   reject_call, msg_call, groups_ignore, always_online, read_messages, read_status, sync_full_history,
	   created_at, updated_at`

type InstanceRepository struct {
	pool *pgxpool.Pool
}

func NewInstanceRepository(pool *pgxpool.Pool) *InstanceRepository {
	return &InstanceRepository{pool: pool}
}

// Create inserts a new instance row
func (r *InstanceRepository) Create(ctx context.Context, inst *models.Instance) error {
	query := `
		INSERT INTO whatsapp.instances (
			id, user_id, name, adapter, token, status, phone_number,
			reject_call, msg_call, groups_ignore, always_online, read_messages, read_status, sync_full_history
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`

	_, err := r.pool.Exec(ctx, query,
		inst.ID, inst.UserID, inst.Name, inst.Adapter, inst.Token, inst.Status, inst.PhoneNumber,
		inst.Settings.RejectCall, inst.Settings.MsgCall, inst.Settings.GroupsIgnore,
		inst.Settings.AlwaysOnline, inst.Settings.ReadMessages, inst.Settings.ReadStatus,
		inst.Settings.SyncFullHistory,
	)
	if err != nil {
		return fmt.Errorf("insert instance: %w", err)
	}

	return nil
}

// GetByID retrieves an instance by ID
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM whatsapp.instances WHERE id = $1`
	return r.scanInstance(r.pool.QueryRow(ctx, query, id))
}

// GetByName retrieves an instance by its globally unique name
func (r *InstanceRepository) GetByName(ctx context.Context, name string) (*models.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM whatsapp.instances WHERE name = $1`
	return r.scanInstance(r.pool.QueryRow(ctx, query, name))
}

// List retrieves all instances, newest first
func (r *InstanceRepository) List(ctx context.Context, limit, offset int) ([]*models.Instance, int, error) {
	query := `SELECT ` + instanceColumns + `
		FROM whatsapp.instances
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query instances: %w", err)
	}
	defer rows.Close()

	instances, err := r.scanInstances(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM whatsapp.instances`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count instances: %w", err)
	}

	return instances, total, nil
}

// ListByUser retrieves a user's instances, newest first
func (r *InstanceRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Instance, int, error) {
	query := `SELECT ` + instanceColumns + `
		FROM whatsapp.instances
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query instances: %w", err)
	}
	defer rows.Close()

	instances, err := r.scanInstances(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM whatsapp.instances WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count instances: %w", err)
	}

	return instances, total, nil
}

// CountByUser counts a user's live instances (quota ledger source)
func (r *InstanceRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM whatsapp.instances WHERE user_id = $1`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count instances: %w", err)
	}
	return count, nil
}

// UpdateSettings persists the pass-through behavior flags
func (r *InstanceRepository) UpdateSettings(ctx context.Context, id string, s models.InstanceSettings) error {
	query := `
		UPDATE whatsapp.instances SET
			reject_call = $1,
			msg_call = $2,
			groups_ignore = $3,
			always_online = $4,
			read_messages = $5,
			read_status = $6,
			sync_full_history = $7,
			updated_at = now()
		WHERE id = $8
	`

	_, err := r.pool.Exec(ctx, query,
		s.RejectCall, s.MsgCall, s.GroupsIgnore, s.AlwaysOnline,
		s.ReadMessages, s.ReadStatus, s.SyncFullHistory, id,
	)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}

	return nil
}

// UpdateState updates the lifecycle status; a non-nil phoneNumber also
// records the linked number reported by the gateway.
func (r *InstanceRepository) UpdateState(ctx context.Context, id, status string, phoneNumber *string) error {
	query := `
		UPDATE whatsapp.instances
		SET status = $1, phone_number = COALESCE($2, phone_number), updated_at = now()
		WHERE id = $3
	`
	_, err := r.pool.Exec(ctx, query, status, phoneNumber, id)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	return nil
}

// Delete removes an instance row
func (r *InstanceRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM whatsapp.instances WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	return nil
}

func (r *InstanceRepository) scanInstance(row pgx.Row) (*models.Instance, error) {
	inst := &models.Instance{}
	err := row.Scan(
		&inst.ID, &inst.UserID, &inst.Name, &inst.Adapter, &inst.Token, &inst.Status, &inst.PhoneNumber,
		&inst.Settings.RejectCall, &inst.Settings.MsgCall, &inst.Settings.GroupsIgnore,
		&inst.Settings.AlwaysOnline, &inst.Settings.ReadMessages, &inst.Settings.ReadStatus,
		&inst.Settings.SyncFullHistory,
		&inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan instance: %w", err)
	}
	return inst, nil
}

func (r *InstanceRepository) scanInstances(rows pgx.Rows) ([]*models.Instance, error) {
	var instances []*models.Instance
	for rows.Next() {
		inst := &models.Instance{}
		err := rows.Scan(
			&inst.ID, &inst.UserID, &inst.Name, &inst.Adapter, &inst.Token, &inst.Status, &inst.PhoneNumber,
			&inst.Settings.RejectCall, &inst.Settings.MsgCall, &inst.Settings.GroupsIgnore,
			&inst.Settings.AlwaysOnline, &inst.Settings.ReadMessages, &inst.Settings.ReadStatus,
			&inst.Settings.SyncFullHistory,
			&inst.CreatedAt, &inst.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan instance row: %w", err)
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}
