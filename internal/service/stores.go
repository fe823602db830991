package service

import (
	"context"
	"time"

	"github.com/wenwu/saas-platform/whatsapp-service/internal/client"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/models"
)

// Store interfaces consumed by the service layer. Implemented by the
// repository package in production and by in-memory fakes in tests.
// All return repository.ErrNotFound semantics through errors.Is.

type InstanceStore interface {
	Create(ctx context.Context, inst *models.Instance) error
	GetByID(ctx context.Context, id string) (*models.Instance, error)
	GetByName(ctx context.Context, name string) (*models.Instance, error)
	List(ctx context.Context, limit, offset int) ([]*models.Instance, int, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Instance, int, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	UpdateSettings(ctx context.Context, id string, s models.InstanceSettings) error
	UpdateState(ctx context.Context, id, status string, phoneNumber *string) error
	Delete(ctx context.Context, id string) error
}

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, int, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
}

type LimitsStore interface {
	GetByUserID(ctx context.Context, userID string) (*models.UserLimits, error)
	Upsert(ctx context.Context, limits *models.UserLimits) error
	Delete(ctx context.Context, userID string) error
}

type MessageStore interface {
	Insert(ctx context.Context, msg *models.Message) error
	CountForUserSince(ctx context.Context, userID string, since time.Time) (int, error)
	ListByInstance(ctx context.Context, instanceID string, limit, offset int) ([]*models.Message, int, error)
}

// Gateway is the surface of the Evolution API client the orchestrator
// depends on. *client.EvolutionClient satisfies it.
type Gateway interface {
	CreateInstance(ctx context.Context, name, adapter string, settings *models.InstanceSettings) (*client.CreateInstanceResult, error)
	ConnectionState(ctx context.Context, name string) (*client.ConnectionState, error)
	Connect(ctx context.Context, name string) error
	Logout(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
	Delete(ctx context.Context, name string) error
	SendText(ctx context.Context, name, number, text, mediaURL string) (string, error)
	CheckNumbers(ctx context.Context, name string, numbers []string) ([]client.NumberCheck, error)
	SetSettings(ctx context.Context, name string, settings *models.InstanceSettings) error
}

// Actor identifies who is performing an operation. Admins may act on
// any instance; clients only on their own.
type Actor struct {
	UserID string
	Role   string
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}
