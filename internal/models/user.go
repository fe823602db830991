package models

import "time"

// User role constants
const (
	RoleAdmin  = "ADMIN"
	RoleClient = "CLIENT"
)

// User is an operator or client account. Credentials are issued and
// verified by auth-service; this service only consumes its JWTs.
type User struct {
	ID        string
	Name      string
	Email     string
	Role      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserLimits are the per-user resource ceilings enforced by the quota
// ledger. A user without a limits row gets the configured defaults;
// admins are effectively unlimited.
type UserLimits struct {
	UserID             string
	MaxInstances       int
	MaxMessagesPerDay  int
	MaxContacts        int
	MaxGroups          int
	CanUseWebhooks     bool
	CanUseIntegrations bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
