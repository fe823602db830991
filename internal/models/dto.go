package models

import "time"

// ==================== Instance API DTOs ====================

// CreateInstanceRequest creates a new gateway instance
type CreateInstanceRequest struct {
	Name     string            `json:"name" binding:"required,min=2,max=50"`
	Adapter  string            `json:"adapter,omitempty"`
	Settings *InstanceSettings `json:"settings,omitempty"`
}

// UpdateInstanceRequest updates instance settings
type UpdateInstanceRequest struct {
	Settings InstanceSettings `json:"settings" binding:"required"`
}

// InstanceResponse is the API view of an instance
type InstanceResponse struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	Name        string           `json:"name"`
	Adapter     string           `json:"adapter"`
	Status      string           `json:"status"`
	PhoneNumber *string          `json:"phone_number,omitempty"`
	Settings    InstanceSettings `json:"settings"`
	QRCode      string           `json:"qr_code,omitempty"` // only populated right after creation
	CreatedAt   string           `json:"created_at"`
}

// InstanceListResponse is a paginated instance list
type InstanceListResponse struct {
	Instances  []*InstanceResponse `json:"instances"`
	Pagination Pagination          `json:"pagination"`
}

// InstanceStatusResponse is returned by status/QR queries
type InstanceStatusResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	QRCode     string `json:"qr_code,omitempty"`
	Reconciled bool   `json:"reconciled"` // false when a concurrent operation kept the stored state
}

// ==================== Message API DTOs ====================

// SendMessageRequest sends a message through a connected instance
type SendMessageRequest struct {
	InstanceID string `json:"instance_id" binding:"required"`
	Number     string `json:"number" binding:"required"`
	Message    string `json:"message" binding:"required"`
	Type       string `json:"type,omitempty"`
	MediaURL   string `json:"media_url,omitempty"`
}

// SendMessageResponse reports the gateway message id for a sent message
type SendMessageResponse struct {
	MessageID string    `json:"message_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// CheckNumberRequest asks whether a number is on WhatsApp
type CheckNumberRequest struct {
	InstanceID string `json:"instance_id" binding:"required"`
	Number     string `json:"number" binding:"required"`
}

// CheckNumberResponse is the number lookup result
type CheckNumberResponse struct {
	Number     string `json:"number"`
	IsWhatsApp bool   `json:"is_whatsapp"`
	JID        string `json:"jid,omitempty"`
}

// MessageResponse is the API view of an audit record
type MessageResponse struct {
	ID         string `json:"id"`
	InstanceID string `json:"instance_id"`
	To         string `json:"to"`
	From       string `json:"from"`
	Body       string `json:"body"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"`
}

// MessageListResponse is a paginated audit trail
type MessageListResponse struct {
	Messages   []*MessageResponse `json:"messages"`
	Pagination Pagination         `json:"pagination"`
}

// ==================== User Admin DTOs ====================

// CreateUserRequest provisions a user (internal admin API)
type CreateUserRequest struct {
	Name   string               `json:"name" binding:"required,min=2,max=50"`
	Email  string               `json:"email" binding:"required,email"`
	Role   string               `json:"role,omitempty" binding:"omitempty,oneof=ADMIN CLIENT"`
	Limits *UpdateLimitsRequest `json:"limits,omitempty"`
}

// UpdateUserRequest mutates user fields
type UpdateUserRequest struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Role     *string `json:"role,omitempty" binding:"omitempty,oneof=ADMIN CLIENT"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// UpdateLimitsRequest replaces a user's resource ceilings
type UpdateLimitsRequest struct {
	MaxInstances       int  `json:"max_instances" binding:"min=1"`
	MaxMessagesPerDay  int  `json:"max_messages_per_day" binding:"min=1"`
	MaxContacts        int  `json:"max_contacts" binding:"min=1"`
	MaxGroups          int  `json:"max_groups" binding:"min=1"`
	CanUseWebhooks     bool `json:"can_use_webhooks"`
	CanUseIntegrations bool `json:"can_use_integrations"`
}

// UserResponse is the API view of a user
type UserResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Role      string          `json:"role"`
	IsActive  bool            `json:"is_active"`
	Limits    *LimitsResponse `json:"limits,omitempty"`
	CreatedAt string          `json:"created_at"`
}

// LimitsResponse is the API view of a limits record
type LimitsResponse struct {
	MaxInstances       int  `json:"max_instances"`
	MaxMessagesPerDay  int  `json:"max_messages_per_day"`
	MaxContacts        int  `json:"max_contacts"`
	MaxGroups          int  `json:"max_groups"`
	CanUseWebhooks     bool `json:"can_use_webhooks"`
	CanUseIntegrations bool `json:"can_use_integrations"`
}

// UserListResponse is a paginated user list
type UserListResponse struct {
	Users      []*UserResponse `json:"users"`
	Pagination Pagination      `json:"pagination"`
}

// Pagination mirrors the page/limit query parameters
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}
