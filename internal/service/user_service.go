package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/models"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/repository"
)

// UserService manages user accounts and their resource ceilings. Only
// privileged surfaces (internal admin API) reach it.
type UserService struct {
	users     UserStore
	limits    LimitsStore
	instances InstanceStore
	defaults  models.UserLimits
}

// NewUserService creates the user administration service.
func NewUserService(users UserStore, limits LimitsStore, instances InstanceStore, defaults models.UserLimits) *UserService {
	return &UserService{
		users:     users,
		limits:    limits,
		instances: instances,
		defaults:  defaults,
	}
}

// Create provisions a user and their limits record. Clients get the
// system defaults unless explicit limits are supplied; admins need no
// limits row since the ledger treats them as unlimited.
func (s *UserService) Create(ctx context.Context, req *models.CreateUserRequest) (*models.UserResponse, error) {
	if _, err := s.users.GetByEmail(ctx, req.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, storageErr("get user by email", err)
	}

	role := req.Role
	if role == "" {
		role = models.RoleClient
	}

	user := &models.User{
		ID:       uuid.New().String(),
		Name:     req.Name,
		Email:    req.Email,
		Role:     role,
		IsActive: true,
	}
	user.CreatedAt = time.Now()

	if err := s.users.Create(ctx, user); err != nil {
		return nil, storageErr("create user", err)
	}

	var limits *models.UserLimits
	if req.Limits != nil {
		limits = limitsFromRequest(user.ID, req.Limits)
	} else if role == models.RoleClient {
		defaults := s.defaults
		defaults.UserID = user.ID
		limits = &defaults
	}
	if limits != nil {
		if err := s.limits.Upsert(ctx, limits); err != nil {
			return nil, storageErr("upsert user limits", err)
		}
	}

	log.Printf("[UserService] User %s created (role: %s)", user.ID, user.Role)
	return s.toResponse(user, limits), nil
}

// Get returns a user with their effective limits record attached.
func (s *UserService) Get(ctx context.Context, id string) (*models.UserResponse, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get user", err)
	}

	limits, err := s.limits.GetByUserID(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, storageErr("get user limits", err)
	}

	return s.toResponse(user, limits), nil
}

// List returns users, newest first.
func (s *UserService) List(ctx context.Context, page, limit int) (*models.UserListResponse, error) {
	page, limit = normalizePage(page, limit)
	offset := (page - 1) * limit

	users, total, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, storageErr("list users", err)
	}

	resp := &models.UserListResponse{
		Pagination: paginate(page, limit, total),
	}
	for _, user := range users {
		resp.Users = append(resp.Users, s.toResponse(user, nil))
	}
	return resp, nil
}

// Update mutates user fields. Only fields present in the request change.
func (s *UserService) Update(ctx context.Context, id string, req *models.UpdateUserRequest) (*models.UserResponse, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get user", err)
	}

	if req.Email != nil && *req.Email != user.Email {
		if _, err := s.users.GetByEmail(ctx, *req.Email); err == nil {
			return nil, ErrEmailTaken
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, storageErr("get user by email", err)
		}
		user.Email = *req.Email
	}
	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, storageErr("update user", err)
	}

	return s.toResponse(user, nil), nil
}

// Delete removes a user and their limits record. A user who still owns
// instances cannot be deleted; their instances must go first so no
// instance is ever left ownerless.
func (s *UserService) Delete(ctx context.Context, id string) error {
	if _, err := s.users.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return storageErr("get user", err)
	}

	count, err := s.instances.CountByUser(ctx, id)
	if err != nil {
		return storageErr("count instances", err)
	}
	if count > 0 {
		return ErrUserHasInstances
	}

	if err := s.limits.Delete(ctx, id); err != nil {
		return storageErr("delete user limits", err)
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return storageErr("delete user", err)
	}

	log.Printf("[UserService] User %s deleted", id)
	return nil
}

// SetLimits replaces a user's resource ceilings.
func (s *UserService) SetLimits(ctx context.Context, id string, req *models.UpdateLimitsRequest) (*models.LimitsResponse, error) {
	if _, err := s.users.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get user", err)
	}

	limits := limitsFromRequest(id, req)
	if err := s.limits.Upsert(ctx, limits); err != nil {
		return nil, storageErr("upsert user limits", err)
	}

	log.Printf("[UserService] Limits updated for user %s (instances: %d, messages/day: %d)",
		id, limits.MaxInstances, limits.MaxMessagesPerDay)

	return limitsResponse(limits), nil
}

func limitsFromRequest(userID string, req *models.UpdateLimitsRequest) *models.UserLimits {
	return &models.UserLimits{
		UserID:             userID,
		MaxInstances:       req.MaxInstances,
		MaxMessagesPerDay:  req.MaxMessagesPerDay,
		MaxContacts:        req.MaxContacts,
		MaxGroups:          req.MaxGroups,
		CanUseWebhooks:     req.CanUseWebhooks,
		CanUseIntegrations: req.CanUseIntegrations,
	}
}

func limitsResponse(limits *models.UserLimits) *models.LimitsResponse {
	return &models.LimitsResponse{
		MaxInstances:       limits.MaxInstances,
		MaxMessagesPerDay:  limits.MaxMessagesPerDay,
		MaxContacts:        limits.MaxContacts,
		MaxGroups:          limits.MaxGroups,
		CanUseWebhooks:     limits.CanUseWebhooks,
		CanUseIntegrations: limits.CanUseIntegrations,
	}
}

func (s *UserService) toResponse(user *models.User, limits *models.UserLimits) *models.UserResponse {
	resp := &models.UserResponse{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Role:      user.Role,
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	}
	if limits != nil {
		resp.Limits = limitsResponse(limits)
	}
	return resp
}
