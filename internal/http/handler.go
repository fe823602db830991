package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wenwu/saas-platform/whatsapp-service/internal/client"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/models"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/service"
)

type Handler struct {
	instanceService *service.InstanceService
	messageService  *service.MessageService
	userService     *service.UserService
}

func NewHandler(instanceService *service.InstanceService, messageService *service.MessageService, userService *service.UserService) *Handler {
	return &Handler{
		instanceService: instanceService,
		messageService:  messageService,
		userService:     userService,
	}
}

// respondError maps domain errors onto HTTP statuses. Everything the
// service layer returns deliberately passes through here so status
// codes stay consistent across endpoints.
func respondError(c *gin.Context, err error) {
	var quotaErr *service.QuotaExceededError
	if errors.As(err, &quotaErr) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   quotaErr.Error(),
			"kind":    quotaErr.Kind,
			"limit":   quotaErr.Limit,
			"current": quotaErr.Current,
		})
		return
	}

	var transitionErr *service.InvalidTransitionError
	if errors.As(err, &transitionErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": transitionErr.Error(),
			"state": transitionErr.State,
		})
		return
	}

	var gatewayErr *client.Error
	if errors.As(err, &gatewayErr) {
		status := http.StatusBadGateway
		switch gatewayErr.Kind {
		case client.KindUnreachable:
			status = http.StatusServiceUnavailable
		case client.KindRejected:
			// 网关的 4xx 原样透传，其他情况按上游故障处理
			if gatewayErr.StatusCode >= 400 && gatewayErr.StatusCode < 500 {
				status = gatewayErr.StatusCode
			}
		}
		c.JSON(status, gin.H{"error": gatewayErr.Error()})
		return
	}

	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrInstanceBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "another operation on this instance is in progress"})
	case errors.Is(err, service.ErrNameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "instance name already exists"})
	case errors.Is(err, service.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "user already exists with this email"})
	case errors.Is(err, service.ErrUserHasInstances):
		c.JSON(http.StatusConflict, gin.H{"error": "user still has instances, delete them first"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	return page, limit
}

// ==================== Instance Handlers ====================

// CreateInstance provisions a new WhatsApp instance for the current user
func (h *Handler) CreateInstance(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req models.CreateInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.instanceService.Create(c.Request.Context(), actor, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// ListInstances lists instances visible to the current user
func (h *Handler) ListInstances(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	page, limit := pageParams(c)
	resp, err := h.instanceService.List(c.Request.Context(), actor, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetInstance gets a single instance by ID
func (h *Handler) GetInstance(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	resp, err := h.instanceService.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// UpdateInstanceSettings updates instance behavior flags
func (h *Handler) UpdateInstanceSettings(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req models.UpdateInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.instanceService.UpdateSettings(c.Request.Context(), actor, c.Param("id"), req.Settings)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// DeleteInstance removes an instance locally and on the gateway
func (h *Handler) DeleteInstance(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	if err := h.instanceService.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// ConnectInstance starts the pairing flow
func (h *Handler) ConnectInstance(c *gin.Context) {
	h.lifecycle(c, h.instanceService.Connect)
}

// DisconnectInstance logs the instance out of WhatsApp
func (h *Handler) DisconnectInstance(c *gin.Context) {
	h.lifecycle(c, h.instanceService.Disconnect)
}

// RestartInstance restarts the instance on the gateway
func (h *Handler) RestartInstance(c *gin.Context) {
	h.lifecycle(c, h.instanceService.Restart)
}

// GetInstanceStatus reconciles and returns the connection state
func (h *Handler) GetInstanceStatus(c *gin.Context) {
	h.lifecycle(c, h.instanceService.GetStatus)
}

func (h *Handler) lifecycle(c *gin.Context, op func(ctx context.Context, actor service.Actor, id string) (*models.InstanceStatusResponse, error)) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	resp, err := op(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetInstanceQRCode returns the current pairing QR code, if any
func (h *Handler) GetInstanceQRCode(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	resp, err := h.instanceService.GetStatus(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	if resp.QRCode == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no QR code available", "status": resp.Status})
		return
	}

	c.JSON(http.StatusOK, gin.H{"qrcode": resp.QRCode, "status": resp.Status})
}

// ListInstanceMessages returns the message audit trail of an instance
func (h *Handler) ListInstanceMessages(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	page, limit := pageParams(c)
	resp, err := h.messageService.ListByInstance(c.Request.Context(), actor, c.Param("id"), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ==================== Message Handlers ====================

// SendMessage sends a text message through a connected instance
func (h *Handler) SendMessage(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.messageService.Send(c.Request.Context(), actor, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CheckNumber verifies whether a phone number exists on WhatsApp
func (h *Handler) CheckNumber(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req models.CheckNumberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.messageService.CheckNumber(c.Request.Context(), actor, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ==================== Internal User Handlers ====================

// CreateUser creates a user with optional explicit limits
func (h *Handler) CreateUser(c *gin.Context) {
	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.userService.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// ListUsers lists all users
func (h *Handler) ListUsers(c *gin.Context) {
	page, limit := pageParams(c)
	resp, err := h.userService.List(c.Request.Context(), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetUser gets a user with their effective limits
func (h *Handler) GetUser(c *gin.Context) {
	resp, err := h.userService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// UpdateUser patches user fields
func (h *Handler) UpdateUser(c *gin.Context) {
	var req models.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.userService.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// DeleteUser removes a user without instances
func (h *Handler) DeleteUser(c *gin.Context) {
	if err := h.userService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// SetUserLimits upserts a user's quota ceilings
func (h *Handler) SetUserLimits(c *gin.Context) {
	var req models.UpdateLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.userService.SetLimits(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
