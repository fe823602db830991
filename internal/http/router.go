package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wenwu/saas-platform/whatsapp-service/internal/config"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/service"
)

// RateLimiter 简单的内存速率限制器
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int           // 最大请求数
	window   time.Duration // 时间窗口
}

// NewRateLimiter 创建速率限制器
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow 检查是否允许请求
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)

	// 清理过期请求
	var valid []time.Time
	for _, t := range rl.requests[key] {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}

	// 检查是否超过限制
	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	// 记录新请求
	rl.requests[key] = append(valid, now)
	return true
}

// RateLimitMiddleware 速率限制中间件
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 使用用户 ID 或 IP 作为限制 key
		key := c.GetString("userID")
		if key == "" {
			key = c.ClientIP()
		}

		if !rl.Allow(key) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, please try again later",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

type Server struct {
	router  *gin.Engine
	handler *Handler
	cfg     *config.Config
}

// 全局速率限制器: 每用户每分钟最多 60 次请求
var userRateLimiter = NewRateLimiter(60, time.Minute)

// 实例创建速率限制器: 每用户每小时最多 10 次创建请求
// 说明: 配额本身限制实例数量，这里只防御重试风暴
var createRateLimiter = NewRateLimiter(10, time.Hour)

func NewServer(cfg *config.Config, instanceService *service.InstanceService, messageService *service.MessageService, userService *service.UserService) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	handler := NewHandler(instanceService, messageService, userService)

	s := &Server{
		router:  router,
		handler: handler,
		cfg:     cfg,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "whatsapp-service",
		})
	})

	// Prometheus metrics
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// User API - requires JWT authentication
	user := s.router.Group("/api/v1")
	user.Use(JWTAuthMiddleware(s.cfg.JWT.SecretKey))
	user.Use(RateLimitMiddleware(userRateLimiter)) // 用户 API 速率限制
	{
		// Instance management
		instances := user.Group("/instances")
		{
			// 创建实例使用更严格的速率限制
			instances.POST("", RateLimitMiddleware(createRateLimiter), s.handler.CreateInstance)
			instances.GET("", s.handler.ListInstances)
			instances.GET("/:id", s.handler.GetInstance)
			instances.PUT("/:id/settings", s.handler.UpdateInstanceSettings)
			instances.DELETE("/:id", s.handler.DeleteInstance)

			// Lifecycle operations
			instances.POST("/:id/connect", s.handler.ConnectInstance)
			instances.POST("/:id/disconnect", s.handler.DisconnectInstance)
			instances.POST("/:id/restart", s.handler.RestartInstance)
			instances.GET("/:id/status", s.handler.GetInstanceStatus)
			instances.GET("/:id/qrcode", s.handler.GetInstanceQRCode)

			// Message audit trail
			instances.GET("/:id/messages", s.handler.ListInstanceMessages)
		}

		// Messaging
		messages := user.Group("/messages")
		{
			messages.POST("/send", s.handler.SendMessage)
			messages.POST("/check-number", s.handler.CheckNumber)
		}
	}

	// Internal API - called by user-portal / subscription-service
	internal := s.router.Group("/api/internal")
	internal.Use(InternalAuthMiddleware(s.cfg.InternalSecret))
	{
		// User and limits management
		internal.POST("/users", s.handler.CreateUser)
		internal.GET("/users", s.handler.ListUsers)
		internal.GET("/users/:id", s.handler.GetUser)
		internal.PUT("/users/:id", s.handler.UpdateUser)
		internal.DELETE("/users/:id", s.handler.DeleteUser)
		internal.PUT("/users/:id/limits", s.handler.SetUserLimits)
	}
}

func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
