package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/wenwu/saas-platform/whatsapp-service/internal/models"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/service"
)

// JWTAuthMiddleware validates JWT tokens for user endpoints
// 兼容 auth-service 签发的 JWT 格式，使用 MapClaims 解析
func JWTAuthMiddleware(secretKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			c.Abort()
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			return []byte(secretKey), nil
		})

		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			c.Abort()
			return
		}

		// 提取用户信息，兼容 auth-service 的 JWT 格式
		// 优先使用 uid 字段，其次使用 sub 字段（标准 JWT claim）
		var userID string
		if uid, ok := claims["uid"].(string); ok {
			userID = uid
		} else if sub, ok := claims["sub"].(string); ok {
			userID = sub
		}
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token carries no user identity"})
			c.Abort()
			return
		}
		c.Set("userID", userID)

		if role, ok := claims["role"].(string); ok {
			c.Set("userRole", role)
		}

		c.Next()
	}
}

// InternalAuthMiddleware validates internal service calls
// 使用常量时间比较防止时序攻击
func InternalAuthMiddleware(internalSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := c.GetHeader("X-Internal-Secret")
		if subtle.ConstantTimeCompare([]byte(secret), []byte(internalSecret)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized internal access"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// actorFrom builds the acting identity from the JWT claims the auth
// middleware stored on the context.
func actorFrom(c *gin.Context) (service.Actor, bool) {
	userID := c.GetString("userID")
	if userID == "" {
		return service.Actor{}, false
	}
	role := c.GetString("userRole")
	if role == "" {
		role = models.RoleClient
	}
	return service.Actor{UserID: userID, Role: role}, true
}
