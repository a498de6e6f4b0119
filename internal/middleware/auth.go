package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"eventhub-backend/internal/models"
	"eventhub-backend/internal/services"
)

// Context keys set by the auth middleware
const (
	ContextUserID    = "userID"
	ContextUserEmail = "userEmail"
	ContextClaims    = "claims"
)

// RoleLookup resolves a user's current role. Roles live in the local store,
// not in the session token.
type RoleLookup interface {
	GetRole(ctx context.Context, userID string) (models.UserRole, error)
}

// AuthMiddleware contains the auth service for token validation
type AuthMiddleware struct {
	authService *services.AuthService
	roles       RoleLookup
	log         *zap.Logger
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(authService *services.AuthService, roles RoleLookup, log *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{authService: authService, roles: roles, log: log.Named("auth")}
}

func bearerToken(c *gin.Context) (string, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", "Authorization header required"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "Invalid authorization header format"
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "Token required"
	}
	return token, ""
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   message,
	})
}

func setIdentity(c *gin.Context, claims *services.SessionClaims) {
	c.Set(ContextUserID, claims.UserID())
	c.Set(ContextUserEmail, claims.Email)
	c.Set(ContextClaims, claims)
}

// AuthRequired rejects requests without a valid session token
func (m *AuthMiddleware) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, problem := bearerToken(c)
		if problem != "" {
			unauthorized(c, problem)
			return
		}

		claims, err := m.authService.ValidateToken(token)
		if err != nil {
			m.log.Debug("token rejected", zap.String("path", c.Request.URL.Path), zap.Error(err))
			unauthorized(c, "Invalid or expired token")
			return
		}

		setIdentity(c, claims)
		c.Next()
	}
}

// OptionalAuth sets the identity when a valid token is present
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, problem := bearerToken(c); problem == "" {
			if claims, err := m.authService.ValidateToken(token); err == nil {
				setIdentity(c, claims)
			}
		}
		c.Next()
	}
}

// RequireRole checks the authenticated user currently holds one of roles
func (m *AuthMiddleware) RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(ContextUserID)
		if userID == "" {
			unauthorized(c, "User not authenticated")
			return
		}

		role, err := m.roles.GetRole(c.Request.Context(), userID)
		if errors.Is(err, services.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "User profile not found",
			})
			return
		}
		if err != nil {
			m.log.Error("role lookup failed", zap.String("user_id", userID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   "Internal server error",
			})
			return
		}

		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   "Insufficient permissions",
		})
	}
}
