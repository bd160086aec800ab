package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ypgattendance/internal/services"
)

// Context keys set by AuthMiddleware.
const (
	CtxUserID   = "user_id"
	CtxUsername = "username"
	CtxRole     = "role"
)

// TokenParser is the part of services.TokenService the middleware needs.
type TokenParser interface {
	Parse(tokenStr string) (*services.Claims, error)
}

// public endpoints that do not need a token
func isPublicPath(path string) bool {
	switch strings.TrimSuffix(path, "/") {
	case "/api/login", "/api/token/refresh", "/api/password-reset/request", "/api/password-reset/confirm":
		return true
	}
	if strings.HasPrefix(path, "/swagger") || strings.HasPrefix(path, "/healthz") {
		return true
	}
	return false
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// AuthMiddleware validates the bearer token and stores the caller in the gin context and
// the request context.
func AuthMiddleware(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || isPublicPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		tokenStr := bearerToken(c.GetHeader("Authorization"))
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		claims, err := tokens.Parse(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxUsername, claims.Username)
		c.Set(CtxRole, claims.Role)
		c.Request = c.Request.WithContext(services.WithActor(c.Request.Context(), claims.Username))
		c.Next()
	}
}

// RequestContext copies the client address into the request context for audit entries.
func RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(services.WithClientIP(c.Request.Context(), c.ClientIP()))
		c.Next()
	}
}
