package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ypgattendance/internal/authz"
	"ypgattendance/internal/services"
)

const PinHeader = "X-Security-PIN"

func RequireRoles(allowed ...string) gin.HandlerFunc {
	allowedSet := map[string]struct{}{}
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}
	return func(c *gin.Context) {
		role := c.GetString(CtxRole)
		if role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no role in context"})
			return
		}
		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func RequireExecutive() gin.HandlerFunc {
	return RequireRoles(authz.ExecutiveRoles()...)
}

// PinChecker is satisfied by services.AuthGateway.
type PinChecker interface {
	VerifyPin(ctx context.Context, identifier, pin string) (bool, error)
}

// RequirePIN demands the security pin in the X-Security-PIN header. Attempts are throttled
// per client IP through the same ledger as /api/pin/verify.
func RequirePIN(pins PinChecker, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		pin := strings.TrimSpace(c.GetHeader(PinHeader))
		if pin == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "security pin required"})
			return
		}
		ok, err := pins.VerifyPin(c.Request.Context(), c.ClientIP(), pin)
		if err != nil {
			if minutes, locked := services.IsLockedOut(err); locked {
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
					"error":             err.Error(),
					"remaining_minutes": minutes,
				})
				return
			}
			log.Error("security pin check failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid security pin"})
			return
		}
		c.Next()
	}
}
