package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ypgattendance/internal/middleware"
	"ypgattendance/internal/services"
)

// respondError maps service errors onto HTTP responses. Anything unrecognised is logged
// and reported as a bare 500 so store errors never leak to the client.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	if minutes, ok := services.IsLockedOut(err); ok {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":             err.Error(),
			"remaining_minutes": minutes,
		})
		return
	}
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
	case errors.Is(err, services.ErrInvalidRefreshToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
	case errors.Is(err, services.ErrAlreadyConfigured),
		errors.Is(err, services.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidFormat),
		errors.Is(err, services.ErrInvalidCurrentPin),
		errors.Is(err, services.ErrWeakPassword),
		errors.Is(err, services.ErrPasswordReused),
		errors.Is(err, services.ErrUnknownRole),
		errors.Is(err, services.ErrInvalidResetCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrPrincipalMissing):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		if log != nil {
			log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func currentUserID(c *gin.Context) int64 {
	return c.GetInt64(middleware.CtxUserID)
}

func currentUsername(c *gin.Context) string {
	return c.GetString(middleware.CtxUsername)
}

func currentRole(c *gin.Context) string {
	return c.GetString(middleware.CtxRole)
}

func queryInt(c *gin.Context, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil {
		return v
	}
	return def
}

func nopIfNil(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
