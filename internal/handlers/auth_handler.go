package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ypgattendance/internal/authz"
	"ypgattendance/internal/models"
	"ypgattendance/internal/services"
)

type AuthHandler struct {
	gateway  *services.AuthGateway
	sessions *services.SessionService
	creds    *services.CredentialService
	log      *zap.Logger
}

func NewAuthHandler(gateway *services.AuthGateway, sessions *services.SessionService, creds *services.CredentialService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{gateway: gateway, sessions: sessions, creds: creds, log: nopIfNil(log)}
}

// @Summary      Log in
// @Description  Checks username and password through the attempt ledger and returns an access and a refresh token
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        login  body      models.LoginRequest  true  "Credentials"
// @Success      200    {object}  map[string]interface{}
// @Failure      400    {object}  map[string]string
// @Failure      401    {object}  map[string]string
// @Failure      429    {object}  map[string]interface{}
// @Router       /api/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}
	username := strings.TrimSpace(req.Username)

	res, err := h.gateway.Login(c.Request.Context(), username, req.Password, models.KindPassword)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	p := res.Principal
	pair, err := h.sessions.Start(c.Request.Context(), p)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.log.Info("login succeeded", zap.String("username", p.Username), zap.String("role", p.Role))

	c.JSON(http.StatusOK, gin.H{
		"message":            "Login successful",
		"user":               p,
		"role":               res.Role,
		"is_executive":       authz.IsExecutive(res.Role),
		"access_token":       pair.AccessToken,
		"expires_at":         pair.AccessExpiresAt,
		"refresh_token":      pair.RefreshToken,
		"refresh_expires_at": pair.RefreshExpiresAt,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// @Summary      Refresh tokens
// @Description  Trades a refresh token for a new access token and a rotated refresh token
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      refreshRequest  true  "Refresh token"
// @Success      200   {object}  services.SessionTokens
// @Failure      401   {object}  map[string]string
// @Router       /api/token/refresh [post]
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
		return
	}
	p, pair, err := h.sessions.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.log.Debug("tokens refreshed", zap.String("username", p.Username))
	c.JSON(http.StatusOK, pair)
}

// SessionStatus echoes the token's identity; reaching it at all means the token is valid.
func (h *AuthHandler) SessionStatus(c *gin.Context) {
	role := currentRole(c)
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"username":      currentUsername(c),
		"role":          role,
		"is_executive":  authz.IsExecutive(role),
	})
}

// @Summary      Current user
// @Tags         Auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  models.Principal
// @Failure      404  {object}  map[string]string
// @Router       /api/current-user-info [get]
func (h *AuthHandler) CurrentUserInfo(c *gin.Context) {
	p, err := h.creds.Get(c.Request.Context(), currentUsername(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":         p,
		"is_executive": authz.IsExecutive(p.Role),
	})
}

// Logout revokes the caller's refresh token. The access token in hand stays valid until
// it expires.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.sessions.End(c.Request.Context(), currentUserID(c)); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ChangePassword checks the old password through the gateway so guessing it here is
// throttled like a login. Changing the password ends the refresh session.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "old_password and new_password are required"})
		return
	}
	ctx := c.Request.Context()
	username := currentUsername(c)

	verified, err := h.gateway.VerifyPassword(ctx, username, req.OldPassword)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "old password is incorrect"})
			return
		}
		respondError(c, h.log, err)
		return
	}
	if err := h.creds.ChangeOwnPassword(ctx, verified, req.NewPassword); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password changed"})
}
