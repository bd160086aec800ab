package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ypgattendance/internal/services"
)

type PasswordResetHandler struct {
	service *services.PasswordResetService
	log     *zap.Logger
}

func NewPasswordResetHandler(service *services.PasswordResetService, log *zap.Logger) *PasswordResetHandler {
	return &PasswordResetHandler{service: service, log: nopIfNil(log)}
}

type resetRequest struct {
	Username string `json:"username" binding:"required"`
}

type resetConfirmRequest struct {
	Username    string `json:"username" binding:"required"`
	Code        string `json:"code" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// Request always answers the same way so it cannot be used to enumerate usernames.
func (h *PasswordResetHandler) Request(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
		return
	}
	if err := h.service.RequestReset(c.Request.Context(), req.Username); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "If the account exists, a reset code has been sent"})
}

func (h *PasswordResetHandler) Confirm(c *gin.Context) {
	var req resetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username, code and new_password are required"})
		return
	}
	if err := h.service.ConfirmReset(c.Request.Context(), req.Username, req.Code, req.NewPassword); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password has been reset"})
}
