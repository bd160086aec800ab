package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ypgattendance/internal/authz"
	"ypgattendance/internal/services"
)

type UserHandler struct {
	creds *services.CredentialService
	log   *zap.Logger
}

func NewUserHandler(creds *services.CredentialService, log *zap.Logger) *UserHandler {
	return &UserHandler{creds: creds, log: nopIfNil(log)}
}

type createUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
	Email    string `json:"email" binding:"omitempty,email"`
}

type setPasswordRequest struct {
	NewPassword string `json:"new_password" binding:"required"`
}

// @Summary      Create an account
// @Description  Executive only; requires the X-Security-PIN header
// @Tags         Users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createUserRequest  true  "Account"
// @Success      201   {object}  models.Principal
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role := req.Role
	if role == "" {
		role = authz.RoleMeetingUser
	}
	// only admins hand out the admin role
	if role == authz.RoleAdmin && currentRole(c) != authz.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "only admin can create admin accounts"})
		return
	}

	p, err := h.creds.Create(c.Request.Context(), req.Username, req.Password, role, req.Email)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *UserHandler) ListUsers(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)
	users, err := h.creds.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *UserHandler) ListRoles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"executive_roles": authz.ExecutiveRoles(),
		"member_role":     authz.RoleMeetingUser,
	})
}

// SetPassword overwrites another account's password. Executive only, pin gated.
func (h *UserHandler) SetPassword(c *gin.Context) {
	var req setPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "new_password is required"})
		return
	}
	if err := h.creds.SetPassword(c.Request.Context(), c.Param("username"), req.NewPassword); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}
