package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ypgattendance/internal/services"
)

type PinHandler struct {
	gateway *services.AuthGateway
	log     *zap.Logger
}

func NewPinHandler(gateway *services.AuthGateway, log *zap.Logger) *PinHandler {
	return &PinHandler{gateway: gateway, log: nopIfNil(log)}
}

type pinRequest struct {
	Pin string `json:"pin"`
}

type changePinRequest struct {
	CurrentPin string `json:"current_pin"`
	NewPin     string `json:"new_pin"`
}

// @Summary      Verify the security pin
// @Description  Pin attempts are throttled per client IP. A wrong pin is 200 with is_valid=false.
// @Tags         Pin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      pinRequest  true  "Pin"
// @Success      200   {object}  map[string]bool
// @Failure      429   {object}  map[string]interface{}
// @Router       /api/pin/verify [post]
func (h *PinHandler) Verify(c *gin.Context) {
	var req pinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	ok, err := h.gateway.VerifyPin(c.Request.Context(), c.ClientIP(), req.Pin)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_valid": ok})
}

// @Summary      Configure the security pin
// @Tags         Pin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      pinRequest  true  "Pin"
// @Success      201   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/pin/setup [post]
func (h *PinHandler) Setup(c *gin.Context) {
	var req pinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := h.gateway.SetupPin(c.Request.Context(), req.Pin); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Security pin configured"})
}

// @Summary      Change the security pin
// @Tags         Pin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      changePinRequest  true  "Current and new pin"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      429   {object}  map[string]interface{}
// @Router       /api/pin/change [post]
func (h *PinHandler) Change(c *gin.Context) {
	var req changePinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := h.gateway.ChangePin(c.Request.Context(), c.ClientIP(), req.CurrentPin, req.NewPin); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Security pin changed"})
}

func (h *PinHandler) Status(c *gin.Context) {
	st, err := h.gateway.PinStatus(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
