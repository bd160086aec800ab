package handlers

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ypgattendance/internal/models"
	"ypgattendance/internal/pdf"
	"ypgattendance/internal/services"
)

type AdminHandler struct {
	gateway *services.AuthGateway
	audit   *services.AuditService
	reports *pdf.ReportGenerator
	clock   services.Clock
	log     *zap.Logger
}

func NewAdminHandler(gateway *services.AuthGateway, audit *services.AuditService, reports *pdf.ReportGenerator, clock services.Clock, log *zap.Logger) *AdminHandler {
	if clock == nil {
		clock = services.SystemClock()
	}
	return &AdminHandler{gateway: gateway, audit: audit, reports: reports, clock: clock, log: nopIfNil(log)}
}

type attemptView struct {
	*models.AttemptRecord
	RemainingMinutes int `json:"remaining_minutes"`
}

func attemptFilter(c *gin.Context) (models.AttemptFilter, bool) {
	f := models.AttemptFilter{
		Identifier: c.Query("identifier"),
		LockedOnly: c.Query("locked") == "true",
		Limit:      queryInt(c, "limit", 0),
	}
	if k := c.Query("kind"); k != "" {
		kind, err := models.ParseAttemptKind(k)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return f, false
		}
		f.Kind = kind
	}
	return f, true
}

// @Summary      Clear login attempts
// @Description  Deletes ledger rows matching identifier and kind; both optional. Pin gated.
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        identifier  query     string  false  "Identifier"
// @Param        kind        query     string  false  "password | pin"
// @Success      200         {object}  map[string]interface{}
// @Router       /api/admin/login-attempts [delete]
func (h *AdminHandler) ClearAttempts(c *gin.Context) {
	f, ok := attemptFilter(c)
	if !ok {
		return
	}
	n, err := h.gateway.ClearAttempts(c.Request.Context(), f.Identifier, f.Kind)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": n})
}

func (h *AdminHandler) ListAttempts(c *gin.Context) {
	f, ok := attemptFilter(c)
	if !ok {
		return
	}
	recs, err := h.gateway.Attempts(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	out := make([]attemptView, 0, len(recs))
	for _, r := range recs {
		out = append(out, attemptView{AttemptRecord: r, RemainingMinutes: h.gateway.RemainingLockMinutes(r)})
	}
	c.JSON(http.StatusOK, out)
}

func (h *AdminHandler) AttemptsReport(c *gin.Context) {
	f, ok := attemptFilter(c)
	if !ok {
		return
	}
	recs, err := h.gateway.Attempts(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	rep := pdf.AttemptReport{GeneratedAt: h.clock.Now(), GeneratedBy: currentUsername(c)}
	for _, r := range recs {
		rep.Rows = append(rep.Rows, pdf.AttemptRow{
			Identifier:       r.Identifier,
			Kind:             string(r.Kind),
			FailureCount:     r.FailureCount,
			Locked:           r.Locked,
			RemainingMinutes: h.gateway.RemainingLockMinutes(r),
			LastFailureAt:    r.LastFailureAt,
		})
	}

	var buf bytes.Buffer
	if err := h.reports.WriteAttemptReport(&buf, rep); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="login-attempts.pdf"`)
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

func (h *AdminHandler) AuditLog(c *gin.Context) {
	events, err := h.audit.List(c.Request.Context(), queryInt(c, "limit", 100))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, events)
}
