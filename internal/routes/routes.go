package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ypgattendance/internal/handlers"
	"ypgattendance/internal/middleware"
)

type Handlers struct {
	Auth          *handlers.AuthHandler
	Pin           *handlers.PinHandler
	Users         *handlers.UserHandler
	PasswordReset *handlers.PasswordResetHandler
	Admin         *handlers.AdminHandler
}

type Deps struct {
	Tokens  middleware.TokenParser
	Pins    middleware.PinChecker
	Limiter *middleware.IPRateLimiter
	Log     *zap.Logger
}

// both spellings are served, with and without a trailing slash
func both(g *gin.RouterGroup, method, path string, h ...gin.HandlerFunc) {
	g.Handle(method, path, h...)
	g.Handle(method, path+"/", h...)
}

func SetupRoutes(r *gin.Engine, h Handlers, d Deps) *gin.Engine {
	r.RedirectTrailingSlash = false

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api")
	api.Use(middleware.RequestContext())
	api.Use(middleware.AuthMiddleware(d.Tokens))

	limited := middleware.RateLimit(d.Limiter)
	pinGate := middleware.RequirePIN(d.Pins, d.Log)
	executive := middleware.RequireExecutive()

	// ---- public (AuthMiddleware lets these through)
	both(api, http.MethodPost, "/login", limited, h.Auth.Login)
	both(api, http.MethodPost, "/token/refresh", limited, h.Auth.RefreshToken)
	both(api, http.MethodPost, "/password-reset/request", limited, h.PasswordReset.Request)
	both(api, http.MethodPost, "/password-reset/confirm", limited, h.PasswordReset.Confirm)

	// ---- session
	both(api, http.MethodGet, "/session-status", h.Auth.SessionStatus)
	both(api, http.MethodGet, "/current-user-info", h.Auth.CurrentUserInfo)
	both(api, http.MethodPost, "/logout", h.Auth.Logout)
	both(api, http.MethodPost, "/change-password", limited, h.Auth.ChangePassword)

	// ---- security pin
	pin := api.Group("/pin")
	{
		both(pin, http.MethodPost, "/verify", limited, h.Pin.Verify)
		both(pin, http.MethodGet, "/status", h.Pin.Status)
		both(pin, http.MethodPost, "/setup", executive, h.Pin.Setup)
		both(pin, http.MethodPost, "/change", executive, limited, h.Pin.Change)
	}

	// ---- accounts
	users := api.Group("/users", executive)
	{
		users.GET("", h.Users.ListUsers)
		users.GET("/roles", h.Users.ListRoles)
		users.POST("", pinGate, h.Users.CreateUser)
		users.PUT("/:username/password", pinGate, h.Users.SetPassword)
	}

	// ---- administration
	admin := api.Group("/admin", executive)
	{
		admin.GET("/login-attempts", h.Admin.ListAttempts)
		admin.GET("/login-attempts/report.pdf", h.Admin.AttemptsReport)
		admin.DELETE("/login-attempts", pinGate, h.Admin.ClearAttempts)
	}
	both(api, http.MethodGet, "/audit-log", executive, h.Admin.AuditLog)

	return r
}
