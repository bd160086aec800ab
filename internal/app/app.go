package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "ypgattendance/docs"
	"ypgattendance/internal/config"
	"ypgattendance/internal/handlers"
	"ypgattendance/internal/logging"
	"ypgattendance/internal/middleware"
	"ypgattendance/internal/models"
	"ypgattendance/internal/pdf"
	"ypgattendance/internal/repositories"
	"ypgattendance/internal/routes"
	"ypgattendance/internal/services"
)

// Stores bundles the repositories for one storage driver.
type Stores struct {
	Attempts    repositories.AttemptRepository
	Pins        repositories.PinRepository
	Credentials repositories.CredentialRepository
	Resets      repositories.PasswordResetRepository
	Audit       repositories.AuditRepository

	db *sql.DB
}

func (s *Stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func MemoryStores() *Stores {
	return &Stores{
		Attempts:    repositories.NewMemoryAttemptRepository(),
		Pins:        repositories.NewMemoryPinRepository(),
		Credentials: repositories.NewMemoryCredentialRepository(),
		Resets:      repositories.NewMemoryPasswordResetRepository(),
		Audit:       repositories.NewMemoryAuditRepository(),
	}
}

// OpenStores connects to the configured database and makes sure the schema exists.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	if cfg.Database.Driver == config.DriverMemory {
		return MemoryStores(), nil
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := repositories.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Stores{
		Attempts:    repositories.NewAttemptRepository(db),
		Pins:        repositories.NewPinRepository(db),
		Credentials: repositories.NewCredentialRepository(db),
		Resets:      repositories.NewPasswordResetRepository(db),
		Audit:       repositories.NewAuditRepository(db),
		db:          db,
	}, nil
}

// Policies turns the configured ladders into lockout policies.
func Policies(cfg *config.Config) (map[models.AttemptKind]services.LockoutPolicy, error) {
	build := func(name string, tiers []config.LockoutTier) (services.LockoutPolicy, error) {
		st := make([]services.LockoutTier, 0, len(tiers))
		for _, t := range tiers {
			st = append(st, services.LockoutTier{Threshold: t.Threshold, Duration: t.Duration})
		}
		p, err := services.NewLockoutPolicy(st)
		if err != nil {
			return services.LockoutPolicy{}, fmt.Errorf("lockout.%s: %w", name, err)
		}
		return p, nil
	}
	pw, err := build("password", cfg.Lockout.Password)
	if err != nil {
		return nil, err
	}
	pin, err := build("pin", cfg.Lockout.Pin)
	if err != nil {
		return nil, err
	}
	return map[models.AttemptKind]services.LockoutPolicy{
		models.KindPassword: pw,
		models.KindPin:      pin,
	}, nil
}

// Core is the service graph shared by the HTTP server and ypgctl.
type Core struct {
	Clock       services.Clock
	Audit       *services.AuditService
	Ledger      *services.AttemptLedger
	Pins        *services.PinGate
	Gateway     *services.AuthGateway
	Credentials *services.CredentialService
}

func NewCore(cfg *config.Config, st *Stores, clock services.Clock, log *zap.Logger) (*Core, error) {
	if clock == nil {
		clock = services.SystemClock()
	}
	policies, err := Policies(cfg)
	if err != nil {
		return nil, err
	}

	audit := services.NewAuditService(st.Audit, clock, log.Named("audit"))
	ledger := services.NewAttemptLedger(st.Attempts, policies, clock, log.Named("ledger"))
	pins := services.NewPinGate(st.Pins, clock, log.Named("pin"))

	opts := []services.AuthGatewayOption{services.WithAudit(audit), services.WithLogger(log.Named("gateway"))}
	notifier, err := services.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.AdminChatID, log.Named("telegram"))
	if err != nil {
		log.Warn("telegram notifier disabled", zap.Error(err))
	} else if notifier != nil {
		opts = append(opts, services.WithLockoutNotifier(notifier))
	}
	gateway := services.NewAuthGateway(ledger, pins, services.NewPasswordVerifier(st.Credentials), opts...)

	return &Core{
		Clock:       clock,
		Audit:       audit,
		Ledger:      ledger,
		Pins:        pins,
		Gateway:     gateway,
		Credentials: services.NewCredentialService(st.Credentials, audit, clock, log.Named("credentials")),
	}, nil
}

// NewRouter wires handlers and middleware onto a fresh gin engine.
func NewRouter(cfg *config.Config, st *Stores, core *Core, log *zap.Logger) (*gin.Engine, error) {
	tokens, err := services.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTTL, core.Clock)
	if err != nil {
		return nil, err
	}

	var emails services.EmailService
	if cfg.SMTPEnabled() {
		emails = services.NewEmailService(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPUser, cfg.Email.SMTPPassword, cfg.Email.FromEmail)
	} else {
		log.Warn("smtp not configured, password reset codes will not be mailed")
	}
	sessions := services.NewSessionService(tokens, st.Credentials, cfg.Auth.RefreshTTL, core.Audit, core.Clock, log.Named("session"))
	resets := services.NewPasswordResetService(st.Credentials, st.Resets, emails, core.Credentials, core.Audit, core.Clock, log.Named("password_reset"))

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(log.Named("http")))
	router.Use(corsMiddleware())
	if len(cfg.Server.TrustedProxies) > 0 {
		if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
			return nil, fmt.Errorf("trusted proxies: %w", err)
		}
	} else if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	routes.SetupRoutes(router, routes.Handlers{
		Auth:          handlers.NewAuthHandler(core.Gateway, sessions, core.Credentials, log.Named("auth")),
		Pin:           handlers.NewPinHandler(core.Gateway, log.Named("pin")),
		Users:         handlers.NewUserHandler(core.Credentials, log.Named("users")),
		PasswordReset: handlers.NewPasswordResetHandler(resets, log.Named("password_reset")),
		Admin:         handlers.NewAdminHandler(core.Gateway, core.Audit, pdf.NewReportGenerator(cfg.Reports.FontPath), core.Clock, log.Named("admin")),
	}, routes.Deps{
		Tokens:  tokens,
		Pins:    core.Gateway,
		Limiter: middleware.NewIPRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		Log:     log.Named("pin_gate"),
	})
	return router, nil
}

func Run() {
	cfg := config.MustLoad()

	log, err := logging.New(cfg.Log.Mode)
	if err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	defer log.Sync() //nolint:errcheck
	gin.SetMode(cfg.Server.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := OpenStores(ctx, cfg)
	if err != nil {
		log.Fatal("storage init failed", zap.Error(err))
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn("close database", zap.Error(err))
		}
	}()

	core, err := NewCore(cfg, st, nil, log)
	if err != nil {
		log.Fatal("service init failed", zap.Error(err))
	}
	router, err := NewRouter(cfg, st, core, log)
	if err != nil {
		log.Fatal("router init failed", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr), zap.String("driver", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	log.Info("server stopped")
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Security-PIN")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
