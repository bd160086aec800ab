package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ypgattendance/internal/models"
	"ypgattendance/internal/repositories"
)

// AuditService appends security events. A failed audit write is logged and swallowed so it
// never changes the outcome of the request being audited.
type AuditService struct {
	repo  repositories.AuditRepository
	clock Clock
	log   *zap.Logger
}

func NewAuditService(repo repositories.AuditRepository, clock Clock, logger *zap.Logger) *AuditService {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, clock: clock, log: logger}
}

func (s *AuditService) Record(ctx context.Context, ev models.AuditEvent) {
	if s == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.CreatedAt = s.clock.Now()
	if ev.ClientIP == "" {
		ev.ClientIP = ClientIPFrom(ctx)
	}
	if ev.Actor == "" {
		ev.Actor = ActorFrom(ctx)
	}
	s.log.Info("audit",
		zap.String("action", string(ev.Action)),
		zap.String("actor", ev.Actor),
		zap.String("identifier", ev.Identifier),
		zap.String("kind", string(ev.Kind)),
		zap.String("client_ip", ev.ClientIP),
	)
	if err := s.repo.Insert(ctx, &ev); err != nil {
		s.log.Warn("audit write failed", zap.String("action", string(ev.Action)), zap.Error(err))
	}
}

func (s *AuditService) List(ctx context.Context, limit int) ([]*models.AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.List(ctx, limit)
}
