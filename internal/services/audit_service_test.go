package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ypgattendance/internal/models"
	"ypgattendance/internal/repositories"
)

type failingAuditRepo struct{ repositories.AuditRepository }

func (failingAuditRepo) Insert(context.Context, *models.AuditEvent) error {
	return errors.New("disk full")
}

func TestAuditRecordFillsContext(t *testing.T) {
	repo := repositories.NewMemoryAuditRepository()
	s := NewAuditService(repo, newManualClock(), zap.NewNop())
	ctx := WithActor(WithClientIP(context.Background(), "10.1.2.3"), "president")

	s.Record(ctx, models.AuditEvent{Action: models.AuditPinSetup})
	events, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "president", events[0].Actor)
	require.Equal(t, "10.1.2.3", events[0].ClientIP)
	require.NotEmpty(t, events[0].ID)
}

func TestAuditRecordSwallowsErrors(t *testing.T) {
	s := NewAuditService(failingAuditRepo{}, nil, nil)
	require.NotPanics(t, func() { s.Record(context.Background(), models.AuditEvent{Action: models.AuditLockout}) })

	var nilSvc *AuditService
	require.NotPanics(t, func() { nilSvc.Record(context.Background(), models.AuditEvent{}) })
}
