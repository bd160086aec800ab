package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ypgattendance/internal/models"
	"ypgattendance/internal/repositories"
)

type countingVerifier struct {
	calls  int
	secret string
	err    error
}

func (v *countingVerifier) Verify(_ context.Context, identifier, secret string) (*models.Principal, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	if secret != v.secret {
		return nil, ErrInvalidCredentials
	}
	return &models.Principal{ID: 7, Username: identifier, Role: "Secretary"}, nil
}

type recordingNotifier struct {
	calls   int
	minutes []int
}

func (n *recordingNotifier) NotifyLockout(_ context.Context, _ *models.AttemptRecord, remaining int) error {
	n.calls++
	n.minutes = append(n.minutes, remaining)
	return errors.New("chat unavailable")
}

type gatewayFixture struct {
	gw       *AuthGateway
	verifier *countingVerifier
	notifier *recordingNotifier
	attempts repositories.AttemptRepository
	audit    repositories.AuditRepository
	pins     *PinGate
	clock    *manualClock
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	clock := newManualClock()
	attempts := repositories.NewMemoryAttemptRepository()
	auditRepo := repositories.NewMemoryAuditRepository()
	ledger := NewAttemptLedger(attempts, nil, clock, zap.NewNop())
	pins := NewPinGate(repositories.NewMemoryPinRepository(), clock, zap.NewNop())
	verifier := &countingVerifier{secret: "Correct#1"}
	notifier := &recordingNotifier{}
	gw := NewAuthGateway(ledger, pins, verifier,
		WithAudit(NewAuditService(auditRepo, clock, zap.NewNop())),
		WithLockoutNotifier(notifier),
		WithLogger(zap.NewNop()),
	)
	return &gatewayFixture{gw: gw, verifier: verifier, notifier: notifier, attempts: attempts, audit: auditRepo, pins: pins, clock: clock}
}

func TestLoginSuccessResetsFailures(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.gw.Login(ctx, "alice", "nope", models.KindPassword)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	res, err := f.gw.Login(ctx, "alice", "Correct#1", models.KindPassword)
	require.NoError(t, err)
	require.Equal(t, "Secretary", res.Role)

	rec, err := f.attempts.Get(ctx, "alice", models.KindPassword)
	require.NoError(t, err)
	require.Zero(t, rec.FailureCount)
	require.False(t, rec.Locked)
}

func TestLockedIdentifierSkipsVerification(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.gw.Login(ctx, "alice", "nope", models.KindPassword)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	require.Equal(t, 3, f.verifier.calls)
	require.Equal(t, 1, f.notifier.calls, "notifier errors are swallowed")
	require.Equal(t, []int{30}, f.notifier.minutes)

	_, err := f.gw.Login(ctx, "alice", "Correct#1", models.KindPassword)
	minutes, locked := IsLockedOut(err)
	require.True(t, locked)
	require.Equal(t, 30, minutes)
	require.Equal(t, 3, f.verifier.calls, "credential check must not run while locked")

	rec, err := f.attempts.Get(ctx, "alice", models.KindPassword)
	require.NoError(t, err)
	require.Equal(t, 3, rec.FailureCount, "rejected attempts are not counted")

	f.clock.Advance(30 * time.Minute)
	_, err = f.gw.Login(ctx, "alice", "Correct#1", models.KindPassword)
	require.NoError(t, err)
}

func TestKindsAreTrackedIndependently(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	require.NoError(t, f.pins.Setup(ctx, "2025"))

	for i := 0; i < 3; i++ {
		ok, err := f.gw.VerifyPin(ctx, "alice", "0000")
		require.NoError(t, err)
		require.False(t, ok)
	}
	_, err := f.gw.VerifyPin(ctx, "alice", "2025")
	_, locked := IsLockedOut(err)
	require.True(t, locked)

	_, err = f.gw.Login(ctx, "alice", "Correct#1", models.KindPassword)
	require.NoError(t, err)
}

func TestStoreErrorIsNotInvalidCredentials(t *testing.T) {
	f := newGatewayFixture(t)
	boom := errors.New("connection reset")
	f.verifier.err = boom

	_, err := f.gw.Login(context.Background(), "alice", "x", models.KindPassword)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrInvalidCredentials)

	rec, err := f.attempts.Get(context.Background(), "alice", models.KindPassword)
	require.NoError(t, err)
	require.Zero(t, rec.FailureCount)
}

func TestUnknownKind(t *testing.T) {
	f := newGatewayFixture(t)
	_, err := f.gw.Login(context.Background(), "alice", "x", models.AttemptKind("sms"))
	require.Error(t, err)
}

func TestVerifyPinScenario(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()

	ok, err := f.gw.VerifyPin(ctx, "10.0.0.1", "2025")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, f.gw.SetupPin(ctx, "2025"))
	require.ErrorIs(t, f.gw.SetupPin(ctx, "0000"), ErrAlreadyConfigured)

	ok, err = f.gw.VerifyPin(ctx, "10.0.0.1", "2025")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.gw.ChangePin(ctx, "10.0.0.1", "2025", "1111"))
	ok, err = f.gw.VerifyPin(ctx, "10.0.0.1", "2025")
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = f.gw.VerifyPin(ctx, "10.0.0.1", "1111")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestChangePinCountsWrongCurrent(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	require.NoError(t, f.gw.SetupPin(ctx, "2025"))

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, f.gw.ChangePin(ctx, "10.0.0.9", "9999", "1111"), ErrInvalidCurrentPin)
	}
	err := f.gw.ChangePin(ctx, "10.0.0.9", "2025", "1111")
	_, locked := IsLockedOut(err)
	require.True(t, locked)

	ok, err := f.pins.Verify(ctx, "2025")
	require.NoError(t, err)
	require.True(t, ok, "prior pin stays active")
}

func TestChangePinBadFormatIsNotAFailure(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	require.NoError(t, f.gw.SetupPin(ctx, "2025"))

	require.ErrorIs(t, f.gw.ChangePin(ctx, "10.0.0.9", "2025", "abc"), ErrInvalidFormat)
	rec, err := f.attempts.Get(ctx, "10.0.0.9", models.KindPin)
	require.NoError(t, err)
	require.Zero(t, rec.FailureCount)
}

func TestClearAttemptsIsAudited(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := WithActor(context.Background(), "secretary")

	for i := 0; i < 3; i++ {
		_, _ = f.gw.Login(ctx, "alice", "nope", models.KindPassword)
	}
	n, err := f.gw.ClearAttempts(ctx, "alice", "")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	recs, err := f.gw.Attempts(ctx, models.AttemptFilter{})
	require.NoError(t, err)
	require.Empty(t, recs)

	events, err := f.audit.List(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, models.AuditAttemptsCleared, events[0].Action)
	require.Equal(t, "secretary", events[0].Actor)

	var lockouts int
	for _, ev := range events {
		if ev.Action == models.AuditLockout {
			lockouts++
		}
	}
	require.Equal(t, 1, lockouts)
}

func TestVerifyPasswordIsThrottledButNotALogin(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()

	p, err := f.gw.VerifyPassword(ctx, "alice", "Correct#1")
	require.NoError(t, err)
	require.Equal(t, "alice", p.Username)

	for i := 0; i < 3; i++ {
		_, err = f.gw.VerifyPassword(ctx, "alice", "nope")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err = f.gw.Login(ctx, "alice", "Correct#1", models.KindPassword)
	_, locked := IsLockedOut(err)
	require.True(t, locked, "password checks share the login ledger")

	events, err := f.audit.List(ctx, 50)
	require.NoError(t, err)
	for _, ev := range events {
		require.NotEqual(t, models.AuditLoginSucceeded, ev.Action)
	}
}

func TestLongIdentifierIsAnOrdinaryFailure(t *testing.T) {
	f := newGatewayFixture(t)
	long := strings.Repeat("a", 300)

	_, err := f.gw.Login(context.Background(), long, "nope", models.KindPassword)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	rec, err := f.attempts.Get(context.Background(), long, models.KindPassword)
	require.NoError(t, err)
	require.Equal(t, 1, rec.FailureCount)
}
