package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ypgattendance/internal/authz"
	"ypgattendance/internal/models"
	"ypgattendance/internal/repositories"
)

type sessionFixture struct {
	sessions *SessionService
	tokens   *TokenService
	creds    *CredentialService
	repo     repositories.CredentialRepository
	clock    *manualClock
	user     *models.Principal
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	clock := newManualClock()
	repo := repositories.NewMemoryCredentialRepository()
	audit := NewAuditService(repositories.NewMemoryAuditRepository(), clock, zap.NewNop())
	tokens, err := NewTokenService(testSecret, "ypgattendance", 15*time.Minute, clock)
	require.NoError(t, err)
	creds := NewCredentialService(repo, audit, clock, zap.NewNop())
	user, err := creds.Create(context.Background(), "sec", "Str0ng!pass", authz.RoleSecretary, "")
	require.NoError(t, err)
	return &sessionFixture{
		sessions: NewSessionService(tokens, repo, 24*time.Hour, audit, clock, zap.NewNop()),
		tokens:   tokens,
		creds:    creds,
		repo:     repo,
		clock:    clock,
		user:     user,
	}
}

func TestSessionRefreshRotates(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	first, err := f.sessions.Start(ctx, f.user)
	require.NoError(t, err)
	require.NotEmpty(t, first.RefreshToken)
	require.Equal(t, f.clock.Now().Add(24*time.Hour), first.RefreshExpiresAt)

	stored, err := f.repo.GetByUsername(ctx, "sec")
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, stored.RefreshTokenHash, "only the hash is stored")

	f.clock.Advance(time.Minute)
	p, second, err := f.sessions.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, "sec", p.Username)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	claims, err := f.tokens.Parse(second.AccessToken)
	require.NoError(t, err)
	require.Equal(t, f.user.ID, claims.UserID)
	require.Equal(t, authz.RoleSecretary, claims.Role)

	_, _, err = f.sessions.Refresh(ctx, first.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken, "a spent token cannot be replayed")
	_, _, err = f.sessions.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
}

func TestSessionRefreshExpires(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	pair, err := f.sessions.Start(ctx, f.user)
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	_, _, err = f.sessions.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestSessionEndRevokesRefresh(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	pair, err := f.sessions.Start(ctx, f.user)
	require.NoError(t, err)

	require.NoError(t, f.sessions.End(ctx, f.user.ID))
	_, _, err = f.sessions.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	again, err := f.sessions.Start(ctx, f.user)
	require.NoError(t, err, "a new login starts a new session")
	_, _, err = f.sessions.Refresh(ctx, again.RefreshToken)
	require.NoError(t, err)

	require.ErrorIs(t, f.sessions.End(ctx, f.user.ID+100), ErrPrincipalMissing)
}

func TestSessionNewLoginReplacesRefresh(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	older, err := f.sessions.Start(ctx, f.user)
	require.NoError(t, err)
	newer, err := f.sessions.Start(ctx, f.user)
	require.NoError(t, err)

	_, _, err = f.sessions.Refresh(ctx, older.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
	_, _, err = f.sessions.Refresh(ctx, newer.RefreshToken)
	require.NoError(t, err)
}

func TestPasswordChangeRevokesRefresh(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	pair, err := f.sessions.Start(ctx, f.user)
	require.NoError(t, err)

	require.NoError(t, f.creds.SetPassword(ctx, "sec", "N3w!password"))
	_, _, err = f.sessions.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestSessionRefreshRejectsGarbage(t *testing.T) {
	f := newSessionFixture(t)
	_, _, err := f.sessions.Refresh(context.Background(), "  ")
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
	_, _, err = f.sessions.Refresh(context.Background(), "deadbeef")
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}
