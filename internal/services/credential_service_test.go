package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"ypgattendance/internal/authz"
	"ypgattendance/internal/repositories"
)

func newTestCredentials() (*CredentialService, repositories.CredentialRepository) {
	repo := repositories.NewMemoryCredentialRepository()
	clock := newManualClock()
	audit := NewAuditService(repositories.NewMemoryAuditRepository(), clock, zap.NewNop())
	return NewCredentialService(repo, audit, clock, zap.NewNop()), repo
}

func TestValidatePassword(t *testing.T) {
	require.NoError(t, ValidatePassword("Str0ng!pass"))
	for _, bad := range []string{"", "Sh0rt!", "alllower1!", "ALLUPPER1!", "NoDigits!!", "NoSymbol12"} {
		require.ErrorIs(t, ValidatePassword(bad), ErrWeakPassword, bad)
	}
}

func TestCreatePrincipal(t *testing.T) {
	s, repo := newTestCredentials()
	ctx := context.Background()

	p, err := s.Create(ctx, " treasurer ", "Str0ng!pass", authz.RoleTreasurer, "T@Example.org")
	require.NoError(t, err)
	require.Equal(t, "treasurer", p.Username)
	require.Equal(t, "t@example.org", p.Email)
	require.NotEqual(t, "Str0ng!pass", p.PasswordHash)

	stored, err := repo.GetByUsername(ctx, "treasurer")
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("Str0ng!pass")))

	_, err = s.Create(ctx, "treasurer", "Str0ng!pass", authz.RoleTreasurer, "")
	require.ErrorIs(t, err, ErrUsernameTaken)
	_, err = s.Create(ctx, "x", "Str0ng!pass", "Pope", "")
	require.ErrorIs(t, err, ErrUnknownRole)
	_, err = s.Create(ctx, "y", "weak", authz.RoleMeetingUser, "")
	require.ErrorIs(t, err, ErrWeakPassword)
	_, err = s.Create(ctx, "  ", "Str0ng!pass", authz.RoleMeetingUser, "")
	require.Error(t, err)
}

func TestChangeOwnPassword(t *testing.T) {
	s, repo := newTestCredentials()
	ctx := context.Background()
	_, err := s.Create(ctx, "sec", "Str0ng!pass", authz.RoleSecretary, "")
	require.NoError(t, err)
	verified, err := repo.GetByUsername(ctx, "sec")
	require.NoError(t, err)

	require.ErrorIs(t, s.ChangeOwnPassword(ctx, nil, "N3w!password"), ErrPrincipalMissing)
	require.ErrorIs(t, s.ChangeOwnPassword(ctx, verified, "Str0ng!pass"), ErrPasswordReused)
	require.ErrorIs(t, s.ChangeOwnPassword(ctx, verified, "weak"), ErrWeakPassword)
	require.NoError(t, s.ChangeOwnPassword(ctx, verified, "N3w!password"))

	v := NewPasswordVerifier(s.repo)
	_, err = v.Verify(ctx, "sec", "N3w!password")
	require.NoError(t, err)
	_, err = v.Verify(ctx, "sec", "Str0ng!pass")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUsernamesIgnoreCase(t *testing.T) {
	s, _ := newTestCredentials()
	ctx := context.Background()
	_, err := s.Create(ctx, "Alice", "Str0ng!pass", authz.RoleSecretary, "")
	require.NoError(t, err)

	_, err = s.Create(ctx, "alice", "Str0ng!pass", authz.RoleMeetingUser, "")
	require.ErrorIs(t, err, ErrUsernameTaken)

	p, err := NewPasswordVerifier(s.repo).Verify(ctx, "ALICE", "Str0ng!pass")
	require.NoError(t, err)
	require.Equal(t, "Alice", p.Username)
}

func TestPasswordLongerThanBcryptLimitIsWeak(t *testing.T) {
	s, _ := newTestCredentials()
	ctx := context.Background()
	long := "Aa1!" + strings.Repeat("x", 69)
	require.Len(t, long, 73)

	require.ErrorIs(t, ValidatePassword(long), ErrWeakPassword)
	require.NoError(t, ValidatePassword(long[:72]))

	_, err := s.Create(ctx, "sec", long, authz.RoleSecretary, "")
	require.ErrorIs(t, err, ErrWeakPassword)
	_, err = s.Create(ctx, "sec", "Str0ng!pass", authz.RoleSecretary, "")
	require.NoError(t, err)
	require.ErrorIs(t, s.SetPassword(ctx, "sec", long), ErrWeakPassword)
}

func TestSetPasswordUnknownUser(t *testing.T) {
	s, _ := newTestCredentials()
	require.ErrorIs(t, s.SetPassword(context.Background(), "ghost", "N3w!password"), ErrPrincipalMissing)
}

func TestListClampsLimit(t *testing.T) {
	s, _ := newTestCredentials()
	ctx := context.Background()
	for _, u := range []string{"a", "b", "c"} {
		_, err := s.Create(ctx, u, "Str0ng!pass", authz.RoleMeetingUser, "")
		require.NoError(t, err)
	}
	all, err := s.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)

	page, err := s.List(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "b", page[0].Username)
}
