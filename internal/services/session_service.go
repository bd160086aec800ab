package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"ypgattendance/internal/models"
	"ypgattendance/internal/repositories"
	"ypgattendance/internal/utils"
)

const refreshTokenBytes = 32

type SessionTokens struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// SessionService pairs short-lived access tokens with one opaque refresh token per
// account. Only the refresh token's hash is stored; every refresh rotates it.
type SessionService struct {
	tokens     *TokenService
	repo       repositories.CredentialRepository
	refreshTTL time.Duration
	audit      *AuditService
	clock      Clock
	log        *zap.Logger
}

func NewSessionService(tokens *TokenService, repo repositories.CredentialRepository, refreshTTL time.Duration, audit *AuditService, clock Clock, logger *zap.Logger) *SessionService {
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{tokens: tokens, repo: repo, refreshTTL: refreshTTL, audit: audit, clock: clock, log: logger}
}

func (s *SessionService) issueAccess(p *models.Principal, refresh string, refreshExp time.Time) (*SessionTokens, error) {
	access, exp, err := s.tokens.Issue(p.ID, p.Username, p.Role)
	if err != nil {
		return nil, err
	}
	return &SessionTokens{
		AccessToken:      access,
		AccessExpiresAt:  exp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Start issues the token pair for a freshly authenticated principal. An earlier refresh
// token of the same account stops working.
func (s *SessionService) Start(ctx context.Context, p *models.Principal) (*SessionTokens, error) {
	rt, err := utils.NewRefreshToken(refreshTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	now := s.clock.Now()
	exp := now.Add(s.refreshTTL)
	if err := s.repo.SetRefresh(ctx, p.ID, utils.HashToken(rt), exp, now); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrPrincipalMissing
		}
		return nil, err
	}
	return s.issueAccess(p, rt, exp)
}

// Refresh trades a valid refresh token for a new pair. The presented token is spent
// whether or not the caller keeps the new one.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*models.Principal, *SessionTokens, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, nil, ErrInvalidRefreshToken
	}
	rt, err := utils.NewRefreshToken(refreshTokenBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("generate refresh token: %w", err)
	}
	now := s.clock.Now()
	exp := now.Add(s.refreshTTL)
	p, err := s.repo.RotateRefresh(ctx, utils.HashToken(refreshToken), utils.HashToken(rt), exp, now)
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		return nil, nil, ErrInvalidRefreshToken
	}
	tokens, err := s.issueAccess(p, rt, exp)
	if err != nil {
		return nil, nil, err
	}
	s.audit.Record(ctx, models.AuditEvent{Action: models.AuditTokenRefreshed, Identifier: p.Username})
	return p, tokens, nil
}

// End revokes the account's refresh token. Access tokens already issued run until expiry.
func (s *SessionService) End(ctx context.Context, userID int64) error {
	if err := s.repo.RevokeRefresh(ctx, userID, s.clock.Now()); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrPrincipalMissing
		}
		return err
	}
	s.audit.Record(ctx, models.AuditEvent{Action: models.AuditLogout})
	return nil
}
