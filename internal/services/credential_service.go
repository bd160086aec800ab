package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"ypgattendance/internal/authz"
	"ypgattendance/internal/models"
	"ypgattendance/internal/repositories"
)

var (
	reUpper  = regexp.MustCompile(`[A-Z]`)
	reLower  = regexp.MustCompile(`[a-z]`)
	reDigit  = regexp.MustCompile(`\d`)
	reSymbol = regexp.MustCompile(`[@$!%*?&#^+=\-_.,;:'"()\[\]{}<>/\\|~]`)
)

// bcrypt rejects longer inputs
const maxPasswordBytes = 72

// ValidatePassword enforces the account password policy: 8 to 72 bytes with an
// uppercase letter, a lowercase letter, a digit and a symbol.
func ValidatePassword(pw string) error {
	if len(pw) < 8 || len(pw) > maxPasswordBytes || !reUpper.MatchString(pw) || !reLower.MatchString(pw) ||
		!reDigit.MatchString(pw) || !reSymbol.MatchString(pw) {
		return ErrWeakPassword
	}
	return nil
}

func HashPassword(pw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// CredentialService manages executive accounts. Verifying a login is not its job; that
// goes through AuthGateway so the attempt ledger sees it.
type CredentialService struct {
	repo  repositories.CredentialRepository
	audit *AuditService
	clock Clock
	log   *zap.Logger
}

func NewCredentialService(repo repositories.CredentialRepository, audit *AuditService, clock Clock, logger *zap.Logger) *CredentialService {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialService{repo: repo, audit: audit, clock: clock, log: logger}
}

func (s *CredentialService) Create(ctx context.Context, username, password, role, email string) (*models.Principal, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if !authz.IsKnown(role) {
		return nil, ErrUnknownRole
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	p := &models.Principal{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Email:        strings.TrimSpace(strings.ToLower(email)),
		CreatedAt:    s.clock.Now(),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	s.audit.Record(ctx, models.AuditEvent{Action: models.AuditPrincipalCreated, Identifier: p.Username, Detail: "role=" + role})
	return p, nil
}

func (s *CredentialService) Get(ctx context.Context, username string) (*models.Principal, error) {
	p, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPrincipalMissing
	}
	return p, nil
}

func (s *CredentialService) List(ctx context.Context, limit, offset int) ([]*models.Principal, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

// ChangeOwnPassword replaces the password of verified, which must come from
// AuthGateway.VerifyPassword. The new password may not equal the current one.
func (s *CredentialService) ChangeOwnPassword(ctx context.Context, verified *models.Principal, newPassword string) error {
	if verified == nil || verified.ID == 0 {
		return ErrPrincipalMissing
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(verified.PasswordHash), []byte(newPassword)) == nil {
		return ErrPasswordReused
	}
	if err := s.setPassword(ctx, verified, newPassword); err != nil {
		return err
	}
	s.audit.Record(ctx, models.AuditEvent{Action: models.AuditPasswordChanged, Identifier: verified.Username, Detail: "self"})
	return nil
}

// SetPassword overwrites another account's password. Callers gate it behind an executive
// role and the security pin.
func (s *CredentialService) SetPassword(ctx context.Context, username, newPassword string) error {
	p, err := s.Get(ctx, username)
	if err != nil {
		return err
	}
	if err := s.setPassword(ctx, p, newPassword); err != nil {
		return err
	}
	s.audit.Record(ctx, models.AuditEvent{Action: models.AuditPasswordChanged, Identifier: p.Username, Detail: "admin"})
	return nil
}

func (s *CredentialService) setPassword(ctx context.Context, p *models.Principal, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	if err := s.repo.UpdatePassword(ctx, p.ID, hash, now); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrPrincipalMissing
		}
		return err
	}
	// a new password ends the refresh session
	if err := s.repo.RevokeRefresh(ctx, p.ID, now); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return err
	}
	return nil
}
