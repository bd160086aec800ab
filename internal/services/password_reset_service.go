package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"ypgattendance/internal/models"
	"ypgattendance/internal/repositories"
	"ypgattendance/internal/utils"
)

const (
	passwordResetTTL = 5 * time.Minute
	resetCodeDigits  = 6
	// a code is burned after this many wrong guesses
	maxResetAttempts = 5
)

type PasswordResetService struct {
	principals repositories.CredentialRepository
	repo       repositories.PasswordResetRepository
	emails     EmailService
	creds      *CredentialService
	audit      *AuditService
	clock      Clock
	log        *zap.Logger
}

func NewPasswordResetService(
	principals repositories.CredentialRepository,
	repo repositories.PasswordResetRepository,
	emails EmailService,
	creds *CredentialService,
	audit *AuditService,
	clock Clock,
	logger *zap.Logger,
) *PasswordResetService {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PasswordResetService{
		principals: principals,
		repo:       repo,
		emails:     emails,
		creds:      creds,
		audit:      audit,
		clock:      clock,
		log:        logger,
	}
}

// RequestReset issues a fresh code and mails it. Unknown usernames and accounts without an
// email succeed silently so the response does not reveal which accounts exist.
func (s *PasswordResetService) RequestReset(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	p, err := s.principals.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if p == nil || p.Email == "" {
		s.log.Info("password reset requested for unknown or mail-less account")
		return nil
	}

	code, err := utils.NewNumericCode(resetCodeDigits)
	if err != nil {
		return fmt.Errorf("generate reset code: %w", err)
	}
	now := s.clock.Now()
	if _, err := s.repo.Replace(ctx, p.ID, code, now, now.Add(passwordResetTTL)); err != nil {
		return err
	}
	if s.emails != nil {
		if err := s.emails.SendPasswordResetCode(p.Email, p.Username, code); err != nil {
			s.log.Warn("password reset email failed", zap.String("username", p.Username), zap.Error(err))
		}
	}
	return nil
}

// ConfirmReset sets a new password when code matches the outstanding code of username.
// Wrong guesses are counted on the code and it is discarded at maxResetAttempts.
func (s *PasswordResetService) ConfirmReset(ctx context.Context, username, code, newPassword string) error {
	username = strings.TrimSpace(username)
	code = strings.TrimSpace(code)
	if username == "" || code == "" {
		return ErrInvalidResetCode
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	p, err := s.principals.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrInvalidResetCode
	}
	pr, err := s.repo.GetLatest(ctx, p.ID)
	if err != nil {
		return err
	}
	if pr == nil {
		return ErrInvalidResetCode
	}
	if pr.Expired(s.clock.Now()) || pr.Attempts >= maxResetAttempts {
		s.discard(ctx, pr)
		return ErrInvalidResetCode
	}
	if subtle.ConstantTimeCompare([]byte(pr.Code), []byte(code)) != 1 {
		return s.wrongGuess(ctx, p, pr)
	}

	if err := s.creds.setPassword(ctx, p, newPassword); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, pr.ID); err != nil {
		return err
	}
	s.audit.Record(ctx, models.AuditEvent{Action: models.AuditPasswordReset, Identifier: p.Username})
	return nil
}

func (s *PasswordResetService) wrongGuess(ctx context.Context, p *models.Principal, pr *models.PasswordReset) error {
	n, err := s.repo.IncrementAttempts(ctx, pr.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrInvalidResetCode
		}
		return err
	}
	if n >= maxResetAttempts {
		s.log.Warn("password reset code discarded after too many wrong guesses", zap.String("username", p.Username))
		s.discard(ctx, pr)
		s.audit.Record(ctx, models.AuditEvent{
			Action:     models.AuditResetCodeBurned,
			Identifier: p.Username,
			Detail:     fmt.Sprintf("%d wrong code(s)", n),
		})
	}
	return ErrInvalidResetCode
}

func (s *PasswordResetService) discard(ctx context.Context, pr *models.PasswordReset) {
	if err := s.repo.Delete(ctx, pr.ID); err != nil {
		s.log.Warn("delete reset code failed", zap.Error(err))
	}
}
