package services

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"ypgattendance/internal/models"
	"ypgattendance/internal/repositories"
)

// CredentialVerifier checks a secret for an identifier. A mismatch and an unknown
// identifier both yield ErrInvalidCredentials; store failures are returned as-is.
type CredentialVerifier interface {
	Verify(ctx context.Context, identifier, secret string) (*models.Principal, error)
}

type PasswordVerifier struct {
	repo repositories.CredentialRepository

	dummyOnce sync.Once
	dummyHash []byte
}

func NewPasswordVerifier(repo repositories.CredentialRepository) *PasswordVerifier {
	return &PasswordVerifier{repo: repo}
}

// burn spends one bcrypt comparison so unknown usernames cost as much as wrong passwords.
func (v *PasswordVerifier) burn(secret string) {
	v.dummyOnce.Do(func() {
		v.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("ypg-dummy-password"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(v.dummyHash, []byte(secret))
}

func (v *PasswordVerifier) Verify(ctx context.Context, identifier, secret string) (*models.Principal, error) {
	p, err := v.repo.GetByUsername(ctx, strings.TrimSpace(identifier))
	if err != nil {
		return nil, err
	}
	if p == nil || strings.TrimSpace(p.PasswordHash) == "" {
		v.burn(secret)
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(secret)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return p, nil
}

// PinVerifier adapts PinGate to CredentialVerifier for kind=pin logins.
type PinVerifier struct {
	gate *PinGate
}

func NewPinVerifier(gate *PinGate) *PinVerifier {
	return &PinVerifier{gate: gate}
}

func (v *PinVerifier) Verify(ctx context.Context, identifier, secret string) (*models.Principal, error) {
	ok, err := v.gate.Verify(ctx, secret)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return &models.Principal{Username: identifier}, nil
}
