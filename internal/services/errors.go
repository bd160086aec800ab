package services

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials covers a wrong secret and an unknown identifier alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyConfigured  = errors.New("security pin already configured")
	ErrInvalidFormat      = errors.New("pin must be exactly 4 digits")
	ErrInvalidCurrentPin  = errors.New("current pin is incorrect")
	ErrPinNotConfigured   = errors.New("security pin is not configured")

	ErrWeakPassword     = errors.New("password must be 8 to 72 characters and include uppercase, lowercase, number and symbol")
	ErrPasswordReused   = errors.New("new password must differ from the old one")
	ErrUsernameTaken    = errors.New("username already exists")
	ErrPrincipalMissing = errors.New("user not found")
	ErrUnknownRole      = errors.New("unknown role")
	ErrInvalidResetCode = errors.New("invalid or expired reset code")

	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
)

// LockedOutError is returned while an (identifier, kind) pair is locked. It is the only
// error that carries data back to the caller.
type LockedOutError struct {
	RemainingMinutes int
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("too many failed attempts, try again in %d minute(s)", e.RemainingMinutes)
}

// IsLockedOut reports whether err is a lockout and returns the remaining wait.
func IsLockedOut(err error) (int, bool) {
	var lo *LockedOutError
	if errors.As(err, &lo) {
		return lo.RemainingMinutes, true
	}
	return 0, false
}
