package models

import (
	"fmt"
	"strings"
	"time"
)

type AttemptKind string

const (
	KindPassword AttemptKind = "password"
	KindPin      AttemptKind = "pin"
)

func (k AttemptKind) Valid() bool {
	return k == KindPassword || k == KindPin
}

// ParseAttemptKind accepts the legacy "username_password" spelling used by older clients.
func ParseAttemptKind(s string) (AttemptKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "password", "username_password":
		return KindPassword, nil
	case "pin":
		return KindPin, nil
	}
	return "", fmt.Errorf("unknown attempt kind %q", s)
}

// AttemptRecord — consecutive failures and lockout window for one (identifier, kind) pair.
type AttemptRecord struct {
	ID             int64       `json:"id"`
	Identifier     string      `json:"identifier"`
	Kind           AttemptKind `json:"kind"`
	FailureCount   int         `json:"failure_count"`
	FirstFailureAt *time.Time  `json:"first_failure_at,omitempty"`
	LastFailureAt  *time.Time  `json:"last_failure_at,omitempty"`
	Locked         bool        `json:"locked"`
	LockExpiresAt  *time.Time  `json:"lock_expires_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

func (r *AttemptRecord) Clone() *AttemptRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.FirstFailureAt = cloneTime(r.FirstFailureAt)
	c.LastFailureAt = cloneTime(r.LastFailureAt)
	c.LockExpiresAt = cloneTime(r.LockExpiresAt)
	return &c
}

// AttemptFilter — empty fields match everything.
type AttemptFilter struct {
	Identifier string
	Kind       AttemptKind
	LockedOnly bool
	Limit      int
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
