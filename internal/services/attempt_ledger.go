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
)

// AttemptLedger tracks consecutive authentication failures per (identifier, kind) and
// decides lockouts. Every method persists before returning; nothing is cached.
type AttemptLedger struct {
	repo     repositories.AttemptRepository
	policies map[models.AttemptKind]LockoutPolicy
	clock    Clock
	log      *zap.Logger
}

func NewAttemptLedger(repo repositories.AttemptRepository, policies map[models.AttemptKind]LockoutPolicy, clock Clock, logger *zap.Logger) *AttemptLedger {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := make(map[models.AttemptKind]LockoutPolicy, len(policies))
	for k, v := range policies {
		p[k] = v
	}
	return &AttemptLedger{repo: repo, policies: p, clock: clock, log: logger}
}

func (l *AttemptLedger) policyFor(kind models.AttemptKind) LockoutPolicy {
	if p, ok := l.policies[kind]; ok {
		return p
	}
	return DefaultLockoutPolicy()
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// GetOrCreate returns the record for the key, inserting a clean one if needed. When two
// callers race on the insert the loser re-fetches the winner's row.
func (l *AttemptLedger) GetOrCreate(ctx context.Context, identifier string, kind models.AttemptKind) (*models.AttemptRecord, error) {
	identifier = normalizeIdentifier(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("attempt identifier is required")
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid attempt kind %q", kind)
	}

	rec, err := l.repo.Get(ctx, identifier, kind)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}

	rec = &models.AttemptRecord{Identifier: identifier, Kind: kind, CreatedAt: l.clock.Now()}
	err = l.repo.Create(ctx, rec)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, repositories.ErrDuplicate) {
		return nil, err
	}
	rec, err = l.repo.Get(ctx, identifier, kind)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("login attempt %s/%s vanished after insert race", identifier, kind)
	}
	return rec, nil
}

func lockActive(rec *models.AttemptRecord, now time.Time) bool {
	return rec.Locked && rec.LockExpiresAt != nil && now.Before(*rec.LockExpiresAt)
}

// IsLockedOut is the single place lock expiry is evaluated. An expired lock is cleared and
// the clear is persisted; failure_count is left alone.
func (l *AttemptLedger) IsLockedOut(ctx context.Context, rec *models.AttemptRecord) (bool, error) {
	if !rec.Locked {
		return false, nil
	}
	now := l.clock.Now()
	if lockActive(rec, now) {
		return true, nil
	}

	updated, err := l.repo.Mutate(ctx, rec.Identifier, rec.Kind, now, func(cur *models.AttemptRecord) error {
		if cur.Locked && !lockActive(cur, now) {
			cur.Locked = false
			cur.LockExpiresAt = nil
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	*rec = *updated
	if !updated.Locked {
		l.log.Debug("lockout expired",
			zap.String("identifier", rec.Identifier),
			zap.String("kind", string(rec.Kind)))
	}
	return lockActive(updated, now), nil
}

// RecordFailure increments the failure count and applies the policy for the new count.
// A lock is never shortened: the expiry becomes max(existing, now+duration).
func (l *AttemptLedger) RecordFailure(ctx context.Context, rec *models.AttemptRecord) error {
	now := l.clock.Now()
	policy := l.policyFor(rec.Kind)

	updated, err := l.repo.Mutate(ctx, rec.Identifier, rec.Kind, now, func(cur *models.AttemptRecord) error {
		if cur.FailureCount == 0 {
			first := now
			cur.FirstFailureAt = &first
		}
		cur.FailureCount++
		last := now
		cur.LastFailureAt = &last

		d := policy.DurationFor(cur.FailureCount)
		if d <= 0 {
			return nil
		}
		expires := now.Add(d)
		if lockActive(cur, now) && cur.LockExpiresAt.After(expires) {
			expires = *cur.LockExpiresAt
		}
		cur.Locked = true
		cur.LockExpiresAt = &expires
		return nil
	})
	if err != nil {
		return err
	}
	*rec = *updated
	return nil
}

// Reset clears the failure series. Only call it after a verified success.
func (l *AttemptLedger) Reset(ctx context.Context, rec *models.AttemptRecord) error {
	updated, err := l.repo.Mutate(ctx, rec.Identifier, rec.Kind, l.clock.Now(), func(cur *models.AttemptRecord) error {
		cur.FailureCount = 0
		cur.FirstFailureAt = nil
		cur.Locked = false
		cur.LockExpiresAt = nil
		return nil
	})
	if err != nil {
		return err
	}
	*rec = *updated
	return nil
}

// RemainingLockMinutes rounds up, so a lock with 10 seconds left reports 1 minute.
func (l *AttemptLedger) RemainingLockMinutes(rec *models.AttemptRecord) int {
	if !rec.Locked || rec.LockExpiresAt == nil {
		return 0
	}
	left := rec.LockExpiresAt.Sub(l.clock.Now())
	if left <= 0 {
		return 0
	}
	return int((left + time.Minute - 1) / time.Minute)
}

// Clear deletes ledger rows. Empty identifier or kind match everything.
func (l *AttemptLedger) Clear(ctx context.Context, identifier string, kind models.AttemptKind) (int64, error) {
	if kind != "" && !kind.Valid() {
		return 0, fmt.Errorf("invalid attempt kind %q", kind)
	}
	return l.repo.Delete(ctx, models.AttemptFilter{Identifier: normalizeIdentifier(identifier), Kind: kind})
}

func (l *AttemptLedger) List(ctx context.Context, filter models.AttemptFilter) ([]*models.AttemptRecord, error) {
	filter.Identifier = normalizeIdentifier(filter.Identifier)
	return l.repo.List(ctx, filter)
}
