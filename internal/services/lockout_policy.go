package services

import (
	"fmt"
	"time"
)

// LockoutTier locks an identifier for Duration once its failure count reaches Threshold.
type LockoutTier struct {
	Threshold int
	Duration  time.Duration
}

// LockoutPolicy maps a consecutive failure count to a lock duration. Tiers are ordered by
// Threshold; the highest reached tier wins.
type LockoutPolicy struct {
	tiers []LockoutTier
}

// DefaultLockoutPolicy: 3 failures lock for 30 minutes, 6 for 24 hours.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{tiers: []LockoutTier{
		{Threshold: 3, Duration: 30 * time.Minute},
		{Threshold: 6, Duration: 24 * time.Hour},
	}}
}

// NewLockoutPolicy validates that thresholds strictly increase and durations never shrink,
// which keeps DurationFor monotonic.
func NewLockoutPolicy(tiers []LockoutTier) (LockoutPolicy, error) {
	if len(tiers) == 0 {
		return LockoutPolicy{}, fmt.Errorf("lockout policy needs at least one tier")
	}
	for i, t := range tiers {
		if t.Threshold < 1 {
			return LockoutPolicy{}, fmt.Errorf("tier %d: threshold must be >= 1", i)
		}
		if t.Duration <= 0 {
			return LockoutPolicy{}, fmt.Errorf("tier %d: duration must be positive", i)
		}
		if i > 0 {
			prev := tiers[i-1]
			if t.Threshold <= prev.Threshold {
				return LockoutPolicy{}, fmt.Errorf("tier %d: thresholds must increase", i)
			}
			if t.Duration < prev.Duration {
				return LockoutPolicy{}, fmt.Errorf("tier %d: durations must not decrease", i)
			}
		}
	}
	cp := make([]LockoutTier, len(tiers))
	copy(cp, tiers)
	return LockoutPolicy{tiers: cp}, nil
}

func (p LockoutPolicy) DurationFor(failureCount int) time.Duration {
	var d time.Duration
	for _, t := range p.tiers {
		if failureCount < t.Threshold {
			break
		}
		d = t.Duration
	}
	return d
}

func (p LockoutPolicy) Tiers() []LockoutTier {
	cp := make([]LockoutTier, len(p.tiers))
	copy(cp, p.tiers)
	return cp
}
