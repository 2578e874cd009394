// Package lockout decides when an account gets locked after failed password attempts.
// It holds no state; callers persist the decision.
package lockout

import (
	"time"
)

type Policy struct {
	// Attempts after which the account is locked. Zero or negative disables lockout.
	MaxAttempts int

	// How long the lock lasts
	Duration time.Duration
}

// LockUntil returns the lock expiry for the given number of consecutive failures,
// or nil if the account should stay unlocked
func (p Policy) LockUntil(failedAttempts int, now time.Time) *time.Time {
	if p.MaxAttempts <= 0 || failedAttempts < p.MaxAttempts {
		return nil
	}

	until := now.Add(p.Duration)
	return &until
}

// IsLockedOut treats a lock in the past same as no lock at all
func IsLockedOut(lockedUntil *time.Time, now time.Time) bool {
	return lockedUntil != nil && now.Before(*lockedUntil)
}

// Remaining is how long the account holder still has to wait
func Remaining(lockedUntil *time.Time, now time.Time) time.Duration {
	if !IsLockedOut(lockedUntil, now) {
		return 0
	}
	return lockedUntil.Sub(now)
}

// Elapsed reports a lock that was set and has already expired.
// Failure counting restarts from zero after such lock.
func Elapsed(lockedUntil *time.Time, now time.Time) bool {
	return lockedUntil != nil && !now.Before(*lockedUntil)
}
