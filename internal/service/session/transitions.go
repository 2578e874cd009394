package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authcore/internal/models"
	"github.com/nkiryanov/authcore/internal/service/lockout"
)

// Revocation reasons carried by SessionsRevoked event
const (
	ReasonLogout        = "logout"
	ReasonLockout       = "lockout"
	ReasonAdminLock     = "admin_lock"
	ReasonReuse         = "refresh_token_reuse"
	ReasonAdmin         = "admin"
	ReasonPassword      = "password_change"
	ReasonSecretRotated = "secret_rotation"
)

func policyOf(t models.Tenant) lockout.Policy {
	return lockout.Policy{MaxAttempts: t.Lockout.MaxFailedAttempts, Duration: t.Lockout.Duration}
}

// loginFailed counts failure and locks the principal when policy says so.
// Counting restarts after an elapsed lock.
func loginFailed(p models.Principal, policy lockout.Policy, now time.Time) (models.Principal, []models.Event) {
	if lockout.Elapsed(p.LockedUntil, now) {
		p.FailedLoginAttempts = 0
		p.LockedUntil = nil
	}

	p.FailedLoginAttempts++
	events := []models.Event{models.LoginFailed{
		TenantID:       p.TenantID,
		PrincipalID:    p.ID,
		FailedAttempts: p.FailedLoginAttempts,
		At:             now,
	}}

	if until := policy.LockUntil(p.FailedLoginAttempts, now); until != nil {
		p.LockedUntil = until
		events = append(events, models.PrincipalLockedOut{TenantID: p.TenantID, PrincipalID: p.ID, Until: *until})
	}

	return p, events
}

// loginSucceeded resets the failure counter and the lock
func loginSucceeded(p models.Principal, now time.Time) (models.Principal, []models.Event) {
	p.FailedLoginAttempts = 0
	p.LockedUntil = nil
	p.LastLoginAt = &now

	return p, []models.Event{models.LoginSucceeded{TenantID: p.TenantID, PrincipalID: p.ID, At: now}}
}

// adminLocked locks principal regardless of the counter
func adminLocked(p models.Principal, until time.Time) (models.Principal, []models.Event) {
	p.LockedUntil = &until
	return p, []models.Event{models.PrincipalLockedOut{TenantID: p.TenantID, PrincipalID: p.ID, Until: until}}
}

func sessionsRevoked(tenantID uuid.UUID, principalID uuid.UUID, reason string, count int64, now time.Time) models.Event {
	return models.SessionsRevoked{TenantID: tenantID, PrincipalID: principalID, Reason: reason, Count: count, At: now}
}
