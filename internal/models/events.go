package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is emitted by state transitions and dispatched after the state is persisted
type Event interface {
	EventName() string
}

type LoginSucceeded struct {
	TenantID    uuid.UUID
	PrincipalID uuid.UUID
	At          time.Time
}

type LoginFailed struct {
	TenantID       uuid.UUID
	PrincipalID    uuid.UUID
	FailedAttempts int
	At             time.Time
}

type PrincipalLockedOut struct {
	TenantID    uuid.UUID
	PrincipalID uuid.UUID
	Until       time.Time
}

type RefreshTokenRotated struct {
	TenantID    uuid.UUID
	PrincipalID uuid.UUID
	TokenID     uuid.UUID
	At          time.Time
}

type RefreshTokenReuseDetected struct {
	TenantID    uuid.UUID
	PrincipalID uuid.UUID
	TokenID     uuid.UUID
	At          time.Time
}

// SessionsRevoked is emitted for every bulk revocation.
// PrincipalID is uuid.Nil when a whole tenant was revoked.
type SessionsRevoked struct {
	TenantID    uuid.UUID
	PrincipalID uuid.UUID
	Reason      string
	Count       int64
	At          time.Time
}

type TenantSecretRotated struct {
	TenantID uuid.UUID
	At       time.Time
}

type PasswordChanged struct {
	TenantID    uuid.UUID
	PrincipalID uuid.UUID
	At          time.Time
}

type PrincipalRegistered struct {
	TenantID    uuid.UUID
	PrincipalID uuid.UUID
	Via         string
	At          time.Time
}

type OAuthIdentityLinked struct {
	TenantID       uuid.UUID
	PrincipalID    uuid.UUID
	Provider       string
	ProviderUserID string
	At             time.Time
}

func (LoginSucceeded) EventName() string            { return "login_succeeded" }
func (LoginFailed) EventName() string               { return "login_failed" }
func (PrincipalLockedOut) EventName() string        { return "principal_locked_out" }
func (RefreshTokenRotated) EventName() string       { return "refresh_token_rotated" }
func (RefreshTokenReuseDetected) EventName() string { return "refresh_token_reuse_detected" }
func (SessionsRevoked) EventName() string           { return "sessions_revoked" }
func (TenantSecretRotated) EventName() string       { return "tenant_secret_rotated" }
func (PasswordChanged) EventName() string           { return "password_changed" }
func (PrincipalRegistered) EventName() string       { return "principal_registered" }
func (OAuthIdentityLinked) EventName() string       { return "oauth_identity_linked" }
