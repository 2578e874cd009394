package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is a persisted refresh token record.
// Only the SHA-256 hash of the opaque value is stored.
type RefreshToken struct {
	ID          uuid.UUID
	PrincipalID uuid.UUID
	TenantID    uuid.UUID
	TokenHash   string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	RevokedAt   *time.Time // nil if token not revoked
	ReplacedBy  *string    // hash of the token issued on rotation

	// Advisory only
	IPAddress string
	UserAgent string
}

// Active reports whether the token may still be exchanged
func (t RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair returned to the caller once on login or rotation
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// ClientMeta is the request origin recorded next to refresh tokens
type ClientMeta struct {
	IPAddress string
	UserAgent string
}
