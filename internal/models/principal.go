package models

import (
	"time"

	"github.com/google/uuid"
)

// Principal is an end-user of exactly one tenant
type Principal struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	Email        string
	PasswordHash string `json:"-"`

	FirstName string
	LastName  string
	AvatarURL string

	EmailVerified bool
	Active        bool

	FailedLoginAttempts int
	LockedUntil         *time.Time // nil or past means not locked
	LastLoginAt         *time.Time

	CreatedAt time.Time
}

// PrincipalSummary is what callers get back after authentication
type PrincipalSummary struct {
	ID            uuid.UUID `json:"id"`
	TenantID      uuid.UUID `json:"tenant_id"`
	Email         string    `json:"email"`
	FirstName     string    `json:"first_name,omitempty"`
	LastName      string    `json:"last_name,omitempty"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	EmailVerified bool      `json:"email_verified"`
}

func (p Principal) Summary() PrincipalSummary {
	return PrincipalSummary{
		ID:            p.ID,
		TenantID:      p.TenantID,
		Email:         p.Email,
		FirstName:     p.FirstName,
		LastName:      p.LastName,
		AvatarURL:     p.AvatarURL,
		EmailVerified: p.EmailVerified,
	}
}

// Identity is who an access token was issued to
type Identity struct {
	TenantID    uuid.UUID
	PrincipalID uuid.UUID
	TokenID     string
}
