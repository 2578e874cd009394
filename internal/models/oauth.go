package models

import (
	"time"

	"github.com/google/uuid"
)

// OAuthIdentityLink maps (provider, provider user id) to a local principal
type OAuthIdentityLink struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	PrincipalID    uuid.UUID
	Provider       string
	ProviderUserID string

	// Cached provider profile, used to pre-fill new principals only
	Email       string
	DisplayName string
	AvatarURL   string

	CreatedAt time.Time
}

// OAuthProfile is a verified third-party profile as returned by the provider
type OAuthProfile struct {
	Provider       string
	ProviderUserID string
	Email          string
	EmailVerified  bool
	DisplayName    string
	FirstName      string
	LastName       string
	AvatarURL      string
}

// OAuthState is created on authorize and consumed once on callback
type OAuthState struct {
	Value        string    `json:"value"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Provider     string    `json:"provider"`
	RedirectURI  string    `json:"redirect_uri,omitempty"`
	CodeVerifier string    `json:"code_verifier"`
	CreatedAt    time.Time `json:"created_at"`
}
