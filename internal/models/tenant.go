package models

import (
	"time"

	"github.com/google/uuid"
)

// LockoutSettings is the tenant password-lockout knob pair
type LockoutSettings struct {
	MaxFailedAttempts int
	Duration          time.Duration
}

// OAuthProvider holds one third-party provider configuration of a tenant
type OAuthProvider struct {
	Name         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
}

// OAuthSettings is an optional tenant sub-record. A nil *OAuthSettings means OAuth is disabled.
type OAuthSettings struct {
	Providers map[string]OAuthProvider
}

// Provider returns the enabled provider with the name
func (s *OAuthSettings) Provider(name string) (OAuthProvider, bool) {
	if s == nil {
		return OAuthProvider{}, false
	}
	p, ok := s.Providers[name]
	return p, ok
}

type Tenant struct {
	ID     uuid.UUID
	Name   string
	Active bool

	// Key material for access tokens. Must never leave the token signing path.
	SigningSecret string `json:"-"`

	Lockout                  LockoutSettings
	AccessTokenTTL           time.Duration
	RefreshTokenTTL          time.Duration
	RequireEmailVerification bool

	OAuth *OAuthSettings

	CreatedAt time.Time
}
