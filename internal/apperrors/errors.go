package apperrors

import (
	"errors"
	"fmt"
	"time"
)

// Expected, user-facing outcomes. Anything not matching one of these is an infrastructure failure.
var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrTenantInactive = errors.New("tenant is not active")

	ErrPrincipalNotFound      = errors.New("principal not found")
	ErrPrincipalAlreadyExists = errors.New("principal already exists")
	ErrPrincipalInactive      = errors.New("principal is not active")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLockedOut          = errors.New("account is locked out")
	ErrEmailUnverified    = errors.New("email is not verified")

	ErrRefreshTokenInvalid = errors.New("refresh token is invalid")
	ErrRefreshTokenExpired = errors.New("refresh token is expired")
	ErrRefreshTokenRevoked = errors.New("refresh token is revoked")

	ErrAccessTokenInvalid = errors.New("access token is invalid")
	ErrAccessTokenExpired = errors.New("access token is expired")

	ErrOAuthStateMismatch      = errors.New("oauth state mismatch")
	ErrOAuthStateNotFound      = errors.New("oauth state not found")
	ErrOAuthProviderNotEnabled = errors.New("oauth provider is not enabled")
	ErrOAuthLinkNotFound       = errors.New("oauth identity link not found")
	ErrOAuthLinkAlreadyExists  = errors.New("oauth identity link already exists")
	ErrOAuthIdentityConflict   = errors.New("principal is linked to another identity of the provider")
	ErrOAuthProfileInvalid     = errors.New("oauth profile is invalid")
	ErrOAuthExchangeFailed     = errors.New("oauth code exchange failed")
)

// LockedOutError carries the lock expiry so callers may tell the account holder how long to wait.
// It matches ErrLockedOut with errors.Is.
type LockedOutError struct {
	Until     time.Time
	Remaining time.Duration
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("%s: retry in %s", ErrLockedOut, e.Remaining.Round(time.Second))
}

func (e *LockedOutError) Is(target error) bool {
	return target == ErrLockedOut
}
