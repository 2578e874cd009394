package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authcore/internal/models"
)

// Tenant repository interface
type TenantRepo interface {
	// Create tenant with its oauth providers (if any)
	Create(ctx context.Context, tenant models.Tenant) (models.Tenant, error)

	// Get tenant with oauth settings
	// If tenant not found must return apperrors.ErrTenantNotFound
	GetByID(ctx context.Context, tenantID uuid.UUID) (models.Tenant, error)

	// Replace tenant signing secret
	UpdateSecret(ctx context.Context, tenantID uuid.UUID, secret string) error

	// Create or replace provider settings and turn oauth on for the tenant
	UpsertOAuthProvider(ctx context.Context, tenantID uuid.UUID, provider models.OAuthProvider) error
}

// Principal repository interface
type PrincipalRepo interface {
	// Create principal
	// If principal with the email exists in the tenant already has to return apperrors.ErrPrincipalAlreadyExists
	Create(ctx context.Context, principal models.Principal) (models.Principal, error)

	// Get principal
	// If principal not found must return apperrors.ErrPrincipalNotFound
	GetByID(ctx context.Context, tenantID uuid.UUID, principalID uuid.UUID) (models.Principal, error)

	// Same as GetByID but row stays locked till the transaction end
	GetByIDForUpdate(ctx context.Context, tenantID uuid.UUID, principalID uuid.UUID) (models.Principal, error)

	// Email lookup is case-insensitive
	GetByEmail(ctx context.Context, tenantID uuid.UUID, email string) (models.Principal, error)

	// Update profile fields: names, avatar, email verification and active flag
	Update(ctx context.Context, principal models.Principal) error

	// Persist failed attempts counter, lock and last login time
	UpdateLoginState(ctx context.Context, principal models.Principal) error

	UpdatePassword(ctx context.Context, tenantID uuid.UUID, principalID uuid.UUID, passwordHash string) error
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Create token in repository
	Create(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Return the token by hash even if it expired or revoked
	// If token not found must return apperrors.ErrRefreshTokenInvalid
	Get(ctx context.Context, tokenHash string) (models.RefreshToken, error)

	// Same as Get but row stays locked till the transaction end
	GetForUpdate(ctx context.Context, tokenHash string) (models.RefreshToken, error)

	// Revoke the token and point it to its successor
	// Must not touch already revoked token, apperrors.ErrRefreshTokenRevoked returned instead
	Replace(ctx context.Context, tokenHash string, successorHash string, at time.Time) error

	// Revoke single token. Return false if it was not active.
	Revoke(ctx context.Context, tokenHash string, at time.Time) (bool, error)

	// Bulk revocation, return number of tokens revoked
	RevokeAllForPrincipal(ctx context.Context, principalID uuid.UUID, at time.Time) (int64, error)
	RevokeAllForTenant(ctx context.Context, tenantID uuid.UUID, at time.Time) (int64, error)

	ListActiveByPrincipal(ctx context.Context, principalID uuid.UUID, now time.Time) ([]models.RefreshToken, error)

	// Delete tokens expired or revoked before the moment
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// OAuth identity link repository interface
type OAuthLinkRepo interface {
	// If link for the provider identity or principal provider exists has to return apperrors.ErrOAuthLinkAlreadyExists
	Create(ctx context.Context, link models.OAuthIdentityLink) (models.OAuthIdentityLink, error)

	// If link not found must return apperrors.ErrOAuthLinkNotFound
	GetByProviderUser(ctx context.Context, tenantID uuid.UUID, provider string, providerUserID string) (models.OAuthIdentityLink, error)
	GetByPrincipal(ctx context.Context, principalID uuid.UUID, provider string) (models.OAuthIdentityLink, error)
}

// Storage gives access to every repository and runs them in one transaction
type Storage interface {
	Tenant() TenantRepo
	Principal() PrincipalRepo
	Refresh() RefreshTokenRepo
	OAuthLink() OAuthLinkRepo

	// Run fn in transaction. Commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}

// OAuthStateStore keeps authorize states till callback
type OAuthStateStore interface {
	Save(ctx context.Context, state models.OAuthState, ttl time.Duration) error

	// Return state and delete it atomically
	// If state not found or expired must return apperrors.ErrOAuthStateNotFound
	Consume(ctx context.Context, value string) (models.OAuthState, error)
}
