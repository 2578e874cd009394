package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/authcore/internal/apperrors"
	"github.com/nkiryanov/authcore/internal/models"
)

type TenantRepo struct {
	DB DBTX
}

const createTenant = `-- name: CreateTenant
INSERT INTO tenants (
	id, name, active, signing_secret,
	lockout_max_attempts, lockout_duration_minutes,
	access_token_ttl_minutes, refresh_token_ttl_days,
	require_email_verification, oauth_enabled, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING created_at
`

// Create tenant. Tenant ID and creation time are generated if empty.
func (r *TenantRepo) Create(ctx context.Context, t models.Tenant) (models.Tenant, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	rows, _ := r.DB.Query(ctx, createTenant,
		t.ID, t.Name, t.Active, t.SigningSecret,
		t.Lockout.MaxFailedAttempts, int(t.Lockout.Duration/time.Minute),
		int(t.AccessTokenTTL/time.Minute), int(t.RefreshTokenTTL/(24*time.Hour)),
		t.RequireEmailVerification, t.OAuth != nil, t.CreatedAt,
	)
	createdAt, err := pgx.CollectOneRow(rows, pgx.RowTo[time.Time])
	if err != nil {
		return t, fmt.Errorf("db error: %w", err)
	}
	t.CreatedAt = createdAt

	if t.OAuth != nil {
		for name, p := range t.OAuth.Providers {
			p.Name = name
			if err := r.UpsertOAuthProvider(ctx, t.ID, p); err != nil {
				return t, err
			}
		}
	}

	return t, nil
}

const getTenant = `-- name: GetTenant
SELECT
	id, name, active, signing_secret,
	lockout_max_attempts, lockout_duration_minutes,
	access_token_ttl_minutes, refresh_token_ttl_days,
	require_email_verification, oauth_enabled, created_at
FROM tenants
WHERE id = $1
`

const listTenantProviders = `-- name: ListTenantProviders
SELECT name, client_id, client_secret, redirect_uri, auth_url, token_url, userinfo_url, scopes
FROM tenant_oauth_providers
WHERE tenant_id = $1
`

func (r *TenantRepo) GetByID(ctx context.Context, tenantID uuid.UUID) (models.Tenant, error) {
	var oauthEnabled bool

	rows, _ := r.DB.Query(ctx, getTenant, tenantID)
	tenant, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.Tenant, error) {
		var (
			t                                          models.Tenant
			lockoutMinutes, accessMinutes, refreshDays int
		)
		err := row.Scan(
			&t.ID, &t.Name, &t.Active, &t.SigningSecret,
			&t.Lockout.MaxFailedAttempts, &lockoutMinutes,
			&accessMinutes, &refreshDays,
			&t.RequireEmailVerification, &oauthEnabled, &t.CreatedAt,
		)
		t.Lockout.Duration = time.Duration(lockoutMinutes) * time.Minute
		t.AccessTokenTTL = time.Duration(accessMinutes) * time.Minute
		t.RefreshTokenTTL = time.Duration(refreshDays) * 24 * time.Hour
		return t, err
	})

	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		return tenant, fmt.Errorf("repo error: %w", apperrors.ErrTenantNotFound)
	default:
		return tenant, fmt.Errorf("db error: %w", err)
	}

	if !oauthEnabled {
		return tenant, nil
	}

	rows, _ = r.DB.Query(ctx, listTenantProviders, tenantID)
	providers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.OAuthProvider, error) {
		var p models.OAuthProvider
		err := row.Scan(&p.Name, &p.ClientID, &p.ClientSecret, &p.RedirectURI, &p.AuthURL, &p.TokenURL, &p.UserInfoURL, &p.Scopes)
		return p, err
	})
	if err != nil {
		return tenant, fmt.Errorf("db error: %w", err)
	}

	tenant.OAuth = &models.OAuthSettings{Providers: make(map[string]models.OAuthProvider, len(providers))}
	for _, p := range providers {
		tenant.OAuth.Providers[p.Name] = p
	}

	return tenant, nil
}

const updateTenantSecret = `-- name: UpdateTenantSecret
UPDATE tenants SET signing_secret = $2
WHERE id = $1
`

func (r *TenantRepo) UpdateSecret(ctx context.Context, tenantID uuid.UUID, secret string) error {
	tag, err := r.DB.Exec(ctx, updateTenantSecret, tenantID, secret)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return fmt.Errorf("repo error: %w", apperrors.ErrTenantNotFound)
	default:
		return nil
	}
}

const upsertProvider = `-- name: UpsertOAuthProvider
INSERT INTO tenant_oauth_providers (tenant_id, name, client_id, client_secret, redirect_uri, auth_url, token_url, userinfo_url, scopes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (tenant_id, name) DO UPDATE SET
	client_id = EXCLUDED.client_id,
	client_secret = EXCLUDED.client_secret,
	redirect_uri = EXCLUDED.redirect_uri,
	auth_url = EXCLUDED.auth_url,
	token_url = EXCLUDED.token_url,
	userinfo_url = EXCLUDED.userinfo_url,
	scopes = EXCLUDED.scopes
`

const enableTenantOAuth = `-- name: EnableTenantOAuth
UPDATE tenants SET oauth_enabled = true
WHERE id = $1
`

func (r *TenantRepo) UpsertOAuthProvider(ctx context.Context, tenantID uuid.UUID, p models.OAuthProvider) error {
	scopes := p.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	tag, err := r.DB.Exec(ctx, enableTenantOAuth, tenantID)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return fmt.Errorf("repo error: %w", apperrors.ErrTenantNotFound)
	}

	_, err = r.DB.Exec(ctx, upsertProvider, tenantID, p.Name, p.ClientID, p.ClientSecret, p.RedirectURI, p.AuthURL, p.TokenURL, p.UserInfoURL, scopes)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}
