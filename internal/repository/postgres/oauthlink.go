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

type OAuthLinkRepo struct {
	DB DBTX
}

const linkColumns = `id, tenant_id, principal_id, provider, provider_user_id, email, display_name, avatar_url, created_at`

const createLink = `-- name: CreateOAuthLink
INSERT INTO oauth_identity_links (` + linkColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + linkColumns

func (r *OAuthLinkRepo) Create(ctx context.Context, link models.OAuthIdentityLink) (models.OAuthIdentityLink, error) {
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}

	rows, _ := r.DB.Query(ctx, createLink,
		link.ID, link.TenantID, link.PrincipalID, link.Provider, link.ProviderUserID,
		link.Email, link.DisplayName, link.AvatarURL, link.CreatedAt,
	)
	created, err := pgx.CollectOneRow(rows, rowToLink)

	switch {
	case err == nil:
		return created, nil
	case isUniqueViolation(err):
		return created, fmt.Errorf("repo error: %w", apperrors.ErrOAuthLinkAlreadyExists)
	default:
		return created, fmt.Errorf("db error: %w", err)
	}
}

const getLinkByProviderUser = `-- name: GetOAuthLinkByProviderUser
SELECT ` + linkColumns + `
FROM oauth_identity_links
WHERE tenant_id = $1 AND provider = $2 AND provider_user_id = $3
`

func (r *OAuthLinkRepo) GetByProviderUser(ctx context.Context, tenantID uuid.UUID, provider string, providerUserID string) (models.OAuthIdentityLink, error) {
	return r.getOne(ctx, getLinkByProviderUser, tenantID, provider, providerUserID)
}

const getLinkByPrincipal = `-- name: GetOAuthLinkByPrincipal
SELECT ` + linkColumns + `
FROM oauth_identity_links
WHERE principal_id = $1 AND provider = $2
`

func (r *OAuthLinkRepo) GetByPrincipal(ctx context.Context, principalID uuid.UUID, provider string) (models.OAuthIdentityLink, error) {
	return r.getOne(ctx, getLinkByPrincipal, principalID, provider)
}

func (r *OAuthLinkRepo) getOne(ctx context.Context, query string, args ...any) (models.OAuthIdentityLink, error) {
	rows, _ := r.DB.Query(ctx, query, args...)
	link, err := pgx.CollectOneRow(rows, rowToLink)

	switch {
	case err == nil:
		return link, nil
	case errors.Is(err, pgx.ErrNoRows):
		return link, fmt.Errorf("repo error: %w", apperrors.ErrOAuthLinkNotFound)
	default:
		return link, fmt.Errorf("db error: %w", err)
	}
}

func rowToLink(row pgx.CollectableRow) (models.OAuthIdentityLink, error) {
	var l models.OAuthIdentityLink
	err := row.Scan(&l.ID, &l.TenantID, &l.PrincipalID, &l.Provider, &l.ProviderUserID, &l.Email, &l.DisplayName, &l.AvatarURL, &l.CreatedAt)
	return l, err
}
