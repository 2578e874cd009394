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

type RefreshTokenRepo struct {
	DB DBTX
}

const refreshTokenColumns = `id, principal_id, tenant_id, token_hash, created_at, expires_at, revoked_at, replaced_by, ip_address, user_agent`

const createToken = `-- name: CreateRefreshToken
INSERT INTO refresh_tokens (` + refreshTokenColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + refreshTokenColumns

func (r *RefreshTokenRepo) Create(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createToken,
		token.ID, token.PrincipalID, token.TenantID, token.TokenHash, token.CreatedAt, token.ExpiresAt,
		token.RevokedAt, token.ReplacedBy, token.IPAddress, token.UserAgent,
	)
	created, err := pgx.CollectOneRow(rows, rowToRefreshToken)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

const getToken = `-- name: GetRefreshToken by hash
SELECT ` + refreshTokenColumns + `
FROM refresh_tokens
WHERE token_hash = $1
`

// Get token
// It should return result even it expired or revoked already
func (r *RefreshTokenRepo) Get(ctx context.Context, tokenHash string) (models.RefreshToken, error) {
	return r.getOne(ctx, getToken, tokenHash)
}

const getTokenForUpdate = getToken + `FOR UPDATE
`

// GetForUpdate locks the row, so concurrent rotations of the same token are serialized
func (r *RefreshTokenRepo) GetForUpdate(ctx context.Context, tokenHash string) (models.RefreshToken, error) {
	return r.getOne(ctx, getTokenForUpdate, tokenHash)
}

func (r *RefreshTokenRepo) getOne(ctx context.Context, query string, tokenHash string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, query, tokenHash)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenInvalid)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const replaceToken = `-- name: Replace token with successor if it is not revoked
UPDATE refresh_tokens
SET revoked_at = $3, replaced_by = $2
WHERE token_hash = $1 AND revoked_at IS NULL
`

func (r *RefreshTokenRepo) Replace(ctx context.Context, tokenHash string, successorHash string, at time.Time) error {
	tag, err := r.DB.Exec(ctx, replaceToken, tokenHash, successorHash, at)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenRevoked)
	default:
		return nil
	}
}

const revokeToken = `-- name: Revoke single active token
UPDATE refresh_tokens
SET revoked_at = $2
WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2
`

func (r *RefreshTokenRepo) Revoke(ctx context.Context, tokenHash string, at time.Time) (bool, error) {
	tag, err := r.DB.Exec(ctx, revokeToken, tokenHash, at)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

const revokeAllForPrincipal = `-- name: Revoke every active token of principal
UPDATE refresh_tokens
SET revoked_at = $2
WHERE principal_id = $1 AND revoked_at IS NULL AND expires_at > $2
`

func (r *RefreshTokenRepo) RevokeAllForPrincipal(ctx context.Context, principalID uuid.UUID, at time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, revokeAllForPrincipal, principalID, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

const revokeAllForTenant = `-- name: Revoke every active token of tenant
UPDATE refresh_tokens
SET revoked_at = $2
WHERE tenant_id = $1 AND revoked_at IS NULL AND expires_at > $2
`

func (r *RefreshTokenRepo) RevokeAllForTenant(ctx context.Context, tenantID uuid.UUID, at time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, revokeAllForTenant, tenantID, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

const listActiveByPrincipal = `-- name: List active tokens of principal
SELECT ` + refreshTokenColumns + `
FROM refresh_tokens
WHERE principal_id = $1 AND revoked_at IS NULL AND expires_at > $2
ORDER BY created_at
`

func (r *RefreshTokenRepo) ListActiveByPrincipal(ctx context.Context, principalID uuid.UUID, now time.Time) ([]models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, listActiveByPrincipal, principalID, now)
	tokens, err := pgx.CollectRows(rows, rowToRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return tokens, nil
}

const deleteExpired = `-- name: Delete dead tokens
DELETE FROM refresh_tokens
WHERE expires_at < $1 OR revoked_at < $1
`

func (r *RefreshTokenRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteExpired, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

func rowToRefreshToken(row pgx.CollectableRow) (models.RefreshToken, error) {
	var t models.RefreshToken
	err := row.Scan(&t.ID, &t.PrincipalID, &t.TenantID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.RevokedAt, &t.ReplacedBy, &t.IPAddress, &t.UserAgent)
	return t, err
}
