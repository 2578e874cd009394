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

type PrincipalRepo struct {
	DB DBTX
}

const principalColumns = `id, tenant_id, email, password_hash, first_name, last_name, avatar_url,
	email_verified, active, failed_login_attempts, locked_until, last_login_at, created_at`

const createPrincipal = `-- name: CreatePrincipal
INSERT INTO principals (` + principalColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING ` + principalColumns

// Create principal. ID and creation time are generated if empty.
func (r *PrincipalRepo) Create(ctx context.Context, p models.Principal) (models.Principal, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	rows, _ := r.DB.Query(ctx, createPrincipal,
		p.ID, p.TenantID, p.Email, p.PasswordHash, p.FirstName, p.LastName, p.AvatarURL,
		p.EmailVerified, p.Active, p.FailedLoginAttempts, p.LockedUntil, p.LastLoginAt, p.CreatedAt,
	)
	principal, err := pgx.CollectOneRow(rows, rowToPrincipal)

	switch {
	case err == nil:
		return principal, nil
	case isUniqueViolation(err):
		return principal, fmt.Errorf("repo error: %w", apperrors.ErrPrincipalAlreadyExists)
	default:
		return principal, fmt.Errorf("db error: %w", err)
	}
}

const getPrincipalByID = `-- name: GetPrincipalByID
SELECT ` + principalColumns + `
FROM principals
WHERE tenant_id = $1 AND id = $2
`

func (r *PrincipalRepo) GetByID(ctx context.Context, tenantID uuid.UUID, principalID uuid.UUID) (models.Principal, error) {
	return r.getOne(ctx, getPrincipalByID, tenantID, principalID)
}

const getPrincipalByIDForUpdate = getPrincipalByID + `FOR UPDATE
`

func (r *PrincipalRepo) GetByIDForUpdate(ctx context.Context, tenantID uuid.UUID, principalID uuid.UUID) (models.Principal, error) {
	return r.getOne(ctx, getPrincipalByIDForUpdate, tenantID, principalID)
}

const getPrincipalByEmail = `-- name: GetPrincipalByEmail
SELECT ` + principalColumns + `
FROM principals
WHERE tenant_id = $1 AND lower(email) = lower($2)
`

func (r *PrincipalRepo) GetByEmail(ctx context.Context, tenantID uuid.UUID, email string) (models.Principal, error) {
	return r.getOne(ctx, getPrincipalByEmail, tenantID, email)
}

func (r *PrincipalRepo) getOne(ctx context.Context, query string, args ...any) (models.Principal, error) {
	rows, _ := r.DB.Query(ctx, query, args...)
	principal, err := pgx.CollectOneRow(rows, rowToPrincipal)

	switch {
	case err == nil:
		return principal, nil
	case errors.Is(err, pgx.ErrNoRows):
		return principal, fmt.Errorf("repo error: %w", apperrors.ErrPrincipalNotFound)
	default:
		return principal, fmt.Errorf("db error: %w", err)
	}
}

const updatePrincipal = `-- name: UpdatePrincipal
UPDATE principals
SET first_name = $3, last_name = $4, avatar_url = $5, email_verified = $6, active = $7
WHERE tenant_id = $1 AND id = $2
`

func (r *PrincipalRepo) Update(ctx context.Context, p models.Principal) error {
	return r.exec(ctx, updatePrincipal, p.TenantID, p.ID, p.FirstName, p.LastName, p.AvatarURL, p.EmailVerified, p.Active)
}

const updateLoginState = `-- name: UpdateLoginState
UPDATE principals
SET failed_login_attempts = $3, locked_until = $4, last_login_at = $5
WHERE tenant_id = $1 AND id = $2
`

func (r *PrincipalRepo) UpdateLoginState(ctx context.Context, p models.Principal) error {
	return r.exec(ctx, updateLoginState, p.TenantID, p.ID, p.FailedLoginAttempts, p.LockedUntil, p.LastLoginAt)
}

const updatePassword = `-- name: UpdatePassword
UPDATE principals
SET password_hash = $3
WHERE tenant_id = $1 AND id = $2
`

func (r *PrincipalRepo) UpdatePassword(ctx context.Context, tenantID uuid.UUID, principalID uuid.UUID, passwordHash string) error {
	return r.exec(ctx, updatePassword, tenantID, principalID, passwordHash)
}

func (r *PrincipalRepo) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.DB.Exec(ctx, query, args...)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return fmt.Errorf("repo error: %w", apperrors.ErrPrincipalNotFound)
	default:
		return nil
	}
}

func rowToPrincipal(row pgx.CollectableRow) (models.Principal, error) {
	var p models.Principal
	err := row.Scan(
		&p.ID, &p.TenantID, &p.Email, &p.PasswordHash, &p.FirstName, &p.LastName, &p.AvatarURL,
		&p.EmailVerified, &p.Active, &p.FailedLoginAttempts, &p.LockedUntil, &p.LastLoginAt, &p.CreatedAt,
	)
	return p, err
}
