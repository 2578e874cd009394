package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/authcore/internal/apperrors"
	"github.com/nkiryanov/authcore/internal/models"
	"github.com/nkiryanov/authcore/internal/repository"
)

// Refresh rotates refresh token: the presented one is revoked and replaced with a new one.
// Presenting already revoked token is treated as theft: every active token of the principal is revoked.
// Token issued for another tenant is reported as invalid and left untouched.
func (c *Coordinator) Refresh(ctx context.Context, tenantID uuid.UUID, value string, meta models.ClientMeta) (LoginResult, error) {
	hash := HashRefreshToken(value)

	var (
		result  LoginResult
		outcome error
		events  []models.Event
	)

	err := c.storage.InTx(ctx, func(s repository.Storage) error {
		// Row lock serializes concurrent rotations: the loser sees the token revoked
		token, err := s.Refresh().GetForUpdate(ctx, hash)
		switch {
		case errors.Is(err, apperrors.ErrRefreshTokenInvalid):
			outcome = apperrors.ErrRefreshTokenInvalid
			return nil
		case err != nil:
			return err
		}

		if token.TenantID != tenantID {
			outcome = apperrors.ErrRefreshTokenInvalid
			return nil
		}

		now := c.clock.Now()

		if token.RevokedAt != nil {
			count, err := s.Refresh().RevokeAllForPrincipal(ctx, token.PrincipalID, now)
			if err != nil {
				return err
			}

			events = []models.Event{
				models.RefreshTokenReuseDetected{TenantID: token.TenantID, PrincipalID: token.PrincipalID, TokenID: token.ID, At: now},
				sessionsRevoked(token.TenantID, token.PrincipalID, ReasonReuse, count, now),
			}
			outcome = apperrors.ErrRefreshTokenRevoked
			return nil // commit the cascade
		}

		if !now.Before(token.ExpiresAt) {
			outcome = apperrors.ErrRefreshTokenExpired
			return nil
		}

		tenant, err := s.Tenant().GetByID(ctx, token.TenantID)
		switch {
		case errors.Is(err, apperrors.ErrTenantNotFound):
			outcome = apperrors.ErrPrincipalInactive
			return nil
		case err != nil:
			return err
		}

		p, err := s.Principal().GetByID(ctx, token.TenantID, token.PrincipalID)
		switch {
		case errors.Is(err, apperrors.ErrPrincipalNotFound):
			outcome = apperrors.ErrPrincipalInactive
			return nil
		case err != nil:
			return err
		}

		if !tenant.Active || !p.Active {
			outcome = apperrors.ErrPrincipalInactive
			return nil
		}

		pair, successorHash, err := c.issuePair(ctx, s, tenant, p, meta, now)
		if err != nil {
			return err
		}

		if err := s.Refresh().Replace(ctx, hash, successorHash, now); err != nil {
			return err
		}

		events = []models.Event{models.RefreshTokenRotated{TenantID: tenant.ID, PrincipalID: p.ID, TokenID: token.ID, At: now}}
		result = LoginResult{Principal: p.Summary(), Tokens: pair}
		return nil
	})
	if err != nil {
		return LoginResult{}, fmt.Errorf("error while rotating refresh token. Err: %w", err)
	}

	c.sink.Emit(ctx, events...)

	if outcome != nil {
		if errors.Is(outcome, apperrors.ErrRefreshTokenRevoked) {
			c.logger.Warn("refresh token reuse detected, sessions revoked")
		}
		return LoginResult{}, outcome
	}

	return result, nil
}

// Logout revokes the token if it is active. Unknown, expired or revoked tokens are not errors.
func (c *Coordinator) Logout(ctx context.Context, value string) error {
	hash := HashRefreshToken(value)

	token, err := c.storage.Refresh().Get(ctx, hash)
	switch {
	case errors.Is(err, apperrors.ErrRefreshTokenInvalid):
		return nil
	case err != nil:
		return fmt.Errorf("error while logout. Err: %w", err)
	}

	now := c.clock.Now()
	revoked, err := c.storage.Refresh().Revoke(ctx, hash, now)
	if err != nil {
		return fmt.Errorf("error while logout. Err: %w", err)
	}

	if revoked {
		c.sink.Emit(ctx, sessionsRevoked(token.TenantID, token.PrincipalID, ReasonLogout, 1, now))
	}
	return nil
}
