package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/authcore/internal/apperrors"
	"github.com/nkiryanov/authcore/internal/models"
	"github.com/nkiryanov/authcore/internal/redact"
	"github.com/nkiryanov/authcore/internal/repository"
	"github.com/nkiryanov/authcore/internal/service/lockout"
)

// Login checks the password and issues token pair.
// Unknown email and wrong password are indistinguishable for the caller.
func (c *Coordinator) Login(ctx context.Context, tenantID uuid.UUID, email string, password string, meta models.ClientMeta) (LoginResult, error) {
	tenant, err := activeTenant(ctx, c.storage, tenantID)
	if err != nil {
		return LoginResult{}, err
	}

	p, err := c.storage.Principal().GetByEmail(ctx, tenantID, strings.TrimSpace(email))
	switch {
	case errors.Is(err, apperrors.ErrPrincipalNotFound):
		c.hasher.Verify(password, c.dummyHash)
		return LoginResult{}, apperrors.ErrInvalidCredentials
	case err != nil:
		return LoginResult{}, err
	case !p.Active:
		c.hasher.Verify(password, c.dummyHash)
		return LoginResult{}, apperrors.ErrInvalidCredentials
	}

	if now := c.clock.Now(); lockout.IsLockedOut(p.LockedUntil, now) {
		return LoginResult{}, &apperrors.LockedOutError{Until: *p.LockedUntil, Remaining: lockout.Remaining(p.LockedUntil, now)}
	}

	// Slow hash check happens before the row is locked
	passwordOK := c.hasher.Verify(password, p.PasswordHash)

	var (
		result  LoginResult
		outcome error
		events  []models.Event
	)

	err = c.storage.InTx(ctx, func(s repository.Storage) error {
		now := c.clock.Now()

		locked, err := s.Principal().GetByIDForUpdate(ctx, tenantID, p.ID)
		if err != nil {
			return err
		}

		// A concurrent attempt may have locked the principal meanwhile
		if lockout.IsLockedOut(locked.LockedUntil, now) {
			outcome = &apperrors.LockedOutError{Until: *locked.LockedUntil, Remaining: lockout.Remaining(locked.LockedUntil, now)}
			return nil
		}

		if !passwordOK {
			updated, evs := loginFailed(locked, policyOf(tenant), now)
			events = evs
			if err := s.Principal().UpdateLoginState(ctx, updated); err != nil {
				return err
			}

			if lockout.IsLockedOut(updated.LockedUntil, now) {
				count, err := s.Refresh().RevokeAllForPrincipal(ctx, updated.ID, now)
				if err != nil {
					return err
				}
				events = append(events, sessionsRevoked(tenantID, updated.ID, ReasonLockout, count, now))
			}

			outcome = apperrors.ErrInvalidCredentials
			return nil // commit the counter
		}

		updated, evs := loginSucceeded(locked, now)
		if err := s.Principal().UpdateLoginState(ctx, updated); err != nil {
			return err
		}
		events = evs

		if tenant.RequireEmailVerification && !updated.EmailVerified {
			outcome = apperrors.ErrEmailUnverified
			return nil
		}

		pair, _, err := c.issuePair(ctx, s, tenant, updated, meta, now)
		if err != nil {
			return err
		}

		result = LoginResult{Principal: updated.Summary(), Tokens: pair}
		return nil
	})
	if err != nil {
		return LoginResult{}, fmt.Errorf("error while login. Err: %w", err)
	}

	c.sink.Emit(ctx, events...)

	if outcome != nil {
		c.logger.Debug("login rejected", "tenant_id", tenantID, "email", redact.Email(email), "reason", outcome.Error())
		return LoginResult{}, outcome
	}

	return result, nil
}

// IssueSession logs in a principal that is already authenticated elsewhere (by a third-party provider).
// Same lock and verification rules as for password login apply.
func (c *Coordinator) IssueSession(ctx context.Context, tenantID uuid.UUID, principalID uuid.UUID, meta models.ClientMeta) (LoginResult, error) {
	var (
		result  LoginResult
		outcome error
		events  []models.Event
	)

	err := c.storage.InTx(ctx, func(s repository.Storage) error {
		now := c.clock.Now()

		tenant, err := activeTenant(ctx, s, tenantID)
		if err != nil {
			outcome = err
			return nil
		}

		p, err := s.Principal().GetByIDForUpdate(ctx, tenantID, principalID)
		switch {
		case err != nil:
			return err
		case !p.Active:
			outcome = apperrors.ErrPrincipalInactive
			return nil
		case lockout.IsLockedOut(p.LockedUntil, now):
			outcome = &apperrors.LockedOutError{Until: *p.LockedUntil, Remaining: lockout.Remaining(p.LockedUntil, now)}
			return nil
		case tenant.RequireEmailVerification && !p.EmailVerified:
			outcome = apperrors.ErrEmailUnverified
			return nil
		}

		updated, evs := loginSucceeded(p, now)
		if err := s.Principal().UpdateLoginState(ctx, updated); err != nil {
			return err
		}

		pair, _, err := c.issuePair(ctx, s, tenant, updated, meta, now)
		if err != nil {
			return err
		}

		events = evs
		result = LoginResult{Principal: updated.Summary(), Tokens: pair}
		return nil
	})
	if err != nil {
		return LoginResult{}, fmt.Errorf("error while issuing session. Err: %w", err)
	}

	c.sink.Emit(ctx, events...)

	if outcome != nil {
		return LoginResult{}, outcome
	}
	return result, nil
}

// Register creates active principal with password
func (c *Coordinator) Register(ctx context.Context, tenantID uuid.UUID, email string, password string) (models.PrincipalSummary, error) {
	if _, err := activeTenant(ctx, c.storage, tenantID); err != nil {
		return models.PrincipalSummary{}, err
	}

	hash, err := c.hasher.Hash(password)
	if err != nil {
		return models.PrincipalSummary{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	now := c.clock.Now()
	p, err := c.storage.Principal().Create(ctx, models.Principal{
		TenantID:     tenantID,
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    now,
	})
	if err != nil {
		return models.PrincipalSummary{}, err
	}

	c.sink.Emit(ctx, models.PrincipalRegistered{TenantID: tenantID, PrincipalID: p.ID, Via: "password", At: now})

	return p.Summary(), nil
}

// Authenticate verifies access token against its tenant current secret
func (c *Coordinator) Authenticate(ctx context.Context, access string) (models.Identity, error) {
	tenantID, err := c.signer.PeekTenant(access)
	if err != nil {
		return models.Identity{}, err
	}

	tenant, err := activeTenant(ctx, c.storage, tenantID)
	switch {
	case errors.Is(err, apperrors.ErrTenantInactive):
		return models.Identity{}, fmt.Errorf("tenant of token is not active. Err: %w", apperrors.ErrAccessTokenInvalid)
	case err != nil:
		return models.Identity{}, err
	}

	claims, err := c.signer.Verify(access, tenant.SigningSecret)
	if err != nil {
		return models.Identity{}, err
	}

	principalID, err := claims.PrincipalID()
	if err != nil {
		return models.Identity{}, fmt.Errorf("bad subject claim. Err: %w", apperrors.ErrAccessTokenInvalid)
	}

	return models.Identity{TenantID: claims.TenantID, PrincipalID: principalID, TokenID: claims.ID}, nil
}

// ChangePassword replaces the password and signs the principal out everywhere
func (c *Coordinator) ChangePassword(ctx context.Context, tenantID uuid.UUID, principalID uuid.UUID, current string, next string) error {
	if _, err := activeTenant(ctx, c.storage, tenantID); err != nil {
		return err
	}

	p, err := c.storage.Principal().GetByID(ctx, tenantID, principalID)
	switch {
	case err != nil:
		return err
	case !p.Active:
		return apperrors.ErrPrincipalInactive
	case !c.hasher.Verify(current, p.PasswordHash):
		return apperrors.ErrInvalidCredentials
	}

	hash, err := c.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("can't use this as password, error=%w", err)
	}

	var events []models.Event
	err = c.storage.InTx(ctx, func(s repository.Storage) error {
		now := c.clock.Now()

		if err := s.Principal().UpdatePassword(ctx, tenantID, principalID, hash); err != nil {
			return err
		}

		count, err := s.Refresh().RevokeAllForPrincipal(ctx, principalID, now)
		if err != nil {
			return err
		}

		events = []models.Event{
			models.PasswordChanged{TenantID: tenantID, PrincipalID: principalID, At: now},
			sessionsRevoked(tenantID, principalID, ReasonPassword, count, now),
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error while changing password. Err: %w", err)
	}

	c.sink.Emit(ctx, events...)
	return nil
}
