package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authcore/internal/models"
	"github.com/nkiryanov/authcore/internal/repository"
)

// RevokePrincipal signs the principal out everywhere (forced logout)
func (c *Coordinator) RevokePrincipal(ctx context.Context, tenantID uuid.UUID, principalID uuid.UUID) (int64, error) {
	if _, err := c.storage.Principal().GetByID(ctx, tenantID, principalID); err != nil {
		return 0, err
	}

	now := c.clock.Now()
	count, err := c.storage.Refresh().RevokeAllForPrincipal(ctx, principalID, now)
	if err != nil {
		return 0, fmt.Errorf("error while revoking principal sessions. Err: %w", err)
	}

	c.sink.Emit(ctx, sessionsRevoked(tenantID, principalID, ReasonAdmin, count, now))
	return count, nil
}

// RevokeTenant signs out every principal of the tenant
func (c *Coordinator) RevokeTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	if _, err := c.storage.Tenant().GetByID(ctx, tenantID); err != nil {
		return 0, err
	}

	now := c.clock.Now()
	count, err := c.storage.Refresh().RevokeAllForTenant(ctx, tenantID, now)
	if err != nil {
		return 0, fmt.Errorf("error while revoking tenant sessions. Err: %w", err)
	}

	c.sink.Emit(ctx, sessionsRevoked(tenantID, uuid.Nil, ReasonAdmin, count, now))
	return count, nil
}

// RotateTenantSecret replaces signing secret and revokes every refresh token of the tenant.
// Access tokens signed with the old secret stop verifying right away.
func (c *Coordinator) RotateTenantSecret(ctx context.Context, tenantID uuid.UUID) error {
	secret, err := c.newSecret()
	if err != nil {
		return err
	}

	var events []models.Event
	err = c.storage.InTx(ctx, func(s repository.Storage) error {
		now := c.clock.Now()

		if err := s.Tenant().UpdateSecret(ctx, tenantID, secret); err != nil {
			return err
		}

		count, err := s.Refresh().RevokeAllForTenant(ctx, tenantID, now)
		if err != nil {
			return err
		}

		events = []models.Event{
			models.TenantSecretRotated{TenantID: tenantID, At: now},
			sessionsRevoked(tenantID, uuid.Nil, ReasonSecretRotated, count, now),
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error while rotating tenant secret. Err: %w", err)
	}

	c.sink.Emit(ctx, events...)
	return nil
}

// LockPrincipal is an administrative lock: principal can't log in till the moment and is signed out
func (c *Coordinator) LockPrincipal(ctx context.Context, tenantID uuid.UUID, principalID uuid.UUID, d time.Duration) (time.Time, error) {
	if d <= 0 {
		return time.Time{}, errors.New("lock duration must be positive")
	}

	var (
		until  time.Time
		events []models.Event
	)

	err := c.storage.InTx(ctx, func(s repository.Storage) error {
		now := c.clock.Now()
		until = now.Add(d)

		p, err := s.Principal().GetByIDForUpdate(ctx, tenantID, principalID)
		if err != nil {
			return err
		}

		updated, evs := adminLocked(p, until)
		if err := s.Principal().UpdateLoginState(ctx, updated); err != nil {
			return err
		}

		count, err := s.Refresh().RevokeAllForPrincipal(ctx, principalID, now)
		if err != nil {
			return err
		}

		events = append(evs, sessionsRevoked(tenantID, principalID, ReasonAdminLock, count, now))
		return nil
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("error while locking principal. Err: %w", err)
	}

	c.sink.Emit(ctx, events...)
	return until, nil
}

// Sessions lists active refresh tokens of the principal
func (c *Coordinator) Sessions(ctx context.Context, tenantID uuid.UUID, principalID uuid.UUID) ([]models.RefreshToken, error) {
	if _, err := c.storage.Principal().GetByID(ctx, tenantID, principalID); err != nil {
		return nil, err
	}

	return c.storage.Refresh().ListActiveByPrincipal(ctx, principalID, c.clock.Now())
}
