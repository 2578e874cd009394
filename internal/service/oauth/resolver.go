// Package oauth signs principals in through third-party providers.
//
// Resolver maps a verified provider profile to a local principal, linking or creating one.
// Service runs the authorization code flow around it.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authcore/internal/apperrors"
	"github.com/nkiryanov/authcore/internal/clock"
	"github.com/nkiryanov/authcore/internal/models"
	"github.com/nkiryanov/authcore/internal/repository"
	"github.com/nkiryanov/authcore/internal/service/session"
)

// Interface to generate hashes for principals without password
type UnusableHasher interface {
	UnusableHash() (string, error)
}

type Resolver struct {
	storage repository.Storage
	hasher  UnusableHasher
	clock   clock.Clock
	sink    session.EventSink
}

func NewResolver(storage repository.Storage, hasher UnusableHasher, c clock.Clock, sink session.EventSink) *Resolver {
	return &Resolver{storage: storage, hasher: hasher, clock: c, sink: sink}
}

// Resolve returns principal for the provider identity and whether it was just created.
// Resolution is retried once when a concurrent callback created the same link or principal.
func (r *Resolver) Resolve(ctx context.Context, tenantID uuid.UUID, profile models.OAuthProfile) (models.Principal, bool, error) {
	if profile.Provider == "" || profile.ProviderUserID == "" {
		return models.Principal{}, false, apperrors.ErrOAuthProfileInvalid
	}
	profile.Email = strings.TrimSpace(profile.Email)

	p, isNew, err := r.resolveTx(ctx, tenantID, profile)
	if errors.Is(err, apperrors.ErrOAuthLinkAlreadyExists) || errors.Is(err, apperrors.ErrPrincipalAlreadyExists) {
		p, isNew, err = r.resolveTx(ctx, tenantID, profile)
	}
	return p, isNew, err
}

func (r *Resolver) resolveTx(ctx context.Context, tenantID uuid.UUID, profile models.OAuthProfile) (models.Principal, bool, error) {
	var (
		principal models.Principal
		isNew     bool
		events    []models.Event
	)

	err := r.storage.InTx(ctx, func(s repository.Storage) error {
		now := r.clock.Now()

		// 1. Known provider identity
		link, err := s.OAuthLink().GetByProviderUser(ctx, tenantID, profile.Provider, profile.ProviderUserID)
		switch {
		case err == nil:
			p, err := s.Principal().GetByIDForUpdate(ctx, tenantID, link.PrincipalID)
			if err != nil {
				return err
			}

			p, err = r.backfill(ctx, s, p, profile)
			if err != nil {
				return err
			}

			p.LastLoginAt = &now
			if err := s.Principal().UpdateLoginState(ctx, p); err != nil {
				return err
			}

			principal = p
			return nil
		case !errors.Is(err, apperrors.ErrOAuthLinkNotFound):
			return err
		}

		// 2. Local principal with the same email: link accounts
		if profile.Email != "" {
			p, err := s.Principal().GetByEmail(ctx, tenantID, profile.Email)
			switch {
			case err == nil:
				// One link per provider: another account of the same provider can't take over the principal
				existing, err := s.OAuthLink().GetByPrincipal(ctx, p.ID, profile.Provider)
				switch {
				case err == nil && existing.ProviderUserID != profile.ProviderUserID:
					return fmt.Errorf("principal has %s link. Err: %w", profile.Provider, apperrors.ErrOAuthIdentityConflict)
				case err == nil:
					// Linked by a concurrent callback after step 1
					return apperrors.ErrOAuthLinkAlreadyExists
				case !errors.Is(err, apperrors.ErrOAuthLinkNotFound):
					return err
				}

				if err := r.link(ctx, s, p, profile); err != nil {
					return err
				}
				p, err = r.backfill(ctx, s, p, profile)
				if err != nil {
					return err
				}

				principal = p
				events = append(events, linked(p, profile, now))
				return nil
			case !errors.Is(err, apperrors.ErrPrincipalNotFound):
				return err
			}
		}

		// 3. Brand new principal
		if profile.Email == "" {
			return fmt.Errorf("provider shared no email. Err: %w", apperrors.ErrOAuthProfileInvalid)
		}

		hash, err := r.hasher.UnusableHash()
		if err != nil {
			return err
		}

		p, err := s.Principal().Create(ctx, models.Principal{
			TenantID:      tenantID,
			Email:         profile.Email,
			PasswordHash:  hash,
			FirstName:     profile.FirstName,
			LastName:      profile.LastName,
			AvatarURL:     profile.AvatarURL,
			EmailVerified: profile.EmailVerified,
			Active:        true,
			CreatedAt:     now,
		})
		if err != nil {
			return err
		}

		if err := r.link(ctx, s, p, profile); err != nil {
			return err
		}

		principal, isNew = p, true
		events = append(events,
			models.PrincipalRegistered{TenantID: tenantID, PrincipalID: p.ID, Via: "oauth:" + profile.Provider, At: now},
			linked(p, profile, now),
		)
		return nil
	})
	if err != nil {
		return models.Principal{}, false, fmt.Errorf("error while resolving oauth identity. Err: %w", err)
	}

	r.sink.Emit(ctx, events...)
	return principal, isNew, nil
}

func (r *Resolver) link(ctx context.Context, s repository.Storage, p models.Principal, profile models.OAuthProfile) error {
	_, err := s.OAuthLink().Create(ctx, models.OAuthIdentityLink{
		TenantID:       p.TenantID,
		PrincipalID:    p.ID,
		Provider:       profile.Provider,
		ProviderUserID: profile.ProviderUserID,
		Email:          profile.Email,
		DisplayName:    profile.DisplayName,
		AvatarURL:      profile.AvatarURL,
		CreatedAt:      r.clock.Now(),
	})
	return err
}

// backfill fills empty profile fields and persists them if anything changed.
// Fields already set are never overwritten.
func (r *Resolver) backfill(ctx context.Context, s repository.Storage, p models.Principal, profile models.OAuthProfile) (models.Principal, error) {
	updated, changed := backfilled(p, profile)
	if !changed {
		return p, nil
	}

	if err := s.Principal().Update(ctx, updated); err != nil {
		return p, err
	}
	return updated, nil
}

func backfilled(p models.Principal, profile models.OAuthProfile) (models.Principal, bool) {
	changed := false
	fill := func(field *string, value string) {
		if *field == "" && value != "" {
			*field = value
			changed = true
		}
	}

	fill(&p.FirstName, profile.FirstName)
	fill(&p.LastName, profile.LastName)
	fill(&p.AvatarURL, profile.AvatarURL)

	if profile.EmailVerified && !p.EmailVerified {
		p.EmailVerified = true
		changed = true
	}

	return p, changed
}

func linked(p models.Principal, profile models.OAuthProfile, now time.Time) models.Event {
	return models.OAuthIdentityLinked{
		TenantID:       p.TenantID,
		PrincipalID:    p.ID,
		Provider:       profile.Provider,
		ProviderUserID: profile.ProviderUserID,
		At:             now,
	}
}
