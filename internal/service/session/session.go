// Package session is the login, refresh and revocation state machine.
//
// Expected outcomes are returned as apperrors sentinels. Every state change that has to be
// atomic runs in one storage transaction; events are dispatched only after it commits.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authcore/internal/apperrors"
	"github.com/nkiryanov/authcore/internal/clock"
	"github.com/nkiryanov/authcore/internal/logger"
	"github.com/nkiryanov/authcore/internal/models"
	"github.com/nkiryanov/authcore/internal/repository"
	"github.com/nkiryanov/authcore/internal/service/credential"
	"github.com/nkiryanov/authcore/internal/service/tokensigner"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
)

// Interface to create or compare principal password hashes
type PasswordHasher interface {
	Hash(password string) (string, error)

	// Must be protected against timing attacks
	Verify(password string, hashedPassword string) bool
}

// Interface to issue and verify access tokens
type TokenSigner interface {
	Issue(principalID uuid.UUID, tenantID uuid.UUID, secret string, ttl time.Duration) (models.IssuedToken, error)
	Verify(access string, secret string) (tokensigner.Claims, error)
	PeekTenant(access string) (uuid.UUID, error)
}

type Config struct {
	// Bcrypt hasher if not set
	Hasher PasswordHasher

	// Real clock if not set
	Clock clock.Clock

	// Events are logged if not set
	Sink EventSink

	// Tenant secret generator, tokensigner.NewSecret if not set
	NewSecret func() (string, error)

	// No-op logger if not set
	Logger logger.Logger
}

// LoginResult is returned on every successful login or rotation
type LoginResult struct {
	Principal models.PrincipalSummary
	Tokens    models.TokenPair
}

type Coordinator struct {
	storage   repository.Storage
	signer    TokenSigner
	hasher    PasswordHasher
	clock     clock.Clock
	sink      EventSink
	newSecret func() (string, error)
	logger    logger.Logger

	// Verified against on unknown principals so response time does not depend on email existence
	dummyHash string
}

func New(cfg Config, storage repository.Storage, signer TokenSigner) (*Coordinator, error) {
	if storage == nil || signer == nil {
		return nil, errors.New("storage and signer must not be nil")
	}

	if cfg.Hasher == nil {
		cfg.Hasher = credential.DefaultHasher
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}
	if cfg.Sink == nil {
		cfg.Sink = NewLogSink(cfg.Logger)
	}
	if cfg.NewSecret == nil {
		cfg.NewSecret = tokensigner.NewSecret
	}

	dummyHash, err := cfg.Hasher.Hash("not-a-real-password")
	if err != nil {
		return nil, fmt.Errorf("error while preparing dummy hash. Err: %w", err)
	}

	return &Coordinator{
		storage:   storage,
		signer:    signer,
		hasher:    cfg.Hasher,
		clock:     cfg.Clock,
		sink:      cfg.Sink,
		newSecret: cfg.NewSecret,
		logger:    cfg.Logger,
		dummyHash: dummyHash,
	}, nil
}

// activeTenant hides whether tenant is missing or just inactive
func activeTenant(ctx context.Context, s repository.Storage, tenantID uuid.UUID) (models.Tenant, error) {
	tenant, err := s.Tenant().GetByID(ctx, tenantID)
	switch {
	case errors.Is(err, apperrors.ErrTenantNotFound):
		return tenant, apperrors.ErrTenantInactive
	case err != nil:
		return tenant, err
	case !tenant.Active:
		return tenant, apperrors.ErrTenantInactive
	default:
		return tenant, nil
	}
}

// issuePair mints access token and persists new refresh token, returns the refresh token hash too
func (c *Coordinator) issuePair(ctx context.Context, s repository.Storage, tenant models.Tenant, p models.Principal, meta models.ClientMeta, now time.Time) (models.TokenPair, string, error) {
	accessTTL := tenant.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTokenTTL
	}
	refreshTTL := tenant.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTokenTTL
	}

	access, err := c.signer.Issue(p.ID, tenant.ID, tenant.SigningSecret, accessTTL)
	if err != nil {
		return models.TokenPair{}, "", err
	}

	value, hash, err := newRefreshToken()
	if err != nil {
		return models.TokenPair{}, "", err
	}

	token, err := s.Refresh().Create(ctx, models.RefreshToken{
		PrincipalID: p.ID,
		TenantID:    tenant.ID,
		TokenHash:   hash,
		CreatedAt:   now,
		ExpiresAt:   now.Add(refreshTTL),
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
	})
	if err != nil {
		return models.TokenPair{}, "", fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return models.TokenPair{
		Access:  access,
		Refresh: models.IssuedToken{Value: value, ExpiresAt: token.ExpiresAt},
	}, hash, nil
}

// GetPrincipal returns the principal summary, inactive principals are not returned
func (c *Coordinator) GetPrincipal(ctx context.Context, tenantID uuid.UUID, principalID uuid.UUID) (models.PrincipalSummary, error) {
	p, err := c.storage.Principal().GetByID(ctx, tenantID, principalID)
	switch {
	case err != nil:
		return models.PrincipalSummary{}, err
	case !p.Active:
		return models.PrincipalSummary{}, apperrors.ErrPrincipalInactive
	default:
		return p.Summary(), nil
	}
}
