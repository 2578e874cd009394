package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/nkiryanov/authcore/internal/apperrors"
	"github.com/nkiryanov/authcore/internal/clock"
	"github.com/nkiryanov/authcore/internal/logger"
	"github.com/nkiryanov/authcore/internal/models"
	"github.com/nkiryanov/authcore/internal/repository"
	"github.com/nkiryanov/authcore/internal/service/session"
)

const defaultStateTTL = 10 * time.Minute

// SessionIssuer signs in already authenticated principal
type SessionIssuer interface {
	IssueSession(ctx context.Context, tenantID uuid.UUID, principalID uuid.UUID, meta models.ClientMeta) (session.LoginResult, error)
}

type Config struct {
	// How long authorize state lives, 10 minutes if not set
	StateTTL time.Duration

	// Real clock if not set
	Clock clock.Clock

	// No-op logger if not set
	Logger logger.Logger
}

type CallbackResult struct {
	session.LoginResult

	// Principal was created by this callback
	IsNew bool

	// Where the caller asked to return after authorization
	RedirectURI string
}

type Service struct {
	storage  repository.Storage
	states   repository.OAuthStateStore
	client   ProviderClient
	resolver *Resolver
	sessions SessionIssuer

	stateTTL time.Duration
	clock    clock.Clock
	logger   logger.Logger
}

func NewService(cfg Config, storage repository.Storage, states repository.OAuthStateStore, client ProviderClient, resolver *Resolver, sessions SessionIssuer) *Service {
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = defaultStateTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}

	return &Service{
		storage:  storage,
		states:   states,
		client:   client,
		resolver: resolver,
		sessions: sessions,
		stateTTL: cfg.StateTTL,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
}

// provider returns enabled provider of active tenant
func (s *Service) provider(ctx context.Context, tenantID uuid.UUID, name string) (models.OAuthProvider, error) {
	tenant, err := s.storage.Tenant().GetByID(ctx, tenantID)
	switch {
	case errors.Is(err, apperrors.ErrTenantNotFound):
		return models.OAuthProvider{}, apperrors.ErrTenantInactive
	case err != nil:
		return models.OAuthProvider{}, err
	case !tenant.Active:
		return models.OAuthProvider{}, apperrors.ErrTenantInactive
	}

	p, ok := tenant.OAuth.Provider(name)
	if !ok {
		return models.OAuthProvider{}, apperrors.ErrOAuthProviderNotEnabled
	}
	if p.Name == "" {
		p.Name = name
	}
	return p, nil
}

// Authorize saves new state and returns provider URL to send the user to
func (s *Service) Authorize(ctx context.Context, tenantID uuid.UUID, providerName string, redirectURI string) (string, error) {
	p, err := s.provider(ctx, tenantID, providerName)
	if err != nil {
		return "", err
	}

	value, err := NewState(tenantID)
	if err != nil {
		return "", err
	}

	state := models.OAuthState{
		Value:        value,
		TenantID:     tenantID,
		Provider:     providerName,
		RedirectURI:  redirectURI,
		CodeVerifier: oauth2.GenerateVerifier(),
		CreatedAt:    s.clock.Now(),
	}
	if err := s.states.Save(ctx, state, s.stateTTL); err != nil {
		return "", fmt.Errorf("error while saving oauth state. Err: %w", err)
	}

	return s.client.AuthURL(p, state.Value, state.CodeVerifier), nil
}

// Callback finishes the flow: checks state, exchanges code, resolves principal and issues session.
// State of other tenant is rejected before anything is sent to the provider.
func (s *Service) Callback(ctx context.Context, tenantID uuid.UUID, providerName string, code string, stateValue string, meta models.ClientMeta) (CallbackResult, error) {
	stateTenant, err := StateTenant(stateValue)
	if err != nil {
		return CallbackResult{}, err
	}
	if stateTenant != tenantID {
		return CallbackResult{}, fmt.Errorf("state issued for other tenant. Err: %w", apperrors.ErrOAuthStateMismatch)
	}

	state, err := s.states.Consume(ctx, stateValue)
	switch {
	case errors.Is(err, apperrors.ErrOAuthStateNotFound):
		return CallbackResult{}, fmt.Errorf("state unknown or expired. Err: %w", apperrors.ErrOAuthStateMismatch)
	case err != nil:
		return CallbackResult{}, err
	case state.TenantID != tenantID || state.Provider != providerName:
		return CallbackResult{}, fmt.Errorf("state issued for other provider. Err: %w", apperrors.ErrOAuthStateMismatch)
	}

	p, err := s.provider(ctx, tenantID, providerName)
	if err != nil {
		return CallbackResult{}, err
	}

	profile, err := s.client.FetchProfile(ctx, p, code, state.CodeVerifier)
	if err != nil {
		return CallbackResult{}, err
	}
	profile.Provider = providerName

	principal, isNew, err := s.resolver.Resolve(ctx, tenantID, profile)
	if err != nil {
		return CallbackResult{}, err
	}

	res, err := s.sessions.IssueSession(ctx, tenantID, principal.ID, meta)
	if err != nil {
		return CallbackResult{}, err
	}

	s.logger.Debug("oauth login", "tenant_id", tenantID, "provider", providerName, "is_new", isNew)

	return CallbackResult{LoginResult: res, IsNew: isNew, RedirectURI: state.RedirectURI}, nil
}
