package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authcore/internal/handlers/middleware"
	"github.com/nkiryanov/authcore/internal/logger"
	"github.com/nkiryanov/authcore/internal/models"
	"github.com/nkiryanov/authcore/internal/service/oauth"
	"github.com/nkiryanov/authcore/internal/service/session"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	sessions sessionService,
	oauthService oauthService,
	adminToken string,
	logger logger.Logger,
) http.Handler {
	withAuth := middleware.AuthMiddleware(sessions)
	withAdmin := middleware.AdminMiddleware(adminToken)

	api := http.NewServeMux()

	api.Handle("POST /api/tenants/{tenantID}/register", handleRegister(sessions, logger))
	api.Handle("POST /api/tenants/{tenantID}/login", handleLogin(sessions, logger))
	api.Handle("POST /api/tenants/{tenantID}/refresh", handleRefresh(sessions, logger))
	api.Handle("POST /api/tenants/{tenantID}/logout", handleLogout(sessions, logger))

	api.Handle("GET /api/tenants/{tenantID}/me", withAuth(handleMe(sessions, logger)))
	api.Handle("POST /api/tenants/{tenantID}/password", withAuth(handleChangePassword(sessions, logger)))
	api.Handle("GET /api/tenants/{tenantID}/sessions", withAuth(handleListSessions(sessions, logger)))

	api.Handle("GET /api/tenants/{tenantID}/oauth/{provider}/authorize", handleOAuthAuthorize(oauthService, logger))
	api.Handle("GET /api/tenants/{tenantID}/oauth/{provider}/callback", handleOAuthCallback(oauthService, logger))

	api.Handle("POST /api/tenants/{tenantID}/admin/principals/{principalID}/revoke", withAdmin(handleRevokePrincipal(sessions, logger)))
	api.Handle("POST /api/tenants/{tenantID}/admin/principals/{principalID}/lock", withAdmin(handleLockPrincipal(sessions, logger)))
	api.Handle("POST /api/tenants/{tenantID}/admin/revoke", withAdmin(handleRevokeTenant(sessions, logger)))
	api.Handle("POST /api/tenants/{tenantID}/admin/rotate-secret", withAdmin(handleRotateSecret(sessions, logger)))

	handler := chain(api,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type sessionService interface {
	// Has to return apperrors.ErrPrincipalAlreadyExists if email is taken in the tenant
	Register(ctx context.Context, tenantID uuid.UUID, email string, password string) (models.PrincipalSummary, error)

	// Unknown email and wrong password both have to be apperrors.ErrInvalidCredentials
	// Locked principal has to be *apperrors.LockedOutError
	Login(ctx context.Context, tenantID uuid.UUID, email string, password string, meta models.ClientMeta) (session.LoginResult, error)

	// Rotate refresh token. Reuse of rotated token revokes every principal session.
	// Token of another tenant has to be apperrors.ErrRefreshTokenInvalid without rotation.
	Refresh(ctx context.Context, tenantID uuid.UUID, refresh string, meta models.ClientMeta) (session.LoginResult, error)

	// Revoke refresh token. Unknown token is not an error.
	Logout(ctx context.Context, refresh string) error

	Authenticate(ctx context.Context, access string) (models.Identity, error)
	GetPrincipal(ctx context.Context, tenantID uuid.UUID, principalID uuid.UUID) (models.PrincipalSummary, error)
	ChangePassword(ctx context.Context, tenantID uuid.UUID, principalID uuid.UUID, current string, next string) error
	Sessions(ctx context.Context, tenantID uuid.UUID, principalID uuid.UUID) ([]models.RefreshToken, error)

	RevokePrincipal(ctx context.Context, tenantID uuid.UUID, principalID uuid.UUID) (int64, error)
	RevokeTenant(ctx context.Context, tenantID uuid.UUID) (int64, error)
	LockPrincipal(ctx context.Context, tenantID uuid.UUID, principalID uuid.UUID, d time.Duration) (time.Time, error)
	RotateTenantSecret(ctx context.Context, tenantID uuid.UUID) error
}

type oauthService interface {
	// Returns provider URL to send the user to
	Authorize(ctx context.Context, tenantID uuid.UUID, provider string, redirectURI string) (string, error)

	Callback(ctx context.Context, tenantID uuid.UUID, provider string, code string, state string, meta models.ClientMeta) (oauth.CallbackResult, error)
}
