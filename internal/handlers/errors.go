package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/nkiryanov/authcore/internal/apperrors"
	"github.com/nkiryanov/authcore/internal/handlers/render"
	"github.com/nkiryanov/authcore/internal/logger"
)

// renderError maps service errors to responses. Unexpected errors are logged and hidden.
func renderError(w http.ResponseWriter, err error, l logger.Logger) {
	var locked *apperrors.LockedOutError

	switch {
	case errors.As(err, &locked):
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(locked.Remaining.Seconds()))))
		render.ServiceError(w, "Account is locked", http.StatusLocked)
	case errors.Is(err, apperrors.ErrLockedOut):
		render.ServiceError(w, "Account is locked", http.StatusLocked)

	case errors.Is(err, apperrors.ErrInvalidCredentials):
		render.ServiceError(w, "Invalid credentials", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrEmailUnverified):
		render.ServiceError(w, "Email is not verified", http.StatusForbidden)
	case errors.Is(err, apperrors.ErrPrincipalInactive):
		render.ServiceError(w, "Account is disabled", http.StatusForbidden)
	case errors.Is(err, apperrors.ErrPrincipalAlreadyExists):
		render.ServiceError(w, "Principal already exists", http.StatusConflict)
	case errors.Is(err, apperrors.ErrPrincipalNotFound):
		render.ServiceError(w, "Principal not found", http.StatusNotFound)

	case errors.Is(err, apperrors.ErrTenantNotFound):
		render.ServiceError(w, "Tenant not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrTenantInactive):
		render.ServiceError(w, "Tenant is not active", http.StatusForbidden)

	case errors.Is(err, apperrors.ErrRefreshTokenExpired):
		render.ServiceError(w, "Refresh token expired", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrRefreshTokenRevoked), errors.Is(err, apperrors.ErrRefreshTokenInvalid):
		render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrAccessTokenInvalid), errors.Is(err, apperrors.ErrAccessTokenExpired):
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)

	case errors.Is(err, apperrors.ErrOAuthProviderNotEnabled):
		render.ServiceError(w, "OAuth provider is not enabled", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrOAuthStateMismatch):
		render.ServiceError(w, "OAuth state is invalid or expired", http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrOAuthProfileInvalid):
		render.ServiceError(w, "OAuth provider returned unusable profile", http.StatusUnprocessableEntity)
	case errors.Is(err, apperrors.ErrOAuthIdentityConflict), errors.Is(err, apperrors.ErrOAuthLinkAlreadyExists):
		render.ServiceError(w, "Account is linked to another identity of this provider", http.StatusConflict)
	case errors.Is(err, apperrors.ErrOAuthExchangeFailed):
		render.ServiceError(w, "OAuth provider rejected authorization", http.StatusBadGateway)

	default:
		l.Error("request failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}
