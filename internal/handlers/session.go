package handlers

import (
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authcore/internal/handlers/middleware"
	"github.com/nkiryanov/authcore/internal/handlers/render"
	"github.com/nkiryanov/authcore/internal/handlers/userctx"
	"github.com/nkiryanov/authcore/internal/logger"
	"github.com/nkiryanov/authcore/internal/models"
	"github.com/nkiryanov/authcore/internal/service/session"
)

const refreshCookieName = "refreshtoken"

type TokenResponse struct {
	Principal        models.PrincipalSummary `json:"principal"`
	TokenType        string                  `json:"token_type"`
	AccessToken      string                  `json:"access_token"`
	AccessExpiresAt  time.Time               `json:"access_expires_at"`
	RefreshExpiresAt time.Time               `json:"refresh_expires_at"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// tenantFromPath writes 404 if tenant id in path is malformed
func tenantFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(middleware.TenantPathValue))
	if err != nil {
		render.ServiceError(w, "Tenant not found", http.StatusNotFound)
		return uuid.Nil, false
	}
	return id, true
}

// identityFromContext is only valid behind auth middleware
func identityFromContext(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	id, ok := userctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
	}
	return id, ok
}

func clientMeta(r *http.Request) models.ClientMeta {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return models.ClientMeta{IPAddress: ip, UserAgent: r.UserAgent()}
}

// Refresh cookie is only sent back to endpoints of the same tenant
func refreshCookie(r *http.Request, tenantID uuid.UUID, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     "/api/tenants/" + tenantID.String(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	}
}

func setTokens(w http.ResponseWriter, r *http.Request, tenantID uuid.UUID, res session.LoginResult) TokenResponse {
	refresh := res.Tokens.Refresh
	maxAge := int(time.Until(refresh.ExpiresAt).Seconds())
	http.SetCookie(w, refreshCookie(r, tenantID, refresh.Value, maxAge))
	w.Header().Set("Authorization", "Bearer "+res.Tokens.Access.Value)

	return TokenResponse{
		Principal:        res.Principal,
		TokenType:        "Bearer",
		AccessToken:      res.Tokens.Access.Value,
		AccessExpiresAt:  res.Tokens.Access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
	}
}

func clearRefresh(w http.ResponseWriter, r *http.Request, tenantID uuid.UUID) {
	http.SetCookie(w, refreshCookie(r, tenantID, "", -1))
}

func handleRegister(sessions sessionService, l logger.Logger) http.Handler {
	type RegisterRequest struct {
		Email    string `json:"email" validate:"required,email,max=254"`
		Password string `json:"password" validate:"required,min=8,max=128"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFromPath(w, r)
		if !ok {
			return
		}

		data, err := render.BindAndValidate[RegisterRequest](w, r)
		if err != nil {
			return
		}

		principal, err := sessions.Register(r.Context(), tenantID, data.Email, data.Password)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSONStatus(w, principal, http.StatusCreated)
	})
}

func handleLogin(sessions sessionService, l logger.Logger) http.Handler {
	type LoginRequest struct {
		Email    string `json:"email" validate:"required,notblank"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFromPath(w, r)
		if !ok {
			return
		}

		data, err := render.BindAndValidate[LoginRequest](w, r)
		if err != nil {
			return
		}

		res, err := sessions.Login(r.Context(), tenantID, data.Email, data.Password, clientMeta(r))
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, setTokens(w, r, tenantID, res))
	})
}

func handleRefresh(sessions sessionService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFromPath(w, r)
		if !ok {
			return
		}

		cookie, err := r.Cookie(refreshCookieName)
		if err != nil || cookie.Value == "" {
			render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
			return
		}

		res, err := sessions.Refresh(r.Context(), tenantID, cookie.Value, clientMeta(r))
		if err != nil {
			clearRefresh(w, r, tenantID)
			renderError(w, err, l)
			return
		}

		render.JSON(w, setTokens(w, r, tenantID, res))
	})
}

func handleLogout(sessions sessionService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFromPath(w, r)
		if !ok {
			return
		}

		if cookie, err := r.Cookie(refreshCookieName); err == nil && cookie.Value != "" {
			if err := sessions.Logout(r.Context(), cookie.Value); err != nil {
				renderError(w, err, l)
				return
			}
		}

		clearRefresh(w, r, tenantID)
		render.JSON(w, MessageResponse{Message: "Logged out"})
	})
}

func handleMe(sessions sessionService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := identityFromContext(w, r)
		if !ok {
			return
		}

		principal, err := sessions.GetPrincipal(r.Context(), id.TenantID, id.PrincipalID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, principal)
	})
}

func handleChangePassword(sessions sessionService, l logger.Logger) http.Handler {
	type ChangePasswordRequest struct {
		CurrentPassword string `json:"current_password" validate:"required"`
		NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := identityFromContext(w, r)
		if !ok {
			return
		}

		data, err := render.BindAndValidate[ChangePasswordRequest](w, r)
		if err != nil {
			return
		}

		err = sessions.ChangePassword(r.Context(), id.TenantID, id.PrincipalID, data.CurrentPassword, data.NewPassword)
		if err != nil {
			renderError(w, err, l)
			return
		}

		// Every session is revoked on password change, the current one too
		clearRefresh(w, r, id.TenantID)
		render.JSON(w, MessageResponse{Message: "Password changed"})
	})
}

func handleListSessions(sessions sessionService, l logger.Logger) http.Handler {
	type SessionResponse struct {
		ID        uuid.UUID `json:"id"`
		CreatedAt time.Time `json:"created_at"`
		ExpiresAt time.Time `json:"expires_at"`
		IPAddress string    `json:"ip_address,omitempty"`
		UserAgent string    `json:"user_agent,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := identityFromContext(w, r)
		if !ok {
			return
		}

		tokens, err := sessions.Sessions(r.Context(), id.TenantID, id.PrincipalID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		resp := make([]SessionResponse, 0, len(tokens))
		for _, t := range tokens {
			resp = append(resp, SessionResponse{
				ID:        t.ID,
				CreatedAt: t.CreatedAt,
				ExpiresAt: t.ExpiresAt,
				IPAddress: t.IPAddress,
				UserAgent: t.UserAgent,
			})
		}

		render.JSON(w, resp)
	})
}
