package handlers

import (
	"net/http"

	"github.com/nkiryanov/authcore/internal/handlers/render"
	"github.com/nkiryanov/authcore/internal/logger"
)

func handleOAuthAuthorize(s oauthService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFromPath(w, r)
		if !ok {
			return
		}

		url, err := s.Authorize(r.Context(), tenantID, r.PathValue("provider"), r.URL.Query().Get("redirect_uri"))
		if err != nil {
			renderError(w, err, l)
			return
		}

		http.Redirect(w, r, url, http.StatusFound)
	})
}

func handleOAuthCallback(s oauthService, l logger.Logger) http.Handler {
	type CallbackResponse struct {
		TokenResponse
		IsNew       bool   `json:"is_new"`
		RedirectURI string `json:"redirect_uri,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFromPath(w, r)
		if !ok {
			return
		}

		query := r.URL.Query()
		if query.Get("error") != "" {
			l.Info("oauth authorization denied", "tenant_id", tenantID, "provider", r.PathValue("provider"), "reason", query.Get("error"))
			render.ServiceError(w, "Authorization denied by provider", http.StatusBadRequest)
			return
		}
		code, state := query.Get("code"), query.Get("state")
		if code == "" || state == "" {
			render.ServiceError(w, "Code and state are required", http.StatusBadRequest)
			return
		}

		res, err := s.Callback(r.Context(), tenantID, r.PathValue("provider"), code, state, clientMeta(r))
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, CallbackResponse{
			TokenResponse: setTokens(w, r, tenantID, res.LoginResult),
			IsNew:         res.IsNew,
			RedirectURI:   res.RedirectURI,
		})
	})
}
