package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authcore/internal/apperrors"
	"github.com/nkiryanov/authcore/internal/logger"
	"github.com/nkiryanov/authcore/internal/models"
	"github.com/nkiryanov/authcore/internal/service/oauth"
	"github.com/nkiryanov/authcore/internal/service/session"
)

// fakeOAuth records what the handlers pass and returns canned results
type fakeOAuth struct {
	tenantID    uuid.UUID
	provider    string
	redirectURI string
	code        string
	state       string

	err error
}

func (f *fakeOAuth) Authorize(_ context.Context, tenantID uuid.UUID, provider string, redirectURI string) (string, error) {
	f.tenantID, f.provider, f.redirectURI = tenantID, provider, redirectURI
	if f.err != nil {
		return "", f.err
	}
	return "https://provider.example.com/authorize?state=xyz", nil
}

func (f *fakeOAuth) Callback(_ context.Context, tenantID uuid.UUID, provider string, code string, state string, _ models.ClientMeta) (oauth.CallbackResult, error) {
	f.tenantID, f.provider, f.code, f.state = tenantID, provider, code, state
	if f.err != nil {
		return oauth.CallbackResult{}, f.err
	}

	return oauth.CallbackResult{
		LoginResult: session.LoginResult{
			Principal: models.PrincipalSummary{ID: uuid.New(), TenantID: tenantID, Email: "alice@example.com"},
			Tokens: models.TokenPair{
				Access:  models.IssuedToken{Value: "access", ExpiresAt: time.Now().Add(time.Minute)},
				Refresh: models.IssuedToken{Value: "refresh", ExpiresAt: time.Now().Add(time.Hour)},
			},
		},
		IsNew:       true,
		RedirectURI: "https://app.example.com/done",
	}, nil
}

func Test_OAuthHandlers(t *testing.T) {
	tenantID := uuid.New()

	serve := func(t *testing.T, f *fakeOAuth) string {
		srv := httptest.NewServer(NewRouter(nil, f, "", logger.NewNoOpLogger()))
		t.Cleanup(srv.Close)
		return srv.URL + "/api/tenants/" + tenantID.String() + "/oauth/google"
	}

	noRedirect := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	t.Run("authorize redirects to provider", func(t *testing.T) {
		f := &fakeOAuth{}
		base := serve(t, f)

		resp, err := noRedirect.Get(base + "/authorize?redirect_uri=https://app.example.com/done")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		require.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "https://provider.example.com/authorize?state=xyz", resp.Header.Get("Location"))
		assert.Equal(t, tenantID, f.tenantID)
		assert.Equal(t, "google", f.provider)
		assert.Equal(t, "https://app.example.com/done", f.redirectURI)
	})

	t.Run("authorize provider not enabled", func(t *testing.T) {
		base := serve(t, &fakeOAuth{err: apperrors.ErrOAuthProviderNotEnabled})

		resp := do(t, http.MethodGet, base+"/authorize", "")

		require.Equal(t, http.StatusNotFound, resp.code)
		require.JSONEq(t, `{"error": "service_error", "message": "OAuth provider is not enabled"}`, resp.body)
	})

	t.Run("callback ok", func(t *testing.T) {
		f := &fakeOAuth{}
		base := serve(t, f)

		resp := do(t, http.MethodGet, base+"/callback?code=the-code&state=the-state", "")

		require.Equalf(t, http.StatusOK, resp.code, "not expected code. Body: %s", resp.body)
		assert.Equal(t, "the-code", f.code)
		assert.Equal(t, "the-state", f.state)

		var data struct {
			AccessToken string `json:"access_token"`
			IsNew       bool   `json:"is_new"`
			RedirectURI string `json:"redirect_uri"`
		}
		require.NoError(t, json.Unmarshal([]byte(resp.body), &data))
		assert.Equal(t, "access", data.AccessToken)
		assert.True(t, data.IsNew)
		assert.Equal(t, "https://app.example.com/done", data.RedirectURI)

		require.Len(t, resp.cookies, 1)
		assert.Equal(t, "refresh", resp.cookies[0].Value)
	})

	t.Run("callback errors", func(t *testing.T) {
		tests := []struct {
			name     string
			query    string
			err      error
			expected int
		}{
			{"provider denied", "?error=access_denied", nil, http.StatusBadRequest},
			{"no code", "?state=s", nil, http.StatusBadRequest},
			{"state mismatch", "?code=c&state=s", apperrors.ErrOAuthStateMismatch, http.StatusBadRequest},
			{"exchange failed", "?code=c&state=s", apperrors.ErrOAuthExchangeFailed, http.StatusBadGateway},
			{"profile invalid", "?code=c&state=s", apperrors.ErrOAuthProfileInvalid, http.StatusUnprocessableEntity},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				base := serve(t, &fakeOAuth{err: tc.err})

				resp := do(t, http.MethodGet, base+"/callback"+tc.query, "")

				require.Equalf(t, tc.expected, resp.code, "not expected code. Body: %s", resp.body)
				require.Empty(t, resp.cookies)
			})
		}
	})

	t.Run("malformed tenant", func(t *testing.T) {
		srv := httptest.NewServer(NewRouter(nil, &fakeOAuth{}, "", logger.NewNoOpLogger()))
		defer srv.Close()

		resp := do(t, http.MethodGet, srv.URL+"/api/tenants/not-uuid/oauth/google/authorize", "")

		require.Equal(t, http.StatusNotFound, resp.code)
	})
}
