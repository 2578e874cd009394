package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/nkiryanov/authcore/internal/apperrors"
	"github.com/nkiryanov/authcore/internal/models"
)

// Userinfo responses larger than that are not profiles
const maxUserInfoSize = 1 << 20

// ProviderClient talks to third-party authorization servers
type ProviderClient interface {
	AuthURL(p models.OAuthProvider, state string, verifier string) string

	// Exchange code and fetch the profile of authenticated user
	FetchProfile(ctx context.Context, p models.OAuthProvider, code string, verifier string) (models.OAuthProfile, error)
}

// OAuth2Client is authorization code + PKCE client
type OAuth2Client struct {
	// http.DefaultClient if nil
	HTTPClient *http.Client
}

func config(p models.OAuthProvider) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURI,
		Scopes:       p.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthURL,
			TokenURL: p.TokenURL,
		},
	}
}

func (c *OAuth2Client) AuthURL(p models.OAuthProvider, state string, verifier string) string {
	return config(p).AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

func (c *OAuth2Client) FetchProfile(ctx context.Context, p models.OAuthProvider, code string, verifier string) (models.OAuthProfile, error) {
	if c.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient)
	}

	cfg := config(p)
	token, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return models.OAuthProfile{}, fmt.Errorf("provider rejected code: %v. Err: %w", retrieveErr.ErrorCode, apperrors.ErrOAuthExchangeFailed)
		}
		return models.OAuthProfile{}, fmt.Errorf("error while exchanging code. Err: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return models.OAuthProfile{}, fmt.Errorf("error while building userinfo request. Err: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cfg.Client(ctx, token).Do(req)
	if err != nil {
		return models.OAuthProfile{}, fmt.Errorf("error while fetching userinfo. Err: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return models.OAuthProfile{}, fmt.Errorf("userinfo responded with status %d. Err: %w", resp.StatusCode, apperrors.ErrOAuthExchangeFailed)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoSize))
	if err != nil {
		return models.OAuthProfile{}, fmt.Errorf("error while reading userinfo. Err: %w", err)
	}

	return parseUserInfo(p.Name, body)
}
