package oauth

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nkiryanov/authcore/internal/apperrors"
	"github.com/nkiryanov/authcore/internal/models"
)

// userInfo covers OIDC userinfo and GitHub-like payloads
type userInfo struct {
	Sub           string          `json:"sub"`
	ID            json.RawMessage `json:"id"`
	Email         string          `json:"email"`
	EmailVerified json.RawMessage `json:"email_verified"`
	VerifiedEmail json.RawMessage `json:"verified_email"`
	Name          string          `json:"name"`
	GivenName     string          `json:"given_name"`
	FamilyName    string          `json:"family_name"`
	Picture       string          `json:"picture"`
	Login         string          `json:"login"`
	AvatarURL     string          `json:"avatar_url"`
}

// parseUserInfo normalizes provider payload into profile
func parseUserInfo(provider string, body []byte) (models.OAuthProfile, error) {
	var info userInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return models.OAuthProfile{}, fmt.Errorf("userinfo is not json. Err: %w", apperrors.ErrOAuthProfileInvalid)
	}

	profile := models.OAuthProfile{
		Provider:       provider,
		ProviderUserID: info.Sub,
		Email:          strings.TrimSpace(info.Email),
		EmailVerified:  rawBool(info.EmailVerified) || rawBool(info.VerifiedEmail),
		DisplayName:    info.Name,
		FirstName:      info.GivenName,
		LastName:       info.FamilyName,
		AvatarURL:      info.Picture,
	}

	if profile.ProviderUserID == "" {
		profile.ProviderUserID = strings.Trim(string(info.ID), `"`)
	}
	if profile.ProviderUserID == "" || profile.ProviderUserID == "null" {
		return models.OAuthProfile{}, fmt.Errorf("userinfo has no subject. Err: %w", apperrors.ErrOAuthProfileInvalid)
	}

	if profile.DisplayName == "" {
		profile.DisplayName = info.Login
	}
	if profile.AvatarURL == "" {
		profile.AvatarURL = info.AvatarURL
	}
	if profile.FirstName == "" && profile.LastName == "" && info.Name != "" {
		first, last, _ := strings.Cut(strings.TrimSpace(info.Name), " ")
		profile.FirstName, profile.LastName = first, strings.TrimSpace(last)
	}

	return profile, nil
}

// rawBool accepts true and "true"
func rawBool(raw json.RawMessage) bool {
	return strings.Trim(string(raw), `"`) == "true"
}
