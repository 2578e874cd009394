// Package tokensigner issues and verifies access tokens.
//
// Every tenant signs with its own secret. The HMAC key is additionally bound to the tenant ID, so
// a token issued for one tenant never validates for another one even if their secrets collide.
// Rotating a tenant secret makes all its earlier tokens fail verification on next use.
package tokensigner

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/authcore/internal/apperrors"
	"github.com/nkiryanov/authcore/internal/clock"
	"github.com/nkiryanov/authcore/internal/models"
)

const (
	defaultSigningMethod = "HS256"
	defaultIssuer        = "authcore"

	// Secret length generated on tenant secret rotation
	SecretBytesLen = 32
)

type Claims struct {
	jwt.RegisteredClaims
	TenantID uuid.UUID `json:"tid"`
}

// PrincipalID parses subject claim
func (c Claims) PrincipalID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

type Config struct {
	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Value of 'iss' claim
	Issuer string

	// Time source, real clock if not set
	Clock clock.Clock
}

type Signer struct {
	alg    jwt.SigningMethod
	issuer string
	clock  clock.Clock
}

func New(cfg Config) (*Signer, error) {
	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}

	alg, ok := jwt.GetSigningMethod(cfg.Alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("signing method %q is not supported, only HMAC ones are", cfg.Alg)
	}

	return &Signer{
		alg:    alg,
		issuer: cfg.Issuer,
		clock:  cfg.Clock,
	}, nil
}

// Issue signs access token for the principal
func (s *Signer) Issue(principalID uuid.UUID, tenantID uuid.UUID, secret string, ttl time.Duration) (models.IssuedToken, error) {
	if secret == "" {
		return models.IssuedToken{}, errors.New("tenant secret must not be empty")
	}

	now := s.clock.Now().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	token := jwt.NewWithClaims(
		s.alg,
		Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				Issuer:    s.issuer,
				Subject:   principalID.String(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			TenantID: tenantID,
		},
	)

	signed, err := token.SignedString(deriveKey(secret, tenantID))
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return models.IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// Verify parses and validates access token with the tenant secret
func (s *Signer) Verify(access string, secret string) (Claims, error) {
	claims := Claims{}

	_, err := jwt.ParseWithClaims(
		access,
		&claims,
		func(t *jwt.Token) (any, error) {
			// Claims are decoded before the key is requested
			if claims.TenantID == uuid.Nil {
				return nil, errors.New("token has no tenant")
			}
			return deriveKey(secret, claims.TenantID), nil
		},
		jwt.WithValidMethods([]string{s.alg.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)

	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, fmt.Errorf("error while validating token. Err: %w", apperrors.ErrAccessTokenExpired)
	default:
		return Claims{}, fmt.Errorf("error while parsing or validating token: %v. Err: %w", err, apperrors.ErrAccessTokenInvalid)
	}
}

// PeekTenant reads tenant claim without verifying the signature.
// Result is only good to pick which secret to verify with.
func (s *Signer) PeekTenant(access string) (uuid.UUID, error) {
	claims := Claims{}

	_, _, err := jwt.NewParser().ParseUnverified(access, &claims)
	if err != nil || claims.TenantID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("error while reading token tenant. Err: %w", apperrors.ErrAccessTokenInvalid)
	}

	return claims.TenantID, nil
}

// NewSecret generates random tenant signing secret
func NewSecret() (string, error) {
	b := make([]byte, SecretBytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error while generating secret. Err: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func deriveKey(secret string, tenantID uuid.UUID) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("access:" + tenantID.String()))
	return mac.Sum(nil)
}
