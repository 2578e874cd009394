package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/authcore/internal/apperrors"
)

const stateBytesLen = 24

// NewState returns opaque state with the tenant embedded: "random:tenantID"
func NewState(tenantID uuid.UUID) (string, error) {
	b := make([]byte, stateBytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error while generating oauth state. Err: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b) + ":" + tenantID.String(), nil
}

// StateTenant extracts tenant from the state without touching the store
func StateTenant(state string) (uuid.UUID, error) {
	random, tenant, ok := strings.Cut(state, ":")
	if !ok || random == "" {
		return uuid.Nil, fmt.Errorf("malformed state. Err: %w", apperrors.ErrOAuthStateMismatch)
	}

	tenantID, err := uuid.Parse(tenant)
	if err != nil {
		return uuid.Nil, fmt.Errorf("malformed state tenant. Err: %w", apperrors.ErrOAuthStateMismatch)
	}

	return tenantID, nil
}
