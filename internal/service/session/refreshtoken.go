package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const refreshTokenBytesLen = 32

// newRefreshToken returns opaque value for the caller and its hash for the storage
func newRefreshToken() (value string, hash string, err error) {
	b := make([]byte, refreshTokenBytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("error while generate refresh token. Err: %w", err)
	}

	value = base64.RawURLEncoding.EncodeToString(b)
	return value, HashRefreshToken(value), nil
}

// HashRefreshToken is the only form refresh token is stored and looked up in
func HashRefreshToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
