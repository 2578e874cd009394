package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Prefix of hashes that no password can ever match. Bcrypt hashes always start with '$'.
const unusablePrefix = "!"

// Bcrypt password hasher
// Passwords are pre-hashed with sha256, so bcrypt 72 bytes input limit is never hit
type BcryptHasher struct {
	// Bcrypt cost, bcrypt.DefaultCost if zero
	Cost int
}

// Default one if user not provide it's own
var DefaultHasher = BcryptHasher{}

func (h BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}

	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	sum := sha256.Sum256([]byte(password))
	hash, err := bcrypt.GenerateFromPassword(sum[:], cost)
	if err != nil {
		return "", fmt.Errorf("error while hashing password. Err: %w", err)
	}
	return string(hash), nil
}

// Verify compares known hashedPassword and user provided password
// Protected against timing attacks by bcrypt itself. Malformed hashes just do not match.
func (h BcryptHasher) Verify(password string, hashedPassword string) bool {
	if hashedPassword == "" || hashedPassword[:1] == unusablePrefix {
		return false
	}

	sum := sha256.Sum256([]byte(password))
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), sum[:]) == nil
}

// UnusableHash returns random value that never verifies.
// Used for principals that sign in through a third-party provider only.
func (h BcryptHasher) UnusableHash() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error while generating unusable hash. Err: %w", err)
	}
	return unusablePrefix + hex.EncodeToString(b), nil
}
