// Package auth - password.go hashes and verifies account passwords with bcrypt.
package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores input beyond 72 bytes; newer x/crypto releases reject it instead.
const maxPasswordBytes = 72

// CredentialVerifier hashes and checks passwords.
type CredentialVerifier struct {
	cost int
}

// NewCredentialVerifier creates a verifier with the given bcrypt cost. A cost
// outside bcrypt's range falls back to bcrypt.DefaultCost.
func NewCredentialVerifier(cost int) *CredentialVerifier {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &CredentialVerifier{cost: cost}
}

// Hash returns the bcrypt hash of password.
func (v *CredentialVerifier) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(truncate(password), v.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether password matches hash. A malformed hash never matches.
func (v *CredentialVerifier) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), truncate(password)) == nil
}

func truncate(password string) []byte {
	b := []byte(password)
	if len(b) > maxPasswordBytes {
		b = b[:maxPasswordBytes]
	}
	return b
}
