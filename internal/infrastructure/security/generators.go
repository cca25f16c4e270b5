// Package security provides secure random generation, request signing,
// and operator token utilities
package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// VerificationTokenBytes is the entropy of an issued verification token;
// 18 bytes yields a 24-character url-safe string.
const VerificationTokenBytes = 18

// GenerateULID generates a new ULID string.
func GenerateULID() string {
	return ulid.Make().String()
}

// GenerateSecureToken generates a cryptographically secure random token suitable for URLs.
func GenerateSecureToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// GenerateVerificationToken creates an opaque unguessable token for one
// verification attempt.
func GenerateVerificationToken() (string, error) {
	return GenerateSecureToken(VerificationTokenBytes)
}
