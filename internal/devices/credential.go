package devices

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	credentialPrefix = "ek_"
	credentialBytes  = 32 // 256 bits
)

// GenerateCredential creates a device API credential with crypto/rand.
// The plaintext is handed to the caller exactly once; only its hash is
// ever stored.
func GenerateCredential() (string, error) {
	b := make([]byte, credentialBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return credentialPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// HashCredential computes the SHA-256 hex digest stored and used for
// lookup. The credential itself carries 256 bits of entropy, so the digest
// is not brute-forceable the way a user password hash would be.
func HashCredential(key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", sum)
}

// ValidCredentialShape is a cheap boundary check before hitting the store.
func ValidCredentialShape(key string) bool {
	return strings.HasPrefix(key, credentialPrefix) && len(key) > len(credentialPrefix)+20
}
