// Package auth validates the shared bearer secret clients present.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrInvalidAPIKey is returned when a presented key does not match.
var ErrInvalidAPIKey = errors.New("invalid API key")

// Authenticator validates API keys against the configured shared secret.
type Authenticator struct {
	keyHash string
}

// NewAuthenticator creates an authenticator for secret. Only the hash of
// the secret is retained.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{keyHash: HashAPIKey(secret)}
}

// ValidateAPIKey reports whether apiKey is the shared secret.
func (a *Authenticator) ValidateAPIKey(apiKey string) error {
	if apiKey == "" {
		return ErrInvalidAPIKey
	}

	// Constant-time comparison of equal-length hashes
	if subtle.ConstantTimeCompare([]byte(HashAPIKey(apiKey)), []byte(a.keyHash)) != 1 {
		return ErrInvalidAPIKey
	}
	return nil
}

// Authenticate extracts and validates the key carried by r.
func (a *Authenticator) Authenticate(r *http.Request) error {
	apiKey, err := ExtractAPIKey(r)
	if err != nil {
		return err
	}
	return a.ValidateAPIKey(apiKey)
}

// ExtractAPIKey extracts the API key from the Authorization header
func ExtractAPIKey(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", fmt.Errorf("missing Authorization header")
	}

	// Support "Bearer <key>" format
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid Authorization header format")
	}

	if strings.ToLower(parts[0]) != "bearer" {
		return "", fmt.Errorf("unsupported authorization scheme")
	}

	return strings.TrimSpace(parts[1]), nil
}

// HashAPIKey returns the hex SHA-256 of an API key.
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}
