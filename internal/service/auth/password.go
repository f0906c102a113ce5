package auth

import (
	"crypto/sha256"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// PasswordVerifier defines the interface for comparing secrets against a hash.
type PasswordVerifier interface {
	// Compare compares a hashed secret with its possible plaintext equivalent.
	// Returns nil on success, or an error on failure (e.g., mismatch).
	Compare(hashedPassword, password string) error
}

// BcryptVerifier implements PasswordVerifier using bcrypt.
type BcryptVerifier struct{}

// NewBcryptVerifier creates a new BcryptVerifier.
func NewBcryptVerifier() *BcryptVerifier {
	return &BcryptVerifier{}
}

// Compare implements the PasswordVerifier interface using bcrypt.
func (v *BcryptVerifier) Compare(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// APIKeyVerifier checks client API keys against a single bcrypt hash.
// Keys that verified once are remembered by digest so bcrypt runs only on
// the first request with a given key.
type APIKeyVerifier struct {
	hash     string
	verifier PasswordVerifier
	accepted sync.Map // [sha256.Size]byte -> struct{}
}

// NewAPIKeyVerifier creates a verifier for hash. A nil verifier uses bcrypt.
func NewAPIKeyVerifier(hash string, verifier PasswordVerifier) *APIKeyVerifier {
	if verifier == nil {
		verifier = NewBcryptVerifier()
	}
	return &APIKeyVerifier{hash: hash, verifier: verifier}
}

// Verify returns nil when key matches the configured hash.
func (v *APIKeyVerifier) Verify(key string) error {
	if key == "" {
		return ErrMissingAPIKey
	}

	digest := sha256.Sum256([]byte(key))
	if _, ok := v.accepted.Load(digest); ok {
		return nil
	}

	if err := v.verifier.Compare(v.hash, key); err != nil {
		return ErrInvalidAPIKey
	}
	v.accepted.Store(digest, struct{}{})
	return nil
}
