package storage

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	// KeyPrefix starts every data engine API key.
	KeyPrefix = "dataengine_ak_" // pragma: allowlist secret

	randomBytesSize = 32
	apiKeyLength    = len(KeyPrefix) + 2*randomBytesSize
	prefixLen       = len(KeyPrefix) + 4
	suffixLen       = 4
)

// Permissions granted to API keys.
const (
	PermissionMetadataRead  = "metadata:read"
	PermissionMetadataWrite = "metadata:write"
)

var (
	// ErrKeyAlreadyExists is returned when attempting to add a key that already exists.
	ErrKeyAlreadyExists = errors.New("API key already exists")
	// ErrKeyNotFound is returned when attempting to operate on a non-existent key.
	ErrKeyNotFound = errors.New("API key not found")
	// ErrKeyNil is returned when a nil API key is provided.
	ErrKeyNil = errors.New("API key cannot be nil")
	// ErrClientIDEmpty is returned when the client ID is empty.
	ErrClientIDEmpty = errors.New("client ID cannot be empty")
	// ErrKeyStringEmpty is returned when key string is empty during parsing.
	ErrKeyStringEmpty = errors.New("key string cannot be empty")
	// ErrInvalidKeyFormat is returned when API key doesn't match expected format.
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	// ErrInvalidKeyLength is returned when API key length is incorrect.
	ErrInvalidKeyLength = errors.New("invalid API key length")
)

// APIKey identifies a data engine client calling the service.
// ClientID is the caller's user identity on every write it makes.
type APIKey struct {
	ID          string     `json:"id"`
	Key         string     `json:"key"`
	ClientID    string     `json:"clientId"`
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	Active      bool       `json:"active"`
}

// APIKeyStore stores API keys. Implementations return copies; callers may mutate results.
type APIKeyStore interface {
	// FindByKey retrieves an API key by its plaintext value.
	FindByKey(ctx context.Context, key string) (*APIKey, bool)
	// Add stores a new API key.
	Add(ctx context.Context, apiKey *APIKey) error
	// Update modifies name, permissions, status and expiry of an existing key.
	Update(ctx context.Context, apiKey *APIKey) error
	// Delete deactivates an API key.
	Delete(ctx context.Context, keyID string) error
	// ListByClient returns the active keys of a client.
	ListByClient(ctx context.Context, clientID string) ([]*APIKey, error)
}

// IsUsable reports whether the key is active and not expired at now.
func (ak *APIKey) IsUsable(now time.Time) bool {
	return ak.Active && (ak.ExpiresAt == nil || now.Before(*ak.ExpiresAt))
}

// HasPermission checks if the API key has a specific permission.
func (ak *APIKey) HasPermission(permission string) bool {
	return slices.Contains(ak.Permissions, permission)
}

// SecureCompare performs constant-time comparison of two strings.
func SecureCompare(a, b string) bool {
	if len(a) != len(b) {
		dummy := make([]byte, len(a))
		subtle.ConstantTimeCompare([]byte(a), dummy)

		return false
	}

	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// MaskKey masks an API key for logging, keeping the prefix and last four characters
// of well-formed keys and masking anything else completely.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}

	if len(key) == apiKeyLength {
		return key[:prefixLen] + strings.Repeat("*", apiKeyLength-prefixLen-suffixLen) + key[apiKeyLength-suffixLen:]
	}

	return strings.Repeat("*", len(key))
}

// GenerateAPIKey creates a new random API key for a client.
func GenerateAPIKey(clientID string) (string, error) {
	if clientID == "" {
		return "", ErrClientIDEmpty
	}

	randomBytes := make([]byte, randomBytesSize)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return KeyPrefix + hex.EncodeToString(randomBytes), nil
}

// ParseAPIKey extracts and validates an API key from a header value.
func ParseAPIKey(keyString string) (string, error) {
	if keyString == "" {
		return "", ErrKeyStringEmpty
	}

	keyString = strings.TrimPrefix(keyString, "Bearer ")

	if !strings.HasPrefix(keyString, KeyPrefix) {
		return "", ErrInvalidKeyFormat
	}

	if len(keyString) != apiKeyLength {
		return "", ErrInvalidKeyLength
	}

	return keyString, nil
}
