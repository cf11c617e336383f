package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/correlator-io/dataengine/internal/storage"
)

// AuthError represents an authentication error with a specific type.
type AuthError struct {
	Type    error
	Message string
}

// Authentication error types.
var (
	// ErrMissingAPIKey is returned when no API key is provided in headers.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidAPIKey is returned for a malformed or unknown API key.
	// The message is the same for both so keys cannot be enumerated.
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrAPIKeyExpired is returned when the API key has expired.
	ErrAPIKeyExpired = errors.New("API key expired")

	// ErrAPIKeyInactive is returned when the API key was deactivated.
	ErrAPIKeyInactive = errors.New("API key inactive")

	// ErrPermissionDenied is returned when the client lacks the permission a route needs.
	ErrPermissionDenied = errors.New("permission denied")
)

// Error implements the error interface for AuthError.
func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authentication failed: %s: %s", e.Type.Error(), e.Message)
	}

	return "authentication failed: " + e.Type.Error()
}

// Unwrap returns the wrapped error type, enabling errors.Is and errors.As.
func (e *AuthError) Unwrap() error {
	return e.Type
}

// extractAPIKey extracts the API key from request headers.
// X-Api-Key takes precedence over Authorization: Bearer.
//
// Returns (key, true) if found and valid, ("", false) otherwise.
func extractAPIKey(r *http.Request) (string, bool) {
	if apiKey := r.Header.Get("X-Api-Key"); apiKey != "" {
		return validateAPIKey(apiKey)
	}

	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return validateAPIKey(token)
	}

	return "", false
}

// validateAPIKey trims a header value and rejects empty values and values
// containing newlines (header injection).
func validateAPIKey(key string) (string, bool) {
	if strings.ContainsAny(key, "\r\n") {
		return "", false
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return "", false
	}

	return key, true
}

// performDummyBcryptComparison keeps rejected lookups as slow as successful ones.
func performDummyBcryptComparison() {
	_ = bcrypt.CompareHashAndPassword([]byte("dummy"), []byte("dummy"))
}

// authenticateRequest validates apiKey against store.
//
// Error handling:
//   - Invalid format → ErrInvalidAPIKey
//   - Key not found → ErrInvalidAPIKey
//   - Inactive key → ErrAPIKeyInactive
//   - Expired key → ErrAPIKeyExpired
func authenticateRequest(
	ctx context.Context,
	store storage.APIKeyStore,
	apiKey string,
	logger *slog.Logger,
) (*storage.APIKey, error) {
	parsedKey, err := storage.ParseAPIKey(apiKey)
	if err != nil {
		performDummyBcryptComparison()

		logger.Warn("authentication failed: invalid key format",
			slog.String("error", err.Error()),
			slog.String("correlation_id", GetCorrelationID(ctx)),
			slog.String("failure_type", "format_validation"),
		)

		return nil, &AuthError{Type: ErrInvalidAPIKey, Message: "Invalid or missing API key"}
	}

	foundKey, exists := store.FindByKey(ctx, parsedKey)
	if !exists {
		performDummyBcryptComparison()

		logger.Warn("authentication failed: key not found",
			slog.String("correlation_id", GetCorrelationID(ctx)),
			slog.String("failure_type", "key_not_found"),
		)

		return nil, &AuthError{Type: ErrInvalidAPIKey, Message: "Invalid or missing API key"}
	}

	if !foundKey.Active {
		logger.Warn("authentication failed: key inactive",
			slog.String("key_id", foundKey.ID),
			slog.String("client_id", foundKey.ClientID),
			slog.String("correlation_id", GetCorrelationID(ctx)),
			slog.String("failure_type", "key_inactive"),
		)

		return nil, &AuthError{Type: ErrAPIKeyInactive, Message: "API key is inactive"}
	}

	if foundKey.ExpiresAt != nil && time.Now().After(*foundKey.ExpiresAt) {
		logger.Warn("authentication failed: key expired",
			slog.String("key_id", foundKey.ID),
			slog.String("client_id", foundKey.ClientID),
			slog.Time("expired_at", *foundKey.ExpiresAt),
			slog.String("correlation_id", GetCorrelationID(ctx)),
			slog.String("failure_type", "key_expired"),
		)

		return nil, &AuthError{Type: ErrAPIKeyExpired, Message: "API key has expired"}
	}

	return foundKey, nil
}

// Authenticate returns a middleware that validates API keys and adds the caller's
// ClientContext to the request context. Requests to publicPaths (health probes,
// metrics) bypass authentication.
//
//	store := storage.NewPersistentKeyStore(conn, logger)
//	handler = middleware.Authenticate(store, logger, "/ping", "/ready")(handler)
func Authenticate(
	store storage.APIKeyStore,
	logger *slog.Logger,
	publicPaths ...string,
) func(http.Handler) http.Handler {
	public := make(map[string]struct{}, len(publicPaths))
	for _, path := range publicPaths {
		public[path] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := public[r.URL.Path]; ok {
				next.ServeHTTP(w, r)

				return
			}

			authStart := time.Now()

			apiKey, found := extractAPIKey(r)
			if !found {
				writeAuthError(w, r, logger, &AuthError{Type: ErrMissingAPIKey, Message: "Missing API key"})

				return
			}

			authenticated, err := authenticateRequest(r.Context(), store, apiKey, logger)
			if err != nil {
				writeAuthError(w, r, logger, err)

				return
			}

			clientCtx := ClientContext{
				ClientID:    authenticated.ClientID,
				Name:        authenticated.Name,
				Permissions: authenticated.Permissions,
				KeyID:       authenticated.ID,
				AuthTime:    time.Now(),
			}

			logger.Debug("API key authenticated",
				slog.String("client_id", clientCtx.ClientID),
				slog.String("key_id", clientCtx.KeyID),
				slog.String("key", storage.MaskKey(authenticated.Key)),
				slog.Duration("auth_latency", time.Since(authStart)),
				slog.String("correlation_id", GetCorrelationID(r.Context())),
				slog.String("endpoint", r.URL.Path),
			)

			next.ServeHTTP(w, r.WithContext(SetClientContext(r.Context(), clientCtx)))
		})
	}
}

// RequirePermission wraps a handler so that authenticated clients without permission
// get 403. Unauthenticated requests pass through: they only reach handlers when
// authentication is disabled.
func RequirePermission(permission string, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientCtx, ok := GetClientContext(r.Context())
		if ok && !clientCtx.HasPermission(permission) {
			writeAuthError(w, r, logger, &AuthError{
				Type:    ErrPermissionDenied,
				Message: "API key lacks permission " + permission,
			})

			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeAuthError writes an RFC 7807 response for an authentication failure.
func writeAuthError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	correlationID := GetCorrelationID(r.Context())

	statusCode := http.StatusUnauthorized
	if errors.Is(err, ErrAPIKeyInactive) || errors.Is(err, ErrPermissionDenied) {
		statusCode = http.StatusForbidden
	}

	logger.Warn("Authentication failed",
		slog.String("reason", err.Error()),
		slog.String("correlation_id", correlationID),
		slog.String("endpoint", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("user_agent", r.UserAgent()),
	)

	writeProblem(w, r, logger, statusCode, err.Error())
}
