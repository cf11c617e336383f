// Package middleware holds the HTTP middleware of the data engine API: correlation IDs,
// panic recovery, request logging, API key authentication, rate limiting and CORS.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// CorrelationIDHeader carries the request's correlation ID in both directions.
const CorrelationIDHeader = "X-Correlation-ID"

const maxCorrelationIDLength = 128

type correlationIDKey struct{}

// usableCorrelationID reports whether a caller supplied ID can be echoed and logged:
// bounded length and visible ASCII only.
func usableCorrelationID(id string) bool {
	if id == "" || len(id) > maxCorrelationIDLength {
		return false
	}

	return strings.IndexFunc(id, func(r rune) bool { return r <= ' ' || r > '~' }) == -1
}

// CorrelationID tags each request with the caller's X-Correlation-ID when usable and
// with a fresh UUID otherwise. The ID is echoed on the response.
func CorrelationID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := strings.TrimSpace(r.Header.Get(CorrelationIDHeader))
			if !usableCorrelationID(correlationID) {
				correlationID = uuid.NewString()
			}

			w.Header().Set(CorrelationIDHeader, correlationID)

			ctx := context.WithValue(r.Context(), correlationIDKey{}, correlationID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCorrelationID returns the request's correlation ID, or "unknown" outside a request.
func GetCorrelationID(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return correlationID
	}

	return "unknown"
}
