package middleware

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/correlator-io/dataengine/internal/storage"
)

type (
	// Option is a function that applies middleware to a handler.
	Option func(http.Handler) http.Handler
)

// Apply wraps handler with options. The first option becomes the outermost middleware;
// nil options are skipped.
//
//	handler := middleware.Apply(mux,
//	    middleware.WithCorrelationID(),
//	    middleware.WithRecovery(logger),
//	    middleware.WithRequestLogger(logger, registry),
//	    middleware.WithCORS(corsConfig),
//	    middleware.WithAuthentication(store, logger, "/ping", "/ready"),
//	    middleware.WithRateLimit(limiter, logger),
//	)
func Apply(handler http.Handler, options ...Option) http.Handler {
	for _, option := range slices.Backward(options) {
		if option != nil {
			handler = option(handler)
		}
	}

	return handler
}

// WithCorrelationID returns an option that adds correlation ID middleware.
func WithCorrelationID() Option {
	return CorrelationID()
}

// WithRecovery returns an option that adds panic recovery middleware.
func WithRecovery(logger *slog.Logger) Option {
	return Recovery(logger)
}

// WithAuthentication returns an option that adds API key authentication, or nil
// when store is nil.
func WithAuthentication(store storage.APIKeyStore, logger *slog.Logger, publicPaths ...string) Option {
	if store == nil {
		return nil
	}

	return Authenticate(store, logger, publicPaths...)
}

// WithRateLimit returns an option that adds rate limiting, or nil when limiter is nil.
func WithRateLimit(limiter RateLimiter, logger *slog.Logger) Option {
	if limiter == nil {
		return nil
	}

	return RateLimit(limiter, logger)
}

// WithRequestLogger returns an option that logs requests and reports them to observer.
// observer may be nil.
func WithRequestLogger(logger *slog.Logger, observer RequestObserver) Option {
	return RequestLogger(logger, observer)
}

// WithCORS returns an option that adds CORS middleware.
func WithCORS(config CORSConfig) Option {
	return CORS(config)
}
