// Package api exposes the data engine operations over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/correlator-io/dataengine/internal/api/middleware"
	"github.com/correlator-io/dataengine/internal/dataengine"
	"github.com/correlator-io/dataengine/internal/metrics"
	"github.com/correlator-io/dataengine/internal/storage"
)

const serviceName = "dataengine"

// ErrNoService is returned by NewServer when Dependencies.Service is nil.
var ErrNoService = errors.New("data engine service is required")

type (
	// Server represents the HTTP API server.
	Server struct {
		httpServer  *http.Server
		handler     http.Handler
		logger      *slog.Logger
		config      *ServerConfig
		startTime   time.Time
		version     string
		service     *dataengine.Service
		metrics     *metrics.Registry
		rateLimiter middleware.RateLimiter
	}

	// Dependencies are the runtime collaborators of the server.
	Dependencies struct {
		Service *dataengine.Service
		// KeyStore enables API key authentication when not nil.
		KeyStore storage.APIKeyStore
		// RateLimiter enables rate limiting when not nil.
		RateLimiter middleware.RateLimiter
		// Metrics enables request metrics and GET /metrics when not nil.
		Metrics *metrics.Registry
		Logger  *slog.Logger
		Version string
	}
)

// NewServer builds the route table and middleware chain.
//
// Middleware runs in this order:
//  1. CorrelationID, so every response carries one
//  2. Recovery
//  3. RequestLogger, which also feeds the request metrics
//  4. CORS, which answers preflights before any key is checked
//  5. Authenticate (optional), which sets the ClientContext
//  6. RateLimit (optional), keyed by client
func NewServer(cfg *ServerConfig, deps Dependencies) (*Server, error) {
	if deps.Service == nil {
		return nil, ErrNoService
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	server := &Server{
		logger:      logger,
		config:      cfg,
		version:     deps.Version,
		service:     deps.Service,
		metrics:     deps.Metrics,
		rateLimiter: deps.RateLimiter,
	}

	mux := http.NewServeMux()
	publicPaths := server.setupRoutes(mux)

	if deps.KeyStore != nil {
		logger.Info("API key authentication enabled")
	} else {
		logger.Warn("API key store not configured - authentication disabled")
	}

	if deps.RateLimiter != nil {
		logger.Info("Rate limiting enabled")
	} else {
		logger.Warn("Rate limiter not configured - rate limiting disabled")
	}

	var observer middleware.RequestObserver
	if deps.Metrics != nil {
		observer = deps.Metrics
	}

	server.handler = middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithRequestLogger(logger, observer),
		middleware.WithCORS(cfg.ToCORSConfig()),
		middleware.WithAuthentication(deps.KeyStore, logger, publicPaths...),
		middleware.WithRateLimit(deps.RateLimiter, logger),
	)

	server.httpServer = &http.Server{
		Addr:              cfg.Address(),
		Handler:           server.handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return server, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	listener, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return fmt.Errorf("server failed to listen on %s: %w", s.config.Address(), err)
	}

	return s.Serve(ctx, listener)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.startTime = time.Now()

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("Starting data engine API server",
			slog.String("address", listener.Addr().String()),
			slog.String("version", s.version),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}

		close(serverErrors)
	}()

	select {
	case err := <-serverErrors:
		s.closeRateLimiter()

		return err
	case <-ctx.Done():
		s.logger.Info("Shutdown requested", slog.String("cause", context.Cause(ctx).Error()))

		return s.shutdown()
	}
}

// shutdown drains in-flight requests within the shutdown timeout.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	defer s.closeRateLimiter()

	s.logger.Info("Initiating server shutdown",
		slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
	)

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown failed",
			slog.String("error", err.Error()),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("Server shutdown completed successfully")

	return nil
}

func (s *Server) closeRateLimiter() {
	if limiter, ok := s.rateLimiter.(interface{ Close() }); ok {
		limiter.Close()
	}
}
