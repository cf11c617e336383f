// Package main runs the data engine metadata service: the HTTP API and, when
// brokers are configured, the in-topic consumer.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/correlator-io/dataengine/internal/aliasing"
	"github.com/correlator-io/dataengine/internal/api"
	"github.com/correlator-io/dataengine/internal/api/middleware"
	"github.com/correlator-io/dataengine/internal/config"
	"github.com/correlator-io/dataengine/internal/dataengine"
	"github.com/correlator-io/dataengine/internal/intopic"
	"github.com/correlator-io/dataengine/internal/metadata"
	"github.com/correlator-io/dataengine/internal/metrics"
	"github.com/correlator-io/dataengine/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "dataengine"
)

const (
	storagePostgres = "postgres"
	storageMemory   = "memory"
)

// ErrUnknownStorage is returned for a DATAENGINE_STORAGE other than postgres or memory.
var ErrUnknownStorage = errors.New("unknown storage backend")

func main() {
	showVersion := flag.Bool("version", false, "show version information")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading configuration")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		slog.Warn("Failed to load env file", slog.String("path", *envFile), slog.String("error", err.Error()))
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, serverConfig, logger); err != nil {
		logger.Error("Data engine service failed", slog.String("error", err.Error()))
		stop()
		os.Exit(1) //nolint:gocritic // stop() already ran; nothing else is deferred
	}

	logger.Info("Data engine service stopped")
}

// backend bundles the repository with the resources that must be released on exit.
type backend struct {
	repo     metadata.Repository
	keyStore storage.APIKeyStore
	closers  []func() error
}

func (b *backend) Close() error {
	var err error

	for i := len(b.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, b.closers[i]())
	}

	return err
}

func run(ctx context.Context, serverConfig *api.ServerConfig, logger *slog.Logger) (err error) {
	logger.Info("Starting data engine service",
		slog.String("service", name),
		slog.String("version", version),
	)

	b, err := openBackend(logger)
	if err != nil {
		return err
	}

	if b.keyStore == nil {
		logger.Warn("API key authentication disabled",
			slog.String("security", "Only use in trusted networks (localhost, VPN, internal)"),
			slog.String("note", "Set DATAENGINE_AUTH_ENABLED=true to enable API key authentication"),
		)
	}

	defer func() {
		err = multierr.Append(err, b.Close())
	}()

	registry := metrics.NewRegistry()

	aliasConfig, aliasErr := aliasing.LoadConfigFromEnv()
	if aliasErr != nil {
		logger.Warn("Ignoring external source alias configuration", slog.String("error", aliasErr.Error()))
	}

	serviceConfig := dataengine.LoadConfig()

	svc, err := dataengine.NewService(b.repo, serviceConfig,
		dataengine.WithResolver(aliasing.NewResolver(aliasConfig)),
		dataengine.WithRecorder(registry),
		dataengine.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer svc.Close()

	logger.Info("Data engine service initialized",
		slog.Duration("source_cache_ttl", serviceConfig.SourceCacheTTL),
		slog.Uint64("source_cache_capacity", serviceConfig.SourceCacheCapacity),
	)

	deps := api.Dependencies{
		Service:  svc,
		KeyStore: b.keyStore,
		Metrics:  registry,
		Logger:   logger,
		Version:  version,
	}

	rateLimitConfig := middleware.LoadConfig()
	if rateLimitConfig.Enabled {
		// Closed by the server on shutdown.
		deps.RateLimiter = middleware.NewInMemoryRateLimiter(rateLimitConfig, logger)

		logger.Info("Rate limiter initialized",
			slog.Int("global_rps", rateLimitConfig.GlobalRPS),
			slog.Int("client_rps", rateLimitConfig.ClientRPS),
			slog.Int("unauth_rps", rateLimitConfig.UnAuthRPS),
		)
	}

	server, err := api.NewServer(serverConfig, deps)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	consumerDone, err := startConsumer(ctx, cancel, svc, registry, logger)
	if err != nil {
		return err
	}

	err = server.Start(ctx)
	cancel(errors.New("server stopped"))

	return multierr.Append(err, <-consumerDone)
}

func openBackend(logger *slog.Logger) (*backend, error) {
	backendName := config.GetEnvStr("DATAENGINE_STORAGE", storagePostgres)
	authEnabled := config.GetEnvBool("DATAENGINE_AUTH_ENABLED", false)

	switch backendName {
	case storageMemory:
		logger.Warn("Using in-memory storage; metadata is lost on restart")

		b := &backend{repo: storage.NewInMemoryMetadataStore()}

		if authEnabled {
			keys := storage.NewInMemoryKeyStore()
			if err := seedAPIKey(keys, logger); err != nil {
				return nil, err
			}

			b.keyStore = keys
		}

		return b, nil
	case storagePostgres:
		storageConfig := storage.LoadConfig()

		conn, err := storage.NewConnection(storageConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		b := &backend{closers: []func() error{conn.Close}}

		store, err := storage.NewMetadataStore(conn)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("failed to create metadata store: %w", err), b.Close())
		}

		b.repo = store

		logger.Info("Metadata store initialized",
			slog.String("database_url", storageConfig.MaskDatabaseURL()),
			slog.Int("database_max_open_conns", storageConfig.MaxOpenConns),
			slog.Int("database_max_idle_conns", storageConfig.MaxIdleConns),
			slog.Duration("database_conn_max_lifetime", storageConfig.ConnMaxLifetime),
		)

		if authEnabled {
			keys, err := storage.NewPersistentKeyStore(conn, logger)
			if err != nil {
				return nil, multierr.Append(fmt.Errorf("failed to create key store: %w", err), b.Close())
			}

			b.keyStore = keys
		}

		return b, nil
	default:
		return nil, fmt.Errorf("%w: %q (expected %s or %s)", ErrUnknownStorage, backendName, storagePostgres, storageMemory)
	}
}

// seedAPIKey adds DATAENGINE_BOOTSTRAP_API_KEY to an in-memory key store, which
// otherwise starts empty and would reject every request.
func seedAPIKey(keys *storage.InMemoryKeyStore, logger *slog.Logger) error {
	apiKey := config.GetEnvStr("DATAENGINE_BOOTSTRAP_API_KEY", "")
	if _, err := storage.ParseAPIKey(apiKey); err != nil {
		return fmt.Errorf("in-memory authentication needs a valid DATAENGINE_BOOTSTRAP_API_KEY: %w", err)
	}

	clientID := config.GetEnvStr("DATAENGINE_BOOTSTRAP_CLIENT_ID", "bootstrap")

	err := keys.Add(context.Background(), &storage.APIKey{
		ID:          "bootstrap",
		Key:         apiKey,
		ClientID:    clientID,
		Name:        "Bootstrap key",
		Permissions: []string{storage.PermissionMetadataRead, storage.PermissionMetadataWrite},
		CreatedAt:   time.Now(),
		Active:      true,
	})
	if err != nil {
		return fmt.Errorf("failed to seed bootstrap API key: %w", err)
	}

	logger.Info("Bootstrap API key loaded",
		slog.String("client_id", clientID),
		slog.String("key", storage.MaskKey(apiKey)),
	)

	return nil
}

// startConsumer runs the in-topic consumer when brokers are configured. The returned
// channel yields exactly one value once the consumer has stopped. A consumer
// failure cancels ctx so the HTTP server shuts down too.
func startConsumer(
	ctx context.Context,
	cancel context.CancelCauseFunc,
	svc *dataengine.Service,
	registry *metrics.Registry,
	logger *slog.Logger,
) (<-chan error, error) {
	done := make(chan error, 1)

	consumerConfig := intopic.LoadConfig()
	if !consumerConfig.Enabled() {
		logger.Info("In-topic consumer disabled", slog.String("note", "Set DATAENGINE_KAFKA_BROKERS to enable it"))
		done <- nil

		return done, nil
	}

	consumer, err := intopic.NewConsumer(consumerConfig, svc,
		intopic.WithRecorder(registry),
		intopic.WithLogger(logger.With(slog.String("component", "intopic"))),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-topic consumer: %w", err)
	}

	logger.Info("In-topic consumer initialized",
		slog.Any("brokers", consumerConfig.Brokers),
		slog.String("topic", consumerConfig.Topic),
		slog.String("group_id", consumerConfig.GroupID),
	)

	go func() {
		err := consumer.Run(ctx)
		if err != nil {
			cancel(err)
		}

		done <- multierr.Append(err, consumer.Close())
	}()

	return done, nil
}
