package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/multierr"

	"github.com/correlator-io/dataengine/internal/storage"
)

type (
	// MigrationRunner applies the migration set to a database.
	MigrationRunner interface {
		Up() error
		Down() error
		Status() (*Status, error)
		Drop() error
		Close() error
	}

	// Status describes the database schema against the migrations in this binary.
	Status struct {
		Version int
		Dirty   bool
		Latest  int
		Pending []MigrationFile
	}

	// Runner implements MigrationRunner with golang-migrate over the iofs source.
	Runner struct {
		migrate *migrate.Migrate
		conn    *storage.Connection
		set     *MigrationSet
		logger  *slog.Logger
	}

	// migrateLogger forwards golang-migrate logging to slog.
	migrateLogger struct {
		logger *slog.Logger
	}
)

var _ migrate.Logger = (*migrateLogger)(nil)

// NewMigrationRunner validates set, connects to the database and prepares golang-migrate.
func NewMigrationRunner(cfg *Config, set *MigrationSet, logger *slog.Logger) (*Runner, error) {
	logger.Info("Initializing migration runner", slog.String("config", cfg.String()))

	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("migration validation failed: %w", err)
	}

	conn, err := storage.NewConnection(cfg.Storage)
	if err != nil {
		return nil, err
	}

	driver, err := postgres.WithInstance(conn.DB, &postgres.Config{
		MigrationsTable: cfg.MigrationTable,
	})
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	source, err := iofs.New(set.FS(), ".")
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	m.Log = &migrateLogger{logger: logger}

	return &Runner{migrate: m, conn: conn, set: set, logger: logger}, nil
}

// Up applies all pending migrations.
func (r *Runner) Up() error {
	err := r.migrate.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		r.logger.Info("No new migrations to apply")

		return nil
	}

	if err != nil {
		return fmt.Errorf("migration up failed: %w", err)
	}

	r.logger.Info("All migrations applied", slog.Int("latest", r.set.Latest()))

	return nil
}

// Down rolls back the last applied migration.
func (r *Runner) Down() error {
	err := r.migrate.Steps(-1)
	if errors.Is(err, migrate.ErrNoChange) || errors.Is(err, os.ErrNotExist) {
		r.logger.Info("No migrations to roll back")

		return nil
	}

	if err != nil {
		return fmt.Errorf("migration down failed: %w", err)
	}

	r.logger.Info("Last migration rolled back")

	return nil
}

// Status reports the schema version, dirtiness and the migrations not yet applied.
func (r *Runner) Status() (*Status, error) {
	status := &Status{Latest: r.set.Latest()}

	version, dirty, err := r.migrate.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return nil, fmt.Errorf("failed to get migration version: %w", err)
	default:
		status.Version = int(version) // #nosec G115 -- sequence numbers are three digits
		status.Dirty = dirty
	}

	status.Pending, err = r.set.Pending(status.Version)
	if err != nil {
		return nil, err
	}

	return status, nil
}

// Drop removes every table in the database.
func (r *Runner) Drop() error {
	if err := r.migrate.Drop(); err != nil {
		return fmt.Errorf("drop failed: %w", err)
	}

	r.logger.Warn("All tables dropped")

	return nil
}

// Close releases the migrate instance and the connection.
func (r *Runner) Close() error {
	sourceErr, dbErr := r.migrate.Close()

	return multierr.Combine(sourceErr, dbErr, r.conn.Close())
}

// Summary renders s for the status command.
func (s *Status) Summary() string {
	var b strings.Builder

	state := "clean"
	if s.Dirty {
		state = "dirty (needs manual intervention)"
	}

	fmt.Fprintf(&b, "Database schema: v%03d (%s)\n", s.Version, state)
	fmt.Fprintf(&b, "Migrator supports: v%03d\n", s.Latest)

	switch {
	case s.Version > s.Latest:
		fmt.Fprintf(&b, "Database schema is newer than this migrator\n")
	case len(s.Pending) == 0:
		fmt.Fprintf(&b, "Up to date\n")
	default:
		fmt.Fprintf(&b, "%d pending migration(s):\n", len(s.Pending))

		for _, file := range s.Pending {
			fmt.Fprintf(&b, "  %s\n", file.Filename)
		}
	}

	return b.String()
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "migrate"))
}

func (l *migrateLogger) Verbose() bool {
	return l.logger.Enabled(context.Background(), slog.LevelDebug)
}
