package config

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file:// migration source
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	readyLogOccurrences = 2
	containerStartup    = 120 * time.Second

	// migrationsSource is relative to any package directly under internal/.
	migrationsSource = "file://../../migrations"
)

// TestDatabase holds the resources of a throwaway PostgreSQL instance for integration tests.
type TestDatabase struct {
	Container  *postgres.PostgresContainer
	Connection *sql.DB
}

// SetupTestDatabase starts a postgres:16-alpine container, applies every migration and
// registers cleanup with t.Cleanup.
//
// Usage:
//
//	func TestUpsertProcess(t *testing.T) {
//		if testing.Short() {
//			t.Skip("skipping integration test in short mode")
//		}
//		testDB := config.SetupTestDatabase(t.Context(), t)
//		// ... use testDB.Connection
//	}
func SetupTestDatabase(ctx context.Context, t *testing.T) *TestDatabase {
	t.Helper()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("dataengine_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(readyLogOccurrences).
				WithStartupTimeout(containerStartup),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	require.NotNil(t, pgContainer, "postgres container is nil")

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err, "failed to open database")

	if err := RunTestMigrations(db); err != nil {
		_ = db.Close()
		_ = testcontainers.TerminateContainer(pgContainer)

		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
		_ = testcontainers.TerminateContainer(pgContainer)
	})

	return &TestDatabase{
		Container:  pgContainer,
		Connection: db,
	}
}

// RunTestMigrations applies the SQL files in migrations/ to db.
// migrate.ErrNoChange is treated as success.
func RunTestMigrations(db *sql.DB) error {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsSource, "postgres", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}
