package main

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/correlator-io/dataengine/internal/config"
	"github.com/correlator-io/dataengine/internal/storage"
)

const defaultMigrationTable = "schema_migrations"

// ErrInvalidMigrationTable is returned when MIGRATION_TABLE is not a plain SQL identifier.
var ErrInvalidMigrationTable = errors.New("invalid migration table name")

var tableNameRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// Config holds the migrator configuration. The database settings are shared with the
// service so both read the same DATABASE_* variables.
type Config struct {
	Storage        *storage.Config
	MigrationTable string
}

// LoadConfig loads and validates the migrator configuration from the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Storage:        storage.LoadConfig(),
		MigrationTable: config.GetEnvStr("MIGRATION_TABLE", defaultMigrationTable),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the database URL and the migration table name.
func (c *Config) Validate() error {
	if c.Storage == nil {
		return storage.ErrDatabaseURLEmpty
	}

	if err := c.Storage.Validate(); err != nil {
		return err
	}

	if !tableNameRegex.MatchString(c.MigrationTable) {
		return fmt.Errorf("%w: %q", ErrInvalidMigrationTable, c.MigrationTable)
	}

	return nil
}

// String returns the configuration with the database password masked.
func (c *Config) String() string {
	maskedURL := ""
	if c.Storage != nil {
		maskedURL = c.Storage.MaskDatabaseURL()
	}

	return fmt.Sprintf("Config{DatabaseURL: %s, MigrationTable: %s}", maskedURL, c.MigrationTable)
}
