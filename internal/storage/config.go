package storage

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/correlator-io/dataengine/internal/config"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute
)

var (
	// ErrDatabaseURLEmpty is returned when the database url is an empty string.
	ErrDatabaseURLEmpty = errors.New("database URL cannot be empty")
	// ErrUnsupportedScheme is returned for URLs that lib/pq cannot dial.
	ErrUnsupportedScheme = errors.New("database URL must use the postgres or postgresql scheme")
	// ErrInvalidPoolSize is returned for negative or inconsistent pool limits.
	ErrInvalidPoolSize = errors.New("invalid connection pool size")
)

// keywordPassword matches the password of a keyword/value DSN such as
// "host=db user=engine password=secret".
var keywordPassword = regexp.MustCompile(`(password\s*=\s*)('[^']*'|\S+)`)

// Config is the PostgreSQL connection pool configuration shared by the metadata
// store, the key store and the migrator.
type Config struct {
	databaseURL string

	// Zero MaxOpenConns leaves the pool unbounded.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfig reads DATABASE_URL and the DATABASE_* pool settings.
func LoadConfig() *Config {
	return &Config{
		databaseURL:     config.GetEnvStr("DATABASE_URL", ""),
		MaxOpenConns:    config.GetEnvInt("DATABASE_MAX_OPEN_CONNS", defaultMaxOpenConns),
		MaxIdleConns:    config.GetEnvInt("DATABASE_MAX_IDLE_CONNS", defaultMaxIdleConns),
		ConnMaxLifetime: config.GetEnvDuration("DATABASE_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
		ConnMaxIdleTime: config.GetEnvDuration("DATABASE_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime),
	}
}

// Validate accepts postgres:// URLs and keyword/value DSNs with sane pool limits.
func (c *Config) Validate() error {
	dsn := strings.TrimSpace(c.databaseURL)
	if dsn == "" {
		return ErrDatabaseURLEmpty
	}

	if scheme, _, ok := strings.Cut(dsn, "://"); ok && scheme != "postgres" && scheme != "postgresql" {
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}

	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return fmt.Errorf("%w: limits must not be negative", ErrInvalidPoolSize)
	}

	if c.MaxOpenConns > 0 && c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("%w: %d idle exceeds %d open", ErrInvalidPoolSize, c.MaxIdleConns, c.MaxOpenConns)
	}

	return nil
}

// MaskDatabaseURL returns the database URL with its password replaced by "***".
func (c *Config) MaskDatabaseURL() string {
	scheme, rest, found := strings.Cut(c.databaseURL, "://")
	if !found {
		return keywordPassword.ReplaceAllString(c.databaseURL, "${1}***")
	}

	// Passwords may themselves contain '@', the host part never does.
	at := strings.LastIndex(rest, "@")
	if at == -1 {
		return c.databaseURL
	}

	username, password, hasPassword := strings.Cut(rest[:at], ":")
	if !hasPassword || password == "" {
		return c.databaseURL
	}

	return scheme + "://" + username + ":***" + rest[at:]
}
