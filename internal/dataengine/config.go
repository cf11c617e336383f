package dataengine

import (
	"errors"
	"time"

	"github.com/correlator-io/dataengine/internal/config"
)

const (
	defaultSourceCacheTTL      = 5 * time.Minute
	defaultSourceCacheCapacity = 1024
)

// ErrInvalidSourceCacheTTL is returned when the external source cache TTL is not positive.
var ErrInvalidSourceCacheTTL = errors.New("source cache TTL must be positive")

// Config holds tuning for the data engine service.
type Config struct {
	// SourceCacheTTL bounds how long a resolved external source GUID is reused.
	SourceCacheTTL time.Duration
	// SourceCacheCapacity caps the number of cached external sources (0 = unbounded).
	SourceCacheCapacity uint64
}

// LoadConfig reads DATAENGINE_SOURCE_CACHE_* environment variables.
func LoadConfig() Config {
	return Config{
		SourceCacheTTL: config.GetEnvDuration("DATAENGINE_SOURCE_CACHE_TTL", defaultSourceCacheTTL),
		SourceCacheCapacity: uint64(max(0,
			config.GetEnvInt("DATAENGINE_SOURCE_CACHE_CAPACITY", defaultSourceCacheCapacity))),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.SourceCacheTTL <= 0 {
		return ErrInvalidSourceCacheTTL
	}

	return nil
}
