package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/correlator-io/dataengine/internal/config"
)

const (
	defaultPort           int    = 8080
	maxPort               int    = 65535
	defaultHost           string = "0.0.0.0"
	defaultCORSMaxAge     int    = 86400
	defaultTimeout               = 30 * time.Second
	defaultLogLevel              = slog.LevelInfo
	defaultMaxRequestSize int64  = 4 << 20
)

var (
	// ErrInvalidPort indicates the port number is outside valid range (1-65535).
	ErrInvalidPort = errors.New("invalid port")

	// ErrEmptyHost indicates the server host address is empty.
	ErrEmptyHost = errors.New("host cannot be empty")

	// ErrInvalidReadTimeout indicates the read timeout is zero or negative.
	ErrInvalidReadTimeout = errors.New("read timeout must be positive")

	// ErrInvalidWriteTimeout indicates the write timeout is zero or negative.
	ErrInvalidWriteTimeout = errors.New("write timeout must be positive")

	// ErrInvalidShutdownTimeout indicates the shutdown timeout is zero or negative.
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")

	// ErrInvalidMaxRequestSize indicates the max request size is zero or negative.
	ErrInvalidMaxRequestSize = errors.New("max request size must be positive")

	// ErrInvalidCORSOrigin indicates an allowed origin that is neither "*" nor scheme://host[:port].
	ErrInvalidCORSOrigin = errors.New("invalid CORS origin")

	// ErrInvalidCORSMaxAge indicates a negative preflight cache duration.
	ErrInvalidCORSMaxAge = errors.New("CORS max age must not be negative")
)

type (
	// ServerConfig holds HTTP server configuration. Runtime dependencies are passed
	// separately in Dependencies.
	ServerConfig struct {
		Port               int
		Host               string
		ReadTimeout        time.Duration
		WriteTimeout       time.Duration
		ShutdownTimeout    time.Duration
		LogLevel           slog.Level
		MaxRequestSize     int64
		CORSAllowedOrigins []string
		CORSAllowedMethods []string
		CORSAllowedHeaders []string
		CORSMaxAge         int
	}

	// CORSConfig implements middleware.CORSConfig.
	CORSConfig struct {
		AllowedOrigins []string
		AllowedMethods []string
		AllowedHeaders []string
		MaxAge         int
	}
)

// LoadServerConfig loads server configuration from DATAENGINE_* environment variables.
func LoadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            config.GetEnvInt("DATAENGINE_SERVER_PORT", defaultPort),
		Host:            config.GetEnvStr("DATAENGINE_SERVER_HOST", defaultHost),
		ReadTimeout:     config.GetEnvDuration("DATAENGINE_SERVER_READ_TIMEOUT", defaultTimeout),
		WriteTimeout:    config.GetEnvDuration("DATAENGINE_SERVER_WRITE_TIMEOUT", defaultTimeout),
		ShutdownTimeout: config.GetEnvDuration("DATAENGINE_SERVER_SHUTDOWN_TIMEOUT", defaultTimeout),
		LogLevel:        config.GetEnvLogLevel("DATAENGINE_LOG_LEVEL", defaultLogLevel),
		MaxRequestSize:  config.GetEnvInt64("DATAENGINE_MAX_REQUEST_SIZE", defaultMaxRequestSize),
		CORSAllowedOrigins: config.ParseCommaSeparatedList(
			config.GetEnvStr("DATAENGINE_CORS_ALLOWED_ORIGINS", "*"),
		),
		CORSAllowedMethods: config.ParseCommaSeparatedList(
			config.GetEnvStr("DATAENGINE_CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE"),
		),
		CORSAllowedHeaders: config.ParseCommaSeparatedList(
			config.GetEnvStr(
				"DATAENGINE_CORS_ALLOWED_HEADERS",
				"Content-Type,Authorization,X-Correlation-ID,X-API-Key",
			),
		),
		CORSMaxAge: config.GetEnvInt("DATAENGINE_CORS_MAX_AGE", defaultCORSMaxAge),
	}
}

// Address returns the listen address. IPv6 hosts are bracketed.
func (c *ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ToCORSConfig returns the CORS part of the configuration.
func (c *ServerConfig) ToCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowedOrigins: c.CORSAllowedOrigins,
		AllowedMethods: c.CORSAllowedMethods,
		AllowedHeaders: c.CORSAllowedHeaders,
		MaxAge:         c.CORSMaxAge,
	}
}

func (c *CORSConfig) GetAllowedOrigins() []string { return c.AllowedOrigins }
func (c *CORSConfig) GetAllowedMethods() []string { return c.AllowedMethods }
func (c *CORSConfig) GetAllowedHeaders() []string { return c.AllowedHeaders }
func (c *CORSConfig) GetMaxAge() int              { return c.MaxAge }

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > maxPort {
		return fmt.Errorf("%w: %d, must be between 1 and %d", ErrInvalidPort, c.Port, maxPort)
	}

	if c.Host == "" {
		return ErrEmptyHost
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidReadTimeout, c.ReadTimeout)
	}

	if c.WriteTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidWriteTimeout, c.WriteTimeout)
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidShutdownTimeout, c.ShutdownTimeout)
	}

	if c.MaxRequestSize <= 0 {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidMaxRequestSize, c.MaxRequestSize)
	}

	if c.CORSMaxAge < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidCORSMaxAge, c.CORSMaxAge)
	}

	return validateOrigins(c.CORSAllowedOrigins)
}

// validateOrigins accepts either the lone wildcard or a list of bare origins.
func validateOrigins(origins []string) error {
	if slices.Contains(origins, "*") {
		if len(origins) > 1 {
			return fmt.Errorf("%w: \"*\" cannot be combined with other origins", ErrInvalidCORSOrigin)
		}

		return nil
	}

	for _, origin := range origins {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" || (u.Path != "" && u.Path != "/") || u.RawQuery != "" {
			return fmt.Errorf("%w: %q", ErrInvalidCORSOrigin, origin)
		}
	}

	return nil
}
