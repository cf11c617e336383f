package api

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerConfig(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("defaults", func(t *testing.T) {
		cfg := LoadServerConfig()

		assert.Equal(t, defaultPort, cfg.Port)
		assert.Equal(t, defaultHost, cfg.Host)
		assert.Equal(t, defaultTimeout, cfg.ReadTimeout)
		assert.Equal(t, defaultMaxRequestSize, cfg.MaxRequestSize)
		assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
		assert.Equal(t, "0.0.0.0:8080", cfg.Address())
		require.NoError(t, cfg.Validate())
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("DATAENGINE_SERVER_PORT", "9443")
		t.Setenv("DATAENGINE_SERVER_READ_TIMEOUT", "5s")
		t.Setenv("DATAENGINE_LOG_LEVEL", "debug")
		t.Setenv("DATAENGINE_CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

		cfg := LoadServerConfig()

		assert.Equal(t, 9443, cfg.Port)
		assert.Equal(t, 5*time.Second, cfg.ReadTimeout)
		assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
		assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.ToCORSConfig().GetAllowedOrigins())
	})
}

func TestServerConfigValidate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	testCases := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr error
	}{
		{"port too low", func(c *ServerConfig) { c.Port = 0 }, ErrInvalidPort},
		{"port too high", func(c *ServerConfig) { c.Port = 70000 }, ErrInvalidPort},
		{"empty host", func(c *ServerConfig) { c.Host = "" }, ErrEmptyHost},
		{"read timeout", func(c *ServerConfig) { c.ReadTimeout = 0 }, ErrInvalidReadTimeout},
		{"write timeout", func(c *ServerConfig) { c.WriteTimeout = -time.Second }, ErrInvalidWriteTimeout},
		{"shutdown timeout", func(c *ServerConfig) { c.ShutdownTimeout = 0 }, ErrInvalidShutdownTimeout},
		{"max request size", func(c *ServerConfig) { c.MaxRequestSize = 0 }, ErrInvalidMaxRequestSize},
		{"negative cors max age", func(c *ServerConfig) { c.CORSMaxAge = -1 }, ErrInvalidCORSMaxAge},
		{
			"wildcard mixed with origins",
			func(c *ServerConfig) { c.CORSAllowedOrigins = []string{"*", "https://a.example.com"} },
			ErrInvalidCORSOrigin,
		},
		{
			"origin with path",
			func(c *ServerConfig) { c.CORSAllowedOrigins = []string{"https://a.example.com/app"} },
			ErrInvalidCORSOrigin,
		},
		{"bare host", func(c *ServerConfig) { c.CORSAllowedOrigins = []string{"a.example.com"} }, ErrInvalidCORSOrigin},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testServerConfig()
			tc.mutate(cfg)

			require.ErrorIs(t, cfg.Validate(), tc.wantErr)
		})
	}

	t.Run("explicit origins", func(t *testing.T) {
		cfg := testServerConfig()
		cfg.CORSAllowedOrigins = []string{"https://a.example.com", "http://localhost:3000"}

		require.NoError(t, cfg.Validate())
	})

	t.Run("ipv6 address", func(t *testing.T) {
		cfg := testServerConfig()
		cfg.Host = "::1"

		assert.Equal(t, "[::1]:8080", cfg.Address())
	})
}
