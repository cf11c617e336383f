package middleware

import (
	"time"

	"github.com/correlator-io/dataengine/internal/config"
)

// Config holds rate limiter configuration.
//
// Rate limits specify requests per second (RPS) for three tiers:
//   - Global: Applied to all requests
//   - Per-client: Applied to authenticated requests
//   - Unauthenticated: Applied to requests without a client ID
//
// Burst capacity allows temporary bursts above the sustained rate.
// Burst fields left at 0 are computed as 2 × rate.
type Config struct {
	Enabled bool

	GlobalRPS int // Default: 100
	ClientRPS int // Default: 50
	UnAuthRPS int // Default: 10

	GlobalBurst int
	ClientBurst int
	UnAuthBurst int

	CleanupInterval time.Duration // Default: 5 minutes
	IdleTimeout     time.Duration // Default: 1 hour
	MaxClients      int           // Default: 100
}

// LoadConfig loads rate limiter config from environment variables with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		Enabled: config.GetEnvBool("DATAENGINE_RATE_LIMIT_ENABLED", true),

		GlobalRPS: config.GetEnvInt("DATAENGINE_GLOBAL_RPS", defaultGlobalRPS),
		ClientRPS: config.GetEnvInt("DATAENGINE_CLIENT_RPS", defaultClientRPS),
		UnAuthRPS: config.GetEnvInt("DATAENGINE_UNAUTH_RPS", defaultUnAuthRPS),

		GlobalBurst: config.GetEnvInt("DATAENGINE_GLOBAL_BURST", 0),
		ClientBurst: config.GetEnvInt("DATAENGINE_CLIENT_BURST", 0),
		UnAuthBurst: config.GetEnvInt("DATAENGINE_UNAUTH_BURST", 0),

		CleanupInterval: config.GetEnvDuration(
			"DATAENGINE_RATE_LIMIT_CLEANUP_INTERVAL", rateLimiterCleanupInterval,
		),
		IdleTimeout: config.GetEnvDuration("DATAENGINE_RATE_LIMIT_IDLE_TIMEOUT", rateLimiterIdleTimeout),
		MaxClients:  config.GetEnvInt("DATAENGINE_RATE_LIMIT_MAX_CLIENTS", maxClients),
	}
}
