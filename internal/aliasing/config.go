// Package aliasing maps the names engines report to canonical names.
//
// Several deployments of the same tool, or a tool renamed over time, may report under
// different external source names. Operators map those aliases to the qualified name of
// the registered engine, and may rewrite qualified names referenced across engines with
// patterns, in a YAML file.
package aliasing

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/correlator-io/dataengine/internal/config"
)

type (
	// Config holds alias configuration loaded from .dataengine.yaml.
	Config struct {
		// ExternalSourceAliases maps an alias to the canonical external source name.
		//nolint:tagliatelle // snake_case is intentional for YAML config files
		ExternalSourceAliases map[string]string `yaml:"external_source_aliases"`

		// QualifiedNamePatterns rewrite qualified names used as references
		// (lineage mapping ends, data flow ends, port delegation, parent processes).
		//nolint:tagliatelle // snake_case is intentional for YAML config files
		QualifiedNamePatterns []QualifiedNamePattern `yaml:"qualified_name_patterns"`
	}

	// QualifiedNamePattern rewrites qualified names matching Pattern into Canonical.
	// {var} captures up to the next "/" or "::", {var*} captures the rest.
	QualifiedNamePattern struct {
		Pattern   string `yaml:"pattern"`
		Canonical string `yaml:"canonical"`
	}
)

// DefaultConfigPath is the default location of the configuration file.
const DefaultConfigPath = ".dataengine.yaml"

// ConfigPathEnvVar overrides DefaultConfigPath.
const ConfigPathEnvVar = "DATAENGINE_CONFIG_PATH"

func emptyConfig() *Config {
	return &Config{ExternalSourceAliases: make(map[string]string)}
}

// LoadConfig loads alias configuration from a YAML file at path.
//
// Aliases are optional, so a missing, unreadable or invalid file yields an empty
// config and a log line instead of an error.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Config file not found, continuing without aliases",
				slog.String("path", path))
		} else {
			slog.Warn("Failed to read config file, continuing without aliases",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}

		return emptyConfig(), nil
	}

	if len(data) == 0 {
		return emptyConfig(), nil
	}

	cfg := emptyConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Warn("Failed to parse config file, continuing without aliases",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return emptyConfig(), nil
	}

	if cfg.ExternalSourceAliases == nil {
		cfg.ExternalSourceAliases = make(map[string]string)
	}

	return cfg, nil
}

// LoadConfigFromEnv loads config from DATAENGINE_CONFIG_PATH, defaulting to .dataengine.yaml.
func LoadConfigFromEnv() (*Config, error) {
	return LoadConfig(config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath))
}
