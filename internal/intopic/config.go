package intopic

import (
	"errors"
	"fmt"
	"time"

	"github.com/correlator-io/dataengine/internal/config"
)

const (
	defaultTopic    = "dataengine-in"
	defaultGroupID  = "dataengine"
	defaultMinBytes = 1
	defaultMaxBytes = 10 << 20
	defaultMaxWait  = 500 * time.Millisecond
)

var (
	// ErrNoBrokers is returned when the consumer is built without any broker address.
	ErrNoBrokers = errors.New("no kafka brokers configured")

	// ErrEmptyTopic is returned when the in topic name is empty.
	ErrEmptyTopic = errors.New("kafka topic cannot be empty")

	// ErrEmptyGroupID is returned when the consumer group is empty.
	ErrEmptyGroupID = errors.New("kafka consumer group cannot be empty")

	// ErrInvalidFetchSize is returned when MinBytes/MaxBytes are not a valid range.
	ErrInvalidFetchSize = errors.New("invalid kafka fetch size")
)

// Config holds in-topic consumer settings.
type Config struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration
}

// LoadConfig loads consumer settings from DATAENGINE_KAFKA_* environment variables.
// The consumer is disabled when DATAENGINE_KAFKA_BROKERS is empty.
func LoadConfig() *Config {
	return &Config{
		Brokers:  config.ParseCommaSeparatedList(config.GetEnvStr("DATAENGINE_KAFKA_BROKERS", "")),
		Topic:    config.GetEnvStr("DATAENGINE_KAFKA_TOPIC", defaultTopic),
		GroupID:  config.GetEnvStr("DATAENGINE_KAFKA_GROUP_ID", defaultGroupID),
		MinBytes: config.GetEnvInt("DATAENGINE_KAFKA_MIN_BYTES", defaultMinBytes),
		MaxBytes: config.GetEnvInt("DATAENGINE_KAFKA_MAX_BYTES", defaultMaxBytes),
		MaxWait:  config.GetEnvDuration("DATAENGINE_KAFKA_MAX_WAIT", defaultMaxWait),
	}
}

// Enabled reports whether any broker is configured.
func (c *Config) Enabled() bool {
	return len(c.Brokers) > 0
}

// Validate checks the configuration of an enabled consumer.
func (c *Config) Validate() error {
	if !c.Enabled() {
		return ErrNoBrokers
	}

	if c.Topic == "" {
		return ErrEmptyTopic
	}

	if c.GroupID == "" {
		return ErrEmptyGroupID
	}

	if c.MinBytes <= 0 || c.MaxBytes < c.MinBytes {
		return fmt.Errorf("%w: min=%d max=%d", ErrInvalidFetchSize, c.MinBytes, c.MaxBytes)
	}

	return nil
}
