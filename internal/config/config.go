// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
)

// Config holds all node configuration parsed from environment variables.
//
// Maelstrom launches the binary without arguments, so the environment is the
// only configuration surface.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`
	// PartitionWidth is the number of consecutive keys sharing one partition.
	// Wider partitions mean fewer hot spots but more CAS contention per spot.
	PartitionWidth uint64 `env:"PARTITION_WIDTH" envDefault:"20" validate:"gte=1"`
	// LinKVService is the Maelstrom service id of the linearizable KV store.
	LinKVService string `env:"LIN_KV_SERVICE" envDefault:"lin-kv" validate:"required"`
	// MetricsPort exposes /metrics on the given port; 0 disables the listener.
	MetricsPort     int    `env:"METRICS_PORT" envDefault:"0" validate:"gte=0,lte=65535"`
	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"maelstrom-txn"`
}

// Load parses environment variables into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// IsDev reports whether the node is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the node is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the node is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }
