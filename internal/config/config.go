// Package config reads the server configuration from environment variables,
// applying defaults.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates the demo server's configuration.
type Config struct {
	HTTPAddr string
	Storage  StorageConfig
	Events   EventsConfig
	Logging  LoggingConfig
	Protocol ProtocolConfig
}

// StorageConfig selects and parameterizes the loan store backend.
type StorageConfig struct {
	Backend     string // memory|postgres
	PostgresDSN string
}

// EventsConfig selects the event sink.
type EventsConfig struct {
	Sink         string // log|kafka
	KafkaBrokers []string
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level       string
	Development bool
}

// ProtocolConfig overrides the protocol's time parameters, mostly useful for
// local experimentation.
type ProtocolConfig struct {
	GracePeriod      time.Duration
	DefaultThreshold time.Duration
	LiquidationDelay time.Duration
}

const (
	defaultHTTPAddr = ":8080"
	defaultBackend  = "memory"
	defaultSink     = "log"
	defaultLogLevel = "info"
)

// Load reads configuration from the environment.
func Load() Config {
	return Config{
		HTTPAddr: valueOrDefault("HTTP_ADDR", defaultHTTPAddr),
		Storage: StorageConfig{
			Backend:     valueOrDefault("STORAGE_BACKEND", defaultBackend),
			PostgresDSN: os.Getenv("POSTGRES_DSN"),
		},
		Events: EventsConfig{
			Sink:         valueOrDefault("EVENT_SINK", defaultSink),
			KafkaBrokers: splitCSV(os.Getenv("KAFKA_BROKERS")),
		},
		Logging: LoggingConfig{
			Level:       valueOrDefault("LOG_LEVEL", defaultLogLevel),
			Development: parseBoolWithDefault("LOG_DEVELOPMENT", false),
		},
		Protocol: ProtocolConfig{
			GracePeriod:      parseDurationWithDefault("GRACE_PERIOD", 0),
			DefaultThreshold: parseDurationWithDefault("DEFAULT_THRESHOLD", 0),
			LiquidationDelay: parseDurationWithDefault("LIQUIDATION_DELAY", 0),
		},
	}
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolWithDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func parseDurationWithDefault(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
