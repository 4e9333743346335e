// Package config provides configuration loading for intuitiond.
//
// Configuration merges three layers in ascending precedence: hardcoded
// defaults, a YAML file, and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/leaflinelabs/intuition/internal/dreamcycle"
	"github.com/leaflinelabs/intuition/internal/eventlog"
	"github.com/leaflinelabs/intuition/internal/heuristics"
)

// Config holds the complete intuitiond configuration.
type Config struct {
	Server     ServerConfig
	Logging    LoggingConfig
	Telemetry  TelemetryConfig
	Store      StoreConfig
	EventLog   EventLogConfig
	Heuristics HeuristicsConfig
	Bus        BusConfig
	DreamCycle DreamCycleConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig selects the daemon's log encoder and level.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug | info | warn | error
	Format string `koanf:"format"` // json | console
}

// TelemetryConfig holds OTLP trace export configuration. Disabled by
// default; a zero SampleRatio takes the default of 1.0.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	ServiceName string  `koanf:"service_name"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"` // grpc | http
	SampleRatio float64 `koanf:"sample_ratio"`
	Insecure    bool    `koanf:"insecure"`
}

// StoreConfig selects the document store backing every service.
type StoreConfig struct {
	Driver string `koanf:"driver"` // sqlite | memory
	Path   string `koanf:"path"`
}

// EventLogConfig tunes the batching event writer.
type EventLogConfig struct {
	BatchSize     int           `koanf:"batch_size"`
	FlushInterval time.Duration `koanf:"flush_interval"`
	FlushTimeout  time.Duration `koanf:"flush_timeout"`
}

// HeuristicsConfig tunes the per-tenant rule cache.
type HeuristicsConfig struct {
	CacheSize int           `koanf:"cache_size"`
	CacheTTL  time.Duration `koanf:"cache_ttl"`
}

// BusConfig holds the optional NATS fan-out for the agent message bus. An
// empty URL leaves the bus store-only.
type BusConfig struct {
	NATSURL string `koanf:"nats_url"`
}

// DreamCycleConfig tunes the nightly cycle and its scheduler.
type DreamCycleConfig struct {
	Schedule     string        `koanf:"schedule"`
	RunTimeout   time.Duration `koanf:"run_timeout"`
	Retention    time.Duration `koanf:"retention"`
	TenantPacing time.Duration `koanf:"tenant_pacing"`
	ArchiveLimit int           `koanf:"archive_limit"`
}

// Default returns the configuration the daemon runs with when no file or
// environment override is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills zero values after unmarshalling. Tunables shared with
// a service package reuse that package's default so the two never drift.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "intuitiond"
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SampleRatio == 0 {
		cfg.Telemetry.SampleRatio = 1.0
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "intuition.db"
	}

	if cfg.EventLog.BatchSize == 0 {
		cfg.EventLog.BatchSize = eventlog.DefaultBatchSize
	}
	if cfg.EventLog.FlushInterval == 0 {
		cfg.EventLog.FlushInterval = eventlog.DefaultFlushInterval
	}
	if cfg.EventLog.FlushTimeout == 0 {
		cfg.EventLog.FlushTimeout = eventlog.DefaultFlushTimeout
	}

	if cfg.Heuristics.CacheSize == 0 {
		cfg.Heuristics.CacheSize = heuristics.DefaultCacheSize
	}
	if cfg.Heuristics.CacheTTL == 0 {
		cfg.Heuristics.CacheTTL = heuristics.DefaultCacheTTL
	}

	if cfg.DreamCycle.Schedule == "" {
		cfg.DreamCycle.Schedule = dreamcycle.DefaultSchedule
	}
	if cfg.DreamCycle.RunTimeout == 0 {
		cfg.DreamCycle.RunTimeout = dreamcycle.DefaultRunTimeout
	}
	if cfg.DreamCycle.Retention == 0 {
		cfg.DreamCycle.Retention = dreamcycle.DefaultRetention
	}
	if cfg.DreamCycle.TenantPacing == 0 {
		cfg.DreamCycle.TenantPacing = dreamcycle.DefaultTenantPacing
	}
	if cfg.DreamCycle.ArchiveLimit == 0 {
		cfg.DreamCycle.ArchiveLimit = eventlog.DefaultArchiveLimit
	}
}

// Validate checks the merged configuration before the daemon starts.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.ServiceName == "" {
			return errors.New("service name required when telemetry is enabled")
		}
		if c.Telemetry.Endpoint == "" {
			return errors.New("telemetry endpoint required when telemetry is enabled")
		}
	}
	switch c.Telemetry.Protocol {
	case "grpc", "http":
	default:
		return fmt.Errorf("invalid telemetry protocol: %q (grpc or http)", c.Telemetry.Protocol)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("invalid telemetry sample ratio: %v (must be 0-1)", c.Telemetry.SampleRatio)
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			return errors.New("store path required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid store driver: %q (sqlite or memory)", c.Store.Driver)
	}

	if c.EventLog.BatchSize < 1 {
		return fmt.Errorf("invalid event batch size: %d", c.EventLog.BatchSize)
	}
	if c.EventLog.FlushInterval <= 0 {
		return errors.New("event flush interval must be positive")
	}
	if c.EventLog.FlushTimeout <= 0 {
		return errors.New("event flush timeout must be positive")
	}

	if c.Heuristics.CacheSize < 1 {
		return fmt.Errorf("invalid heuristics cache size: %d", c.Heuristics.CacheSize)
	}
	if c.Heuristics.CacheTTL <= 0 {
		return errors.New("heuristics cache TTL must be positive")
	}

	if c.DreamCycle.Schedule == "" {
		return errors.New("dream cycle schedule is required")
	}
	if c.DreamCycle.RunTimeout <= 0 {
		return errors.New("dream cycle run timeout must be positive")
	}
	if c.DreamCycle.Retention <= 0 {
		return errors.New("dream cycle retention must be positive")
	}
	if c.DreamCycle.TenantPacing < 0 {
		return errors.New("dream cycle tenant pacing cannot be negative")
	}
	if c.DreamCycle.ArchiveLimit < 1 {
		return fmt.Errorf("invalid dream cycle archive limit: %d", c.DreamCycle.ArchiveLimit)
	}

	return nil
}
