package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaflinelabs/intuition/internal/dreamcycle"
	"github.com/leaflinelabs/intuition/internal/eventlog"
	"github.com/leaflinelabs/intuition/internal/heuristics"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "intuitiond", cfg.Telemetry.ServiceName)
	assert.Equal(t, "grpc", cfg.Telemetry.Protocol)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRatio)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "intuition.db", cfg.Store.Path)
	assert.Equal(t, eventlog.DefaultBatchSize, cfg.EventLog.BatchSize)
	assert.Equal(t, eventlog.DefaultFlushInterval, cfg.EventLog.FlushInterval)
	assert.Equal(t, heuristics.DefaultCacheSize, cfg.Heuristics.CacheSize)
	assert.Equal(t, heuristics.DefaultCacheTTL, cfg.Heuristics.CacheTTL)
	assert.Empty(t, cfg.Bus.NATSURL)
	assert.Equal(t, dreamcycle.DefaultSchedule, cfg.DreamCycle.Schedule)
	assert.Equal(t, dreamcycle.DefaultRetention, cfg.DreamCycle.Retention)
	assert.Equal(t, eventlog.DefaultArchiveLimit, cfg.DreamCycle.ArchiveLimit)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults pass",
			mutate: func(*Config) {},
		},
		{
			name:    "port too small",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "port too large",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "negative shutdown timeout",
			mutate:  func(c *Config) { c.Server.ShutdownTimeout = -time.Second },
			wantErr: "shutdown timeout",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid logging level",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "invalid logging format",
		},
		{
			name: "telemetry enabled without endpoint",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.Endpoint = ""
			},
			wantErr: "telemetry endpoint required",
		},
		{
			name:    "unknown telemetry protocol",
			mutate:  func(c *Config) { c.Telemetry.Protocol = "udp" },
			wantErr: "invalid telemetry protocol",
		},
		{
			name:    "sample ratio out of range",
			mutate:  func(c *Config) { c.Telemetry.SampleRatio = 1.5 },
			wantErr: "invalid telemetry sample ratio",
		},
		{
			name:    "unknown store driver",
			mutate:  func(c *Config) { c.Store.Driver = "postgres" },
			wantErr: "invalid store driver",
		},
		{
			name: "sqlite without path",
			mutate: func(c *Config) {
				c.Store.Driver = "sqlite"
				c.Store.Path = ""
			},
			wantErr: "store path required",
		},
		{
			name: "memory driver needs no path",
			mutate: func(c *Config) {
				c.Store.Driver = "memory"
				c.Store.Path = ""
			},
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.EventLog.BatchSize = 0 },
			wantErr: "invalid event batch size",
		},
		{
			name:    "zero cache size",
			mutate:  func(c *Config) { c.Heuristics.CacheSize = 0 },
			wantErr: "invalid heuristics cache size",
		},
		{
			name:    "empty schedule",
			mutate:  func(c *Config) { c.DreamCycle.Schedule = "" },
			wantErr: "dream cycle schedule",
		},
		{
			name:    "negative pacing",
			mutate:  func(c *Config) { c.DreamCycle.TenantPacing = -time.Second },
			wantErr: "tenant pacing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
