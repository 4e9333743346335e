package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/leaflinelabs/intuition/internal/agentbus"
	"github.com/leaflinelabs/intuition/internal/config"
	"github.com/leaflinelabs/intuition/internal/docstore"
	"github.com/leaflinelabs/intuition/internal/dreamcycle"
	"github.com/leaflinelabs/intuition/internal/eventlog"
	"github.com/leaflinelabs/intuition/internal/heuristics"
	"github.com/leaflinelabs/intuition/internal/logging"
	"github.com/leaflinelabs/intuition/internal/memory"
	"github.com/leaflinelabs/intuition/internal/outcomes"
	"github.com/leaflinelabs/intuition/internal/patterns"
	"github.com/leaflinelabs/intuition/internal/starterpack"
	"github.com/leaflinelabs/intuition/internal/tenant"
)

// app bundles the wired services every subcommand shares. Only serve
// adds telemetry, the scheduler, and the HTTP server on top.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  docstore.Store
	nats   *nats.Conn

	events     *eventlog.Service
	heuristics *heuristics.Service
	patterns   *patterns.Service
	memories   *memory.Service
	outcomes   *outcomes.Service
	bus        *agentbus.Service
	starter    *starterpack.Service
	tenants    *tenant.Registry
	dream      *dreamcycle.Service
}

// newApp loads configuration and wires every service against the store.
// Callers own the returned app and must Close it.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	if err := a.wire(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	switch cfg.Store.Driver {
	case "memory":
		a.store = docstore.NewMemoryStore()
	default: // sqlite
		store, err := docstore.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("opening store at %s: %w", cfg.Store.Path, err)
		}
		a.store = store
	}

	events, err := eventlog.NewService(a.store, logger,
		eventlog.WithBatchSize(cfg.EventLog.BatchSize),
		eventlog.WithFlushInterval(cfg.EventLog.FlushInterval),
		eventlog.WithFlushTimeout(cfg.EventLog.FlushTimeout),
	)
	if err != nil {
		return fmt.Errorf("building event log: %w", err)
	}
	a.events = events

	patternSvc, err := patterns.NewService(a.store, logger)
	if err != nil {
		return fmt.Errorf("building pattern service: %w", err)
	}
	a.patterns = patternSvc

	memories, err := memory.NewService(a.store, patternSvc, logger)
	if err != nil {
		return fmt.Errorf("building memory service: %w", err)
	}
	a.memories = memories

	heuristicSvc, err := heuristics.NewService(a.store, logger,
		heuristics.WithCache(heuristics.NewTTLCache(cfg.Heuristics.CacheSize, cfg.Heuristics.CacheTTL)),
	)
	if err != nil {
		return fmt.Errorf("building heuristic service: %w", err)
	}
	a.heuristics = heuristicSvc

	outcomeSvc, err := outcomes.NewService(a.store, heuristicSvc, logger)
	if err != nil {
		return fmt.Errorf("building outcome service: %w", err)
	}
	a.outcomes = outcomeSvc

	var busOpts []agentbus.Option
	if cfg.Bus.NATSURL != "" {
		nc, err := nats.Connect(cfg.Bus.NATSURL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(1*time.Second),
		)
		if err != nil {
			return fmt.Errorf("connecting to NATS at %s: %w", cfg.Bus.NATSURL, err)
		}
		a.nats = nc

		notifier, err := agentbus.NewNATSNotifier(nc)
		if err != nil {
			return fmt.Errorf("building bus notifier: %w", err)
		}
		busOpts = append(busOpts, agentbus.WithNotifier(notifier))
		logger.Info("bus notifier connected", zap.String("url", cfg.Bus.NATSURL))
	}

	bus, err := agentbus.NewService(a.store, logger, busOpts...)
	if err != nil {
		return fmt.Errorf("building agent bus: %w", err)
	}
	a.bus = bus

	starterSvc, err := starterpack.NewService(a.store, heuristicSvc, patternSvc, logger)
	if err != nil {
		return fmt.Errorf("building starter pack service: %w", err)
	}
	a.starter = starterSvc

	tenants, err := tenant.NewRegistry(a.store, logger)
	if err != nil {
		return fmt.Errorf("building tenant registry: %w", err)
	}
	a.tenants = tenants

	dream, err := dreamcycle.NewService(dreamcycle.Deps{
		Store:     a.store,
		Events:    events,
		Memories:  memories,
		Discovery: patternSvc,
		Outcomes:  outcomeSvc,
		Bus:       bus,
		Tenants:   tenants,
	}, logger,
		dreamcycle.WithRetention(cfg.DreamCycle.Retention),
		dreamcycle.WithArchiveLimit(cfg.DreamCycle.ArchiveLimit),
		dreamcycle.WithTenantPacing(cfg.DreamCycle.TenantPacing),
	)
	if err != nil {
		return fmt.Errorf("building dream cycle: %w", err)
	}
	a.dream = dream

	return nil
}

// Close flushes the event writer and releases every resource wire opened.
func (a *app) Close(ctx context.Context) {
	if a.events != nil {
		if err := a.events.Close(ctx); err != nil {
			a.logger.Warn("closing event writer", zap.Error(err))
		}
	}
	if a.nats != nil {
		a.nats.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing store", zap.Error(err))
		}
	}
	_ = logging.Sync(a.logger)
}
