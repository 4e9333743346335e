package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leaflinelabs/intuition/internal/dreamcycle"
	"github.com/leaflinelabs/intuition/internal/telemetry"
	"github.com/leaflinelabs/intuition/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the intuition daemon",
	Long: `Start the daemon: the nightly dream cycle scheduler plus /health and
/metrics endpoints. The process runs until SIGINT or SIGTERM, then shuts
down gracefully within the configured timeout.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	logger := a.logger

	prov, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        a.cfg.Telemetry.Enabled,
		ServiceName:    a.cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Endpoint:       a.cfg.Telemetry.Endpoint,
		Protocol:       a.cfg.Telemetry.Protocol,
		SampleRatio:    a.cfg.Telemetry.SampleRatio,
		Insecure:       a.cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := prov.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	sched, err := dreamcycle.NewScheduler(a.dream, logger,
		dreamcycle.WithSchedule(a.cfg.DreamCycle.Schedule),
		dreamcycle.WithRunTimeout(a.cfg.DreamCycle.RunTimeout),
	)
	if err != nil {
		return fmt.Errorf("building scheduler: %w", err)
	}
	if err := sched.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			logger.Warn("stopping scheduler", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting intuitiond",
		zap.String("version", version),
		zap.Int("port", a.cfg.Server.Port),
		zap.String("store_driver", a.cfg.Store.Driver),
		zap.String("dream_schedule", a.cfg.DreamCycle.Schedule),
		zap.Bool("bus_notifier", a.nats != nil),
		zap.Bool("telemetry", a.cfg.Telemetry.Enabled))

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
		ServiceName:     a.cfg.Telemetry.ServiceName,
	}, logger)

	err = srv.Start(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		logger.Info("shutdown complete")
		return nil
	}
	return err
}
