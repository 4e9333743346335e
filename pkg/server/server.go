// Package server provides the intuitiond HTTP surface.
//
// The daemon exposes observability endpoints only: GET /health and
// GET /metrics. Decisions are made in process through the engine, so
// there is no domain API here.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Config holds HTTP server settings.
type Config struct {
	Port            int
	ShutdownTimeout time.Duration
	ServiceName     string
}

// Server hosts the daemon's health and metrics endpoints.
type Server struct {
	echo   *echo.Echo
	logger *zap.Logger
	config Config
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// NewServer builds the echo server with recovery, request IDs and
// request logging, and registers the observability routes.
func NewServer(cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("server")
	if cfg.ServiceName == "" {
		cfg.ServiceName = "intuitiond"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))

	s := &Server{
		echo:   e,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: s.config.ServiceName,
	})
}

// requestLogger emits one line per request after the handler runs.
func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	}
}

// Start runs the server and blocks until ctx is cancelled or the
// listener fails. On cancellation it shuts down gracefully within the
// configured timeout and returns http.ErrServerClosed.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("starting server: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		s.logger.Info("shutting down http server")
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}

		return http.ErrServerClosed
	}
}
