// Package server exposes crewd's HTTP status surface.
//
// The server carries the health endpoint, the Prometheus exposition at
// /metrics, and read-only run status backed by the status tracker. It
// shuts down gracefully when its context is cancelled.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/fyrsmithlabs/crewd/internal/monitor"
	"github.com/fyrsmithlabs/crewd/internal/status"
)

// Config configures the HTTP server.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// Server is the HTTP status server.
type Server struct {
	cfg     Config
	echo    *echo.Echo
	tracker *status.Tracker
}

// HealthResponse is the JSON body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// New creates the server and registers its routes. The tracker is
// required; metrics may be nil, which omits /metrics.
func New(cfg Config, tracker *status.Tracker, metrics *monitor.Metrics) (*Server, error) {
	if tracker == nil {
		return nil, errors.New("status tracker is required")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{cfg: cfg, echo: e, tracker: tracker}

	e.GET("/health", s.handleHealth)
	e.GET("/runs", s.handleRuns)
	e.GET("/runs/:id", s.handleRun)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}

	return s, nil
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Service: "crewd"})
}

func (s *Server) handleRuns(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{"runs": s.tracker.Runs()})
}

func (s *Server) handleRun(c echo.Context) error {
	snap, ok := s.tracker.Snapshot(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown run")
	}
	return c.JSON(http.StatusOK, snap)
}

// Start listens until ctx is cancelled, then shuts down gracefully.
// Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Echo returns the underlying router for registering extra routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
