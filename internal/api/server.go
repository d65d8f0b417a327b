// SPDX-License-Identifier: MIT

// Package api serves the read-only status surface: health, Prometheus
// metrics and per-warehouse queue state.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/querygate/internal/admission"
	"github.com/ManuGH/querygate/internal/api/middleware"
	xglog "github.com/ManuGH/querygate/internal/log"
	"github.com/ManuGH/querygate/internal/slot"
)

const shutdownTimeout = 5 * time.Second

// Registry is the admission state the API reports on.
type Registry interface {
	Stats() []admission.Stats
	Slots(warehouseID int64) ([]*slot.Slot, error)
}

// Config configures the status server.
type Config struct {
	ListenAddr string
	Version    string
	// RateLimitPerMinute limits requests per client IP; <= 0 uses the default.
	RateLimitPerMinute int
}

// Server is the HTTP status server.
type Server struct {
	cfg      Config
	registry Registry
	router   chi.Router
	logger   zerolog.Logger
	started  time.Time
	now      func() time.Time
}

// New builds a Server and its routes.
func New(cfg Config, registry Registry) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		logger:   xglog.WithComponent("api"),
		now:      time.Now,
	}
	s.started = s.now()
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:      true,
		EnableLogging:      true,
		RateLimitPerMinute: s.cfg.RateLimitPerMinute,
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) { writeNotFound(w) })

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/warehouses", s.handleWarehouses)
		r.Get("/warehouses/{id}", s.handleWarehouse)
		r.Get("/warehouses/{id}/slots", s.handleSlots)
	})
	return r
}

// Serve accepts connections on ln until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	s.logger.Info().
		Str(xglog.FieldEvent, "api.started").
		Str("addr", ln.Addr().String()).
		Msg("status server listening")

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info().Str(xglog.FieldEvent, "api.stopped").Msg("status server stopped")
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}
