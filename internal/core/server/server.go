package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/h3-refcat/internal/core/config"
	"github.com/mohammed-shakir/h3-refcat/internal/core/health"
	middleware "github.com/mohammed-shakir/h3-refcat/internal/core/middleware"
	"github.com/mohammed-shakir/h3-refcat/internal/core/router"
)

type Deps struct {
	Loader router.Loader
	Ready  health.ReadinessReporter
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// NewRouter wires the middleware chain and every route.
func NewRouter(cfg config.Config, logger *slog.Logger, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.CORS(cfg.CORSOrigins...))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/healthz", health.Liveness())
	if d.Ready != nil {
		r.Get("/readyz", health.Readiness(d.Ready))
	}
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}
	r.Get(router.RouteCircle, router.HandleCircle(logger, d.Loader))
	r.Get(router.RouteBox, router.HandleBox(logger, d.Loader))
	return r
}

// New returns an http.Server for h with the refcatd timeouts.
func New(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Run serves the refcat API on cfg.Addr until ctx is done.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, d Deps) error {
	return Serve(ctx, New(cfg.Addr, NewRouter(cfg, logger, d)), logger)
}

// Serve runs srv until ctx is done, then drains it for up to 10s.
func Serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %s: %w", srv.Addr, err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
