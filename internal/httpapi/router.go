// Package httpapi serves the engine's read-only queries over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/huangsam/subpulse/core"
	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/internal/logging"
	"github.com/huangsam/subpulse/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// requestTimeout bounds a single API request, forecasts included.
const requestTimeout = 2 * time.Minute

// Server holds the engine behind the API.
type Server struct {
	eng *core.Engine
	cfg *contract.Config
}

// NewServer returns an API server over eng. cfg supplies defaults for omitted parameters.
func NewServer(eng *core.Engine, cfg *contract.Config) *Server {
	return &Server{eng: eng, cfg: cfg}
}

// Router builds the chi router with every API route and /metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(instrument)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(requestTimeout))

		r.Get("/series", s.handleSeries)
		r.Get("/retention", s.handleRetention)
		r.Get("/retention/{cohort}", s.handleRetentionCurve)
		r.Get("/forecast", s.handleForecast)
		r.Get("/forecast/revenue", s.handleRevenue)
		r.Get("/forecast/growth", s.handleGrowth)
		r.Get("/churn", s.handleChurn)
		r.Get("/reports/volume", s.handleVolume)
		r.Get("/reports/durations", s.handleDurations)
		r.Get("/reports/conversions", s.handleConversions)
		r.Get("/cache", s.handleCacheStatus)
		r.Post("/refresh", s.handleRefresh)
	})
	return r
}

// instrument records request counts and latency per route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		logging.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("request served")
	})
}

// ListenAndServe serves the router on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", addr).Msg("http api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Serve opens the configured event source and serves the API on cfg.Addr.
func Serve(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error {
	eng, closeFn, err := core.OpenEngine(ctx, cfg, mgr)
	if err != nil {
		return err
	}
	defer closeFn()
	return NewServer(eng, cfg).ListenAndServe(ctx, cfg.Addr)
}
