// Package server exposes the redaction pipeline over HTTP.
//
// Endpoints:
//
//	POST /v1/redact        - redact a transcript (tag or reversible mode)
//	POST /v1/restore       - restore placeholders using a mapping or a stored invocation ID
//	POST /v1/note          - reversible redact + cloud note draft + local restore
//	GET  /v1/audit/recent  - recent invocation metrics from the audit store
//	GET  /healthz, /readyz - liveness and readiness probes
//	GET  /metrics          - Prometheus metrics
//
// Request and response bodies carry transcript text and must never be logged;
// the observe middleware records only methods, routes, statuses, and timings.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/halcyonhealth/phiredact/internal/audit"
	"github.com/halcyonhealth/phiredact/internal/config"
	"github.com/halcyonhealth/phiredact/internal/health"
	"github.com/halcyonhealth/phiredact/internal/mapstore"
	"github.com/halcyonhealth/phiredact/internal/notegen"
	"github.com/halcyonhealth/phiredact/internal/observe"
	"github.com/halcyonhealth/phiredact/internal/redact"
)

// shutdownGrace is how long in-flight requests get to finish on shutdown.
const shutdownGrace = 10 * time.Second

// Server wires the pipeline, stores, and probes into an HTTP API.
type Server struct {
	pipeline    *redact.Pipeline
	defaultMode config.Mode
	maps        mapstore.Store
	auditor     audit.Store
	drafter     notegen.Drafter
	health      *health.Handler
	metrics     *observe.Metrics
	logger      *slog.Logger
}

// Option is a functional option for [Server].
type Option func(*Server)

// WithMapStore sets the restoration mapping store. Default: in-memory.
func WithMapStore(s mapstore.Store) Option {
	return func(srv *Server) { srv.maps = s }
}

// WithAuditStore sets the invocation audit sink. Default: discard.
func WithAuditStore(s audit.Store) Option {
	return func(srv *Server) { srv.auditor = s }
}

// WithDrafter enables the /v1/note endpoint.
func WithDrafter(d notegen.Drafter) Option {
	return func(srv *Server) { srv.drafter = d }
}

// WithHealth sets the health handler. Default: probes with no checkers.
func WithHealth(h *health.Handler) Option {
	return func(srv *Server) { srv.health = h }
}

// WithObserveMetrics sets the OTel metrics sink.
func WithObserveMetrics(m *observe.Metrics) Option {
	return func(srv *Server) { srv.metrics = m }
}

// WithLogger sets the server logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) { srv.logger = l }
}

// WithDefaultMode sets the mode used when a redact request omits one.
// Default: tag.
func WithDefaultMode(m config.Mode) Option {
	return func(srv *Server) { srv.defaultMode = m }
}

// New creates a [Server] around pipeline.
func New(pipeline *redact.Pipeline, opts ...Option) *Server {
	srv := &Server{
		pipeline:    pipeline,
		defaultMode: config.ModeTag,
		maps:        mapstore.NewMemory(),
		auditor:     audit.NoopStore{},
		health:      health.New(),
		metrics:     observe.DefaultMetrics(),
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(srv)
	}
	return srv
}

// Routes returns the full route table wrapped in the observability
// middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/redact", s.handleRedact)
	mux.HandleFunc("POST /v1/restore", s.handleRestore)
	mux.HandleFunc("POST /v1/note", s.handleNote)
	mux.HandleFunc("GET /v1/audit/recent", s.handleAuditRecent)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)
	return observe.Middleware(s.metrics)(mux)
}

// Run serves the API on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("http server listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		s.logger.Info("http server shutting down")
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
