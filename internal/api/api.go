// Package api provides the HTTP server for MemberFlow.
//
// It exposes the conversational flows, generated artifacts, the document
// catalog, profiles and checklists as JSON endpoints behind identity and
// membership checks.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BTreeMap/MemberFlow/internal/flow"
	"github.com/BTreeMap/MemberFlow/internal/metrics"
	"github.com/BTreeMap/MemberFlow/internal/store"
)

// Default server settings.
const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	// maxRequestBodyBytes caps JSON request bodies.
	maxRequestBodyBytes = 1 << 20
)

// Opts holds configuration for the API server.
type Opts struct {
	Addr            string
	ShutdownTimeout time.Duration
	Metrics         *metrics.Metrics
	// TokenSecret switches identity from the trusted headers to HS256 bearer tokens.
	TokenSecret string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ShutdownTimeout = d }
}

// WithMetrics enables request metrics and mounts them at /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Opts) { o.Metrics = m }
}

// WithTokenSecret requires callers to present bearer tokens signed with secret.
func WithTokenSecret(secret string) Option {
	return func(o *Opts) { o.TokenSecret = secret }
}

// Stores is the persistence the handlers use directly.
type Stores interface {
	store.ProfileStore
	store.DocumentCatalog
	store.ChecklistStore
}

// Server wires the flow engine and stores to HTTP handlers.
type Server struct {
	engine     *flow.Engine
	library    *flow.Library
	st         Stores
	membership Membership
	opts       Opts
}

// NewServer creates a Server. membership may be nil to admit every identified subject.
func NewServer(engine *flow.Engine, library *flow.Library, st Stores, membership Membership, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, ShutdownTimeout: DefaultShutdownTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if membership == nil {
		membership = OpenMembership{}
	}
	return &Server{engine: engine, library: library, st: st, membership: membership, opts: cfg}
}

// Router builds the HTTP handler with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(requestLogger)
	if s.opts.Metrics != nil {
		r.Use(s.opts.Metrics.Middleware)
		r.Handle("/metrics", s.opts.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(s.identity())

		r.Get("/profile", s.getProfileHandler)
		r.Put("/profile", s.putProfileHandler)

		r.Group(func(r chi.Router) {
			r.Use(RequireMembership(s.membership))

			r.Get("/flows", s.listFlowsHandler)
			r.Post("/flows/{flowType}/start", s.startFlowHandler)
			r.Post("/flows/{flowType}/answer", s.answerHandler)

			r.Get("/artifacts/{handle}/download", s.downloadHandler)
			r.Get("/artifacts/{handle}/file", s.fileHandler)
			r.Delete("/results/{kind}", s.clearResultsHandler)

			r.Get("/documents", s.listDocumentsHandler)
			r.Post("/documents", s.saveDocumentHandler)
			r.Get("/documents/{id}", s.getDocumentHandler)
			r.Delete("/documents/{id}", s.deleteDocumentHandler)

			r.Get("/checklists/{type}", s.getChecklistHandler)
			r.Put("/checklists/{type}/items/{itemID}", s.setChecklistItemHandler)
		})
	})
	return r
}

func (s *Server) identity() func(http.Handler) http.Handler {
	if s.opts.TokenSecret != "" {
		return BearerIdentity(NewTokenVerifier(s.opts.TokenSecret))
	}
	return Identity
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Completion requests may wait on the AI backend.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	slog.Info("Server.Run: server stopped")
	return nil
}

// requestLogger logs each request through slog once it completes.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"requestID", chiMiddleware.GetReqID(r.Context()))
	})
}
