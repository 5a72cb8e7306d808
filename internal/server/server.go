// Package server exposes the HTTP surface: tenant-resolving middleware for
// data-plane routes, the admin directory API, health, and metrics.
package server

import (
	"context"
	"net/http"

	"github.com/oriys/umbra/internal/elevate"
	"github.com/oriys/umbra/internal/logging"
	"github.com/oriys/umbra/internal/metrics"
	"github.com/oriys/umbra/internal/observability"
	"github.com/oriys/umbra/internal/resolver"
	"github.com/oriys/umbra/internal/store"
)

// Config carries the server's collaborators.
type Config struct {
	Store    *store.PostgresStore
	Resolver resolver.Resolver
	Lookup   resolver.Lookup
	Elevator *elevate.Manager

	// Invalidate is called after a directory mutation so lookup caches do
	// not serve stale records for the full TTL. Optional.
	Invalidate func(identifier string)
}

// Server owns the mux and route registration. Data-plane handlers are
// mounted by the caller under the tenant middleware; the admin surface is
// built in.
type Server struct {
	cfg Config
	mux *http.ServeMux
}

func New(cfg Config) *Server {
	s := &Server{cfg: cfg, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	admin := &AdminHandler{
		Store:      s.cfg.Store,
		Elevator:   s.cfg.Elevator,
		Invalidate: s.cfg.Invalidate,
	}
	admin.RegisterRoutes(s.mux)

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", metrics.Handler())
}

// Mount attaches a data-plane handler under the tenant middleware: every
// request below prefix runs with an established tenant identity or is
// rejected before the handler sees it.
func (s *Server) Mount(prefix string, h http.Handler) {
	s.mux.Handle(prefix, TenantMiddleware(s.cfg.Resolver, s.cfg.Lookup)(h))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store != nil {
		if err := s.cfg.Store.Ping(r.Context()); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// Handler returns the fully wired root handler.
func (s *Server) Handler() http.Handler {
	return observability.HTTPMiddleware(s.mux)
}

// Start runs the server in the background and returns it for shutdown.
func Start(addr string, s *Server) *http.Server {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("HTTP server error", "error", err)
		}
	}()

	return srv
}

// Shutdown drains the server.
func Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
