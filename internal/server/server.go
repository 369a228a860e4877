// Package server exposes the engine over HTTP for operators and thin clients.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cadre-oss/hearth/internal/agent"
	"github.com/cadre-oss/hearth/internal/event"
	"github.com/cadre-oss/hearth/internal/telemetry"
)

// Server is the hearth HTTP server.
type Server struct {
	engine   *agent.Engine
	sessions *SessionManager
	broker   *Broker
	logger   *telemetry.Logger
	version  string
	origins  map[string]bool
}

// New creates a server. The broker is registered on bus so lifecycle events
// reach SSE clients.
func New(engine *agent.Engine, bus *event.Bus, logger *telemetry.Logger, version string) *Server {
	broker := NewBroker(logger)
	if bus != nil {
		bus.Register(broker)
	}
	return &Server{
		engine:   engine,
		sessions: NewSessionManager(engine, logger, defaultSessionTTL),
		broker:   broker,
		logger:   logger,
		version:  version,
	}
}

// WithCORSOrigins allows browser clients from the listed origins. "*" allows
// any origin. With no origins no CORS headers are sent, so browsers only
// reach the server from its own origin.
func (s *Server) WithCORSOrigins(origins []string) *Server {
	s.origins = make(map[string]bool, len(origins))
	for _, o := range origins {
		s.origins[strings.TrimRight(o, "/")] = true
	}
	return s
}

// Start serves on addr and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting hearth server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.sessions.Close()
		if err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	case err := <-errCh:
		s.sessions.Close()
		return err
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.engine.Metrics().Registry(), promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)

		r.Get("/facts", s.handleListFacts)
		r.Post("/facts", s.handleAddFact)
		r.Get("/facts/search", s.handleSearchFacts)
		r.Get("/episodes", s.handleRecentEpisodes)

		r.Post("/sessions", s.handleCreateSession)
		r.Put("/sessions/{id}/speaker", s.handleSetSpeaker)
		r.Delete("/sessions/{id}", s.handleEndSession)
		r.Post("/chat", s.handleChat)

		r.Get("/events", s.handleSSEEvents)
	})

	return r
}

// cors adds CORS headers for allowed browser origins. A preflight from any
// other origin is refused.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := origin != "" && (s.origins["*"] || s.origins[origin])
		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if !allowed {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
