// Package server is the browser bridge: it plays a scenario for each
// websocket client and streams renderer callbacks as JSON frames.
//
// Routes:
//
//	GET /healthz                 liveness probe
//	GET /api/scenario            the scenario in its authoring shape
//	GET /api/runs                recorded runs (when a store is configured)
//	GET /api/runs/{id}/events    one run's trace
//	GET /ws                      playback session
//
// Every websocket connection gets its own clock.Loop and engine.Engine, so
// two browsers never share a timeline. Clients send {"type":"play"},
// "pause", "reset" or "state"; the server answers with a state frame after
// each command and streams phase, chat-reveal, chat-complete, card,
// sub-card, signal, progress and complete frames while playing.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/vcav-io/website/internal/engine"
	"github.com/vcav-io/website/internal/scenario"
	"github.com/vcav-io/website/internal/store"
)

// Option configures a Server.
type Option func(*Server)

// WithEngineConfig sets the pacing for every session.
func WithEngineConfig(cfg engine.Config) Option {
	return func(s *Server) {
		s.cfg = cfg
	}
}

// WithStore records every completed session as a run.
func WithStore(st *store.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// Server serves one scenario to any number of browsers.
type Server struct {
	scn      *scenario.Scenario
	cfg      engine.Config
	store    *store.Store
	logger   *slog.Logger
	upgrader websocket.Upgrader
	router   chi.Router

	mu       sync.Mutex
	sessions map[*session]struct{}
}

// New validates the scenario and builds the router.
func New(scn *scenario.Scenario, opts ...Option) (*Server, error) {
	if err := scenario.Validate(scn); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	s := &Server{
		scn:    scn,
		cfg:    engine.DefaultConfig(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The bridge serves a public demo; any page may embed it.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: make(map[*session]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)
	r.Route("/api", func(r chi.Router) {
		r.Get("/scenario", s.handleScenario)
		r.Get("/runs", s.handleRuns)
		r.Get("/runs/{id}/events", s.handleRunEvents)
	})
	s.router = r

	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// and closes every open session.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr, "scenario", s.scn.ID)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.closeSessions()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Sessions returns the number of open websocket sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sess := range s.sessions {
		sess.close()
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

func (s *Server) handleScenario(w http.ResponseWriter, r *http.Request) {
	data, err := scenario.MarshalJSON(s.scn)
	if err != nil {
		http.Error(w, "Failed to encode scenario", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "run recording is disabled", http.StatusNotFound)
		return
	}
	runs, err := s.store.ListRuns(r.Context(), r.URL.Query().Get("scenario"))
	if err != nil {
		s.logger.Error("list runs failed", "error", err)
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "run recording is disabled", http.StatusNotFound)
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetRun(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load run", http.StatusInternalServerError)
		return
	}
	events, err := s.store.ReadEvents(r.Context(), id)
	if err != nil {
		s.logger.Error("read events failed", "run_id", id, "error", err)
		http.Error(w, "Failed to load run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, events)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	logger := s.logger.With("request_id", middleware.GetReqID(r.Context()))
	sess, err := newSession(conn, s.scn, s.cfg, s.store, logger)
	if err != nil {
		logger.Error("session setup failed", "error", err)
		conn.Close()
		return
	}

	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
	logger.Info("session opened", "sessions", s.Sessions())

	sess.serve(r.Context())

	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
	logger.Info("session closed")
}
