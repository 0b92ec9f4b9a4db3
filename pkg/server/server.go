// Package server is the dashboard backend: a JSON API over the persisted
// activity and threat tables, plus a websocket channel for simulated
// security events.
//
// Both tables are reloaded from disk on every request. When a table cannot
// be read the affected endpoints fall back to an empty result instead of
// failing; the core never substitutes data, the serving layer does.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/skywardsec/cloudsentry/pkg/activity"
	"github.com/skywardsec/cloudsentry/pkg/config"
	"github.com/skywardsec/cloudsentry/pkg/events"
	"github.com/skywardsec/cloudsentry/pkg/store"
	"github.com/skywardsec/cloudsentry/pkg/threat"
)

// Server serves the dashboard API.
type Server struct {
	cfg     config.Config
	log     zerolog.Logger
	hub     *events.Hub
	sim     *events.Simulator
	metrics *serverMetrics

	upgrader websocket.Upgrader
}

// New creates a Server. The hub must be running before clients connect.
func New(cfg config.Config, log zerolog.Logger, hub *events.Hub) *Server {
	return &Server{
		cfg:     cfg,
		log:     log,
		hub:     hub,
		sim:     events.NewSimulator(uint64(cfg.Generator.Seed)),
		metrics: newServerMetrics(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Demo dashboard, no origin restrictions.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.instrument)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/users", s.handleUsers)
		r.Get("/users/{userID}", s.handleUser)
		r.Get("/threats", s.handleThreats)
		r.Get("/stats", s.handleStats)
	})

	r.Get("/simulate/failed-login", s.handleSimulate(s.sim.FailedLogin))
	r.Get("/simulate/brute-force", s.handleSimulate(s.sim.BruteForce))
	r.Get("/simulate/exfiltration", s.handleSimulate(s.sim.Exfiltration))

	r.Get("/ws", s.handleWebsocket)

	return r
}

// ListenAndServe runs the server until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("listen", s.cfg.Listen).Msg("dashboard backend listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// loadTables reads both CSV tables, falling back to empty slices when a
// table is unreadable.
func (s *Server) loadTables() ([]activity.Record, []threat.Record) {
	records, err := store.ReadActivity(s.cfg.Data.Activity)
	if err != nil {
		s.log.Warn().Err(err).Str("path", s.cfg.Data.Activity).Msg("activity table unavailable")
		records = nil
	}
	threats, err := store.ReadThreats(s.cfg.Data.Threats)
	if err != nil {
		s.log.Warn().Err(err).Str("path", s.cfg.Data.Threats).Msg("threat table unavailable")
		threats = nil
	}

	s.metrics.activityRecords.Set(float64(len(records)))
	s.metrics.threatRecords.Set(float64(len(threats)))
	return records, threats
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUsers(w http.ResponseWriter, _ *http.Request) {
	records, threats := s.loadTables()
	s.respond(w, http.StatusOK, map[string]any{
		"users": summarizeUsers(records, threats),
	})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	records, threats := s.loadTables()

	detail, ok := userDetail(records, threats, userID)
	if !ok {
		s.respondError(w, http.StatusNotFound, errCodeNotFound, "user not found")
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"user": detail})
}

func (s *Server) handleThreats(w http.ResponseWriter, _ *http.Request) {
	_, threats := s.loadTables()
	if threats == nil {
		threats = []threat.Record{}
	}
	s.respond(w, http.StatusOK, map[string]any{"threats": threats})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	records, threats := s.loadTables()
	s.respond(w, http.StatusOK, computeStats(records, threats))
}

// handleSimulate pushes a fabricated security event to all websocket
// subscribers and echoes it to the caller.
func (s *Server) handleSimulate(simulate func() events.Event) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		event := simulate()
		s.hub.Broadcast(event)
		s.metrics.eventsPushed.Inc()
		s.log.Info().Str("type", event.Type).Str("user", event.User).Msg("simulated security event")
		s.respond(w, http.StatusOK, map[string]any{"event": event})
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	events.NewClient(s.hub, conn)
}
