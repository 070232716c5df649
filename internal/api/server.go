package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/polyedge/internal/alerts"
	"github.com/web3guy0/polyedge/internal/edge"
	"github.com/web3guy0/polyedge/internal/health"
	"github.com/web3guy0/polyedge/internal/truthlink"
	"github.com/web3guy0/polyedge/internal/whales"
)

// Server is the read-only REST facade over the running engine.
type Server struct {
	health  *health.Registry
	edges   *edge.Detector
	tracker *whales.Tracker
	linker  *truthlink.Linker
	engine  *alerts.Engine

	srv *http.Server
}

// NewServer wires the facade. Any dependency may be nil; its endpoints
// then return 503.
func NewServer(addr string, reg *health.Registry, edges *edge.Detector, tracker *whales.Tracker, linker *truthlink.Linker, engine *alerts.Engine) *Server {
	s := &Server{
		health:  reg,
		edges:   edges,
		tracker: tracker,
		linker:  linker,
		engine:  engine,
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/edge/scan", s.handleEdgeScan).Methods(http.MethodGet)
	r.HandleFunc("/api/whales", s.handleWhales).Methods(http.MethodGet)
	r.HandleFunc("/api/markets", s.handleMarkets).Methods(http.MethodGet)
	r.HandleFunc("/api/alerts/recent", s.handleRecentAlerts).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until Shutdown.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("🌐 API server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("API server failed")
		}
	}()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	report := s.health.Snapshot()
	code := http.StatusOK
	if report.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}

func (s *Server) handleEdgeScan(w http.ResponseWriter, _ *http.Request) {
	if s.edges == nil {
		writeError(w, http.StatusServiceUnavailable, "edge detector not running")
		return
	}
	writeJSON(w, http.StatusOK, s.edges.Scan())
}

func (s *Server) handleWhales(w http.ResponseWriter, _ *http.Request) {
	if s.tracker == nil {
		writeError(w, http.StatusServiceUnavailable, "whale tracker not running")
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.Universe().Whales())
}

func (s *Server) handleMarkets(w http.ResponseWriter, _ *http.Request) {
	if s.linker == nil {
		writeError(w, http.StatusServiceUnavailable, "linker not running")
		return
	}
	writeJSON(w, http.StatusOK, s.linker.TrackedMarkets())
}

func (s *Server) handleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "alert engine not running")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, s.engine.Recent(limit))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Response encode failed")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
