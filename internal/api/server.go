package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"chatrelay/pkg/interfaces"
)

// StatsSource reports registry sizes without exposing internal structure.
// Implemented by the session manager.
type StatsSource interface {
	Stats() map[string]int
}

// Server exposes the operational endpoints: /health and /stats. No business
// logic lives here, only HTTP handling and JSON serialization.
type Server struct {
	store  interfaces.MessageStore
	stats  StatsSource
	router *http.ServeMux
}

// NewServer creates the API server.
func NewServer(store interfaces.MessageStore, stats StatsSource) *Server {
	s := &Server{
		store:  store,
		stats:  stats,
		router: http.NewServeMux(),
	}
	s.router.HandleFunc("/health", s.healthCheck)
	s.router.HandleFunc("/stats", s.handleStats)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Store: "ok"}
	status := http.StatusOK
	if err := s.store.HealthCheck(ctx); err != nil {
		log.Printf("Health check failed: %v", err)
		resp.Status = "degraded"
		resp.Store = "unavailable"
		status = http.StatusServiceUnavailable
	}

	s.sendJSON(w, resp, status)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.sendJSON(w, s.stats.Stats(), http.StatusOK)
}

func (s *Server) sendJSON(w http.ResponseWriter, v interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, status int) {
	s.sendJSON(w, map[string]string{"error": message}, status)
}
