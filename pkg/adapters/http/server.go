package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/decomp/internal/metrics"
)

// StatusSource reports the latest state of every master.
type StatusSource interface {
	Snapshot() []metrics.NodeStatus
}

// Server exposes run progress over HTTP.
type Server struct {
	Status   StatusSource
	Gatherer prometheus.Gatherer
	Version  string
}

// NewHandler mounts /health, /info, /status and /metrics.
func NewHandler(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.health)
	r.Get("/info", s.info)
	r.Get("/status", s.status)
	if s.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) info(w http.ResponseWriter, _ *http.Request) {
	version := s.Version
	if version == "" {
		version = "dev"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "decomp",
		"version": version,
	})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	nodes := []metrics.NodeStatus{}
	if s.Status != nil {
		nodes = s.Status.Snapshot()
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
