package routes

import (
	"encoding/json"
	"net/http"
	"os"

	"lichtfeld/config"
	"lichtfeld/failures"
	"lichtfeld/job"
	"lichtfeld/logger"
	"lichtfeld/metrics"
	"lichtfeld/models"
	"lichtfeld/success"
)

// Server carries the dependencies shared by all handlers
type Server struct {
	settings     config.Settings
	orchestrator *job.Orchestrator
	failures     *failures.Store
	successes    *success.Store
}

// NewServer creates the handler set. Either store may be nil, /api/runs then reports it as unavailable.
func NewServer(settings config.Settings, orchestrator *job.Orchestrator, failureStore *failures.Store, successStore *success.Store) *Server {
	return &Server{
		settings:     settings,
		orchestrator: orchestrator,
		failures:     failureStore,
		successes:    successStore,
	}
}

// Register mounts every route on mux
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/process", s.ProcessHandler)
	mux.HandleFunc("/api/status", s.StatusHandler)
	mux.HandleFunc("/api/runs", s.RunsHandler)
	mux.HandleFunc("/health", s.HealthHandler)
	mux.HandleFunc("/version", VersionHandler)
	mux.Handle("/metrics", metrics.Handler())

	if s.settings.StaticDir != "" {
		if fi, err := os.Stat(s.settings.StaticDir); err == nil && fi.IsDir() {
			s.registerStatic(mux)
			logger.Infof("Serving frontend from %s", s.settings.StaticDir)
		} else {
			logger.Warnf("Static directory %s not found, frontend disabled", s.settings.StaticDir)
		}
	}
}

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Detail string `json:"detail"`
	Kind   string `json:"kind"`
	JobID  string `json:"job_id,omitempty"`
}

// statusFor maps an error kind to its HTTP status
func statusFor(kind models.ErrorKind) int {
	switch kind {
	case models.KindValidation:
		return http.StatusBadRequest
	case models.KindBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}
