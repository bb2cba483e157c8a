package routes

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"lichtfeld/logger"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	Version      string    `json:"version"`
	GoVersion    string    `json:"go_version"`
	Uptime       string    `json:"uptime"`
	StartTime    string    `json:"start_time"`
	DataDir      string    `json:"data_dir"`
	WorkspaceDir string    `json:"workspace_dir"`
}

// Global start time for uptime calculation
var startTime = time.Now()

// formatUptime formats a duration into days, hours, minutes, seconds
func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
}

// HealthHandler is the liveness endpoint for load balancers and monitoring
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Health check request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

	if r.Method != http.MethodGet {
		logger.Warnf("Invalid method for health endpoint: %s", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:       "healthy",
		Timestamp:    time.Now(),
		Version:      Version,
		GoVersion:    runtime.Version(),
		Uptime:       formatUptime(time.Since(startTime)),
		StartTime:    startTime.Format("2006-01-02 15:04:05 MST"),
		DataDir:      s.settings.DataDir,
		WorkspaceDir: s.settings.WorkspaceDir,
	}

	writeJSON(w, http.StatusOK, response)
}
