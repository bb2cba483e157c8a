package routes

import (
	"net/http"

	"lichtfeld/job"
	"lichtfeld/logger"
)

// StatusResponse reports pipeline availability and the run in flight
type StatusResponse struct {
	PipelineAvailable bool           `json:"pipeline_available"`
	ScriptPath        string         `json:"script_path"`
	DataDir           string         `json:"data_dir"`
	WorkspaceDir      string         `json:"workspace_dir"`
	Busy              bool           `json:"busy"`
	CurrentRun        *job.RunStatus `json:"current_run"`
}

// StatusHandler reports whether the pipeline executable is present. It has no side effects.
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Status request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

	if r.Method != http.MethodGet {
		logger.Warnf("Invalid method for status endpoint: %s", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := StatusResponse{
		PipelineAvailable: s.orchestrator.PipelineAvailable(),
		ScriptPath:        s.settings.ScriptPath(),
		DataDir:           s.settings.DataDir,
		WorkspaceDir:      s.settings.WorkspaceDir,
		Busy:              s.orchestrator.Busy(),
	}
	if current, ok := s.orchestrator.Current(); ok {
		response.CurrentRun = &current
	}

	writeJSON(w, http.StatusOK, response)
}
