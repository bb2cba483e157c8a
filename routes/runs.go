package routes

import (
	"net/http"
	"strconv"

	"lichtfeld/failures"
	"lichtfeld/logger"
	"lichtfeld/success"
)

const defaultRunsLimit = 50

// RunResponse is one entry of the run history
type RunResponse struct {
	Status  string                  `json:"status"`
	Success *success.SuccessRecord  `json:"success,omitempty"`
	Failure *failures.FailureRecord `json:"failure,omitempty"`
}

// RunsHandler lists recent runs, or returns a single run with ?id=<job id>
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.failures == nil || s.successes == nil {
		writeError(w, http.StatusServiceUnavailable, ErrorResponse{Detail: "Run history is not available", Kind: "io"})
		return
	}

	if id := r.URL.Query().Get("id"); id != "" {
		s.runByID(w, id)
		return
	}

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, ErrorResponse{Detail: "limit must be a positive integer", Kind: "validation"})
			return
		}
		limit = n
	}

	succeeded, err := s.successes.ListSuccessRecords(limit)
	if err != nil {
		logger.Errorf("Failed to list success records: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	failed, err := s.failures.ListFailures(limit)
	if err != nil {
		logger.Errorf("Failed to list failure records: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"succeeded": succeeded,
		"failed":    failed,
		"count":     len(succeeded) + len(failed),
	})
}

func (s *Server) runByID(w http.ResponseWriter, id string) {
	succeeded, err := s.successes.GetSuccess(id)
	if err != nil {
		logger.Errorf("Failed to query success for job %s: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if succeeded != nil {
		writeJSON(w, http.StatusOK, RunResponse{Status: "succeeded", Success: succeeded})
		return
	}

	failed, err := s.failures.GetFailure(id)
	if err != nil {
		logger.Errorf("Failed to query failure for job %s: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if failed != nil {
		writeJSON(w, http.StatusOK, RunResponse{Status: "failed", Failure: failed})
		return
	}

	writeError(w, http.StatusNotFound, ErrorResponse{Detail: "Run " + id + " not found", Kind: "not_found", JobID: id})
}
