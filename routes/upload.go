package routes

import (
	"errors"
	"net/http"
	"os"

	"lichtfeld/job"
	"lichtfeld/logger"
	"lichtfeld/models"
)

// ArchiveFilename is the download name of the returned archive
const ArchiveFilename = "colmap_project.zip"

// multipartMemory is how much of the form is kept in memory; file parts beyond it
// are spooled to temp files.
const multipartMemory = 1 << 20

// ProcessHandler accepts a multipart upload (video file + fps), runs it through the
// pipeline and responds with the zipped workspace.
func (s *Server) ProcessHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.parseUpload(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	fps, err := job.ParseFPS(r.FormValue("fps"))
	if err != nil {
		respondProcessError(w, "", err)
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{
			Detail: "Form field 'video' is required",
			Kind:   string(models.KindValidation),
		})
		return
	}
	defer file.Close()

	res, err := s.orchestrator.Run(r.Context(), job.Submission{
		Body:         file,
		FPS:          fps,
		ContentType:  header.Header.Get("Content-Type"),
		OriginalName: header.Filename,
	})
	if err != nil {
		respondProcessError(w, res.JobID, err)
		return
	}
	defer func() {
		if err := os.Remove(res.Artifact.Path); err != nil && !os.IsNotExist(err) {
			logger.Warnf("[%s] Failed to remove archive %s: %v", res.JobID, res.Artifact.Path, err)
		}
	}()

	archive, err := os.Open(res.Artifact.Path)
	if err != nil {
		respondProcessError(w, res.JobID, models.NewError(models.KindArchive, "archive.open", err,
			"Failed to open archive"))
		return
	}
	defer archive.Close()

	fi, err := archive.Stat()
	if err != nil {
		respondProcessError(w, res.JobID, models.NewError(models.KindArchive, "archive.open", err,
			"Failed to stat archive"))
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ArchiveFilename+`"`)
	w.Header().Set("X-Job-ID", res.JobID)
	http.ServeContent(w, r, ArchiveFilename, fi.ModTime(), archive)
	logger.Infof("[%s] Sent archive (%d bytes) to %s", res.JobID, fi.Size(), r.RemoteAddr)
}

// parseUpload enforces the upload size limit and parses the multipart form. It writes
// the error response itself and reports whether the handler should continue.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.settings.MaxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warnf("Rejected upload larger than %d bytes from %s", tooLarge.Limit, r.RemoteAddr)
			writeError(w, http.StatusRequestEntityTooLarge, ErrorResponse{
				Detail: "Uploaded file exceeds the maximum allowed size",
				Kind:   string(models.KindValidation),
			})
			return false
		}
		writeError(w, http.StatusBadRequest, ErrorResponse{
			Detail: "Invalid multipart form: " + err.Error(),
			Kind:   string(models.KindValidation),
		})
		return false
	}
	return true
}

func respondProcessError(w http.ResponseWriter, jobID string, err error) {
	pe := models.AsProcessError(err)
	writeError(w, statusFor(pe.Kind), ErrorResponse{
		Detail: pe.Message,
		Kind:   string(pe.Kind),
		JobID:  jobID,
	})
}
