package job

import (
	"mime"
	"strconv"
	"strings"

	"lichtfeld/config"
	"lichtfeld/models"
)

// ParseFPS parses the fps form field
func ParseFPS(raw string) (int, error) {
	fps, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, models.NewError(models.KindValidation, "job.validate", err,
			"fps must be an integer, got %q", raw)
	}
	return fps, nil
}

// Validate checks the request parameters before anything touches the disk.
func Validate(fps int, contentType string, s config.Settings) error {
	if fps < s.MinFPS || fps > s.MaxFPS {
		return models.NewError(models.KindValidation, "job.validate", nil,
			"fps must be between %d and %d, got %d", s.MinFPS, s.MaxFPS, fps)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "video/") {
		return models.NewError(models.KindValidation, "job.validate", err,
			"Uploaded file must be a video")
	}
	return nil
}
