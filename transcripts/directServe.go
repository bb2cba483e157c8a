package transcripts

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"lichtfeld/config"
	"lichtfeld/logger"
)

// UploadToDirectServe writes the transcript below BaseDir/Folder on the local file system.
func UploadToDirectServe(ctx context.Context, settings config.TranscriptSettings, name string, reader io.Reader) error {
	fullDir := filepath.Join(settings.BaseDir, settings.Folder)
	fullPath := filepath.Join(fullDir, filepath.Base(name))

	if err := os.MkdirAll(fullDir, 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", fullPath, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		return fmt.Errorf("failed to write to file %s: %w", fullPath, err)
	}

	logger.Infof("Saved transcript '%s' to '%s'", name, fullPath)
	return nil
}
