package workspace

import (
	"errors"
	"io"
	"os"

	"lichtfeld/logger"
	"lichtfeld/models"
)

// Manager owns the single shared pipeline workspace directory.
// It does no locking of its own: callers serialise access (see job.Gate).
type Manager struct {
	dir string
}

// NewManager returns a manager for dir. The directory is not touched.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// Dir returns the managed directory path
func (m *Manager) Dir() string {
	return m.dir
}

// Reset unconditionally deletes the workspace and recreates it empty.
// Anything left by a previous run is discarded.
func (m *Manager) Reset() error {
	if _, err := os.Lstat(m.dir); err == nil {
		if err := os.RemoveAll(m.dir); err != nil {
			logger.Errorf("Failed to remove workspace %s: %v", m.dir, err)
			return models.NewError(models.KindIO, "workspace.reset", err, "failed to clear workspace %s", m.dir)
		}
		logger.Infof("Cleaned up old workspace: %s", m.dir)
	} else if !errors.Is(err, os.ErrNotExist) {
		return models.NewError(models.KindIO, "workspace.reset", err, "failed to stat workspace %s", m.dir)
	}

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		logger.Errorf("Failed to recreate workspace %s: %v", m.dir, err)
		return models.NewError(models.KindIO, "workspace.reset", err, "failed to create workspace %s", m.dir)
	}
	return nil
}

// Exists reports whether the workspace is present as a directory
func (m *Manager) Exists() bool {
	return isDir(m.dir)
}

// IsEmpty reports whether the workspace has no entries. A missing workspace counts as empty.
func (m *Manager) IsEmpty() (bool, error) {
	return isEmptyDir(m.dir)
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

func isEmptyDir(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}
		return false, err
	}
	defer f.Close()

	// reading a single name is enough to decide
	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}
