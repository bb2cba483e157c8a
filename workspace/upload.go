package workspace

import (
	"io"
	"os"
	"path/filepath"

	"lichtfeld/logger"
	"lichtfeld/models"
)

// ChunkSize is the fixed copy buffer used when streaming an upload to disk.
const ChunkSize = 8192

// Receive streams src to dst in fixed-size chunks so memory use does not depend on the
// upload size. dst is truncated if it already exists. On any failure the partially written
// file is removed before the error is returned.
func Receive(src io.Reader, dst string) (models.UploadedVideo, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return models.UploadedVideo{}, models.NewError(models.KindIO, "upload.receive", err,
			"failed to create upload directory %s", filepath.Dir(dst))
	}

	file, err := os.Create(dst)
	if err != nil {
		return models.UploadedVideo{}, models.NewError(models.KindIO, "upload.receive", err,
			"failed to create %s", dst)
	}

	buf := make([]byte, ChunkSize)
	// onlyWriter hides ReaderFrom/WriterTo so CopyBuffer really goes through buf
	n, copyErr := io.CopyBuffer(onlyWriter{file}, onlyReader{src}, buf)
	closeErr := file.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		logger.Errorf("Failed to save video after %d bytes: %v", n, copyErr)
		if rmErr := os.Remove(dst); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warnf("Failed to remove partial upload %s: %v", dst, rmErr)
		}
		return models.UploadedVideo{}, models.NewError(models.KindIO, "upload.receive", copyErr,
			"failed to write upload to %s", dst)
	}

	logger.Infof("Video saved: %s (%d bytes)", dst, n)
	return models.UploadedVideo{Path: dst, Size: n}, nil
}

type onlyWriter struct{ w io.Writer }

func (o onlyWriter) Write(p []byte) (int, error) { return o.w.Write(p) }

type onlyReader struct{ r io.Reader }

func (o onlyReader) Read(p []byte) (int, error) { return o.r.Read(p) }
