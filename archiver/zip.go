package archiver

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"lichtfeld/logger"
	"lichtfeld/models"

	"github.com/klauspost/compress/zip"
)

// Prefix of the temporary archive file name
const Prefix = "colmap_project-"

// ZipDir packs the tree under src into a new deflate zip created in tmpDir (os.TempDir() when empty)
// and returns its location. tmpDir must not be inside src, otherwise the archive would include itself.
// On failure the partial archive is removed. The caller owns deletion of the returned file.
func ZipDir(ctx context.Context, src, tmpDir string) (models.ArchiveArtifact, error) {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return models.ArchiveArtifact{}, archiveErr(err, "invalid source %s", src)
	}
	absTmp, err := filepath.Abs(tmpDir)
	if err != nil {
		return models.ArchiveArtifact{}, archiveErr(err, "invalid temp dir %s", tmpDir)
	}
	if within(absTmp, absSrc) {
		return models.ArchiveArtifact{}, archiveErr(nil, "temp dir %s lies inside source %s", absTmp, absSrc)
	}
	if fi, err := os.Stat(absSrc); err != nil || !fi.IsDir() {
		return models.ArchiveArtifact{}, archiveErr(err, "source directory %s not found", absSrc)
	}

	out, err := os.CreateTemp(absTmp, Prefix+"*.zip")
	if err != nil {
		return models.ArchiveArtifact{}, archiveErr(err, "failed to create archive in %s", absTmp)
	}
	zipPath := out.Name()
	logger.Infof("Creating ZIP archive: %s", zipPath)

	entries, err := writeTree(ctx, out, absSrc)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		logger.Errorf("Failed to create ZIP: %v", err)
		if rmErr := os.Remove(zipPath); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warnf("Failed to remove partial archive %s: %v", zipPath, rmErr)
		}
		return models.ArchiveArtifact{}, archiveErr(err, "failed to archive %s", absSrc)
	}

	fi, err := os.Stat(zipPath)
	if err != nil {
		return models.ArchiveArtifact{}, archiveErr(err, "archive %s vanished", zipPath)
	}
	logger.Infof("ZIP created: %s (%d bytes, %d files)", zipPath, fi.Size(), entries)
	return models.ArchiveArtifact{Path: zipPath, Size: fi.Size(), Entries: entries}, nil
}

// writeTree streams every directory and regular file under root into w and returns the file count
func writeTree(ctx context.Context, w io.Writer, root string) (int, error) {
	zw := zip.NewWriter(w)
	files := 0

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			hdr, err := zip.FileInfoHeader(info)
			if err != nil {
				return err
			}
			hdr.Name = name + "/"
			_, err = zw.CreateHeader(hdr)
			return err
		case info.Mode().IsRegular():
			if err := addFile(zw, path, name, info); err != nil {
				return fmt.Errorf("add %s: %w", name, err)
			}
			files++
			return nil
		default:
			logger.Debugf("Skipping non-regular entry %s (%s)", name, info.Mode().Type())
			return nil
		}
	})
	if walkErr != nil {
		zw.Close()
		return files, walkErr
	}
	return files, zw.Close()
}

func addFile(zw *zip.Writer, path, name string, info fs.FileInfo) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, f)
	return err
}

// within reports whether path equals dir or is nested below it
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func archiveErr(err error, format string, args ...interface{}) *models.ProcessError {
	return models.NewError(models.KindArchive, "archive.zip", err, format, args...)
}
