package transcripts

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lichtfeld/config"
	"lichtfeld/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInvocation() *models.PipelineInvocation {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &models.PipelineInvocation{
		Command:  "/app/scripts/pipeline_colmap.sh",
		Args:     []string{"/data/output3.mp4", "colmap_project", "30"},
		Dir:      "/app/LichtFeld-Studio",
		Timeout:  time.Hour,
		Stdout:   "extracting frames",
		Stderr:   "warning: low texture",
		ExitCode: 0,
		Started:  start,
		Finished: start.Add(time.Minute),
	}
}

func TestNewShipperRejectsUnknownSink(t *testing.T) {
	_, err := NewShipper(config.TranscriptSettings{Sink: "ftp"})
	assert.Error(t, err)
}

func TestShipWithoutSinkIsNoop(t *testing.T) {
	s, err := NewShipper(config.TranscriptSettings{})
	require.NoError(t, err)
	assert.False(t, s.Enabled())
	assert.NoError(t, s.Ship(context.Background(), "job", sampleInvocation()))
}

func TestShipDirectServe(t *testing.T) {
	base := t.TempDir()
	s, err := NewShipper(config.TranscriptSettings{Sink: SinkDirectServe, BaseDir: base, Folder: "transcripts"})
	require.NoError(t, err)
	require.True(t, s.Enabled())

	require.NoError(t, s.Ship(context.Background(), "job-42", sampleInvocation()))

	data, err := os.ReadFile(filepath.Join(base, "transcripts", "job-42.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "job:       job-42")
	assert.Contains(t, string(data), "colmap_project 30")
	assert.Contains(t, string(data), "--- stdout ---\nextracting frames")
	assert.Contains(t, string(data), "--- stderr ---\nwarning: low texture")
}

func TestShipNilInvocation(t *testing.T) {
	s, err := NewShipper(config.TranscriptSettings{Sink: SinkDirectServe, BaseDir: t.TempDir()})
	require.NoError(t, err)
	assert.NoError(t, s.Ship(context.Background(), "job", nil))
}

func TestRemoteSinksValidateSettings(t *testing.T) {
	ctx := context.Background()
	assert.Error(t, UploadToS3WithCreds(ctx, config.TranscriptSettings{}, "a.log", nil))
	assert.Error(t, UploadToGCSWithJSON(ctx, config.TranscriptSettings{}, "a.log", nil))
	assert.Error(t, UploadToSFTPWithCreds(ctx, config.TranscriptSettings{Host: "h"}, "a.log", nil))
	assert.Error(t, UploadToSFTPWithCreds(ctx, config.TranscriptSettings{Host: "h", User: "u"}, "a.log", nil))
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "a.log", objectKey("", "a.log"))
	assert.Equal(t, "transcripts/a.log", objectKey("/transcripts/", "a.log"))
	assert.Equal(t, "x/y/a.log", objectKey("x/y", "a.log"))
}
