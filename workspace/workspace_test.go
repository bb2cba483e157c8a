package workspace

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lichtfeld/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetClearsExistingContent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "colmap_project")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sparse", "0"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sparse", "0", "points3D.bin"), []byte("stale"), 0644))

	m := NewManager(dir)
	require.NoError(t, m.Reset())

	assert.True(t, m.Exists())
	empty, err := m.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestResetIsIdempotent(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "ws"))

	for i := 0; i < 2; i++ {
		require.NoError(t, m.Reset(), "reset %d", i+1)
		assert.True(t, m.Exists())
		empty, err := m.IsEmpty()
		require.NoError(t, err)
		assert.True(t, empty)
	}
}

func TestResetCreatesMissingWorkspace(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "a", "b", "ws"))
	assert.False(t, m.Exists())
	require.NoError(t, m.Reset())
	assert.True(t, m.Exists())
}

func TestResetFailureIsIOError(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	// a regular file in the parent chain makes MkdirAll fail
	m := NewManager(filepath.Join(blocker, "ws"))
	err := m.Reset()
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrIO))
	assert.Equal(t, models.KindIO, models.KindOf(err))
}

func TestIsEmptyMissingDir(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "nope"))
	empty, err := m.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)
	assert.False(t, m.Exists())
}

func TestReceiveWritesStream(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "data", "output3.mp4")
	payload := bytes.Repeat([]byte("0123456789abcdef"), 3*ChunkSize)

	video, err := Receive(bytes.NewReader(payload), dst)
	require.NoError(t, err)
	assert.Equal(t, dst, video.Path)
	assert.Equal(t, int64(len(payload)), video.Size)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReceiveOverwritesPreviousUpload(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "video.mp4")
	_, err := Receive(strings.NewReader("a much longer first upload"), dst)
	require.NoError(t, err)

	video, err := Receive(strings.NewReader("short"), dst)
	require.NoError(t, err)
	assert.Equal(t, int64(5), video.Size)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "short", string(got))
}

type failingReader struct {
	served int
	limit  int
}

func (f *failingReader) Read(p []byte) (int, error) {
	if f.served >= f.limit {
		return 0, errors.New("connection reset")
	}
	n := len(p)
	if n > f.limit-f.served {
		n = f.limit - f.served
	}
	for i := 0; i < n; i++ {
		p[i] = 'v'
	}
	f.served += n
	return n, nil
}

func TestReceiveRemovesPartialFile(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "video.mp4")

	_, err := Receive(&failingReader{limit: 2*ChunkSize + 10}, dst)
	require.Error(t, err)
	assert.Equal(t, models.KindIO, models.KindOf(err))

	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr), "partial upload must be removed")
}

type chunkRecorder struct {
	io.Writer
	max int
}

func (c *chunkRecorder) Write(p []byte) (int, error) {
	if len(p) > c.max {
		c.max = len(p)
	}
	return c.Writer.Write(p)
}

func TestReceiveUsesFixedChunks(t *testing.T) {
	// onlyWriter/onlyReader must keep io.CopyBuffer on the fixed buffer path
	var sink bytes.Buffer
	rec := &chunkRecorder{Writer: &sink}
	buf := make([]byte, ChunkSize)
	_, err := io.CopyBuffer(onlyWriter{rec}, onlyReader{bytes.NewReader(make([]byte, 5*ChunkSize))}, buf)
	require.NoError(t, err)
	assert.LessOrEqual(t, rec.max, ChunkSize)
}

func TestValidateOutput(t *testing.T) {
	root := t.TempDir()

	missing := filepath.Join(root, "missing")
	err := ValidateOutput(missing)
	assert.True(t, errors.Is(err, models.ErrEmptyOutput))

	empty := filepath.Join(root, "empty")
	require.NoError(t, os.Mkdir(empty, 0755))
	err = ValidateOutput(empty)
	assert.True(t, errors.Is(err, models.ErrEmptyOutput))

	notDir := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(notDir, []byte("x"), 0644))
	err = ValidateOutput(notDir)
	assert.True(t, errors.Is(err, models.ErrEmptyOutput))

	full := filepath.Join(root, "full")
	require.NoError(t, os.MkdirAll(filepath.Join(full, "sparse"), 0755))
	assert.NoError(t, ValidateOutput(full))
}
