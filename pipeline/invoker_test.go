//go:build unix

package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"lichtfeld/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "pipeline.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func newInvoker(script, dir string, timeout time.Duration) *Invoker {
	return &Invoker{Script: script, Dir: dir, Timeout: timeout, StderrLimit: 64}
}

func TestInvokeMissingScript(t *testing.T) {
	root := t.TempDir()
	iv := newInvoker(filepath.Join(root, "missing.sh"), root, time.Second)

	inv, err := iv.Invoke(context.Background(), Request{VideoPath: "v.mp4", WorkspaceName: "ws", FPS: 2})
	require.Error(t, err)
	assert.Nil(t, inv, "no process may be spawned")
	assert.True(t, errors.Is(err, models.ErrConfiguration))
	assert.False(t, iv.Available())
}

func TestInvokeDirectoryAsScript(t *testing.T) {
	root := t.TempDir()
	iv := newInvoker(root, root, time.Second)

	_, err := iv.Invoke(context.Background(), Request{FPS: 1})
	assert.Equal(t, models.KindConfiguration, models.KindOf(err))
}

func TestInvokeNotExecutable(t *testing.T) {
	root := t.TempDir()
	script := filepath.Join(root, "pipeline.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0644))
	iv := newInvoker(script, root, time.Second)
	assert.False(t, iv.Available())

	_, err := iv.Invoke(context.Background(), Request{FPS: 1})
	assert.Equal(t, models.KindConfiguration, models.KindOf(err))
}

func TestInvokeSuccessPassesArguments(t *testing.T) {
	root := t.TempDir()
	script := writeScript(t, root, `
mkdir -p "$2"
printf '%s|%s|%s' "$1" "$2" "$3" > "$2/args.txt"
pwd > "$2/cwd.txt"
echo "reconstruction done"
echo "a warning" >&2
`)
	iv := newInvoker(script, root, 5*time.Second)
	require.True(t, iv.Available())

	inv, err := iv.Invoke(context.Background(), Request{VideoPath: "/data/output3.mp4", WorkspaceName: "colmap_project", FPS: 30})
	require.NoError(t, err)
	require.NotNil(t, inv)

	assert.Equal(t, 0, inv.ExitCode)
	assert.False(t, inv.TimedOut)
	assert.Equal(t, []string{"/data/output3.mp4", "colmap_project", "30"}, inv.Args)
	assert.Contains(t, inv.Stdout, "reconstruction done")
	assert.Contains(t, inv.Stderr, "a warning")
	assert.False(t, inv.Finished.Before(inv.Started))

	args, err := os.ReadFile(filepath.Join(root, "colmap_project", "args.txt"))
	require.NoError(t, err)
	assert.Equal(t, "/data/output3.mp4|colmap_project|30", string(args))

	cwd, err := os.ReadFile(filepath.Join(root, "colmap_project", "cwd.txt"))
	require.NoError(t, err)
	wantDir, _ := filepath.EvalSymlinks(root)
	gotDir, _ := filepath.EvalSymlinks(strings.TrimSpace(string(cwd)))
	assert.Equal(t, wantDir, gotDir)
}

func TestInvokeNonzeroExit(t *testing.T) {
	root := t.TempDir()
	script := writeScript(t, root, `
echo "feature extraction failed: no frames" >&2
exit 3
`)
	iv := newInvoker(script, root, 5*time.Second)

	inv, err := iv.Invoke(context.Background(), Request{FPS: 1})
	require.Error(t, err)
	require.NotNil(t, inv)
	assert.Equal(t, 3, inv.ExitCode)

	var pe *models.ProcessError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, models.KindPipelineFailure, pe.Kind)
	assert.Equal(t, 3, pe.ExitCode)
	assert.Contains(t, pe.Stderr, "no frames")
	assert.Contains(t, pe.Message, "Pipeline failed with code 3")
}

func TestInvokeTimeoutKillsProcessGroup(t *testing.T) {
	root := t.TempDir()
	pidFile := filepath.Join(root, "child.pid")
	script := writeScript(t, root, `
sleep 60 &
echo $! > "`+pidFile+`"
wait
`)
	iv := newInvoker(script, root, 300*time.Millisecond)

	start := time.Now()
	inv, err := iv.Invoke(context.Background(), Request{FPS: 1})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrPipelineTimeout))
	assert.False(t, errors.Is(err, models.ErrPipelineFailure))
	require.NotNil(t, inv)
	assert.True(t, inv.TimedOut)
	assert.Less(t, elapsed, 10*time.Second)

	raw, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	require.NoError(t, err)

	// the background sleep belongs to the killed group and must not survive
	require.Eventually(t, func() bool { return processGone(pid) }, 5*time.Second, 50*time.Millisecond)
}

// processGone reports whether pid no longer runs. A zombie waiting for a reaper counts as gone.
func processGone(pid int) bool {
	if errors.Is(syscall.Kill(pid, 0), syscall.ESRCH) {
		return true
	}
	stat, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	// format: pid (comm) state ...
	fields := strings.Fields(string(stat[strings.LastIndexByte(string(stat), ')')+1:]))
	return len(fields) > 0 && fields[0] == "Z"
}

func TestClassifyExitAfterDeadline(t *testing.T) {
	iv := newInvoker("pipeline.sh", t.TempDir(), time.Second)
	parent := context.Background()
	runCtx, cancel := context.WithDeadline(parent, time.Now().Add(-time.Millisecond))
	defer cancel()

	// exited on its own with a failure code just as the deadline passed
	inv := &models.PipelineInvocation{ExitCode: 3, Stderr: "mapper failed", Timeout: time.Second}
	err := iv.classify(parent, runCtx, inv, errors.New("exit status 3"))
	assert.Equal(t, models.KindPipelineFailure, models.KindOf(err))
	assert.False(t, inv.TimedOut)
	assert.Contains(t, err.Error(), "Pipeline failed with code 3")

	killed := &models.PipelineInvocation{ExitCode: -1, Timeout: time.Second}
	err = iv.classify(parent, runCtx, killed, errors.New("signal: killed"))
	assert.Equal(t, models.KindPipelineTimeout, models.KindOf(err))
	assert.True(t, killed.TimedOut)
}

func TestInvokeParentCancelled(t *testing.T) {
	root := t.TempDir()
	script := writeScript(t, root, "sleep 60\n")
	iv := newInvoker(script, root, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	_, err := iv.Invoke(ctx, Request{FPS: 1})
	require.Error(t, err)
	assert.Equal(t, models.KindPipelineFailure, models.KindOf(err))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestTruncateTail(t *testing.T) {
	assert.Equal(t, "short", TruncateTail("short", 10))
	assert.Equal(t, "anything", TruncateTail("anything", 0))

	out := TruncateTail("0123456789", 4)
	assert.True(t, strings.HasSuffix(out, "6789"))
	assert.Contains(t, out, "6 bytes truncated")
}

func TestRequestArgs(t *testing.T) {
	r := Request{VideoPath: "/data/v.mp4", WorkspaceName: "colmap_project", FPS: 12}
	assert.Equal(t, []string{"/data/v.mp4", "colmap_project", "12"}, r.Args())
}
