package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"lichtfeld/logger"
	"lichtfeld/models"
)

// waitDelay bounds how long Wait keeps draining output pipes after the process group was killed.
const waitDelay = 5 * time.Second

// Request holds the positional arguments handed to the pipeline executable
type Request struct {
	VideoPath     string
	WorkspaceName string
	FPS           int
}

// Args returns the argument vector: <video_path> <workspace_name> <fps>
func (r Request) Args() []string {
	return []string{r.VideoPath, r.WorkspaceName, strconv.Itoa(r.FPS)}
}

// Invoker runs the external pipeline executable under a hard timeout.
type Invoker struct {
	Script      string        // path to the executable
	Dir         string        // working directory of the process
	Timeout     time.Duration // wall-clock bound, the process group is killed when exceeded
	StderrLimit int           // max stderr bytes attached to a failure, 0 means unlimited
}

// Check verifies that the executable exists and is a regular file.
func (iv *Invoker) Check() error {
	fi, err := os.Stat(iv.Script)
	if err != nil {
		return models.NewError(models.KindConfiguration, "pipeline.check", err,
			"Pipeline script not found: %s", iv.Script)
	}
	if !fi.Mode().IsRegular() {
		return models.NewError(models.KindConfiguration, "pipeline.check", nil,
			"Pipeline script is not a regular file: %s", iv.Script)
	}
	return nil
}

// Available reports whether the executable is present and has an execute bit set
func (iv *Invoker) Available() bool {
	fi, err := os.Stat(iv.Script)
	return err == nil && fi.Mode().IsRegular() && fi.Mode().Perm()&0111 != 0
}

// Invoke runs the pipeline once and classifies the outcome. The returned invocation is
// non-nil whenever a process was spawned, also on failure, so callers can log or ship it.
//
// Outcomes: nil error on exit 0; KindConfiguration when the executable is missing or
// cannot be started; KindPipelineTimeout when the timeout killed the process group;
// KindPipelineFailure on nonzero exit or when ctx was cancelled.
func (iv *Invoker) Invoke(ctx context.Context, req Request) (*models.PipelineInvocation, error) {
	if err := iv.Check(); err != nil {
		logger.Error(err.Error())
		return nil, err
	}

	inv := &models.PipelineInvocation{
		Command:  iv.Script,
		Args:     req.Args(),
		Dir:      iv.Dir,
		Timeout:  iv.Timeout,
		ExitCode: -1,
	}

	runCtx, cancel := context.WithTimeout(ctx, iv.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, inv.Command, inv.Args...)
	cmd.Dir = inv.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	killProcessGroup(cmd)

	logger.Infof("Starting pipeline: %s", inv.Command)
	logger.Infof("Executing: %s %s (cwd %s, timeout %v)", inv.Command, strings.Join(inv.Args, " "), inv.Dir, inv.Timeout)

	inv.Started = time.Now()
	if err := cmd.Start(); err != nil {
		inv.Finished = time.Now()
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return inv, models.NewError(models.KindConfiguration, "pipeline.start", err,
				"Pipeline script cannot be executed: %s", inv.Command)
		}
		return inv, models.NewError(models.KindPipelineFailure, "pipeline.start", err,
			"Pipeline execution error: %v", err)
	}
	waitErr := cmd.Wait()
	inv.Finished = time.Now()
	inv.Stdout = stdout.String()
	inv.Stderr = stderr.String()
	if cmd.ProcessState != nil {
		inv.ExitCode = cmd.ProcessState.ExitCode()
	}

	logger.Block(logger.INFO, "Pipeline stdout", inv.Stdout)
	logger.Block(logger.WARN, "Pipeline stderr", inv.Stderr)

	return inv, iv.classify(ctx, runCtx, inv, waitErr)
}

func (iv *Invoker) classify(parent, runCtx context.Context, inv *models.PipelineInvocation, waitErr error) error {
	if waitErr != nil && inv.ExitCode == 0 && errors.Is(waitErr, exec.ErrWaitDelay) {
		logger.Warnf("Pipeline exited 0 but left its output pipes open; ignoring")
		waitErr = nil
	}
	if waitErr == nil && inv.ExitCode == 0 {
		logger.Infof("Pipeline finished in %v", inv.Duration().Round(time.Millisecond))
		return nil
	}

	// only a run the deadline actually killed counts as a timeout; ExitCode is -1
	// when the process ended by signal
	if parent.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && inv.ExitCode == -1 {
		inv.TimedOut = true
		logger.Errorf("Pipeline execution timeout after %v", inv.Timeout)
		return &models.ProcessError{
			Kind:     models.KindPipelineTimeout,
			Op:       "pipeline.wait",
			Message:  fmt.Sprintf("Processing timeout exceeded (%v)", inv.Timeout),
			Stderr:   TruncateTail(inv.Stderr, iv.StderrLimit),
			ExitCode: inv.ExitCode,
			Err:      runCtx.Err(),
		}
	}

	if parent.Err() != nil {
		logger.Warnf("Pipeline cancelled: %v", parent.Err())
		return &models.ProcessError{
			Kind:     models.KindPipelineFailure,
			Op:       "pipeline.wait",
			Message:  "Pipeline cancelled before completion",
			Stderr:   TruncateTail(inv.Stderr, iv.StderrLimit),
			ExitCode: inv.ExitCode,
			Err:      parent.Err(),
		}
	}

	tail := TruncateTail(inv.Stderr, iv.StderrLimit)
	msg := fmt.Sprintf("Pipeline failed with code %d", inv.ExitCode)
	if s := strings.TrimSpace(tail); s != "" {
		msg += ": " + s
	}
	logger.Errorf("Pipeline failed with code %d", inv.ExitCode)
	return &models.ProcessError{
		Kind:     models.KindPipelineFailure,
		Op:       "pipeline.wait",
		Message:  msg,
		Stderr:   tail,
		ExitCode: inv.ExitCode,
		Err:      waitErr,
	}
}

// TruncateTail keeps at most limit bytes from the end of s, which is where
// a failing tool usually prints its error. limit <= 0 disables truncation.
func TruncateTail(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := len(s) - limit
	return fmt.Sprintf("...(%d bytes truncated)\n%s", cut, s[cut:])
}
