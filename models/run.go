package models

import "time"

// UploadedVideo is the single on-disk video slot written by the upload receiver
type UploadedVideo struct {
	Path         string // fixed per deployment, overwritten by every upload
	Size         int64  // bytes written
	FPS          int    // declared frame rate
	ContentType  string // declared media type of the upload part
	OriginalName string // client-side filename, informational only
}

// PipelineInvocation records one execution attempt of the external pipeline.
// It is filled while the process runs and must not be modified once Finished is set.
type PipelineInvocation struct {
	Command  string
	Args     []string
	Dir      string
	Timeout  time.Duration
	Stdout   string
	Stderr   string
	ExitCode int  // -1 when the process was killed or never exited normally
	TimedOut bool // true when the timeout terminated the process
	Started  time.Time
	Finished time.Time
}

// Duration returns the wall-clock time the process ran
func (p *PipelineInvocation) Duration() time.Duration {
	if p == nil || p.Finished.IsZero() {
		return 0
	}
	return p.Finished.Sub(p.Started)
}

// ArchiveArtifact is a compressed snapshot of the workspace. The receiver owns deletion of Path.
type ArchiveArtifact struct {
	Path    string
	Size    int64
	Entries int
}

// RunState is a state of the orchestrator's per-request state machine
type RunState string

const (
	StateIdle            RunState = "idle"
	StateReceiving       RunState = "receiving"
	StateWorkspaceReset  RunState = "workspace_reset"
	StatePipelineRunning RunState = "pipeline_running"
	StateValidating      RunState = "validating"
	StateArchiving       RunState = "archiving"
	StateDone            RunState = "done"
	StateFailed          RunState = "failed"
)

// Terminal reports whether no further transition can leave s.
func (s RunState) Terminal() bool {
	return s == StateDone || s == StateFailed
}
