package job

import (
	"context"
	"io"
	"sync"
	"time"

	"lichtfeld/archiver"
	"lichtfeld/config"
	"lichtfeld/failures"
	"lichtfeld/logger"
	"lichtfeld/metrics"
	"lichtfeld/models"
	"lichtfeld/pipeline"
	"lichtfeld/success"
	"lichtfeld/workspace"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FailureRecorder persists runs that ended in Failed
type FailureRecorder interface {
	StoreFailure(record failures.FailureRecord) error
}

// SuccessRecorder persists runs that ended in Done
type SuccessRecorder interface {
	StoreSuccess(record success.SuccessRecord) error
}

// TranscriptShipper receives the captured output of every pipeline invocation
type TranscriptShipper interface {
	Ship(ctx context.Context, jobID string, inv *models.PipelineInvocation) error
}

// Deps are optional collaborators of the orchestrator; nil fields are skipped.
type Deps struct {
	Failures    FailureRecorder
	Successes   SuccessRecorder
	Transcripts TranscriptShipper
}

// Submission is one processing request as received from the client
type Submission struct {
	Body         io.Reader
	FPS          int
	ContentType  string
	OriginalName string
}

// Result is what a run produced. JobID is set for failed runs too.
type Result struct {
	JobID      string
	Video      models.UploadedVideo
	Invocation *models.PipelineInvocation
	Artifact   models.ArchiveArtifact
}

// RunStatus describes the run currently holding the workspace
type RunStatus struct {
	JobID   string          `json:"job_id"`
	State   models.RunState `json:"state"`
	FPS     int             `json:"fps"`
	Started time.Time       `json:"started"`
}

// Orchestrator drives a request through receive, reset, invoke, validate and archive.
type Orchestrator struct {
	settings  config.Settings
	lifetime  context.Context
	gate      *Gate
	workspace *workspace.Manager
	invoker   *pipeline.Invoker
	deps      Deps

	mu      sync.RWMutex
	current *RunStatus
	active  int
	idle    chan struct{}
}

// NewOrchestrator builds an orchestrator. Pipeline invocations run under lifetime
// (plus the configured timeout) so a client disconnect does not kill a started run;
// cancelling lifetime terminates whatever is running.
func NewOrchestrator(lifetime context.Context, s config.Settings, deps Deps) *Orchestrator {
	return &Orchestrator{
		settings:  s,
		lifetime:  lifetime,
		gate:      NewGate(lifetime, s.BusyPolicy),
		workspace: workspace.NewManager(s.WorkspaceDir),
		invoker: &pipeline.Invoker{
			Script:      s.ScriptPath(),
			Dir:         s.ProjectRoot,
			Timeout:     s.PipelineTimeout,
			StderrLimit: s.StderrLimit,
		},
		deps: deps,
	}
}

// PipelineAvailable reports whether the pipeline executable is present and executable
func (o *Orchestrator) PipelineAvailable() bool {
	return o.invoker.Available()
}

// Busy reports whether a run currently holds the workspace
func (o *Orchestrator) Busy() bool {
	return o.gate.Busy()
}

// Current returns the status of the run in flight, if any
func (o *Orchestrator) Current() (RunStatus, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.current == nil {
		return RunStatus{}, false
	}
	return *o.current, true
}

// Run processes one submission. On success the caller owns Result.Artifact.Path and must
// remove it once delivered. Every error is a *models.ProcessError.
func (o *Orchestrator) Run(ctx context.Context, sub Submission) (Result, error) {
	o.begin()
	defer o.end()

	r := &run{
		o:       o,
		res:     Result{JobID: uuid.NewString()},
		fps:     sub.FPS,
		started: time.Now(),
		state:   models.StateIdle,
	}

	tracer := otel.Tracer("job")
	ctx, span := tracer.Start(ctx, "Orchestrator.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", r.res.JobID),
		attribute.Int("job.fps", sub.FPS),
	)
	r.span = span

	logger.Infof("[%s] Received video: %s, FPS: %d", r.res.JobID, sub.OriginalName, sub.FPS)

	if err := Validate(sub.FPS, sub.ContentType, o.settings); err != nil {
		return r.fail(err)
	}

	release, err := o.gate.Acquire(ctx)
	if err != nil {
		return r.fail(err)
	}
	defer release()

	metrics.RunsInFlight.Inc()
	defer metrics.RunsInFlight.Dec()
	o.setCurrent(&RunStatus{JobID: r.res.JobID, State: models.StateIdle, FPS: sub.FPS, Started: r.started})
	r.holding = true
	defer o.setCurrent(nil)

	// Pipeline and archive stages ignore client disconnects and stop only with the lifetime context.
	detached := trace.ContextWithSpan(o.lifetime, trace.SpanFromContext(ctx))

	err = r.stage(ctx, models.StateReceiving, func(context.Context) error {
		video, err := workspace.Receive(sub.Body, o.settings.VideoPath())
		if err != nil {
			return err
		}
		video.FPS = sub.FPS
		video.ContentType = sub.ContentType
		video.OriginalName = sub.OriginalName
		r.res.Video = video
		metrics.UploadBytes.Add(float64(video.Size))
		return nil
	})
	if err != nil {
		return r.fail(err)
	}

	if err := r.stage(ctx, models.StateWorkspaceReset, func(context.Context) error {
		return o.workspace.Reset()
	}); err != nil {
		return r.fail(err)
	}

	err = r.stage(detached, models.StatePipelineRunning, func(stageCtx context.Context) error {
		inv, err := o.invoker.Invoke(stageCtx, pipeline.Request{
			VideoPath:     r.res.Video.Path,
			WorkspaceName: o.settings.WorkspaceName,
			FPS:           sub.FPS,
		})
		r.res.Invocation = inv
		o.shipTranscript(r.res.JobID, inv)
		return err
	})
	if err != nil {
		return r.fail(err)
	}

	if err := r.stage(ctx, models.StateValidating, func(context.Context) error {
		return workspace.ValidateOutput(o.workspace.Dir())
	}); err != nil {
		return r.fail(err)
	}

	err = r.stage(detached, models.StateArchiving, func(stageCtx context.Context) error {
		artifact, err := archiver.ZipDir(stageCtx, o.workspace.Dir(), o.settings.TempDir)
		if err != nil {
			return err
		}
		r.res.Artifact = artifact
		metrics.ArchiveBytes.Add(float64(artifact.Size))
		return nil
	})
	if err != nil {
		return r.fail(err)
	}

	return r.done()
}

// Drain blocks until no Run call is in progress or ctx ends. Run records are written
// before Run returns, so stores may be closed once Drain returns nil.
func (o *Orchestrator) Drain(ctx context.Context) error {
	o.mu.Lock()
	if o.active == 0 {
		o.mu.Unlock()
		return nil
	}
	if o.idle == nil {
		o.idle = make(chan struct{})
	}
	idle := o.idle
	o.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) begin() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active++
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active--
	if o.active == 0 && o.idle != nil {
		close(o.idle)
		o.idle = nil
	}
}

func (o *Orchestrator) setCurrent(status *RunStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.current = status
}

func (o *Orchestrator) setState(state models.RunState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != nil {
		o.current.State = state
	}
}

// shipTranscript never fails the run; a broken sink only costs the transcript.
func (o *Orchestrator) shipTranscript(jobID string, inv *models.PipelineInvocation) {
	if o.deps.Transcripts == nil || inv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(o.lifetime, time.Minute)
	defer cancel()
	if err := o.deps.Transcripts.Ship(ctx, jobID, inv); err != nil {
		metrics.TranscriptFailures.Inc()
		logger.Warnf("[%s] Failed to ship pipeline transcript: %v", jobID, err)
	}
}

// run is the per-request state of one pass through the state machine
type run struct {
	o       *Orchestrator
	res     Result
	fps     int
	started time.Time
	state   models.RunState
	span    trace.Span
	holding bool // the run owns the gate and o.current
}

func (r *run) transition(state models.RunState) {
	r.state = state
	if r.holding {
		r.o.setState(state)
	}
}

func (r *run) stage(ctx context.Context, state models.RunState, fn func(context.Context) error) error {
	r.transition(state)
	logger.Debugf("[%s] -> %s", r.res.JobID, state)

	ctx, span := otel.Tracer("job").Start(ctx, string(state))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.StageDuration.WithLabelValues(string(state)).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *run) fail(err error) (Result, error) {
	pe := models.AsProcessError(err)
	failedIn := r.state
	r.transition(models.StateFailed)

	logger.Errorf("[%s] Run failed in state %s (%s): %v", r.res.JobID, failedIn, pe.Kind, pe)
	metrics.RunsTotal.WithLabelValues("failed", string(pe.Kind)).Inc()
	r.span.RecordError(pe)
	r.span.SetStatus(codes.Error, pe.Message)
	r.span.SetAttributes(attribute.String("job.error_kind", string(pe.Kind)))

	if r.o.deps.Failures != nil {
		rec := failures.FailureRecord{
			JobID:      r.res.JobID,
			Kind:       string(pe.Kind),
			State:      string(failedIn),
			Error:      pe.Error(),
			Stderr:     pe.Stderr,
			ExitCode:   pe.ExitCode,
			FPS:        r.fps,
			VideoSize:  r.res.Video.Size,
			DurationMS: time.Since(r.started).Milliseconds(),
		}
		if err := r.o.deps.Failures.StoreFailure(rec); err != nil {
			logger.Warnf("[%s] Failed to store failure record: %v", r.res.JobID, err)
		}
	}
	return r.res, pe
}

func (r *run) done() (Result, error) {
	r.transition(models.StateDone)

	elapsed := time.Since(r.started)
	logger.Infof("[%s] Processing completed in %v: %s (%d entries, %d bytes)",
		r.res.JobID, elapsed.Round(time.Millisecond), r.res.Artifact.Path, r.res.Artifact.Entries, r.res.Artifact.Size)
	metrics.RunsTotal.WithLabelValues("succeeded", "").Inc()
	metrics.StageDuration.WithLabelValues("total").Observe(elapsed.Seconds())

	if r.o.deps.Successes != nil {
		rec := success.SuccessRecord{
			JobID:       r.res.JobID,
			FPS:         r.fps,
			VideoSize:   r.res.Video.Size,
			ArchiveSize: r.res.Artifact.Size,
			FileCount:   r.res.Artifact.Entries,
			PipelineMS:  r.res.Invocation.Duration().Milliseconds(),
			DurationMS:  elapsed.Milliseconds(),
		}
		if err := r.o.deps.Successes.StoreSuccess(rec); err != nil {
			logger.Warnf("[%s] Failed to store success record: %v", r.res.JobID, err)
		}
	}
	return r.res, nil
}
