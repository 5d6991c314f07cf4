package hdr

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/motioncam/capturecore/bufferpool"
	"github.com/motioncam/capturecore/deviceadapter"

	"log/slog"
)

// Timeout bounds how long the orchestrator waits, after the hardware
// reports the HDR capture sequence complete, for every HDR-tagged buffer
// to show up in the pool before giving up (CameraSession.cpp,
// doAttemptSaveHdrData: 5000ms).
const Timeout = 5 * time.Second

// State is the orchestrator's position in the HDR capture protocol.
type State int

const (
	StateIdle State = iota
	StateArmed
	StateSequenceSubmitted
	StateSequenceCompleteWaitingBuffers
	StateSaving
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateArmed:
		return "ARMED"
	case StateSequenceSubmitted:
		return "SEQUENCE_SUBMITTED"
	case StateSequenceCompleteWaitingBuffers:
		return "SEQUENCE_COMPLETE_WAITING_BUFFERS"
	case StateSaving:
		return "SAVING"
	default:
		return "UNKNOWN"
	}
}

// ErrAlreadyInProgress is returned by Arm when an HDR job is already
// underway. The caller should log it as a warning, not surface it as a
// capture failure — the in-flight job is left untouched.
var ErrAlreadyInProgress = errors.New("hdr: capture already in progress")

// ErrInvalidImageCount is returned by Arm when n < 1.
var ErrInvalidImageCount = errors.New("hdr: image count must be >= 1")

// Job describes one armed HDR bracket capture.
type Job struct {
	TraceID    uuid.UUID
	N          int
	Settings   deviceadapter.PostProcessSettings
	OutputPath string

	sequenceCompleted   bool
	sequenceCompletedAt time.Time
}

// Listener receives HDR job progress and outcome notifications. Calls are
// made synchronously from whichever goroutine drives the orchestrator
// (the capture session's event loop); implementations must not block.
type Listener interface {
	OnCameraHdrImageCaptureProgress(traceID uuid.UUID, percent float64)
	OnCameraHdrImageCaptureCompleted(traceID uuid.UUID, container *bufferpool.Container)
	OnCameraHdrImageCaptureFailed(traceID uuid.UUID, err error)
}

// Orchestrator drives the HDR bracket-capture protocol described in
// SPEC_FULL.md §4.3, grounded on CameraSession.cpp's doCaptureHdr and
// doAttemptSaveHdrData. It owns no device state; the caller is
// responsible for actually submitting the request list BuildBracketRequests
// produces and
// for reporting sequence completion/abort back via OnSequenceCompleted/
// OnSequenceAborted.
type Orchestrator struct {
	mu       sync.Mutex
	state    State
	job      *Job
	pool     *bufferpool.Pool
	listener Listener
	now      func() time.Time
}

// NewOrchestrator builds an Orchestrator bound to pool for buffer
// bookkeeping and listener for outcome callbacks.
func NewOrchestrator(pool *bufferpool.Pool, listener Listener) *Orchestrator {
	return &Orchestrator{
		pool:     pool,
		listener: listener,
		now:      time.Now,
	}
}

// State returns the orchestrator's current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Arm validates and records the parameters of a new HDR job and moves the
// orchestrator to ARMED. It rejects n < 1 outright, and rejects the
// request (leaving any in-flight job untouched) if a job is already in
// progress — both per spec.md §9, "reject captureHdr while one is already
// running, with a warning, not an error."
func (o *Orchestrator) Arm(n int, settings deviceadapter.PostProcessSettings, outputPath string) (*Job, error) {
	if n < 1 {
		return nil, ErrInvalidImageCount
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateIdle {
		slog.Warn("hdr: rejecting captureHdr, job already in progress", "state", o.state.String())
		return nil, ErrAlreadyInProgress
	}

	job := &Job{
		TraceID:    uuid.New(),
		N:          n,
		Settings:   settings,
		OutputPath: outputPath,
	}
	o.job = job
	o.state = StateArmed

	return job, nil
}

// BuildBracketRequests expands base and alt into the N+1 request list the
// hardware must be given for one HDR bracket: N copies of base, with alt
// substituted at index N/2 (integer division — CameraSession.cpp,
// doCaptureHdr lines 776-815). base and alt are reused by reference, not
// copied, matching the original's reuse of the same two
// ACaptureRequest* pointers.
func BuildBracketRequests(base, alt *deviceadapter.Request, n int) []*deviceadapter.Request {
	total := n + 1
	list := make([]*deviceadapter.Request, total)
	for i := range list {
		list[i] = base
	}
	list[n/2] = alt
	return list
}

// MarkSubmitted transitions ARMED to SEQUENCE_SUBMITTED once the request
// list has actually been handed to the device adapter.
func (o *Orchestrator) MarkSubmitted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateArmed {
		o.state = StateSequenceSubmitted
	}
}

// OnSequenceCompleted records that the hardware finished the HDR capture
// sequence. It starts the save timeout clock; it does not by itself
// produce a container — that only happens once AttemptSave sees enough
// buffers, or times out.
func (o *Orchestrator) OnSequenceCompleted() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.job == nil {
		return
	}
	o.job.sequenceCompleted = true
	o.job.sequenceCompletedAt = o.now()
	if o.state == StateSequenceSubmitted {
		o.state = StateSequenceCompleteWaitingBuffers
	}
}

// OnSequenceAborted tears down the in-flight job immediately, reporting
// failure to the listener. Used when the hardware aborts the capture
// sequence (e.g. the session is closing).
func (o *Orchestrator) OnSequenceAborted() {
	o.mu.Lock()
	job := o.job
	o.job = nil
	o.state = StateIdle
	o.mu.Unlock()

	if job != nil {
		o.listener.OnCameraHdrImageCaptureFailed(job.TraceID, errors.New("hdr: capture sequence aborted"))
	}
}

// AttemptSave is the orchestrator's poll step. The capture session calls it
// for each SAVE_HDR_DATA event (posted once per image-reader drain that
// delivered at least one HDR-tagged buffer while a job is in progress) and
// on every event-loop poll tick while a job is in flight. It checks the
// pool's current HDR buffer count against N+1, reports progress, completes
// and drains the container once the sequence-complete callback has arrived
// and enough buffers are in the pool, or fails the job if the
// sequence-complete timeout has elapsed.
func (o *Orchestrator) AttemptSave() {
	o.mu.Lock()
	job := o.job
	if job == nil {
		o.mu.Unlock()
		return
	}

	have := o.pool.NumHdrBuffers()
	want := job.N + 1

	if job.sequenceCompleted && o.now().Sub(job.sequenceCompletedAt) > Timeout {
		o.job = nil
		o.state = StateIdle
		o.mu.Unlock()

		slog.Error("hdr: save timed out waiting for buffers", "trace_id", job.TraceID, "have", have, "want", want)
		o.listener.OnCameraHdrImageCaptureFailed(job.TraceID, errors.New("hdr: timed out waiting for buffers"))
		return
	}

	if have < want || !job.sequenceCompleted {
		o.mu.Unlock()
		percent := float64(have) / float64(want) * 100
		if percent > 100 {
			percent = 100
		}
		o.listener.OnCameraHdrImageCaptureProgress(job.TraceID, percent)
		return
	}

	o.state = StateSaving
	o.mu.Unlock()

	o.listener.OnCameraHdrImageCaptureProgress(job.TraceID, 100)

	container, err := o.pool.DrainHdrToContainer(bufferpool.Metadata{}, job.Settings, job.OutputPath)

	o.mu.Lock()
	o.job = nil
	o.state = StateIdle
	o.mu.Unlock()

	if err != nil {
		slog.Error("hdr: failed to drain buffers to container", "trace_id", job.TraceID, "error", err)
		o.listener.OnCameraHdrImageCaptureFailed(job.TraceID, errors.Wrap(err, "hdr: drain to container"))
		return
	}

	o.listener.OnCameraHdrImageCaptureCompleted(job.TraceID, container)
}
