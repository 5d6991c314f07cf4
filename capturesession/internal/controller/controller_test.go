package controller

import (
	"sync"
	"testing"
	"time"

	"github.com/motioncam/capturecore/bufferpool"
	"github.com/motioncam/capturecore/deviceadapter"
	"github.com/motioncam/capturecore/deviceadapter/devicesim"
	"github.com/motioncam/capturecore/hdr"
)

func testDescription() deviceadapter.DeviceDescription {
	return deviceadapter.DeviceDescription{
		MaxAFRegions:            1,
		MaxAERegions:            1,
		SupportsOIS:             false,
		SensorActiveArrayWidth:  4000,
		SensorActiveArrayHeight: 3000,
		ExposureCompensationRange: deviceadapter.Range{
			Min: -12,
			Max: 12,
		},
	}
}

// recorder is a Listener that records every notification under a mutex so
// the test goroutine can poll it safely while the event loop keeps firing
// callbacks concurrently.
type recorder struct {
	mu sync.Mutex

	states       []SessionState
	errorCodes   []int
	disconnected int
	lastISO      int32
	lastExpNs    int64
	haveExposure bool
	aeStates     []deviceadapter.AEState
	afStates     []deviceadapter.AFState
	hdrProgress  []float64
	hdrCompleted int
	hdrFailed    int
}

func newRecorder() *recorder { return &recorder{} }

func (r *recorder) OnCameraStateChanged(state SessionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recorder) OnCameraError(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorCodes = append(r.errorCodes, code)
}

func (r *recorder) OnCameraDisconnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected++
}

func (r *recorder) OnCameraExposureStatus(iso int32, exposureTimeNs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastISO = iso
	r.lastExpNs = exposureTimeNs
	r.haveExposure = true
}

func (r *recorder) OnCameraAutoExposureStateChanged(state deviceadapter.AEState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aeStates = append(r.aeStates, state)
}

func (r *recorder) OnCameraAutoFocusStateChanged(state deviceadapter.AFState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afStates = append(r.afStates, state)
}

func (r *recorder) OnCameraHdrImageCaptureProgress(percent float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hdrProgress = append(r.hdrProgress, percent)
}

func (r *recorder) OnCameraHdrImageCaptureCompleted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hdrCompleted++
}

func (r *recorder) OnCameraHdrImageCaptureFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hdrFailed++
}

func (r *recorder) lastState() SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return StateClosed
	}
	return r.states[len(r.states)-1]
}

func (r *recorder) exposure() (int32, int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastISO, r.lastExpNs, r.haveExposure
}

func (r *recorder) aeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.aeStates)
}

func (r *recorder) afCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.afStates)
}

func (r *recorder) hdrCounts() (completed, failed, progressSamples int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hdrCompleted, r.hdrFailed, len(r.hdrProgress)
}

func (r *recorder) errorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errorCodes)
}

// waitFor polls cond until it returns true or timeout elapses, failing the
// test on timeout. Every test in this file waits for a state change this way
// rather than with a fixed sleep, since the event loop and simulated device
// run on their own clocks; the one fixed sleep checks that nothing changes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func newTestController(t *testing.T, poolCapacity, frameW, frameH int, fps float64) (*Controller, *recorder) {
	t.Helper()

	pool := bufferpool.NewPool(poolCapacity)
	for i := 0; i < poolCapacity; i++ {
		pool.AddBuffer(bufferpool.NewBuffer(frameW, frameH, frameW, "RAW16"))
	}

	adapter := devicesim.NewAdapter(frameW, frameH, fps, testDescription())
	rec := newRecorder()

	c := New(adapter, pool, rec, "cam0", deviceadapter.RawOutputConfig{
		Width:     frameW,
		Height:    frameH,
		MaxImages: MaxBufferedRawImages,
	})
	c.Start()
	t.Cleanup(c.CloseCamera)

	return c, rec
}

// Scenario 1: open -> active -> close.
func TestOpenActiveClose(t *testing.T) {
	c, rec := newTestController(t, 4, 16, 16, 50)

	c.OpenCamera(false)
	waitFor(t, 2*time.Second, func() bool { return c.State() == StateActive })

	c.CloseCamera()

	waitFor(t, time.Second, func() bool { return c.State() == StateClosed })
	if got := rec.lastState(); got != StateClosed {
		t.Fatalf("listener's last reported state = %s, want CLOSED", got)
	}
}

// Scenario 2: manual exposure round trip, then back to auto.
func TestManualExposureRoundTrip(t *testing.T) {
	c, rec := newTestController(t, 4, 16, 16, 50)

	c.OpenCamera(false)
	waitFor(t, 2*time.Second, func() bool { return c.State() == StateActive })

	c.SetManualExposure(800, 20_000_000)
	waitFor(t, 2*time.Second, func() bool {
		iso, exp, ok := rec.exposure()
		return ok && iso == 800 && exp == 20_000_000
	})

	aeBefore := rec.aeCount()
	c.SetAutoExposure()
	waitFor(t, 2*time.Second, func() bool { return rec.aeCount() > aeBefore })
}

// Scenario 3: focus point triggers a one-shot AF scan, then the repeating
// request resumes continuous autofocus.
func TestFocusPointAndResumption(t *testing.T) {
	c, rec := newTestController(t, 4, 16, 16, 50)

	c.OpenCamera(false)
	waitFor(t, 2*time.Second, func() bool { return c.State() == StateActive })

	afBefore := rec.afCount()
	c.SetFocusPoint(0.5, 0.5, 0.5, 0.5)
	waitFor(t, 2*time.Second, func() bool { return rec.afCount() > afBefore })

	c.SetAutoFocus()

	if got := c.State(); got != StateActive {
		t.Fatalf("state after focus resumption = %s, want ACTIVE", got)
	}
}

// Scenario 3b: pausing an ACTIVE session drives it to READY (the adapter's
// own OnReady callback, fired once the repeating request has actually
// stopped), and resuming from READY drives it back to ACTIVE.
func TestPauseThenResumeRoundTrip(t *testing.T) {
	c, _ := newTestController(t, 4, 16, 16, 50)

	c.OpenCamera(false)
	waitFor(t, 2*time.Second, func() bool { return c.State() == StateActive })

	c.PauseCapture()
	waitFor(t, 2*time.Second, func() bool { return c.State() == StateReady })

	c.ResumeCapture()
	waitFor(t, 2*time.Second, func() bool { return c.State() == StateActive })
}

// Scenario 4: a full HDR bracket arrives and drains to a completed
// container.
func TestCaptureHdrSucceeds(t *testing.T) {
	c, rec := newTestController(t, 8, 16, 16, 80)

	c.OpenCamera(false)
	waitFor(t, 2*time.Second, func() bool { return c.State() == StateActive })

	c.CaptureHdr(4, 800, 20_000_000, 100, 5_000_000,
		deviceadapter.PostProcessSettings{"denoise": true}, "/tmp/hdr-out")

	waitFor(t, 3*time.Second, func() bool {
		completed, _, _ := rec.hdrCounts()
		return completed == 1
	})

	completed, failed, samples := rec.hdrCounts()
	if completed != 1 || failed != 0 {
		t.Fatalf("hdr outcome = completed=%d failed=%d, want completed=1 failed=0", completed, failed)
	}
	if samples == 0 {
		t.Fatal("expected at least one progress notification before completion")
	}

	waitFor(t, time.Second, func() bool { return c.orchestrator.State() == hdr.StateIdle })
}

// Scenario 5: only some HDR buffers ever arrive (a small pool keeps losing
// them to the still-running ZSL stream), so the job fails once the
// sequence-complete timeout elapses. The ZSL repeating stream itself is
// unaffected.
func TestCaptureHdrTimesOutWhenBuffersNeverArrive(t *testing.T) {
	c, rec := newTestController(t, 3, 16, 16, 50)

	c.OpenCamera(false)
	waitFor(t, 2*time.Second, func() bool { return c.State() == StateActive })

	c.CaptureHdr(8, 800, 20_000_000, 100, 5_000_000, nil, "/tmp/hdr-timeout")

	waitFor(t, 8*time.Second, func() bool {
		_, failed, _ := rec.hdrCounts()
		return failed == 1
	})

	completed, failed, _ := rec.hdrCounts()
	if completed != 0 || failed != 1 {
		t.Fatalf("hdr outcome = completed=%d failed=%d, want completed=0 failed=1", completed, failed)
	}

	if got := c.State(); got != StateActive {
		t.Fatalf("state after hdr timeout = %s, want ACTIVE (repeating stream unaffected)", got)
	}
}

// Scenario 6: a device error mid-stream cascades straight to CLOSED, and
// further API calls on the closed session are no-ops.
func TestDeviceErrorCascadesToClose(t *testing.T) {
	c, rec := newTestController(t, 4, 16, 16, 50)

	c.OpenCamera(false)
	waitFor(t, 2*time.Second, func() bool { return c.State() == StateActive })

	c.postEvent(Event{Tag: EventDeviceError, Code: 2})

	waitFor(t, time.Second, func() bool { return c.State() == StateClosed })

	if got := rec.errorCount(); got != 1 {
		t.Fatalf("error notifications = %d, want 1", got)
	}
	if got := rec.lastState(); got != StateClosed {
		t.Fatalf("listener's last reported state = %s, want CLOSED", got)
	}

	// Further calls are posted but should have no observable effect: the
	// handlers all check c.state and return early.
	c.PauseCapture()
	c.SetAutoFocus()
	time.Sleep(50 * time.Millisecond)
	if got := c.State(); got != StateClosed {
		t.Fatalf("state after no-op calls on closed session = %s, want CLOSED", got)
	}
}
