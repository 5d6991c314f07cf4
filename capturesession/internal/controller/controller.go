// Package controller implements the Capture Session Controller's
// event-loop state machine (spec.md §4.4). The public capturesession
// package re-exports the types defined here.
package controller

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/motioncam/capturecore/bufferpool"
	"github.com/motioncam/capturecore/deviceadapter"
	"github.com/motioncam/capturecore/hdr"
)

// eventQueueCapacity bounds the event channel. Control events arrive at
// human or host-API rates, not video rate, so this is never expected to
// fill in practice; it exists as the same defensive backstop the teacher's
// command queue uses (orion-prototipe/internal/control/handler.go).
const eventQueueCapacity = 64

// Controller is the top-level capture state machine. One Controller binds
// one Device Adapter device for its lifetime; open it again via a fresh
// OpenCamera call after a close.
type Controller struct {
	adapter      deviceadapter.Adapter
	pool         *bufferpool.Pool
	orchestrator *hdr.Orchestrator
	listener     Listener
	deviceID     string
	rawOutput    deviceadapter.RawOutputConfig

	events  chan Event
	wg      sync.WaitGroup
	started sync.Once
	closing sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	orientation atomic.Int32

	progressLimiter  *rate.Limiter
	metadataLimiter  *rate.Limiter

	// Everything below is mutated only on the event-loop goroutine.
	// stateAtomic mirrors state for State(), which callers may poll from
	// any goroutine.
	state       SessionState
	stateAtomic atomic.Int32
	mode        ControlMode

	hasDevice bool
	device    deviceadapter.DeviceHandle

	hasSession bool
	session    deviceadapter.SessionHandle

	deviceDesc deviceadapter.DeviceDescription

	repeatRequest  *deviceadapter.Request
	hdrBaseRequest *deviceadapter.Request
	hdrAltRequest  *deviceadapter.Request

	setupForRawPreview bool

	cachedISO            int32
	cachedExposureNs     int64
	cachedExposureComp   float64

	lastReportedISO   int32
	lastReportedExpNs int64
	lastReportedAE    deviceadapter.AEState
	lastReportedAF    deviceadapter.AFState
	haveLastReported  bool

	afTriggerPending bool

	imageSignal chan struct{}
	imageDone   chan struct{}
	imageWG     sync.WaitGroup
}

// New builds a Controller bound to a single Device Adapter device, owning
// its own HDR Orchestrator internally. Start must be called once before
// any external API method is used.
func New(adapter deviceadapter.Adapter, pool *bufferpool.Pool, listener Listener, deviceID string, rawOutput deviceadapter.RawOutputConfig) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		adapter:         adapter,
		pool:            pool,
		listener:        listener,
		deviceID:        deviceID,
		rawOutput:       rawOutput,
		events:          make(chan Event, eventQueueCapacity),
		ctx:             ctx,
		cancel:          cancel,
		progressLimiter: rate.NewLimiter(rate.Limit(20), 1),
		metadataLimiter: rate.NewLimiter(rate.Limit(20), 1),
		state:           StateClosed,
		mode:            ModeAuto,
	}
	c.orchestrator = hdr.NewOrchestrator(pool, (*hdrListener)(c))
	return c
}

// Start launches the event-loop goroutine. Safe to call only once.
func (c *Controller) Start() {
	c.started.Do(func() {
		c.wg.Add(1)
		go c.run()
	})
}

func (c *Controller) postEvent(ev Event) {
	select {
	case c.events <- ev:
	default:
		slog.Warn("capturesession: event queue full, dropping event", "tag", ev.Tag.String())
	}
}

func (c *Controller) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	// recvdStop mirrors the original's own flag: STOP only requests exit,
	// it doesn't perform it. The loop keeps running the timed wait until
	// the session has actually finished closing, so a CLOSED transition
	// posted asynchronously by the adapter's own session callback (after
	// STOP has already been dequeued) is still picked up and delivered to
	// the listener before the goroutine exits.
	recvdStop := false

	for {
		select {
		case ev := <-c.events:
			c.handleEvent(ev)
			if ev.Tag == EventStop {
				recvdStop = true
			}
		case <-ticker.C:
			// Mirrors the original's timed blocking-queue poll. Go's channel
			// select already wakes immediately on arrival, so the only real
			// work here is re-checking an in-flight HDR job: without this,
			// a bracket that never receives its remaining buffers would
			// wait on its sequence-complete timeout forever, since nothing
			// else re-invokes AttemptSave once the image reader goes quiet.
			if c.orchestrator.State() != hdr.StateIdle {
				c.orchestrator.AttemptSave()
			}
		}

		if recvdStop && c.state == StateClosed {
			return
		}
	}
}

func (c *Controller) handleEvent(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("capturesession: event handler panicked, closing session", "tag", ev.Tag.String(), "panic", r)
			c.doClose()
		}
	}()

	switch ev.Tag {
	case EventOpen:
		c.doOpen(ev)
	case EventClose:
		c.doClose()
	case EventPause:
		c.doPause()
	case EventResume:
		c.doResume()
	case EventSetAutoExposure:
		c.doSetAutoExposure()
	case EventSetManualExposure:
		c.doSetManualExposure(ev)
	case EventSetExposureComp:
		c.doSetExposureComp(ev)
	case EventSetFocusPoint:
		c.doSetFocusPoint(ev)
	case EventSetAutoFocus:
		c.doSetAutoFocus()
	case EventCaptureHdr:
		c.doCaptureHdr(ev)
	case EventSaveHdrData:
		c.orchestrator.AttemptSave()
	case EventDeviceError:
		c.doDeviceError(ev)
	case EventDeviceDisconnected:
		c.doDeviceDisconnected()
	case EventSessionChanged:
		c.doSessionChanged(ev)
	case EventCompletedMetadata:
		c.doCompletedMetadata(ev)
	case EventTriggerAFCompleted:
		c.doTriggerAFCompleted()
	case EventStop:
		// No-op: handled by the caller of handleEvent via the tag check.
	}
}

// --- External API (spec.md §4.4) — every method returns without waiting
// for the event loop, except CloseCamera. ---

func (c *Controller) OpenCamera(setupForRawPreview bool) {
	c.postEvent(Event{Tag: EventOpen, Payload: map[string]string{
		"setupForRawPreview": boolString(setupForRawPreview),
	}})
}

// CloseCamera posts CLOSE then STOP and blocks until the event loop
// joins. Safe to call more than once: the second call observes the
// event loop already joined and returns immediately.
func (c *Controller) CloseCamera() {
	c.closing.Do(func() {
		c.postEvent(Event{Tag: EventClose})
		c.postEvent(Event{Tag: EventStop})
	})
	c.wg.Wait()
	c.cancel()
}

func (c *Controller) PauseCapture()  { c.postEvent(Event{Tag: EventPause}) }
func (c *Controller) ResumeCapture() { c.postEvent(Event{Tag: EventResume}) }
func (c *Controller) SetAutoFocus()  { c.postEvent(Event{Tag: EventSetAutoFocus}) }
func (c *Controller) SetAutoExposure() { c.postEvent(Event{Tag: EventSetAutoExposure}) }

func (c *Controller) SetManualExposure(iso int32, exposureTimeNs int64) {
	c.postEvent(Event{Tag: EventSetManualExposure, Payload: map[string]string{
		"iso":          intString(int64(iso)),
		"exposureTime": intString(exposureTimeNs),
	}})
}

func (c *Controller) SetExposureCompensation(normalized float64) {
	c.postEvent(Event{Tag: EventSetExposureComp, Payload: map[string]string{
		"value": floatString(normalized),
	}})
}

func (c *Controller) SetFocusPoint(focusX, focusY, exposureX, exposureY float64) {
	c.postEvent(Event{Tag: EventSetFocusPoint, Payload: map[string]string{
		"focusX":    floatString(focusX),
		"focusY":    floatString(focusY),
		"exposureX": floatString(exposureX),
		"exposureY": floatString(exposureY),
	}})
}

// CaptureHdr rejects n < 1 (logged as an error) and any request made while
// an HDR job is already in flight (logged as a warning) without posting an
// event; doCaptureHdr repeats the in-flight check when it arms the job.
func (c *Controller) CaptureHdr(n int, baseISO int32, baseExposureNs int64, altISO int32, altExposureNs int64, settings deviceadapter.PostProcessSettings, outputPath string) {
	if n < 1 {
		slog.Error("capturesession: CAPTURE_HDR rejected, invalid image count", "n", n)
		return
	}
	if c.orchestrator.State() != hdr.StateIdle {
		slog.Warn("capturesession: CAPTURE_HDR rejected, hdr capture already in progress")
		return
	}
	c.postEvent(Event{
		Tag:      EventCaptureHdr,
		Settings: settings,
		Payload: map[string]string{
			"numImages":    intString(int64(n)),
			"baseIso":      intString(int64(baseISO)),
			"baseExposure": intString(baseExposureNs),
			"hdrIso":       intString(int64(altISO)),
			"hdrExposure":  intString(altExposureNs),
			"outputPath":   outputPath,
		},
	})
}

// UpdateOrientation is a direct atomic write, not an Event (spec.md §4.4).
func (c *Controller) UpdateOrientation(orientation int32) {
	c.orientation.Store(orientation)
}

// State returns the Controller's last-known session state. Safe for
// concurrent use via stateAtomic; state itself is touched only on the
// event-loop goroutine.
func (c *Controller) State() SessionState {
	return SessionState(c.stateAtomic.Load())
}

func (c *Controller) setState(s SessionState) {
	c.state = s
	c.stateAtomic.Store(int32(s))
	c.listener.OnCameraStateChanged(s)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func intString(v int64) string {
	return strconv.FormatInt(v, 10)
}

func floatString(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
