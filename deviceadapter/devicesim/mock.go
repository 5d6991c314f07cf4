package devicesim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/motioncam/capturecore/deviceadapter"
)

// Adapter is a simulated camera device. One Adapter can have at most one
// device open at a time, matching the single-camera scope of the Capture
// Session Controller.
type Adapter struct {
	description deviceadapter.DeviceDescription
	frameWidth  int
	frameHeight int
	fps         float64

	mu      sync.Mutex
	device  *deviceState
	session *sessionState
}

type deviceState struct {
	id        string
	callbacks deviceadapter.DeviceCallbacks

	imagesMu   sync.Mutex
	irCallback deviceadapter.ImageReaderCallbacks
	pending    []deviceadapter.RawImage
}

type sessionState struct {
	id        deviceadapter.SessionHandle
	callbacks deviceadapter.SessionCallbacks
	closed    bool

	repMu     sync.Mutex
	repStop   chan struct{}
	repWG     sync.WaitGroup
	repActive bool

	seqCounter int64

	burstMu    sync.Mutex
	burstAbort chan struct{}
}

// NewAdapter creates a simulated adapter that generates frameWidth x
// frameHeight repeating frames at fps frames per second once a repeating
// request is submitted.
func NewAdapter(frameWidth, frameHeight int, fps float64, description deviceadapter.DeviceDescription) *Adapter {
	return &Adapter{
		description: description,
		frameWidth:  frameWidth,
		frameHeight: frameHeight,
		fps:         fps,
	}
}

// DescribeDevice returns the fixed capability description the Adapter was
// constructed with; deviceID is accepted but unused since the simulator
// models exactly one physical device.
func (a *Adapter) DescribeDevice(deviceID string) (deviceadapter.DeviceDescription, error) {
	return a.description, nil
}

// Open simulates opening the device. Only one open device is supported at
// a time; opening while already open returns ErrDeviceInUse.
func (a *Adapter) Open(ctx context.Context, deviceID string, callbacks deviceadapter.DeviceCallbacks) (deviceadapter.DeviceHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.device != nil {
		return deviceadapter.DeviceHandle{}, deviceadapter.ErrDeviceInUse
	}

	handle := deviceadapter.NewDeviceHandle()
	a.device = &deviceState{id: deviceID, callbacks: callbacks}

	slog.Debug("devicesim: device opened", "device_id", deviceID, "handle", handle)

	return handle, nil
}

// Close releases the device. Safe to call once per successful Open.
func (a *Adapter) Close(device deviceadapter.DeviceHandle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.device = nil
	return nil
}

// MakeCaptureRequest returns a fresh Request carrying the fixed template
// parameters from spec.md §6.
func (a *Adapter) MakeCaptureRequest(device deviceadapter.DeviceHandle) (*deviceadapter.Request, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.device == nil {
		return nil, deviceadapter.ErrRequestBuildFailed
	}

	return deviceadapter.NewRequestTemplate(), nil
}

// CreateImageReader registers the callback fired whenever a new simulated
// image is queued.
func (a *Adapter) CreateImageReader(device deviceadapter.DeviceHandle, cfg deviceadapter.RawOutputConfig, callbacks deviceadapter.ImageReaderCallbacks) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.device == nil {
		return deviceadapter.ErrRequestBuildFailed
	}

	a.device.imagesMu.Lock()
	a.device.irCallback = callbacks
	a.device.imagesMu.Unlock()

	return nil
}

// NextImage drains the oldest pending simulated image, if any.
func (a *Adapter) NextImage(device deviceadapter.DeviceHandle) (deviceadapter.RawImage, bool) {
	a.mu.Lock()
	dev := a.device
	a.mu.Unlock()

	if dev == nil {
		return deviceadapter.RawImage{}, false
	}

	dev.imagesMu.Lock()
	defer dev.imagesMu.Unlock()

	if len(dev.pending) == 0 {
		return deviceadapter.RawImage{}, false
	}

	img := dev.pending[0]
	dev.pending = dev.pending[1:]
	return img, true
}

// CreateSession creates the one simulated capture session. Fires
// callbacks.OnReady asynchronously, matching the real driver's behavior of
// reporting session readiness only after the native session object exists.
func (a *Adapter) CreateSession(device deviceadapter.DeviceHandle, outputs deviceadapter.OutputConfig, callbacks deviceadapter.SessionCallbacks) (deviceadapter.SessionHandle, error) {
	a.mu.Lock()
	if a.device == nil {
		a.mu.Unlock()
		return deviceadapter.SessionHandle{}, deviceadapter.ErrSessionCreateFailed
	}

	handle := deviceadapter.NewSessionHandle()
	sess := &sessionState{id: handle, callbacks: callbacks}
	a.session = sess
	a.mu.Unlock()

	go func() {
		if callbacks.OnReady != nil {
			callbacks.OnReady()
		}
	}()

	return handle, nil
}

// SetRepeatingRequest starts (or restarts) the ticker-driven repeating
// capture, grounded on the same generateFrames ticker shape used for
// simulated camera/video streams elsewhere in this module's ancestry.
func (a *Adapter) SetRepeatingRequest(session deviceadapter.SessionHandle, request *deviceadapter.Request, callbacks deviceadapter.CaptureCallbacks) (deviceadapter.SequenceID, error) {
	a.mu.Lock()
	sess := a.session
	dev := a.device
	a.mu.Unlock()

	if sess == nil || dev == nil {
		return 0, fmt.Errorf("devicesim: no active session")
	}

	a.stopRepeating(sess)

	sess.repMu.Lock()
	sess.seqCounter++
	seq := deviceadapter.SequenceID(sess.seqCounter)
	stop := make(chan struct{})
	sess.repStop = stop
	sess.repActive = true
	sess.repMu.Unlock()

	sess.repWG.Add(1)
	go a.runRepeating(dev, sess, request, callbacks, seq, stop)

	return seq, nil
}

func (a *Adapter) runRepeating(dev *deviceState, sess *sessionState, request *deviceadapter.Request, callbacks deviceadapter.CaptureCallbacks, seq deviceadapter.SequenceID, stop chan struct{}) {
	defer sess.repWG.Done()

	fps := a.fps
	if fps <= 0 {
		fps = 30
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
	defer ticker.Stop()

	started := false
	frameNumber := int64(0)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			frameNumber++
			now := time.Now().UnixNano()

			if !started {
				started = true
				if callbacks.OnStarted != nil {
					callbacks.OnStarted(request, now)
				}
				if sess.callbacks.OnActive != nil {
					sess.callbacks.OnActive()
				}
			}

			metadata := deviceadapter.Metadata{
				ISO:            resolvedISO(request),
				ExposureTimeNs: resolvedExposure(request),
				AEState:        aeStateFor(request),
				AFState:        afStateFor(request),
				TimestampNs:    now,
			}

			if callbacks.OnCompleted != nil {
				callbacks.OnCompleted(request, metadata)
			}

			if request.TargetsRaw {
				a.enqueueImage(dev, request, metadata, frameNumber)
			}
		}
	}
}

func (a *Adapter) enqueueImage(dev *deviceState, request *deviceadapter.Request, metadata deviceadapter.Metadata, frameNumber int64) {
	img := deviceadapter.RawImage{
		Data:              make([]byte, a.frameWidth*a.frameHeight),
		Width:             a.frameWidth,
		Height:            a.frameHeight,
		RowStride:         a.frameWidth,
		PixelFormat:       "RAW16",
		TimestampNs:       metadata.TimestampNs,
		ISO:               metadata.ISO,
		ExposureTimeNs:    metadata.ExposureTimeNs,
		RawType:           request.RawTypeHint,
	}

	dev.imagesMu.Lock()
	dev.pending = append(dev.pending, img)
	cb := dev.irCallback.OnImageAvailable
	dev.imagesMu.Unlock()

	if cb != nil {
		cb()
	}
}

// Capture submits a finite burst: HDR brackets or a one-shot AF trigger.
// The burst runs on its own goroutine, completing the requests back to
// back in list order, so tests observe OnStarted/OnCompleted for every
// element before OnSequenceCompleted fires.
func (a *Adapter) Capture(session deviceadapter.SessionHandle, requests []*deviceadapter.Request, callbacks deviceadapter.CaptureCallbacks) (deviceadapter.SequenceID, error) {
	a.mu.Lock()
	sess := a.session
	dev := a.device
	a.mu.Unlock()

	if sess == nil || dev == nil {
		return 0, fmt.Errorf("devicesim: no active session")
	}

	sess.repMu.Lock()
	sess.seqCounter++
	seq := deviceadapter.SequenceID(sess.seqCounter)
	sess.repMu.Unlock()

	sess.burstMu.Lock()
	abort := make(chan struct{})
	sess.burstAbort = abort
	sess.burstMu.Unlock()

	go a.runBurst(dev, requests, callbacks, seq, abort)

	return seq, nil
}

func (a *Adapter) runBurst(dev *deviceState, requests []*deviceadapter.Request, callbacks deviceadapter.CaptureCallbacks, seq deviceadapter.SequenceID, abort chan struct{}) {
	var lastFrameNumber int64

	for i, req := range requests {
		select {
		case <-abort:
			if callbacks.OnSequenceAborted != nil {
				callbacks.OnSequenceAborted(seq)
			}
			return
		default:
		}

		now := time.Now().UnixNano()
		lastFrameNumber = int64(i + 1)

		if callbacks.OnStarted != nil {
			callbacks.OnStarted(req, now)
		}

		metadata := deviceadapter.Metadata{
			ISO:            resolvedISO(req),
			ExposureTimeNs: resolvedExposure(req),
			AEState:        aeStateFor(req),
			AFState:        afStateFor(req),
			TimestampNs:    now,
		}

		if callbacks.OnCompleted != nil {
			callbacks.OnCompleted(req, metadata)
		}

		if req.TargetsRaw {
			a.enqueueImage(dev, req, metadata, lastFrameNumber)
		}
	}

	if callbacks.OnSequenceCompleted != nil {
		callbacks.OnSequenceCompleted(seq, lastFrameNumber)
	}
}

// StopRepeating halts the repeating capture without closing the session,
// and reports the session as READY once stopped — the same ACTIVE->READY
// transition a real driver reports after tearing down its repeating
// request, which ResumeCapture is gated on.
func (a *Adapter) StopRepeating(session deviceadapter.SessionHandle) error {
	a.mu.Lock()
	sess := a.session
	a.mu.Unlock()

	if sess == nil {
		return nil
	}
	a.stopRepeating(sess)

	if sess.callbacks.OnReady != nil {
		sess.callbacks.OnReady()
	}
	return nil
}

func (a *Adapter) stopRepeating(sess *sessionState) {
	sess.repMu.Lock()
	if !sess.repActive {
		sess.repMu.Unlock()
		return
	}
	close(sess.repStop)
	sess.repActive = false
	sess.repMu.Unlock()

	sess.repWG.Wait()
}

// AbortCaptures cancels the in-flight one-shot burst, if any.
func (a *Adapter) AbortCaptures(session deviceadapter.SessionHandle) error {
	a.mu.Lock()
	sess := a.session
	a.mu.Unlock()

	if sess == nil {
		return nil
	}

	sess.burstMu.Lock()
	if sess.burstAbort != nil {
		select {
		case <-sess.burstAbort:
			// already closed
		default:
			close(sess.burstAbort)
		}
	}
	sess.burstMu.Unlock()

	return nil
}

// CloseSession tears the simulated session down. Idempotent.
func (a *Adapter) CloseSession(session deviceadapter.SessionHandle) error {
	a.mu.Lock()
	sess := a.session
	a.session = nil
	a.mu.Unlock()

	if sess == nil {
		return nil
	}

	a.stopRepeating(sess)

	if !sess.closed {
		sess.closed = true
		if sess.callbacks.OnClosed != nil {
			sess.callbacks.OnClosed()
		}
	}

	return nil
}

func resolvedISO(r *deviceadapter.Request) int32 {
	if r.AEMode == deviceadapter.AEModeOff && r.ISO > 0 {
		return r.ISO
	}
	if r.ISO > 0 {
		return r.ISO
	}
	return 100
}

func resolvedExposure(r *deviceadapter.Request) int64 {
	if r.AEMode == deviceadapter.AEModeOff && r.ExposureTimeNs > 0 {
		return r.ExposureTimeNs
	}
	if r.ExposureTimeNs > 0 {
		return r.ExposureTimeNs
	}
	return 16_666_667
}

func aeStateFor(r *deviceadapter.Request) deviceadapter.AEState {
	if r.AEMode == deviceadapter.AEModeOff {
		return deviceadapter.AEStateInactive
	}
	return deviceadapter.AEStateConverged
}

func afStateFor(r *deviceadapter.Request) deviceadapter.AFState {
	switch {
	case r.AFTrigger == deviceadapter.AFTriggerStart:
		return deviceadapter.AFStateActiveScan
	case r.AFMode == deviceadapter.AFModeContinuousPicture:
		return deviceadapter.AFStatePassiveFocused
	default:
		return deviceadapter.AFStateInactive
	}
}
