package controller

import (
	"log/slog"
	"strconv"

	"github.com/pkg/errors"

	"github.com/motioncam/capturecore/deviceadapter"
	"github.com/motioncam/capturecore/hdr"
)

// --- OPEN / CLOSE (spec.md §4.4) ---

func (c *Controller) doOpen(ev Event) {
	if c.state != StateClosed {
		slog.Warn("capturesession: OPEN ignored, session not closed", "state", c.state.String())
		return
	}

	setupForRawPreview := ev.Payload["setupForRawPreview"] == "true"

	desc, err := c.adapter.DescribeDevice(c.deviceID)
	if err != nil {
		c.failOpen(errors.Wrap(err, "describe device"))
		return
	}
	c.deviceDesc = desc

	device, err := c.adapter.Open(c.ctx, c.deviceID, deviceadapter.DeviceCallbacks{
		OnError:        func(code int) { c.postEvent(Event{Tag: EventDeviceError, Code: code}) },
		OnDisconnected: func() { c.postEvent(Event{Tag: EventDeviceDisconnected}) },
	})
	if err != nil {
		c.failOpen(errors.Wrap(err, "open device"))
		return
	}
	c.device = device
	c.hasDevice = true

	repeat, err := c.adapter.MakeCaptureRequest(device)
	if err != nil {
		c.failOpen(errors.Wrap(err, "build repeat request"))
		return
	}
	base, err := c.adapter.MakeCaptureRequest(device)
	if err != nil {
		c.failOpen(errors.Wrap(err, "build hdr base request"))
		return
	}
	alt, err := c.adapter.MakeCaptureRequest(device)
	if err != nil {
		c.failOpen(errors.Wrap(err, "build hdr alt request"))
		return
	}

	c.setupForRawPreview = setupForRawPreview
	repeat.TargetsPreview = !setupForRawPreview
	repeat.TargetsRaw = true
	repeat.RawTypeHint = deviceadapter.RawTypeZSL
	base.TargetsRaw = true
	base.RawTypeHint = deviceadapter.RawTypeHDR
	alt.TargetsRaw = true
	alt.RawTypeHint = deviceadapter.RawTypeHDR

	c.repeatRequest = repeat
	c.hdrBaseRequest = base
	c.hdrAltRequest = alt

	if err := c.adapter.CreateImageReader(device, deviceadapter.RawOutputConfig{
		Width:     c.rawOutput.Width,
		Height:    c.rawOutput.Height,
		MaxImages: MaxBufferedRawImages,
	}, deviceadapter.ImageReaderCallbacks{OnImageAvailable: c.signalImageReader}); err != nil {
		c.failOpen(errors.Wrap(err, "create image reader"))
		return
	}
	c.startImageReader(device)

	session, err := c.adapter.CreateSession(device, deviceadapter.OutputConfig{
		SetupForRawPreview: setupForRawPreview,
		RawOutput:          c.rawOutput,
	}, deviceadapter.SessionCallbacks{
		OnActive: func() { c.postEvent(Event{Tag: EventSessionChanged, Payload: map[string]string{"state": "ACTIVE"}}) },
		OnReady:  func() { c.postEvent(Event{Tag: EventSessionChanged, Payload: map[string]string{"state": "READY"}}) },
		OnClosed: func() { c.postEvent(Event{Tag: EventSessionChanged, Payload: map[string]string{"state": "CLOSED"}}) },
	})
	if err != nil {
		c.failOpen(errors.Wrap(err, "create session"))
		return
	}
	c.session = session
	c.hasSession = true

	if _, err := c.adapter.SetRepeatingRequest(session, c.repeatRequest, c.repeatingCallbacks()); err != nil {
		c.failOpen(errors.Wrap(err, "submit repeating request"))
		return
	}
}

// failOpen reports a fatal open-time error and tears everything back down,
// mirroring spec.md §7: SessionCreateError/RequestBuildError are "thrown by
// the OPEN handler; caught by the loop which fires onCameraError and posts
// CLOSE."
func (c *Controller) failOpen(err error) {
	slog.Error("capturesession: open failed", "error", err)
	c.listener.OnCameraError(0)
	c.doClose()
}

func (c *Controller) doClose() {
	if c.hasSession {
		if err := c.adapter.CloseSession(c.session); err != nil {
			slog.Warn("capturesession: error closing session", "error", err)
		}
		c.hasSession = false
	}
	if c.hasDevice {
		if err := c.adapter.Close(c.device); err != nil {
			slog.Warn("capturesession: error closing device", "error", err)
		}
		c.hasDevice = false
	}
	c.stopImageReader()

	c.repeatRequest = nil
	c.hdrBaseRequest = nil
	c.hdrAltRequest = nil
	c.haveLastReported = false
	c.afTriggerPending = false
	c.pool.Reset()

	// Session State transitions solely on the adapter's own session
	// callbacks (spec.md §3): CloseSession above drives OnClosed, which
	// posts EventSessionChanged{"state":"CLOSED"} and lets doSessionChanged
	// make the transition, the same path ACTIVE/READY already use.
}

// --- PAUSE / RESUME ---

func (c *Controller) doPause() {
	if c.state != StateActive {
		slog.Warn("capturesession: PAUSE ignored, not ACTIVE", "state", c.state.String())
		return
	}
	if err := c.adapter.StopRepeating(c.session); err != nil {
		slog.Warn("capturesession: StopRepeating failed", "error", err)
	}
}

func (c *Controller) doResume() {
	if c.state != StateReady || !c.hasSession {
		slog.Warn("capturesession: RESUME ignored, not READY", "state", c.state.String())
		return
	}
	if _, err := c.adapter.SetRepeatingRequest(c.session, c.repeatRequest, c.repeatingCallbacks()); err != nil {
		slog.Warn("capturesession: failed to resume repeating request", "error", err)
	}
}

// --- Exposure control (spec.md §4.4 "Repeating-request rebuild") ---

func (c *Controller) doSetAutoExposure() {
	c.mode = ModeAuto
	c.cachedExposureComp = 0
	c.rebuildRepeatingRequest()
}

func (c *Controller) doSetManualExposure(ev Event) {
	iso, _ := strconv.ParseInt(ev.Payload["iso"], 10, 32)
	exp, _ := strconv.ParseInt(ev.Payload["exposureTime"], 10, 64)

	c.mode = ModeManual
	c.cachedISO = int32(iso)
	c.cachedExposureNs = exp
	c.cachedExposureComp = 0
	c.rebuildRepeatingRequest()
}

func (c *Controller) doSetExposureComp(ev Event) {
	value, _ := strconv.ParseFloat(ev.Payload["value"], 64)
	c.cachedExposureComp = clamp01(value)
	if c.mode == ModeAuto {
		c.rebuildRepeatingRequest()
	}
}

// rebuildRepeatingRequest applies the AUTO/MANUAL rules from spec.md §4.4
// to c.repeatRequest and resubmits it if the session is active.
func (c *Controller) rebuildRepeatingRequest() {
	if c.repeatRequest == nil {
		return
	}

	switch c.mode {
	case ModeAuto:
		c.repeatRequest.AEMode = deviceadapter.AEModeOn
		c.repeatRequest.AFMode = deviceadapter.AFModeContinuousPicture
		c.repeatRequest.ExposureCompensation = mapExposureCompensation(c.cachedExposureComp, c.deviceDesc.ExposureCompensationRange)
		c.repeatRequest.ISO = 0
		c.repeatRequest.ExposureTimeNs = 0
		c.repeatRequest.AFTrigger = deviceadapter.AFTriggerIdle
		c.repeatRequest.AFRegions = nil
		c.repeatRequest.AERegions = nil
	case ModeManual:
		c.repeatRequest.AEMode = deviceadapter.AEModeOff
		c.repeatRequest.ISO = c.cachedISO
		c.repeatRequest.ExposureTimeNs = c.cachedExposureNs
		c.repeatRequest.ExposureCompensation = 0
	}

	if c.state == StateActive && c.hasSession {
		if _, err := c.adapter.SetRepeatingRequest(c.session, c.repeatRequest, c.repeatingCallbacks()); err != nil {
			slog.Warn("capturesession: failed to resubmit repeating request", "error", err)
		}
	}
}

// mapExposureCompensation maps a normalized [0,1] input into the device's
// signed range, bipolar per SPEC_FULL.md §10: 0 -> rng.Min, 1 -> rng.Max.
func mapExposureCompensation(normalized float64, rng deviceadapter.Range) int32 {
	normalized = clamp01(normalized)
	span := float64(rng.Max - rng.Min)
	return rng.Min + int32(normalized*span+0.5)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// --- Focus point (spec.md §4.4 "Focus-point protocol") ---

func (c *Controller) doSetFocusPoint(ev Event) {
	if c.state != StateActive {
		slog.Warn("capturesession: SET_FOCUS_POINT ignored, not ACTIVE")
		return
	}
	if c.deviceDesc.MaxAFRegions < 1 {
		slog.Warn("capturesession: SET_FOCUS_POINT ignored, device has no AF regions")
		return
	}

	focusX, _ := strconv.ParseFloat(ev.Payload["focusX"], 64)
	focusY, _ := strconv.ParseFloat(ev.Payload["focusY"], 64)
	exposureX, _ := strconv.ParseFloat(ev.Payload["exposureX"], 64)
	exposureY, _ := strconv.ParseFloat(ev.Payload["exposureY"], 64)

	if err := c.adapter.AbortCaptures(c.session); err != nil {
		slog.Warn("capturesession: AbortCaptures before focus failed", "error", err)
	}

	c.repeatRequest.AFMode = deviceadapter.AFModeAuto
	c.repeatRequest.AFTrigger = deviceadapter.AFTriggerStart
	c.repeatRequest.AFRegions = []deviceadapter.Region{
		sensorRegion(clamp01(focusX), clamp01(focusY), c.deviceDesc.SensorActiveArrayWidth, c.deviceDesc.SensorActiveArrayHeight),
	}

	if c.deviceDesc.MaxAERegions >= 1 {
		c.repeatRequest.AERegions = []deviceadapter.Region{
			sensorRegion(clamp01(exposureX), clamp01(exposureY), c.deviceDesc.SensorActiveArrayWidth, c.deviceDesc.SensorActiveArrayHeight),
		}
		c.repeatRequest.AEPrecaptureTrigger = deviceadapter.AEPrecaptureTriggerStart
	}

	c.afTriggerPending = true

	if _, err := c.adapter.Capture(c.session, []*deviceadapter.Request{c.repeatRequest}, deviceadapter.CaptureCallbacks{
		OnCompleted: func(req *deviceadapter.Request, metadata deviceadapter.Metadata) {
			c.postEvent(Event{Tag: EventTriggerAFCompleted})
		},
		OnFailed: func(reason string) {
			slog.Error("capturesession: focus trigger capture failed", "reason", reason)
		},
	}); err != nil {
		slog.Warn("capturesession: failed to submit focus trigger", "error", err)
	}
}

func (c *Controller) doSetAutoFocus() {
	if c.state != StateActive {
		slog.Warn("capturesession: SET_AUTO_FOCUS ignored, not ACTIVE")
		return
	}
	c.repeatRequest.AFMode = deviceadapter.AFModeContinuousPicture
	c.repeatRequest.AFTrigger = deviceadapter.AFTriggerIdle
	c.rebuildRepeatingRequest()
}

func (c *Controller) doTriggerAFCompleted() {
	c.afTriggerPending = false
	c.repeatRequest.AFTrigger = deviceadapter.AFTriggerIdle
	c.repeatRequest.AEPrecaptureTrigger = deviceadapter.AEPrecaptureTriggerIdle
	c.repeatRequest.AFMode = deviceadapter.AFModeAuto

	if c.state == StateActive && c.hasSession {
		if _, err := c.adapter.SetRepeatingRequest(c.session, c.repeatRequest, c.repeatingCallbacks()); err != nil {
			slog.Warn("capturesession: failed to reissue repeating request after focus", "error", err)
		}
	}
}

// sensorRegion builds a RegionSide×RegionSide rectangle centered on a
// normalized [0,1] point, mapped into sensor-array coordinates.
func sensorRegion(normX, normY float64, sensorWidth, sensorHeight int32) deviceadapter.Region {
	centerX := int32(normX * float64(sensorWidth))
	centerY := int32(normY * float64(sensorHeight))
	half := int32(RegionSide / 2)
	return deviceadapter.Region{
		Left:   clampInt32(centerX-half, 0, sensorWidth),
		Top:    clampInt32(centerY-half, 0, sensorHeight),
		Right:  clampInt32(centerX+half, 0, sensorWidth),
		Bottom: clampInt32(centerY+half, 0, sensorHeight),
		Weight: RegionWeight,
	}
}

func clampInt32(v, min, max int32) int32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// --- HDR capture (spec.md §4.3, §4.4) ---

func (c *Controller) doCaptureHdr(ev Event) {
	if c.state != StateActive {
		slog.Warn("capturesession: CAPTURE_HDR ignored, not ACTIVE")
		return
	}

	n, _ := strconv.Atoi(ev.Payload["numImages"])
	baseISO, _ := strconv.ParseInt(ev.Payload["baseIso"], 10, 32)
	baseExp, _ := strconv.ParseInt(ev.Payload["baseExposure"], 10, 64)
	altISO, _ := strconv.ParseInt(ev.Payload["hdrIso"], 10, 32)
	altExp, _ := strconv.ParseInt(ev.Payload["hdrExposure"], 10, 64)
	outputPath := ev.Payload["outputPath"]

	job, err := c.orchestrator.Arm(n, ev.Settings, outputPath)
	if err != nil {
		if err == hdr.ErrInvalidImageCount {
			slog.Error("capturesession: CAPTURE_HDR rejected, invalid image count", "n", n)
		}
		// hdr.ErrAlreadyInProgress is logged by the orchestrator itself.
		return
	}

	c.hdrBaseRequest.AEMode = deviceadapter.AEModeOff
	c.hdrBaseRequest.ISO = int32(baseISO)
	c.hdrBaseRequest.ExposureTimeNs = baseExp
	c.hdrAltRequest.AEMode = deviceadapter.AEModeOff
	c.hdrAltRequest.ISO = int32(altISO)
	c.hdrAltRequest.ExposureTimeNs = altExp

	requests := hdr.BuildBracketRequests(c.hdrBaseRequest, c.hdrAltRequest, n)

	traceID := job.TraceID
	_, err = c.adapter.Capture(c.session, requests, deviceadapter.CaptureCallbacks{
		OnSequenceCompleted: func(seq deviceadapter.SequenceID, lastFrameNumber int64) {
			slog.Debug("capturesession: hdr sequence completed", "trace_id", traceID, "seq", seq)
			c.orchestrator.OnSequenceCompleted()
		},
		OnSequenceAborted: func(seq deviceadapter.SequenceID) {
			slog.Warn("capturesession: hdr sequence aborted", "trace_id", traceID, "seq", seq)
			c.orchestrator.OnSequenceAborted()
		},
		OnFailed: func(reason string) {
			slog.Error("capturesession: hdr bracket capture failed", "trace_id", traceID, "reason", reason)
		},
	})
	if err != nil {
		slog.Error("capturesession: failed to submit hdr bracket", "error", err)
		c.orchestrator.OnSequenceAborted()
		return
	}

	c.orchestrator.MarkSubmitted()
}

// --- Device-level error / disconnect / session state (spec.md §7) ---

func (c *Controller) doDeviceError(ev Event) {
	c.listener.OnCameraError(ev.Code)
	c.doClose()
}

func (c *Controller) doDeviceDisconnected() {
	c.listener.OnCameraDisconnected()
	c.doClose()
}

func (c *Controller) doSessionChanged(ev Event) {
	switch ev.Payload["state"] {
	case "ACTIVE":
		c.setState(StateActive)
	case "READY":
		c.setState(StateReady)
	case "CLOSED":
		c.setState(StateClosed)
	}
}

// --- Completed-metadata diff-and-emit (spec.md §4.4) ---

func (c *Controller) repeatingCallbacks() deviceadapter.CaptureCallbacks {
	return deviceadapter.CaptureCallbacks{
		OnCompleted: func(req *deviceadapter.Request, metadata deviceadapter.Metadata) {
			m := metadata
			c.postEvent(Event{Tag: EventCompletedMetadata, Metadata: &m})
		},
		OnFailed: func(reason string) {
			slog.Error("capturesession: repeating capture failed", "reason", reason)
		},
		OnBufferLost: func(frameNumber int64) {
			slog.Warn("capturesession: repeating capture buffer lost", "frame", frameNumber)
		},
	}
}

func (c *Controller) doCompletedMetadata(ev Event) {
	if ev.Metadata == nil {
		return
	}
	m := *ev.Metadata

	// A drop here never loses a transition permanently: lastReported* is
	// only updated below, past the limiter check, so a dropped frame's
	// values stay pending and the next allowed tick still diffs against
	// the last value actually reported, not the last value observed.
	if !c.metadataLimiter.Allow() {
		return
	}

	if !c.haveLastReported || m.ISO != c.lastReportedISO || m.ExposureTimeNs != c.lastReportedExpNs {
		c.listener.OnCameraExposureStatus(m.ISO, m.ExposureTimeNs)
		c.lastReportedISO = m.ISO
		c.lastReportedExpNs = m.ExposureTimeNs
	}
	if !c.haveLastReported || m.AEState != c.lastReportedAE {
		c.listener.OnCameraAutoExposureStateChanged(m.AEState)
		c.lastReportedAE = m.AEState
	}
	if !c.haveLastReported || m.AFState != c.lastReportedAF {
		c.listener.OnCameraAutoFocusStateChanged(m.AFState)
		c.lastReportedAF = m.AFState
	}
	c.haveLastReported = true
}

// --- Image reader plumbing (spec.md §5) ---

func (c *Controller) signalImageReader() {
	select {
	case c.imageSignal <- struct{}{}:
	default:
	}
}

func (c *Controller) startImageReader(device deviceadapter.DeviceHandle) {
	c.imageSignal = make(chan struct{}, 1)
	c.imageDone = make(chan struct{})
	c.imageWG.Add(1)
	go c.runImageReader(device, c.imageSignal, c.imageDone)
}

func (c *Controller) stopImageReader() {
	if c.imageDone == nil {
		return
	}
	close(c.imageDone)
	c.imageWG.Wait()
	c.imageDone = nil
	c.imageSignal = nil
}

// runImageReader is the "Image reader thread" from spec.md §5: it drains
// NextImage in a tight loop whenever signaled, handing every image to the
// pool producer, and posts SAVE_HDR_DATA once per drain if an HDR job is
// in progress and at least one HDR-tagged buffer arrived.
func (c *Controller) runImageReader(device deviceadapter.DeviceHandle, signal <-chan struct{}, done <-chan struct{}) {
	defer c.imageWG.Done()

	for {
		select {
		case <-done:
			return
		case <-signal:
			sawHdr := false
			for {
				img, ok := c.adapter.NextImage(device)
				if !ok {
					break
				}
				img.ScreenOrientation = c.orientation.Load()
				buf, enqueued := c.pool.EnqueueFromImage(img)
				if enqueued && buf.Metadata.RawType == deviceadapter.RawTypeHDR {
					sawHdr = true
				}
			}
			if sawHdr && c.orchestrator.State() != hdr.StateIdle {
				c.postEvent(Event{Tag: EventSaveHdrData})
			}
		}
	}
}
