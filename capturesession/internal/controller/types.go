package controller

import (
	"github.com/pkg/errors"

	"github.com/motioncam/capturecore/deviceadapter"
)

// SessionState enumerates the Controller's lifecycle, driven solely by the
// Device Adapter (spec.md §3 — "Session State transitions are driven solely
// by the Device Adapter; the Controller never asserts a state directly").
type SessionState int

const (
	StateClosed SessionState = iota
	StateReady
	StateActive
)

func (s SessionState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateReady:
		return "READY"
	case StateActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// ControlMode enumerates the repeating request's exposure regime.
type ControlMode int

const (
	ModeAuto ControlMode = iota
	ModeManual
)

// EventTag names the kind of record carried through the event loop
// (spec.md §3).
type EventTag int

const (
	EventOpen EventTag = iota
	EventClose
	EventPause
	EventResume
	EventSetAutoExposure
	EventSetManualExposure
	EventSetExposureComp
	EventSetFocusPoint
	EventSetAutoFocus
	EventCaptureHdr
	EventSaveHdrData
	EventDeviceError
	EventDeviceDisconnected
	EventSessionChanged
	EventCompletedMetadata
	EventTriggerAFCompleted
	EventStop
)

func (t EventTag) String() string {
	switch t {
	case EventOpen:
		return "OPEN"
	case EventClose:
		return "CLOSE"
	case EventPause:
		return "PAUSE"
	case EventResume:
		return "RESUME"
	case EventSetAutoExposure:
		return "SET_AUTO_EXPOSURE"
	case EventSetManualExposure:
		return "SET_MANUAL_EXPOSURE"
	case EventSetExposureComp:
		return "SET_EXPOSURE_COMP"
	case EventSetFocusPoint:
		return "SET_FOCUS_POINT"
	case EventSetAutoFocus:
		return "SET_AUTO_FOCUS"
	case EventCaptureHdr:
		return "CAPTURE_HDR"
	case EventSaveHdrData:
		return "SAVE_HDR_DATA"
	case EventDeviceError:
		return "DEVICE_ERROR"
	case EventDeviceDisconnected:
		return "DEVICE_DISCONNECTED"
	case EventSessionChanged:
		return "SESSION_CHANGED"
	case EventCompletedMetadata:
		return "EXPOSURE_STATUS_CHANGED" // also folds AE_STATE/AF_STATE_CHANGED, see doCompletedMetadata
	case EventTriggerAFCompleted:
		return "TRIGGER_AF_COMPLETED"
	case EventStop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// Event is a tagged record carried through the event loop. Payload holds
// the string-keyed scalar schema from spec.md §6 for events crossing from
// the external API; Settings and Metadata carry the two payload shapes
// that schema can't express as strings (an opaque settings bag and a
// structured capture-result snapshot) without losing information.
type Event struct {
	Tag      EventTag
	Payload  map[string]string
	Settings deviceadapter.PostProcessSettings
	Metadata *deviceadapter.Metadata
	Code     int
}

// Listener receives Controller notifications, fired on the event-loop
// thread (spec.md §6).
type Listener interface {
	OnCameraStateChanged(state SessionState)
	OnCameraError(code int)
	OnCameraDisconnected()
	OnCameraExposureStatus(iso int32, exposureTimeNs int64)
	OnCameraAutoExposureStateChanged(state deviceadapter.AEState)
	OnCameraAutoFocusStateChanged(state deviceadapter.AFState)
	OnCameraHdrImageCaptureProgress(percent float64)
	OnCameraHdrImageCaptureCompleted()
	OnCameraHdrImageCaptureFailed()
}

// Error taxonomy (spec.md §7). These are plain sentinel values; doOpen does
// not return them. It wraps the adapter's own error with errors.Wrap from
// github.com/pkg/errors, logs it, and reports it through failOpen.
var (
	ErrDeviceOpenFailed    = errors.New("capturesession: device open failed")
	ErrSessionCreateFailed = errors.New("capturesession: session create failed")
	ErrRequestBuildFailed  = errors.New("capturesession: request build failed")
)
