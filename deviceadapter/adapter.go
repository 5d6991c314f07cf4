package deviceadapter

import (
	"context"
	"errors"
)

// Sentinel errors returned by adapter implementations. The Controller does
// not distinguish between them: any open-time error is wrapped, logged and
// reported as OnCameraError(0) before the session is torn down.
var (
	ErrDeviceNotFound      = errors.New("deviceadapter: device not found")
	ErrDeviceInUse         = errors.New("deviceadapter: device already in use")
	ErrDevicePermission    = errors.New("deviceadapter: permission denied")
	ErrDeviceInternal      = errors.New("deviceadapter: internal error opening device")
	ErrSessionCreateFailed = errors.New("deviceadapter: failed to create capture session")
	ErrRequestBuildFailed  = errors.New("deviceadapter: failed to build capture request")
)

// DeviceCallbacks are delivered for the lifetime of an opened device,
// independent of any particular session.
type DeviceCallbacks struct {
	OnError        func(code int)
	OnDisconnected func()
}

// SessionCallbacks are delivered for the lifetime of one capture session.
type SessionCallbacks struct {
	OnActive func()
	OnReady  func()
	OnClosed func()
}

// CaptureCallbacks are delivered for one submitted sequence (repeating,
// HDR bracket, or a one-shot AF trigger).
type CaptureCallbacks struct {
	OnStarted           func(req *Request, timestampNs int64)
	OnCompleted         func(req *Request, metadata Metadata)
	OnProgressed        func(metadata Metadata)
	OnFailed            func(reason string)
	OnBufferLost        func(frameNumber int64)
	OnSequenceCompleted func(seq SequenceID, lastFrameNumber int64)
	OnSequenceAborted   func(seq SequenceID)
}

// ImageReaderCallbacks delivers raw buffer availability, decoupled from any
// particular capture request.
type ImageReaderCallbacks struct {
	// OnImageAvailable is invoked once per image ready to be drained; the
	// receiver is expected to drain the reader in a tight loop until empty
	// (spec.md §5, "Image reader thread").
	OnImageAvailable func()
}

// Adapter is the narrow contract the Capture Session Controller consumes.
// The one implementation shipped in this module is devicesim.Adapter; a
// real platform binding would satisfy the same interface.
type Adapter interface {
	// DescribeDevice reports region/exposure capabilities without opening
	// the device, so the Controller can validate focus-point and exposure
	// requests before they reach an active session.
	DescribeDevice(deviceID string) (DeviceDescription, error)

	// Open opens the device and begins delivering DeviceCallbacks. It does
	// not start any capture; the Controller still has to build requests,
	// create a session, and submit a repeating request.
	Open(ctx context.Context, deviceID string, callbacks DeviceCallbacks) (DeviceHandle, error)

	// Close releases the device. Safe to call once per successful Open.
	Close(device DeviceHandle) error

	// MakeCaptureRequest allocates a Request pre-filled with the fixed
	// template parameters (spec.md §6).
	MakeCaptureRequest(device DeviceHandle) (*Request, error)

	// CreateImageReader wires a raw-buffer producer. MaxImages is always
	// MAX_BUFFERED_RAW_IMAGES (spec.md §6).
	CreateImageReader(device DeviceHandle, cfg RawOutputConfig, callbacks ImageReaderCallbacks) error

	// NextImage pulls one pending image from the reader queued by
	// ImageReaderCallbacks.OnImageAvailable. ok is false once the reader is
	// drained; callers loop on NextImage until ok is false, per spec.md §5.
	NextImage(device DeviceHandle) (img RawImage, ok bool)

	// CreateSession creates a capture session against the outputs
	// configured via CreateImageReader and the caller's preview surface.
	CreateSession(device DeviceHandle, outputs OutputConfig, callbacks SessionCallbacks) (SessionHandle, error)

	// SetRepeatingRequest submits (or replaces) the continuously
	// re-submitted request for a session.
	SetRepeatingRequest(session SessionHandle, request *Request, callbacks CaptureCallbacks) (SequenceID, error)

	// Capture submits a finite ordered list of requests as a single
	// sequence — used for HDR brackets and one-shot AF triggers.
	Capture(session SessionHandle, requests []*Request, callbacks CaptureCallbacks) (SequenceID, error)

	// StopRepeating halts the session's repeating request without closing
	// the session.
	StopRepeating(session SessionHandle) error

	// AbortCaptures cancels any in-flight one-shot sequence on a session.
	AbortCaptures(session SessionHandle) error

	// CloseSession tears down a capture session. Idempotent.
	CloseSession(session SessionHandle) error
}
