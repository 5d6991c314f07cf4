package deviceadapter

import "github.com/google/uuid"

// AEMode is the auto-exposure mode of a capture request.
type AEMode int

const (
	AEModeOff AEMode = iota
	AEModeOn
)

// AFMode is the autofocus mode of a capture request.
type AFMode int

const (
	AFModeOff AFMode = iota
	AFModeAuto
	AFModeContinuousPicture
)

// AWBMode is the auto white-balance mode of a capture request.
type AWBMode int

const (
	AWBModeAuto AWBMode = iota
)

// AFTrigger requests an autofocus scan transition.
type AFTrigger int

const (
	AFTriggerIdle AFTrigger = iota
	AFTriggerStart
)

// AEPrecaptureTrigger requests an auto-exposure precapture transition.
type AEPrecaptureTrigger int

const (
	AEPrecaptureTriggerIdle AEPrecaptureTrigger = iota
	AEPrecaptureTriggerStart
)

// CaptureIntent names the purpose a capture request was built for.
type CaptureIntent int

const (
	CaptureIntentZeroShutterLag CaptureIntent = iota
)

// AntiBandingMode, TonemapMode, ShadingMode, ColorCorrectionMode and
// NoiseReductionMode are template-fixed parameters (spec.md §6); the
// simulated adapter stores but never interprets them.
type (
	AntiBandingMode     int
	TonemapMode         int
	ShadingMode         int
	ColorCorrectionMode int
	NoiseReductionMode  int
)

const (
	AntiBandingModeAuto AntiBandingMode = iota
)

const (
	TonemapModeFast TonemapMode = iota
)

const (
	ShadingModeFast ShadingMode = iota
)

const (
	ColorCorrectionModeHighQuality ColorCorrectionMode = iota
)

const (
	NoiseReductionModeFast NoiseReductionMode = iota
)

// AEState mirrors the device's reported auto-exposure convergence state.
type AEState int

const (
	AEStateInactive AEState = iota
	AEStateSearching
	AEStateConverged
	AEStateLocked
	AEStateFlashRequired
	AEStatePrecapture
)

// AFState mirrors the device's reported autofocus convergence state.
type AFState int

const (
	AFStateInactive AFState = iota
	AFStatePassiveScan
	AFStatePassiveFocused
	AFStateActiveScan
	AFStateFocusLocked
	AFStateNotFocusLocked
	AFStatePassiveUnfocused
)

// RawType tags the provenance of a raw buffer: the continuous ZSL stream
// or a manually-exposed HDR bracket frame.
type RawType int

const (
	RawTypeZSL RawType = iota
	RawTypeHDR
)

// Region is a weighted rectangle in sensor-array coordinates, used for AF
// and AE metering regions.
type Region struct {
	Left, Top, Right, Bottom int32
	Weight                   int32
}

// Metadata is the per-capture result handed back on completion: the values
// the device actually used, not the values requested.
type Metadata struct {
	ISO            int32
	ExposureTimeNs int64
	AEState        AEState
	AFState        AFState
	TimestampNs    int64
}

// PostProcessSettings is an opaque bag of parameters forwarded to the
// downstream HDR fuser; the core never inspects its contents.
type PostProcessSettings map[string]any

// Request is a mutable capture request template. One instance backs the
// repeating preview/ZSL stream; two more back the HDR base and alternate
// brackets. The Controller is the only writer; the Adapter only reads it
// when a request is submitted.
type Request struct {
	CaptureIntent           CaptureIntent
	AntiBandingMode         AntiBandingMode
	TonemapMode             TonemapMode
	ShadingMode             ShadingMode
	ColorCorrectionMode     ColorCorrectionMode
	LensShadingMapStatsMode bool
	LensShadingApplied      bool
	NoiseReductionMode      NoiseReductionMode
	OIS                     bool

	AEMode               AEMode
	AFMode               AFMode
	AWBMode              AWBMode
	ISO                  int32 // 0 means "unset / device default"
	ExposureTimeNs       int64
	ExposureCompensation int32
	AFTrigger            AFTrigger
	AEPrecaptureTrigger  AEPrecaptureTrigger
	AFRegions            []Region
	AERegions            []Region

	// TargetsPreview and TargetsRaw record which output surfaces this
	// request's targets include. The simulated adapter reads only
	// TargetsRaw, to decide whether to queue a raw image for each completed
	// frame; it produces no preview frames.
	TargetsPreview bool
	TargetsRaw     bool

	// RawTypeHint tags images produced from this request as ZSL or HDR.
	// Real hardware has no notion of this; it is how the simulated adapter
	// (and any adapter implementation) knows which tag to stamp on the
	// RawImage it hands back through NextImage.
	RawTypeHint RawType
}

// NewRequestTemplate builds a Request with the fixed template parameters
// from spec.md §6 and AUTO-mode initial values.
func NewRequestTemplate() *Request {
	return &Request{
		CaptureIntent:           CaptureIntentZeroShutterLag,
		AntiBandingMode:         AntiBandingModeAuto,
		TonemapMode:             TonemapModeFast,
		ShadingMode:             ShadingModeFast,
		ColorCorrectionMode:     ColorCorrectionModeHighQuality,
		LensShadingMapStatsMode: true,
		LensShadingApplied:      false,
		NoiseReductionMode:      NoiseReductionModeFast,
		AEMode:                  AEModeOn,
		AFMode:                  AFModeContinuousPicture,
		AWBMode:                 AWBModeAuto,
		AFTrigger:               AFTriggerIdle,
		AEPrecaptureTrigger:     AEPrecaptureTriggerIdle,
	}
}

// Clone returns a deep-enough copy for use as an independent HDR bracket
// request derived from the repeating request's template defaults.
func (r *Request) Clone() *Request {
	c := *r
	c.AFRegions = append([]Region(nil), r.AFRegions...)
	c.AERegions = append([]Region(nil), r.AERegions...)
	return &c
}

// DeviceHandle identifies an opened device.
type DeviceHandle struct{ id uuid.UUID }

// NewDeviceHandle mints a fresh handle. Adapter implementations call this
// from Open so each opened device carries a distinct, loggable identity.
func NewDeviceHandle() DeviceHandle { return DeviceHandle{id: uuid.New()} }

func (h DeviceHandle) String() string { return h.id.String() }

// SessionHandle identifies a created capture session.
type SessionHandle struct{ id uuid.UUID }

// NewSessionHandle mints a fresh handle. Adapter implementations call this
// from CreateSession so each session carries a distinct, loggable identity.
func NewSessionHandle() SessionHandle { return SessionHandle{id: uuid.New()} }

func (h SessionHandle) String() string { return h.id.String() }

// SequenceID identifies a submitted repeating or burst capture sequence.
type SequenceID int64

// DeviceDescription reports the capabilities the Controller needs to build
// valid requests: region support and the device's exposure-compensation
// range, which may be signed.
type DeviceDescription struct {
	MaxAFRegions              int
	MaxAERegions              int
	SupportsOIS                bool
	SensorActiveArrayWidth    int32
	SensorActiveArrayHeight   int32
	ExposureCompensationRange Range
}

// Range is an inclusive integer range, min may be negative.
type Range struct {
	Min, Max int32
}

// OutputConfig describes the preview and raw outputs requested at open.
type OutputConfig struct {
	SetupForRawPreview bool
	RawOutput          RawOutputConfig
}

// RawOutputConfig sizes the raw image reader. MaxImages is always
// MAX_BUFFERED_RAW_IMAGES in this module (spec.md §6) but is passed
// explicitly so the adapter contract does not hardcode the constant.
type RawOutputConfig struct {
	Width, Height int
	MaxImages     int
}

// RawImage is one sensor readout pulled from the image reader. The
// Controller hands it to the Raw Buffer Pool's producer side unchanged;
// nothing in this module interprets Data.
type RawImage struct {
	Data              []byte
	Width, Height     int
	RowStride         int
	PixelFormat       string
	TimestampNs       int64
	ISO               int32
	ExposureTimeNs    int64
	AsShotNeutral     [3]float64
	ScreenOrientation int32
	RawType           RawType
}
