package controller

import "time"

// Constants carried forward unchanged from spec.md §6.
const (
	// MaxBufferedRawImages sizes the raw image reader created at open.
	MaxBufferedRawImages = 4

	// RegionSide is the side length, in sensor pixels, of AF/AE metering
	// regions built from a normalized focus/exposure point.
	RegionSide = 200

	// RegionWeight is the fixed weight assigned to every AF/AE region this
	// Controller builds.
	RegionWeight = 1000

	// PollInterval is the event loop's timed-wait period.
	PollInterval = 100 * time.Millisecond
)
