// Package pool implements the Raw Buffer Pool's free/ready partitions and
// the scoped LockedBuffers handle. See bufferpool.go in the parent package
// for the public, re-exported surface.
package pool

import (
	"time"

	"github.com/google/uuid"

	"github.com/motioncam/capturecore/deviceadapter"
)

// Buffer is a single raw sensor readout owned by the pool for its entire
// lifetime. A Buffer is always in exactly one of the pool's partitions
// (free, ready) or loaned out inside a LockedBuffers handle — never in two
// places at once (spec.md §3 invariant).
type Buffer struct {
	// ID is assigned once by NewBuffer and never changes; it exists purely
	// for log correlation (SPEC_FULL.md §3), not for ownership tracking.
	ID uuid.UUID

	Data        []byte
	Width       int
	Height      int
	RowStride   int
	PixelFormat string

	Metadata Metadata

	sizeBytes int
}

// Metadata is the per-frame metadata carried alongside a Buffer's payload.
type Metadata struct {
	TimestampNs       int64
	ISO               int32
	ExposureTimeNs    int64
	AsShotNeutral     [3]float64
	ScreenOrientation int32
	RawType           deviceadapter.RawType
}

// SizeBytes is the accumulated-memory contribution of this buffer, tracked
// by the pool's memoryUseBytes counter.
func (b *Buffer) SizeBytes() int {
	return b.sizeBytes
}

// NewBuffer allocates a Buffer of the given dimensions. Called only during
// pool initialization (spec.md §4.2, addBuffer).
func NewBuffer(width, height, rowStride int, pixelFormat string) *Buffer {
	size := rowStride * height
	return &Buffer{
		ID:          uuid.New(),
		Data:        make([]byte, size),
		Width:       width,
		Height:      height,
		RowStride:   rowStride,
		PixelFormat: pixelFormat,
		sizeBytes:   size,
	}
}

// fillFromImage copies a device-produced image into this buffer's existing
// backing storage and stamps its metadata, reusing the allocation rather
// than growing it — the producer "must never allocate" per spec.md §4.2.
func (b *Buffer) fillFromImage(img deviceadapter.RawImage) {
	copy(b.Data, img.Data)
	b.Width = img.Width
	b.Height = img.Height
	b.RowStride = img.RowStride
	b.PixelFormat = img.PixelFormat
	b.Metadata = Metadata{
		TimestampNs:       img.TimestampNs,
		ISO:               img.ISO,
		ExposureTimeNs:    img.ExposureTimeNs,
		AsShotNeutral:     img.AsShotNeutral,
		ScreenOrientation: img.ScreenOrientation,
		RawType:           img.RawType,
	}
}

// FillFromImage is the exported form of fillFromImage, used by the
// producer side of the pool (EnqueueFromImage helper in pool.go).
func (b *Buffer) FillFromImage(img deviceadapter.RawImage) {
	b.fillFromImage(img)
}

// capturedAt returns the buffer's metadata timestamp as a time.Time. The
// neighbor-selection scan in SaveSnapshot compares the raw nanosecond
// timestamps and does not call it.
func (b *Buffer) capturedAt() time.Time {
	return time.Unix(0, b.Metadata.TimestampNs)
}
