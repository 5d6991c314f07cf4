package bufferpool

import (
	"github.com/motioncam/capturecore/bufferpool/internal/pool"
	"github.com/motioncam/capturecore/deviceadapter"
)

// Buffer is re-exported from the internal pool package to avoid an import
// cycle between bufferpool and the packages that consume it.
type Buffer = pool.Buffer

// Metadata is re-exported from the internal pool package.
type Metadata = pool.Metadata

// LockedBuffers is re-exported from the internal pool package.
type LockedBuffers = pool.LockedBuffers

// Container is re-exported from the internal pool package.
type Container = pool.Container

// FrameRef is re-exported from the internal pool package.
type FrameRef = pool.FrameRef

// ContainerWriter is re-exported from the internal pool package.
type ContainerWriter = pool.ContainerWriter

// Pool owns every sensor buffer for the lifetime of an open capture
// session. See the internal/pool package for the implementation.
type Pool struct {
	*pool.Pool
}

// NewPool creates an empty pool sized for capacity buffers. Use NewBuffer
// plus AddBuffer to register the backing allocations before opening a
// session (spec.md §4.2 — AddBuffer is "called only during pool
// initialization").
func NewPool(capacity int) *Pool {
	return &Pool{Pool: pool.NewPool(capacity)}
}

// NewBuffer allocates a raw frame buffer of the given dimensions, ready to
// be registered with a Pool via AddBuffer.
func NewBuffer(width, height, rowStride int, pixelFormat string) *Buffer {
	return pool.NewBuffer(width, height, rowStride, pixelFormat)
}

// MetadataFromImage converts a device-reported raw image's metadata into
// the pool's Metadata shape, for callers that need it outside of
// EnqueueFromImage (e.g. to pre-populate container metadata).
func MetadataFromImage(img deviceadapter.RawImage) Metadata {
	return Metadata{
		TimestampNs:       img.TimestampNs,
		ISO:               img.ISO,
		ExposureTimeNs:    img.ExposureTimeNs,
		AsShotNeutral:     img.AsShotNeutral,
		ScreenOrientation: img.ScreenOrientation,
		RawType:           img.RawType,
	}
}
