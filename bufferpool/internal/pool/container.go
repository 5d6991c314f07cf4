package pool

import (
	"fmt"

	"github.com/motioncam/capturecore/deviceadapter"
)

// Container is an assembled multi-frame artifact: the HDR bracket result of
// drainHdrToContainer, or the ZSL neighborhood result of saveSnapshot. The
// on-disk container file format itself is explicitly out of scope
// (spec.md §1); Container only models the boundary a real writer would
// serialize across.
type Container struct {
	OutputPath string
	Frames     map[string]FrameRef
	Metadata   Metadata
	// WriteDNG is threaded through uninterpreted from SaveSnapshot's
	// callers, exactly like Settings; DrainHdrToContainer always sets it
	// false. DNG writing
	// itself is out of scope, but the flag is part of the operation's
	// documented contract and result object.
	WriteDNG  bool
	Settings  deviceadapter.PostProcessSettings
	Persisted bool
}

// FrameRef names one frame inside a Container by its synthetic filename.
type FrameRef struct {
	Buffer *Buffer
}

// ContainerWriter serializes a Container to its OutputPath. The pool calls
// it only for the second and later container produced since the last
// reset(); the first is held in memory via PeekPendingContainer.
type ContainerWriter interface {
	Write(c *Container) error
}

// noopWriter marks a container persisted without touching storage — the
// default when no writer is configured, since the container file format is
// a collaborator outside this module's scope.
type noopWriter struct{}

func (noopWriter) Write(c *Container) error {
	return nil
}

func newContainer(bufs []*Buffer, meta Metadata, writeDNG bool, settings deviceadapter.PostProcessSettings, outputPath string) *Container {
	frames := make(map[string]FrameRef, len(bufs))
	for i, b := range bufs {
		frames[fmt.Sprintf("frame%d.raw", i)] = FrameRef{Buffer: b}
	}
	return &Container{
		OutputPath: outputPath,
		Frames:     frames,
		Metadata:   meta,
		WriteDNG:   writeDNG,
		Settings:   settings,
	}
}
