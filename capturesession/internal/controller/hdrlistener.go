package controller

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/motioncam/capturecore/bufferpool"
)

// hdrListener adapts the Controller to hdr.Listener, stripping the
// TraceID (logged here, not part of the external Listener's simpler
// onCameraHdrImageCapture* signatures per spec.md §6) and throttling
// progress notifications through progressLimiter so a slow host listener
// is never flooded faster than it can keep up (SPEC_FULL.md §8).
type hdrListener Controller

func (h *hdrListener) OnCameraHdrImageCaptureProgress(traceID uuid.UUID, percent float64) {
	c := (*Controller)(h)
	if percent < 100 && !c.progressLimiter.Allow() {
		return
	}
	c.listener.OnCameraHdrImageCaptureProgress(percent)
}

func (h *hdrListener) OnCameraHdrImageCaptureCompleted(traceID uuid.UUID, container *bufferpool.Container) {
	c := (*Controller)(h)
	slog.Info("capturesession: hdr capture completed", "trace_id", traceID, "frames", len(container.Frames))
	c.listener.OnCameraHdrImageCaptureCompleted()
}

func (h *hdrListener) OnCameraHdrImageCaptureFailed(traceID uuid.UUID, err error) {
	c := (*Controller)(h)
	slog.Error("capturesession: hdr capture failed", "trace_id", traceID, "error", err)
	c.listener.OnCameraHdrImageCaptureFailed()
}
