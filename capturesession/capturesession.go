package capturesession

import (
	"github.com/motioncam/capturecore/bufferpool"
	"github.com/motioncam/capturecore/capturesession/internal/controller"
	"github.com/motioncam/capturecore/deviceadapter"
)

// SessionState is re-exported from the internal controller package.
type SessionState = controller.SessionState

const (
	StateClosed = controller.StateClosed
	StateReady  = controller.StateReady
	StateActive = controller.StateActive
)

// Listener is re-exported from the internal controller package.
type Listener = controller.Listener

// MaxBufferedRawImages is the fixed raw image reader depth every session
// uses (spec.md §6): callers size a Pool and a RawOutputConfig against it.
const MaxBufferedRawImages = controller.MaxBufferedRawImages

// Controller drives one Device Adapter device through its lifecycle. See
// the internal/controller package for the implementation.
type Controller struct {
	*controller.Controller
}

// New builds a Controller bound to deviceID, backed by adapter and pool,
// notifying listener. Call Start before issuing any other call.
func New(adapter deviceadapter.Adapter, pool *bufferpool.Pool, listener Listener, deviceID string, rawOutput deviceadapter.RawOutputConfig) *Controller {
	return &Controller{Controller: controller.New(adapter, pool, listener, deviceID, rawOutput)}
}
