// Package deviceadapter defines the narrow contract between the Capture
// Session Controller and the platform camera driver.
//
// # Overview
//
// An Adapter knows nothing about sessions, HDR brackets, or buffer pools —
// it only opens devices, builds and submits capture requests, and delivers
// typed callbacks on goroutines it owns. Every mutation of session state
// driven by those callbacks happens in the caller (capturesession), never
// inside the adapter itself.
//
// # Threading
//
// Callbacks registered with Open, CreateSession, SetRepeatingRequest and
// Capture may be invoked concurrently, from goroutines the Adapter spawns.
// Callers must treat every callback field as "arrives on an arbitrary
// goroutine" and must not block inside one.
//
// # Simulated adapter
//
// devicesim.Adapter is the one concrete implementation in this module. It
// exists to exercise the rest of the core without real camera hardware: a
// ticker-driven goroutine stands in for the image sensor and fires the same
// callback sequence a real driver would.
package deviceadapter
