// Package devicesim provides an in-memory simulated implementation of
// deviceadapter.Adapter.
//
// Design:
//   - A ticker-driven goroutine stands in for the repeating preview/ZSL
//     stream (same shape as a real camera's continuous readout).
//   - One-shot bursts (HDR brackets, AF triggers) run on their own
//     goroutine per Capture call and can be aborted mid-flight.
//   - Raw images are queued per device and drained through NextImage,
//     exactly as the real Adapter contract requires.
//
// devicesim exists to exercise the Raw Buffer Pool, HDR Orchestrator and
// Capture Session Controller deterministically in tests and in the demo
// binary; it is not a second production adapter.
package devicesim
