// Package hdr implements the HDR bracket-capture state machine: arming a
// job, submitting the interleaved request list, and deciding when the
// result is complete, still in progress, or has timed out.
//
// # Protocol
//
// IDLE -> ARMED -> SEQUENCE_SUBMITTED -> SEQUENCE_COMPLETE_WAITING_BUFFERS
// -> SAVING -> IDLE. Completion is a two-signal AND: the hardware
// sequence-complete callback AND enough HDR-tagged buffers having arrived
// in the pool, with a 5 second upper-bound timeout measured from the
// sequence-complete callback, not from job start.
//
// The orchestrator never talks to a deviceadapter.Adapter directly — the
// Controller submits the request list it builds and reports sequence
// completion/abort back in. The orchestrator does talk to the Raw Buffer
// Pool directly, since "how many HDR buffers have arrived" is the pool's
// own bookkeeping.
package hdr
