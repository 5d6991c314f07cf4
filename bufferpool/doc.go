// Package bufferpool implements the Raw Buffer Pool: a fixed-capacity pool
// of raw sensor buffers split into a free partition and a ready partition,
// plus a pending-container slot used by HDR and ZSL-snapshot packaging.
//
// # Partitions
//
// The free partition holds buffers available for the producer (image
// reader) to refill; the ready partition holds filled buffers awaiting
// consumption, in arrival order. A buffer is in exactly one partition, or
// loaned out inside a LockedBuffers handle, at any instant.
//
// # Backpressure policy
//
// DequeueUnused never blocks the producer: if the free partition is empty
// it steals the oldest ready buffer instead, trading a little staleness for
// guaranteed forward progress.
//
// # Ownership
//
// LockedBuffers is a scoped handle: callers must call Release (typically
// via defer) to return its buffers to the ready partition. This is the
// idiomatic replacement for the destructor-based RAII pattern the pool's
// design is grounded on.
package bufferpool
