package pool

// LockedBuffers is a scoped handle over buffers removed from the ready
// partition. The source (libMotionCam) returns these buffers to the ready
// partition from a C++ destructor; Go has no destructors, so Release is an
// explicit replacement every call site must invoke — typically via
// `defer locked.Release()`.
//
// A LockedBuffers that is never released leaks its buffers out of the pool
// permanently (they are loaned forever). A LockedBuffers released twice is
// a no-op the second time.
type LockedBuffers struct {
	pool     *Pool
	buffers  []*Buffer
	released bool
}

// Buffers returns the held buffers. The slice must not be retained past
// Release.
func (l *LockedBuffers) Buffers() []*Buffer {
	return l.buffers
}

// Len reports how many buffers are held.
func (l *LockedBuffers) Len() int {
	return len(l.buffers)
}

// Release returns the held buffers to the pool's ready partition, restoring
// the invariant that a consumer observing an empty ready partition cannot
// have lost buffers on an error path. Idempotent.
func (l *LockedBuffers) Release() {
	if l.released || l.pool == nil {
		return
	}
	l.released = true

	if len(l.buffers) == 0 {
		return
	}
	l.pool.returnBuffers(l.buffers)
}

// emptyLockedBuffers returns a handle holding nothing; Release on it is a
// no-op. Used whenever a consume operation finds no matching buffer
// (spec.md §8, "Pool consumeByTimestamp(ts) with no match returns an empty
// LockedBuffers that releases nothing on drop").
func emptyLockedBuffers(p *Pool) *LockedBuffers {
	return &LockedBuffers{pool: p}
}
