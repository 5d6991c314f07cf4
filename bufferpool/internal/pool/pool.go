package pool

import (
	"log/slog"
	"sync"

	"github.com/motioncam/capturecore/deviceadapter"
)

// Pool owns every sensor buffer for the lifetime of an open capture
// session. It is safe for concurrent use by the image-reader producer and
// any number of downstream consumers.
//
// Partitions (spec.md §4.2):
//   - free: a lock-free-style queue, modeled here as a buffered channel
//     sized to the pool's total buffer count. Producers never block on it.
//   - ready: an ordered slice protected by mu, insertion order = arrival
//     order.
//
// Invariant: numBuffers == len(free)+len(ready)+loaned, where "loaned" is
// whatever is currently held inside a LockedBuffers the caller hasn't
// released yet, or a buffer dequeued for refill that hasn't been
// enqueued back as ready yet. Neither state is tracked explicitly — it
// is simply "not currently in free or ready."
type Pool struct {
	mu    sync.Mutex
	free  chan *Buffer
	ready []*Buffer

	numBuffers     int
	memoryUseBytes int

	pendingContainer *Container
	writer           ContainerWriter
}

// NewPool creates an empty pool with room for capacity buffers. Buffers
// must be registered with AddBuffer before the pool is useful; capacity
// bounds how many AddBuffer calls can succeed without blocking.
func NewPool(capacity int) *Pool {
	return &Pool{
		free:   make(chan *Buffer, capacity),
		writer: noopWriter{},
	}
}

// SetContainerWriter overrides the default no-op writer used to persist
// the second and later container built since the last Reset.
func (p *Pool) SetContainerWriter(w ContainerWriter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w == nil {
		w = noopWriter{}
	}
	p.writer = w
}

// AddBuffer registers a newly allocated buffer with the pool. Called only
// during pool initialization (spec.md §4.2); blocks if capacity is
// exceeded, which indicates a construction bug rather than a runtime
// condition callers need to recover from.
func (p *Pool) AddBuffer(buf *Buffer) {
	p.mu.Lock()
	p.numBuffers++
	p.memoryUseBytes += buf.SizeBytes()
	p.mu.Unlock()

	p.free <- buf
}

// NumBuffers returns the total buffer count registered via AddBuffer.
func (p *Pool) NumBuffers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numBuffers
}

// MemoryUseBytes returns the accumulated backing-store size across every
// registered buffer.
func (p *Pool) MemoryUseBytes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.memoryUseBytes
}

// Reset drops every buffer from both partitions and clears counters.
// Callers must guarantee no session is active — Reset does not itself
// synchronize with producers (spec.md §4.2).
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		select {
		case <-p.free:
		default:
			goto drained
		}
	}
drained:
	p.ready = nil
	p.numBuffers = 0
	p.memoryUseBytes = 0
	p.pendingContainer = nil
}

// DequeueUnused obtains an empty buffer for the producer to refill. It
// prefers the free partition; if empty, it steals the oldest ready buffer
// to guarantee forward progress under backpressure (spec.md §4.2 — "policy:
// overwrite oldest"). Returns ok=false only if both the free and the ready
// partitions are empty (no buffers registered, or every buffer loaned out).
func (p *Pool) DequeueUnused() (buf *Buffer, ok bool) {
	select {
	case buf := <-p.free:
		return buf, true
	default:
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.ready) == 0 {
		return nil, false
	}

	stolen := p.ready[0]
	p.ready = p.ready[1:]

	slog.Debug("bufferpool: stole oldest ready buffer under pressure", "buffer_id", stolen.ID)

	return stolen, true
}

// EnqueueReady publishes a filled buffer to the ready partition.
func (p *Pool) EnqueueReady(buf *Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ready = append(p.ready, buf)
}

// EnqueueFromImage is a producer-side convenience: dequeue an unused
// buffer, fill it in place from img, and publish it to ready. It never
// allocates beyond what DequeueUnused already returned.
func (p *Pool) EnqueueFromImage(img deviceadapter.RawImage) (*Buffer, bool) {
	buf, ok := p.DequeueUnused()
	if !ok {
		return nil, false
	}
	buf.FillFromImage(img)
	p.EnqueueReady(buf)
	return buf, true
}

// Discard returns a filled but unwanted buffer to the free partition. If
// free is already at capacity (a construction bug, since capacity always
// equals the registered buffer count) the buffer is dropped rather than
// blocking the caller — the same drop-over-block policy the rest of this
// module's ancestry applies to any full, bounded channel.
func (p *Pool) Discard(buf *Buffer) {
	select {
	case p.free <- buf:
	default:
		slog.Warn("bufferpool: free partition full, dropping discarded buffer", "buffer_id", buf.ID)
	}
}

// DiscardMany discards every buffer in bufs.
func (p *Pool) DiscardMany(bufs []*Buffer) {
	for _, b := range bufs {
		p.Discard(b)
	}
}

// returnBuffers is LockedBuffers.Release's counterpart: it re-publishes
// buffers to ready, preserving arrival order among themselves but appending
// after whatever is already ready (they are being returned, not newly
// arrived, but ready has no independent notion of "recency" beyond slice
// order).
func (p *Pool) returnBuffers(bufs []*Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ready = append(p.ready, bufs...)
}

// NumHdrBuffers counts ready buffers tagged HDR. Only the ready partition
// is counted (spec.md §4.2 invariant).
func (p *Pool) NumHdrBuffers() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, b := range p.ready {
		if b.Metadata.RawType == deviceadapter.RawTypeHDR {
			n++
		}
	}
	return n
}

// ConsumeLatest removes and returns the newest ready buffer.
func (p *Pool) ConsumeLatest() *LockedBuffers {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.ready) == 0 {
		return emptyLockedBuffers(p)
	}

	last := len(p.ready) - 1
	buf := p.ready[last]
	p.ready = p.ready[:last]

	return &LockedBuffers{pool: p, buffers: []*Buffer{buf}}
}

// ConsumeByTimestamp removes and returns the first ready buffer whose
// metadata timestamp equals ts. O(n); matches the first equal timestamp
// (spec.md §4.2 invariant).
func (p *Pool) ConsumeByTimestamp(ts int64) *LockedBuffers {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, b := range p.ready {
		if b.Metadata.TimestampNs == ts {
			p.ready = append(p.ready[:i], p.ready[i+1:]...)
			return &LockedBuffers{pool: p, buffers: []*Buffer{b}}
		}
	}

	return emptyLockedBuffers(p)
}

// ConsumeAll drains the entire ready partition.
func (p *Pool) ConsumeAll() *LockedBuffers {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.ready) == 0 {
		return emptyLockedBuffers(p)
	}

	all := p.ready
	p.ready = nil

	return &LockedBuffers{pool: p, buffers: all}
}

// DrainHdrToContainer atomically removes every HDR-tagged ready buffer,
// packages them into a Container, and returns those buffers to free —
// permanently, unlike SaveSnapshot which restores its scanned buffers to
// ready (SPEC_FULL.md §4.2).
func (p *Pool) DrainHdrToContainer(meta Metadata, settings deviceadapter.PostProcessSettings, outputPath string) (*Container, error) {
	p.mu.Lock()

	var hdrBufs, remaining []*Buffer
	for _, b := range p.ready {
		if b.Metadata.RawType == deviceadapter.RawTypeHDR {
			hdrBufs = append(hdrBufs, b)
		} else {
			remaining = append(remaining, b)
		}
	}
	p.ready = remaining

	// drainHdrToContainer's own signature carries no writeDng parameter
	// (spec.md line 96); only saveSnapshot's does.
	container, err := p.produceContainerLocked(hdrBufs, meta, false, settings, outputPath)
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}

	p.DiscardMany(hdrBufs)

	return container, nil
}

// SaveSnapshot selects the ready buffer at referenceTimestamp, greedily
// widens to up to numExtra closest timestamp-neighbors, packages the result
// into a Container, and restores every scanned buffer (selected or not) to
// ready — ground truth: libMotionCam's RawBufferManager::save moves the
// entire ready partition out and assigns it back wholesale once the
// container is built.
func (p *Pool) SaveSnapshot(meta Metadata, referenceTimestampNs int64, numExtra int, writeDNG bool, settings deviceadapter.PostProcessSettings, outputPath string) (*Container, error) {
	p.mu.Lock()

	allBuffers := p.ready
	p.ready = nil

	referenceIdx := len(allBuffers) - 1
	matched := false
	for i, b := range allBuffers {
		if b.Metadata.TimestampNs == referenceTimestampNs {
			referenceIdx = i
			matched = true
			break
		}
	}

	selected := selectNeighbors(allBuffers, referenceIdx, numExtra, matched)

	container, err := p.produceContainerLocked(selected, meta, writeDNG, settings, outputPath)
	p.ready = allBuffers
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}

	return container, nil
}

// selectNeighbors implements the greedy alternating-side scan from
// RawBufferManager::save: starting at referenceIdx, repeatedly take
// whichever open neighbor (left or right) has the smaller absolute
// timestamp delta from the reference, until numExtra buffers are
// collected or both sides are exhausted. includeReference mirrors the
// original's own asymmetry: the reference buffer is only added to the
// result when the caller actually matched a timestamp — the no-match
// fallback (reference = last buffer) contributes only neighbors, never
// itself, so the result has exactly numExtra buffers instead of numExtra+1.
func selectNeighbors(buffers []*Buffer, referenceIdx int, numExtra int, includeReference bool) []*Buffer {
	if len(buffers) == 0 {
		return nil
	}

	var selected []*Buffer
	if includeReference {
		selected = append(selected, buffers[referenceIdx])
	}
	refTs := buffers[referenceIdx].Metadata.TimestampNs

	leftIdx := referenceIdx - 1
	rightIdx := referenceIdx + 1

	want := numExtra
	if includeReference {
		want++
	}

	for len(selected) < want && (leftIdx >= 0 || rightIdx < len(buffers)) {
		takeLeft := false

		switch {
		case leftIdx < 0:
			takeLeft = false
		case rightIdx >= len(buffers):
			takeLeft = true
		default:
			leftDelta := absInt64(refTs - buffers[leftIdx].Metadata.TimestampNs)
			rightDelta := absInt64(buffers[rightIdx].Metadata.TimestampNs - refTs)
			takeLeft = leftDelta <= rightDelta
		}

		if takeLeft {
			selected = append(selected, buffers[leftIdx])
			leftIdx--
		} else {
			selected = append(selected, buffers[rightIdx])
			rightIdx++
		}
	}

	return selected
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// produceContainerLocked implements the pending-container policy shared by
// DrainHdrToContainer and SaveSnapshot: the first container built since the
// last Reset is held in memory (PeekPendingContainer); every later one is
// persisted immediately via the configured ContainerWriter. Must be called
// with mu held.
func (p *Pool) produceContainerLocked(bufs []*Buffer, meta Metadata, writeDNG bool, settings deviceadapter.PostProcessSettings, outputPath string) (*Container, error) {
	c := newContainer(bufs, meta, writeDNG, settings, outputPath)

	if p.pendingContainer == nil {
		p.pendingContainer = c
		return c, nil
	}

	if err := p.writer.Write(c); err != nil {
		return nil, err
	}
	c.Persisted = true

	return c, nil
}

// PeekPendingContainer returns the in-memory container held since the last
// Reset, if any, without clearing it.
func (p *Pool) PeekPendingContainer() (*Container, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pendingContainer, p.pendingContainer != nil
}

// ClearPendingContainer drops the held in-memory container. After this
// call, the next container-producing operation builds a new in-memory
// container instead of persisting directly.
func (p *Pool) ClearPendingContainer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pendingContainer = nil
}
