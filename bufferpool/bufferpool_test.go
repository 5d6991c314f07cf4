package bufferpool

import (
	"testing"

	"github.com/motioncam/capturecore/deviceadapter"
)

func newTestPool(t *testing.T, n int) *Pool {
	t.Helper()
	p := NewPool(n)
	for i := 0; i < n; i++ {
		p.AddBuffer(NewBuffer(64, 48, 64, "RAW16"))
	}
	return p
}

func TestDequeueUnusedPrefersFreePartition(t *testing.T) {
	p := newTestPool(t, 2)

	buf, ok := p.DequeueUnused()
	if !ok || buf == nil {
		t.Fatalf("expected a buffer from the free partition")
	}
}

func TestDequeueUnusedStealsOldestReadyWhenFreeEmpty(t *testing.T) {
	p := newTestPool(t, 2)

	// Drain free, then fill both as ready, in order.
	b1, _ := p.DequeueUnused()
	b2, _ := p.DequeueUnused()
	b1.Metadata.TimestampNs = 100
	b2.Metadata.TimestampNs = 200
	p.EnqueueReady(b1)
	p.EnqueueReady(b2)

	stolen, ok := p.DequeueUnused()
	if !ok {
		t.Fatalf("expected steal-from-ready to succeed")
	}
	if stolen.Metadata.TimestampNs != 100 {
		t.Errorf("expected oldest ready buffer (ts=100) to be stolen, got ts=%d", stolen.Metadata.TimestampNs)
	}
}

func TestDequeueUnusedEmptyPoolReturnsFalse(t *testing.T) {
	p := NewPool(0)
	if _, ok := p.DequeueUnused(); ok {
		t.Errorf("expected DequeueUnused on an empty pool to return ok=false")
	}
}

func TestNumHdrBuffersCountsOnlyReadyPartition(t *testing.T) {
	p := newTestPool(t, 3)

	b1, _ := p.DequeueUnused()
	b1.Metadata.RawType = deviceadapter.RawTypeHDR
	p.EnqueueReady(b1)

	b2, _ := p.DequeueUnused()
	b2.Metadata.RawType = deviceadapter.RawTypeZSL
	p.EnqueueReady(b2)

	// b3 stays in the free partition, even though we mark it HDR; it must
	// not be counted.
	b3, _ := p.DequeueUnused()
	b3.Metadata.RawType = deviceadapter.RawTypeHDR
	p.Discard(b3)

	if got := p.NumHdrBuffers(); got != 1 {
		t.Errorf("NumHdrBuffers() = %d, want 1", got)
	}
}

func TestConsumeByTimestampNoMatchReturnsEmptyLockedBuffers(t *testing.T) {
	p := newTestPool(t, 1)
	b, _ := p.DequeueUnused()
	b.Metadata.TimestampNs = 42
	p.EnqueueReady(b)

	locked := p.ConsumeByTimestamp(999)
	if locked.Len() != 0 {
		t.Fatalf("expected empty LockedBuffers for no match, got %d buffers", locked.Len())
	}

	// Releasing an empty handle must not panic and must not affect the
	// ready partition.
	locked.Release()

	if n := p.NumHdrBuffers(); n != 0 {
		t.Errorf("unexpected side effect on ready partition: %d hdr buffers", n)
	}
}

func TestConsumeLatestRemovesNewestReady(t *testing.T) {
	p := newTestPool(t, 2)

	b1, _ := p.DequeueUnused()
	b1.Metadata.TimestampNs = 1
	p.EnqueueReady(b1)

	b2, _ := p.DequeueUnused()
	b2.Metadata.TimestampNs = 2
	p.EnqueueReady(b2)

	locked := p.ConsumeLatest()
	defer locked.Release()

	if locked.Len() != 1 || locked.Buffers()[0].Metadata.TimestampNs != 2 {
		t.Fatalf("expected latest buffer (ts=2), got %+v", locked.Buffers())
	}
}

func TestLockedBuffersReleaseReturnsToReady(t *testing.T) {
	p := newTestPool(t, 1)
	b, _ := p.DequeueUnused()
	b.Metadata.TimestampNs = 7
	p.EnqueueReady(b)

	locked := p.ConsumeAll()
	if locked.Len() != 1 {
		t.Fatalf("expected 1 buffer drained, got %d", locked.Len())
	}

	drained := p.ConsumeAll()
	if drained.Len() != 0 {
		t.Fatalf("expected ready partition empty after ConsumeAll, got %d", drained.Len())
	}

	locked.Release()

	restored := p.ConsumeAll()
	if restored.Len() != 1 {
		t.Fatalf("expected Release to restore buffer to ready, got %d buffers", restored.Len())
	}
	restored.Release()
}

func TestDrainHdrToContainerPermanentlyRemovesHdrBuffers(t *testing.T) {
	p := newTestPool(t, 3)

	for i := 0; i < 2; i++ {
		b, _ := p.DequeueUnused()
		b.Metadata.RawType = deviceadapter.RawTypeHDR
		b.Metadata.TimestampNs = int64(i)
		p.EnqueueReady(b)
	}
	zsl, _ := p.DequeueUnused()
	zsl.Metadata.RawType = deviceadapter.RawTypeZSL
	p.EnqueueReady(zsl)

	container, err := p.DrainHdrToContainer(Metadata{}, nil, "/tmp/hdr-out")
	if err != nil {
		t.Fatalf("DrainHdrToContainer: %v", err)
	}
	if len(container.Frames) != 2 {
		t.Errorf("expected 2 frames in hdr container, got %d", len(container.Frames))
	}

	if n := p.NumHdrBuffers(); n != 0 {
		t.Errorf("expected 0 hdr buffers remaining in ready, got %d", n)
	}

	remaining := p.ConsumeAll()
	defer remaining.Release()
	if remaining.Len() != 1 {
		t.Errorf("expected the ZSL buffer to remain in ready, got %d buffers", remaining.Len())
	}
}

func TestSaveSnapshotRestoresAllScannedBuffersToReady(t *testing.T) {
	p := newTestPool(t, 5)

	timestamps := []int64{100, 200, 300, 400, 500}
	for _, ts := range timestamps {
		b, _ := p.DequeueUnused()
		b.Metadata.TimestampNs = ts
		p.EnqueueReady(b)
	}

	container, err := p.SaveSnapshot(Metadata{}, 300, 2, true, nil, "/tmp/snap-out")
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if len(container.Frames) != 3 {
		t.Errorf("expected reference + 2 neighbors = 3 frames, got %d", len(container.Frames))
	}
	if !container.WriteDNG {
		t.Error("expected WriteDNG to be threaded through to the container")
	}

	restored := p.ConsumeAll()
	defer restored.Release()
	if restored.Len() != len(timestamps) {
		t.Errorf("expected all %d buffers restored to ready, got %d", len(timestamps), restored.Len())
	}
}

func TestSaveSnapshotNoTimestampMatchOmitsReferenceFromSelection(t *testing.T) {
	p := newTestPool(t, 5)

	timestamps := []int64{100, 200, 300, 400, 500}
	for _, ts := range timestamps {
		b, _ := p.DequeueUnused()
		b.Metadata.TimestampNs = ts
		p.EnqueueReady(b)
	}

	// No buffer carries timestamp 999, so SaveSnapshot falls back to the
	// last ready buffer as its scan anchor without including it in the
	// result: exactly numExtra buffers, not numExtra+1.
	container, err := p.SaveSnapshot(Metadata{}, 999, 2, false, nil, "/tmp/snap-out")
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if len(container.Frames) != 2 {
		t.Errorf("expected exactly 2 frames on a no-match fallback, got %d", len(container.Frames))
	}
}

func TestPendingContainerHeldInMemoryThenPersisted(t *testing.T) {
	p := newTestPool(t, 2)

	b1, _ := p.DequeueUnused()
	b1.Metadata.RawType = deviceadapter.RawTypeHDR
	p.EnqueueReady(b1)

	if _, err := p.DrainHdrToContainer(Metadata{}, nil, "/tmp/a"); err != nil {
		t.Fatalf("first DrainHdrToContainer: %v", err)
	}

	pending, ok := p.PeekPendingContainer()
	if !ok || pending == nil {
		t.Fatalf("expected a pending in-memory container after first call")
	}
	if pending.Persisted {
		t.Errorf("first container should be held in memory, not persisted")
	}

	b2, _ := p.DequeueUnused()
	b2.Metadata.RawType = deviceadapter.RawTypeHDR
	p.EnqueueReady(b2)

	second, err := p.DrainHdrToContainer(Metadata{}, nil, "/tmp/b")
	if err != nil {
		t.Fatalf("second DrainHdrToContainer: %v", err)
	}
	if !second.Persisted {
		t.Errorf("second container should be persisted immediately")
	}

	// Pending container slot still holds the first one.
	stillPending, ok := p.PeekPendingContainer()
	if !ok || stillPending != pending {
		t.Errorf("expected pending container slot unchanged by the second call")
	}

	p.ClearPendingContainer()
	if _, ok := p.PeekPendingContainer(); ok {
		t.Errorf("expected no pending container after ClearPendingContainer")
	}
}

func TestResetClearsBothPartitions(t *testing.T) {
	p := newTestPool(t, 2)
	b, _ := p.DequeueUnused()
	p.EnqueueReady(b)

	p.Reset()

	if n := p.NumBuffers(); n != 0 {
		t.Errorf("expected NumBuffers()=0 after Reset, got %d", n)
	}
	if _, ok := p.DequeueUnused(); ok {
		t.Errorf("expected empty pool after Reset")
	}
}
