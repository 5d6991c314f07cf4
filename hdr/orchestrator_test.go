package hdr

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/motioncam/capturecore/bufferpool"
	"github.com/motioncam/capturecore/deviceadapter"
)

type fakeListener struct {
	progress  []float64
	completed []uuid.UUID
	failed    []error
}

func (f *fakeListener) OnCameraHdrImageCaptureProgress(traceID uuid.UUID, percent float64) {
	f.progress = append(f.progress, percent)
}

func (f *fakeListener) OnCameraHdrImageCaptureCompleted(traceID uuid.UUID, container *bufferpool.Container) {
	f.completed = append(f.completed, traceID)
}

func (f *fakeListener) OnCameraHdrImageCaptureFailed(traceID uuid.UUID, err error) {
	f.failed = append(f.failed, err)
}

func poolWithHdrBuffers(t *testing.T, n int) *bufferpool.Pool {
	t.Helper()
	p := bufferpool.NewPool(n + 1)
	for i := 0; i < n; i++ {
		p.AddBuffer(bufferpool.NewBuffer(8, 8, 8, "RAW16"))
	}
	for i := 0; i < n; i++ {
		b, ok := p.DequeueUnused()
		if !ok {
			t.Fatalf("expected a free buffer")
		}
		b.Metadata.RawType = deviceadapter.RawTypeHDR
		p.EnqueueReady(b)
	}
	return p
}

func TestArmRejectsInvalidImageCount(t *testing.T) {
	o := NewOrchestrator(bufferpool.NewPool(1), &fakeListener{})
	if _, err := o.Arm(0, nil, "/tmp/out"); err != ErrInvalidImageCount {
		t.Fatalf("expected ErrInvalidImageCount, got %v", err)
	}
	if o.State() != StateIdle {
		t.Errorf("expected state to remain IDLE, got %v", o.State())
	}
}

func TestArmRejectsWhileInProgress(t *testing.T) {
	o := NewOrchestrator(bufferpool.NewPool(1), &fakeListener{})
	job, err := o.Arm(2, nil, "/tmp/out")
	if err != nil {
		t.Fatalf("first Arm: %v", err)
	}

	if _, err := o.Arm(2, nil, "/tmp/out2"); err != ErrAlreadyInProgress {
		t.Fatalf("expected ErrAlreadyInProgress, got %v", err)
	}

	// The in-flight job must be untouched by the rejected request.
	o.mu.Lock()
	current := o.job
	o.mu.Unlock()
	if current != job {
		t.Errorf("expected original job to remain armed")
	}
}

func TestBuildBracketRequestsPlacesAltAtFloorNOverTwo(t *testing.T) {
	base := &deviceadapter.Request{}
	alt := &deviceadapter.Request{}

	cases := []struct {
		n        int
		altIndex int
	}{
		{1, 0},
		{2, 1},
		{3, 1},
		{4, 2},
		{5, 2},
	}

	for _, c := range cases {
		list := BuildBracketRequests(base, alt, c.n)
		if len(list) != c.n+1 {
			t.Errorf("n=%d: len(list) = %d, want %d", c.n, len(list), c.n+1)
		}
		if list[c.altIndex] != alt {
			t.Errorf("n=%d: expected alt at index %d", c.n, c.altIndex)
		}
		for i, r := range list {
			if i != c.altIndex && r != base {
				t.Errorf("n=%d: expected base at index %d", c.n, i)
			}
		}
	}
}

func TestAttemptSaveCompletesOnceEnoughBuffersArrive(t *testing.T) {
	p := poolWithHdrBuffers(t, 3)
	listener := &fakeListener{}
	o := NewOrchestrator(p, listener)

	job, err := o.Arm(2, nil, "/tmp/out")
	if err != nil {
		t.Fatalf("Arm: %v", err)
	}
	o.MarkSubmitted()
	o.OnSequenceCompleted()

	o.AttemptSave()

	if len(listener.completed) != 1 || listener.completed[0] != job.TraceID {
		t.Fatalf("expected completion callback for trace %v, got %+v", job.TraceID, listener.completed)
	}
	if len(listener.failed) != 0 {
		t.Errorf("expected no failure callbacks, got %v", listener.failed)
	}
	if o.State() != StateIdle {
		t.Errorf("expected state IDLE after completion, got %v", o.State())
	}
}

func TestAttemptSaveReportsProgressWhenBuffersStillArriving(t *testing.T) {
	p := poolWithHdrBuffers(t, 1)
	listener := &fakeListener{}
	o := NewOrchestrator(p, listener)

	if _, err := o.Arm(3, nil, "/tmp/out"); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	o.MarkSubmitted()

	o.AttemptSave()

	if len(listener.progress) != 1 {
		t.Fatalf("expected one progress callback, got %d", len(listener.progress))
	}
	if listener.progress[0] <= 0 || listener.progress[0] >= 100 {
		t.Errorf("expected partial progress, got %v", listener.progress[0])
	}
	if len(listener.completed) != 0 || len(listener.failed) != 0 {
		t.Errorf("expected no completion/failure yet")
	}
	if o.State() != StateSequenceSubmitted {
		t.Errorf("expected state unchanged while waiting on buffers, got %v", o.State())
	}
}

func TestAttemptSaveFailsAfterSequenceCompleteTimeout(t *testing.T) {
	p := poolWithHdrBuffers(t, 1)
	listener := &fakeListener{}
	o := NewOrchestrator(p, listener)

	job, err := o.Arm(3, nil, "/tmp/out")
	if err != nil {
		t.Fatalf("Arm: %v", err)
	}
	o.MarkSubmitted()
	o.OnSequenceCompleted()

	// Force the sequence-complete timestamp far enough into the past that
	// AttemptSave sees it as timed out, without sleeping in the test.
	o.mu.Lock()
	o.job.sequenceCompletedAt = time.Now().Add(-2 * Timeout)
	o.mu.Unlock()

	o.AttemptSave()

	if len(listener.failed) != 1 {
		t.Fatalf("expected one failure callback, got %d", len(listener.failed))
	}
	if len(listener.completed) != 0 {
		t.Errorf("expected no completion callback")
	}
	if o.State() != StateIdle {
		t.Errorf("expected state IDLE after timeout, got %v", o.State())
	}

	o.mu.Lock()
	current := o.job
	o.mu.Unlock()
	if current != nil {
		t.Errorf("expected job cleared after timeout")
	}
	_ = job
}

func TestOnSequenceAbortedFailsInFlightJob(t *testing.T) {
	p := bufferpool.NewPool(1)
	listener := &fakeListener{}
	o := NewOrchestrator(p, listener)

	if _, err := o.Arm(1, nil, "/tmp/out"); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	o.MarkSubmitted()

	o.OnSequenceAborted()

	if len(listener.failed) != 1 {
		t.Fatalf("expected one failure callback, got %d", len(listener.failed))
	}
	if o.State() != StateIdle {
		t.Errorf("expected state IDLE after abort, got %v", o.State())
	}
}
