package task

import (
	"sync/atomic"
	"testing"

	"github.com/bsc-ssrg/echofs-ng/internal/errs"
)

func TestLifecycleTransitions(t *testing.T) {
	tr := NewTracker()
	id := tr.New()

	r, err := tr.Status(id)
	if err != nil || r.State != Pending {
		t.Fatalf("initial state = %v, %v, want Pending", r, err)
	}

	tr.Start(id)
	r, _ = tr.Status(id)
	if r.State != InProgress {
		t.Fatalf("state after Start = %v, want InProgress", r.State)
	}

	tr.Finish(id, nil)
	r, _ = tr.Status(id)
	if r.State != Completed {
		t.Fatalf("state after Finish = %v, want Completed", r.State)
	}
}

func TestStatusOfUnknownTask(t *testing.T) {
	tr := NewTracker()
	_, err := tr.Status(999)
	if !errs.Is(err, errs.NoSuchTask) {
		t.Fatalf("expected NoSuchTask, got %v", err)
	}
}

func TestPoolRunsAllSubmittedJobs(t *testing.T) {
	p := NewPool(4)
	var count atomic.Int32
	for i := 0; i < 50; i++ {
		p.Submit(func() { count.Add(1) })
	}
	p.Stop()
	if got := count.Load(); got != 50 {
		t.Fatalf("count = %d, want 50", got)
	}
}

func TestMonotonicIDs(t *testing.T) {
	tr := NewTracker()
	first := tr.New()
	second := tr.New()
	if second <= first {
		t.Fatalf("ids not monotonic: %d then %d", first, second)
	}
}
