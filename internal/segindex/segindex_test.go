package segindex

import (
	"bytes"
	"testing"

	"github.com/bsc-ssrg/echofs-ng/internal/pmempool"
	"github.com/bsc-ssrg/echofs-ng/internal/segment"
)

func newPool(t *testing.T) *pmempool.Pool {
	t.Helper()
	p, err := pmempool.Open(t.TempDir()+"/pool.dat", 8*pmempool.MinSlotSize, pmempool.MinSlotSize)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestFindReturnsCoveringSegment(t *testing.T) {
	p := newPool(t)
	ix := New()

	s0, _ := segment.NewFromFile(p, 0, pmempool.MinSlotSize, bytes.NewReader([]byte("a")))
	s1, _ := segment.NewFromFile(p, pmempool.MinSlotSize, pmempool.MinSlotSize, bytes.NewReader([]byte("b")))
	ix.InsertBack(s0)
	ix.InsertBack(s1)

	if got := ix.Find(10); got != s0 {
		t.Fatalf("Find(10) = %v, want s0", got)
	}
	if got := ix.Find(pmempool.MinSlotSize + 5); got != s1 {
		t.Fatalf("Find(slotSize+5) = %v, want s1", got)
	}
	if got := ix.Find(2 * pmempool.MinSlotSize); got != nil {
		t.Fatalf("Find past end = %v, want nil", got)
	}
}

func TestScanReturnsOverlappingSegments(t *testing.T) {
	p := newPool(t)
	ix := New()
	s0, _ := segment.NewFromFile(p, 0, pmempool.MinSlotSize, bytes.NewReader(nil))
	s1, _ := segment.NewFromFile(p, pmempool.MinSlotSize, pmempool.MinSlotSize, bytes.NewReader(nil))
	s2, _ := segment.NewFromFile(p, 2*pmempool.MinSlotSize, pmempool.MinSlotSize, bytes.NewReader(nil))
	ix.InsertBack(s0)
	ix.InsertBack(s1)
	ix.InsertBack(s2)

	got := ix.Scan(pmempool.MinSlotSize/2, pmempool.MinSlotSize+10)
	if len(got) != 2 || got[0] != s0 || got[1] != s1 {
		t.Fatalf("Scan = %v, want [s0 s1]", got)
	}
}

func TestTruncateClampsStraddlingSegment(t *testing.T) {
	p := newPool(t)
	ix := New()
	s0, _ := segment.NewFromFile(p, 0, pmempool.MinSlotSize, bytes.NewReader(bytes.Repeat([]byte("x"), 100)))
	ix.InsertBack(s0)

	ix.Truncate(50)
	if ix.EndOffset() != 50 {
		t.Fatalf("EndOffset after truncate = %d, want 50", ix.EndOffset())
	}
	if s0.Used != 50 {
		t.Fatalf("Used after truncate = %d, want 50", s0.Used)
	}
}

func TestTruncateDropsSegmentsBeyondSize(t *testing.T) {
	p := newPool(t)
	ix := New()
	s0, _ := segment.NewFromFile(p, 0, pmempool.MinSlotSize, bytes.NewReader(nil))
	s1, _ := segment.NewFromFile(p, pmempool.MinSlotSize, pmempool.MinSlotSize, bytes.NewReader(nil))
	ix.InsertBack(s0)
	ix.InsertBack(s1)

	ix.Truncate(0)
	if ix.Len() != 0 {
		t.Fatalf("Len after truncate(0) = %d, want 0", ix.Len())
	}
}
