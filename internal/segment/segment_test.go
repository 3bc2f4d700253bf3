package segment

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bsc-ssrg/echofs-ng/internal/pmempool"
)

func openTestPool(t *testing.T, capacity, slotSize int64) *pmempool.Pool {
	t.Helper()
	p, err := pmempool.Open(t.TempDir()+"/pool.dat", capacity, slotSize)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestNewFromFileCopiesBytes(t *testing.T) {
	p := openTestPool(t, 4*pmempool.MinSlotSize, pmempool.MinSlotSize)

	src := []byte("hello segment")
	seg, err := NewFromFile(p, 0, pmempool.MinSlotSize, bytes.NewReader(src))
	if err != nil {
		t.Fatalf("NewFromFile: %v", err)
	}
	if seg.Used != int64(len(src)) {
		t.Fatalf("Used = %d, want %d", seg.Used, len(src))
	}
	if !bytes.Equal(seg.Data()[:len(src)], src) {
		t.Fatalf("data mismatch: %q", seg.Data()[:len(src)])
	}
	// trailing bytes beyond the reader's content stay zero
	for _, b := range seg.Data()[len(src):] {
		if b != 0 {
			t.Fatalf("expected zero tail, found %v", b)
		}
	}
}

func TestNewFromFileShortRead(t *testing.T) {
	p := openTestPool(t, 4*pmempool.MinSlotSize, pmempool.MinSlotSize)

	r := strings.NewReader("short")
	seg, err := NewFromFile(p, 0, pmempool.MinSlotSize, r)
	if err != nil {
		t.Fatalf("NewFromFile: %v", err)
	}
	if seg.Used != 5 {
		t.Fatalf("Used = %d, want 5", seg.Used)
	}
	if seg.IsGap {
		t.Fatalf("short read must not produce a gap segment")
	}
}

func TestGapReadsAsZero(t *testing.T) {
	seg := NewGap(0, pmempool.MinSlotSize)
	if !seg.IsGap {
		t.Fatalf("expected gap segment")
	}
	if seg.Data() != nil {
		t.Fatalf("gap segment must expose no backing data")
	}
	if n, err := seg.CopyIn(0, []byte("x")); err != ErrIsGap || n != 0 {
		t.Fatalf("CopyIn on gap = (%d,%v), want ErrIsGap", n, err)
	}
}

func TestPromoteConvertsGapToRealSegment(t *testing.T) {
	p := openTestPool(t, 4*pmempool.MinSlotSize, pmempool.MinSlotSize)

	seg := NewGap(0, pmempool.MinSlotSize)
	if err := seg.Promote(p); err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if seg.IsGap {
		t.Fatalf("segment still marked as gap after Promote")
	}
	if n, err := seg.CopyIn(0, []byte("abc")); err != nil || n != 3 {
		t.Fatalf("CopyIn after Promote = (%d,%v)", n, err)
	}

	// promoting an already-promoted segment must fail
	if err := seg.Promote(p); err != ErrNotGap {
		t.Fatalf("expected ErrNotGap, got %v", err)
	}
}

func TestZeroFillAdvancesUsed(t *testing.T) {
	p := openTestPool(t, 4*pmempool.MinSlotSize, pmempool.MinSlotSize)
	seg, err := NewFromFile(p, 0, pmempool.MinSlotSize, bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("NewFromFile: %v", err)
	}
	if err := seg.ZeroFill(10, 20); err != nil {
		t.Fatalf("ZeroFill: %v", err)
	}
	if seg.Used != 30 {
		t.Fatalf("Used = %d, want 30", seg.Used)
	}
}

func TestCopyOutBoundedByUsed(t *testing.T) {
	p := openTestPool(t, 4*pmempool.MinSlotSize, pmempool.MinSlotSize)
	seg, err := NewFromFile(p, 0, pmempool.MinSlotSize, bytes.NewReader([]byte("abcdef")))
	if err != nil {
		t.Fatalf("NewFromFile: %v", err)
	}
	dst := make([]byte, 10)
	n := seg.CopyOut(4, dst)
	if n != 2 {
		t.Fatalf("CopyOut returned %d bytes, want 2", n)
	}
	if !bytes.Equal(dst[:2], []byte("ef")) {
		t.Fatalf("CopyOut content = %q", dst[:2])
	}
}
