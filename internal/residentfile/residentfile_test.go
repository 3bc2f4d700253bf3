package residentfile

import (
	"bytes"
	"testing"

	"github.com/bsc-ssrg/echofs-ng/internal/pmempool"
)

func newPool(t *testing.T) *pmempool.Pool {
	t.Helper()
	p, err := pmempool.Open(t.TempDir()+"/pool.dat", 16*pmempool.MinSlotSize, pmempool.MinSlotSize)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	pool := newPool(t)
	f := New("/a", Persistent, pool)

	n, err := f.Write(0, []byte("hello world"))
	if err != nil || n != 11 {
		t.Fatalf("Write = (%d,%v)", n, err)
	}

	dst := make([]byte, 11)
	n, err = f.Read(0, dst)
	if err != nil || n != 11 || string(dst) != "hello world" {
		t.Fatalf("Read = (%d,%q,%v)", n, dst, err)
	}
}

func TestReadPastEOFReturnsZero(t *testing.T) {
	pool := newPool(t)
	f := New("/a", Persistent, pool)
	f.Write(0, []byte("ab"))

	dst := make([]byte, 4)
	n, err := f.Read(2, dst)
	if err != nil || n != 0 {
		t.Fatalf("Read at EOF = (%d,%v), want (0,nil)", n, err)
	}
}

func TestWriteWithHoleProducesZeroFilledGap(t *testing.T) {
	pool := newPool(t)
	f := New("/a", Persistent, pool)

	f.Write(0, []byte("AA"))
	// write far past current EOF, leaving a hole
	holeStart := int64(5 * pmempool.MinSlotSize)
	f.Write(holeStart, []byte("BB"))

	dst := make([]byte, 4)
	n, err := f.Read(holeStart-2, dst)
	if err != nil || n != 4 {
		t.Fatalf("Read across hole boundary = (%d,%v)", n, err)
	}
	if !bytes.Equal(dst, []byte{0, 0, 'B', 'B'}) {
		t.Fatalf("Read across hole = %v, want zero-then-data", dst)
	}
}

func TestAppendIsAtomicAgainstEOF(t *testing.T) {
	pool := newPool(t)
	f := New("/a", Persistent, pool)

	off1, n1, err := f.Append([]byte("foo"))
	if err != nil || off1 != 0 || n1 != 3 {
		t.Fatalf("first append = (%d,%d,%v)", off1, n1, err)
	}
	off2, n2, err := f.Append([]byte("bar"))
	if err != nil || off2 != 3 || n2 != 3 {
		t.Fatalf("second append = (%d,%d,%v)", off2, n2, err)
	}

	dst := make([]byte, 6)
	f.Read(0, dst)
	if string(dst) != "foobar" {
		t.Fatalf("final content = %q, want foobar", dst)
	}
}

func TestTruncateShrinkThenGrowIsZero(t *testing.T) {
	pool := newPool(t)
	f := New("/a", Persistent, pool)
	f.Write(0, []byte("0123456789"))

	if err := f.Truncate(4); err != nil {
		t.Fatalf("Truncate shrink: %v", err)
	}
	_, used, _ := f.Attrs()
	if used != 4 {
		t.Fatalf("used after shrink = %d, want 4", used)
	}

	if err := f.Truncate(8); err != nil {
		t.Fatalf("Truncate grow: %v", err)
	}
	dst := make([]byte, 8)
	f.Read(0, dst)
	if !bytes.Equal(dst[4:], []byte{0, 0, 0, 0}) {
		t.Fatalf("grown region not zero: %v", dst[4:])
	}
}

func TestUnloadRejectsTemporaryFiles(t *testing.T) {
	pool := newPool(t)
	f := New("/a", Temporary, pool)
	var buf bytes.Buffer
	if err := f.Unload(&buf); err == nil {
		t.Fatalf("expected error unloading a temporary file")
	}
}

func TestUnloadWritesLiveRangeWithZeroFilledGaps(t *testing.T) {
	pool := newPool(t)
	f := New("/a", Persistent, pool)
	f.Write(0, []byte("AA"))
	f.Write(int64(2*pmempool.MinSlotSize), []byte("BB"))

	var buf bytes.Buffer
	if err := f.Unload(&buf); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if buf.Len() != int(2*pmempool.MinSlotSize)+2 {
		t.Fatalf("unloaded length = %d, want %d", buf.Len(), 2*pmempool.MinSlotSize+2)
	}
	out := buf.Bytes()
	if out[0] != 'A' || out[1] != 'A' {
		t.Fatalf("unexpected head bytes: %v", out[:2])
	}
	if out[len(out)-2] != 'B' || out[len(out)-1] != 'B' {
		t.Fatalf("unexpected tail bytes: %v", out[len(out)-2:])
	}
}
