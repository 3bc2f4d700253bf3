package segment

import (
	"io"

	"github.com/bsc-ssrg/echofs-ng/internal/errs"
	"github.com/bsc-ssrg/echofs-ng/internal/pmempool"
)

// TransferSize is the default buffer size used to stream bytes in from
// the backing store (spec §4.2, §9 — 4 KiB is a transfer granularity,
// never a mapping-alignment unit).
const TransferSize = 4 << 10

// Segment binds a byte range [Off, Off+Size) of one file to a PMEM slot
// (spec §3, §4.2). A gap segment (IsGap) holds no slot and reads as
// zeros; a non-gap segment always holds exactly one pool.Slot.
type Segment struct {
	Off   int64 // base file offset
	Size  int64 // logical size; equals the pool's slot size by construction
	Used  int64 // high-water mark; [Used, Size) is guaranteed zero
	IsGap bool

	slot *pmempool.Slot
}

// NewGap creates a gap segment spanning [off, off+size). Reads produce
// zeros; writes must call Promote first.
func NewGap(off, size int64) *Segment {
	return &Segment{Off: off, Size: size, IsGap: true}
}

// NewFromFile allocates a slot from pool and streams up to size bytes
// from r using a TransferSize buffer, draining once at the end of the
// fill (spec §4.2: "a single drain at end of an operation is
// sufficient"). Any unused trailing bytes are zero-filled before the
// drain. On short read
// (r returns io.EOF before size bytes are seen), the segment is left
// partial with Used set to the number of bytes actually copied.
func NewFromFile(pool *pmempool.Pool, off, size int64, r io.Reader) (*Segment, error) {
	slot, err := pool.Allocate(size)
	if err != nil {
		return nil, err
	}

	data := slot.Data()
	seg := &Segment{Off: off, Size: int64(len(data)), slot: slot}

	buf := make([]byte, TransferSize)
	var written int64
	for written < size {
		want := size - written
		if want > int64(len(buf)) {
			want = int64(len(buf))
		}
		n, rerr := r.Read(buf[:want])
		if n > 0 {
			copy(data[written:written+int64(n)], buf[:n])
			written += int64(n)
		}
		if rerr != nil {
			break
		}
	}
	seg.Used = written
	// a reused slot or a reopened pool file may still hold old bytes
	clear(data[written:])
	if err := pool.Sync(); err != nil {
		pool.Deallocate(slot)
		return nil, errs.Wrap(errs.InternalError, err)
	}
	return seg, nil
}

// Promote substitutes a fresh slot for a gap segment so it can be
// written to (spec §4.5: "a gap slice that is being written to is
// promoted"). The new slot is zero-filled, so any bytes ahead of the
// first write into the promoted segment read as zero.
func (s *Segment) Promote(pool *pmempool.Pool) error {
	if !s.IsGap {
		return ErrNotGap
	}
	slot, err := pool.Allocate(s.Size)
	if err != nil {
		return err
	}
	s.slot = slot
	s.Size = int64(len(slot.Data()))
	s.IsGap = false
	s.Used = 0
	// a reused slot may still hold another segment's bytes
	clear(slot.Data())
	return nil
}

// Data exposes the segment's base address. For a gap segment it returns
// nil; callers must check IsGap first.
func (s *Segment) Data() []byte {
	if s.IsGap || s.slot == nil {
		return nil
	}
	return s.slot.Data()
}

// ZeroFill persists zeros over [offInSeg, offInSeg+n) and advances Used
// if the zeroed region extends the high-water mark.
func (s *Segment) ZeroFill(offInSeg, n int64) error {
	if s.IsGap {
		return nil // gaps already read as zero everywhere
	}
	data := s.Data()
	if offInSeg < 0 || offInSeg+n > int64(len(data)) {
		return errs.New(errs.InvalidArguments, "zero-fill out of segment bounds")
	}
	for i := offInSeg; i < offInSeg+n; i++ {
		data[i] = 0
	}
	if offInSeg+n > s.Used {
		s.Used = offInSeg + n
	}
	return nil
}

// CopyIn writes src into the segment starting at offInSeg using an
// ordinary copy (the pool mapping stands in for PMEM-safe stores; a real
// DAX deployment would route this through a non-temporal store, see the
// pool's Sync for the matching drain). It advances Used to the high-
// water mark reached by this write.
func (s *Segment) CopyIn(offInSeg int64, src []byte) (int, error) {
	if s.IsGap {
		return 0, ErrIsGap
	}
	data := s.Data()
	if offInSeg < 0 || offInSeg > int64(len(data)) {
		return 0, errs.New(errs.InvalidArguments, "write offset out of segment bounds")
	}
	n := copy(data[offInSeg:], src)
	if offInSeg+int64(n) > s.Used {
		s.Used = offInSeg + int64(n)
	}
	return n, nil
}

// CopyOut reads n bytes starting at offInSeg into dst, returning the
// number of real bytes copied (bounded by Used) separately from the
// zero-fill the caller must apply for [Used, offInSeg+n).
func (s *Segment) CopyOut(offInSeg int64, dst []byte) int {
	if s.IsGap {
		return 0
	}
	data := s.Data()
	end := offInSeg + int64(len(dst))
	if end > s.Used {
		end = s.Used
	}
	if end <= offInSeg {
		return 0
	}
	return copy(dst, data[offInSeg:end])
}

// Release returns the segment's slot to the pool, if any. It is a no-op
// for gap segments.
func (s *Segment) Release(pool *pmempool.Pool) {
	if s.slot != nil {
		pool.Deallocate(s.slot)
		s.slot = nil
	}
}
