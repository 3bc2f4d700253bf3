// Package residentfile implements the resident file (spec §4.5): a
// file staged into the PMEM tier, composed of a range-lock manager
// (internal/rangelock), a segment index (internal/segindex) and cached
// POSIX attributes. It is grounded on the original implementation's
// file::range_lookup / file::add (original_source/src/backends/
// nvram-nvml/file.cpp), adapted from C++'s offset_tree + buffer_map
// shape to Go's segindex.Index + rangelock.Manager composition.
package residentfile

import (
	"io"
	"sync"
	"time"

	"github.com/bsc-ssrg/echofs-ng/internal/errs"
	"github.com/bsc-ssrg/echofs-ng/internal/pmempool"
	"github.com/bsc-ssrg/echofs-ng/internal/rangelock"
	"github.com/bsc-ssrg/echofs-ng/internal/segindex"
	"github.com/bsc-ssrg/echofs-ng/internal/segment"
)

// Type distinguishes files that are written back on unload from ones
// that are simply discarded (spec §4.5).
type Type int

const (
	Persistent Type = iota
	Temporary
)

// Attrs mirrors the subset of POSIX struct stat this engine tracks
// in-memory (spec §4.5). Mode/owner/nlink are set by the registry and
// persisted only via writeback, never independently.
type Attrs struct {
	Mode  uint32
	UID   uint32
	GID   uint32
	Nlink uint32
	Inode uint64
	Mtime time.Time
	Ctime time.Time
	Atime time.Time
}

// File is one resident file: pathname, type, cached attributes, a
// segment index and a range-lock manager (spec §4.5's C5).
type File struct {
	mu sync.Mutex // guards Attrs and the alloc/used offsets only

	Path string
	Kind Type

	attrs Attrs

	allocOffset int64 // high-water of allocated (possibly gap) storage
	usedOffset  int64 // logical EOF

	index *segindex.Index
	locks *rangelock.Manager
	pool  *pmempool.Pool
}

// New creates an empty resident file backed by pool.
func New(path string, kind Type, pool *pmempool.Pool) *File {
	now := time.Now()
	return &File{
		Path:  path,
		Kind:  kind,
		pool:  pool,
		index: segindex.New(),
		locks: rangelock.New(),
		attrs: Attrs{Mode: 0644, Mtime: now, Ctime: now, Atime: now},
	}
}

// Attrs returns a copy of the file's cached attributes, with Size and
// Nblocks kept consistent with usedOffset (spec §4.5 invariants:
// stat.size == used_offset; stat.blocks == used_offset / 512).
func (f *File) Attrs() (Attrs, int64, int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attrs, f.usedOffset, f.usedOffset / 512
}

func (f *File) touch(mtime bool) {
	now := time.Now()
	f.attrs.Ctime = now
	if mtime {
		f.attrs.Mtime = now
	}
}

// SetMode updates the cached mode bits in-memory (spec §4.5: "stored
// in-memory only and persisted via the writeback step").
func (f *File) SetMode(mode uint32) {
	f.mu.Lock()
	f.attrs.Mode = mode
	f.touch(false)
	f.mu.Unlock()
}

// SetOwner updates the cached uid/gid in-memory.
func (f *File) SetOwner(uid, gid uint32) {
	f.mu.Lock()
	f.attrs.UID = uid
	f.attrs.GID = gid
	f.touch(false)
	f.mu.Unlock()
}

func (f *File) touchAtime() {
	f.mu.Lock()
	f.attrs.Atime = time.Now()
	f.mu.Unlock()
}

// ensureAllocated extends the index so that [allocOffset, end) is
// covered, creating gap segments over any hole between usedOffset and
// the new write's start (spec §4.5 write/allocate).
func (f *File) ensureAllocated(end int64) {
	if end <= f.allocOffset {
		return
	}
	slotSize := f.pool.SlotSize()
	off := f.allocOffset
	for off < end {
		// every gap segment is a whole slot, even the last one covering
		// the tail of the requested range
		f.index.InsertBack(segment.NewGap(off, slotSize))
		off += slotSize
	}
	f.allocOffset = off
}

// Read clamps to EOF, acquires a reader range lock, and copies real
// bytes followed by zero-fill for the remainder of each slice, and
// zeros entirely for gap slices (spec §4.5 read).
func (f *File) Read(off int64, dst []byte) (int, error) {
	if off < 0 {
		return 0, errs.New(errs.InvalidArguments, "negative read offset")
	}

	f.mu.Lock()
	used := f.usedOffset
	f.mu.Unlock()

	if off >= used {
		return 0, nil
	}
	length := int64(len(dst))
	if off+length > used {
		length = used - off
	}

	l := f.locks.Acquire(off, off+length, rangelock.Reader)
	defer f.locks.Release(l)

	var n int64
	for _, seg := range f.index.Scan(off, off+length) {
		segStart := off + n
		if segStart < seg.Off {
			segStart = seg.Off
		}
		localOff := segStart - seg.Off
		remaining := (off + length) - segStart
		segRemaining := seg.Size - localOff
		take := remaining
		if take > segRemaining {
			take = segRemaining
		}
		if take <= 0 {
			continue
		}
		chunk := dst[n : n+take]
		if seg.IsGap {
			for i := range chunk {
				chunk[i] = 0
			}
		} else {
			got := seg.CopyOut(localOff, chunk)
			for i := got; i < int(take); i++ {
				chunk[i] = 0
			}
		}
		n += take
	}

	f.touchAtime()
	return int(n), nil
}

// Write acquires a writer range lock, extends allocation and promotes
// any gap slices it touches, then copies the caller's bytes, updating
// used_offset/used_bytes and mtime/ctime (spec §4.5 write).
func (f *File) Write(off int64, src []byte) (int, error) {
	if off < 0 {
		return 0, errs.New(errs.InvalidArguments, "negative write offset")
	}
	l := f.locks.Acquire(off, off+int64(len(src)), rangelock.Writer)
	defer f.locks.Release(l)
	return f.writeLocked(off, src)
}

// writeLocked is Write's body; the caller holds a writer range lock
// covering [off, off+len(src)).
func (f *File) writeLocked(off int64, src []byte) (int, error) {
	length := int64(len(src))
	end := off + length

	f.mu.Lock()
	if end > f.allocOffset {
		f.ensureAllocated(end)
	}
	f.mu.Unlock()

	var n int64
	for _, seg := range f.index.Scan(off, end) {
		segStart := off + n
		if segStart < seg.Off {
			segStart = seg.Off
		}
		localOff := segStart - seg.Off
		remaining := end - segStart
		segRemaining := seg.Size - localOff
		take := remaining
		if take > segRemaining {
			take = segRemaining
		}
		if take <= 0 {
			continue
		}

		if seg.IsGap {
			if err := seg.Promote(f.pool); err != nil {
				return int(n), err
			}
			f.index.Replace(seg.Off, seg)
		}

		if _, err := seg.CopyIn(localOff, src[n:n+take]); err != nil {
			return int(n), err
		}
		n += take
	}

	f.mu.Lock()
	if end > f.usedOffset {
		f.usedOffset = end
	}
	f.touch(true)
	f.mu.Unlock()

	if err := f.pool.Sync(); err != nil {
		return int(n), errs.Wrap(errs.InternalError, err)
	}
	return int(n), nil
}

// Append behaves like Write(usedOffset, src) but reads usedOffset only
// after acquiring the writer lock covering the eventual range, so
// concurrent appenders never interleave (spec §4.5 append).
func (f *File) Append(src []byte) (int64, int, error) {
	length := int64(len(src))
	for {
		f.mu.Lock()
		start := f.usedOffset
		f.mu.Unlock()

		l := f.locks.Acquire(start, start+length, rangelock.Writer)

		f.mu.Lock()
		cur := f.usedOffset
		f.mu.Unlock()
		if cur != start {
			// another append landed first; retry with the new EOF
			f.locks.Release(l)
			continue
		}
		n, err := f.writeLocked(start, src)
		f.locks.Release(l)
		return start, n, err
	}
}

// Truncate shrinks or grows the file to new_size, releasing slots on
// shrink and zero-guaranteed extension on grow (spec §4.5 truncate).
func (f *File) Truncate(newSize int64) error {
	if newSize < 0 {
		return errs.New(errs.InvalidArguments, "negative truncate size")
	}

	f.mu.Lock()
	used := f.usedOffset
	f.mu.Unlock()

	lockStart := newSize
	if used < lockStart {
		lockStart = used
	}
	l := f.locks.Acquire(lockStart, 1<<62, rangelock.Writer)
	defer f.locks.Release(l)

	f.mu.Lock()
	defer f.mu.Unlock()

	if newSize < f.usedOffset {
		// segments starting at or past newSize are the ones the index
		// drops; return their slots to the pool
		for _, seg := range f.index.Scan(newSize, f.allocOffset) {
			if seg.Off >= newSize {
				seg.Release(f.pool)
			}
		}
		f.index.Truncate(newSize)
		f.allocOffset = newSize
		f.usedOffset = newSize
	} else if newSize > f.allocOffset {
		f.ensureAllocated(newSize)
		f.usedOffset = newSize
	} else {
		f.usedOffset = newSize
	}
	f.touch(true)
	return nil
}

// Allocate ensures storage exists covering [off, off+len) without
// publishing a larger file size (spec §4.5 allocate).
func (f *File) Allocate(off, length int64) error {
	if off < 0 || length < 0 {
		return errs.New(errs.InvalidArguments, "negative allocate range")
	}
	end := off + length

	f.mu.Lock()
	defer f.mu.Unlock()
	if end > f.allocOffset {
		f.ensureAllocated(end)
	}
	return nil
}

// Unload writes the live byte range [0, usedOffset) to w, zero-filling
// gaps, and returns an error for temporary files (spec §4.5 unload).
func (f *File) Unload(w io.Writer) error {
	if f.Kind == Temporary {
		return errs.New(errs.InvalidArguments, "temporary files cannot be written back")
	}

	f.mu.Lock()
	used := f.usedOffset
	f.mu.Unlock()

	l := f.locks.Acquire(0, used, rangelock.Reader)
	defer f.locks.Release(l)

	var written int64
	zero := make([]byte, 64<<10)
	for _, seg := range f.index.Scan(0, used) {
		segEnd := seg.Off + seg.Size
		if segEnd > used {
			segEnd = used
		}
		n := segEnd - seg.Off
		if seg.IsGap {
			if err := writeZeros(w, zero, n); err != nil {
				return err
			}
		} else {
			data := seg.Data()[:n]
			if _, err := w.Write(data); err != nil {
				return errs.Wrap(errs.InternalError, err)
			}
		}
		written += n
	}
	return nil
}

func writeZeros(w io.Writer, buf []byte, n int64) error {
	for n > 0 {
		chunk := n
		if chunk > int64(len(buf)) {
			chunk = int64(len(buf))
		}
		if _, err := w.Write(buf[:chunk]); err != nil {
			return errs.Wrap(errs.InternalError, err)
		}
		n -= chunk
	}
	return nil
}
