// Package segindex keeps one file's ordered list of segments, the
// sparse "which offsets are backed by which slot" mapping of spec §4.4.
// It is grounded on the same binary-search-over-a-sorted-slice idiom
// internal/partition uses to find the segment covering a read offset,
// generalized here from a single BaseOffset key to a full [Off, Off+Size)
// interval map.
package segindex

import (
	"sort"
	"sync"

	"github.com/bsc-ssrg/echofs-ng/internal/segment"
)

// Index is the ordered, non-overlapping, gap-filling interval map of
// segments backing one resident file (spec §4.4: "a file's byte range
// is entirely covered by a sequence of segments with no gaps in the
// index itself — gaps are represented by gap segments, not by absence").
type Index struct {
	mu       sync.RWMutex
	segments []*segment.Segment // sorted by Off, contiguous: segments[i].Off+Size == segments[i+1].Off
}

// New returns an empty index.
func New() *Index {
	return &Index{}
}

// search returns the position of the first segment whose Off is >= off.
func (ix *Index) search(off int64) int {
	return sort.Search(len(ix.segments), func(i int) bool { return ix.segments[i].Off >= off })
}

// Find returns the segment covering byte offset off, or nil if off lies
// past the end of the indexed range.
func (ix *Index) Find(off int64) *segment.Segment {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.findLocked(off)
}

func (ix *Index) findLocked(off int64) *segment.Segment {
	i := ix.search(off)
	if i < len(ix.segments) && ix.segments[i].Off == off {
		return ix.segments[i]
	}
	if i == 0 {
		return nil
	}
	prev := ix.segments[i-1]
	if off < prev.Off+prev.Size {
		return prev
	}
	return nil
}

// Scan returns every segment overlapping [start, end), in order.
func (ix *Index) Scan(start, end int64) []*segment.Segment {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []*segment.Segment
	i := ix.search(start)
	if i > 0 && ix.segments[i-1].Off+ix.segments[i-1].Size > start {
		i--
	}
	for ; i < len(ix.segments); i++ {
		s := ix.segments[i]
		if s.Off >= end {
			break
		}
		out = append(out, s)
	}
	return out
}

// InsertBack appends a segment known to start exactly at the current
// end of the index (the resident file grows its allocation this way: a
// new segment is always added at the tail).
func (ix *Index) InsertBack(s *segment.Segment) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.segments = append(ix.segments, s)
}

// Replace swaps the segment at position off for replacement — used by
// Promote, where a gap segment becomes a real one in place.
func (ix *Index) Replace(off int64, replacement *segment.Segment) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	i := ix.search(off)
	if i < len(ix.segments) && ix.segments[i].Off == off {
		ix.segments[i] = replacement
	}
}

// EndOffset returns the logical end of the indexed range: the offset
// one past the last byte any segment in the index covers.
func (ix *Index) EndOffset() int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if len(ix.segments) == 0 {
		return 0
	}
	last := ix.segments[len(ix.segments)-1]
	return last.Off + last.Size
}

// Truncate drops or shrinks segments so the index covers exactly
// [0, size). Segments wholly beyond size are discarded; a segment
// straddling size has its Size (and, for non-gap segments, Used)
// clamped to the remaining portion.
func (ix *Index) Truncate(size int64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	i := ix.search(size)
	if i < len(ix.segments) && ix.segments[i].Off == size {
		ix.segments = ix.segments[:i]
		return
	}
	if i == 0 {
		ix.segments = nil
		return
	}
	last := ix.segments[i-1]
	if last.Off < size {
		last.Size = size - last.Off
		if last.Used > last.Size {
			last.Used = last.Size
		}
		ix.segments = ix.segments[:i]
		return
	}
	ix.segments = ix.segments[:i-1]
}

// Len reports how many segments currently make up the index.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.segments)
}
