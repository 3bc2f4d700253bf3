// Package pmempool implements the PMEM pool (spec §4.1): a single shared
// mapping carved into fixed-size slots, handed out by a rotating-cursor
// first-fit bitmap allocator.
package pmempool

import (
	"fmt"
	"os"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/bsc-ssrg/echofs-ng/internal/errs"
)

const (
	// DefaultSlotSize is the default PMEM slot size (spec §3).
	DefaultSlotSize int64 = 128 << 20
	// MinSlotSize is the minimum configurable slot size.
	MinSlotSize int64 = 1 << 20
)

// Slot is a handle to one allocated, contiguous PMEM slot. Its Data
// method exposes a stable byte slice for the slot's lifetime.
type Slot struct {
	pool  *Pool
	index int64
	count int64 // number of consecutive slots backing this allocation
}

// Index returns the slot's starting index within the pool.
func (s *Slot) Index() int64 { return s.index }

// Data returns the raw bytes backing this slot run.
func (s *Slot) Data() []byte {
	start := s.index * s.pool.slotSize
	end := start + s.count*s.pool.slotSize
	return s.pool.mapping[start:end]
}

// Pool owns a single PMEM-resident mapping and a bitmap allocator over
// its slots (spec §4.1).
type Pool struct {
	mu sync.Mutex

	file     *os.File
	mapping  []byte
	capacity int64
	slotSize int64
	numSlots int64

	bitmap []uint64 // one bit per slot; 1 == allocated
	cursor int64
}

// Open maps path (truncating/creating it to capacity if needed) and
// partitions it into numSlots = capacity / slotSize equal slots.
func Open(path string, capacity, slotSize int64) (*Pool, error) {
	if slotSize < MinSlotSize {
		return nil, errs.New(errs.InvalidArguments, "slot size below minimum").
			WithDetail("slot_size", slotSize).WithDetail("minimum", MinSlotSize)
	}
	if capacity < slotSize {
		return nil, errs.New(errs.InvalidArguments, "capacity smaller than one slot")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errs.Wrap(errs.InternalError, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errs.Wrap(errs.InternalError, err)
	}
	if fi.Size() < capacity {
		if err := syscall.Ftruncate(int(f.Fd()), capacity); err != nil {
			f.Close()
			return nil, errs.Wrap(errs.InternalError, err)
		}
	}

	mapping, err := syscall.Mmap(int(f.Fd()), 0, int(capacity),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errs.Wrap(errs.InternalError, err)
	}

	numSlots := capacity / slotSize
	return &Pool{
		file:     f,
		mapping:  mapping,
		capacity: capacity,
		slotSize: slotSize,
		numSlots: numSlots,
		bitmap:   make([]uint64, (numSlots+63)/64),
	}, nil
}

// SlotSize returns the pool-wide slot size.
func (p *Pool) SlotSize() int64 { return p.slotSize }

// NumSlots returns the total number of slots in the pool.
func (p *Pool) NumSlots() int64 { return p.numSlots }

// Allocate rounds bytes up to a whole number of slots and performs a
// rotating-cursor first-fit search over the bitmap (spec §4.1). Tie-break
// policy: lowest index >= cursor first, then lowest index overall.
func (p *Pool) Allocate(bytes int64) (*Slot, error) {
	if bytes <= 0 {
		return nil, errs.New(errs.InvalidArguments, "allocate requires bytes > 0")
	}
	k := (bytes + p.slotSize - 1) / p.slotSize

	p.mu.Lock()
	defer p.mu.Unlock()

	start, found := p.firstFit(p.cursor, k)
	if !found {
		start, found = p.firstFit(0, k)
	}
	if !found {
		return nil, errs.New(errs.PoolFull, "").
			WithDetail("requested_slots", k).WithDetail("total_slots", p.numSlots)
	}

	for i := start; i < start+k; i++ {
		p.setBit(i)
	}
	p.cursor = (start + k + 1) % p.numSlots

	return &Slot{pool: p, index: start, count: k}, nil
}

// Deallocate clears the bits backing slot. Double-free is undefined
// behavior the caller must prevent (spec §4.1); this implementation
// clears unconditionally.
func (p *Pool) Deallocate(slot *Slot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := slot.index; i < slot.index+slot.count; i++ {
		p.clearBit(i)
	}
}

// firstFit searches for k consecutive free bits starting at from,
// without wrapping past the end of the bitmap.
func (p *Pool) firstFit(from, k int64) (int64, bool) {
	if from < 0 || from >= p.numSlots {
		from = 0
	}
	run := int64(0)
	runStart := int64(0)
	for i := from; i < p.numSlots; i++ {
		if p.testBit(i) {
			run = 0
			continue
		}
		if run == 0 {
			runStart = i
		}
		run++
		if run == k {
			return runStart, true
		}
	}
	return 0, false
}

func (p *Pool) testBit(i int64) bool {
	return p.bitmap[i/64]&(uint64(1)<<uint(i%64)) != 0
}

func (p *Pool) setBit(i int64) {
	p.bitmap[i/64] |= uint64(1) << uint(i%64)
}

func (p *Pool) clearBit(i int64) {
	p.bitmap[i/64] &^= uint64(1) << uint(i%64)
}

// BitsSet returns the number of allocated slots, used by tests to verify
// invariant 4 of spec §8 (bitmap matches the union of referenced slots).
func (p *Pool) BitsSet() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var n int64
	for i := int64(0); i < p.numSlots; i++ {
		if p.testBit(i) {
			n++
		}
	}
	return n
}

// Sync drains any pending PMEM stores to durable storage (a no-op drain
// is acceptable on platforms lacking true persistence — spec Design
// Notes, "PMEM store ordering").
func (p *Pool) Sync() error {
	return unix.Msync(p.mapping, unix.MS_SYNC)
}

// Close unmaps and closes the backing file.
func (p *Pool) Close() error {
	if err := p.Sync(); err != nil {
		return fmt.Errorf("syncing pool before close: %w", err)
	}
	if err := syscall.Munmap(p.mapping); err != nil {
		return err
	}
	return p.file.Close()
}
