// Package task tracks the lifecycle of asynchronous LOAD_PATH/UNLOAD_PATH
// jobs (spec §6): a monotonic id, a state, and a worker pool that drains
// a job queue, modeled on the retention cleaner's ticker/stop-channel
// worker shape in internal/retention.RetentionCleaner.
package task

import (
	"sync"
	"sync/atomic"

	"github.com/bsc-ssrg/echofs-ng/internal/errs"
)

// State is one of the lifecycle states reported by STATUS (spec §6).
type State int

const (
	Pending State = iota
	InProgress
	Completed
	Failed
)

// Record is the tracked state of one submitted job.
type Record struct {
	ID    uint32
	State State
	Err   error
}

// Tracker issues monotonic task ids and records their lifecycle state.
// Ids are valid only for the lifetime of the process (spec §6).
type Tracker struct {
	counter atomic.Uint32

	mu      sync.Mutex
	records map[uint32]*Record
}

// NewTracker returns an empty task tracker.
func NewTracker() *Tracker {
	return &Tracker{records: make(map[uint32]*Record)}
}

// New allocates a fresh task id in state Pending and returns it.
func (t *Tracker) New() uint32 {
	id := t.counter.Add(1)
	t.mu.Lock()
	t.records[id] = &Record{ID: id, State: Pending}
	t.mu.Unlock()
	return id
}

// Start marks a task InProgress.
func (t *Tracker) Start(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.records[id]; ok {
		r.State = InProgress
	}
}

// Finish marks a task Completed, or Failed if err is non-nil.
func (t *Tracker) Finish(id uint32, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[id]
	if !ok {
		return
	}
	if err != nil {
		r.State = Failed
		r.Err = err
		return
	}
	r.State = Completed
}

// Status returns the recorded state of id, or NoSuchTask if unknown
// (spec §4.7, §6).
func (t *Tracker) Status(id uint32) (*Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[id]
	if !ok {
		return nil, errs.New(errs.NoSuchTask, "").WithDetail("task_id", id)
	}
	return r, nil
}

// Pool runs submitted jobs across a fixed number of worker goroutines,
// draining a buffered job channel until Stop is called (grounded on
// internal/retention.RetentionCleaner's wg/stop-channel shutdown shape).
type Pool struct {
	jobs chan func()
	wg   sync.WaitGroup
}

// NewPool starts size worker goroutines (spec §5 default 8).
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 8
	}
	p := &Pool{jobs: make(chan func(), size*4)}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		job()
	}
}

// Submit enqueues fn to run on a worker goroutine.
func (p *Pool) Submit(fn func()) {
	p.jobs <- fn
}

// Stop closes the job queue and waits for every already-submitted job
// to finish running; bulk jobs are not interruptible once started
// (spec §5).
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
}
