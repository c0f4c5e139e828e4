// Package workpool provides the bounded-concurrency execution primitive
// shared by the partial and full hash stages.
//
// # Concurrency Model
//
//  1. WORKER GOROUTINES (fixed pool)
//     - N workers consume submitted tasks from a buffered queue
//     - N never changes after construction; tasks never spawn unbounded work
//
//  2. SUBMITTERS
//     - Submit blocks once the queue is full (back-pressure)
//     - Flush waits for every submitted task to finish, allowing the same
//       pool to be reused stage after stage
//
//  3. OBSERVERS
//     - Each completed task emits a completion event on a buffered channel
//     - Notification never blocks: if the observer is slow, events are
//       dropped rather than stalling the workers
package workpool

import (
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	// queueFactor sizes the job queue relative to the worker count.
	// A small multiple keeps back-pressure tight while letting submitters
	// run slightly ahead of the workers.
	queueFactor = 4

	// eventBuffer bounds the completion-event channel so a slow observer
	// can never stall task completion.
	eventBuffer = 256
)

// Event reports progress after a task completes.
type Event struct {
	Completed int64 // Tasks finished so far
	Total     int64 // Tasks expected (as registered via AddTotal)
}

// Pool executes submitted tasks with a fixed number of workers.
//
// A single Pool instance is shared by both hashing stages: create with New,
// Submit tasks, Flush between stages, Close when the pipeline is done.
type Pool struct {
	workers int

	jobs     chan func()
	workerWg sync.WaitGroup // Tracks worker goroutines
	inflight sync.WaitGroup // Tracks submitted-but-unfinished tasks

	completed atomic.Int64
	total     atomic.Int64
	events    chan Event

	closeOnce sync.Once
}

// New creates a pool with the given number of workers.
// The worker count must be positive; callers default it to runtime.NumCPU().
func New(workers int) (*Pool, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", workers)
	}

	p := &Pool{
		workers: workers,
		jobs:    make(chan func(), workers*queueFactor),
		events:  make(chan Event, eventBuffer),
	}

	for i := 0; i < workers; i++ {
		p.workerWg.Add(1)
		go p.worker()
	}

	return p, nil
}

// Workers returns the configured concurrency limit.
func (p *Pool) Workers() int { return p.workers }

// Events returns the completion-event channel.
// The channel is closed by Close after the last worker exits.
func (p *Pool) Events() <-chan Event { return p.events }

// AddTotal registers n upcoming tasks for progress reporting.
// Call before submitting a stage's tasks so observers see a stable total.
func (p *Pool) AddTotal(n int64) { p.total.Add(n) }

// Submit queues one task for execution.
// Blocks when the queue is saturated; this is the back-pressure boundary.
// Must not be called after Close.
func (p *Pool) Submit(task func()) {
	p.inflight.Add(1)
	p.jobs <- task
}

// Flush blocks until every task submitted so far has completed.
// The pool remains usable afterwards.
func (p *Pool) Flush() {
	p.inflight.Wait()
}

// Close stops accepting tasks, waits for workers to drain the queue, and
// closes the event channel. Safe to call more than once.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.jobs)
		p.workerWg.Wait()
		close(p.events)
	})
}

func (p *Pool) worker() {
	defer p.workerWg.Done()
	for task := range p.jobs {
		task()
		done := p.completed.Add(1)
		p.notify(done)
		p.inflight.Done()
	}
}

// notify emits a completion event without ever blocking a worker.
func (p *Pool) notify(done int64) {
	select {
	case p.events <- Event{Completed: done, Total: p.total.Load()}:
	default:
	}
}
