// Package sched provides the concurrency bridge between the synchronous
// orchestration core and the asynchronous platform adapters.
//
// One worker goroutine, owned by the Scheduler and started once at startup,
// consumes a task queue. Submit enqueues a unit of adapter work and blocks the
// calling goroutine on a result channel until the worker has run it, so
// adapter calls issued from synchronous call sites are serialized: no two
// submitted units run concurrently, though units from different adapters may
// be queued in any order.
package sched

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
)

// Task is a unit of adapter work executed on the worker goroutine.
type Task func(ctx context.Context) (any, error)

var (
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("scheduler stopped")

	// ErrOnWorker is returned when a task submits from the worker goroutine,
	// which would deadlock waiting on itself.
	ErrOnWorker = errors.New("submit from scheduler worker would deadlock")
)

type outcome struct {
	value any
	err   error
}

type item struct {
	label string
	fn    Task
	done  chan outcome
}

// Scheduler owns the worker goroutine and its task queue.
type Scheduler struct {
	queue    chan item
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
}

// workerKey marks contexts passed to tasks so Submit can refuse re-entrant
// calls from the worker goroutine itself.
type workerKey struct{}

// New creates a scheduler with the given queue depth.
func New(queueSize int) *Scheduler {
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Scheduler{
		queue:  make(chan item, queueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the worker goroutine. Call once.
func (s *Scheduler) Start() {
	s.started.Store(true)
	go s.run()
}

// Stop signals the worker to exit after its current task and waits for it.
// Pending queued tasks are failed with ErrStopped. Idempotent.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if s.started.Load() {
		<-s.doneCh
	}
}

// Submit schedules fn on the worker goroutine and blocks until it completes,
// returning its result or error. Waiting is interrupted by ctx cancellation
// or scheduler stop; in those cases the task may still run later, but its
// outcome is discarded.
func (s *Scheduler) Submit(ctx context.Context, label string, fn Task) (any, error) {
	if ctx.Value(workerKey{}) != nil {
		return nil, fmt.Errorf("%s: %w", label, ErrOnWorker)
	}

	it := item{label: label, fn: fn, done: make(chan outcome, 1)}

	select {
	case s.queue <- it:
	case <-s.stopCh:
		return nil, fmt.Errorf("%s: %w", label, ErrStopped)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case out := <-it.done:
		return out.value, out.err
	case <-s.stopCh:
		return nil, fmt.Errorf("%s: %w", label, ErrStopped)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run is the worker loop. Task panics are isolated per task so one faulty
// adapter call cannot stop processing for every adapter.
func (s *Scheduler) run() {
	defer close(s.doneCh)
	ctx := context.WithValue(context.Background(), workerKey{}, true)
	for {
		// Stop takes priority over queued work.
		select {
		case <-s.stopCh:
			s.drain()
			return
		default:
		}
		select {
		case <-s.stopCh:
			s.drain()
			return
		case it := <-s.queue:
			it.done <- s.execute(ctx, it)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, it item) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Sched] task %s panicked: %v", it.label, r)
			out = outcome{err: fmt.Errorf("task %s panicked: %v", it.label, r)}
		}
	}()
	v, err := it.fn(ctx)
	return outcome{value: v, err: err}
}

// drain fails any tasks still queued at shutdown.
func (s *Scheduler) drain() {
	for {
		select {
		case it := <-s.queue:
			it.done <- outcome{err: fmt.Errorf("%s: %w", it.label, ErrStopped)}
		default:
			return
		}
	}
}
