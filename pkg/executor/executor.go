// Package executor provides a fixed-size worker pool with a bounded queue and
// caller-runs backpressure, plus a completion service that hands results back
// in the order tasks finish.
package executor

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc"
)

// ErrShutdown is returned by Execute after ShutdownNow.
var ErrShutdown = errors.New("executor is shut down")

// DefaultQueueFactor is the number of queue slots per worker.
const DefaultQueueFactor = 16

// Stats is a snapshot of executor counters.
type Stats struct {
	// Submitted counts accepted tasks, queued or run inline.
	Submitted uint64
	// CallerRuns counts tasks executed on the submitting goroutine because the queue was full.
	CallerRuns uint64
	// Abandoned counts queued tasks dropped by ShutdownNow.
	Abandoned uint64
}

// Executor runs tasks on a fixed number of worker goroutines fed by a bounded
// queue. When the queue is full, Execute runs the task on the caller's
// goroutine, which throttles the producer and keeps memory bounded.
type Executor struct {
	tasks   chan func()
	stop    chan struct{}
	workers conc.WaitGroup
	size    int

	mu     sync.RWMutex
	closed bool

	submitted  atomic.Uint64
	callerRuns atomic.Uint64
	abandoned  atomic.Uint64
}

// New starts workers goroutines (at least one) consuming a queue of queueSize slots.
func New(workers, queueSize int) *Executor {
	workers = max(workers, 1)
	queueSize = max(queueSize, 0)

	exec := &Executor{
		tasks: make(chan func(), queueSize),
		stop:  make(chan struct{}),
		size:  workers,
	}

	for range workers {
		exec.workers.Go(exec.work)
	}

	return exec
}

func (e *Executor) work() {
	for {
		select {
		case <-e.stop:
			return
		default:
		}

		select {
		case <-e.stop:
			return
		case task := <-e.tasks:
			task()
		}
	}
}

// Workers returns the pool size.
func (e *Executor) Workers() int {
	return e.size
}

// QueueCapacity returns the number of queue slots.
func (e *Executor) QueueCapacity() int {
	return cap(e.tasks)
}

// Execute schedules task. It never blocks on a full queue: the task runs
// inline instead. Returns [ErrShutdown] once the executor is shut down.
func (e *Executor) Execute(task func()) error {
	e.mu.RLock()

	if e.closed {
		e.mu.RUnlock()

		return ErrShutdown
	}

	e.submitted.Add(1)

	select {
	case e.tasks <- task:
		e.mu.RUnlock()

		return nil
	default:
		e.mu.RUnlock()
	}

	e.callerRuns.Add(1)
	task()

	return nil
}

// ShutdownNow stops accepting tasks, tells workers to exit after their current
// task, and drops every queued task. It returns the number of dropped tasks.
// Running tasks are not interrupted.
func (e *Executor) ShutdownNow() int {
	e.mu.Lock()

	if !e.closed {
		e.closed = true
		close(e.stop)
	}

	e.mu.Unlock()

	dropped := 0

	for {
		select {
		case <-e.tasks:
			dropped++
		default:
			e.abandoned.Add(uint64(dropped))

			return dropped
		}
	}
}

// Done is closed when the executor is shut down.
func (e *Executor) Done() <-chan struct{} {
	return e.stop
}

// Wait blocks until every worker goroutine has exited. Call after ShutdownNow.
// A panic raised by a task is re-raised here.
func (e *Executor) Wait() {
	e.workers.Wait()
}

// Stats returns a snapshot of the executor counters.
func (e *Executor) Stats() Stats {
	return Stats{
		Submitted:  e.submitted.Load(),
		CallerRuns: e.callerRuns.Load(),
		Abandoned:  e.abandoned.Load(),
	}
}
