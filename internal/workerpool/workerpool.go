// Package workerpool implements the fixed-size task executor (C5): N
// workers drain a task backlog (internal/queue); an unhandled failure in a
// task is caught and logged without terminating the worker. Shutdown is
// idempotent: in-flight tasks run to completion, queued-but-unstarted
// tasks are discarded.
package workerpool

import (
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/e7canasta/avstreamd/internal/queue"
)

// Task is a nullary unit of work.
type Task func()

// Pool is a fixed-size (at most N concurrent) task executor. The bounded
// concurrency is enforced by a sourcegraph/conc pool; task admission is
// backed by an internal/queue.Queue so Submit never blocks the caller
// (the accept loop, in C6's case) regardless of how busy the workers are.
type Pool struct {
	tasks          *queue.Queue[Task]
	conc           *pool.Pool
	dispatcherDone chan struct{}
	stopOnce       sync.Once
}

// New creates a Pool with n fixed worker slots.
func New(n int) *Pool {
	if n <= 0 {
		n = 1
	}
	p := &Pool{
		tasks:          queue.New[Task](0), // unbounded backlog: Submit never blocks
		conc:           pool.New().WithMaxGoroutines(n),
		dispatcherDone: make(chan struct{}),
	}
	go p.dispatch()
	return p
}

// Submit enqueues a task for execution by the next free worker slot.
func (p *Pool) Submit(t Task) {
	p.tasks.Push(t)
}

func (p *Pool) dispatch() {
	defer close(p.dispatcherDone)
	for {
		task, ok := p.tasks.Pop()
		if !ok {
			return
		}
		p.conc.Go(func() { p.runSafely(task) })
	}
}

func (p *Pool) runSafely(t Task) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker task panicked", "panic", r)
		}
	}()
	t()
}

// Shutdown is idempotent. It discards any tasks still sitting in the
// backlog, then waits for every task already dispatched to a worker slot
// to finish before returning.
func (p *Pool) Shutdown() {
	p.stopOnce.Do(func() {
		p.tasks.ShutdownDiscard()
		<-p.dispatcherDone
		p.conc.Wait()
	})
}
