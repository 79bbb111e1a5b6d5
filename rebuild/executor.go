// Package rebuild runs fire-and-forget cache rebuild tasks on a fixed pool
// of workers fed by a bounded queue.
//
// Submit never blocks. When the queue is full or the executor is closed the
// task is dropped and Submit reports false, leaving the caller to release
// whatever it acquired for the task. One executor is meant to be shared by
// every cache client in the process, so backing-store load from rebuilds is
// capped by the worker count rather than by request volume.
package rebuild

import (
	"sync"
	"sync/atomic"
)

const (
	DefaultWorkers = 10
	DefaultQueue   = 1024
)

type Executor struct {
	q    chan func()
	wg   sync.WaitGroup
	mu   sync.RWMutex // guards closed and the send on q
	once sync.Once

	closed    bool
	submitted atomic.Int64
	dropped   atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
}

// Stats is a snapshot of executor counters.
type Stats struct {
	Submitted int64
	Dropped   int64
	Completed int64
	Panicked  int64
	Queued    int
}

func NewExecutor(workers, queue int) *Executor {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queue <= 0 {
		queue = DefaultQueue
	}
	e := &Executor{q: make(chan func(), queue)}
	e.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go e.work()
	}
	return e
}

func (e *Executor) work() {
	defer e.wg.Done()
	for f := range e.q {
		e.run(f)
	}
}

// run isolates a panicking task so the worker survives. Tasks are expected to
// recover and report their own failures; this is the last line.
func (e *Executor) run(f func()) {
	defer func() {
		if r := recover(); r != nil {
			e.panicked.Add(1)
		}
		e.completed.Add(1)
	}()
	f()
}

// Submit enqueues f without blocking. It reports false if the queue is full
// or the executor is closed.
func (e *Executor) Submit(f func()) bool {
	if f == nil {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.dropped.Add(1)
		return false
	}
	select {
	case e.q <- f:
		e.submitted.Add(1)
		return true
	default:
		e.dropped.Add(1)
		return false
	}
}

// Close stops accepting tasks, runs everything already queued and waits for
// the workers to exit. Safe to call more than once.
func (e *Executor) Close() {
	e.once.Do(func() {
		e.mu.Lock()
		e.closed = true
		close(e.q)
		e.mu.Unlock()
		e.wg.Wait()
	})
}

func (e *Executor) Stats() Stats {
	return Stats{
		Submitted: e.submitted.Load(),
		Dropped:   e.dropped.Load(),
		Completed: e.completed.Load(),
		Panicked:  e.panicked.Load(),
		Queued:    len(e.q),
	}
}
