// Package asynchook moves guardcache hook delivery off the hot path.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    SelfHealEvery:  10, // sample logs: ~every 10th self-heal
//	    ContendedEvery: 100,
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := guardcache.New[Shop](guardcache.Options[Shop]{
//	    Store: store,
//	    Codec: codec.JSON[Shop]{},
//	    Hooks: hooks, // or `raw` if you don’t want async
//	})
//
// Events are dropped when the queue is full, and after Close.
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/guardcache"
)

type Hooks struct {
	inner guardcache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once

	mu      sync.RWMutex // guards closed and the send on q
	closed  bool
	dropped atomic.Uint64
}

var _ guardcache.Hooks = (*Hooks)(nil)

func New(inner guardcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close delivers queued events and stops the workers.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) NegativeHit(k string)          { h.try(func() { h.inner.NegativeHit(k) }) }
func (h *Hooks) SelfHeal(k, r string)          { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) LockContended(k string, n int) { h.try(func() { h.inner.LockContended(k, n) }) }
func (h *Hooks) LockWaitExceeded(k string, n int, w time.Duration) {
	h.try(func() { h.inner.LockWaitExceeded(k, n, w) })
}
func (h *Hooks) RebuildScheduled(k string)         { h.try(func() { h.inner.RebuildScheduled(k) }) }
func (h *Hooks) RebuildDropped(k string)           { h.try(func() { h.inner.RebuildDropped(k) }) }
func (h *Hooks) RebuildFailed(k string, err error) { h.try(func() { h.inner.RebuildFailed(k, err) }) }
func (h *Hooks) UnlockFailed(k string, err error)  { h.try(func() { h.inner.UnlockFailed(k, err) }) }
