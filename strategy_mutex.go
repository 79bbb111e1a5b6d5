package guardcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/guardcache/internal/util"
	"github.com/unkn0wn-root/guardcache/lock"
)

// Mutex protects the backing store from breakdown: on a miss only the holder
// of the rebuild lock calls the loader, everyone else waits and re-reads.
// Waiting is bounded by LockWait and MaxLockAttempts.
type Mutex[V any] struct {
	c      *client[V]
	shared bool // coalesce in-process callers per key
	group  singleflight.Group
}

var _ Strategy[struct{}] = (*Mutex[struct{}])(nil)

type result[V any] struct {
	v     V
	found bool
}

func (m *Mutex[V]) Name() StrategyKind { return StrategyMutex }

func (m *Mutex[V]) Query(ctx context.Context, keyPrefix, id string, load Loader[V], opts QueryOptions) (V, bool, error) {
	key := util.Key(keyPrefix, id)
	lockKey := m.c.lockKeyFor(opts, id)
	ttl := m.c.ttlFor(opts)
	if !m.shared {
		return m.query(ctx, key, lockKey, id, load, ttl)
	}

	// one attempt per key in this process; the others share its result
	ch := m.group.DoChan(flightKey(key, lockKey, ttl), func() (_ any, err error) {
		// DoChan re-panics on a fresh goroutine; surface loader panics as errors
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("guardcache: loader panic for %q: %v", key, r)
			}
		}()
		v, found, err := m.query(ctx, key, lockKey, id, load, ttl)
		return result[V]{v: v, found: found}, err
	})
	var zero V
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			// the shared attempt died with its caller's context, not ours
			if ctx.Err() == nil && (errors.Is(r.Err, context.Canceled) || errors.Is(r.Err, context.DeadlineExceeded)) {
				return m.query(ctx, key, lockKey, id, load, ttl)
			}
			return zero, false, r.Err
		}
		res := r.Val.(result[V])
		return res.v, res.found, nil
	}
}

// flightKey groups callers that would write the same entry under the same
// lock. The loader is not part of the key.
func flightKey(key, lockKey string, ttl time.Duration) string {
	return key + "\x00" + lockKey + "\x00" + strconv.FormatInt(int64(ttl), 10)
}

func (m *Mutex[V]) query(ctx context.Context, key, lockKey, id string, load Loader[V], ttl time.Duration) (V, bool, error) {
	var zero V
	start := time.Now()
	for attempt := 1; ; attempt++ {
		e, err := m.c.lookup(ctx, key)
		if err != nil {
			return zero, false, err
		}
		switch e.state {
		case statePopulated:
			return e.value, true, nil
		case stateNegative:
			return zero, false, nil
		}

		lease, ok, err := m.c.locker.TryLock(ctx, lockKey)
		if err != nil {
			return zero, false, err
		}
		if ok {
			return m.rebuildHeld(ctx, lease, key, id, load, ttl)
		}

		m.c.hooks.LockContended(key, attempt)
		waited := time.Since(start)
		if (m.c.maxAttempts > 0 && attempt >= m.c.maxAttempts) || waited+m.c.retryInterval > m.c.lockWait {
			m.c.hooks.LockWaitExceeded(key, attempt, waited)
			return zero, false, &LockWaitError{Key: key, Attempts: attempt, Waited: waited}
		}

		t := time.NewTimer(m.c.retryInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, false, ctx.Err()
		case <-t.C:
		}
	}
}

// rebuildHeld runs with the lock held. The entry is re-read first because the
// previous holder may have populated it between our miss and our acquire.
func (m *Mutex[V]) rebuildHeld(ctx context.Context, lease *lock.Lease, key, id string, load Loader[V], ttl time.Duration) (V, bool, error) {
	defer m.c.release(ctx, lease)

	var zero V
	e, err := m.c.lookup(ctx, key)
	if err != nil {
		return zero, false, err
	}
	switch e.state {
	case statePopulated:
		return e.value, true, nil
	case stateNegative:
		return zero, false, nil
	}
	return m.c.loadAndStore(ctx, key, id, load, ttl)
}
