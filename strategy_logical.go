package guardcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unkn0wn-root/guardcache/internal/util"
)

// LogicalExpiry never makes a caller wait on the backing store. Entries carry
// an embedded expiry and no native TTL. An expired entry is returned as is
// while the lock winner queues one rebuild on the shared executor.
//
// Keys are expected to be pre-warmed with Warm or SetWithLogicalExpiry: an
// absent key is reported as not found and nothing is loaded.
type LogicalExpiry[V any] struct {
	c *client[V]
}

var _ Strategy[struct{}] = (*LogicalExpiry[struct{}])(nil)

func (l *LogicalExpiry[V]) Name() StrategyKind { return StrategyLogical }

func (l *LogicalExpiry[V]) Query(ctx context.Context, keyPrefix, id string, load Loader[V], opts QueryOptions) (V, bool, error) {
	var zero V
	key := util.Key(keyPrefix, id)
	lockKey := l.c.lockKeyFor(opts, id)
	ttl := l.c.ttlFor(opts)

	e, err := l.c.read(ctx, key)
	var serr *SerializationError
	if errors.As(err, &serr) {
		// the key was warm once; put a good value back in the background
		l.c.selfHeal(ctx, key, serr)
		l.schedule(ctx, key, lockKey, id, load, ttl)
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	switch e.state {
	case stateAbsent:
		return zero, false, nil
	case stateNegative:
		l.c.hooks.NegativeHit(key)
		return zero, false, nil
	}

	if e.expiry.IsZero() || l.c.now().Before(e.expiry) {
		return e.value, true, nil
	}
	l.schedule(ctx, key, lockKey, id, load, ttl)
	return e.value, true, nil
}

// schedule makes one non-blocking attempt at the rebuild lock and hands the
// rebuild to the executor. Losing the lock means a rebuild is in flight.
func (l *LogicalExpiry[V]) schedule(ctx context.Context, key, lockKey, id string, load Loader[V], ttl time.Duration) {
	lease, ok, err := l.c.locker.TryLock(ctx, lockKey)
	if err != nil {
		l.c.log.Warn("rebuild lock failed", Fields{"key": key, "err": err})
		return
	}
	if !ok {
		return
	}

	// the rebuild outlives the request that triggered it
	detached := context.WithoutCancel(ctx)
	task := func() {
		rctx, cancel := context.WithTimeout(detached, l.c.rebuildTimeout)
		defer cancel()
		defer l.c.release(detached, lease)
		defer func() {
			if r := recover(); r != nil {
				l.failed(key, fmt.Errorf("guardcache: rebuild panic: %v", r))
			}
		}()
		l.rebuild(rctx, key, id, load, ttl)
	}
	if !l.c.exec.Submit(task) {
		l.c.hooks.RebuildDropped(key)
		l.c.log.Warn("rebuild dropped", Fields{"key": key})
		l.c.release(ctx, lease)
		return
	}
	l.c.hooks.RebuildScheduled(key)
}

func (l *LogicalExpiry[V]) rebuild(ctx context.Context, key, id string, load Loader[V], ttl time.Duration) {
	// a rebuild that finished just before we took the lock already did the work
	if e, err := l.c.read(ctx, key); err == nil && e.state == statePopulated &&
		!e.expiry.IsZero() && l.c.now().Before(e.expiry) {
		return
	}

	v, found, err := load(ctx, id)
	if err != nil {
		l.failed(key, err)
		return
	}
	if !found {
		if err := l.c.store.Del(ctx, key); err != nil {
			l.failed(key, err)
			return
		}
		l.c.log.Debug("rebuild removed entry for missing entity", Fields{"key": key})
		return
	}
	if err := l.c.SetWithLogicalExpiry(ctx, key, v, ttl); err != nil {
		l.failed(key, err)
		return
	}
	l.c.log.Debug("rebuilt entry", Fields{"key": key})
}

func (l *LogicalExpiry[V]) failed(key string, err error) {
	l.c.hooks.RebuildFailed(key, err)
	l.c.log.Error("rebuild failed; keeping stale entry", Fields{"key": key, "err": err})
}
