package guardcache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/guardcache/internal/util"
)

// PassThrough protects the backing store from penetration: a confirmed
// absence is cached as a negative marker, so repeated reads of a missing id
// stop at the cache until the marker expires.
type PassThrough[V any] struct {
	c *client[V]
}

var _ Strategy[struct{}] = (*PassThrough[struct{}])(nil)

func (p *PassThrough[V]) Name() StrategyKind { return StrategyPassThrough }

func (p *PassThrough[V]) Query(ctx context.Context, keyPrefix, id string, load Loader[V], opts QueryOptions) (V, bool, error) {
	var zero V
	key := util.Key(keyPrefix, id)

	e, err := p.c.lookup(ctx, key)
	if err != nil {
		return zero, false, err
	}
	switch e.state {
	case statePopulated:
		return e.value, true, nil
	case stateNegative:
		return zero, false, nil
	}
	return p.c.loadAndStore(ctx, key, id, load, p.c.ttlFor(opts))
}

// loadAndStore calls the loader once and writes back its answer. Loader
// errors write nothing. Write-back failures are logged and the loaded value
// is still returned.
func (cl *client[V]) loadAndStore(ctx context.Context, key, id string, load Loader[V], ttl time.Duration) (V, bool, error) {
	var zero V
	v, found, err := load(ctx, id)
	if err != nil {
		return zero, false, err
	}
	if !found {
		cl.writeNegative(ctx, key, ttl)
		return zero, false, nil
	}
	if err := cl.Set(ctx, key, v, ttl); err != nil {
		cl.log.Warn("cache write-back failed", Fields{"key": key, "err": err})
	}
	return v, true, nil
}
