package guardcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	c "github.com/unkn0wn-root/guardcache/codec"
	"github.com/unkn0wn-root/guardcache/internal/util"
	"github.com/unkn0wn-root/guardcache/internal/wire"
	"github.com/unkn0wn-root/guardcache/kvstore"
	"github.com/unkn0wn-root/guardcache/lock"
	"github.com/unkn0wn-root/guardcache/rebuild"
)

// entryState is the state of one value key: absent, negative marker, or
// populated (possibly logically expired).
type entryState int

const (
	stateAbsent entryState = iota
	stateNegative
	statePopulated
)

type entry[V any] struct {
	state  entryState
	value  V
	expiry time.Time // zero unless written with a logical expiry
}

type client[V any] struct {
	store  kvstore.Store
	codec  c.Codec[V]
	log    Logger
	hooks  Hooks
	locker *lock.Locker
	now    func() time.Time

	defaultTTL     time.Duration
	negativeTTL    time.Duration
	lockPrefix     string
	retryInterval  time.Duration
	lockWait       time.Duration
	maxAttempts    int
	rebuildTimeout time.Duration

	exec     *rebuild.Executor
	ownsExec bool

	passThrough *PassThrough[V]
	mutex       *Mutex[V]
	logical     *LogicalExpiry[V]
	def         Strategy[V]
}

func newClient[V any](opts Options[V]) (*client[V], error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidOptions)
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("%w: codec is required", ErrInvalidOptions)
	}
	if opts.DefaultTTL < 0 || opts.NegativeTTL < 0 || opts.LockTTL < 0 ||
		opts.LockRetryInterval < 0 || opts.LockWait < 0 || opts.RebuildTimeout < 0 ||
		opts.MaxLockAttempts < 0 {
		return nil, fmt.Errorf("%w: durations and attempts must not be negative", ErrInvalidOptions)
	}

	locker, err := lock.New(opts.Store, coalesce(opts.LockTTL, DefaultLockTTL))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	cl := &client[V]{
		store:  opts.Store,
		codec:  opts.Codec,
		locker: locker,
	}
	cl.log = coalesce[Logger](opts.Logger, NopLogger{})
	cl.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	cl.now = opts.Now
	if cl.now == nil {
		cl.now = time.Now
	}
	cl.defaultTTL = coalesce(opts.DefaultTTL, DefaultTTL)
	cl.negativeTTL = coalesce(opts.NegativeTTL, DefaultNegativeTTL)
	cl.lockPrefix = coalesce(opts.LockPrefix, DefaultLockPrefix)
	cl.retryInterval = coalesce(opts.LockRetryInterval, DefaultRetryInterval)
	cl.lockWait = coalesce(opts.LockWait, DefaultLockWait)
	cl.maxAttempts = opts.MaxLockAttempts
	cl.rebuildTimeout = coalesce(opts.RebuildTimeout, DefaultRebuildTimeout)

	cl.passThrough = &PassThrough[V]{c: cl}
	cl.mutex = &Mutex[V]{c: cl, shared: !opts.DisableCoalescing}
	cl.logical = &LogicalExpiry[V]{c: cl}

	kind := coalesce(opts.Strategy, StrategyMutex)
	def, err := cl.Strategy(kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	cl.def = def

	cl.exec = opts.Executor
	if cl.exec == nil {
		cl.exec = rebuild.NewExecutor(opts.RebuildWorkers, opts.RebuildQueue)
		cl.ownsExec = true
	}
	return cl, nil
}

func (cl *client[V]) Close(ctx context.Context) error {
	if cl.ownsExec {
		cl.exec.Close()
	}
	return cl.store.Close(ctx)
}

func (cl *client[V]) Strategy(kind StrategyKind) (Strategy[V], error) {
	switch kind {
	case StrategyPassThrough:
		return cl.passThrough, nil
	case StrategyMutex:
		return cl.mutex, nil
	case StrategyLogical:
		return cl.logical, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, kind)
}

func (cl *client[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	payload, err := cl.codec.Encode(value)
	if err != nil {
		return &SerializationError{Key: key, Err: err}
	}
	return cl.store.Set(ctx, key, wire.EncodePlain(payload), coalesce(ttl, cl.defaultTTL))
}

// SetWithLogicalExpiry writes without a native TTL; staleness is judged only
// by the embedded expiry.
func (cl *client[V]) SetWithLogicalExpiry(ctx context.Context, key string, value V, ttl time.Duration) error {
	payload, err := cl.codec.Encode(value)
	if err != nil {
		return &SerializationError{Key: key, Err: err}
	}
	expiry := cl.now().Add(coalesce(ttl, cl.defaultTTL))
	return cl.store.Set(ctx, key, wire.EncodeLogical(expiry, payload), 0)
}

func (cl *client[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	e, err := cl.lookup(ctx, key)
	if err != nil {
		return zero, false, err
	}
	if e.state != statePopulated {
		return zero, false, nil
	}
	return e.value, true, nil
}

func (cl *client[V]) Query(ctx context.Context, keyPrefix, id string, load Loader[V], opts QueryOptions) (V, bool, error) {
	return cl.def.Query(ctx, keyPrefix, id, load, opts)
}

func (cl *client[V]) QueryWithPassThrough(ctx context.Context, keyPrefix, id string, load Loader[V], ttl time.Duration) (V, bool, error) {
	return cl.passThrough.Query(ctx, keyPrefix, id, load, QueryOptions{TTL: ttl})
}

func (cl *client[V]) QueryWithMutex(ctx context.Context, keyPrefix, id string, load Loader[V], opts QueryOptions) (V, bool, error) {
	return cl.mutex.Query(ctx, keyPrefix, id, load, opts)
}

func (cl *client[V]) QueryWithLogicalExpiry(ctx context.Context, keyPrefix, id string, load Loader[V], opts QueryOptions) (V, bool, error) {
	return cl.logical.Query(ctx, keyPrefix, id, load, opts)
}

func (cl *client[V]) Warm(ctx context.Context, keyPrefix, id string, load Loader[V], ttl time.Duration) (bool, error) {
	key := util.Key(keyPrefix, id)
	v, found, err := load(ctx, id)
	if err != nil {
		return false, err
	}
	if !found {
		return false, cl.store.Del(ctx, key)
	}
	if err := cl.SetWithLogicalExpiry(ctx, key, v, ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (cl *client[V]) Invalidate(ctx context.Context, keyPrefix, id string) error {
	key := util.Key(keyPrefix, id)
	if err := cl.store.Del(ctx, key); err != nil {
		return err
	}
	cl.log.Debug("invalidated key", Fields{"key": key})
	return nil
}

// read decodes the entry at key. Malformed entries come back as
// *SerializationError and are left in place.
func (cl *client[V]) read(ctx context.Context, key string) (entry[V], error) {
	var e entry[V]
	raw, ok, err := cl.store.Get(ctx, key)
	if err != nil {
		return e, err
	}
	if !ok {
		return e, nil
	}
	if len(raw) == 0 {
		e.state = stateNegative
		return e, nil
	}
	env, err := wire.Decode(raw)
	if err != nil {
		return e, &SerializationError{Key: key, Err: err}
	}
	v, err := cl.codec.Decode(env.Payload)
	if err != nil {
		return e, &SerializationError{Key: key, Err: fmt.Errorf("value decode: %w", err)}
	}
	e.state = statePopulated
	e.value = v
	if env.Logical() {
		e.expiry = env.Expiry
	}
	return e, nil
}

// lookup is read with self-heal: malformed entries are deleted and reported
// as absent.
func (cl *client[V]) lookup(ctx context.Context, key string) (entry[V], error) {
	e, err := cl.read(ctx, key)
	var serr *SerializationError
	if errors.As(err, &serr) {
		cl.selfHeal(ctx, key, serr)
		return entry[V]{}, nil
	}
	if err == nil && e.state == stateNegative {
		cl.hooks.NegativeHit(key)
	}
	return e, err
}

func (cl *client[V]) selfHeal(ctx context.Context, key string, serr *SerializationError) {
	reason := "value_decode"
	if errors.Is(serr.Err, wire.ErrCorrupt) {
		reason = "corrupt"
	}
	if err := cl.store.Del(ctx, key); err != nil {
		cl.log.Warn("self-heal delete failed", Fields{"key": key, "err": err})
	}
	cl.hooks.SelfHeal(key, reason)
	cl.log.Debug("deleted malformed entry", Fields{"key": key, "reason": reason, "err": serr.Err})
}

// writeNegative records a confirmed absence. Failures are logged only; the
// caller already has its answer.
func (cl *client[V]) writeNegative(ctx context.Context, key string, ttl time.Duration) {
	nttl := negativeTTL(cl.negativeTTL, ttl)
	if nttl <= 0 {
		return
	}
	if err := cl.store.Set(ctx, key, []byte{}, nttl); err != nil {
		cl.log.Warn("negative marker write failed", Fields{"key": key, "err": err})
	}
}

// release drops a lease even if ctx was cancelled while it was held.
func (cl *client[V]) release(ctx context.Context, lease *lock.Lease) {
	ok, err := lease.Unlock(context.WithoutCancel(ctx))
	if err != nil || !ok {
		cl.hooks.UnlockFailed(lease.Key(), err)
		cl.log.Warn("lock release failed", Fields{"lock": lease.Key(), "held": ok, "err": err})
	}
}

func (cl *client[V]) ttlFor(opts QueryOptions) time.Duration {
	return coalesce(opts.TTL, cl.defaultTTL)
}

func (cl *client[V]) lockKeyFor(opts QueryOptions, id string) string {
	return util.Key(coalesce(opts.LockPrefix, cl.lockPrefix), id)
}
