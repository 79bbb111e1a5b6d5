package guardcache

import (
	"context"
	"fmt"
	"strings"
	"time"

	c "github.com/unkn0wn-root/guardcache/codec"
	"github.com/unkn0wn-root/guardcache/kvstore"
	"github.com/unkn0wn-root/guardcache/rebuild"
)

// Loader reads one entity from the backing store. found=false is a confirmed
// absence; err is a backing-store failure. Loaders must be safe to call
// concurrently and idempotent.
type Loader[V any] func(ctx context.Context, id string) (v V, found bool, err error)

// QueryOptions tune a single query. Zero values fall back to Options.
type QueryOptions struct {
	TTL        time.Duration
	LockPrefix string
}

type StrategyKind string

const (
	StrategyPassThrough StrategyKind = "passthrough"
	StrategyMutex       StrategyKind = "mutex"
	StrategyLogical     StrategyKind = "logical"
)

// ParseStrategyKind accepts the canonical names plus the hyphenated
// spellings "pass-through" and "logical-expiry".
func ParseStrategyKind(s string) (StrategyKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "passthrough", "pass-through":
		return StrategyPassThrough, nil
	case "mutex":
		return StrategyMutex, nil
	case "logical", "logical-expiry":
		return StrategyLogical, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Strategy is one read policy over the cache. All strategies share the same
// store layout, so a key may be read by any of them.
type Strategy[V any] interface {
	Name() StrategyKind
	Query(ctx context.Context, keyPrefix, id string, load Loader[V], opts QueryOptions) (V, bool, error)
}

type Cache[V any] = Client[V] // alias -> guardcache.Cache[Shop] or guardcache.Client[Shop]

// Client is the cache-aside API. V is the caller's value type.
// Serialization is handled by a pluggable Codec[V].
type Client[V any] interface {
	Close(context.Context) error

	// Unconditional writes
	Set(ctx context.Context, key string, value V, ttl time.Duration) error
	SetWithLogicalExpiry(ctx context.Context, key string, value V, ttl time.Duration) error
	Get(ctx context.Context, key string) (v V, ok bool, err error)

	// Query runs the strategy selected by Options.Strategy.
	Query(ctx context.Context, keyPrefix, id string, load Loader[V], opts QueryOptions) (V, bool, error)
	QueryWithPassThrough(ctx context.Context, keyPrefix, id string, load Loader[V], ttl time.Duration) (V, bool, error)
	QueryWithMutex(ctx context.Context, keyPrefix, id string, load Loader[V], opts QueryOptions) (V, bool, error)
	QueryWithLogicalExpiry(ctx context.Context, keyPrefix, id string, load Loader[V], opts QueryOptions) (V, bool, error)
	Strategy(kind StrategyKind) (Strategy[V], error)

	// Warm loads id and stores it with a logical expiry. It reports false and
	// removes the key when the entity does not exist.
	Warm(ctx context.Context, keyPrefix, id string, load Loader[V], ttl time.Duration) (bool, error)
	Invalidate(ctx context.Context, keyPrefix, id string) error
}

// Options tune the behavior of the cache client.
// Only Store and Codec are required; others have sensible defaults.
type Options[V any] struct {
	// Required
	Store kvstore.Store
	Codec c.Codec[V]

	Logger   Logger       // if nil, NopLogger is used
	Hooks    Hooks        // if nil, NopHooks is used
	Strategy StrategyKind // used by Query; "" => StrategyMutex

	DefaultTTL  time.Duration // 0 => 10m
	NegativeTTL time.Duration // 0 => 2m; capped at half of the value TTL

	LockPrefix        string        // "" => "lock:"
	LockTTL           time.Duration // 0 => 10s
	LockRetryInterval time.Duration // 0 => 50ms
	LockWait          time.Duration // 0 => 5s; total wait of one mutex query
	MaxLockAttempts   int           // 0 => bounded by LockWait only

	// In-process callers share one attempt per key, lock key and TTL. A
	// sharing caller gets the first caller's loader result; set this when
	// callers pass different loaders for one key.
	DisableCoalescing bool

	Executor       *rebuild.Executor // shared executor; nil => owned one closed by Close
	RebuildWorkers int               // owned executor only; 0 => 10
	RebuildQueue   int               // owned executor only; 0 => 1024
	RebuildTimeout time.Duration     // 0 => 30s

	Now func() time.Time // clock for logical expiry; nil => time.Now
}

func New[V any](opts Options[V]) (Client[V], error) {
	cl, err := newClient[V](opts)
	if err != nil {
		return nil, err
	}
	return cl, nil
}
