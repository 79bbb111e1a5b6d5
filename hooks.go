package guardcache

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// A read hit a negative marker; the loader was not called.
	NegativeHit(key string)

	// An entry was deleted by the cache on read.
	// reason ∈ {"corrupt", "value_decode"}
	SelfHeal(key, reason string)

	// The mutex strategy found the rebuild lock held; attempt is 1-based.
	LockContended(key string, attempt int)

	// The mutex strategy gave up waiting for the rebuild lock.
	LockWaitExceeded(key string, attempts int, waited time.Duration)

	// A logical-expiry rebuild was queued, or dropped because the executor
	// was full or closed.
	RebuildScheduled(key string)
	RebuildDropped(key string)

	// A queued rebuild failed (loader error, panic, or write error).
	// The stale entry stays in place.
	RebuildFailed(key string, err error)

	// Releasing a lock lease failed or the lease had already expired.
	UnlockFailed(lockKey string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) NegativeHit(string)                          {}
func (NopHooks) SelfHeal(string, string)                     {}
func (NopHooks) LockContended(string, int)                   {}
func (NopHooks) LockWaitExceeded(string, int, time.Duration) {}
func (NopHooks) RebuildScheduled(string)                     {}
func (NopHooks) RebuildDropped(string)                       {}
func (NopHooks) RebuildFailed(string, error)                 {}
func (NopHooks) UnlockFailed(string, error)                  {}
